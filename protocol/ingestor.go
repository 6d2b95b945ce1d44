package protocol

import (
	"encoding/json"
	"log"
)

// FilterFunc returns true if the message should be processed.
type FilterFunc func(hdr *RawHeader) bool

// MessageHandler defines callbacks for all protocol message types.
// Embed NoOpHandler and override only the methods you need.
type MessageHandler interface {
	// Client -> Kernel
	HandleOrderCreate(env *Envelope, p *TransportOrderCreationTO)
	HandleOrderWithdraw(env *Envelope, p *OrderWithdraw)
	HandleSequenceCreate(env *Envelope, p *OrderSequenceCreationTO)
	HandleSequenceComplete(env *Envelope, p *SequenceComplete)

	// Kernel -> Client
	HandleOrderAccepted(env *Envelope, p *OrderAccepted)
	HandleSequenceAccepted(env *Envelope, p *SequenceAccepted)
	HandleOrderUpdate(env *Envelope, p *OrderUpdate)
	HandleOrderError(env *Envelope, p *OrderError)

	// Kernel -> Vehicle
	HandleVehicleCommand(env *Envelope, p *VehicleCommand)

	// Vehicle -> Kernel
	HandleVehicleProgress(env *Envelope, p *VehicleProgress)
	HandleVehicleRejection(env *Envelope, p *VehicleRejection)
	HandleVehicleWithdrawn(env *Envelope, p *VehicleWithdrawn)
	HandleVehicleStatus(env *Envelope, p *VehicleStatus)
}

// Ingestor decodes raw messages in two phases and hands them to a
// MessageHandler. The header is decoded first so expired, unaddressed or
// newer-version messages are dropped without touching the payload.
type Ingestor struct {
	filter FilterFunc
	routes map[string]func(*Envelope)
}

func NewIngestor(handler MessageHandler, filter FilterFunc) *Ingestor {
	return &Ingestor{
		filter: filter,
		routes: map[string]func(*Envelope){
			TypeOrderCreate:      route(handler.HandleOrderCreate),
			TypeOrderWithdraw:    route(handler.HandleOrderWithdraw),
			TypeSequenceCreate:   route(handler.HandleSequenceCreate),
			TypeSequenceComplete: route(handler.HandleSequenceComplete),
			TypeOrderAccepted:    route(handler.HandleOrderAccepted),
			TypeSequenceAccepted: route(handler.HandleSequenceAccepted),
			TypeOrderUpdate:      route(handler.HandleOrderUpdate),
			TypeOrderError:       route(handler.HandleOrderError),
			TypeVehicleCommand:   route(handler.HandleVehicleCommand),
			TypeVehicleProgress:  route(handler.HandleVehicleProgress),
			TypeVehicleRejection: route(handler.HandleVehicleRejection),
			TypeVehicleWithdrawn: route(handler.HandleVehicleWithdrawn),
			TypeVehicleStatus:    route(handler.HandleVehicleStatus),
		},
	}
}

// HandleRaw is the entry point for message bytes from the messaging layer.
func (ing *Ingestor) HandleRaw(data []byte) {
	var hdr RawHeader
	if err := json.Unmarshal(data, &hdr); err != nil {
		log.Printf("protocol: header decode error: %v", err)
		return
	}
	if hdr.Version > Version {
		log.Printf("protocol: dropping message %s with unsupported version %d", hdr.ID, hdr.Version)
		return
	}
	if IsExpiredHeader(&hdr) {
		log.Printf("protocol: dropping expired message %s (type=%s)", hdr.ID, hdr.Type)
		return
	}
	if ing.filter != nil && !ing.filter(&hdr) {
		return
	}

	fn, ok := ing.routes[hdr.Type]
	if !ok {
		log.Printf("protocol: unknown message type: %s", hdr.Type)
		return
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Printf("protocol: envelope decode error: %v", err)
		return
	}
	fn(&env)
}

// route binds a typed handler method to the payload decode for its type.
func route[T any](fn func(*Envelope, *T)) func(*Envelope) {
	return func(env *Envelope) {
		p := new(T)
		if err := env.DecodePayload(p); err != nil {
			log.Printf("protocol: %v", err)
			return
		}
		fn(env, p)
	}
}
