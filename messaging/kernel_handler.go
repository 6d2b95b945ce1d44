package messaging

import (
	"log"

	"fleetkernel/kernel"
	"fleetkernel/order"
	"fleetkernel/protocol"
)

// Kernel is the order service the handler drives.
type Kernel interface {
	CreateTransportOrder(c kernel.TransportOrderCreation) (*order.TransportOrder, error)
	WithdrawTransportOrder(name string, immediate bool) error
	CreateOrderSequence(c kernel.OrderSequenceCreation) (*order.OrderSequence, error)
	CompleteOrderSequence(name string) (*order.OrderSequence, error)
}

// Sender queues an envelope for delivery on a topic.
type Sender interface {
	Send(topic string, env *protocol.Envelope) error
}

// KernelHandler serves client requests arriving on the orders topic and
// publishes replies and order updates on the events topic.
type KernelHandler struct {
	protocol.NoOpHandler

	kernel      Kernel
	sender      Sender
	stationID   string
	eventsTopic string
}

func NewKernelHandler(k Kernel, sender Sender, stationID, eventsTopic string) *KernelHandler {
	return &KernelHandler{
		kernel:      k,
		sender:      sender,
		stationID:   stationID,
		eventsTopic: eventsTopic,
	}
}

func (h *KernelHandler) src() protocol.Address {
	return protocol.Address{Role: protocol.RoleKernel, Node: h.stationID}
}

func (h *KernelHandler) HandleOrderCreate(env *protocol.Envelope, p *protocol.TransportOrderCreationTO) {
	log.Printf("kernel_handler: order create from %s: %s", env.Src.Node, p.Name)
	o, err := h.kernel.CreateTransportOrder(p.Creation())
	if err != nil {
		h.replyError(env, p.Name, err)
		return
	}
	h.reply(env, protocol.TypeOrderAccepted, &protocol.OrderAccepted{Name: o.Name(), State: o.State()})
}

func (h *KernelHandler) HandleOrderWithdraw(env *protocol.Envelope, p *protocol.OrderWithdraw) {
	log.Printf("kernel_handler: order withdraw from %s: %s (immediate=%v, reason=%q)", env.Src.Node, p.Name, p.Immediate, p.Reason)
	if err := h.kernel.WithdrawTransportOrder(p.Name, p.Immediate); err != nil {
		h.replyError(env, p.Name, err)
	}
}

func (h *KernelHandler) HandleSequenceCreate(env *protocol.Envelope, p *protocol.OrderSequenceCreationTO) {
	log.Printf("kernel_handler: sequence create from %s: %s", env.Src.Node, p.Name)
	s, err := h.kernel.CreateOrderSequence(p.Creation())
	if err != nil {
		h.replyError(env, p.Name, err)
		return
	}
	h.reply(env, protocol.TypeSequenceAccepted, &protocol.SequenceAccepted{Name: s.Name()})
}

func (h *KernelHandler) HandleSequenceComplete(env *protocol.Envelope, p *protocol.SequenceComplete) {
	log.Printf("kernel_handler: sequence complete from %s: %s", env.Src.Node, p.Name)
	if _, err := h.kernel.CompleteOrderSequence(p.Name); err != nil {
		h.replyError(env, p.Name, err)
	}
}

// PublishOrderUpdate announces a transport order state change to clients.
func (h *KernelHandler) PublishOrderUpdate(o *order.TransportOrder, old order.State, detail string) {
	env, err := protocol.NewEnvelope(protocol.TypeOrderUpdate, h.src(), protocol.Address{Role: protocol.RoleClient},
		&protocol.OrderUpdate{
			Name:     o.Name(),
			OldState: old,
			State:    o.State(),
			Vehicle:  o.ProcessingVehicle(),
			Detail:   detail,
		})
	if err != nil {
		log.Printf("kernel_handler: build order update: %v", err)
		return
	}
	if err := h.sender.Send(h.eventsTopic, env); err != nil {
		log.Printf("kernel_handler: queue order update for %s: %v", o.Name(), err)
	}
}

func (h *KernelHandler) replyError(env *protocol.Envelope, name string, err error) {
	log.Printf("kernel_handler: %s %s rejected: %v", env.Type, name, err)
	h.reply(env, protocol.TypeOrderError, &protocol.OrderError{
		Name:   name,
		Code:   protocol.ErrorCode(err),
		Detail: err.Error(),
	})
}

func (h *KernelHandler) reply(env *protocol.Envelope, msgType string, payload any) {
	reply, err := protocol.NewReply(msgType, h.src(), env.Src, env.ID, payload)
	if err != nil {
		log.Printf("kernel_handler: build %s reply: %v", msgType, err)
		return
	}
	if err := h.sender.Send(h.eventsTopic, reply); err != nil {
		log.Printf("kernel_handler: queue %s reply: %v", msgType, err)
	}
}
