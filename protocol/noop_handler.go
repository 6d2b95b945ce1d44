package protocol

// NoOpHandler implements MessageHandler with no-op methods.
// Embed this and override only the methods you need.
type NoOpHandler struct{}

func (NoOpHandler) HandleOrderCreate(*Envelope, *TransportOrderCreationTO)   {}
func (NoOpHandler) HandleOrderWithdraw(*Envelope, *OrderWithdraw)            {}
func (NoOpHandler) HandleSequenceCreate(*Envelope, *OrderSequenceCreationTO) {}
func (NoOpHandler) HandleSequenceComplete(*Envelope, *SequenceComplete)      {}
func (NoOpHandler) HandleOrderAccepted(*Envelope, *OrderAccepted)            {}
func (NoOpHandler) HandleSequenceAccepted(*Envelope, *SequenceAccepted)      {}
func (NoOpHandler) HandleOrderUpdate(*Envelope, *OrderUpdate)                {}
func (NoOpHandler) HandleOrderError(*Envelope, *OrderError)                  {}
func (NoOpHandler) HandleVehicleCommand(*Envelope, *VehicleCommand)          {}
func (NoOpHandler) HandleVehicleProgress(*Envelope, *VehicleProgress)        {}
func (NoOpHandler) HandleVehicleRejection(*Envelope, *VehicleRejection)      {}
func (NoOpHandler) HandleVehicleWithdrawn(*Envelope, *VehicleWithdrawn)      {}
func (NoOpHandler) HandleVehicleStatus(*Envelope, *VehicleStatus)            {}

// Compile-time check that NoOpHandler implements MessageHandler.
var _ MessageHandler = NoOpHandler{}
