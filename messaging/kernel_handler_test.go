package messaging

import (
	"testing"

	"fleetkernel/kernel"
	"fleetkernel/order"
	"fleetkernel/protocol"
)

type sentEnvelope struct {
	topic string
	env   *protocol.Envelope
}

type mockSender struct {
	sent []sentEnvelope
}

func (m *mockSender) Send(topic string, env *protocol.Envelope) error {
	m.sent = append(m.sent, sentEnvelope{topic: topic, env: env})
	return nil
}

type mockKernel struct {
	created   []kernel.TransportOrderCreation
	withdrawn []string
	completed []string
	err       error
}

func (m *mockKernel) CreateTransportOrder(c kernel.TransportOrderCreation) (*order.TransportOrder, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.created = append(m.created, c)
	dest, _ := order.NewDestination(order.Ref{Kind: order.KindLocation, Name: c.Destinations[0].LocationName}, c.Destinations[0].Operation)
	return order.NewTransportOrder(1, c.Name, []*order.DriveOrder{order.NewDriveOrder(dest)})
}

func (m *mockKernel) WithdrawTransportOrder(name string, immediate bool) error {
	if m.err != nil {
		return m.err
	}
	m.withdrawn = append(m.withdrawn, name)
	return nil
}

func (m *mockKernel) CreateOrderSequence(c kernel.OrderSequenceCreation) (*order.OrderSequence, error) {
	if m.err != nil {
		return nil, m.err
	}
	return order.NewOrderSequence(1, c.Name)
}

func (m *mockKernel) CompleteOrderSequence(name string) (*order.OrderSequence, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.completed = append(m.completed, name)
	return order.NewOrderSequence(1, name)
}

func clientEnvelope(t *testing.T, msgType string, payload any) *protocol.Envelope {
	t.Helper()
	env, err := protocol.NewEnvelope(msgType,
		protocol.Address{Role: protocol.RoleClient, Node: "mes-1"},
		protocol.Address{Role: protocol.RoleKernel},
		payload)
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	return env
}

func TestHandleOrderCreateReplies(t *testing.T) {
	k := &mockKernel{}
	s := &mockSender{}
	h := NewKernelHandler(k, s, "kernel-1", "fleet.events")

	p := &protocol.TransportOrderCreationTO{
		Name:         "TOrder-1",
		Destinations: []protocol.DestinationTO{{LocationName: "Rack-1", Operation: "Load"}},
	}
	env := clientEnvelope(t, protocol.TypeOrderCreate, p)
	h.HandleOrderCreate(env, p)

	if len(k.created) != 1 {
		t.Fatalf("created = %d, want 1", len(k.created))
	}
	if len(s.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(s.sent))
	}
	reply := s.sent[0]
	if reply.topic != "fleet.events" {
		t.Errorf("topic = %q, want fleet.events", reply.topic)
	}
	if reply.env.Type != protocol.TypeOrderAccepted {
		t.Errorf("type = %q, want %q", reply.env.Type, protocol.TypeOrderAccepted)
	}
	if reply.env.CorID != env.ID {
		t.Errorf("cor = %q, want %q", reply.env.CorID, env.ID)
	}
	if reply.env.Dst.Node != "mes-1" {
		t.Errorf("dst node = %q, want mes-1", reply.env.Dst.Node)
	}
	var acc protocol.OrderAccepted
	if err := reply.env.DecodePayload(&acc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if acc.Name != "TOrder-1" || acc.State != order.StateRaw {
		t.Errorf("accepted = %+v", acc)
	}
}

func TestHandleErrorsMapToCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"unknown", order.NewUnknownObjectError(order.KindTransportOrder, "TOrder-9"), protocol.ErrCodeUnknownObject},
		{"exists", order.NewObjectExistsError(order.KindOrderSequence, "Seq-1"), protocol.ErrCodeObjectExists},
		{"illegal", order.NewIllegalArgumentError("name", "must not be empty"), protocol.ErrCodeIllegalArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &mockSender{}
			h := NewKernelHandler(&mockKernel{err: tt.err}, s, "kernel-1", "fleet.events")

			p := &protocol.OrderWithdraw{Name: "TOrder-9"}
			h.HandleOrderWithdraw(clientEnvelope(t, protocol.TypeOrderWithdraw, p), p)

			if len(s.sent) != 1 {
				t.Fatalf("sent = %d, want 1", len(s.sent))
			}
			var oe protocol.OrderError
			if err := s.sent[0].env.DecodePayload(&oe); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if s.sent[0].env.Type != protocol.TypeOrderError {
				t.Errorf("type = %q, want %q", s.sent[0].env.Type, protocol.TypeOrderError)
			}
			if oe.Code != tt.code {
				t.Errorf("code = %q, want %q", oe.Code, tt.code)
			}
		})
	}
}

func TestHandleWithdrawAndCompleteAreSilentOnSuccess(t *testing.T) {
	k := &mockKernel{}
	s := &mockSender{}
	h := NewKernelHandler(k, s, "kernel-1", "fleet.events")

	w := &protocol.OrderWithdraw{Name: "TOrder-1", Immediate: true}
	h.HandleOrderWithdraw(clientEnvelope(t, protocol.TypeOrderWithdraw, w), w)
	c := &protocol.SequenceComplete{Name: "Seq-1"}
	h.HandleSequenceComplete(clientEnvelope(t, protocol.TypeSequenceComplete, c), c)

	if len(k.withdrawn) != 1 || len(k.completed) != 1 {
		t.Errorf("withdrawn = %v, completed = %v", k.withdrawn, k.completed)
	}
	if len(s.sent) != 0 {
		t.Errorf("sent = %d, want 0", len(s.sent))
	}
}

func TestHandleSequenceCreate(t *testing.T) {
	s := &mockSender{}
	h := NewKernelHandler(&mockKernel{}, s, "kernel-1", "fleet.events")

	p := &protocol.OrderSequenceCreationTO{Name: "Seq-1", FailureFatal: true}
	h.HandleSequenceCreate(clientEnvelope(t, protocol.TypeSequenceCreate, p), p)

	if len(s.sent) != 1 || s.sent[0].env.Type != protocol.TypeSequenceAccepted {
		t.Fatalf("sent = %+v, want one sequence.accepted", s.sent)
	}
}

func TestPublishOrderUpdate(t *testing.T) {
	s := &mockSender{}
	h := NewKernelHandler(&mockKernel{}, s, "kernel-1", "fleet.events")

	dest, _ := order.NewDestination(order.Ref{Kind: order.KindLocation, Name: "Rack-1"}, "Load")
	o, _ := order.NewTransportOrder(1, "TOrder-1", []*order.DriveOrder{order.NewDriveOrder(dest)})
	o, _ = o.WithState(order.StateActive)
	h.PublishOrderUpdate(o, order.StateRaw, "")

	if len(s.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(s.sent))
	}
	var upd protocol.OrderUpdate
	s.sent[0].env.DecodePayload(&upd)
	if upd.OldState != order.StateRaw || upd.State != order.StateActive {
		t.Errorf("update = %+v", upd)
	}
	if s.sent[0].env.Src.Node != "kernel-1" {
		t.Errorf("src node = %q, want kernel-1", s.sent[0].env.Src.Node)
	}
}

func TestKernelFilter(t *testing.T) {
	f := KernelFilter("kernel-1")
	tests := []struct {
		dst  protocol.Address
		want bool
	}{
		{protocol.Address{Role: protocol.RoleKernel}, true},
		{protocol.Address{Role: protocol.RoleKernel, Node: "kernel-1"}, true},
		{protocol.Address{Role: protocol.RoleKernel, Node: "kernel-2"}, false},
		{protocol.Address{Role: protocol.RoleVehicle, Node: "V1"}, false},
		{protocol.Address{}, true},
	}
	for _, tt := range tests {
		if got := f(&protocol.RawHeader{Dst: tt.dst}); got != tt.want {
			t.Errorf("filter(%+v) = %v, want %v", tt.dst, got, tt.want)
		}
	}
}
