package messaging

import (
	"fleetkernel/protocol"
)

// Subscriber feeds one topic through a protocol ingestor.
type Subscriber struct {
	client   *Client
	topic    string
	ingestor *protocol.Ingestor
}

func NewSubscriber(client *Client, topic string, handler protocol.MessageHandler, filter protocol.FilterFunc) *Subscriber {
	return &Subscriber{
		client:   client,
		topic:    topic,
		ingestor: protocol.NewIngestor(handler, filter),
	}
}

func (s *Subscriber) Start() error {
	return s.client.Subscribe(s.topic, func(_ string, payload []byte) {
		s.ingestor.HandleRaw(payload)
	})
}

// KernelFilter accepts messages addressed to the kernel role, either to any
// kernel node or to the given station.
func KernelFilter(stationID string) protocol.FilterFunc {
	return func(hdr *protocol.RawHeader) bool {
		if hdr.Dst.Role != "" && hdr.Dst.Role != protocol.RoleKernel {
			return false
		}
		return hdr.Dst.Node == "" || hdr.Dst.Node == stationID
	}
}
