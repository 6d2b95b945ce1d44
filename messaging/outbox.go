package messaging

import (
	"fmt"
	"log"
	"sync"
	"time"

	"fleetkernel/protocol"
	"fleetkernel/store"
)

// Publisher is the transport the drainer hands messages to.
type Publisher interface {
	Publish(topic string, payload []byte) error
	IsConnected() bool
}

// OutboxDrainer periodically sends pending outbox messages.
type OutboxDrainer struct {
	db       *store.DB
	client   Publisher
	interval time.Duration
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewOutboxDrainer(db *store.DB, client Publisher, interval time.Duration) *OutboxDrainer {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &OutboxDrainer{
		db:       db,
		client:   client,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

func (d *OutboxDrainer) Start() {
	d.wg.Add(1)
	go d.drainLoop()
}

func (d *OutboxDrainer) Stop() {
	select {
	case <-d.stopChan:
	default:
		close(d.stopChan)
	}
	d.wg.Wait()
}

func (d *OutboxDrainer) drainLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopChan:
			return
		case <-ticker.C:
			d.drain()
		}
	}
}

// drain publishes up to one batch of pending messages and returns how many
// were acknowledged.
func (d *OutboxDrainer) drain() int {
	if !d.client.IsConnected() {
		return 0
	}

	msgs, err := d.db.ListPendingOutbox(50)
	if err != nil {
		log.Printf("outbox: list pending: %v", err)
		return 0
	}

	sent := 0
	for _, msg := range msgs {
		if err := d.client.Publish(msg.Topic, msg.Payload); err != nil {
			log.Printf("outbox: publish msg %d to %s: %v", msg.ID, msg.Topic, err)
			d.db.IncrementOutboxRetries(msg.ID)
			if msg.Retries+1 >= store.MaxOutboxRetries {
				log.Printf("outbox: parking msg %d (%s) after %d attempts", msg.ID, msg.MsgType, msg.Retries+1)
			}
			continue
		}
		if err := d.db.AckOutbox(msg.ID); err != nil {
			log.Printf("outbox: ack msg %d: %v", msg.ID, err)
			continue
		}
		sent++
	}
	return sent
}

// OutboxSender queues envelopes in the store for the drainer to publish.
type OutboxSender struct {
	db        *store.DB
	stationID string
}

func NewOutboxSender(db *store.DB, stationID string) *OutboxSender {
	return &OutboxSender{db: db, stationID: stationID}
}

func (s *OutboxSender) Send(topic string, env *protocol.Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := s.db.EnqueueOutbox(topic, data, env.Type, s.stationID); err != nil {
		return fmt.Errorf("enqueue %s: %w", env.Type, err)
	}
	return nil
}
