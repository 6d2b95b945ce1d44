package www

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"fleetkernel/engine"
	"fleetkernel/order"
)

type SSEEvent struct {
	ID    uint64
	Event string
	Data  string
}

// sseClient is one connected browser. A non-nil filter limits the event
// names it receives; keepalives always pass.
type sseClient struct {
	ch     chan SSEEvent
	filter map[string]bool
}

func (c *sseClient) wants(event string) bool {
	return c.filter == nil || event == "keepalive" || c.filter[event]
}

type EventHub struct {
	mu        sync.RWMutex
	clients   map[*sseClient]struct{}
	broadcast chan SSEEvent
	nextID    uint64
	stopOnce  sync.Once
	stopChan  chan struct{}
}

func NewEventHub() *EventHub {
	return &EventHub{
		clients:   make(map[*sseClient]struct{}),
		broadcast: make(chan SSEEvent, 256),
		stopChan:  make(chan struct{}),
	}
}

func (h *EventHub) Start() {
	go h.run()
}

func (h *EventHub) Stop() {
	h.stopOnce.Do(func() { close(h.stopChan) })
}

func (h *EventHub) run() {
	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-h.stopChan:
			return
		case evt := <-h.broadcast:
			h.nextID++
			evt.ID = h.nextID
			h.fanOut(evt)
		case <-keepalive.C:
			h.fanOut(SSEEvent{Event: "keepalive", Data: "ping"})
		}
	}
}

// fanOut hands evt to every interested client, dropping it for clients
// whose buffer is full.
func (h *EventHub) fanOut(evt SSEEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(evt.Event) {
			continue
		}
		select {
		case c.ch <- evt:
		default:
		}
	}
}

func (h *EventHub) Broadcast(event, data string) {
	select {
	case h.broadcast <- SSEEvent{Event: event, Data: data}:
	default:
	}
}

// AddClient registers a client for the given event names, or for all
// events when none are given.
func (h *EventHub) AddClient(events ...string) *sseClient {
	c := &sseClient{ch: make(chan SSEEvent, 64)}
	if len(events) > 0 {
		c.filter = make(map[string]bool, len(events))
		for _, e := range events {
			c.filter[e] = true
		}
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *EventHub) RemoveClient(c *sseClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SetupEngineListeners wires engine events to SSE broadcasts.
func (h *EventHub) SetupEngineListeners(eng *engine.Engine) {
	eng.Events.SubscribeTypes(func(evt engine.Event) {
		data, err := json.Marshal(eventData(evt))
		if err != nil {
			log.Printf("sse: encode %s: %v", evt.Type, err)
			return
		}
		h.Broadcast(evt.Type.String(), string(data))
	},
		engine.EventOrderCreated,
		engine.EventOrderStateChanged,
		engine.EventOrderVehicleChanged,
		engine.EventOrderRemoved,
		engine.EventSequenceUpdated,
		engine.EventSequenceRemoved,
		engine.EventOrderAssigned,
		engine.EventOrderUnroutable,
		engine.EventWithdrawalRequested,
		engine.EventDispatchFailed,
		engine.EventOrderRejected,
		engine.EventVehicleStatusChanged,
		engine.EventFleetConnected,
		engine.EventFleetDisconnected,
		engine.EventMessagingConnected,
		engine.EventMessagingDisconnected,
	)
}

// eventData flattens an event payload for the browser.
func eventData(evt engine.Event) map[string]any {
	switch ev := evt.Payload.(type) {
	case engine.OrderEvent:
		return orderData(ev.Order)
	case engine.OrderStateChangedEvent:
		d := orderData(ev.Order)
		d["old_state"] = ev.OldState
		return d
	case engine.OrderVehicleChangedEvent:
		d := orderData(ev.Order)
		d["old_vehicle"] = ev.OldVehicle
		return d
	case engine.OrderAssignedEvent:
		d := orderData(ev.Order)
		d["vehicle"] = ev.Vehicle
		return d
	case engine.OrderRemovedEvent:
		return map[string]any{"name": ev.Name}
	case engine.SequenceEvent:
		s := ev.Sequence
		return map[string]any{
			"name":           s.Name(),
			"orders":         s.Orders(),
			"finished_index": s.FinishedIndex(),
			"complete":       s.IsComplete(),
			"finished":       s.IsFinished(),
		}
	case engine.SequenceRemovedEvent:
		return map[string]any{"name": ev.Name}
	case engine.OrderUnroutableEvent:
		return map[string]any{"name": ev.OrderName, "detail": ev.Detail}
	case engine.WithdrawalRequestedEvent:
		return map[string]any{"name": ev.OrderName, "vehicle": ev.Vehicle, "immediate": ev.Immediate}
	case engine.DispatchFailedEvent:
		return map[string]any{"name": ev.OrderName, "vehicle": ev.Vehicle, "detail": ev.Detail}
	case engine.OrderRejectedEvent:
		return map[string]any{"name": ev.OrderName, "vehicle": ev.Vehicle, "reason": ev.Reason}
	case engine.VehicleStatusEvent:
		return map[string]any{"vehicle": ev.Status}
	case engine.ConnectionEvent:
		return map[string]any{"detail": ev.Detail}
	}
	return map[string]any{}
}

func orderData(o *order.TransportOrder) map[string]any {
	return map[string]any{
		"name":    o.Name(),
		"state":   o.State(),
		"vehicle": o.ProcessingVehicle(),
		"drive":   o.CurrentDriveOrderIndex(),
	}
}

// SSEHandler serves the SSE endpoint. ?types=a,b limits the stream to the
// named events.
func (h *EventHub) SSEHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var types []string
	if t := r.URL.Query().Get("types"); t != "" {
		types = strings.Split(t, ",")
	}
	c := h.AddClient(types...)
	defer h.RemoveClient(c)

	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.stopChan:
			return
		case evt := <-c.ch:
			var err error
			if evt.ID > 0 {
				_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", evt.ID, evt.Event, evt.Data)
			} else {
				_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Event, evt.Data)
			}
			if err != nil {
				log.Printf("sse: write error: %v", err)
				return
			}
			flusher.Flush()
		}
	}
}
