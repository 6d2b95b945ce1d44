// Package driverlink connects the kernel to vehicle drivers running in other
// processes. Commands leave as vehicle.command envelopes; the drivers answer
// on the reports topic.
package driverlink

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"fleetkernel/fleet"
	"fleetkernel/order"
	"fleetkernel/protocol"
)

// Sender queues an envelope for delivery on a topic.
type Sender interface {
	Send(topic string, env *protocol.Envelope) error
}

// Config holds the configuration for a driver link.
type Config struct {
	Vehicles      []string
	CommandsTopic string
	StationID     string
	// StaleAfter marks a vehicle unavailable when it has not reported for
	// this long. Zero disables the check.
	StaleAfter time.Duration
}

type entry struct {
	status   fleet.VehicleStatus
	lastSeen time.Time
}

// Link implements fleet.ReportingBackend over the messaging layer and
// protocol.MessageHandler for the drivers' reports.
type Link struct {
	protocol.NoOpHandler

	sender     Sender
	topic      string
	src        protocol.Address
	staleAfter time.Duration

	mu       sync.RWMutex
	vehicles map[string]*entry
	emitter  fleet.ProgressEmitter
}

var _ fleet.ReportingBackend = (*Link)(nil)

func New(cfg Config, sender Sender) *Link {
	l := &Link{
		sender:     sender,
		topic:      cfg.CommandsTopic,
		src:        protocol.Address{Role: protocol.RoleKernel, Node: cfg.StationID},
		staleAfter: cfg.StaleAfter,
		vehicles:   make(map[string]*entry),
	}
	for _, name := range cfg.Vehicles {
		l.vehicles[name] = &entry{status: fleet.VehicleStatus{Name: name, State: fleet.VehicleUnknown}}
	}
	return l
}

func (l *Link) SetProgressEmitter(e fleet.ProgressEmitter) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.emitter = e
}

func (l *Link) Name() string { return "driverlink" }

func (l *Link) Ping() error {
	if l.sender == nil {
		return fmt.Errorf("driverlink: no sender configured")
	}
	return nil
}

func (l *Link) Vehicles() ([]fleet.VehicleStatus, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	now := time.Now()
	out := make([]fleet.VehicleStatus, 0, len(l.vehicles))
	for _, e := range l.vehicles {
		s := e.status
		if l.staleAfter > 0 && now.Sub(e.lastSeen) > l.staleAfter {
			s.State = fleet.VehicleUnknown
			s.Available = false
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (l *Link) Assign(vehicle string, o *order.TransportOrder) error {
	cmd := &protocol.VehicleCommand{
		Vehicle: vehicle,
		Order:   o.Name(),
		Command: protocol.CommandAssign,
	}
	for _, d := range o.AllDriveOrders() {
		cmd.DriveOrders = append(cmd.DriveOrders, d.Snapshot())
	}
	if err := l.send(vehicle, cmd); err != nil {
		return err
	}

	l.mu.Lock()
	if e, ok := l.vehicles[vehicle]; ok {
		e.status.CurrentOrder = o.Name()
		e.status.State = fleet.VehicleExecuting
	}
	l.mu.Unlock()
	return nil
}

func (l *Link) Withdraw(vehicle, orderName string, immediate bool) error {
	return l.send(vehicle, &protocol.VehicleCommand{
		Vehicle:   vehicle,
		Order:     orderName,
		Command:   protocol.CommandWithdraw,
		Immediate: immediate,
	})
}

func (l *Link) send(vehicle string, cmd *protocol.VehicleCommand) error {
	l.mu.RLock()
	_, known := l.vehicles[vehicle]
	l.mu.RUnlock()
	if !known {
		return fmt.Errorf("driverlink: unknown vehicle %q", vehicle)
	}

	dst := protocol.Address{Role: protocol.RoleVehicle, Node: vehicle}
	env, err := protocol.NewEnvelope(protocol.TypeVehicleCommand, l.src, dst, cmd)
	if err != nil {
		return fmt.Errorf("build %s command: %w", cmd.Command, err)
	}
	if err := l.sender.Send(l.topic, env); err != nil {
		return fmt.Errorf("send %s command to %s: %w", cmd.Command, vehicle, err)
	}
	return nil
}

// touch records a report from vehicle and returns the emitter, or nil when
// the vehicle is not configured.
func (l *Link) touch(vehicle string, update func(*fleet.VehicleStatus)) (fleet.ProgressEmitter, *fleet.VehicleStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.vehicles[vehicle]
	if !ok {
		log.Printf("driverlink: report from unknown vehicle %q", vehicle)
		return nil, nil
	}
	e.lastSeen = time.Now()
	if update != nil {
		update(&e.status)
	}
	s := e.status
	return l.emitter, &s
}

func (l *Link) HandleVehicleProgress(_ *protocol.Envelope, p *protocol.VehicleProgress) {
	em, _ := l.touch(p.Vehicle, nil)
	if em != nil {
		em.EmitDriveOrderProgress(p.Vehicle, p.Order, p.Index, p.State)
	}
}

func (l *Link) HandleVehicleRejection(_ *protocol.Envelope, p *protocol.VehicleRejection) {
	em, _ := l.touch(p.Vehicle, func(s *fleet.VehicleStatus) {
		if s.CurrentOrder == p.Order {
			s.CurrentOrder = ""
			s.State = fleet.VehicleIdle
		}
	})
	if em != nil {
		em.EmitOrderRejected(p.Vehicle, p.Order, p.Reason)
	}
}

func (l *Link) HandleVehicleWithdrawn(_ *protocol.Envelope, p *protocol.VehicleWithdrawn) {
	em, _ := l.touch(p.Vehicle, func(s *fleet.VehicleStatus) {
		if s.CurrentOrder == p.Order {
			s.CurrentOrder = ""
			s.State = fleet.VehicleIdle
		}
	})
	if em != nil {
		em.EmitWithdrawalConfirmed(p.Vehicle, p.Order)
	}
}

func (l *Link) HandleVehicleStatus(_ *protocol.Envelope, p *protocol.VehicleStatus) {
	em, s := l.touch(p.Vehicle, func(s *fleet.VehicleStatus) {
		s.State = p.State
		s.Point = p.Point
		s.EnergyLevel = p.EnergyLevel
		s.CurrentOrder = p.CurrentOrder
		s.Available = p.Available
	})
	if em != nil {
		em.EmitVehicleStatusChanged(*s)
	}
}
