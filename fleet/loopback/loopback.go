// Package loopback simulates vehicles in process. Each vehicle moves one
// route step per tick and reports drive order progress like a real driver.
package loopback

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"fleetkernel/fleet"
	"fleetkernel/order"
	"fleetkernel/plant"
)

// Config holds the configuration for the loopback backend.
type Config struct {
	Vehicles     []plant.Vehicle
	StepInterval time.Duration
	// EnergyPerStep is drained from the battery on every route step.
	EnergyPerStep float64
}

type phase int

const (
	phaseIdle phase = iota
	phaseStart
	phaseTravel
	phaseOperate
	phaseFinish
)

type vehicle struct {
	status   fleet.VehicleStatus
	drives   []*order.DriveOrder
	driveIdx int
	stepIdx  int
	phase    phase

	withdrawing bool
	rejectWith  string
}

type confirmation struct {
	vehicle string
	order   string
}

// Backend implements fleet.ReportingBackend with simulated vehicles.
type Backend struct {
	interval      time.Duration
	energyPerStep float64

	mu       sync.Mutex
	vehicles map[string]*vehicle
	confirms []confirmation
	emitter  fleet.ProgressEmitter
	stopChan chan struct{}
}

var (
	_ fleet.ReportingBackend       = (*Backend)(nil)
	_ fleet.AvailabilityController = (*Backend)(nil)
)

// New creates a loopback backend with one vehicle per plant vehicle, parked
// at its initial point.
func New(cfg Config) *Backend {
	interval := cfg.StepInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	b := &Backend{
		interval:      interval,
		energyPerStep: cfg.EnergyPerStep,
		vehicles:      make(map[string]*vehicle),
		stopChan:      make(chan struct{}),
	}
	for _, v := range cfg.Vehicles {
		b.vehicles[v.Name] = &vehicle{status: fleet.VehicleStatus{
			Name:        v.Name,
			State:       fleet.VehicleIdle,
			Point:       v.InitialPoint,
			EnergyLevel: 100,
			Available:   true,
		}}
	}
	return b
}

func (b *Backend) SetProgressEmitter(e fleet.ProgressEmitter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.emitter = e
}

func (b *Backend) Name() string { return "loopback" }

func (b *Backend) Ping() error { return nil }

func (b *Backend) Vehicles() ([]fleet.VehicleStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]fleet.VehicleStatus, 0, len(b.vehicles))
	for _, v := range b.vehicles {
		out = append(out, v.status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (b *Backend) Assign(name string, o *order.TransportOrder) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	v, ok := b.vehicles[name]
	if !ok {
		return fmt.Errorf("loopback: unknown vehicle %q", name)
	}
	if v.status.CurrentOrder != "" && v.status.CurrentOrder != o.Name() {
		return fmt.Errorf("loopback: vehicle %s is busy with %s", name, v.status.CurrentOrder)
	}

	v.status.CurrentOrder = o.Name()
	v.status.State = fleet.VehicleExecuting
	v.drives = o.AllDriveOrders()
	v.driveIdx = max(o.CurrentDriveOrderIndex(), 0)
	v.stepIdx = 0
	v.phase = phaseStart
	v.withdrawing = false
	v.rejectWith = ""
	if !v.status.Available {
		v.rejectWith = "vehicle unavailable"
	}
	log.Printf("loopback: %s assigned %s (%d drive orders)", name, o.Name(), len(v.drives))
	return nil
}

func (b *Backend) Withdraw(name, orderName string, immediate bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	v, ok := b.vehicles[name]
	if !ok {
		return fmt.Errorf("loopback: unknown vehicle %q", name)
	}
	if v.status.CurrentOrder != orderName {
		// Nothing to stop; acknowledge on the next tick.
		b.confirms = append(b.confirms, confirmation{vehicle: name, order: orderName})
		return nil
	}
	if immediate {
		v.clear()
		b.confirms = append(b.confirms, confirmation{vehicle: name, order: orderName})
		return nil
	}
	v.withdrawing = true
	return nil
}

func (b *Backend) SetAvailability(name string, available bool) error {
	b.mu.Lock()
	v, ok := b.vehicles[name]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("loopback: unknown vehicle %q", name)
	}
	v.status.Available = available
	status := v.status
	emitter := b.emitter
	b.mu.Unlock()

	if emitter != nil {
		emitter.EmitVehicleStatusChanged(status)
	}
	return nil
}

func (b *Backend) Start() {
	go b.run()
}

func (b *Backend) Stop() {
	select {
	case b.stopChan <- struct{}{}:
	default:
	}
}

func (b *Backend) run() {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			b.tick()
		}
	}
}

// tick advances every busy vehicle by one phase. Reports are collected under
// the lock and emitted after it is released.
func (b *Backend) tick() {
	var events []func(fleet.ProgressEmitter)

	b.mu.Lock()
	for _, c := range b.confirms {
		events = append(events, func(e fleet.ProgressEmitter) { e.EmitWithdrawalConfirmed(c.vehicle, c.order) })
	}
	b.confirms = nil

	names := make([]string, 0, len(b.vehicles))
	for name := range b.vehicles {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		events = append(events, b.advance(b.vehicles[name])...)
	}
	emitter := b.emitter
	b.mu.Unlock()

	if emitter == nil {
		return
	}
	for _, fn := range events {
		fn(emitter)
	}
}

func (b *Backend) advance(v *vehicle) []func(fleet.ProgressEmitter) {
	if v.phase == phaseIdle {
		return nil
	}
	name, orderName := v.status.Name, v.status.CurrentOrder

	if v.rejectWith != "" {
		reason := v.rejectWith
		v.clear()
		status := v.status
		return []func(fleet.ProgressEmitter){
			func(e fleet.ProgressEmitter) { e.EmitOrderRejected(name, orderName, reason) },
			func(e fleet.ProgressEmitter) { e.EmitVehicleStatusChanged(status) },
		}
	}

	withdrawing := v.withdrawing
	var events []func(fleet.ProgressEmitter)
	progress := func(idx int, s order.DriveOrderState) {
		events = append(events, func(e fleet.ProgressEmitter) { e.EmitDriveOrderProgress(name, orderName, idx, s) })
	}

	switch v.phase {
	case phaseStart:
		progress(v.driveIdx, order.DriveTravelling)
		v.stepIdx = 0
		v.phase = phaseTravel
	case phaseTravel:
		route := v.drives[v.driveIdx].Route()
		if route != nil && v.stepIdx < route.Len() {
			v.status.Point = route.Step(v.stepIdx).DestinationPoint()
			v.status.EnergyLevel = max(v.status.EnergyLevel-b.energyPerStep, 0)
			v.stepIdx++
		}
		if route == nil || v.stepIdx >= route.Len() {
			v.phase = phaseOperate
		}
	case phaseOperate:
		if op := v.drives[v.driveIdx].Destination().Operation(); op != order.OpNop {
			progress(v.driveIdx, order.DriveOperating)
		}
		v.phase = phaseFinish
	case phaseFinish:
		progress(v.driveIdx, order.DriveFinished)
		v.driveIdx++
		if v.driveIdx >= len(v.drives) {
			v.clear()
		} else {
			v.phase = phaseStart
		}
	}

	if withdrawing {
		v.clear()
		events = append(events, func(e fleet.ProgressEmitter) { e.EmitWithdrawalConfirmed(name, orderName) })
	}

	status := v.status
	events = append(events, func(e fleet.ProgressEmitter) { e.EmitVehicleStatusChanged(status) })
	return events
}

func (v *vehicle) clear() {
	v.status.CurrentOrder = ""
	v.status.State = fleet.VehicleIdle
	v.drives = nil
	v.driveIdx = 0
	v.stepIdx = 0
	v.phase = phaseIdle
	v.withdrawing = false
	v.rejectWith = ""
}
