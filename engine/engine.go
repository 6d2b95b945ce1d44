package engine

import (
	"fmt"
	"log"
	"sync"
	"time"

	"fleetkernel/config"
	"fleetkernel/dispatch"
	"fleetkernel/fleet"
	"fleetkernel/kernel"
	"fleetkernel/messaging"
	"fleetkernel/order"
	"fleetkernel/orderstate"
	"fleetkernel/plant"
	"fleetkernel/routing"
	"fleetkernel/store"
)

type LogFunc func(format string, args ...any)

type Config struct {
	AppConfig  *config.Config
	ConfigPath string
	DB         *store.DB
	Plant      *plant.Model
	Fleet      fleet.Backend
	// OrderState mirrors orders into Redis when set.
	OrderState *orderstate.RedisStore
	// MsgClient is only used for connection health. Nil when messaging is off.
	MsgClient *messaging.Client
	// Sender queues order updates for clients. Defaults to the DB outbox.
	Sender  messaging.Sender
	LogFunc LogFunc
}

// starter is implemented by backends that run their own goroutines.
type starter interface {
	Start()
	Stop()
}

type Engine struct {
	cfg        *config.Config
	configPath string
	db         *store.DB
	plant      *plant.Model
	fleet      fleet.Backend
	msgClient  *messaging.Client

	pool       *kernel.Pool
	router     *routing.Router
	dispatcher *dispatch.Dispatcher
	handler    *messaging.KernelHandler
	orderState *orderstate.Manager
	metrics    *Metrics

	Events *EventBus
	logFn  LogFunc

	// persistMu orders snapshot writes so a slower writer cannot overwrite
	// a newer snapshot of the same order.
	persistMu sync.Mutex

	stopChan       chan struct{}
	fleetConnected bool
	msgConnected   bool
}

func New(c Config) *Engine {
	logFn := c.LogFunc
	if logFn == nil {
		logFn = log.Printf
	}
	e := &Engine{
		cfg:        c.AppConfig,
		configPath: c.ConfigPath,
		db:         c.DB,
		plant:      c.Plant,
		fleet:      c.Fleet,
		msgClient:  c.MsgClient,
		Events:     NewEventBus(),
		logFn:      logFn,
		stopChan:   make(chan struct{}),
	}

	e.pool = kernel.NewPool(c.Plant, &kernelEmitter{bus: e.Events})
	e.pool.SetLogFunc(kernel.LogFunc(logFn))
	e.router = routing.NewRouter(c.Plant)
	e.dispatcher = dispatch.NewDispatcher(
		e.pool,
		e.fleet,
		e.router,
		c.Plant,
		&dispatchEmitter{bus: e.Events},
		e.cfg.Dispatch.Interval,
	)

	sender := c.Sender
	if sender == nil {
		sender = messaging.NewOutboxSender(c.DB, e.cfg.Messaging.StationID)
	}
	e.handler = messaging.NewKernelHandler(e, sender, e.cfg.Messaging.StationID, e.cfg.Messaging.EventsTopic)

	if c.OrderState != nil {
		e.orderState = orderstate.NewManager(e.pool, c.OrderState)
	}
	e.metrics = NewMetrics(e.pool)
	return e
}

func (e *Engine) Start() error {
	e.wireEventHandlers()

	if err := e.restore(); err != nil {
		return fmt.Errorf("restore orders: %w", err)
	}
	if e.orderState != nil {
		if err := e.orderState.SyncFromPool(); err != nil {
			e.logFn("engine: order state sync: %v", err)
		}
	}

	if rb, ok := e.fleet.(fleet.ReportingBackend); ok {
		rb.SetProgressEmitter(&fleetEmitter{bus: e.Events})
	}
	if s, ok := e.fleet.(starter); ok {
		s.Start()
	}
	e.dispatcher.Start()

	// Emit initial connection status
	e.checkConnectionStatus()

	// Start periodic connection health check
	go e.connectionHealthLoop()

	e.logFn("engine: started (%s fleet)", e.fleet.Name())
	return nil
}

func (e *Engine) Stop() {
	select {
	case e.stopChan <- struct{}{}:
	default:
	}
	e.dispatcher.Stop()
	if s, ok := e.fleet.(starter); ok {
		s.Stop()
	}
	e.logFn("engine: stopped")
}

// restore reloads persisted orders and sequences into the empty pool.
func (e *Engine) restore() error {
	orders, err := e.db.LoadTransportOrders()
	if err != nil {
		return err
	}
	seqs, err := e.db.LoadOrderSequences()
	if err != nil {
		return err
	}
	if len(orders) == 0 && len(seqs) == 0 {
		return nil
	}
	return e.pool.Restore(orders, seqs)
}

// Accessors
func (e *Engine) DB() *store.DB                           { return e.db }
func (e *Engine) AppConfig() *config.Config               { return e.cfg }
func (e *Engine) ConfigPath() string                      { return e.configPath }
func (e *Engine) Pool() *kernel.Pool                      { return e.pool }
func (e *Engine) Plant() *plant.Model                     { return e.plant }
func (e *Engine) Dispatcher() *dispatch.Dispatcher        { return e.dispatcher }
func (e *Engine) Fleet() fleet.Backend                    { return e.fleet }
func (e *Engine) MsgClient() *messaging.Client            { return e.msgClient }
func (e *Engine) KernelHandler() *messaging.KernelHandler { return e.handler }
func (e *Engine) OrderState() *orderstate.Manager         { return e.orderState }
func (e *Engine) Metrics() *Metrics                       { return e.metrics }

// CreateTransportOrder creates an order and, when configured, activates it
// right away.
func (e *Engine) CreateTransportOrder(c kernel.TransportOrderCreation) (*order.TransportOrder, error) {
	o, err := e.pool.CreateTransportOrder(c)
	if err != nil {
		return nil, err
	}
	if !e.cfg.Dispatch.AutoActivate {
		return o, nil
	}
	activated, err := e.pool.ActivateTransportOrder(o.Name())
	if err != nil {
		return nil, err
	}
	return activated, nil
}

// ActivateTransportOrder releases a RAW order for dispatching.
func (e *Engine) ActivateTransportOrder(name string) (*order.TransportOrder, error) {
	return e.pool.ActivateTransportOrder(name)
}

func (e *Engine) WithdrawTransportOrder(name string, immediate bool) error {
	return e.dispatcher.WithdrawOrder(name, immediate)
}

func (e *Engine) CreateOrderSequence(c kernel.OrderSequenceCreation) (*order.OrderSequence, error) {
	return e.pool.CreateOrderSequence(c)
}

func (e *Engine) CompleteOrderSequence(name string) (*order.OrderSequence, error) {
	return e.pool.CompleteSequence(name)
}

func (e *Engine) SetSequenceFailureFatal(name string, fatal bool) (*order.OrderSequence, error) {
	return e.pool.SetSequenceFailureFatal(name, fatal)
}

// DeleteTransportOrder removes a final order from the pool. Persistence and
// cache follow through the OrderRemoved event.
func (e *Engine) DeleteTransportOrder(name string) error {
	return e.pool.DeleteTransportOrder(name)
}

func (e *Engine) DeleteOrderSequence(name string) error {
	return e.pool.DeleteOrderSequence(name)
}

func (e *Engine) checkConnectionStatus() {
	// Fleet
	if err := e.fleet.Ping(); err == nil {
		if !e.fleetConnected {
			e.fleetConnected = true
			e.Events.Emit(Event{Type: EventFleetConnected, Payload: ConnectionEvent{Detail: e.fleet.Name() + " connected"}})
		}
	} else {
		if e.fleetConnected {
			e.fleetConnected = false
			e.Events.Emit(Event{Type: EventFleetDisconnected, Payload: ConnectionEvent{Detail: err.Error()}})
		}
	}

	// Messaging
	if e.msgClient == nil {
		return
	}
	if e.msgClient.IsConnected() {
		if !e.msgConnected {
			e.msgConnected = true
			e.Events.Emit(Event{Type: EventMessagingConnected, Payload: ConnectionEvent{Detail: e.msgClient.Backend() + " connected"}})
		}
	} else {
		if e.msgConnected {
			e.msgConnected = false
			e.Events.Emit(Event{Type: EventMessagingDisconnected, Payload: ConnectionEvent{Detail: "messaging disconnected"}})
		}
	}
}

func (e *Engine) connectionHealthLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.checkConnectionStatus()
		}
	}
}

// ReconfigureMessaging reconnects messaging with current config.
func (e *Engine) ReconfigureMessaging() {
	if e.msgClient == nil {
		return
	}
	if err := e.msgClient.Reconfigure(&e.cfg.Messaging); err != nil {
		e.logFn("engine: messaging reconfigure error: %v", err)
	} else {
		e.logFn("engine: messaging reconfigured")
	}
	e.checkConnectionStatus()
}
