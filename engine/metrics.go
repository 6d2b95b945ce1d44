package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"fleetkernel/kernel"
	"fleetkernel/order"
)

var allStates = []order.State{
	order.StateRaw,
	order.StateActive,
	order.StateDispatchable,
	order.StateBeingProcessed,
	order.StateWithdrawn,
	order.StateFinished,
	order.StateFailed,
	order.StateUnroutable,
}

// Metrics holds the kernel's Prometheus instruments on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	ordersCreated    prometheus.Counter
	transitions      *prometheus.CounterVec
	ordersFinal      *prometheus.CounterVec
	assignments      prometheus.Counter
	dispatchFailures prometheus.Counter
	rejections       prometheus.Counter
	vehicleEnergy    *prometheus.GaugeVec
}

func NewMetrics(pool *kernel.Pool) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ordersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fleetkernel",
			Name:      "orders_created_total",
			Help:      "Transport orders created.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fleetkernel",
			Name:      "order_transitions_total",
			Help:      "Transport order state transitions by target state.",
		}, []string{"state"}),
		ordersFinal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fleetkernel",
			Name:      "orders_final_total",
			Help:      "Transport orders that reached a final state.",
		}, []string{"state"}),
		assignments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fleetkernel",
			Name:      "order_assignments_total",
			Help:      "Orders handed to a vehicle.",
		}),
		dispatchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fleetkernel",
			Name:      "dispatch_failures_total",
			Help:      "Assignments the fleet backend refused.",
		}),
		rejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fleetkernel",
			Name:      "order_rejections_total",
			Help:      "Orders rejected by vehicles.",
		}),
		vehicleEnergy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fleetkernel",
			Name:      "vehicle_energy_level",
			Help:      "Last reported energy level per vehicle.",
		}, []string{"vehicle"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.ordersCreated,
		m.transitions,
		m.ordersFinal,
		m.assignments,
		m.dispatchFailures,
		m.rejections,
		m.vehicleEnergy,
		&poolCollector{pool: pool},
	)
	return m
}

// Registry is served by the /metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// poolCollector reports the live order count per state at scrape time.
type poolCollector struct {
	pool *kernel.Pool
}

var poolOrdersDesc = prometheus.NewDesc(
	"fleetkernel_pool_orders",
	"Transport orders currently in the pool by state.",
	[]string{"state"}, nil,
)

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- poolOrdersDesc
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	counts := make(map[order.State]int, len(allStates))
	for _, o := range c.pool.TransportOrders(nil) {
		counts[o.State()]++
	}
	for _, s := range allStates {
		ch <- prometheus.MustNewConstMetric(poolOrdersDesc, prometheus.GaugeValue, float64(counts[s]), string(s))
	}
}
