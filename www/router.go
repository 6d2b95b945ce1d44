// Package www serves the operator HTTP API: order and sequence management,
// vehicle status, health, metrics and a server-sent event stream.
package www

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fleetkernel/archive"
	"fleetkernel/engine"
)

type Handlers struct {
	engine   *engine.Engine
	archive  archive.Store
	sessions *sessions.CookieStore
	eventHub *EventHub
}

// NewRouter builds the HTTP handler. arch may be nil. The returned func
// stops the event hub.
func NewRouter(eng *engine.Engine, arch archive.Store) (http.Handler, func()) {
	hub := NewEventHub()
	hub.Start()
	hub.SetupEngineListeners(eng)

	h := &Handlers{
		engine:   eng,
		archive:  arch,
		sessions: newSessionStore(eng.AppConfig().Web.SessionSecret),
		eventHub: hub,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// SSE
	r.Get("/events", hub.SSEHandler)
	r.Handle("/metrics", promhttp.HandlerFor(eng.Metrics().Registry(), promhttp.HandlerOpts{}))

	r.Post("/login", h.handleLogin)
	r.Get("/logout", h.handleLogout)

	// Reads are public
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Compress(5))
		r.Get("/health", h.apiHealthCheck)
		r.Get("/orders", h.apiListOrders)
		r.Get("/orders/{name}", h.apiGetOrder)
		r.Get("/orders/{name}/history", h.apiOrderHistory)
		r.Get("/sequences", h.apiListSequences)
		r.Get("/sequences/{name}", h.apiGetSequence)
		r.Get("/vehicles", h.apiListVehicles)

		// Mutations need a session
		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Post("/orders", h.apiCreateOrder)
			r.Post("/orders/{name}/activate", h.apiActivateOrder)
			r.Post("/orders/{name}/withdraw", h.apiWithdrawOrder)
			r.Delete("/orders/{name}", h.apiDeleteOrder)
			r.Post("/sequences", h.apiCreateSequence)
			r.Post("/sequences/{name}/orders", h.apiCreateSequenceOrder)
			r.Post("/sequences/{name}/complete", h.apiCompleteSequence)
			r.Post("/sequences/{name}/failure-fatal", h.apiSetSequenceFailureFatal)
			r.Delete("/sequences/{name}", h.apiDeleteSequence)
			r.Post("/vehicles/{name}/availability", h.apiSetVehicleAvailability)
		})
	})

	stopFn := func() {
		hub.Stop()
	}

	return r, stopFn
}
