package www

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"fleetkernel/fleet"
	"fleetkernel/order"
)

func (h *Handlers) apiHealthCheck(w http.ResponseWriter, r *http.Request) {
	fleetOK := h.engine.Fleet().Ping() == nil
	msgOK := false
	if c := h.engine.MsgClient(); c != nil {
		msgOK = c.IsConnected()
	}
	counts := make(map[order.State]int)
	for _, o := range h.engine.Pool().TransportOrders(nil) {
		counts[o.State()]++
	}
	pending, err := h.engine.DB().PendingOutboxCount()
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	h.jsonOK(w, map[string]any{
		"status":         "ok",
		"fleet":          fleetOK,
		"fleet_backend":  h.engine.Fleet().Name(),
		"messaging":      msgOK,
		"orders":         counts,
		"outbox_pending": pending,
		"sse_clients":    h.eventHub.ClientCount(),
	})
}

type vehicleView struct {
	fleet.VehicleStatus
	CachedOrder string `json:"cached_order,omitempty"`
}

func (h *Handlers) apiListVehicles(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.engine.Fleet().Vehicles()
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadGateway)
		return
	}
	out := make([]vehicleView, 0, len(statuses))
	for _, s := range statuses {
		v := vehicleView{VehicleStatus: s}
		if st := h.engine.OrderState(); st != nil {
			v.CachedOrder = st.VehicleOrder(s.Name)
		}
		out = append(out, v)
	}
	h.jsonOK(w, out)
}

func (h *Handlers) apiSetVehicleAvailability(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Available bool `json:"available"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.jsonError(w, "invalid request", http.StatusBadRequest)
		return
	}
	ac, ok := h.engine.Fleet().(fleet.AvailabilityController)
	if !ok {
		h.jsonError(w, "fleet backend does not support availability control", http.StatusNotImplemented)
		return
	}
	name := chi.URLParam(r, "name")
	if err := ac.SetAvailability(name, req.Available); err != nil {
		h.jsonError(w, err.Error(), http.StatusNotFound)
		return
	}
	h.engine.Dispatcher().Trigger()
	h.jsonOK(w, map[string]string{"status": "ok"})
}
