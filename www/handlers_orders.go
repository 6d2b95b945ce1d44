package www

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"fleetkernel/archive"
	"fleetkernel/order"
	"fleetkernel/protocol"
	"fleetkernel/store"
)

func (h *Handlers) apiListOrders(w http.ResponseWriter, r *http.Request) {
	state := order.State(r.URL.Query().Get("state"))
	vehicle := r.URL.Query().Get("vehicle")
	orders := h.engine.Pool().TransportOrders(func(o *order.TransportOrder) bool {
		if state != "" && o.State() != state {
			return false
		}
		return vehicle == "" || o.ProcessingVehicle() == vehicle || o.IntendedVehicle() == vehicle
	})
	out := make([]order.TransportOrderSnapshot, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.Snapshot())
	}
	h.jsonOK(w, out)
}

// apiGetOrder serves an order from the pool, or its archived snapshot once
// the cleaner has removed it.
func (h *Handlers) apiGetOrder(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	o, err := h.engine.Pool().TransportOrder(name)
	if err == nil {
		h.jsonOK(w, o.Snapshot())
		return
	}
	if h.archive != nil {
		if data, aerr := h.archive.Get(r.Context(), archive.OrderKey(name)); aerr == nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Archived", "true")
			w.Write(data)
			return
		}
	}
	h.kernelError(w, err)
}

func (h *Handlers) apiOrderHistory(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	history, err := h.engine.DB().ListObjectHistory(order.KindTransportOrder, name)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	rejections, err := h.engine.DB().ListRejections(name)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if len(history) == 0 {
		h.jsonError(w, "unknown order "+name, http.StatusNotFound)
		return
	}
	audit, _ := h.engine.DB().ListEntityAudit(store.AuditOrder, name)
	h.jsonOK(w, map[string]any{
		"history":    history,
		"rejections": rejections,
		"audit":      audit,
	})
}

func (h *Handlers) apiCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req protocol.TransportOrderCreationTO
	if err := decodeJSON(r, &req); err != nil {
		h.jsonError(w, "invalid request", http.StatusBadRequest)
		return
	}
	h.createOrder(w, r, &req)
}

func (h *Handlers) createOrder(w http.ResponseWriter, r *http.Request, req *protocol.TransportOrderCreationTO) {
	o, err := h.engine.CreateTransportOrder(req.Creation())
	if err != nil {
		h.kernelError(w, err)
		return
	}
	h.engine.DB().AppendAudit(store.AuditOrder, o.Name(), "api_create", "", "", h.actor(r))
	h.jsonStatus(w, http.StatusCreated, o.Snapshot())
}

func (h *Handlers) apiActivateOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.engine.ActivateTransportOrder(chi.URLParam(r, "name"))
	if err != nil {
		h.kernelError(w, err)
		return
	}
	h.jsonOK(w, o.Snapshot())
}

func (h *Handlers) apiWithdrawOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Immediate bool `json:"immediate"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.jsonError(w, "invalid request", http.StatusBadRequest)
		return
	}
	name := chi.URLParam(r, "name")
	if err := h.engine.WithdrawTransportOrder(name, req.Immediate); err != nil {
		h.kernelError(w, err)
		return
	}
	h.engine.DB().AppendAudit(store.AuditOrder, name, "api_withdraw", "", "", h.actor(r))
	o, err := h.engine.Pool().TransportOrder(name)
	if err != nil {
		h.kernelError(w, err)
		return
	}
	h.jsonOK(w, o.Snapshot())
}

func (h *Handlers) apiDeleteOrder(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.engine.DeleteTransportOrder(name); err != nil {
		h.kernelError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
