package www

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"fleetkernel/order"
	"fleetkernel/protocol"
	"fleetkernel/store"
)

func (h *Handlers) apiListSequences(w http.ResponseWriter, r *http.Request) {
	seqs := h.engine.Pool().OrderSequences()
	out := make([]order.OrderSequenceSnapshot, 0, len(seqs))
	for _, s := range seqs {
		out = append(out, s.Snapshot())
	}
	h.jsonOK(w, out)
}

func (h *Handlers) apiGetSequence(w http.ResponseWriter, r *http.Request) {
	s, err := h.engine.Pool().OrderSequence(chi.URLParam(r, "name"))
	if err != nil {
		h.kernelError(w, err)
		return
	}
	h.jsonOK(w, s.Snapshot())
}

func (h *Handlers) apiCreateSequence(w http.ResponseWriter, r *http.Request) {
	var req protocol.OrderSequenceCreationTO
	if err := decodeJSON(r, &req); err != nil {
		h.jsonError(w, "invalid request", http.StatusBadRequest)
		return
	}
	s, err := h.engine.CreateOrderSequence(req.Creation())
	if err != nil {
		h.kernelError(w, err)
		return
	}
	h.engine.DB().AppendAudit(store.AuditSequence, s.Name(), "api_create", "", "", h.actor(r))
	h.jsonStatus(w, http.StatusCreated, s.Snapshot())
}

// apiCreateSequenceOrder creates a transport order as the next member of
// the sequence in the path.
func (h *Handlers) apiCreateSequenceOrder(w http.ResponseWriter, r *http.Request) {
	var req protocol.TransportOrderCreationTO
	if err := decodeJSON(r, &req); err != nil {
		h.jsonError(w, "invalid request", http.StatusBadRequest)
		return
	}
	req.WrappingSequence = chi.URLParam(r, "name")
	h.createOrder(w, r, &req)
}

func (h *Handlers) apiCompleteSequence(w http.ResponseWriter, r *http.Request) {
	s, err := h.engine.CompleteOrderSequence(chi.URLParam(r, "name"))
	if err != nil {
		h.kernelError(w, err)
		return
	}
	h.engine.DB().AppendAudit(store.AuditSequence, s.Name(), "api_complete", "", "", h.actor(r))
	h.jsonOK(w, s.Snapshot())
}

func (h *Handlers) apiSetSequenceFailureFatal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FailureFatal bool `json:"failure_fatal"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.jsonError(w, "invalid request", http.StatusBadRequest)
		return
	}
	s, err := h.engine.SetSequenceFailureFatal(chi.URLParam(r, "name"), req.FailureFatal)
	if err != nil {
		h.kernelError(w, err)
		return
	}
	h.engine.DB().AppendAudit(store.AuditSequence, s.Name(), "failure_fatal", "", strconv.FormatBool(req.FailureFatal), h.actor(r))
	h.jsonOK(w, s.Snapshot())
}

func (h *Handlers) apiDeleteSequence(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeleteOrderSequence(chi.URLParam(r, "name")); err != nil {
		h.kernelError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
