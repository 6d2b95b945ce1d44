package www

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"fleetkernel/order"
)

func (h *Handlers) jsonOK(w http.ResponseWriter, data any) {
	h.jsonStatus(w, http.StatusOK, data)
}

func (h *Handlers) jsonStatus(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// kernelError maps kernel error categories to HTTP status codes.
func (h *Handlers) kernelError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, order.ErrUnknownObject):
		code = http.StatusNotFound
	case errors.Is(err, order.ErrObjectExists):
		code = http.StatusConflict
	case errors.Is(err, order.ErrIllegalArgument):
		code = http.StatusBadRequest
	}
	h.jsonError(w, err.Error(), code)
}

// decodeJSON reads the request body into v. An empty body leaves v as is.
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
