// Package httputil holds small helpers shared by HTTP handlers.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/terrabox-data/relief.live/internal/monitoring"
)

// WriteJSON encodes v as the response body with the given status. Encoding
// failures are logged; the status line has already been sent by then.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		monitoring.Logf("httputil: encoding JSON response: %v", err)
	}
}

// WriteJSONOK writes v with a 200 status.
func WriteJSONOK(w http.ResponseWriter, v interface{}) {
	WriteJSON(w, http.StatusOK, v)
}

// WriteJSONError writes an {"error": msg} body with the given status.
func WriteJSONError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"error": msg})
}
