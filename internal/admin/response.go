package admin

import (
	"encoding/json"
	"net/http"
	"time"
)

// response wraps every admin API reply, mirroring the teacher's
// (repurposed-from-dittofs) status/timestamp/data/error envelope.
type response struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func ok(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, response{Status: "ok", Timestamp: time.Now().UTC(), Data: data})
}

func fail(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, response{Status: "error", Timestamp: time.Now().UTC(), Error: err.Error()})
}
