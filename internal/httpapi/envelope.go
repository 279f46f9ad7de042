package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/basecrew/taskscheduler/internal/core"
)

// envelope is the wire shape every response takes (spec §6 "responses
// are JSON objects of the shape {data, meta?, result?, error?}").
type envelope struct {
	Data   any            `json:"data,omitempty"`
	Meta   any            `json:"meta,omitempty"`
	Result any            `json:"result,omitempty"`
	Error  *errorEnvelope `json:"error,omitempty"`
}

type errorEnvelope struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Data: data})
}

func writeDataMeta(w http.ResponseWriter, status int, data, meta any) {
	writeJSON(w, status, envelope{Data: data, Meta: meta})
}

func writeResult(w http.ResponseWriter, status int, result any) {
	writeJSON(w, status, envelope{Result: result})
}

// writeError maps a core.Error's Kind to an HTTP status (spec §7
// "Validation and not-found errors propagate to the caller as 4xx").
func writeError(w http.ResponseWriter, err error) {
	kind := core.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case core.ErrValidationFailed:
		status = http.StatusBadRequest
	case core.ErrNotFound:
		status = http.StatusNotFound
	case core.ErrConflict:
		status = http.StatusConflict
	case core.ErrPermissionDenied:
		status = http.StatusForbidden
	case core.ErrTimeout:
		status = http.StatusGatewayTimeout
	case core.ErrPersistent, core.ErrSpawnFailed, core.ErrInternal:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, envelope{Error: &errorEnvelope{Kind: string(kind), Message: err.Error()}})
}
