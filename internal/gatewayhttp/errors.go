package gatewayhttp

import (
	"encoding/json"
	"net/http"

	"github.com/kirogate/kirogate/internal/gatewayerr"
	"github.com/kirogate/kirogate/internal/gatewaylog"
)

type errorEnvelope struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// writeError maps err to the gatewayerr.Error envelope and status code,
// defaulting to InternalError for anything else.
func writeError(w http.ResponseWriter, err error) {
	ge, ok := gatewayerr.As(err)
	if !ok {
		ge = gatewayerr.NewInternalError(err, "unexpected error")
	}
	if ge.Kind == gatewayerr.InternalError {
		gatewaylog.Error("internal error", "err", ge.Error())
	}

	var env errorEnvelope
	env.Error.Type = ge.EnvelopeType()
	env.Error.Message = ge.Message

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ge.Kind.Status())
	_ = json.NewEncoder(w).Encode(env)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
