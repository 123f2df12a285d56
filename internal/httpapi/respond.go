package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/Ashish23jun/One-Call/internal/apperr"
)

// errorEnvelope is the canonical REST error body.
type errorEnvelope struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError logs the full error and returns the canonical envelope. In
// production the message of an internal error is replaced with a generic
// string so nothing internal leaks to clients.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ae := apperr.From(err)

	logAttrs := []any{"code", ae.Code, "method", r.Method, "path", r.URL.Path}
	if ae.Err != nil {
		logAttrs = append(logAttrs, "cause", ae.Err)
	}
	if ae.Kind == apperr.KindInternal {
		a.log.Error("request failed", logAttrs...)
	} else {
		a.log.Warn("request rejected", logAttrs...)
	}

	message := ae.Message
	if ae.Kind == apperr.KindInternal && a.production {
		message = "internal error"
	}
	writeJSON(w, ae.HTTPStatus(), errorEnvelope{Error: ae.Code, Message: message})
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.New(apperr.KindValidation, "malformed request body").Wrap(err)
	}
	return nil
}
