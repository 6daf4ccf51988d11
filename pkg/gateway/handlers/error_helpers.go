package handlers

import (
	"net/http"

	"github.com/hypley-ai/hypley-live/pkg/core"
	"github.com/hypley-ai/hypley-live/pkg/gateway/mw"
)

func requestID(r *http.Request) string {
	id, _ := mw.RequestIDFrom(r.Context())
	return id
}

func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	mw.WriteError(w, r, err)
}

// writeStatus writes e with a status other than the one its type maps to.
func writeStatus(w http.ResponseWriter, r *http.Request, status int, e *core.Error) {
	if e.RequestID == "" {
		e.RequestID = requestID(r)
	}
	mw.WriteJSONError(w, status, e)
}

func unavailable(w http.ResponseWriter, r *http.Request, code, msg string) {
	writeStatus(w, r, http.StatusServiceUnavailable, &core.Error{Type: core.ErrAPI, Message: msg, Code: code})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, r, http.StatusMethodNotAllowed, &core.Error{Type: core.ErrInvalidRequest, Message: "method not allowed", Code: "method_not_allowed"})
}
