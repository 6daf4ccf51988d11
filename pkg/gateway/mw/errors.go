package mw

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hypley-ai/hypley-live/pkg/core"
)

var statusByType = map[core.ErrorType]int{
	core.ErrInvalidRequest: http.StatusBadRequest,
	core.ErrDecode:         http.StatusBadRequest,
	core.ErrUnknownTool:    http.StatusBadRequest,
	core.ErrNotFound:       http.StatusNotFound,
	core.ErrQuota:          http.StatusTooManyRequests,
	core.ErrAPI:            http.StatusBadGateway,
	core.ErrTransport:      http.StatusBadGateway,
	core.ErrDevice:         http.StatusServiceUnavailable,
}

// StatusFor maps an error type onto the HTTP status the gateway answers with.
func StatusFor(t core.ErrorType) int {
	if s, ok := statusByType[t]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Canonical converts err into the wire error and its status. Anything that
// is not a *core.Error is reported as an opaque internal error; causes never
// leave the process.
func Canonical(err error, requestID string) (*core.Error, int) {
	var ce *core.Error
	switch {
	case err == nil:
		return nil, http.StatusOK
	case errors.Is(err, context.DeadlineExceeded):
		return &core.Error{Type: core.ErrAPI, Message: "request timeout", Code: "timeout", RequestID: requestID}, http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return &core.Error{Type: core.ErrAPI, Message: "request cancelled", Code: "cancelled", RequestID: requestID}, http.StatusRequestTimeout
	case errors.As(err, &ce) && ce != nil:
		out := *ce
		out.Cause = nil
		out.RequestID = requestID
		return &out, StatusFor(ce.Type)
	default:
		return &core.Error{Type: core.ErrAPI, Message: "internal error", RequestID: requestID}, http.StatusInternalServerError
	}
}

// WriteError writes err in the error envelope, tagged with the request id.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	id, _ := RequestIDFrom(r.Context())
	ce, status := Canonical(err, id)
	WriteJSONError(w, status, ce)
}

// WriteJSONError writes {"error": err} with the given status.
func WriteJSONError(w http.ResponseWriter, status int, err *core.Error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Error *core.Error `json:"error"`
	}{err})
}
