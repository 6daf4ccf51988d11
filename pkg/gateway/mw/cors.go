package mw

import (
	"net/http"
	"strings"

	"github.com/hypley-ai/hypley-live/pkg/core"
)

const (
	corsMethods = "GET, POST, OPTIONS"
	corsHeaders = "Content-Type, X-Request-ID"
	corsExposed = "X-Request-ID, X-Conversation-ID, X-Agent"
	corsMaxAge  = "600"
)

// CORS answers preflights and tags responses for allowlisted browser
// origins. The "*" entry admits any origin.
func CORS(allowed map[string]struct{}, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
		ok := origin != "" && OriginAllowed(allowed, origin)

		if ok {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			if !preflight {
				h.Set("Access-Control-Expose-Headers", corsExposed)
			}
		}
		if !preflight {
			next.ServeHTTP(w, r)
			return
		}
		if !ok {
			WriteJSONError(w, http.StatusForbidden, &core.Error{
				Type:    core.ErrInvalidRequest,
				Message: "origin is not allowed",
				Param:   "Origin",
			})
			return
		}
		h := w.Header()
		h.Set("Access-Control-Allow-Methods", corsMethods)
		h.Set("Access-Control-Allow-Headers", corsHeaders)
		h.Set("Access-Control-Max-Age", corsMaxAge)
		w.WriteHeader(http.StatusNoContent)
	})
}

// OriginAllowed reports whether origin may call the gateway. Requests
// without an Origin header do not come from a browser and always pass.
func OriginAllowed(allowed map[string]struct{}, origin string) bool {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return true
	}
	if _, any := allowed["*"]; any {
		return true
	}
	_, ok := allowed[origin]
	return ok
}
