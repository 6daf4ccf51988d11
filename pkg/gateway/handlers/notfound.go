package handlers

import (
	"net/http"

	"github.com/hypley-ai/hypley-live/pkg/core"
)

type NotFoundHandler struct{}

func (h NotFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeErr(w, r, core.NewNotFoundError("no route for "+r.Method+" "+r.URL.Path))
}
