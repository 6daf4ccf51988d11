package mw

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
)

// StatusWriter remembers the status and body size of a response. Flush and
// Hijack pass through so the /v1/live upgrade still works behind it.
type StatusWriter struct {
	http.ResponseWriter
	Status   int
	Bytes    int64
	Upgraded bool
}

func NewStatusWriter(w http.ResponseWriter) *StatusWriter {
	if sw, ok := w.(*StatusWriter); ok {
		return sw
	}
	return &StatusWriter{ResponseWriter: w, Status: http.StatusOK}
}

func (w *StatusWriter) WriteHeader(code int) {
	w.Status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *StatusWriter) Write(p []byte) (int, error) {
	n, err := w.ResponseWriter.Write(p)
	w.Bytes += int64(n)
	return n, err
}

func (w *StatusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *StatusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("mw: %T cannot be hijacked", w.ResponseWriter)
	}
	w.Upgraded = true
	w.Status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (w *StatusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
