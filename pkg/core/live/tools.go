package live

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/hypley-ai/hypley-live/pkg/core"
)

// Schema is the subset of OpenAPI schema used by function declarations.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

// ToolDeclaration is a function the model may call.
type ToolDeclaration struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Parameters  *Schema `json:"parameters,omitempty"`
}

// ToolCall is a pending function call received mid-turn.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// ToolResponse answers a ToolCall with the same ID and name.
type ToolResponse struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// ToolHandler executes one function. It must return promptly: side effects
// that wait on a UI belong in a goroutine started by the handler.
type ToolHandler func(ctx context.Context, args map[string]any) (map[string]any, error)

// Dispatcher maps function names to handlers.
type Dispatcher struct {
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[string]ToolHandler
	decls    map[string]ToolDeclaration
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		logger:   logger,
		handlers: make(map[string]ToolHandler),
		decls:    make(map[string]ToolDeclaration),
	}
}

// Register adds or replaces the handler for decl.Name.
func (d *Dispatcher) Register(decl ToolDeclaration, h ToolHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[decl.Name] = h
	d.decls[decl.Name] = decl
}

// Declarations returns the registered declarations sorted by name.
func (d *Dispatcher) Declarations() []ToolDeclaration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]ToolDeclaration, 0, len(d.decls))
	for _, decl := range d.decls {
		out = append(out, decl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Dispatch runs the handler registered for call.Name and always returns a
// response correlated to the call. Unknown names are acknowledged as a no-op
// and handler errors are reported in the payload, so a bad call never ends
// the session.
func (d *Dispatcher) Dispatch(ctx context.Context, call ToolCall) ToolResponse {
	resp := ToolResponse{ID: call.ID, Name: call.Name}

	d.mu.RLock()
	h, ok := d.handlers[call.Name]
	d.mu.RUnlock()
	if !ok {
		err := core.NewUnknownToolError(call.Name)
		d.logger.Warn("tool call ignored", "id", call.ID, "error", err)
		resp.Response = map[string]any{"result": "ok", "noop": true}
		return resp
	}

	out, err := h(ctx, call.Args)
	if err != nil {
		d.logger.Warn("tool call failed", "id", call.ID, "name", call.Name, "error", err)
		resp.Response = map[string]any{"error": err.Error()}
		return resp
	}
	if out == nil {
		out = map[string]any{"result": "ok"}
	}
	resp.Response = out
	return resp
}
