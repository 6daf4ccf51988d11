package lifecycle

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
)

// Lifecycle holds process readiness: the draining flag set on shutdown and
// the dependency checks behind /readyz.
type Lifecycle struct {
	draining atomic.Bool

	mu     sync.Mutex
	checks map[string]func(context.Context) error
}

func (l *Lifecycle) SetDraining(draining bool) {
	if l == nil {
		return
	}
	l.draining.Store(draining)
}

func (l *Lifecycle) IsDraining() bool {
	if l == nil {
		return false
	}
	return l.draining.Load()
}

// AddCheck registers a named readiness check, replacing any with that name.
func (l *Lifecycle) AddCheck(name string, check func(context.Context) error) {
	if l == nil || check == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.checks == nil {
		l.checks = make(map[string]func(context.Context) error)
	}
	l.checks[name] = check
}

// Issues runs every check and returns "name: error" for each failure,
// sorted by name. Draining is reported as an issue too.
func (l *Lifecycle) Issues(ctx context.Context) []string {
	if l == nil {
		return nil
	}
	var issues []string
	if l.IsDraining() {
		issues = append(issues, "draining")
	}

	l.mu.Lock()
	names := make([]string, 0, len(l.checks))
	checks := make(map[string]func(context.Context) error, len(l.checks))
	for name, c := range l.checks {
		names = append(names, name)
		checks[name] = c
	}
	l.mu.Unlock()
	sort.Strings(names)

	for _, name := range names {
		if err := checks[name](ctx); err != nil {
			issues = append(issues, name+": "+err.Error())
		}
	}
	return issues
}
