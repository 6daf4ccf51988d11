package lifecycle

import (
	"context"
	"errors"
	"testing"
)

func TestLifecycle_Issues(t *testing.T) {
	var l Lifecycle
	if got := l.Issues(context.Background()); len(got) != 0 {
		t.Fatalf("fresh lifecycle issues = %v", got)
	}

	l.AddCheck("store", func(context.Context) error { return errors.New("connection refused") })
	l.AddCheck("catalog", func(context.Context) error { return nil })
	l.SetDraining(true)

	got := l.Issues(context.Background())
	want := []string{"draining", "store: connection refused"}
	if len(got) != len(want) {
		t.Fatalf("Issues() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Issues()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLifecycle_NilSafe(t *testing.T) {
	var l *Lifecycle
	l.SetDraining(true)
	if l.IsDraining() {
		t.Fatal("nil lifecycle reported draining")
	}
	if l.Issues(context.Background()) != nil {
		t.Fatal("nil lifecycle reported issues")
	}
}
