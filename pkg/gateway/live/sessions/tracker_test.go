package sessions

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestTracker_RegisterUnregister_CountAndWait(t *testing.T) {
	tr := NewTracker()
	if tr.Count() != 0 {
		t.Fatalf("initial count=%d, want 0", tr.Count())
	}

	u1 := tr.Register("s1", Handle{})
	u2 := tr.Register("s2", Handle{})
	if tr.Count() != 2 {
		t.Fatalf("count=%d, want 2", tr.Count())
	}

	u1()
	if tr.Count() != 1 {
		t.Fatalf("count=%d, want 1", tr.Count())
	}

	u2()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if ok := tr.Wait(ctx); !ok {
		t.Fatalf("expected Wait to return true")
	}
	if tr.Count() != 0 {
		t.Fatalf("count=%d, want 0", tr.Count())
	}
}

func TestTracker_CancelAll_CallsCancel(t *testing.T) {
	tr := NewTracker()
	var c1, c2 atomic.Int64
	tr.Register("s1", Handle{Cancel: func() { c1.Add(1) }})
	tr.Register("s2", Handle{Cancel: func() { c2.Add(1) }})

	if n := tr.CancelAll(); n != 2 {
		t.Fatalf("canceled=%d, want 2", n)
	}
	if c1.Load() != 1 || c2.Load() != 1 {
		t.Fatalf("cancel calls=%d/%d, want 1/1", c1.Load(), c2.Load())
	}
}

func TestTracker_NotifyAll_CountsDelivered(t *testing.T) {
	tr := NewTracker()
	var n1, n2 atomic.Int64
	tr.Register("s1", Handle{Notify: func(code, message string) error {
		if code != "draining" {
			t.Errorf("code = %q", code)
		}
		n1.Add(1)
		return nil
	}})
	tr.Register("s2", Handle{Notify: func(string, string) error {
		n2.Add(1)
		return errors.New("socket closed")
	}})
	tr.Register("s3", Handle{})

	if sent := tr.NotifyAll("draining", "gateway is shutting down"); sent != 1 {
		t.Fatalf("sent=%d, want 1", sent)
	}
	if n1.Load() != 1 || n2.Load() != 1 {
		t.Fatalf("notify calls=%d/%d, want 1/1", n1.Load(), n2.Load())
	}
}

func TestTracker_ReRegisterReplaces(t *testing.T) {
	tr := NewTracker()
	tr.Register("s1", Handle{Agent: "base"})
	u := tr.Register("s1", Handle{Agent: "google_ads"})
	if tr.Count() != 1 {
		t.Fatalf("count=%d, want 1", tr.Count())
	}
	if got := tr.List()[0].Agent; got != "google_ads" {
		t.Fatalf("agent=%q", got)
	}
	u()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if !tr.Wait(ctx) {
		t.Fatal("replaced entry still counted by Wait")
	}
}

func TestTracker_ListOldestFirst(t *testing.T) {
	tr := NewTracker()
	base := time.Date(2025, 10, 17, 12, 0, 0, 0, time.UTC)
	tr.Register("b", Handle{ConversationID: "c2", StartedAt: base.Add(time.Minute)})
	tr.Register("a", Handle{ConversationID: "c1", StartedAt: base})

	got := tr.List()
	if len(got) != 2 || got[0].ID != "a" || got[1].ConversationID != "c2" {
		t.Fatalf("List() = %+v", got)
	}
}
