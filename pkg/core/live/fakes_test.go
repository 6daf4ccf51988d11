package live

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/hypley-ai/hypley-live/pkg/core/audio"
)

// fakeOutput is a manually driven output clock.
type fakeOutput struct {
	mu      sync.Mutex
	now     time.Duration
	starts  []time.Duration
	sources []*fakeSource
	err     error
}

type fakeSource struct {
	mu      sync.Mutex
	stopped bool
	onEnded func()
}

func (s *fakeSource) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

func (s *fakeSource) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (o *fakeOutput) Now() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

func (o *fakeOutput) setNow(d time.Duration) {
	o.mu.Lock()
	o.now = d
	o.mu.Unlock()
}

func (o *fakeOutput) Start(_ Buffer, at time.Duration, onEnded func()) (Source, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	src := &fakeSource{onEnded: onEnded}
	o.starts = append(o.starts, at)
	o.sources = append(o.sources, src)
	return src, nil
}

func (o *fakeOutput) startTimes() []time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]time.Duration(nil), o.starts...)
}

func (o *fakeOutput) source(i int) *fakeSource {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sources[i]
}

// endAll finishes every source naturally.
func (o *fakeOutput) endAll() {
	o.mu.Lock()
	sources := append([]*fakeSource(nil), o.sources...)
	o.mu.Unlock()
	for _, s := range sources {
		s.onEnded()
	}
}

// bufferOf returns a 1 kHz buffer lasting d.
func bufferOf(d time.Duration) Buffer {
	f := audio.Format(1000)
	return Buffer{Samples: make([]float32, int(d/time.Millisecond)), Format: f}
}

// fakeTransport is an in-memory Transport fed by a channel.
type fakeTransport struct {
	inbound chan ServerMessage
	recvErr chan error

	mu        sync.Mutex
	frames    []AudioFrame
	responses []ToolResponse
	closed    bool
	sendErr   error
	closedCh  chan struct{}
	closeOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound:  make(chan ServerMessage, 16),
		recvErr:  make(chan error, 1),
		closedCh: make(chan struct{}),
	}
}

func (t *fakeTransport) SendAudio(_ context.Context, frame AudioFrame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	t.frames = append(t.frames, frame)
	return nil
}

func (t *fakeTransport) SendToolResponses(_ context.Context, responses []ToolResponse) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.responses = append(t.responses, responses...)
	return nil
}

func (t *fakeTransport) Receive(ctx context.Context) (ServerMessage, error) {
	select {
	case msg := <-t.inbound:
		return msg, nil
	case err := <-t.recvErr:
		return ServerMessage{}, err
	case <-t.closedCh:
		return ServerMessage{}, io.EOF
	case <-ctx.Done():
		return ServerMessage{}, ctx.Err()
	}
}

func (t *fakeTransport) Close() error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		t.mu.Unlock()
		close(t.closedCh)
	})
	return nil
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *fakeTransport) toolResponses() []ToolResponse {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]ToolResponse(nil), t.responses...)
}

func (t *fakeTransport) frameCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.frames)
}

type fakeDialer struct {
	transport *fakeTransport
	err       error
	got       SessionConfig
}

func (d *fakeDialer) Dial(_ context.Context, cfg SessionConfig) (Transport, error) {
	d.got = cfg
	if d.err != nil {
		return nil, d.err
	}
	return d.transport, nil
}

// fakeDevice delivers samples pushed by the test.
type fakeDevice struct {
	mu       sync.Mutex
	err      error
	onData   func([]float32)
	got      Constraints
	closed   int
	closeErr error
	// opening runs inside Open before the stream is returned.
	opening func()
}

func (d *fakeDevice) Open(c Constraints, onData func([]float32)) (io.Closer, error) {
	if d.opening != nil {
		d.opening()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	d.got = c
	d.onData = onData
	return closerFunc(func() error {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.closed++
		return d.closeErr
	}), nil
}

func (d *fakeDevice) push(samples []float32) {
	d.mu.Lock()
	fn := d.onData
	d.mu.Unlock()
	if fn != nil {
		fn(samples)
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// recorder collects observer events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) OnEvent(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}

var errPermissionDenied = errors.New("permission denied")
