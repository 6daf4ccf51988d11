package session

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hypley-ai/hypley-live/pkg/core"
	"github.com/hypley-ai/hypley-live/pkg/core/audio"
	"github.com/hypley-ai/hypley-live/pkg/core/live"
)

// audioSink ships scheduled buffers to the client and cancels them.
type audioSink interface {
	sendAudio(id string, at, dur time.Duration, f audio.Format, pcm []byte) error
	stopAudio(id string)
}

// remoteOutput is a live.Output whose speaker is the browser. Its clock is
// wall time since the hello_ack; each buffer is sent with its start offset
// and reported ended once its end time has passed.
type remoteOutput struct {
	start     time.Time
	now       func() time.Time
	sink      audioSink
	afterFunc func(d time.Duration, f func()) (stop func() bool)

	seq atomic.Int64
}

func newRemoteOutput(start time.Time, now func() time.Time, sink audioSink) *remoteOutput {
	return &remoteOutput{
		start: start,
		now:   now,
		sink:  sink,
		afterFunc: func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		},
	}
}

func (o *remoteOutput) Now() time.Duration {
	return o.now().Sub(o.start)
}

func (o *remoteOutput) Start(buf live.Buffer, at time.Duration, onEnded func()) (live.Source, error) {
	id := fmt.Sprintf("a_%d", o.seq.Add(1))
	dur := buf.Duration()
	pcm := audio.PCM16Bytes(audio.FloatToPCM16(buf.Samples))
	if err := o.sink.sendAudio(id, at, dur, buf.Format, pcm); err != nil {
		return nil, err
	}

	wait := at + dur - o.Now()
	if wait < 0 {
		wait = 0
	}
	src := &remoteSource{id: id, sink: o.sink}
	src.stopTimer = o.afterFunc(wait, func() {
		if src.finish() {
			onEnded()
		}
	})
	return src, nil
}

type remoteSource struct {
	id        string
	sink      audioSink
	stopTimer func() bool
	done      atomic.Bool
}

// finish marks the source over and reports whether this call did it.
func (s *remoteSource) finish() bool {
	return s.done.CompareAndSwap(false, true)
}

func (s *remoteSource) Stop() {
	if !s.finish() {
		return
	}
	if s.stopTimer != nil {
		s.stopTimer()
	}
	s.sink.stopAudio(s.id)
}

// remoteInput is a live.InputDevice fed by audio frames from the client.
type remoteInput struct {
	mu     sync.Mutex
	onData func(samples []float32)
}

func (in *remoteInput) Open(c live.Constraints, onData func(samples []float32)) (io.Closer, error) {
	if c.Format != audio.L16Mono16K {
		return nil, core.NewDeviceError(fmt.Sprintf("client audio is %s, capture wants %s", audio.L16Mono16K, c.Format), nil)
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.onData != nil {
		return nil, core.NewDeviceError("client input already open", nil)
	}
	in.onData = onData
	return closerFunc(func() error {
		in.mu.Lock()
		in.onData = nil
		in.mu.Unlock()
		return nil
	}), nil
}

// feed delivers one PCM16 frame. It reports false when capture is not
// running and the frame was discarded.
func (in *remoteInput) feed(pcm []byte) (bool, error) {
	samples, err := audio.DecodeFloat(pcm)
	if err != nil {
		return false, err
	}
	in.mu.Lock()
	fn := in.onData
	in.mu.Unlock()
	if fn == nil {
		return false, nil
	}
	fn(samples)
	return true, nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
