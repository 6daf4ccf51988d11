package live

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hypley-ai/hypley-live/pkg/core"
	"github.com/hypley-ai/hypley-live/pkg/core/audio"
)

// ErrCaptureRunning is returned by Start on a pipeline that is already running.
var ErrCaptureRunning = errors.New("live: capture already running")

// ErrCaptureStopped is returned by Start when Stop ran while the device was
// being opened. The opened stream is released.
var ErrCaptureStopped = errors.New("live: capture stopped during start")

// Constraints is what the capture pipeline asks of the input device.
type Constraints struct {
	Format           audio.Format
	EchoCancellation bool
	NoiseSuppression bool
}

// InputDevice is a microphone. Open starts delivering normalized mono
// samples to onData until the returned stream is closed. onData may be
// called from any goroutine and must not be retained past Close.
type InputDevice interface {
	Open(c Constraints, onData func(samples []float32)) (io.Closer, error)
}

// AudioFrame is one outbound window of PCM16 audio.
type AudioFrame struct {
	Data   []byte
	Format audio.Format
}

// FrameSink receives captured frames in capture order.
type FrameSink interface {
	SendAudio(ctx context.Context, frame AudioFrame) error
}

// CaptureStats counts what happened to captured windows.
type CaptureStats struct {
	Sent    int64
	Gated   int64
	Dropped int64
	Failed  int64
}

// Capture turns live microphone input into fixed-size PCM16 frames and hands
// them to a FrameSink. Frames are sent from a dedicated goroutine so a slow
// sink never stalls the device callback; when the bounded queue is full the
// newest frame is dropped.
type Capture struct {
	device InputDevice
	sink   FrameSink
	cfg    CaptureConfig
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	format  audio.Format
	stream  io.Closer
	pending []float32
	queue   chan AudioFrame
	cancel  context.CancelFunc
	done    chan struct{}
	onLevel func(peak float64)

	sent, gated, dropped, failed atomic.Int64
}

// NewCapture creates a stopped capture pipeline.
func NewCapture(device InputDevice, sink FrameSink, cfg CaptureConfig, logger *slog.Logger) *Capture {
	if logger == nil {
		logger = slog.Default()
	}
	return &Capture{
		device: device,
		sink:   sink,
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

// OnLevel registers fn to receive the peak amplitude of every window,
// including gated ones.
func (c *Capture) OnLevel(fn func(peak float64)) {
	c.mu.Lock()
	c.onLevel = fn
	c.mu.Unlock()
}

// Start opens the device and begins streaming. Any failure to acquire the
// device is a device_error and no frame is ever sent.
func (c *Capture) Start(ctx context.Context, constraints Constraints) error {
	if constraints.Format == 0 {
		constraints.Format = audio.L16Mono16K
	}

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrCaptureRunning
	}
	if c.device == nil {
		c.mu.Unlock()
		return core.NewDeviceError("no input device available", nil)
	}
	sendCtx, cancel := context.WithCancel(ctx)
	c.running = true
	c.format = constraints.Format
	c.pending = c.pending[:0]
	c.queue = make(chan AudioFrame, c.cfg.QueueFrames)
	c.cancel = cancel
	c.done = make(chan struct{})
	queue, done := c.queue, c.done
	c.mu.Unlock()

	go c.sendLoop(sendCtx, queue, done)

	stream, err := c.device.Open(constraints, c.push)
	if err != nil {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		cancel()
		<-done
		if core.IsType(err, core.ErrDevice) {
			return err
		}
		return core.NewDeviceError("open input device", err)
	}

	c.mu.Lock()
	if !c.running || c.done != done {
		c.mu.Unlock()
		if err := stream.Close(); err != nil {
			c.logger.Debug("close input device after stop", "error", err)
		}
		return ErrCaptureStopped
	}
	c.stream = stream
	c.mu.Unlock()

	c.logger.Debug("capture started",
		"rate", constraints.Format.SampleRate(),
		"frame_samples", c.cfg.FrameSamples,
		"vad_threshold", c.cfg.VADThreshold,
	)
	return nil
}

// Stop releases the device and the sender. It is safe to call repeatedly and
// on a pipeline that never started. Every resource is released even when
// one of them fails to close.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	stream, cancel, done := c.stream, c.cancel, c.done
	c.stream = nil
	c.pending = nil
	c.mu.Unlock()

	var errs []error
	if stream != nil {
		if err := stream.Close(); err != nil {
			errs = append(errs, core.NewDeviceError("close input device", err))
		}
	}
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	c.logger.Debug("capture stopped", "sent", c.sent.Load(), "gated", c.gated.Load(), "dropped", c.dropped.Load())
	return errors.Join(errs...)
}

// Running reports whether the pipeline is capturing.
func (c *Capture) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Stats returns frame counters since the pipeline was created.
func (c *Capture) Stats() CaptureStats {
	return CaptureStats{
		Sent:    c.sent.Load(),
		Gated:   c.gated.Load(),
		Dropped: c.dropped.Load(),
		Failed:  c.failed.Load(),
	}
}

// push is the device callback.
func (c *Capture) push(samples []float32) {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.pending = append(c.pending, samples...)
	var windows [][]float32
	n := c.cfg.FrameSamples
	for len(c.pending) >= n {
		w := make([]float32, n)
		copy(w, c.pending[:n])
		windows = append(windows, w)
		c.pending = c.pending[n:]
	}
	queue, format, onLevel := c.queue, c.format, c.onLevel
	c.mu.Unlock()

	for _, w := range windows {
		peak := audio.Peak(w)
		if onLevel != nil {
			onLevel(peak)
		}
		if c.cfg.VADThreshold > 0 && peak < c.cfg.VADThreshold {
			c.gated.Add(1)
			continue
		}
		frame := AudioFrame{Data: audio.PCM16Bytes(audio.FloatToPCM16(w)), Format: format}
		select {
		case queue <- frame:
		default:
			c.dropped.Add(1)
		}
	}
}

func (c *Capture) sendLoop(ctx context.Context, queue <-chan AudioFrame, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-queue:
			if err := c.sink.SendAudio(ctx, frame); err != nil {
				c.failed.Add(1)
				if ctx.Err() == nil {
					c.logger.Debug("send audio frame failed", "error", err)
				}
				continue
			}
			c.sent.Add(1)
		}
	}
}
