package live

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/hypley-ai/hypley-live/pkg/core"
	"github.com/hypley-ai/hypley-live/pkg/core/audio"
)

// ErrSessionNotOpen is returned by StartCapture outside the open state.
var ErrSessionNotOpen = errors.New("live: session is not open")

// Transport is an open bidirectional live connection. Its methods must be
// safe for concurrent use: audio frames and tool responses are sent from
// different goroutines.
type Transport interface {
	FrameSink

	SendToolResponses(ctx context.Context, responses []ToolResponse) error

	// Receive blocks for the next server message. It returns io.EOF once the
	// server has closed the stream.
	Receive(ctx context.Context) (ServerMessage, error)

	Close() error
}

// Dialer opens transports.
type Dialer interface {
	Dial(ctx context.Context, cfg SessionConfig) (Transport, error)
}

// SessionOptions are the collaborators of a Session. Output is required.
type SessionOptions struct {
	Output     Output
	Dispatcher *Dispatcher
	Observer   Observer
	Logger     *slog.Logger
	// ID identifies the session in logs. Default: a random UUID.
	ID string
}

// Session owns one live transport and wires server events to playback,
// tools and the observer. Server messages are handled one at a time, in
// arrival order, on a single receive goroutine.
type Session struct {
	id         string
	config     SessionConfig
	dialer     Dialer
	scheduler  *Scheduler
	dispatcher *Dispatcher
	observer   Observer
	logger     *slog.Logger

	mu        sync.Mutex
	state     State
	transport Transport
	capture   *Capture
	cancel    context.CancelFunc
	done      chan struct{}
	closing   bool

	emitMu   sync.Mutex
	speaking atomic.Bool

	// Touched only by the receive goroutine.
	inputText  strings.Builder
	outputText strings.Builder
}

// NewSession creates a session in the connecting state. Nothing is dialed
// until Open.
func NewSession(config SessionConfig, dialer Dialer, opts SessionOptions) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	logger = logger.With("session_id", id)

	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		dispatcher = NewDispatcher(logger)
	}
	if config.OutputFormat == 0 {
		config.OutputFormat = audio.L16Mono24K
	}
	config.Capture = config.Capture.withDefaults()

	s := &Session{
		id:         id,
		config:     config,
		dialer:     dialer,
		scheduler:  NewScheduler(opts.Output, logger),
		dispatcher: dispatcher,
		observer:   opts.Observer,
		logger:     logger,
		state:      StateConnecting,
	}
	s.scheduler.SetSpeakingObserver(s.setSpeaking)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Config returns the session configuration.
func (s *Session) Config() SessionConfig { return s.config }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Scheduler exposes the playback scheduler.
func (s *Session) Scheduler() *Scheduler { return s.scheduler }

// Open dials the transport and starts handling server messages. ctx bounds
// the whole session, not just the dial. A dial failure moves the session to
// errored and is returned as a transport_error.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateConnecting || s.transport != nil || s.closing {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("live: open in state %s", state)
	}
	s.mu.Unlock()

	if s.dialer == nil {
		return s.fail(core.NewTransportError("dial", errors.New("no dialer configured")))
	}
	t, err := s.dialer.Dial(ctx, s.config)
	if err != nil {
		return s.fail(core.NewTransportError("dial", err))
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		cancel()
		_ = t.Close()
		return fmt.Errorf("live: session closed while dialing")
	}
	s.transport = t
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	s.logger.Info("live session open", "model", s.config.Model, "voice", s.config.Voice, "tools", len(s.config.Tools))
	s.setState(StateOpen)

	go s.receiveLoop(runCtx, t, done)
	return nil
}

// StartCapture starts streaming device audio into the open transport. A
// device failure is returned as a device_error and also reported to the
// observer. ErrSessionNotOpen is only returned.
func (s *Session) StartCapture(ctx context.Context, device InputDevice) error {
	s.mu.Lock()
	if s.state != StateOpen || s.transport == nil {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: start capture in state %s", ErrSessionNotOpen, state)
	}
	if s.capture == nil || !s.capture.Running() {
		s.capture = NewCapture(device, s.transport, s.config.Capture, s.logger)
		s.capture.OnLevel(s.onCaptureLevel)
	}
	c := s.capture
	s.mu.Unlock()

	err := c.Start(ctx, Constraints{
		Format:           audio.L16Mono16K,
		EchoCancellation: s.config.Capture.EchoCancellation,
		NoiseSuppression: s.config.Capture.NoiseSuppression,
	})
	if err != nil && !errors.Is(err, ErrCaptureRunning) && !errors.Is(err, ErrCaptureStopped) {
		s.logger.Warn("capture failed to start", "error", err)
		s.emit(&ErrorEvent{Err: err})
	}
	return err
}

// StopInput stops the capture pipeline. Playback continues.
func (s *Session) StopInput() error {
	s.mu.Lock()
	c := s.capture
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	return c.Stop()
}

// StopPlayback cuts all scheduled audio. Capture continues.
func (s *Session) StopPlayback() {
	s.scheduler.Interrupt()
	s.speaking.Store(false)
}

// CaptureStats returns the capture counters, zero before StartCapture.
func (s *Session) CaptureStats() CaptureStats {
	s.mu.Lock()
	c := s.capture
	s.mu.Unlock()
	if c == nil {
		return CaptureStats{}
	}
	return c.Stats()
}

// Close stops capture, stops playback and closes the transport, in that
// order, attempting every step even when one fails. It is idempotent. An
// errored session stays errored.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	t, c, cancel, done := s.transport, s.capture, s.cancel, s.done
	s.mu.Unlock()

	var errs []error
	if c != nil {
		if err := c.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	s.StopPlayback()
	if cancel != nil {
		cancel()
	}
	if t != nil {
		if err := t.Close(); err != nil {
			errs = append(errs, core.NewTransportError("close", err))
		}
	}
	if done != nil {
		<-done
	}

	s.setState(StateClosed)
	s.logger.Info("live session closed")
	return errors.Join(errs...)
}

// receiveLoop handles server messages until the transport ends. When the
// ctx given to Open is cancelled the session is closed as if by Close.
func (s *Session) receiveLoop(ctx context.Context, t Transport, done chan<- struct{}) {
	cancelled := false
	defer func() {
		close(done)
		if cancelled {
			s.logger.Info("live session context done", "error", ctx.Err())
			_ = s.Close()
		}
	}()
	for {
		msg, err := t.Receive(ctx)
		if err != nil {
			if s.isClosing() {
				return
			}
			if ctx.Err() != nil {
				cancelled = true
				return
			}
			if errors.Is(err, io.EOF) {
				s.remoteClosed()
				return
			}
			_ = s.fail(core.NewTransportError("receive", err))
			return
		}
		s.handle(ctx, t, msg)
	}
}

func (s *Session) handle(ctx context.Context, t Transport, msg ServerMessage) {
	for _, ev := range Demux(msg) {
		switch ev := ev.(type) {
		case TranscriptionReceived:
			buf := &s.inputText
			if ev.Direction == DirectionOutput {
				buf = &s.outputText
			}
			buf.WriteString(ev.Text)
			s.emit(&TranscriptDeltaEvent{Direction: ev.Direction, Delta: ev.Text, Text: buf.String()})

		case TurnCompleted:
			user, model := s.inputText.String(), s.outputText.String()
			s.inputText.Reset()
			s.outputText.Reset()
			s.emit(&TurnCompleteEvent{User: user, Model: model})

		case AudioReceived:
			buf, err := s.decode(ev.Chunk)
			if err != nil {
				s.logger.Warn("dropping audio chunk", "error", err, "bytes", len(ev.Chunk.Data))
				continue
			}
			if _, err := s.scheduler.ScheduleBuffer(buf); err != nil {
				s.logger.Warn("dropping audio chunk", "error", err)
			}

		case InterruptReceived:
			s.StopPlayback()
			s.outputText.Reset()
			s.emit(&InterruptedEvent{})

		case ToolCallReceived:
			resp := s.dispatcher.Dispatch(ctx, ev.Call)
			if err := t.SendToolResponses(ctx, []ToolResponse{resp}); err != nil {
				s.logger.Warn("send tool response failed", "id", ev.Call.ID, "name", ev.Call.Name, "error", err)
			}
			s.emit(&ToolCalledEvent{Call: ev.Call, Response: resp})
		}
	}
}

func (s *Session) decode(chunk AudioChunk) (Buffer, error) {
	format := s.config.OutputFormat
	if chunk.MIMEType != "" {
		f, err := audio.ParseMIMEType(chunk.MIMEType)
		if err != nil {
			return Buffer{}, err
		}
		format = f
	}
	samples, err := audio.DecodeFloat(chunk.Data)
	if err != nil {
		return Buffer{}, err
	}
	return Buffer{Samples: samples, Format: format}, nil
}

func (s *Session) onCaptureLevel(peak float64) {
	threshold := s.config.BargeInThreshold
	if threshold <= 0 || peak <= threshold || s.scheduler.Active() == 0 {
		return
	}
	s.logger.Debug("local barge-in", "peak", peak)
	s.StopPlayback()
	s.emit(&InterruptedEvent{Local: true})
}

// fail moves the session to errored and applies the error policy. Capture
// and playback are only released when the policy asks for it.
func (s *Session) fail(err error) error {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return err
	}
	t, c := s.transport, s.capture
	s.mu.Unlock()

	s.logger.Error("live session failed", "error", err)
	s.setState(StateErrored)
	s.emit(&ErrorEvent{Err: err})

	if s.config.OnError.StopCapture && c != nil {
		if cerr := c.Stop(); cerr != nil {
			s.logger.Warn("stop capture after error", "error", cerr)
		}
	}
	if s.config.OnError.StopPlayback {
		s.StopPlayback()
	}
	if t != nil {
		_ = t.Close()
	}
	return err
}

// remoteClosed handles the server ending the stream. Capture stops because
// nothing can receive it; audio already scheduled plays out.
func (s *Session) remoteClosed() {
	s.mu.Lock()
	t, c := s.transport, s.capture
	s.mu.Unlock()

	if c != nil {
		if err := c.Stop(); err != nil {
			s.logger.Warn("stop capture after remote close", "error", err)
		}
	}
	if t != nil {
		_ = t.Close()
	}
	s.logger.Info("live session closed by server")
	s.setState(StateClosed)
}

func (s *Session) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *Session) setSpeaking(v bool) {
	if s.speaking.Swap(v) != v {
		s.emit(&SpeakingEvent{Speaking: v})
	}
}

// setState updates the session state and emits an event. Terminal states
// are never left.
func (s *Session) setState(newState State) {
	s.mu.Lock()
	oldState := s.state
	if oldState.Terminal() || oldState == newState {
		s.mu.Unlock()
		return
	}
	s.state = newState
	s.mu.Unlock()

	s.logger.Debug("live state", "from", oldState.String(), "to", newState.String())
	s.emit(&StateChangedEvent{From: oldState, To: newState})
}

func (s *Session) emit(event Event) {
	if s.observer == nil {
		return
	}
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	s.observer.OnEvent(event)
}
