// Package session relays one browser websocket to a live model session. The
// browser is both microphone and speaker: its audio frames feed capture and
// scheduled model audio is sent back with start offsets on a shared clock.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hypley-ai/hypley-live/pkg/core"
	"github.com/hypley-ai/hypley-live/pkg/core/audio"
	"github.com/hypley-ai/hypley-live/pkg/core/live"
	"github.com/hypley-ai/hypley-live/pkg/core/persona"
	"github.com/hypley-ai/hypley-live/pkg/gateway/live/protocol"
	"github.com/hypley-ai/hypley-live/pkg/gateway/metrics"
	"github.com/hypley-ai/hypley-live/pkg/store"
)

const (
	outboundPriorityQueueSize = 16
	maxStoppedAudioIDs        = 256
	turnQueueSize             = 16
)

var errBackpressure = errors.New("live outbound backpressure")

type Config struct {
	MaxAudioFrameBytes     int
	MaxJSONMessageBytes    int64
	MaxAudioFPS            int
	MaxAudioBytesPerSecond int64
	InboundBurstSeconds    int
	PingInterval           time.Duration
	WriteTimeout           time.Duration
	ReadTimeout            time.Duration
	MaxSessionDuration     time.Duration
	StoreTimeout           time.Duration
	OutboundQueueSize      int
}

type Dependencies struct {
	Conn    *websocket.Conn
	Logger  *slog.Logger
	Dialer  live.Dialer
	Metrics *metrics.Metrics
	Catalog *persona.Catalog
	Store   store.Store
	Titles  TitleSummarizer

	// Live is the composed model session configuration.
	Live  live.SessionConfig
	Hello protocol.ClientHello

	SessionID      string
	ConversationID string
	Agent          string
	// NewConversation is set when no prior messages exist, so the first
	// turn names the conversation.
	NewConversation bool

	Config    Config
	StartTime time.Time
	Now       func() time.Time
}

// Relay runs one live session for one websocket.
type Relay struct {
	conn    *websocket.Conn
	logger  *slog.Logger
	dialer  live.Dialer
	metrics *metrics.Metrics
	catalog *persona.Catalog
	hello   protocol.ClientHello
	liveCfg live.SessionConfig
	cfg     Config
	now     func() time.Time
	start   time.Time

	sessionID      string
	conversationID string
	agent          atomic.Value // string

	ctx    context.Context
	cancel context.CancelFunc

	outboundPriority chan outboundFrame
	outboundNormal   chan outboundFrame

	stoppedMu    sync.Mutex
	stopped      map[string]struct{}
	stoppedOrder []string

	input    *remoteInput
	output   *remoteOutput
	sess     *live.Session
	recorder *turnRecorder
	turns    chan completedTurn

	// Observer-side state, touched only from OnEvent.
	errored  bool
	liveDone chan struct{}
	doneOnce sync.Once
}

func New(deps Dependencies) (*Relay, error) {
	if deps.Conn == nil {
		return nil, fmt.Errorf("connection is required")
	}
	if deps.Dialer == nil {
		return nil, fmt.Errorf("dialer is required")
	}
	if strings.TrimSpace(deps.ConversationID) == "" {
		return nil, fmt.Errorf("conversation id is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Catalog == nil {
		deps.Catalog = persona.DefaultCatalog()
	}
	if deps.Config.OutboundQueueSize <= 0 {
		deps.Config.OutboundQueueSize = 256
	}
	if deps.Config.StoreTimeout <= 0 {
		deps.Config.StoreTimeout = 10 * time.Second
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.StartTime.IsZero() {
		deps.StartTime = deps.Now()
	}
	if deps.SessionID == "" {
		deps.SessionID = store.NewID()
	}

	ctx, cancel := context.WithCancel(context.Background())
	logger := deps.Logger.With("session_id", deps.SessionID, "conversation_id", deps.ConversationID)
	r := &Relay{
		conn:             deps.Conn,
		logger:           logger,
		dialer:           deps.Dialer,
		metrics:          deps.Metrics,
		catalog:          deps.Catalog,
		hello:            deps.Hello,
		liveCfg:          deps.Live,
		cfg:              deps.Config,
		now:              deps.Now,
		start:            deps.StartTime,
		sessionID:        deps.SessionID,
		conversationID:   deps.ConversationID,
		ctx:              ctx,
		cancel:           cancel,
		outboundPriority: make(chan outboundFrame, outboundPriorityQueueSize),
		outboundNormal:   make(chan outboundFrame, deps.Config.OutboundQueueSize),
		stopped:          make(map[string]struct{}),
		input:            &remoteInput{},
		turns:            make(chan completedTurn, turnQueueSize),
		liveDone:         make(chan struct{}),
		recorder: &turnRecorder{
			store:          deps.Store,
			titles:         deps.Titles,
			logger:         logger,
			conversationID: deps.ConversationID,
			needsTitle:     deps.NewConversation,
			timeout:        deps.Config.StoreTimeout,
		},
	}
	r.agent.Store(deps.Agent)
	r.output = newRemoteOutput(deps.StartTime, deps.Now, r)

	dispatcher := live.NewDispatcher(logger)
	live.RegisterBuiltins(dispatcher, live.Actions{
		SwitchAgent:      r.switchAgent,
		SetCamera:        func(on bool) { r.sendAction(protocol.ActionCamera, "", &on) },
		SetScreenSharing: func(on bool) { r.sendAction(protocol.ActionScreenSharing, "", &on) },
	}, deps.Now)

	r.sess = live.NewSession(deps.Live, deps.Dialer, live.SessionOptions{
		Output:     r.output,
		Dispatcher: dispatcher,
		Observer:   r,
		Logger:     deps.Logger.With("conversation_id", deps.ConversationID),
		ID:         deps.SessionID,
	})
	return r, nil
}

// Run serves the websocket until the client leaves, the model session ends
// or Cancel is called. The hello frame has already been read.
func (r *Relay) Run() error {
	defer r.cancel()

	if r.cfg.MaxJSONMessageBytes > 0 {
		limit := r.cfg.MaxJSONMessageBytes
		if int64(r.cfg.MaxAudioFrameBytes) > limit {
			limit = int64(r.cfg.MaxAudioFrameBytes)
		}
		r.conn.SetReadLimit(limit)
	}
	if r.cfg.ReadTimeout > 0 {
		_ = r.conn.SetReadDeadline(time.Now().Add(r.cfg.ReadTimeout))
		r.conn.SetPongHandler(func(string) error {
			return r.conn.SetReadDeadline(time.Now().Add(r.cfg.ReadTimeout))
		})
	}

	writerErrCh := make(chan error, 1)
	go func() {
		w := outboundWriter{
			ws:        r.conn,
			ctx:       r.ctx,
			cfg:       r.cfg,
			priority:  r.outboundPriority,
			normal:    r.outboundNormal,
			isStopped: r.isStopped,
		}
		writerErrCh <- w.Run()
		close(writerErrCh)
	}()
	flushAndClose := func() {
		r.cancel()
		wait := 100 * time.Millisecond
		if r.cfg.WriteTimeout > 0 && r.cfg.WriteTimeout < wait {
			wait = r.cfg.WriteTimeout
		}
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-writerErrCh:
		case <-timer.C:
		}
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.recorder.run(r.ctx, r.turns)
	}()
	defer func() {
		close(r.turns)
		wg.Wait()
	}()

	r.metrics.RecordLiveSessionStart()
	defer func() {
		r.metrics.RecordLiveSessionEnd(r.sess.State(), r.now().Sub(r.start), r.sess.CaptureStats())
	}()

	// Audio offsets count from here, just ahead of the hello_ack.
	r.output.start = r.now()
	if err := r.sess.Open(r.ctx); err != nil {
		// The observer already sent the closing error frame.
		flushAndClose()
		return err
	}
	defer r.sess.Close()

	if err := r.sendJSONPriority(protocol.ServerHelloAck{
		Type:            "hello_ack",
		ProtocolVersion: protocol.ProtocolVersion1,
		SessionID:       r.sessionID,
		ConversationID:  r.conversationID,
		Agent:           r.currentAgent(),
		Voice:           r.liveCfg.Voice,
		AudioIn:         r.hello.AudioIn,
		AudioOut:        r.hello.AudioOut,
		Features:        r.hello.Features,
	}); err != nil {
		return err
	}
	r.logger.Info("live relay started", "agent", r.currentAgent(), "voice", r.liveCfg.Voice, "audio_transport", r.hello.Features.AudioTransport)

	if r.hello.Features.StartInput {
		r.startInput()
	}

	var maxDuration <-chan time.Time
	if r.cfg.MaxSessionDuration > 0 {
		t := time.NewTimer(r.cfg.MaxSessionDuration)
		defer t.Stop()
		maxDuration = t.C
	}

	readCh := make(chan inboundFrame, 64)
	go r.readLoop(readCh)
	limiter := newFrameLimiter(r.now, r.cfg.MaxAudioFPS, r.cfg.MaxAudioBytesPerSecond, r.cfg.InboundBurstSeconds)

	for {
		select {
		case <-r.ctx.Done():
			flushAndClose()
			return nil

		case err, ok := <-writerErrCh:
			if ok && err != nil {
				r.logger.Warn("live writer failed", "error", err)
			}
			return nil

		case <-r.liveDone:
			flushAndClose()
			return nil

		case <-maxDuration:
			_ = r.sendJSONPriority(protocol.ServerError{Type: "error", Scope: "session", Code: "session_expired", Message: "maximum session duration reached", Close: true})
			flushAndClose()
			return nil

		case in, ok := <-readCh:
			if !ok {
				return nil
			}
			if in.err != nil {
				if websocket.IsCloseError(in.err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					r.logger.Info("client closed live relay")
				} else if r.ctx.Err() == nil {
					r.logger.Warn("live read failed", "error", in.err)
				}
				return nil
			}
			if end := r.handleInbound(in, limiter); end {
				flushAndClose()
				return nil
			}
		}
	}
}

type inboundFrame struct {
	messageType int
	data        []byte
	err         error
}

func (r *Relay) readLoop(out chan<- inboundFrame) {
	defer close(out)
	for {
		messageType, data, err := r.conn.ReadMessage()
		if err != nil {
			select {
			case out <- inboundFrame{err: err}:
			case <-r.ctx.Done():
			}
			return
		}
		select {
		case out <- inboundFrame{messageType: messageType, data: data}:
		case <-r.ctx.Done():
			return
		}
	}
}

// handleInbound applies one client frame and reports whether the relay
// should end.
func (r *Relay) handleInbound(in inboundFrame, limiter *frameLimiter) bool {
	if in.messageType == websocket.BinaryMessage {
		if r.hello.Features.AudioTransport != protocol.AudioTransportBinary {
			r.sendProtocolError(&protocol.DecodeError{Code: "bad_request", Message: "binary frames require audio_transport=binary"})
			return false
		}
		r.feedAudio(in.data, limiter)
		return false
	}

	msg, err := protocol.DecodeClientMessage(in.data)
	if err != nil {
		r.sendProtocolError(err)
		return false
	}
	switch m := msg.(type) {
	case protocol.ClientAudioFrame:
		pcm, err := audio.DecodeBase64(m.DataB64)
		if err != nil {
			r.sendError("input", err, false)
			return false
		}
		r.feedAudio(pcm, limiter)
	case protocol.ClientControl:
		switch m.Op {
		case protocol.OpStartInput:
			r.startInput()
		case protocol.OpStopInput:
			if err := r.sess.StopInput(); err != nil {
				r.logger.Warn("stop input failed", "error", err)
			}
		case protocol.OpStopPlayback:
			r.sess.StopPlayback()
		case protocol.OpEndSession:
			r.logger.Info("client ended live session")
			return true
		}
	case protocol.ClientHello:
		r.sendProtocolError(&protocol.DecodeError{Code: "bad_request", Message: "hello already received", Param: "type"})
	}
	return false
}

// startInput starts capture from the client. Device failures reach the
// client once, through the session's ErrorEvent.
func (r *Relay) startInput() {
	err := r.sess.StartCapture(r.ctx, r.input)
	switch {
	case err == nil, errors.Is(err, live.ErrCaptureRunning), errors.Is(err, live.ErrCaptureStopped):
	case errors.Is(err, live.ErrSessionNotOpen):
		r.sendError("input", err, false)
	default:
		r.logger.Debug("start input failed", "error", err)
	}
}

func (r *Relay) feedAudio(pcm []byte, limiter *frameLimiter) {
	if r.cfg.MaxAudioFrameBytes > 0 && len(pcm) > r.cfg.MaxAudioFrameBytes {
		r.sendProtocolError(&protocol.DecodeError{Code: "bad_request", Message: "audio frame too large", Param: "data_b64"})
		return
	}
	if !limiter.Allow(len(pcm)) {
		r.logger.Debug("inbound audio rate limited", "bytes", len(pcm))
		return
	}
	ok, err := r.input.feed(pcm)
	if err != nil {
		r.sendError("input", err, false)
		return
	}
	if ok {
		r.metrics.RecordLiveAudio("in", len(pcm))
	}
}

// OnEvent maps model session events to client frames. It runs on the model
// session's goroutines and never calls back into the session.
func (r *Relay) OnEvent(ev live.Event) {
	r.metrics.ObserveEvent(ev)

	switch e := ev.(type) {
	case *live.StateChangedEvent:
		_ = r.sendJSON(protocol.ServerState{Type: "state", From: e.From.String(), To: e.To.String()})
		switch e.To {
		case live.StateErrored:
			r.errored = true
		case live.StateClosed:
			r.endLive()
		}

	case *live.ErrorEvent:
		if r.errored {
			r.sendError("session", e.Err, true)
			r.endLive()
			return
		}
		r.sendError("input", e.Err, false)

	case *live.TranscriptDeltaEvent:
		_ = r.sendJSON(protocol.ServerTranscript{Type: "transcript", Direction: string(e.Direction), Delta: e.Delta, Text: e.Text})

	case *live.TurnCompleteEvent:
		_ = r.sendJSON(protocol.ServerTurn{Type: "turn", User: e.User, Model: e.Model})
		select {
		case r.turns <- completedTurn{user: e.User, model: e.Model, agent: r.currentAgent()}:
		default:
			r.logger.Warn("turn dropped, history writer is behind")
		}

	case *live.SpeakingEvent:
		_ = r.sendJSON(protocol.ServerSpeaking{Type: "speaking", Speaking: e.Speaking})

	case *live.InterruptedEvent:
		_ = r.sendJSONPriority(protocol.ServerInterrupted{Type: "interrupted", Local: e.Local})

	case *live.ToolCalledEvent:
		_ = r.sendJSON(protocol.ServerTool{Type: "tool", ID: e.Call.ID, Name: e.Call.Name, Args: e.Call.Args, Response: e.Response.Response})
	}
}

func (r *Relay) endLive() {
	r.doneOnce.Do(func() { close(r.liveDone) })
}

func (r *Relay) switchAgent(name string) {
	agent, ok := r.catalog.Lookup(name)
	if !ok {
		r.logger.Info("switch to unknown agent", "requested", name)
		_ = r.sendJSON(protocol.ServerNotice{Type: "notice", Code: "unknown_agent", Message: fmt.Sprintf("agent %q not found", name)})
		return
	}
	r.agent.Store(agent.ID)
	r.logger.Info("agent switched", "agent", agent.ID)
	r.sendAction(protocol.ActionSwitchAgent, agent.ID, nil)
}

func (r *Relay) sendAction(action, agent string, enabled *bool) {
	_ = r.sendJSON(protocol.ServerAction{Type: "action", Action: action, Agent: agent, Enabled: enabled})
}

func (r *Relay) currentAgent() string {
	s, _ := r.agent.Load().(string)
	return s
}

func (r *Relay) sendAudio(id string, at, dur time.Duration, f audio.Format, pcm []byte) error {
	header := protocol.ServerAudio{
		Type:         "audio",
		ID:           id,
		StartMS:      at.Milliseconds(),
		DurationMS:   dur.Milliseconds(),
		SampleRateHz: f.SampleRate(),
	}
	frame := outboundFrame{audioID: id}
	if r.hello.Features.AudioTransport == protocol.AudioTransportBinary {
		frame.binary = pcm
	} else {
		header.DataB64 = audio.EncodeBytes(pcm)
	}
	payload, err := json.Marshal(header)
	if err != nil {
		return err
	}
	frame.text = payload
	if err := r.enqueueNormal(frame); err != nil {
		return err
	}
	r.metrics.RecordLiveAudio("out", len(pcm))
	return nil
}

func (r *Relay) stopAudio(id string) {
	r.markStopped(id)
	_ = r.sendJSONPriority(protocol.ServerAudioStop{Type: "audio_stop", IDs: []string{id}})
}

func (r *Relay) markStopped(id string) {
	r.stoppedMu.Lock()
	defer r.stoppedMu.Unlock()
	if _, ok := r.stopped[id]; ok {
		return
	}
	r.stopped[id] = struct{}{}
	r.stoppedOrder = append(r.stoppedOrder, id)
	for len(r.stoppedOrder) > maxStoppedAudioIDs {
		delete(r.stopped, r.stoppedOrder[0])
		r.stoppedOrder = r.stoppedOrder[1:]
	}
}

func (r *Relay) isStopped(id string) bool {
	r.stoppedMu.Lock()
	defer r.stoppedMu.Unlock()
	_, ok := r.stopped[id]
	return ok
}

func (r *Relay) sendError(scope string, err error, closing bool) {
	code := string(core.ErrAPI)
	var cerr *core.Error
	if errors.As(err, &cerr) {
		code = string(cerr.Type)
	}
	msg := protocol.ServerError{Type: "error", Scope: scope, Code: code, Message: err.Error(), Close: closing}
	if cerr != nil && cerr.RetryAfter != nil {
		msg.Details = map[string]any{"retry_after": *cerr.RetryAfter}
	}
	if closing {
		_ = r.sendJSONPriority(msg)
		return
	}
	_ = r.sendJSON(msg)
}

func (r *Relay) sendProtocolError(err error) {
	msg := protocol.ServerError{Type: "error", Scope: "protocol", Code: "bad_request", Message: err.Error()}
	var de *protocol.DecodeError
	if errors.As(err, &de) {
		msg.Code = de.Code
		if de.Param != "" {
			msg.Details = map[string]any{"param": de.Param}
		}
	}
	_ = r.sendJSON(msg)
}

func (r *Relay) sendJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.enqueueNormal(outboundFrame{text: payload})
}

func (r *Relay) sendJSONPriority(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.enqueuePriority(outboundFrame{text: payload})
}

func (r *Relay) enqueueNormal(frame outboundFrame) error {
	if frame.audioID != "" && r.isStopped(frame.audioID) {
		return nil
	}
	select {
	case r.outboundNormal <- frame:
		return nil
	default:
		return errBackpressure
	}
}

// enqueuePriority makes room by dropping the oldest priority frames.
func (r *Relay) enqueuePriority(frame outboundFrame) error {
	for i := 0; i < 4; i++ {
		select {
		case r.outboundPriority <- frame:
			return nil
		default:
		}
		select {
		case <-r.outboundPriority:
		default:
		}
	}
	return errBackpressure
}

// ID returns the relay session id.
func (r *Relay) ID() string { return r.sessionID }

// Cancel ends the relay.
func (r *Relay) Cancel() {
	if r == nil || r.cancel == nil {
		return
	}
	r.cancel()
}

// Notify sends an advisory notice to the client.
func (r *Relay) Notify(code, message string) error {
	if r == nil {
		return nil
	}
	return r.sendJSONPriority(protocol.ServerNotice{Type: "notice", Code: code, Message: message})
}
