package gemini

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/hypley-ai/hypley-live/pkg/core"
	"github.com/hypley-ai/hypley-live/pkg/core/live"
)

// liveSession is the part of *genai.Session the transport uses.
type liveSession interface {
	SendRealtimeInput(input genai.LiveRealtimeInput) error
	SendToolResponse(input genai.LiveToolResponseInput) error
	Receive() (*genai.LiveServerMessage, error)
	Close() error
}

// Dialer opens Live API sessions. It implements live.Dialer.
type Dialer struct {
	connect func(ctx context.Context, model string, cfg *genai.LiveConnectConfig) (liveSession, error)
	logger  *slog.Logger
}

// Dial connects with the model, voice, instruction, tools and transcription
// settings of cfg.
func (d *Dialer) Dial(ctx context.Context, cfg live.SessionConfig) (live.Transport, error) {
	model := cfg.Model
	if model == "" {
		model = live.DefaultModel
	}
	sess, err := d.connect(ctx, model, buildConnectConfig(cfg))
	if err != nil {
		return nil, classify("live connect", err)
	}
	d.logger.Debug("live session connected", "model", model, "voice", cfg.Voice, "tools", len(cfg.Tools))
	return newTransport(sess), nil
}

type received struct {
	msg *genai.LiveServerMessage
	err error
}

// Transport adapts a Live session to live.Transport. A single reader
// goroutine pulls from the websocket so Receive can honor its context.
type Transport struct {
	sess liveSession

	sendMu sync.Mutex
	inbox  chan received
	done   chan struct{}

	closeOnce sync.Once
	closeErr  error
}

func newTransport(sess liveSession) *Transport {
	t := &Transport{
		sess:  sess,
		inbox: make(chan received),
		done:  make(chan struct{}),
	}
	go t.readLoop()
	return t
}

func (t *Transport) readLoop() {
	for {
		msg, err := t.sess.Receive()
		select {
		case t.inbox <- received{msg: msg, err: err}:
		case <-t.done:
			return
		}
		if err != nil {
			return
		}
	}
}

// SendAudio streams one microphone frame.
func (t *Transport) SendAudio(_ context.Context, frame live.AudioFrame) error {
	mime := frame.Format.MIMEType()
	if frame.Format == 0 {
		mime = InputMIMEType
	}
	t.sendMu.Lock()
	defer t.sendMu.Unlock()
	err := t.sess.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{Data: frame.Data, MIMEType: mime},
	})
	if err != nil {
		return core.NewTransportError("send audio", err)
	}
	return nil
}

// SendToolResponses answers tool calls in one message.
func (t *Transport) SendToolResponses(_ context.Context, responses []live.ToolResponse) error {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()
	err := t.sess.SendToolResponse(genai.LiveToolResponseInput{
		FunctionResponses: convertToolResponses(responses),
	})
	if err != nil {
		return core.NewTransportError("send tool response", err)
	}
	return nil
}

// Receive returns the next server message, or io.EOF once the server or a
// local Close has ended the stream.
func (t *Transport) Receive(ctx context.Context) (live.ServerMessage, error) {
	select {
	case <-ctx.Done():
		return live.ServerMessage{}, ctx.Err()
	case <-t.done:
		return live.ServerMessage{}, io.EOF
	case r := <-t.inbox:
		if r.err != nil {
			if isClosed(r.err) {
				return live.ServerMessage{}, io.EOF
			}
			return live.ServerMessage{}, classify("live receive", r.err)
		}
		return convertServerMessage(r.msg), nil
	}
}

// Close ends the session. It is safe to call more than once.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
		if err := t.sess.Close(); err != nil && !isClosed(err) {
			t.closeErr = core.NewTransportError("close", err)
		}
	})
	return t.closeErr
}

func isClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, websocket.ErrCloseSent) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
