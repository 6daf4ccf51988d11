package session

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

type wsWriter interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// outboundFrame is one queued write. Audio frames carry the id of their
// scheduled buffer so stopped buffers can be skipped before hitting the wire.
type outboundFrame struct {
	audioID string

	text   []byte
	binary []byte // sent right after text when both are set
}

// outboundWriter owns every write to the websocket. Priority frames (stops,
// errors, notices) always go before queued audio.
type outboundWriter struct {
	ws        wsWriter
	ctx       context.Context
	cfg       Config
	priority  <-chan outboundFrame
	normal    <-chan outboundFrame
	isStopped func(audioID string) bool
}

func (w *outboundWriter) Run() error {
	if w == nil || w.ws == nil {
		return nil
	}

	pingInterval := w.cfg.PingInterval
	if pingInterval <= 0 {
		pingInterval = 20 * time.Second
	}
	writeTimeout := w.cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	var done <-chan struct{}
	if w.ctx != nil {
		done = w.ctx.Done()
	}

	for {
		select {
		case <-done:
			w.drainPriority(writeTimeout)
			_ = w.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeTimeout))
			_ = w.ws.Close()
			return nil
		default:
		}

		select {
		case frame, ok := <-w.priority:
			if !ok {
				w.priority = nil
				continue
			}
			if err := w.write(frame, writeTimeout); err != nil {
				return err
			}
			continue
		default:
		}

		if w.priority == nil && w.normal == nil {
			return nil
		}

		select {
		case <-done:
		case <-ping.C:
			if err := w.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return err
			}
		case frame, ok := <-w.priority:
			if !ok {
				w.priority = nil
				continue
			}
			if err := w.write(frame, writeTimeout); err != nil {
				return err
			}
		case frame, ok := <-w.normal:
			if !ok {
				w.normal = nil
				continue
			}
			if err := w.write(frame, writeTimeout); err != nil {
				return err
			}
		}
	}
}

// drainPriority writes what is still queued as priority, bounded in time, so
// a closing error frame reaches the client.
func (w *outboundWriter) drainPriority(writeTimeout time.Duration) {
	if w.priority == nil {
		return
	}
	budget := 100 * time.Millisecond
	if writeTimeout < budget {
		budget = writeTimeout
	}
	deadline := time.Now().Add(budget)
	for i := 0; i < 8 && time.Now().Before(deadline); i++ {
		select {
		case frame, ok := <-w.priority:
			if !ok {
				return
			}
			_ = w.write(frame, writeTimeout)
		default:
			return
		}
	}
}

func (w *outboundWriter) write(frame outboundFrame, writeTimeout time.Duration) error {
	if frame.audioID != "" && w.isStopped != nil && w.isStopped(frame.audioID) {
		return nil
	}
	deadline := time.Now().Add(writeTimeout)
	if len(frame.text) > 0 {
		if err := w.ws.SetWriteDeadline(deadline); err != nil {
			return err
		}
		if err := w.ws.WriteMessage(websocket.TextMessage, frame.text); err != nil {
			return err
		}
	}
	if len(frame.binary) > 0 {
		if err := w.ws.SetWriteDeadline(deadline); err != nil {
			return err
		}
		return w.ws.WriteMessage(websocket.BinaryMessage, frame.binary)
	}
	return nil
}
