package live

// Event is the interface for all live session events delivered to an Observer.
type Event interface {
	// EventType returns the event type string for serialization.
	EventType() string
}

// Observer receives session events synchronously, in order, from the
// session's receive goroutine or from the goroutine calling a lifecycle
// method. It must not call back into the Session.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

// StateChangedEvent is emitted when the session state changes.
type StateChangedEvent struct {
	From State `json:"from"`
	To   State `json:"to"`
}

func (e *StateChangedEvent) EventType() string { return "state.changed" }

// Direction tells whose speech a transcript belongs to.
type Direction string

const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

// TranscriptDeltaEvent carries a transcription delta and the turn text so far.
type TranscriptDeltaEvent struct {
	Direction Direction `json:"direction"`
	Delta     string    `json:"delta"`
	Text      string    `json:"text"`
}

func (e *TranscriptDeltaEvent) EventType() string { return "transcript.delta" }

// TurnCompleteEvent carries the final utterances of a turn. Either may be
// empty.
type TurnCompleteEvent struct {
	User  string `json:"user,omitempty"`
	Model string `json:"model,omitempty"`
}

func (e *TurnCompleteEvent) EventType() string { return "turn.completed" }

// SpeakingEvent reports model audio starting or finishing naturally.
type SpeakingEvent struct {
	Speaking bool `json:"speaking"`
}

func (e *SpeakingEvent) EventType() string { return "speaking.changed" }

// InterruptedEvent is emitted when playback was cut, by the server or by
// local barge-in.
type InterruptedEvent struct {
	Local bool `json:"local,omitempty"`
}

func (e *InterruptedEvent) EventType() string { return "interrupted" }

// ToolCalledEvent is emitted after a tool call was answered.
type ToolCalledEvent struct {
	Call     ToolCall     `json:"call"`
	Response ToolResponse `json:"response"`
}

func (e *ToolCalledEvent) EventType() string { return "tool.called" }

// ErrorEvent reports a transport or device failure.
type ErrorEvent struct {
	Err error `json:"-"`
}

func (e *ErrorEvent) EventType() string { return "error" }
