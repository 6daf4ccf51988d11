package live

// AudioChunk is an inline audio payload of a model turn.
type AudioChunk struct {
	MIMEType string
	Data     []byte
}

// ServerMessage is one inbound message from the live transport. A single
// message may carry several kinds of content at once.
type ServerMessage struct {
	InputTranscription  string
	OutputTranscription string
	TurnComplete        bool
	Audio               []AudioChunk
	Interrupted         bool
	ToolCalls           []ToolCall
}

// ServerEvent is one demultiplexed piece of a ServerMessage. The concrete
// types are TranscriptionReceived, TurnCompleted, AudioReceived,
// InterruptReceived and ToolCallReceived.
type ServerEvent interface {
	serverEvent()
}

type TranscriptionReceived struct {
	Direction Direction
	Text      string
}

type TurnCompleted struct{}

type AudioReceived struct {
	Chunk AudioChunk
}

type InterruptReceived struct{}

type ToolCallReceived struct {
	Call ToolCall
}

func (TranscriptionReceived) serverEvent() {}
func (TurnCompleted) serverEvent()         {}
func (AudioReceived) serverEvent()         {}
func (InterruptReceived) serverEvent()     {}
func (ToolCallReceived) serverEvent()      {}

// Demux splits msg into events in handling order: transcription deltas,
// turn complete, audio, interruption, then tool calls.
func Demux(msg ServerMessage) []ServerEvent {
	var out []ServerEvent
	if msg.InputTranscription != "" {
		out = append(out, TranscriptionReceived{Direction: DirectionInput, Text: msg.InputTranscription})
	}
	if msg.OutputTranscription != "" {
		out = append(out, TranscriptionReceived{Direction: DirectionOutput, Text: msg.OutputTranscription})
	}
	if msg.TurnComplete {
		out = append(out, TurnCompleted{})
	}
	for _, chunk := range msg.Audio {
		if len(chunk.Data) > 0 {
			out = append(out, AudioReceived{Chunk: chunk})
		}
	}
	if msg.Interrupted {
		out = append(out, InterruptReceived{})
	}
	for _, call := range msg.ToolCalls {
		out = append(out, ToolCallReceived{Call: call})
	}
	return out
}
