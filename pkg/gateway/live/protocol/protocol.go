// Package protocol defines the JSON frames of the /v1/live websocket.
//
// The client opens with a hello, then streams microphone audio as
// audio_frame messages (or binary frames when negotiated) and may send
// control operations. The server answers with hello_ack and then session
// events, scheduled audio and errors.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	ProtocolVersion1 = "1"

	AudioTransportBinary     = "binary"
	AudioTransportBase64JSON = "base64_json"

	EncodingPCMS16LE = "pcm_s16le"
)

// Control operations.
const (
	OpStartInput   = "start_input"
	OpStopInput    = "stop_input"
	OpStopPlayback = "stop_playback"
	OpEndSession   = "end_session"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

// AudioFormat describes negotiated live audio shape.
type AudioFormat struct {
	Encoding     string `json:"encoding"`
	SampleRateHz int    `json:"sample_rate_hz"`
	Channels     int    `json:"channels"`
}

type HelloFeatures struct {
	AudioTransport string `json:"audio_transport,omitempty"`
	// StartInput begins streaming microphone audio right after hello_ack.
	StartInput bool `json:"start_input,omitempty"`
}

type ClientHello struct {
	Type              string        `json:"type"`
	ProtocolVersion   string        `json:"protocol_version"`
	ConversationID    string        `json:"conversation_id,omitempty"`
	Agent             string        `json:"agent,omitempty"`
	VoiceStyle        string        `json:"voice_style,omitempty"`
	CustomInstruction string        `json:"custom_instruction,omitempty"`
	ProgrammerLevel   string        `json:"programmer_level,omitempty"`
	Summarized        bool          `json:"summarized,omitempty"`
	AudioIn           AudioFormat   `json:"audio_in"`
	AudioOut          AudioFormat   `json:"audio_out"`
	Features          HelloFeatures `json:"features,omitempty"`
}

// RedactedForLog keeps the hello fields that are safe to log. The custom
// instruction is user text and is reduced to its length.
func (h ClientHello) RedactedForLog() map[string]any {
	return map[string]any{
		"protocol_version":          h.ProtocolVersion,
		"conversation_id":           h.ConversationID,
		"agent":                     h.Agent,
		"voice_style":               h.VoiceStyle,
		"summarized":                h.Summarized,
		"custom_instruction_length": len([]rune(h.CustomInstruction)),
		"audio_transport":           h.Features.AudioTransport,
	}
}

type ClientAudioFrame struct {
	Type    string `json:"type"`
	Seq     int64  `json:"seq,omitempty"`
	DataB64 string `json:"data_b64"`
}

type ClientControl struct {
	Type string `json:"type"`
	Op   string `json:"op"`
}

func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case "hello":
		var msg ClientHello
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid hello frame", "")
		}
		return ValidateHello(msg)
	case "audio_frame":
		var msg ClientAudioFrame
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid audio_frame", "")
		}
		if strings.TrimSpace(msg.DataB64) == "" {
			return nil, badRequest("audio_frame.data_b64 is required", "data_b64")
		}
		return msg, nil
	case "control":
		var msg ClientControl
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid control", "")
		}
		op := strings.TrimSpace(msg.Op)
		if op == "" {
			return nil, badRequest("control.op is required", "op")
		}
		switch op {
		case OpStartInput, OpStopInput, OpStopPlayback, OpEndSession:
		default:
			return nil, unsupported("unsupported control operation", "op")
		}
		msg.Op = op
		return msg, nil
	default:
		return nil, badRequest("unsupported message type", "type")
	}
}

// ValidateHello checks the version and audio formats and fills defaults.
// Input must be 16 kHz and output 24 kHz mono PCM16.
func ValidateHello(msg ClientHello) (ClientHello, error) {
	if v := strings.TrimSpace(msg.ProtocolVersion); v == "" {
		return msg, badRequest("hello.protocol_version is required", "protocol_version")
	} else if v != ProtocolVersion1 {
		return msg, unsupported("unsupported protocol_version", "protocol_version")
	}
	if msg.AudioIn == (AudioFormat{}) {
		msg.AudioIn = AudioFormat{Encoding: EncodingPCMS16LE, SampleRateHz: 16000, Channels: 1}
	}
	if msg.AudioOut == (AudioFormat{}) {
		msg.AudioOut = AudioFormat{Encoding: EncodingPCMS16LE, SampleRateHz: 24000, Channels: 1}
	}
	if !isPCM(msg.AudioIn, 16000) {
		return msg, unsupported("audio_in must be pcm_s16le @16000Hz mono", "audio_in")
	}
	if !isPCM(msg.AudioOut, 24000) {
		return msg, unsupported("audio_out must be pcm_s16le @24000Hz mono", "audio_out")
	}

	transport := strings.TrimSpace(msg.Features.AudioTransport)
	switch transport {
	case "":
		msg.Features.AudioTransport = AudioTransportBase64JSON
	case AudioTransportBinary, AudioTransportBase64JSON:
		msg.Features.AudioTransport = transport
	default:
		return msg, unsupported("unsupported audio transport", "features.audio_transport")
	}
	msg.Agent = strings.TrimSpace(msg.Agent)
	msg.ConversationID = strings.TrimSpace(msg.ConversationID)
	return msg, nil
}

func isPCM(f AudioFormat, rate int) bool {
	return strings.TrimSpace(f.Encoding) == EncodingPCMS16LE && f.SampleRateHz == rate && f.Channels == 1
}

type ServerHelloAck struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	SessionID       string        `json:"session_id"`
	ConversationID  string        `json:"conversation_id"`
	Agent           string        `json:"agent"`
	Voice           string        `json:"voice"`
	AudioIn         AudioFormat   `json:"audio_in"`
	AudioOut        AudioFormat   `json:"audio_out"`
	Features        HelloFeatures `json:"features"`
}

type ServerState struct {
	Type string `json:"type"`
	From string `json:"from"`
	To   string `json:"to"`
}

type ServerTranscript struct {
	Type      string `json:"type"`
	Direction string `json:"direction"`
	Delta     string `json:"delta"`
	Text      string `json:"text"`
}

type ServerTurn struct {
	Type  string `json:"type"`
	User  string `json:"user,omitempty"`
	Model string `json:"model,omitempty"`
}

type ServerSpeaking struct {
	Type     string `json:"type"`
	Speaking bool   `json:"speaking"`
}

type ServerInterrupted struct {
	Type  string `json:"type"`
	Local bool   `json:"local,omitempty"`
}

type ServerTool struct {
	Type     string         `json:"type"`
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Args     map[string]any `json:"args,omitempty"`
	Response map[string]any `json:"response"`
}

// Client-side actions requested by built-in tools.
const (
	ActionSwitchAgent   = "switch_agent"
	ActionCamera        = "camera"
	ActionScreenSharing = "screen_sharing"
)

type ServerAction struct {
	Type    string `json:"type"`
	Action  string `json:"action"`
	Agent   string `json:"agent,omitempty"`
	Enabled *bool  `json:"enabled,omitempty"`
}

// ServerAudio schedules one buffer on the client's playback clock. StartMS
// is measured from the hello_ack. In binary transport DataB64 is empty and
// the PCM follows in the next binary frame.
type ServerAudio struct {
	Type         string `json:"type"`
	ID           string `json:"id"`
	StartMS      int64  `json:"start_ms"`
	DurationMS   int64  `json:"duration_ms"`
	SampleRateHz int    `json:"sample_rate_hz"`
	DataB64      string `json:"data_b64,omitempty"`
}

type ServerAudioStop struct {
	Type string   `json:"type"`
	IDs  []string `json:"ids"`
}

type ServerNotice struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ServerError struct {
	Type    string         `json:"type"`
	Scope   string         `json:"scope"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Close   bool           `json:"close,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}
