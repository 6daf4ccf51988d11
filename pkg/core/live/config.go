package live

import "github.com/hypley-ai/hypley-live/pkg/core/audio"

// State is the connection state of a live session.
type State int

const (
	// StateConnecting is the initial state while the transport is dialed.
	StateConnecting State = iota
	// StateOpen is an established session exchanging audio.
	StateOpen
	// StateClosed is reached by Close or when the server ends the stream.
	StateClosed
	// StateErrored is terminal. A new session is required to reconnect.
	StateErrored
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateErrored
}

// SessionConfig holds everything needed to open a live session.
type SessionConfig struct {
	// Model is the live model identifier.
	Model string `json:"model"`

	// Voice is the prebuilt output voice. Default: "Kore".
	Voice string `json:"voice,omitempty"`

	// SystemInstruction is the composed persona and rules text.
	SystemInstruction string `json:"system_instruction,omitempty"`

	// Tools are the function declarations offered to the model.
	Tools []ToolDeclaration `json:"tools,omitempty"`

	// GoogleSearch enables grounding with search alongside the tools.
	GoogleSearch bool `json:"google_search,omitempty"`

	// InputTranscription and OutputTranscription ask the server for deltas
	// of what the user said and what the model said. Default: true.
	InputTranscription  bool `json:"input_transcription"`
	OutputTranscription bool `json:"output_transcription"`

	// OutputFormat is the format of inbound model audio when the payload does
	// not carry a rate. Default: 24 kHz.
	OutputFormat audio.Format `json:"output_format,omitempty"`

	Capture CaptureConfig `json:"capture"`

	OnError ErrorPolicy `json:"on_error"`

	// BargeInThreshold interrupts playback locally when a captured window's
	// peak amplitude exceeds it while model audio is playing. 0 disables.
	BargeInThreshold float64 `json:"barge_in_threshold,omitempty"`
}

// CaptureConfig configures the microphone pipeline.
type CaptureConfig struct {
	// FrameSamples is the window size. Must be a power of two. Default: 4096.
	FrameSamples int `json:"frame_samples"`

	// VADThreshold suppresses frames whose peak amplitude is below it.
	// Range 0.0 to 1.0. 0 sends every frame. Default: 0.
	VADThreshold float64 `json:"vad_threshold,omitempty"`

	// QueueFrames bounds how many frames may wait for the sink.
	// Default: 8.
	QueueFrames int `json:"queue_frames"`

	EchoCancellation bool `json:"echo_cancellation"`
	NoiseSuppression bool `json:"noise_suppression"`
}

// ErrorPolicy decides what the session releases when the transport fails.
// The zero value leaves capture and playback to the caller.
type ErrorPolicy struct {
	StopCapture  bool `json:"stop_capture"`
	StopPlayback bool `json:"stop_playback"`
}

// DefaultSessionConfig returns a SessionConfig with sensible defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Model:               DefaultModel,
		Voice:               DefaultVoice,
		InputTranscription:  true,
		OutputTranscription: true,
		GoogleSearch:        true,
		OutputFormat:        audio.L16Mono24K,
		Capture:             DefaultCaptureConfig(),
	}
}

const (
	DefaultModel = "gemini-2.5-flash-native-audio-preview-09-2025"
	DefaultVoice = "Kore"
)

// DefaultCaptureConfig returns the 16 kHz, 4096-sample capture setup.
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		FrameSamples:     4096,
		QueueFrames:      8,
		EchoCancellation: true,
		NoiseSuppression: true,
	}
}

func (c CaptureConfig) withDefaults() CaptureConfig {
	d := DefaultCaptureConfig()
	if c.FrameSamples <= 0 || c.FrameSamples&(c.FrameSamples-1) != 0 {
		c.FrameSamples = d.FrameSamples
	}
	if c.QueueFrames <= 0 {
		c.QueueFrames = d.QueueFrames
	}
	return c
}
