package protocol

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestDecodeClientMessage_Hello(t *testing.T) {
	raw := []byte(`{
		"type":"hello",
		"protocol_version":"1",
		"conversation_id":" conv-1 ",
		"agent":"gideao",
		"audio_in":{"encoding":"pcm_s16le","sample_rate_hz":16000,"channels":1},
		"audio_out":{"encoding":"pcm_s16le","sample_rate_hz":24000,"channels":1},
		"features":{"audio_transport":"binary"}
	}`)

	msg, err := DecodeClientMessage(raw)
	if err != nil {
		t.Fatalf("DecodeClientMessage() error = %v", err)
	}
	hello, ok := msg.(ClientHello)
	if !ok {
		t.Fatalf("decoded type = %T, want ClientHello", msg)
	}
	if hello.ConversationID != "conv-1" {
		t.Errorf("conversation_id=%q", hello.ConversationID)
	}
	if hello.Features.AudioTransport != AudioTransportBinary {
		t.Errorf("audio_transport=%q", hello.Features.AudioTransport)
	}
}

func TestValidateHello_Defaults(t *testing.T) {
	hello, err := ValidateHello(ClientHello{Type: "hello", ProtocolVersion: "1"})
	if err != nil {
		t.Fatalf("ValidateHello() error = %v", err)
	}
	if hello.AudioIn.SampleRateHz != 16000 || hello.AudioOut.SampleRateHz != 24000 {
		t.Errorf("formats = %+v / %+v", hello.AudioIn, hello.AudioOut)
	}
	if hello.Features.AudioTransport != AudioTransportBase64JSON {
		t.Errorf("audio_transport=%q", hello.Features.AudioTransport)
	}
}

func TestDecodeClientMessage_Errors(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		code  string
		param string
	}{
		{"invalid json", `{`, "bad_request", ""},
		{"missing type", `{"op":"x"}`, "bad_request", "type"},
		{"unknown type", `{"type":"video"}`, "bad_request", "type"},
		{"missing version", `{"type":"hello"}`, "bad_request", "protocol_version"},
		{"wrong version", `{"type":"hello","protocol_version":"2"}`, "unsupported", "protocol_version"},
		{"wrong input rate", `{"type":"hello","protocol_version":"1","audio_in":{"encoding":"pcm_s16le","sample_rate_hz":48000,"channels":1}}`, "unsupported", "audio_in"},
		{"wrong output channels", `{"type":"hello","protocol_version":"1","audio_out":{"encoding":"pcm_s16le","sample_rate_hz":24000,"channels":2}}`, "unsupported", "audio_out"},
		{"bad transport", `{"type":"hello","protocol_version":"1","features":{"audio_transport":"opus"}}`, "unsupported", "features.audio_transport"},
		{"empty audio", `{"type":"audio_frame","data_b64":""}`, "bad_request", "data_b64"},
		{"missing op", `{"type":"control"}`, "bad_request", "op"},
		{"unknown op", `{"type":"control","op":"rewind"}`, "unsupported", "op"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeClientMessage([]byte(tt.raw))
			de, ok := err.(*DecodeError)
			if !ok {
				t.Fatalf("error = %T %v, want *DecodeError", err, err)
			}
			if de.Code != tt.code || de.Param != tt.param {
				t.Errorf("got code=%q param=%q, want %q %q", de.Code, de.Param, tt.code, tt.param)
			}
		})
	}
}

func TestDecodeClientMessage_Control(t *testing.T) {
	for _, op := range []string{OpStartInput, OpStopInput, OpStopPlayback, OpEndSession} {
		msg, err := DecodeClientMessage([]byte(`{"type":"control","op":" ` + op + ` "}`))
		if err != nil {
			t.Fatalf("%s: error = %v", op, err)
		}
		ctrl, ok := msg.(ClientControl)
		if !ok || ctrl.Op != op {
			t.Errorf("%s: decoded %#v", op, msg)
		}
	}
}

func TestDecodeClientMessage_AudioFrame(t *testing.T) {
	msg, err := DecodeClientMessage([]byte(`{"type":"audio_frame","seq":7,"data_b64":"AAA="}`))
	if err != nil {
		t.Fatalf("error = %v", err)
	}
	frame := msg.(ClientAudioFrame)
	if frame.Seq != 7 || frame.DataB64 != "AAA=" {
		t.Errorf("frame = %+v", frame)
	}
}

func TestRedactedForLog(t *testing.T) {
	h := ClientHello{ProtocolVersion: "1", Agent: "hypley", CustomInstruction: "segredo pessoal"}
	out := h.RedactedForLog()
	raw, _ := json.Marshal(out)
	if strings.Contains(string(raw), "segredo") {
		t.Fatalf("custom instruction leaked: %s", raw)
	}
	if out["custom_instruction_length"] != 15 {
		t.Errorf("length = %v", out["custom_instruction_length"])
	}
}

func TestServerFramesOmitEmpty(t *testing.T) {
	raw, err := json.Marshal(ServerAudio{Type: "audio", ID: "a1", StartMS: 120, DurationMS: 40})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "data_b64") {
		t.Errorf("binary-transport audio header carries data_b64: %s", raw)
	}
	enabled := true
	raw, _ = json.Marshal(ServerAction{Type: "action", Action: ActionCamera, Enabled: &enabled})
	if !strings.Contains(string(raw), `"enabled":true`) {
		t.Errorf("action = %s", raw)
	}
}
