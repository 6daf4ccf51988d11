package audio

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/hypley-ai/hypley-live/pkg/core"
)

func TestFormat(t *testing.T) {
	if got := L16Mono16K.MIMEType(); got != "audio/pcm;rate=16000" {
		t.Errorf("MIMEType() = %q", got)
	}
	if got := L16Mono24K.Duration(48000); got != time.Second {
		t.Errorf("Duration(48000) = %v, want 1s", got)
	}
	if got := L16Mono16K.BytesInDuration(100 * time.Millisecond); got != 3200 {
		t.Errorf("BytesInDuration(100ms) = %d, want 3200", got)
	}
	if got := L16Mono16K.SamplesDuration(4096); got != 256*time.Millisecond {
		t.Errorf("SamplesDuration(4096) = %v, want 256ms", got)
	}
}

func TestParseMIMEType(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"audio/pcm;rate=24000", L16Mono24K, false},
		{"audio/pcm; rate=16000", L16Mono16K, false},
		{"audio/pcm", L16Mono24K, false},
		{"audio/L16;codec=pcm;rate=24000", L16Mono24K, false},
		{"audio/pcm;rate=abc", 0, true},
		{"audio/opus", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMIMEType(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMIMEType() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !core.IsType(err, core.ErrDecode) {
				t.Errorf("error type = %v, want decode_error", err)
			}
			if got != tt.want {
				t.Errorf("ParseMIMEType() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWAVHeader(t *testing.T) {
	pcm := make([]byte, 100)
	wav := WAV(pcm, L16Mono24K)
	if len(wav) != 144 {
		t.Fatalf("len = %d, want 144", len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" || string(wav[36:40]) != "data" {
		t.Fatal("missing RIFF/WAVE/data markers")
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 24000 {
		t.Errorf("sample rate = %d, want 24000", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != 100 {
		t.Errorf("data size = %d, want 100", got)
	}
}
