package audio

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hypley-ai/hypley-live/pkg/core"
)

// Format describes a mono 16-bit PCM stream by its sample rate.
type Format int

const (
	// L16Mono16K is microphone capture: 16 kHz.
	L16Mono16K Format = 16000
	// L16Mono24K is model speech output: 24 kHz.
	L16Mono24K Format = 24000
)

func (f Format) SampleRate() int { return int(f) }

func (f Format) Channels() int { return 1 }

// BytesPerSecond is the byte rate of the stream.
func (f Format) BytesPerSecond() int { return int(f) * 2 }

// Duration returns the playback length of n bytes.
func (f Format) Duration(n int) time.Duration {
	if f <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(f.BytesPerSecond())
}

// SamplesDuration returns the playback length of n samples.
func (f Format) SamplesDuration(n int) time.Duration {
	if f <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(f)
}

// BytesInDuration returns the number of bytes covering d, rounded down to a
// whole sample.
func (f Format) BytesInDuration(d time.Duration) int {
	samples := int(d * time.Duration(f) / time.Second)
	return samples * 2
}

// MIMEType is the Live API media type, e.g. "audio/pcm;rate=16000".
func (f Format) MIMEType() string {
	return "audio/pcm;rate=" + strconv.Itoa(int(f))
}

func (f Format) String() string {
	return fmt.Sprintf("audio/L16; rate=%d; channels=1", int(f))
}

// ParseMIMEType reads the rate parameter of an "audio/pcm" media type. A
// missing rate means 24 kHz, the rate the model speaks at.
func ParseMIMEType(mime string) (Format, error) {
	parts := strings.Split(mime, ";")
	base := strings.ToLower(strings.TrimSpace(parts[0]))
	if base != "audio/pcm" && base != "audio/l16" {
		return 0, core.NewDecodeError(fmt.Sprintf("unsupported audio mime type %q", mime), nil)
	}
	f := L16Mono24K
	for _, p := range parts[1:] {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok || strings.ToLower(strings.TrimSpace(k)) != "rate" {
			continue
		}
		rate, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || rate <= 0 {
			return 0, core.NewDecodeError(fmt.Sprintf("invalid rate in mime type %q", mime), err)
		}
		f = Format(rate)
	}
	return f, nil
}
