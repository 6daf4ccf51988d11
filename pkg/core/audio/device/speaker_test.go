package device

import (
	"testing"
	"time"

	"github.com/hypley-ai/hypley-live/pkg/core"
	"github.com/hypley-ai/hypley-live/pkg/core/audio"
	"github.com/hypley-ai/hypley-live/pkg/core/live"
)

func TestSpeaker_StartAndStop(t *testing.T) {
	s := &Speaker{timeline: audio.NewTimeline(audio.L16Mono24K)}

	ended := make(chan struct{}, 1)
	buf := live.Buffer{Samples: make([]float32, 240), Format: audio.L16Mono24K}
	src, err := s.Start(buf, 0, func() { ended <- struct{}{} })
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := s.timeline.Pending(); got != 1 {
		t.Fatalf("Pending() = %d, want 1", got)
	}

	src.Stop()
	if got := s.timeline.Pending(); got != 0 {
		t.Fatalf("Pending() after Stop = %d, want 0", got)
	}
	_, _ = s.timeline.Read(make([]byte, 480*2))
	select {
	case <-ended:
		t.Fatal("stopped clip reported a natural end")
	default:
	}
	if got := s.Now(); got != 20*time.Millisecond {
		t.Errorf("Now() = %v, want 20ms", got)
	}
}

func TestSpeaker_RejectsOtherFormat(t *testing.T) {
	s := &Speaker{timeline: audio.NewTimeline(audio.L16Mono24K)}
	_, err := s.Start(live.Buffer{Samples: make([]float32, 16), Format: audio.L16Mono16K}, 0, nil)
	if !core.IsType(err, core.ErrInvalidRequest) {
		t.Fatalf("Start() error = %v, want invalid_request_error", err)
	}
}
