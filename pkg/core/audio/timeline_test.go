package audio

import (
	"testing"
	"time"
)

func readSamples(t *testing.T, tl *Timeline, n int) []int16 {
	t.Helper()
	p := make([]byte, n*2)
	got, err := tl.Read(p)
	if err != nil || got != n*2 {
		t.Fatalf("Read() = %d, %v", got, err)
	}
	pcm, err := PCM16FromBytes(p)
	if err != nil {
		t.Fatal(err)
	}
	return pcm
}

func TestTimeline_PlacesAndEnds(t *testing.T) {
	tl := NewTimeline(Format(1000))

	ended := 0
	tl.Place([]float32{0.5, 0.5}, 2*time.Millisecond, func() { ended++ })

	got := readSamples(t, tl, 3)
	if got[0] != 0 || got[1] != 0 || got[2] == 0 {
		t.Fatalf("first window = %v, want silence then audio at sample 2", got)
	}
	if ended != 0 {
		t.Fatal("clip ended too early")
	}
	if tl.Now() != 3*time.Millisecond {
		t.Errorf("Now() = %v, want 3ms", tl.Now())
	}

	readSamples(t, tl, 3)
	if ended != 1 {
		t.Errorf("ended = %d, want 1", ended)
	}
	if tl.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", tl.Pending())
	}
}

func TestTimeline_PastPlacementStartsNow(t *testing.T) {
	tl := NewTimeline(Format(1000))
	readSamples(t, tl, 10)

	tl.Place([]float32{1}, 0, nil)
	got := readSamples(t, tl, 1)
	if got[0] != 32767 {
		t.Errorf("sample = %d, want 32767", got[0])
	}
}

func TestTimeline_RemoveSuppressesEnd(t *testing.T) {
	tl := NewTimeline(Format(1000))
	ended := false
	id := tl.Place([]float32{0.5, 0.5}, 0, func() { ended = true })
	if !tl.Remove(id) {
		t.Fatal("Remove() = false for pending clip")
	}
	if tl.Remove(id) {
		t.Fatal("Remove() = true twice")
	}
	got := readSamples(t, tl, 4)
	for _, s := range got {
		if s != 0 {
			t.Fatalf("removed clip still rendered: %v", got)
		}
	}
	if ended {
		t.Error("onEnded ran for a removed clip")
	}
}

func TestTimeline_MixesAndClamps(t *testing.T) {
	tl := NewTimeline(Format(1000))
	tl.Place([]float32{0.75}, 0, nil)
	tl.Place([]float32{0.75}, 0, nil)
	got := readSamples(t, tl, 1)
	if got[0] != 32767 {
		t.Errorf("mixed sample = %d, want clamped 32767", got[0])
	}
}
