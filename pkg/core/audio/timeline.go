package audio

import (
	"sync"
	"time"
)

// Timeline is a pull-based mixer with its own sample clock. Clips are placed
// at absolute positions; every Read renders the next window of mixed PCM16
// and advances the clock by the samples it produced. It is the output clock
// of a speaker that pulls from it.
type Timeline struct {
	format Format

	mu     sync.Mutex
	pos    int64
	nextID uint64
	clips  map[uint64]*clip
	mixBuf []float32
}

type clip struct {
	start   int64
	samples []float32
	onEnded func()
}

func (c *clip) end() int64 { return c.start + int64(len(c.samples)) }

// NewTimeline creates an empty timeline running at f.
func NewTimeline(f Format) *Timeline {
	return &Timeline{
		format: f,
		clips:  make(map[uint64]*clip),
	}
}

// Format returns the timeline's output format.
func (t *Timeline) Format() Format { return t.format }

// Now is the playback position: the duration of audio already rendered.
func (t *Timeline) Now() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.format.SamplesDuration(int(t.pos))
}

// Place schedules samples to start at offset at. A position already in the
// past starts at the next rendered sample. onEnded runs once the last sample
// has been rendered; it never runs for a removed clip.
func (t *Timeline) Place(samples []float32, at time.Duration, onEnded func()) uint64 {
	start := int64(at * time.Duration(t.format) / time.Second)

	t.mu.Lock()
	defer t.mu.Unlock()
	if start < t.pos {
		start = t.pos
	}
	t.nextID++
	t.clips[t.nextID] = &clip{start: start, samples: samples, onEnded: onEnded}
	return t.nextID
}

// Remove drops a clip. It reports whether the clip was still pending.
func (t *Timeline) Remove(id uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.clips[id]; !ok {
		return false
	}
	delete(t.clips, id)
	return true
}

// Pending returns the number of clips not yet fully rendered.
func (t *Timeline) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.clips)
}

// Read renders len(p)/2 samples of mixed PCM16. Silence is rendered when
// nothing is placed; Read never blocks and never returns an error.
func (t *Timeline) Read(p []byte) (int, error) {
	n := len(p) / 2
	if n == 0 {
		return 0, nil
	}

	t.mu.Lock()
	if cap(t.mixBuf) < n {
		t.mixBuf = make([]float32, n)
	}
	buf := t.mixBuf[:n]
	for i := range buf {
		buf[i] = 0
	}

	from, to := t.pos, t.pos+int64(n)
	var ended []func()
	for id, c := range t.clips {
		if c.start < to && c.end() > from {
			lo := max(c.start, from)
			hi := min(c.end(), to)
			for s := lo; s < hi; s++ {
				buf[s-from] += c.samples[s-c.start]
			}
		}
		if c.end() <= to {
			delete(t.clips, id)
			if c.onEnded != nil {
				ended = append(ended, c.onEnded)
			}
		}
	}
	t.pos = to
	copy(p, PCM16Bytes(FloatToPCM16(buf)))
	t.mu.Unlock()

	for _, fn := range ended {
		fn()
	}
	return n * 2, nil
}
