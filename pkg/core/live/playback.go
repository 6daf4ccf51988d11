package live

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hypley-ai/hypley-live/pkg/core/audio"
)

// Buffer is decoded model audio ready to be played.
type Buffer struct {
	Samples []float32
	Format  audio.Format
}

// Duration is the playback length of the buffer.
func (b Buffer) Duration() time.Duration {
	return b.Format.SamplesDuration(len(b.Samples))
}

// Output is an audio output clock that can start buffers at given times.
// Now and the at argument of Start share the same time base.
type Output interface {
	Now() time.Duration
	// Start schedules buf to begin at at. onEnded must be called once the
	// buffer finishes on its own, never from inside Start. It may also be
	// called after Stop.
	Start(buf Buffer, at time.Duration, onEnded func()) (Source, error)
}

// Source is a scheduled or playing buffer.
type Source interface {
	Stop()
}

// Scheduler plays independently arriving buffers back to back on one Output.
//
// The cursor is the time the last scheduled buffer ends. Each new buffer
// starts at max(cursor, now) so normal streaming is gapless and a cursor
// that fell behind the clock resumes at now instead of replaying a backlog.
type Scheduler struct {
	out    Output
	logger *slog.Logger

	mu       sync.Mutex
	cursor   time.Duration
	sources  map[uint64]Source
	nextID   uint64
	speaking bool
	observer func(speaking bool)
}

// NewScheduler creates a scheduler on out.
func NewScheduler(out Output, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		out:     out,
		logger:  logger,
		sources: make(map[uint64]Source),
	}
}

// SetSpeakingObserver registers fn to be told when audio starts (true) and
// when the last buffer ends naturally (false). Interrupt does not report.
func (s *Scheduler) SetSpeakingObserver(fn func(speaking bool)) {
	s.mu.Lock()
	s.observer = fn
	s.mu.Unlock()
}

// ScheduleBuffer starts buf at max(cursor, now) and advances the cursor by
// its duration. It returns the start time.
func (s *Scheduler) ScheduleBuffer(buf Buffer) (time.Duration, error) {
	s.mu.Lock()
	now := s.out.Now()
	if s.cursor < now {
		s.cursor = now
	}
	at := s.cursor

	s.nextID++
	id := s.nextID
	src, err := s.out.Start(buf, at, func() { s.ended(id) })
	if err != nil {
		s.mu.Unlock()
		s.logger.Warn("playback start failed", "error", err)
		return 0, err
	}
	s.sources[id] = src
	s.cursor = at + buf.Duration()

	var notify func(bool)
	if !s.speaking {
		s.speaking = true
		notify = s.observer
	}
	s.mu.Unlock()

	if notify != nil {
		notify(true)
	}
	return at, nil
}

// Interrupt stops every scheduled source, forgets them and resets the cursor
// to zero. With nothing scheduled it is a no-op.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	sources := s.sources
	s.sources = make(map[uint64]Source)
	s.cursor = 0
	s.speaking = false
	s.mu.Unlock()

	for _, src := range sources {
		src.Stop()
	}
}

// Cursor returns the time at which the last scheduled buffer ends.
func (s *Scheduler) Cursor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Active returns the number of sources scheduled or playing.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sources)
}

func (s *Scheduler) ended(id uint64) {
	s.mu.Lock()
	if _, ok := s.sources[id]; !ok {
		// already removed by Interrupt
		s.mu.Unlock()
		return
	}
	delete(s.sources, id)
	var notify func(bool)
	if len(s.sources) == 0 && s.speaking {
		s.speaking = false
		notify = s.observer
	}
	s.mu.Unlock()

	if notify != nil {
		notify(false)
	}
}
