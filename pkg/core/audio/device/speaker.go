package device

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/hypley-ai/hypley-live/pkg/core"
	"github.com/hypley-ai/hypley-live/pkg/core/audio"
	"github.com/hypley-ai/hypley-live/pkg/core/live"
)

// Speaker is a live.Output backed by the default playback device. Buffers
// are placed on a Timeline that the oto player drains, so the timeline's
// rendered position is the output clock.
type Speaker struct {
	timeline *audio.Timeline
	ctx      *oto.Context
	player   *oto.Player

	closeOnce sync.Once
}

// OpenSpeaker starts an oto player in format f. bufferSize is the device
// buffer length; zero means 100ms.
func OpenSpeaker(f audio.Format, bufferSize time.Duration) (*Speaker, error) {
	if bufferSize <= 0 {
		bufferSize = 100 * time.Millisecond
	}
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   f.SampleRate(),
		ChannelCount: f.Channels(),
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   bufferSize,
	})
	if err != nil {
		return nil, core.NewDeviceError("open speaker", err)
	}
	<-ready

	s := &Speaker{timeline: audio.NewTimeline(f), ctx: ctx}
	s.player = ctx.NewPlayer(s.timeline)
	s.player.SetBufferSize(f.BytesInDuration(bufferSize))
	s.player.Play()
	return s, nil
}

// Timeline exposes the mixer, mainly for recording what was played.
func (s *Speaker) Timeline() *audio.Timeline { return s.timeline }

// Now reports how much audio the player has pulled.
func (s *Speaker) Now() time.Duration { return s.timeline.Now() }

// Start places buf on the timeline.
func (s *Speaker) Start(buf live.Buffer, at time.Duration, onEnded func()) (live.Source, error) {
	if buf.Format != s.timeline.Format() {
		return nil, core.NewInvalidRequestError(fmt.Sprintf("speaker plays %s, got %s", s.timeline.Format(), buf.Format))
	}
	id := s.timeline.Place(buf.Samples, at, onEnded)
	return clipSource{timeline: s.timeline, id: id}, nil
}

// Close stops the player.
func (s *Speaker) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.player.Pause()
		if cerr := s.player.Close(); cerr != nil {
			err = core.NewDeviceError("close speaker", cerr)
		}
	})
	return err
}

type clipSource struct {
	timeline *audio.Timeline
	id       uint64
}

func (c clipSource) Stop() { c.timeline.Remove(c.id) }
