package device

import (
	"io"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/hypley-ai/hypley-live/pkg/core"
	"github.com/hypley-ai/hypley-live/pkg/core/audio"
	"github.com/hypley-ai/hypley-live/pkg/core/live"
)

// Microphone opens the default capture device through miniaudio.
type Microphone struct {
	// PeriodMillis is the device callback period. Zero means 20ms.
	PeriodMillis uint32
}

// Open starts capturing mono S16 at the requested rate and delivers
// normalized samples to onData. Echo cancellation and noise suppression are
// left to the operating system; miniaudio has no switch for them.
func (m Microphone) Open(c live.Constraints, onData func(samples []float32)) (io.Closer, error) {
	cfg := malgo.ContextConfig{ThreadPriority: malgo.ThreadPriorityRealtime}
	ctx, err := malgo.InitContext(nil, cfg, nil)
	if err != nil {
		return nil, core.NewDeviceError("init audio context", err)
	}

	period := m.PeriodMillis
	if period == 0 {
		period = 20
	}
	format := c.Format
	if format == 0 {
		format = audio.L16Mono16K
	}

	dc := malgo.DefaultDeviceConfig(malgo.Capture)
	dc.Capture.Format = malgo.FormatS16
	dc.Capture.Channels = uint32(format.Channels())
	dc.SampleRate = uint32(format.SampleRate())
	dc.PeriodSizeInMilliseconds = period

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, in []byte, _ uint32) {
			pcm, err := audio.PCM16FromBytes(in[:len(in)&^1])
			if err != nil || len(pcm) == 0 {
				return
			}
			onData(audio.PCM16ToFloat(pcm))
		},
	}

	dev, err := malgo.InitDevice(ctx.Context, dc, callbacks)
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return nil, core.NewDeviceError("open microphone", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		_ = ctx.Uninit()
		ctx.Free()
		return nil, core.NewDeviceError("start microphone", err)
	}
	return &micStream{ctx: ctx, dev: dev}, nil
}

type micStream struct {
	once sync.Once
	ctx  *malgo.AllocatedContext
	dev  *malgo.Device
}

func (s *micStream) Close() error {
	var err error
	s.once.Do(func() {
		if stopErr := s.dev.Stop(); stopErr != nil {
			err = core.NewDeviceError("stop microphone", stopErr)
		}
		s.dev.Uninit()
		if uerr := s.ctx.Uninit(); uerr != nil && err == nil {
			err = core.NewDeviceError("release audio context", uerr)
		}
		s.ctx.Free()
	})
	return err
}
