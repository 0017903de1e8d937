// Package audio wires synth.Engine to a real output: a live oto device for
// interactive playback, or a WAV file for offline rendering.
package audio

import (
	"encoding/binary"

	"github.com/ebitengine/oto/v3"

	"github.com/mudtracker/fmengine/pkg/synth"
)

// RealtimeOutput streams an Engine's render loop to the default audio device via
// oto, in stereo 16-bit PCM.
type RealtimeOutput struct {
	engine    *synth.Engine
	otoCtx    *oto.Context
	otoPlayer *oto.Player
	buffer    []float32
	running   bool
}

// NewRealtimeOutput opens the platform audio device and starts streaming engine's
// output through it.
func NewRealtimeOutput(engine *synth.Engine, sampleRate int) (*RealtimeOutput, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
	}

	otoCtx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-ready

	rt := &RealtimeOutput{
		engine:  engine,
		otoCtx:  otoCtx,
		buffer:  make([]float32, 1024),
		running: true,
	}

	rt.otoPlayer = otoCtx.NewPlayer(&audioStream{rt: rt})
	rt.otoPlayer.SetBufferSize(sampleRate / 10 * 4) // 100ms, stereo 16-bit
	rt.otoPlayer.Play()

	return rt, nil
}

// Close stops playback and releases the device.
func (rt *RealtimeOutput) Close() {
	rt.running = false
	if rt.otoPlayer != nil {
		rt.otoPlayer.Close()
	}
}

// audioStream implements io.Reader for oto.Player, pulling samples from the
// engine on demand rather than pre-rendering a buffer.
type audioStream struct {
	rt *RealtimeOutput
}

func (s *audioStream) Read(buf []byte) (int, error) {
	if !s.rt.running {
		for i := range buf {
			buf[i] = 0
		}
		return len(buf), nil
	}

	samples := len(buf) / 2 // 16-bit = 2 bytes per sample, interleaved stereo
	if samples > len(s.rt.buffer) {
		s.rt.buffer = make([]float32, samples)
	}

	s.rt.engine.Render(s.rt.buffer[:samples])

	for i := 0; i < samples; i++ {
		sample := s.rt.buffer[i]
		if sample > 1 {
			sample = 1
		}
		if sample < -1 {
			sample = -1
		}
		s16 := int16(sample * 32767)
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s16))
	}

	return samples * 2, nil
}
