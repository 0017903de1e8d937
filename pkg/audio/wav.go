package audio

import (
	"encoding/binary"
	"io"

	"github.com/mudtracker/fmengine/pkg/synth"
)

// wavWriter writes a stereo 16-bit PCM RIFF/WAVE file incrementally, the same way
// the teacher's WAVWriter streams a header then sample chunks.
type wavWriter struct {
	w          io.Writer
	sampleRate int
	channels   int
}

func newWAVWriter(w io.Writer, sampleRate, channels int) *wavWriter {
	return &wavWriter{w: w, sampleRate: sampleRate, channels: channels}
}

func (w *wavWriter) writeHeader(dataSize int) error {
	w.w.Write([]byte("RIFF"))
	binary.Write(w.w, binary.LittleEndian, uint32(dataSize+36))
	w.w.Write([]byte("WAVE"))

	w.w.Write([]byte("fmt "))
	binary.Write(w.w, binary.LittleEndian, uint32(16))
	binary.Write(w.w, binary.LittleEndian, uint16(1))
	binary.Write(w.w, binary.LittleEndian, uint16(w.channels))
	binary.Write(w.w, binary.LittleEndian, uint32(w.sampleRate))
	byteRate := w.sampleRate * w.channels * 2
	binary.Write(w.w, binary.LittleEndian, uint32(byteRate))
	blockAlign := w.channels * 2
	binary.Write(w.w, binary.LittleEndian, uint16(blockAlign))
	binary.Write(w.w, binary.LittleEndian, uint16(16))

	w.w.Write([]byte("data"))
	return binary.Write(w.w, binary.LittleEndian, uint32(dataSize))
}

func (w *wavWriter) writeSamples(samples []float32) error {
	for _, s := range samples {
		if s > 1 {
			s = 1
		}
		if s < -1 {
			s = -1
		}
		s16 := int16(s * 32767)
		if err := binary.Write(w.w, binary.LittleEndian, s16); err != nil {
			return err
		}
	}
	return nil
}

// ExportWAV renders durationSeconds of engine's output (from its current
// position) to w as a stereo 16-bit WAV file.
func ExportWAV(engine *synth.Engine, w io.Writer, sampleRate int, durationSeconds float64) error {
	totalFrames := int(durationSeconds * float64(sampleRate))
	dataSize := totalFrames * 2 * 2 // stereo, 16-bit

	ww := newWAVWriter(w, sampleRate, 2)
	if err := ww.writeHeader(dataSize); err != nil {
		return err
	}

	engine.Play()

	chunkFrames := 2048
	buf := make([]float32, chunkFrames*2)
	for written := 0; written < totalFrames; {
		remaining := totalFrames - written
		n := chunkFrames
		if remaining < n {
			n = remaining
		}
		engine.Render(buf[:n*2])
		if err := ww.writeSamples(buf[:n*2]); err != nil {
			return err
		}
		written += n
	}

	engine.Stop()
	return nil
}
