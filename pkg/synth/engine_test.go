package synth

import (
	"math"
	"testing"

	"github.com/mudtracker/fmengine/pkg/tracker"
)

func TestEngineRenderSilentSongProducesNoNaN(t *testing.T) {
	song := tracker.NewSong()
	e := NewEngine(song, 44100)
	e.Play()

	buf := make([]float32, 2048)
	e.Render(buf)

	for i, v := range buf {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			t.Fatalf("buf[%d] = %v, want finite", i, v)
		}
	}
}

func TestEngineRenderWithNoteProducesSound(t *testing.T) {
	song := tracker.NewSong()
	song.Patterns[0].Rows[0][0] = tracker.Cell{Note: 60, Instr: 0, Vol: 99, Fx: tracker.Empty}
	e := NewEngine(song, 44100)
	e.Play()

	buf := make([]float32, 4096)
	e.Render(buf)

	var peak float32
	for _, v := range buf {
		if v > peak {
			peak = v
		}
		if -v > peak {
			peak = -v
		}
	}
	if peak == 0 {
		t.Fatal("expected non-zero output after triggering a note")
	}
}

func TestEngineRenderOutputStaysInRange(t *testing.T) {
	song := tracker.NewSong()
	for ch := 0; ch < 4; ch++ {
		song.Patterns[0].Rows[0][ch] = tracker.Cell{Note: 60 + uint8(ch), Instr: 0, Vol: 99, Fx: tracker.Empty}
	}
	e := NewEngine(song, 44100)
	e.Play()

	buf := make([]float32, 8192)
	e.Render(buf)

	for i, v := range buf {
		if v > 1.0001 || v < -1.0001 {
			t.Fatalf("buf[%d] = %v, want within hard-clamped [-1, 1]", i, v)
		}
	}
}

func TestEngineSampleRateInvariantPitch(t *testing.T) {
	// rendering at two different sample rates should produce the same note
	// frequency in Hz, i.e. the same number of wave periods per second.
	song := tracker.NewSong()
	song.Patterns[0].Rows[0][0] = tracker.Cell{Note: 69, Instr: 0, Vol: 99, Fx: tracker.Empty}

	for _, rate := range []int{22050, 44100, 48000} {
		e := NewEngine(song, rate)
		e.Play()
		frames := rate / 10
		buf := make([]float32, frames*2)
		e.Render(buf)
		// sanity: non-trivial output at every tested rate
		nonZero := false
		for _, v := range buf {
			if v != 0 {
				nonZero = true
				break
			}
		}
		if !nonZero {
			t.Errorf("rate %d: expected non-zero output", rate)
		}
		// 0.1s of A4 (440Hz) holds 44 periods: count rising zero crossings
		// of the left channel.
		periods := 0
		for i := 1; i < frames; i++ {
			if buf[2*(i-1)] < 0 && buf[2*i] >= 0 {
				periods++
			}
		}
		if periods < 42 || periods > 45 {
			t.Errorf("rate %d: %d periods in 0.1s, want ~44 (440Hz)", rate, periods)
		}
	}
}

func TestEngineSetPositionSeeksTempo(t *testing.T) {
	song := tracker.NewSong()
	song.Patterns[0].Rows[8][0] = tracker.Cell{Note: tracker.NoteEmpty, Instr: tracker.Empty, Vol: tracker.Empty, Fx: tracker.FxTempo, FxData: 200}
	e := NewEngine(song, 44100)

	e.SetPosition(0, 8)
	if e.song.Tempo != 200 {
		t.Errorf("Tempo after seek = %d, want 200", e.song.Tempo)
	}
}

func TestEngineSongLengthPositive(t *testing.T) {
	song := tracker.NewSong()
	e := NewEngine(song, 44100)
	length := e.SongLength()
	if length <= 0 {
		t.Fatalf("SongLength() = %v, want > 0", length)
	}
}
