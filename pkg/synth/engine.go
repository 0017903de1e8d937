package synth

import (
	"sync"

	"github.com/mudtracker/fmengine/pkg/tracker"
)

// ticksPerControlUpdate is how many audio samples separate two control-rate
// updates (envelope/LFO/pitch/effects): control runs at audio-rate/8, matching the
// teacher's tick/sample split for CPU efficiency.
const ticksPerControlUpdate = 8

// Engine is the top-level render object: one per playing (or renderable) song. It
// owns the channel voices, the reverb, and the row/tick sequencer, and is driven a
// block at a time by Render.
type Engine struct {
	mu sync.Mutex

	song            *tracker.Song
	sampleRate      float64
	sampleRateRatio float64 // 48000/sampleRate; the reference rate every time constant in synth is expressed against

	channels [tracker.NumChannels]channel

	reverb         *reverb
	reverbRoomSize float64

	playing  bool
	pattern  int
	row      int
	tick     int // samples into the current row
	rowTicks int // samples per row at the current tempo/divisor

	globalVolume   float32
	playbackVolume float32

	state *stateTable

	samplesSinceControl int
}

// NewEngine builds an Engine for song at the given sample rate, with every
// channel seeded from the song's per-channel defaults and the reverb sized from
// the song's room parameters.
func NewEngine(song *tracker.Song, sampleRate int) *Engine {
	e := &Engine{
		song:            song,
		sampleRate:      float64(sampleRate),
		sampleRateRatio: 48000 / float64(sampleRate),
		reverbRoomSize:  song.ReverbRoomSize,
		globalVolume:    ExpVol[song.GlobalVolume],
		playbackVolume:  1,
	}
	for i := range e.channels {
		e.channels[i] = *newChannel(song.Channels[i])
	}
	e.reverb = newReverb(e.sampleRate, song.ReverbRoomSize, song.ReverbLength)
	e.state = buildStateTable(song)
	e.recalcTickRate()
	return e
}

func (e *Engine) recalcTickRate() {
	e.rowTicks = int(e.sampleRate * rowDuration(e.song.Tempo, e.song.Divisor))
	if e.rowTicks < 1 {
		e.rowTicks = 1
	}
}

// Play starts playback from the current position (or the top, if stopped at 0,0).
func (e *Engine) Play() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playing = len(e.song.Patterns) > 0
}

// Stop halts playback; the engine keeps its position so Play resumes in place.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playing = false
	for i := range e.channels {
		e.channels[i].noteOff(e.sampleRateRatio)
	}
}

// SetPosition seeks to the start of (pattern, row), restoring the tempo/divisor/
// volume/pan the state table recorded for it.
func (e *Engine) SetPosition(pattern, row int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seekTo(pattern, row)
}

func (e *Engine) seekTo(pattern, row int) {
	if pattern < 0 {
		pattern = 0
	}
	if pattern >= len(e.song.Patterns) {
		pattern = len(e.song.Patterns) - 1
	}
	st := e.state.lookup(pattern, row)
	e.song.Tempo = st.tempo
	e.song.Divisor = st.divisor
	e.globalVolume = ExpVol[st.volume]
	for i := range e.channels {
		e.channels[i].pan = float32(st.pan[i])
		e.channels[i].destPan = float32(st.pan[i])
	}
	e.pattern = pattern
	e.row = row
	e.tick = 0
	e.recalcTickRate()
}

// SetTime seeks to the last row that starts at or before the given playback time.
// If cut is true, every
// channel is silenced first (no notes ring over from before the jump).
func (e *Engine) SetTime(seconds float64, cut bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cut {
		for i := range e.channels {
			e.channels[i].active = false
		}
	}
	p, r := e.state.findByTime(seconds)
	e.seekTo(p, r)
}

// SongLength returns the song's total playback length in seconds, from the start
// of pattern 0 to the end of the last pattern at the tempo/divisor in effect
// throughout (tempo-change effects are accounted for by the state table).
func (e *Engine) SongLength() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	last := e.song.Tempo
	lastDiv := e.song.Divisor
	if len(e.state.entries) > 0 {
		le := e.state.entries[len(e.state.entries)-1]
		last, lastDiv = le.tempo, le.divisor
	}
	return e.state.totalLength(rowDuration(last, lastDiv))
}

// SetPlaybackVolume sets the engine-wide output trim applied at the final mix
// stage, independent of the song's own GlobalVolume field.
func (e *Engine) SetPlaybackVolume(v float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	clampFloat(&v, 0, 1)
	e.playbackVolume = v
}

// Render fills `out` (interleaved stereo float32, len(out) must be even) with the
// next len(out)/2 samples of audio, advancing the sequencer and all channel/
// reverb/effect state as it goes.
func (e *Engine) Render(out []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := len(out) / 2
	for i := 0; i < n; i++ {
		if e.playing {
			e.advance()
		}

		var mixL, mixR, sendL, sendR float32
		for ch := range e.channels {
			l, r, send := e.channels[ch].render()
			mixL += l
			mixR += r
			sendL += send
			sendR += send
		}

		rvL, rvR := e.reverb.process(sendL, sendR)
		mixL += rvL
		mixR += rvR

		mixL *= e.globalVolume * e.playbackVolume
		mixR *= e.globalVolume * e.playbackVolume

		out[2*i] = normalizeSample(mixL)
		out[2*i+1] = normalizeSample(mixR)
	}
}

func (e *Engine) advance() {
	if len(e.song.Patterns) == 0 {
		e.playing = false
		return
	}
	if e.pattern >= len(e.song.Patterns) {
		e.pattern = 0
	}

	if e.tick == 0 {
		e.processRow()
	}
	e.samplesSinceControl++
	if e.samplesSinceControl >= ticksPerControlUpdate {
		e.samplesSinceControl = 0
		for ch := range e.channels {
			e.channels[ch].controlTick(e.sampleRateRatio)
			e.tickEffect(ch)
		}
	}

	e.tick++
	if e.tick >= e.rowTicks {
		e.tick = 0
		e.row++
		if e.row >= len(e.song.Patterns[e.pattern].Rows) {
			e.row = 0
			e.pattern++
			if e.pattern >= len(e.song.Patterns) {
				e.pattern = 0
				e.playing = len(e.song.Patterns) > 0 // loop by default
			}
		}
	}
}

func (e *Engine) processRow() {
	if len(e.song.Patterns) == 0 || e.pattern >= len(e.song.Patterns) {
		return
	}
	pat := e.song.Patterns[e.pattern]
	if e.row >= len(pat.Rows) {
		return
	}
	row := pat.Rows[e.row]
	for ch, cell := range row {
		if cell.Note != tracker.NoteEmpty || cell.Fx != tracker.Empty || cell.Vol != tracker.Empty {
			e.applyCell(ch, cell)
		}
	}
	e.recalcTickRate()
}

// normalizeSample brings the engine's native (roughly ±5000*LUTratio-per-operator) mix
// scale down to the [-1, 1] float range the rest of the pipeline expects,
// matching mt_render's `clamp(rendered[i]/32768, -1, 1)` — a hard linear
// normalization, not a soft compressor.
func normalizeSample(x float32) float32 {
	v := denormalFlush32(x) / 32768
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
