// Package synth is the FM rendering core: wavetables, per-operator envelopes,
// per-channel voice routing, the effect dispatch table, and the stereo reverb.
package synth

import "math"

// Phase accumulators are 32-bit fixed point. Each wavetable has 2048 entries
// (11 bits); the sample index is the top 11 bits of the low 21 bits of the
// accumulator, so a table repeats every 2^21 phase units and the accumulator
// itself wraps naturally on uint32 overflow.
const (
	TableBits  = 11
	TableSize  = 1 << TableBits // 2048
	TableMask  = TableSize - 1
	PhaseShift = 10
)

// Waveform indices into Wavetables.
const (
	WaveSine = iota
	WaveHalfSine
	WaveAbsSine
	WaveQuarterSine
	WaveAlternateSine
	WaveCamelSine
	WaveSquare
	WaveLogSaw
	NumWaveforms
)

// Wavetables holds one 2048-sample cycle per waveform, each normalized to [-1, 1].
var Wavetables [NumWaveforms][TableSize]float32

// ExpVol is the exponential volume curve used for channel/operator output gains:
// ExpVol[i] = 10^(-(log(100/(i+1))*10)/20), ExpVol[0] is unset (0) and ExpVol[99]=1.
var ExpVol [100]float32

// ExpEnv is the exponential rate curve envelopes are driven by: a small per-sample
// multiplicative rate (not a tick count) that feeds `a = ExpEnv[effA]*sampleRateRatio`
// and `d = 1 - exp(-ExpEnv[effD]*sampleRateRatio)`. ExpEnv[i] = 1e-5*1.1^(i-1) for
// i in 1..95, hand-tuned for i in 96..99.
var ExpEnv [100]float32

// ExpVolOp mirrors ExpVol but scaled by i/100, the curve the original used for
// per-operator (as opposed to channel) output volume: ExpVolOp[i] = ExpVol[i]*i/100.
var ExpVolOp [100]float32

// SemitoneRatio is the per-cent detuning unit mt_calcPitch's temperament term uses:
// frequency += frequency * SemitoneRatio * temperament[note%12].
const SemitoneRatio = 0.059463 * 0.01

// LUTratio relates the engine's 2048-entry tables to the original 1024-sample-
// calibrated fixed-point constants (LFO speed and masks, operator volume, fixed-
// frequency pitch, pan lookup): LUTratio = TableSize/1024.
const LUTratio = TableSize / 1024

// lfoMasks/lfoWaveformBase select, per persisted LFOWaveform index (0..21), the
// phase mask applied before the LFO table lookup and which base Wavetables entry to
// read — indices 0..7 read Wavetables 0..7 at full resolution, indices 8..19 read
// the sine table through masks that drop phase bits (fewer distinct steps per cycle)
// to give each LFO "shape" its own character without a dedicated wavetable, and
// indices 20/21 read the sine table at full resolution again.
var lfoMasks = [22]uint32{
	0xffc00 * LUTratio, 0xffc00 * LUTratio, 0xffc00 * LUTratio, 0xffc00 * LUTratio,
	0xffc00 * LUTratio, 0xffc00 * LUTratio, 0xffc00 * LUTratio, 0xffc00 * LUTratio,
	0xf0000 * LUTratio, 0xefc00 * LUTratio, 0xdfc00 * LUTratio, 0xbfc00 * LUTratio,
	0x88000 * LUTratio, 0x40000 * LUTratio, 0x60000 * LUTratio, 0x7fc00 * LUTratio,
	0x78000 * LUTratio, 0x70000 * LUTratio, 0x3fc00 * LUTratio, 0xa0000 * LUTratio,
	0xfffc00 * LUTratio, 0x2ffc00 * LUTratio,
}

var lfoWaveformBase = [22]int{
	0, 1, 2, 3, 4, 5, 6, 7,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// NoteIncr[note] is the phase increment per sample for a 1x-ratio operator playing
// MIDI note `note` at the table's reference sample rate; calcIncr (operator.go)
// rescales it for the live sample rate (refSampleRate/actual) and the operator's own
// multiplier/finetune/detune, mirroring mt_calcPitch.
var NoteIncr [128]uint32

// refSampleRate is the sample rate NoteIncr is computed against; calcIncr rescales by
// refSampleRate/actual at note-on so the tables never need rebuilding per device.
const refSampleRate = 44100

func init() {
	buildWavetables()
	buildExpTables()
	buildNoteIncr()
}

func buildWavetables() {
	for i := 0; i < TableSize; i++ {
		t := float64(i) / TableSize
		s := math.Sin(2 * math.Pi * t)
		Wavetables[WaveSine][i] = float32(s)

		if s > 0 {
			Wavetables[WaveHalfSine][i] = float32(s)
		} else {
			Wavetables[WaveHalfSine][i] = 0
		}

		Wavetables[WaveAbsSine][i] = float32(math.Abs(s))

		q := math.Sin(4 * math.Pi * t)
		if i < TableSize/2 {
			Wavetables[WaveQuarterSine][i] = float32(math.Abs(q))
		} else {
			Wavetables[WaveQuarterSine][i] = 0
		}

		if i < TableSize/2 {
			Wavetables[WaveAlternateSine][i] = float32(s)
		} else {
			Wavetables[WaveAlternateSine][i] = float32(-s)
		}

		if s >= 0 {
			Wavetables[WaveCamelSine][i] = float32(math.Abs(math.Sin(4 * math.Pi * t)))
		} else {
			Wavetables[WaveCamelSine][i] = 0
		}

		if s >= 0 {
			Wavetables[WaveSquare][i] = 1
		} else {
			Wavetables[WaveSquare][i] = -1
		}

		saw := 2*t - 1
		sign := float32(1)
		if saw < 0 {
			sign = -1
		}
		Wavetables[WaveLogSaw][i] = sign * float32(math.Log1p(math.Abs(saw)*(math.E-1)))
	}
}

// buildExpTables mirrors mtlib.c's init exactly: expVol/expVolOp run i=1..98 from
// the log-volume formula, expEnv runs the same range as a geometric progression
// starting at 1e-5*1.1^0, and indices 96..99 are hand-tuned overrides rather than
// continuations of either curve.
func buildExpTables() {
	ini := 0.00001
	for i := 1; i < 99; i++ {
		ExpVol[i] = float32(math.Pow(10, (math.Log(100.0/float64(i+1))*-10)/20))
		ExpEnv[i] = float32(ini)
		ini *= 1.1
		ExpVolOp[i] = float32(float64(ExpVol[i]) * (float64(i) * 0.01))
	}
	ExpEnv[96] = 0.1
	ExpEnv[97] = 0.2
	ExpEnv[98] = 0.5
	ExpEnv[99] = 1
	ExpVol[99] = 1
	ExpVolOp[99] = 1
}

func buildNoteIncr() {
	for n := 0; n < 128; n++ {
		freq := 440.0 * math.Pow(2, (float64(n)-69)/12)
		// One wavetable cycle is TableSize<<PhaseShift raw phase units (2^21),
		// so the increment per sample is freq/sampleRate of that span.
		incr := freq * float64(uint64(1)<<(TableBits+PhaseShift)) / refSampleRate
		NoteIncr[n] = uint32(incr)
	}
}
