package synth

import (
	"math"

	"github.com/mudtracker/fmengine/pkg/tracker"
)

// transitionSpeedBase is the pan-glide denominator at the 48kHz reference rate;
// channel.controlTick scales it by 1/sampleRateRatio for the live device rate.
const transitionSpeedBase = 20

// channel is one of the engine's NumChannels voices: six operators, the routing
// graph resolved from the currently-assigned instrument, and the per-channel mixer
// state (pan, volume, reverb send, click-smoothing, channel-level LFO).
type channel struct {
	ops [tracker.NumOperators]operator

	instr  *tracker.Instrument
	cInstr *tracker.Instrument // instrument pointer at last note-on, for the
	                           // "only re-resolve routing when it changes" rule

	note      uint8
	transpose int8
	tuning    float64
	active    bool

	pan, destPan float32 // 0..255, equal-power sine-table pan law
	volume       float32 // 0..1, song/effect-driven
	reverbSend   float32 // 0..1

	pitchBend float64 // 'I' effect target, 1 = unbent

	lfoPhase    uint32
	lfoMask     uint32
	lfoBaseWave int
	lfoOffset   uint32
	lfoA        float64
	lfoIncr     float64
	lfoDelayMax float64
	lfoDelayCpt float64
	lfoEnv      float64
	lfo         float32

	feedbackSource int8
	feedbackLevel  float32

	// Click-smoothing state (mt_playNote's exponential blend toward a fresh note).
	fade, fadeFrom, delta, fadeIncr float32
	lastRender, lastRender2         float32

	effectState effectState
}

func newChannel(def tracker.ChannelDefaults) *channel {
	return &channel{
		pan:        float32(def.Pan),
		destPan:    float32(def.Pan),
		volume:     float32(def.Volume) / 99,
		reverbSend: float32(def.ReverbSend) / 99,
		pitchBend:  1,
	}
}

// noteOn starts a new note on this channel, re-resolving routing/LFO/feedback
// constants only if the instrument assigned to the channel actually changed
// (mirrors mt_playNote's `cInstr != &instrument[...]` guard), and arming the
// click-smoothing fade when the instrument asks for it on a still-sounding voice.
func (c *channel) noteOn(inst *tracker.Instrument, note, volume uint8, sampleRateRatio float64, songTranspose int8) {
	instrumentChanged := c.cInstr != inst
	c.cInstr = inst
	c.instr = inst

	envReset := inst.Flags&tracker.FlagEnvReset != 0
	phaseReset := inst.Flags&tracker.FlagPhaseReset != 0
	smooth := inst.Flags&tracker.FlagSmooth != 0

	var currentEnvLevel float32
	for i := range c.ops {
		currentEnvLevel += float32(c.ops[i].env)
	}
	if smooth && currentEnvLevel > 0.1 && (envReset || phaseReset) {
		c.fade = 1
		c.fadeFrom = c.lastRender
		d := c.lastRender - c.lastRender2
		if d > 2000 {
			d = 2000
		}
		if d < -2000 {
			d = -2000
		}
		c.delta = d * float32(sampleRateRatio)
		c.fadeIncr = 0.95 - float32(note)*0.001
	}

	if instrumentChanged {
		c.transpose = inst.Transpose
		c.tuning = 0.0006 * float64(inst.Tuning)
		c.pitchBend = 1
		c.feedbackSource = inst.FeedbackSource
		c.feedbackLevel = float32(inst.Feedback) / 99

		c.lfoA = float64(ExpEnv[inst.LFOAttack]) * sampleRateRatio
		speed := float64(ExpVol[inst.LFOSpeed])
		c.lfoIncr = 1 + speed*speed*5000*sampleRateRatio*LUTratio
		delay := float64(ExpVol[inst.LFODelay])
		c.lfoDelayMax = delay * delay * 200000 * sampleRateRatio
		c.lfoOffset = uint32(inst.LFOOffset) * (TableSize / 32)
		c.lfoMask = lfoMasks[inst.LFOWaveform%22]
		c.lfoBaseWave = lfoWaveformBase[inst.LFOWaveform%22]
		c.lfoEnv = 0
		c.lfoDelayCpt = 0
		c.lfoPhase = 0
		c.lfo = 0

		for i := range c.ops {
			c.ops[i].applyInstrument(&inst.Operators[i], sampleRateRatio)
		}
	}

	if inst.Flags&tracker.FlagLFOReset != 0 {
		c.lfoEnv = 0
		c.lfoDelayCpt = 0
		c.lfo = 0
		c.lfoPhase = c.lfoOffset * (TableSize / 2)
	}

	transposeContribution := int8(0)
	if inst.Flags&tracker.FlagTransposable != 0 {
		transposeContribution = songTranspose
	}
	effNote := clampNote(int(note) + int(c.transpose) + int(transposeContribution))
	c.note = effNote

	for i := range c.ops {
		def := &inst.Operators[i]
		temperament := inst.Temperament[effNote%12]
		c.ops[i].incr = calcIncr(def, effNote, temperament, c.tuning, sampleRateRatio)
		c.ops[i].noteOn(effNote, volume, sampleRateRatio, true, envReset)
	}

	c.active = true
}

// retune repitches/revolumes the channel's operators in place without restarting
// the envelope state machine — used by arpeggio, which mirrors mt_playNote being
// called with instrument 255 (pitch/volume only, no envelope retrigger).
func (c *channel) retune(note, volume uint8, sampleRateRatio float64) {
	if c.instr == nil {
		return
	}
	for i := range c.ops {
		def := &c.instr.Operators[i]
		temperament := c.instr.Temperament[note%12]
		c.ops[i].incr = calcIncr(def, note, temperament, c.tuning, sampleRateRatio)
		c.ops[i].noteOn(note, volume, sampleRateRatio, false, false)
	}
}

func (c *channel) noteOff(sampleRateRatio float64) {
	if !c.active {
		return
	}
	for i := range c.ops {
		c.ops[i].release(sampleRateRatio)
	}
}

// controlTick advances pan glide, the channel-level LFO, and every operator's
// envelope/pitch state at control-tick (per 8-sample-block) rate.
func (c *channel) controlTick(sampleRateRatio float64) {
	if !c.active {
		return
	}

	transitionSpeed := transitionSpeedBase / sampleRateRatio
	c.pan = (c.pan*float32(transitionSpeed-1) + c.destPan) / float32(transitionSpeed)

	c.lfoDelayCpt++
	if c.lfoDelayCpt >= c.lfoDelayMax {
		c.lfoPhase += uint32(c.lfoIncr)
		c.lfoEnv += (1 - c.lfoEnv) * c.lfoA
	}
	idx := (c.lfoPhase & c.lfoMask) >> PhaseShift
	c.lfo = Wavetables[c.lfoBaseWave][idx&TableMask] * float32(c.lfoEnv)

	envReset := c.instr.Flags&tracker.FlagEnvReset != 0
	phaseReset := c.instr.Flags&tracker.FlagPhaseReset != 0
	for i := range c.ops {
		c.ops[i].controlTick(envReset, phaseReset, sampleRateRatio, c.lfo, c.pitchBend)
	}

	allIdle := true
	for i := range c.ops {
		if c.ops[i].active() {
			allIdle = false
			break
		}
	}
	if allIdle {
		c.active = false
	}
}

// mix renders one sample of this channel's six operators through the instrument's
// routing graph (connect/connect2/connectOut/toMix/feedback) and returns the
// channel's mono voice output, in the engine's native (pre-normalization)
// amplitude scale, before pan/click-smoothing are applied.
func (c *channel) mix() float32 {
	if !c.active || c.instr == nil {
		return 0
	}
	inst := c.instr

	var modAccum [tracker.NumOperators]float32
	if inst.FeedbackSource >= 0 && int(inst.FeedbackSource) < tracker.NumOperators {
		fb := &c.ops[inst.FeedbackSource]
		modAccum[0] += (fb.out + fb.lastOut) * 0.5 * c.feedbackLevel
	}

	var opOut [tracker.NumOperators]float32
	for i := 0; i < tracker.NumOperators; i++ {
		def := &inst.Operators[i]
		out := c.ops[i].sample(uint32(int32(modAccum[i])))
		opOut[i] = out
		if def.Connect >= 0 && int(def.Connect) < tracker.NumOperators {
			modAccum[def.Connect] += out
		}
		if def.Connect2 >= 0 && int(def.Connect2) < tracker.NumOperators {
			modAccum[def.Connect2] += out
		}
	}

	var mixBus float32
	for _, idx := range inst.ToMix {
		if idx >= 0 && int(idx) < tracker.NumOperators {
			mixBus += opOut[idx]
		}
	}
	for i := range inst.Operators {
		if inst.Operators[i].Connect2 == 6 {
			mixBus += opOut[i]
		}
	}

	var voice float32
	for i := 0; i < tracker.NumOperators; i++ {
		if inst.Operators[i].ConnectOut >= 0 {
			voice += opOut[i]
		}
	}
	voice += mixBus

	return voice * ExpVol[inst.Volume]
}

// render produces the final stereo, click-smoothed, equal-power-panned samples
// for this channel and also returns the reverb-send portion.
func (c *channel) render() (l, r, send float32) {
	rendu := c.mix()

	c.lastRender2 = c.lastRender
	c.lastRender = rendu
	if c.fade > 0.00001 {
		rendu = rendu*(1-c.fade) + c.fadeFrom*c.fade
		c.fadeFrom += c.delta * c.fade
		c.fade *= c.fadeIncr
	}

	idx := uint32(c.pan * LUTratio)
	leftIdx := (idx + TableSize/4) & TableMask
	rightIdx := idx & TableMask
	left := rendu * Wavetables[WaveSine][leftIdx] * c.volume
	right := rendu * Wavetables[WaveSine][rightIdx] * c.volume

	return left, right, (left + right) * 0.5 * c.reverbSend
}

// denormalFlush is the explicit flush-to-zero guard used wherever feedback/filter
// state could decay into denormal range; Go cannot touch the FPU's FTZ control bit
// without cgo, so every recursive filter tap is passed through this instead.
func denormalFlush(x float64) float64 {
	if math.Abs(x) < 1e-20 {
		return 0
	}
	return x
}

func denormalFlush32(x float32) float32 {
	if x < 0 {
		if x > -1e-20 {
			return 0
		}
		return x
	}
	if x < 1e-20 {
		return 0
	}
	return x
}
