package synth

// reverbTapLengths are the six literal comb/allpass tap lengths (in samples, at the
// 48kHz reference rate) the original engine hard-codes; actual lengths scale by
// roomSize and the live sample rate.
var reverbTapLengths = [6]float64{6553.6, 3727.5, 6081.6, 3499.5, 3762, 1755}

// reverbComb is one averaging comb filter: its output is the mean of the value at
// the current write phase and the value written the previous sample, and what
// gets written back folds in an external feed signal plus that same average
// scaled by reverbLength.
type reverbComb struct {
	buf       []float32
	phase     int
	prevPhase int
}

func newComb(size int) *reverbComb {
	if size < 1 {
		size = 1
	}
	return &reverbComb{buf: make([]float32, size)}
}

func (c *reverbComb) step(feed float32, reverbLength float32) float32 {
	old := (c.buf[c.phase] + c.buf[c.prevPhase]) * 0.5
	c.buf[c.phase] = denormalFlush32(feed + old*reverbLength)
	c.prevPhase = c.phase
	c.phase++
	if c.phase >= len(c.buf) {
		c.phase = 0
	}
	return old
}

// allpass is a classic Schroeder allpass: out = 0.5*in + buf[phase], and
// buf[phase] = in - 0.5*out before advancing.
type allpass struct {
	buf   []float32
	phase int
}

func newAllpass(size int) *allpass {
	if size < 1 {
		size = 1
	}
	return &allpass{buf: make([]float32, size)}
}

func (a *allpass) step(in float32) float32 {
	out := 0.5*in + a.buf[a.phase]
	a.buf[a.phase] = denormalFlush32(in - 0.5*out)
	a.phase++
	if a.phase >= len(a.buf) {
		a.phase = 0
	}
	return out
}

// reverb is the engine's stereo send effect: four cross-fed averaging combs (two
// per side) feeding two cascaded allpass stages per side. Only the second
// allpass stage's output is returned, to be added into the dry mix.
type reverb struct {
	combL1, combL2, combR1, combR2 *reverbComb
	ap1L, ap1R, ap2L, ap2R         *allpass

	roomSize, reverbLength, sampleRateRatio float64
}

func newReverb(sampleRate, roomSize, reverbLength float64) *reverb {
	r := &reverb{
		sampleRateRatio: 48000 / sampleRate,
		reverbLength:    reverbLength,
	}
	r.setRoomSize(roomSize)
	return r
}

// setRoomSize rebuilds every comb/allpass tap at the new room size, matching
// mt_initReverb (the 'S' effect's room-size branch forces a full rebuild since
// the tap lengths themselves change with it).
func (r *reverb) setRoomSize(roomSize float64) {
	r.roomSize = roomSize
	var mod [6]int
	for i, base := range reverbTapLengths {
		mod[i] = int(base * roomSize / r.sampleRateRatio)
		if mod[i] < 1 {
			mod[i] = 1
		}
	}
	r.combL1 = newComb(mod[0])
	r.combL2 = newComb(mod[1])
	r.combR1 = newComb(mod[2])
	r.combR2 = newComb(mod[3])
	r.ap1L = newAllpass(mod[4])
	r.ap1R = newAllpass(mod[4])
	r.ap2L = newAllpass(mod[5])
	r.ap2R = newAllpass(mod[5])
}

// setLength changes the feedback amount without touching tap lengths, matching
// the 'S' effect's fxdata<=40 branch.
func (r *reverb) setLength(length float64) {
	r.reverbLength = length
}

func (r *reverb) process(inL, inR float32) (float32, float32) {
	rl := float32(r.reverbLength)

	oldL1 := r.combL1.step(inR, rl)
	oldL2 := r.combL2.step(inL, rl)
	oldR1 := r.combR1.step(inL, rl)
	oldR2 := r.combR2.step(inR, rl)

	outL := (oldL1 + oldL2) * 0.5
	outR := (oldR1 + oldR2) * 0.5

	outL = r.ap1L.step(outL)
	outR = r.ap1R.step(outR)
	outL = r.ap2L.step(outL)
	outR = r.ap2R.step(outR)

	return outL, outR
}
