package synth

import "github.com/mudtracker/fmengine/pkg/tracker"

// effectState is the per-channel memory effects need between rows/ticks: the
// active effect/parameter for this row, slide/portamento targets, and the
// channel's current arpeggio/retrigger/note-delay phase.
type effectState struct {
	active bool
	fx     uint8
	data   uint8

	arpIndex  int
	portaDest [tracker.NumOperators]float64 // target incr per operator, 'G' portamento

	retrigEvery uint8
	retrigCount uint8
	retrigLeft  uint8

	noteDelay    uint8
	pendingNote  uint8
	pendingInstr uint8
	pendingVol   uint8
}

// applyCell processes a new row's cell on this channel: note triggering and the
// "on-row" half of each effect (the per-tick half runs from tickEffect below).
func (e *Engine) applyCell(chIdx int, cell tracker.Cell) {
	c := &e.channels[chIdx]
	st := &c.effectState

	if cell.Fx != tracker.Empty {
		st.active = true
		st.fx = cell.Fx
		st.data = cell.FxData
	} else {
		st.active = false
	}

	delay := uint8(0)
	if st.fx == tracker.FxNoteDelay {
		delay = st.data
	}

	if delay > 0 {
		st.noteDelay = delay
		st.pendingNote = cell.Note
		st.pendingInstr = cell.Instr
		st.pendingVol = cell.Vol
		return
	}

	// Portamento to a new note over a voice that is still sounding glides toward
	// it instead of replaying it.
	glide := st.fx == tracker.FxPortaToNote && c.active && cell.Note < tracker.NoteOff
	if !glide {
		e.triggerCell(chIdx, cell)
	}

	switch st.fx {
	case tracker.FxTempo:
		if st.data == 0 {
			e.song.Tempo = 1
		} else {
			e.song.Tempo = st.data
		}
		e.recalcTickRate()
	case tracker.FxPortaToNote:
		if cell.Note != tracker.NoteEmpty && cell.Note != tracker.NoteOff && c.instr != nil {
			target := clampNote(int(cell.Note) + int(c.transpose) + int(e.song.Transpose))
			temperament := c.instr.Temperament[target%12]
			for i := range c.ops {
				def := &c.instr.Operators[i]
				pitchScaling := 1 + (float64(target)-float64(def.KbdCenterNote))*
					float64(def.KbdPitchScaling)*0.001
				st.portaDest[i] = calcIncr(def, target, temperament, c.tuning, e.sampleRateRatio) * pitchScaling
			}
		}
	case tracker.FxRetrigger:
		if st.data > 0 {
			st.retrigEvery = uint8(24 / int(st.data))
			if st.retrigEvery < 1 {
				st.retrigEvery = 1
			}
			st.retrigCount = 0
			st.retrigLeft = st.data
		}
	case tracker.FxPitchBend:
		c.pitchBend = 1 - (128-float64(st.data))*0.00092852373168154813872606848242328
	case tracker.FxPanSet:
		c.destPan = float32(st.data)
	case tracker.FxChannelVolume:
		if st.data <= 99 {
			c.volume = ExpVol[st.data]
		}
	case tracker.FxReverbSend:
		if st.data <= 99 {
			c.reverbSend = ExpVol[st.data]
		}
	case tracker.FxReverbGlobal:
		if st.data <= 40 {
			e.reverb.setLength(0.5 + float64(st.data)*0.0125)
		} else {
			size := float64(st.data) - 40
			if size < 1 {
				size = 1
			}
			if size > 40 {
				size = 40
			}
			e.reverbRoomSize = size * 0.025
			e.reverb.setRoomSize(e.reverbRoomSize)
		}
	case tracker.FxVibrato:
		c.lfoEnv = 1
		c.lfoIncr = float64(int(st.data)/16*128) * LUTratio
		for i := range c.ops {
			c.ops[i].lfoFM = float32(st.data%16) * 0.003
		}
	case tracker.FxTremolo:
		c.lfoEnv = 1
		c.lfoIncr = float64(int(st.data)/16*128) * LUTratio
		for i := range c.ops {
			c.ops[i].lfoAM = float32(st.data%16) / 16
		}
	}
}

func (e *Engine) triggerCell(chIdx int, cell tracker.Cell) {
	c := &e.channels[chIdx]
	switch cell.Note {
	case tracker.NoteEmpty:
		// no note, but volume/instrument-only columns can still apply below
	case tracker.NoteOff:
		c.noteOff(e.sampleRateRatio)
	default:
		inst := e.defaultInstrument()
		if cell.Instr != tracker.Empty && int(cell.Instr) < len(e.song.Instruments) {
			inst = &e.song.Instruments[cell.Instr]
		} else if c.instr != nil {
			inst = c.instr
		}
		if inst == nil {
			return
		}
		vol := uint8(99)
		if cell.Vol != tracker.Empty && cell.Vol <= 99 {
			vol = cell.Vol
		}
		c.noteOn(inst, cell.Note, vol, e.sampleRateRatio, e.song.Transpose)
	}
}

func (e *Engine) defaultInstrument() *tracker.Instrument {
	if len(e.song.Instruments) == 0 {
		return nil
	}
	return &e.song.Instruments[0]
}

// tickEffect runs the per-tick half of whatever effect is active on a channel:
// arpeggio stepping, slides/portamento, retrigger, note delay.
func (e *Engine) tickEffect(chIdx int) {
	c := &e.channels[chIdx]
	st := &c.effectState

	if st.noteDelay > 0 {
		st.noteDelay--
		if st.noteDelay == 0 {
			e.triggerCell(chIdx, tracker.Cell{
				Note: st.pendingNote, Instr: st.pendingInstr, Vol: st.pendingVol,
				Fx: tracker.Empty, FxData: 0,
			})
		}
		return
	}

	if !st.active {
		return
	}

	switch st.fx {
	case tracker.FxArpeggio:
		if st.data != 0 {
			st.arpIndex = (st.arpIndex + 1) % 3
			offsets := [3]int{0, int(st.data / 16), int(st.data % 16)}
			note := clampNote(int(c.note) + offsets[st.arpIndex])
			c.retune(note, currentVolume(c), e.sampleRateRatio)
		}
	case tracker.FxPortaUp:
		for i := range c.ops {
			c.ops[i].incr += float64(st.data) * c.ops[i].incr * 0.0001
		}
	case tracker.FxPortaDown:
		for i := range c.ops {
			c.ops[i].incr += -float64(st.data) * c.ops[i].incr * 0.0001
		}
	case tracker.FxPortaToNote:
		for i := range c.ops {
			c.ops[i].incr += (st.portaDest[i] - c.ops[i].incr) * float64(st.data) * 0.001
		}
	case tracker.FxChannelVolSlide:
		c.volume += (float32(st.data) - 127) * 0.0001
		clampFloat(&c.volume, 0, 1)
	case tracker.FxPanSlide:
		c.destPan += (127 - float32(st.data)) * -0.05
		clampFloat255(&c.destPan)
	case tracker.FxRetrigger:
		if st.retrigLeft > 0 {
			st.retrigCount++
			if st.retrigCount >= st.retrigEvery {
				st.retrigCount = 0
				st.retrigLeft--
				if c.instr != nil {
					c.noteOn(c.instr, c.note, currentVolume(c), e.sampleRateRatio, e.song.Transpose)
				}
			}
		}
	case tracker.FxGlobalVolSlide:
		e.globalVolume += (float32(st.data) - 127) * 0.0001
		clampFloat(&e.globalVolume, 0, 1)
	}
}

// currentVolume is the 0..99 volume used by effects (arpeggio, retrigger) that
// repeat a note-on without a fresh volume column: the channel instrument's own
// Volume, or 99 with no instrument. The cell volume the note was first played
// with is not kept, so it is not reused here.
func currentVolume(c *channel) uint8 {
	if c.instr == nil {
		return 99
	}
	return c.instr.Volume
}

func clampNote(n int) uint8 {
	if n < 0 {
		return 0
	}
	if n > 127 {
		return 127
	}
	return uint8(n)
}

func clampFloat(v *float32, lo, hi float32) {
	if *v < lo {
		*v = lo
	}
	if *v > hi {
		*v = hi
	}
}

func clampFloat255(v *float32) {
	if *v < 0 {
		*v = 0
	}
	if *v > 255 {
		*v = 255
	}
}
