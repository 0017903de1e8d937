// Package tracker implements the core data structures of a tracker song: patterns of
// note/effect cells, the FM instrument bank, and the song-level and per-channel
// defaults that seed playback.
package tracker

// Fixed dimensions of the format.
const (
	NumChannels  = 24 // FM_ch
	NumOperators = 6  // FM_op
)

// Empty is the universal "no change" sentinel for Cell fields.
const Empty = 255

// Special Cell.Note values.
const (
	NoteOff   = 128 // stop the note on this channel
	NoteEmpty = 255
)

// Cell is one tracker cell: the note/instrument/volume/effect tuple at
// (pattern, row, channel).
type Cell struct {
	Note   uint8 // 0..127 MIDI note, 128 = note-off, 255 = empty
	Instr  uint8 // 0..254 instrument index, 255 = empty
	Vol    uint8 // 0..99 volume, 255 = empty
	Fx     uint8 // ASCII effect tag, 255 = none
	FxData uint8 // effect parameter
}

// EmptyCell is the value every unwritten Cell holds.
var EmptyCell = Cell{Note: NoteEmpty, Instr: Empty, Vol: Empty, Fx: Empty, FxData: 0}

// Effect tags (spec.md §4.5). fxdata's on-disk byte format is preserved regardless of
// how a given effect's parameter is sliced up internally (nibbles, signed, etc).
const (
	FxArpeggio       = 'A'
	FxJumpPattern    = 'B'
	FxJumpRow        = 'C'
	FxNoteDelay      = 'D'
	FxPortaUp        = 'E'
	FxPortaDown      = 'F'
	FxPortaToNote    = 'G'
	FxVibrato        = 'H'
	FxPitchBend      = 'I'
	FxTremolo        = 'J'
	FxInstrParam     = 'K'
	FxChannelVolume  = 'M'
	FxChannelVolSlide = 'N'
	FxPanSlide       = 'P'
	FxRetrigger      = 'Q'
	FxReverbSend     = 'R'
	FxReverbGlobal   = 'S'
	FxTempo          = 'T'
	FxGlobalVolSlide = 'W'
	FxPanSet         = 'X'
)

// Pattern is an ordered sequence of rows, each a fixed-width tuple of NumChannels cells.
type Pattern struct {
	Rows [][NumChannels]Cell
}

// NewPattern builds an empty pattern of the given length (clamped to 1..256).
func NewPattern(rows int) *Pattern {
	if rows < 1 {
		rows = 1
	}
	if rows > 256 {
		rows = 256
	}
	p := &Pattern{Rows: make([][NumChannels]Cell, rows)}
	for i := range p.Rows {
		for ch := range p.Rows[i] {
			p.Rows[i][ch] = EmptyCell
		}
	}
	return p
}

// InstrumentFlags is the per-instrument bitset (spec.md §3).
type InstrumentFlags uint8

const (
	FlagTransposable InstrumentFlags = 1 << iota
	FlagLFOReset
	FlagSmooth
	FlagEnvReset
	FlagPhaseReset
)

// OperatorDef is the serialized definition of one FM operator within an instrument.
type OperatorDef struct {
	Connect    int8 // -1 silence, 0..5 operator index to phase-modulate
	Connect2   int8 // -1 silence, 0..5 operator index, 6 = channel mixer bus
	ConnectOut int8 // -1 silence, 0..5 operator index contributing to channel output

	Waveform  uint8 // 0..7 wavetable index
	Vol       uint8 // 0..99 base operator volume
	FixedFreq bool
	Mult      uint8 // 0..40 ratio, or 0..255 Hz-like when FixedFreq
	Finetune  uint8 // 0..24 twenty-fourths of a semitone
	Detune    int8  // -100..100 cents

	Delay uint8 // 0..99
	A     uint8 // attack 0..99
	H     uint8 // hold 0..80
	D     uint8 // decay 0..99
	S     uint8 // sustain level 0..99
	R     int8  // release -99..99, negative = inverted (grows after release)

	EnvLoop bool
	I       uint8 // initial envelope level 0..99
	Offset  uint8 // initial phase bucket 0..31

	PitchInitialRatio int8 // -99..99
	PitchFinalRatio   int8 // -99..99
	PitchDecay        uint8
	PitchRelease      uint8

	LFOFM uint8 // 0..99
	LFOAM uint8 // 0..99

	VelSensitivity uint8 // 0..99

	KbdVolScaling   int16 // per-mille
	KbdAScaling     int8
	KbdDScaling     int8
	KbdPitchScaling int16 // per-mille
	KbdCenterNote   uint8

	Muted bool
}

// Instrument is a complete FM-synthesis patch: six operators plus routing/LFO/tuning
// defaults shared by every channel that plays it.
type Instrument struct {
	Name    string
	Version uint8

	Operators [NumOperators]OperatorDef

	ToMix          [4]int8 // operator indices summed into the channel's mixer bus, -1 = none
	FeedbackSource int8    // 0..5
	Feedback       uint8   // 0..99

	Volume uint8 // 0..99

	LFOWaveform uint8 // 0..21
	LFOSpeed    uint8 // 0..99
	LFODelay    uint8 // 0..99
	LFOAttack   uint8 // 0..99 (attack rate of the LFO's own envelope)
	LFOOffset   uint8 // 0..31

	Transpose int8 // -12..12
	Tuning    int8 // -100..100 cents

	Temperament [12]int8 // per pitch-class fine temperament, cents

	Flags InstrumentFlags
	Kfx   uint8 // selects which parameter effect 'K' edits
}

// NewDefaultInstrument mirrors mt_createDefaultInstrument: a single sine operator at
// full volume with an instant attack and a non-looping release at the fastest
// release rate (R=99).
func NewDefaultInstrument() Instrument {
	var inst Instrument
	inst.Name = "Default"
	inst.Version = 1
	inst.Volume = 99
	for op := range inst.Operators {
		inst.Operators[op].Connect = -1
		inst.Operators[op].Connect2 = -1
		inst.Operators[op].ConnectOut = int8(op)
	}
	inst.Operators[0].A = 99
	inst.Operators[0].Mult = 1
	inst.Operators[0].Vol = 99
	inst.Operators[0].R = 99
	for i := range inst.ToMix {
		inst.ToMix[i] = -1
	}
	return inst
}

// ChannelDefaults holds the per-channel song-level defaults that seed playback
// (spec.md §3: "Song: ... per-channel initial pan ... initial volume ... initial
// reverb-send").
type ChannelDefaults struct {
	Pan        uint8 // 0..255, 127 = center
	Volume     uint8 // 0..99
	ReverbSend uint8 // 0..99
}

// Song is a complete tracker song: an ordered list of patterns (played back in array
// order — there is no separate reorder table), a bank of instruments, and the global/
// per-channel defaults that seed playback.
type Song struct {
	Name    string // up to 63 chars
	Author  string // up to 63 chars
	Comment string // up to 255 chars

	Tempo          uint8   // BPM
	Divisor        uint8   // rows per beat, 1..32
	GlobalVolume   uint8   // 0..99
	Transpose      int8    // semitones
	ReverbLength   float64 // 0..1
	ReverbRoomSize float64 // 0..1

	Channels [NumChannels]ChannelDefaults

	Patterns    []*Pattern
	Instruments []Instrument
}

// NewSong builds a song with the engine's power-on defaults (mt_setDefaults): a
// single empty pattern, one default instrument, tempo 120, divisor 4, reverb length
// 0.875 and room size 0.55, all channels centered at full volume with no reverb send.
func NewSong() *Song {
	s := &Song{
		Tempo:          120,
		Divisor:        4,
		GlobalVolume:   60,
		ReverbLength:   0.875,
		ReverbRoomSize: 0.55,
		Patterns:       []*Pattern{NewPattern(64)},
		Instruments:    []Instrument{NewDefaultInstrument()},
	}
	for ch := range s.Channels {
		s.Channels[ch] = ChannelDefaults{Pan: 127, Volume: 99, ReverbSend: 0}
	}
	return s
}
