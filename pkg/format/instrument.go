package format

import (
	"bytes"
	"encoding/binary"
	"hash/adler32"
	"io"

	"github.com/mudtracker/fmengine/pkg/tracker"
)

var instrumentMagic = [4]byte{'M', 'D', 'T', 'I'}
var bankMagic = [4]byte{'M', 'D', 'T', 'B'}
var slotMagic = [4]byte{'S', 'L', 'O', 'T'}

const instrumentVersion = 1

// SaveInstrument writes a single instrument in the MDTI format (magic, version,
// uint32 payload length, payload, Adler-32 checksum — SaveSong's envelope plus
// the length field).
func SaveInstrument(w io.Writer, inst *tracker.Instrument) error {
	var buf bytes.Buffer
	if err := writeInstrumentPayload(&buf, inst); err != nil {
		return ioErr("SaveInstrument", err)
	}
	return writeFramed(w, instrumentMagic, instrumentVersion, buf.Bytes())
}

// LoadInstrument reads an MDTI file written by SaveInstrument. If the checksum
// fails, the payload is still decoded and passed through recoverInstrument so a
// partially-corrupted file yields a clamped, usable instrument instead of nothing
// — mirroring the original engine's recovery path — but KindCorrupted is still
// returned so the caller knows the data was not trustworthy.
func LoadInstrument(r io.Reader) (*tracker.Instrument, error) {
	payload, corrupted, err := readFramed(r, instrumentMagic, instrumentVersion)
	if err != nil {
		return nil, err
	}
	inst, rerr := readInstrumentPayload(bytes.NewReader(payload))
	if rerr != nil {
		return nil, ioErr("LoadInstrument", rerr)
	}
	recoverInstrument(inst)
	if corrupted {
		return inst, corruptedErr("LoadInstrument")
	}
	return inst, nil
}

// SaveInstrumentBank writes a bank of instruments: a bank-level MDTB header
// followed by one SLOT-framed instrument per entry, each independently
// checksummed so a single corrupted slot doesn't invalidate the whole bank.
// (Resolves spec.md's open question on this function's return value: failure on
// the first write error, matching every other Save* in this package.)
func SaveInstrumentBank(w io.Writer, bank []tracker.Instrument) error {
	if _, err := w.Write(bankMagic[:]); err != nil {
		return ioErr("SaveInstrumentBank", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(len(bank))); err != nil {
		return ioErr("SaveInstrumentBank", err)
	}
	for i := range bank {
		var buf bytes.Buffer
		if err := writeInstrumentPayload(&buf, &bank[i]); err != nil {
			return ioErr("SaveInstrumentBank", err)
		}
		if err := writeFramed(w, slotMagic, instrumentVersion, buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

// LoadInstrumentBank reads a bank written by SaveInstrumentBank. A corrupted slot
// is recovered in place (clamped defaults via recoverInstrument) rather than
// aborting the whole load; the returned error is non-nil if any slot failed its
// checksum, but the bank is always fully populated.
func LoadInstrumentBank(r io.Reader) ([]tracker.Instrument, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, ioErr("LoadInstrumentBank", err)
	}
	if magic != bankMagic {
		return nil, ioErr("LoadInstrumentBank", ErrBadMagic)
	}
	var count uint16
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, ioErr("LoadInstrumentBank", err)
	}

	bank := make([]tracker.Instrument, count)
	var anyCorrupted bool
	for i := range bank {
		payload, corrupted, err := readFramed(r, slotMagic, instrumentVersion)
		if err != nil {
			return nil, err
		}
		inst, rerr := readInstrumentPayload(bytes.NewReader(payload))
		if rerr != nil {
			return nil, ioErr("LoadInstrumentBank", rerr)
		}
		recoverInstrument(inst)
		bank[i] = *inst
		anyCorrupted = anyCorrupted || corrupted
	}
	if anyCorrupted {
		return bank, corruptedErr("LoadInstrumentBank")
	}
	return bank, nil
}

// writeFramed wraps payload in magic + version + uint32 payload length + payload +
// Adler-32(payload).
func writeFramed(w io.Writer, magic [4]byte, version uint8, payload []byte) error {
	if _, err := w.Write(magic[:]); err != nil {
		return ioErr("writeFramed", err)
	}
	if err := binary.Write(w, binary.LittleEndian, version); err != nil {
		return ioErr("writeFramed", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(payload))); err != nil {
		return ioErr("writeFramed", err)
	}
	if _, err := w.Write(payload); err != nil {
		return ioErr("writeFramed", err)
	}
	sum := adler32.Checksum(payload)
	return binary.Write(w, binary.LittleEndian, sum)
}

// readFramed reads back a writeFramed block, returning (payload, corrupted, err):
// corrupted is true when the checksum does not match but the frame was otherwise
// well-formed (magic/version/length all sane), letting callers recover in place
// instead of failing outright.
func readFramed(r io.Reader, wantMagic [4]byte, maxVersion uint8) ([]byte, bool, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, false, ioErr("readFramed", err)
	}
	if magic != wantMagic {
		return nil, false, ioErr("readFramed", ErrBadMagic)
	}
	var version uint8
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, false, ioErr("readFramed", err)
	}
	if version > maxVersion {
		return nil, false, versionErr("readFramed")
	}
	var length uint32
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return nil, false, ioErr("readFramed", err)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, false, ioErr("readFramed", err)
	}
	var sum uint32
	if err := binary.Read(r, binary.LittleEndian, &sum); err != nil {
		return nil, false, ioErr("readFramed", err)
	}
	return payload, adler32.Checksum(payload) != sum, nil
}

func writeInstrumentPayload(buf *bytes.Buffer, inst *tracker.Instrument) error {
	if err := writeString(buf, inst.Name, 63); err != nil {
		return err
	}
	buf.WriteByte(inst.Version)
	for i := range inst.Operators {
		if err := writeOperator(buf, &inst.Operators[i]); err != nil {
			return err
		}
	}
	for _, m := range inst.ToMix {
		buf.WriteByte(byte(m))
	}
	buf.WriteByte(byte(inst.FeedbackSource))
	buf.WriteByte(inst.Feedback)
	buf.WriteByte(inst.Volume)
	buf.WriteByte(inst.LFOWaveform)
	buf.WriteByte(inst.LFOSpeed)
	buf.WriteByte(inst.LFODelay)
	buf.WriteByte(inst.LFOAttack)
	buf.WriteByte(inst.LFOOffset)
	buf.WriteByte(byte(inst.Transpose))
	buf.WriteByte(byte(inst.Tuning))
	for _, t := range inst.Temperament {
		buf.WriteByte(byte(t))
	}
	buf.WriteByte(byte(inst.Flags))
	buf.WriteByte(inst.Kfx)
	return nil
}

func readInstrumentPayload(br *bytes.Reader) (*tracker.Instrument, error) {
	inst := &tracker.Instrument{}
	name, err := readString(br, 63)
	if err != nil {
		return nil, err
	}
	inst.Name = name
	v, err := br.ReadByte()
	if err != nil {
		return nil, err
	}
	inst.Version = v

	for i := range inst.Operators {
		op, err := readOperator(br)
		if err != nil {
			return nil, err
		}
		inst.Operators[i] = op
	}

	for i := range inst.ToMix {
		b, err := br.ReadByte()
		if err != nil {
			return nil, err
		}
		inst.ToMix[i] = int8(b)
	}

	fields := make([]byte, 8)
	if _, err := io.ReadFull(br, fields); err != nil {
		return nil, err
	}
	inst.FeedbackSource = int8(fields[0])
	inst.Feedback = fields[1]
	inst.Volume = fields[2]
	inst.LFOWaveform = fields[3]
	inst.LFOSpeed = fields[4]
	inst.LFODelay = fields[5]
	inst.LFOAttack = fields[6]
	inst.LFOOffset = fields[7]

	tr, err := br.ReadByte()
	if err != nil {
		return nil, err
	}
	inst.Transpose = int8(tr)
	tu, err := br.ReadByte()
	if err != nil {
		return nil, err
	}
	inst.Tuning = int8(tu)

	for i := range inst.Temperament {
		b, err := br.ReadByte()
		if err != nil {
			return nil, err
		}
		inst.Temperament[i] = int8(b)
	}

	flags, err := br.ReadByte()
	if err != nil {
		return nil, err
	}
	inst.Flags = tracker.InstrumentFlags(flags)
	kfx, err := br.ReadByte()
	if err != nil {
		return nil, err
	}
	inst.Kfx = kfx

	return inst, nil
}

func writeOperator(buf *bytes.Buffer, op *tracker.OperatorDef) error {
	buf.WriteByte(byte(op.Connect))
	buf.WriteByte(byte(op.Connect2))
	buf.WriteByte(byte(op.ConnectOut))
	buf.WriteByte(op.Waveform)
	buf.WriteByte(op.Vol)
	buf.WriteByte(boolByte(op.FixedFreq))
	buf.WriteByte(op.Mult)
	buf.WriteByte(op.Finetune)
	buf.WriteByte(byte(op.Detune))
	buf.WriteByte(op.Delay)
	buf.WriteByte(op.A)
	buf.WriteByte(op.H)
	buf.WriteByte(op.D)
	buf.WriteByte(op.S)
	buf.WriteByte(byte(op.R))
	buf.WriteByte(boolByte(op.EnvLoop))
	buf.WriteByte(op.I)
	buf.WriteByte(op.Offset)
	buf.WriteByte(byte(op.PitchInitialRatio))
	buf.WriteByte(byte(op.PitchFinalRatio))
	buf.WriteByte(op.PitchDecay)
	buf.WriteByte(op.PitchRelease)
	buf.WriteByte(op.LFOFM)
	buf.WriteByte(op.LFOAM)
	buf.WriteByte(op.VelSensitivity)
	if err := binary.Write(buf, binary.LittleEndian, op.KbdVolScaling); err != nil {
		return err
	}
	buf.WriteByte(byte(op.KbdAScaling))
	buf.WriteByte(byte(op.KbdDScaling))
	if err := binary.Write(buf, binary.LittleEndian, op.KbdPitchScaling); err != nil {
		return err
	}
	buf.WriteByte(op.KbdCenterNote)
	buf.WriteByte(boolByte(op.Muted))
	return nil
}

func readOperator(br *bytes.Reader) (tracker.OperatorDef, error) {
	var op tracker.OperatorDef
	b := make([]byte, 23)
	if _, err := io.ReadFull(br, b); err != nil {
		return op, err
	}
	op.Connect = int8(b[0])
	op.Connect2 = int8(b[1])
	op.ConnectOut = int8(b[2])
	op.Waveform = b[3]
	op.Vol = b[4]
	op.FixedFreq = b[5] != 0
	op.Mult = b[6]
	op.Finetune = b[7]
	op.Detune = int8(b[8])
	op.Delay = b[9]
	op.A = b[10]
	op.H = b[11]
	op.D = b[12]
	op.S = b[13]
	op.R = int8(b[14])
	op.EnvLoop = b[15] != 0
	op.I = b[16]
	op.Offset = b[17]
	op.PitchInitialRatio = int8(b[18])
	op.PitchFinalRatio = int8(b[19])
	op.PitchDecay = b[20]
	op.PitchRelease = b[21]
	op.LFOFM = b[22]

	b2 := make([]byte, 1)
	if _, err := io.ReadFull(br, b2); err != nil {
		return op, err
	}
	op.LFOAM = b2[0]

	vs, err := br.ReadByte()
	if err != nil {
		return op, err
	}
	op.VelSensitivity = vs

	if err := binary.Read(br, binary.LittleEndian, &op.KbdVolScaling); err != nil {
		return op, err
	}
	ka, err := br.ReadByte()
	if err != nil {
		return op, err
	}
	op.KbdAScaling = int8(ka)
	kd, err := br.ReadByte()
	if err != nil {
		return op, err
	}
	op.KbdDScaling = int8(kd)
	if err := binary.Read(br, binary.LittleEndian, &op.KbdPitchScaling); err != nil {
		return op, err
	}
	kc, err := br.ReadByte()
	if err != nil {
		return op, err
	}
	op.KbdCenterNote = kc
	mu, err := br.ReadByte()
	if err != nil {
		return op, err
	}
	op.Muted = mu != 0

	return op, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// recoverInstrument clamps fields to the ranges the original engine enforces on
// the *recovery* path specifically (tighter than some live-parameter ranges, e.g.
// Delay here clamps to 0..70 rather than the live 0..99) so a structurally valid
// but out-of-range instrument read from disk can't destabilize playback.
func recoverInstrument(inst *tracker.Instrument) {
	clampU8(&inst.Volume, 0, 99)
	clampU8(&inst.LFOSpeed, 0, 99)
	clampU8(&inst.LFODelay, 0, 99)
	clampU8(&inst.LFOAttack, 0, 99)
	clampU8(&inst.LFOOffset, 0, 31)
	if inst.LFOWaveform > 21 {
		inst.LFOWaveform = 21
	}
	clampI8(&inst.Transpose, -12, 12)
	clampI8(&inst.Tuning, -100, 100)

	for i := range inst.Operators {
		op := &inst.Operators[i]
		clampI8(&op.Connect, -1, 5)
		clampI8(&op.Connect2, -1, 6)
		clampI8(&op.ConnectOut, -1, 5)
		if op.Waveform >= 8 {
			op.Waveform = 0
		}
		clampU8(&op.Vol, 0, 99)
		clampU8(&op.Delay, 0, 70)
		clampU8(&op.A, 0, 99)
		clampU8(&op.H, 0, 80)
		clampU8(&op.D, 0, 99)
		clampU8(&op.S, 0, 99)
		clampI8(&op.R, -99, 99)
		clampU8(&op.I, 0, 99)
		clampU8(&op.Offset, 0, 31)
	}
	for i := range inst.ToMix {
		clampI8(&inst.ToMix[i], -1, 5)
	}
	clampI8(&inst.FeedbackSource, -1, 5)
	clampU8(&inst.Feedback, 0, 99)
}

func clampU8(v *uint8, lo, hi uint8) {
	if *v < lo {
		*v = lo
	}
	if *v > hi {
		*v = hi
	}
}

func clampI8(v *int8, lo, hi int8) {
	if *v < lo {
		*v = lo
	}
	if *v > hi {
		*v = hi
	}
}
