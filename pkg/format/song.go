package format

import (
	"bytes"
	"encoding/binary"
	"hash/adler32"
	"io"

	"github.com/mudtracker/fmengine/pkg/tracker"
)

var songMagic = [4]byte{'M', 'D', 'T', 'S'}

const songVersion = 1

// SaveSong writes song in the MDTS wire format: a 4-byte magic, a version byte,
// the song payload, and a trailing Adler-32 checksum of the payload so LoadSong
// can detect truncation or corruption before trusting any field.
func SaveSong(w io.Writer, song *tracker.Song) error {
	var buf bytes.Buffer
	if err := writeSongPayload(&buf, song); err != nil {
		return ioErr("SaveSong", err)
	}
	sum := adler32.Checksum(buf.Bytes())

	if _, err := w.Write(songMagic[:]); err != nil {
		return ioErr("SaveSong", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint8(songVersion)); err != nil {
		return ioErr("SaveSong", err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return ioErr("SaveSong", err)
	}
	if err := binary.Write(w, binary.LittleEndian, sum); err != nil {
		return ioErr("SaveSong", err)
	}
	return nil
}

func writeSongPayload(buf *bytes.Buffer, song *tracker.Song) error {
	if err := writeString(buf, song.Name, 63); err != nil {
		return err
	}
	if err := writeString(buf, song.Author, 63); err != nil {
		return err
	}
	if err := writeString(buf, song.Comment, 255); err != nil {
		return err
	}
	fields := []uint8{song.Tempo, song.Divisor, song.GlobalVolume, uint8(song.Transpose)}
	for _, f := range fields {
		if err := buf.WriteByte(f); err != nil {
			return err
		}
	}
	if err := binary.Write(buf, binary.LittleEndian, song.ReverbLength); err != nil {
		return err
	}
	if err := binary.Write(buf, binary.LittleEndian, song.ReverbRoomSize); err != nil {
		return err
	}

	for ch := 0; ch < tracker.NumChannels; ch++ {
		c := song.Channels[ch]
		buf.WriteByte(c.Pan)
		buf.WriteByte(c.Volume)
		buf.WriteByte(c.ReverbSend)
	}

	if err := binary.Write(buf, binary.LittleEndian, uint16(len(song.Patterns))); err != nil {
		return err
	}
	for _, p := range song.Patterns {
		if err := writePattern(buf, p); err != nil {
			return err
		}
	}

	if err := binary.Write(buf, binary.LittleEndian, uint16(len(song.Instruments))); err != nil {
		return err
	}
	for i := range song.Instruments {
		if err := writeInstrumentPayload(buf, &song.Instruments[i]); err != nil {
			return err
		}
	}
	return nil
}

func writePattern(buf *bytes.Buffer, p *tracker.Pattern) error {
	if err := binary.Write(buf, binary.LittleEndian, uint16(len(p.Rows))); err != nil {
		return err
	}
	for _, row := range p.Rows {
		for ch := 0; ch < tracker.NumChannels; ch++ {
			c := row[ch]
			buf.WriteByte(c.Note)
			buf.WriteByte(c.Instr)
			buf.WriteByte(c.Vol)
			buf.WriteByte(c.Fx)
			buf.WriteByte(c.FxData)
		}
	}
	return nil
}

// LoadSong reads an MDTS file written by SaveSong, verifying magic, version, and
// checksum before returning a usable song. Field-level corruption that survives
// the checksum (a bit flip within an otherwise intact file that happens to still
// checksum correctly is not distinguishable from a valid file) is out of scope —
// the checksum is the only corruption signal the wire format carries.
func LoadSong(r io.Reader) (*tracker.Song, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, ioErr("LoadSong", err)
	}
	if len(raw) < 4+1+4 {
		return nil, ioErr("LoadSong", io.ErrUnexpectedEOF)
	}
	if !bytes.Equal(raw[:4], songMagic[:]) {
		return nil, ioErr("LoadSong", ErrBadMagic)
	}
	version := raw[4]
	if version > songVersion {
		return nil, versionErr("LoadSong")
	}
	payload := raw[5 : len(raw)-4]
	wantSum := binary.LittleEndian.Uint32(raw[len(raw)-4:])
	if adler32.Checksum(payload) != wantSum {
		return nil, corruptedErr("LoadSong")
	}

	br := bytes.NewReader(payload)
	return readSongPayload(br)
}

func readSongPayload(br *bytes.Reader) (*tracker.Song, error) {
	song := &tracker.Song{}
	var err error
	if song.Name, err = readString(br, 63); err != nil {
		return nil, ioErr("LoadSong", err)
	}
	if song.Author, err = readString(br, 63); err != nil {
		return nil, ioErr("LoadSong", err)
	}
	if song.Comment, err = readString(br, 255); err != nil {
		return nil, ioErr("LoadSong", err)
	}

	fields := make([]byte, 4)
	if _, err := io.ReadFull(br, fields); err != nil {
		return nil, ioErr("LoadSong", err)
	}
	song.Tempo, song.Divisor, song.GlobalVolume = fields[0], fields[1], fields[2]
	song.Transpose = int8(fields[3])

	if err := binary.Read(br, binary.LittleEndian, &song.ReverbLength); err != nil {
		return nil, ioErr("LoadSong", err)
	}
	if err := binary.Read(br, binary.LittleEndian, &song.ReverbRoomSize); err != nil {
		return nil, ioErr("LoadSong", err)
	}

	for ch := 0; ch < tracker.NumChannels; ch++ {
		row := make([]byte, 3)
		if _, err := io.ReadFull(br, row); err != nil {
			return nil, ioErr("LoadSong", err)
		}
		song.Channels[ch] = tracker.ChannelDefaults{Pan: row[0], Volume: row[1], ReverbSend: row[2]}
	}

	var numPatterns uint16
	if err := binary.Read(br, binary.LittleEndian, &numPatterns); err != nil {
		return nil, ioErr("LoadSong", err)
	}
	song.Patterns = make([]*tracker.Pattern, numPatterns)
	for i := range song.Patterns {
		p, err := readPattern(br)
		if err != nil {
			return nil, err
		}
		song.Patterns[i] = p
	}

	var numInstr uint16
	if err := binary.Read(br, binary.LittleEndian, &numInstr); err != nil {
		return nil, ioErr("LoadSong", err)
	}
	song.Instruments = make([]tracker.Instrument, numInstr)
	for i := range song.Instruments {
		inst, err := readInstrumentPayload(br)
		if err != nil {
			return nil, err
		}
		recoverInstrument(inst)
		song.Instruments[i] = *inst
	}

	return song, nil
}

func readPattern(br *bytes.Reader) (*tracker.Pattern, error) {
	var numRows uint16
	if err := binary.Read(br, binary.LittleEndian, &numRows); err != nil {
		return nil, ioErr("LoadSong", err)
	}
	p := &tracker.Pattern{Rows: make([][tracker.NumChannels]tracker.Cell, numRows)}
	for i := range p.Rows {
		raw := make([]byte, tracker.NumChannels*5)
		if _, err := io.ReadFull(br, raw); err != nil {
			return nil, ioErr("LoadSong", err)
		}
		for ch := 0; ch < tracker.NumChannels; ch++ {
			o := ch * 5
			p.Rows[i][ch] = tracker.Cell{
				Note: raw[o], Instr: raw[o+1], Vol: raw[o+2], Fx: raw[o+3], FxData: raw[o+4],
			}
		}
	}
	return p, nil
}

// writeString writes a length-prefixed (uint8) string, truncated to maxLen bytes.
func writeString(buf *bytes.Buffer, s string, maxLen int) error {
	b := []byte(s)
	if len(b) > maxLen {
		b = b[:maxLen]
	}
	if err := buf.WriteByte(uint8(len(b))); err != nil {
		return err
	}
	_, err := buf.Write(b)
	return err
}

func readString(br *bytes.Reader, maxLen int) (string, error) {
	n, err := br.ReadByte()
	if err != nil {
		return "", err
	}
	if int(n) > maxLen {
		return "", ErrBadMagic
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(br, b); err != nil {
		return "", err
	}
	return string(b), nil
}
