package format

import (
	"bytes"
	"errors"
	"testing"

	"github.com/mudtracker/fmengine/pkg/tracker"
)

func TestSaveLoadSongRoundTrip(t *testing.T) {
	song := tracker.NewSong()
	song.Name = "Round Trip"
	song.Author = "Tester"
	song.Tempo = 140
	song.Patterns[0].Rows[3][0] = tracker.Cell{Note: 60, Instr: 0, Vol: 80, Fx: tracker.FxVibrato, FxData: 0x42}

	var buf bytes.Buffer
	if err := SaveSong(&buf, song); err != nil {
		t.Fatalf("SaveSong: %v", err)
	}

	got, err := LoadSong(&buf)
	if err != nil {
		t.Fatalf("LoadSong: %v", err)
	}

	if got.Name != song.Name || got.Author != song.Author || got.Tempo != song.Tempo {
		t.Fatalf("round trip mismatch: got %+v", got)
	}
	cell := got.Patterns[0].Rows[3][0]
	want := song.Patterns[0].Rows[3][0]
	if cell != want {
		t.Fatalf("cell round trip mismatch: got %+v, want %+v", cell, want)
	}
}

func TestLoadSongDetectsCorruption(t *testing.T) {
	song := tracker.NewSong()
	var buf bytes.Buffer
	if err := SaveSong(&buf, song); err != nil {
		t.Fatalf("SaveSong: %v", err)
	}

	raw := buf.Bytes()
	raw[len(raw)/2] ^= 0xFF // flip a payload bit

	_, err := LoadSong(bytes.NewReader(raw))
	if err == nil {
		t.Fatal("expected corruption error, got nil")
	}
	var fe *Error
	if !errors.As(err, &fe) || fe.Kind != KindCorrupted {
		t.Fatalf("expected KindCorrupted, got %v", err)
	}
}

func TestLoadSongRejectsBadMagic(t *testing.T) {
	_, err := LoadSong(bytes.NewReader([]byte("not a song file at all")))
	if err == nil {
		t.Fatal("expected error for bad magic")
	}
}

func TestSaveLoadInstrumentRoundTrip(t *testing.T) {
	inst := tracker.NewDefaultInstrument()
	inst.Name = "Patch"
	inst.Operators[1].Mult = 3
	inst.Operators[1].Detune = -5

	var buf bytes.Buffer
	if err := SaveInstrument(&buf, &inst); err != nil {
		t.Fatalf("SaveInstrument: %v", err)
	}

	got, err := LoadInstrument(&buf)
	if err != nil {
		t.Fatalf("LoadInstrument: %v", err)
	}
	if got.Name != inst.Name {
		t.Errorf("Name = %q, want %q", got.Name, inst.Name)
	}
	if got.Operators[1].Mult != 3 || got.Operators[1].Detune != -5 {
		t.Errorf("operator 1 = %+v, want Mult=3 Detune=-5", got.Operators[1])
	}
}

func TestSaveLoadInstrumentBankRoundTrip(t *testing.T) {
	bank := []tracker.Instrument{tracker.NewDefaultInstrument(), tracker.NewDefaultInstrument()}
	bank[0].Name = "A"
	bank[1].Name = "B"
	bank[1].Volume = 50

	var buf bytes.Buffer
	if err := SaveInstrumentBank(&buf, bank); err != nil {
		t.Fatalf("SaveInstrumentBank: %v", err)
	}

	got, err := LoadInstrumentBank(&buf)
	if err != nil {
		t.Fatalf("LoadInstrumentBank: %v", err)
	}
	if len(got) != 2 || got[0].Name != "A" || got[1].Name != "B" || got[1].Volume != 50 {
		t.Fatalf("bank round trip mismatch: %+v", got)
	}
}

func TestRecoverInstrumentClampsOutOfRangeDelay(t *testing.T) {
	inst := &tracker.Instrument{}
	inst.Operators[0].Delay = 200
	recoverInstrument(inst)
	if inst.Operators[0].Delay != 70 {
		t.Errorf("recovered Delay = %d, want clamped to 70", inst.Operators[0].Delay)
	}
}
