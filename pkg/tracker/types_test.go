package tracker

import "testing"

func TestNewSongDefaults(t *testing.T) {
	s := NewSong()

	if s.Tempo != 120 {
		t.Errorf("Tempo = %d, want 120", s.Tempo)
	}
	if s.Divisor != 4 {
		t.Errorf("Divisor = %d, want 4", s.Divisor)
	}
	if len(s.Patterns) != 1 {
		t.Fatalf("len(Patterns) = %d, want 1", len(s.Patterns))
	}
	if len(s.Instruments) != 1 {
		t.Fatalf("len(Instruments) = %d, want 1", len(s.Instruments))
	}
	for ch, c := range s.Channels {
		if c.Pan != 127 {
			t.Errorf("Channels[%d].Pan = %d, want 127", ch, c.Pan)
		}
		if c.Volume != 99 {
			t.Errorf("Channels[%d].Volume = %d, want 99", ch, c.Volume)
		}
	}
}

func TestNewPatternClampsLength(t *testing.T) {
	tests := []struct {
		rows int
		want int
	}{
		{0, 1},
		{-5, 1},
		{64, 64},
		{256, 256},
		{512, 256},
	}
	for _, tt := range tests {
		p := NewPattern(tt.rows)
		if len(p.Rows) != tt.want {
			t.Errorf("NewPattern(%d) rows = %d, want %d", tt.rows, len(p.Rows), tt.want)
		}
	}
}

func TestNewPatternCellsAreEmpty(t *testing.T) {
	p := NewPattern(4)
	for r, row := range p.Rows {
		for ch, c := range row {
			if c != EmptyCell {
				t.Errorf("row %d channel %d = %+v, want EmptyCell", r, ch, c)
			}
		}
	}
}

func TestNewDefaultInstrumentRouting(t *testing.T) {
	inst := NewDefaultInstrument()
	if inst.Operators[0].ConnectOut != 0 {
		t.Errorf("operator 0 ConnectOut = %d, want 0 (feeds channel output)", inst.Operators[0].ConnectOut)
	}
	for i := 1; i < NumOperators; i++ {
		if inst.Operators[i].Vol != 0 {
			t.Errorf("operator %d Vol = %d, want 0 (only operator 0 sounds by default)", i, inst.Operators[i].Vol)
		}
	}
}
