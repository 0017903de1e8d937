package format

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestRenderInt16RoundTripsSilence(t *testing.T) {
	samples := []float32{0, 0, 0}
	out := Render(nil, samples, RenderOptions{Format: FormatInt16})
	if len(out) != 6 {
		t.Fatalf("len(out) = %d, want 6", len(out))
	}
	for _, b := range out {
		if b != 0 {
			t.Fatalf("expected all-zero bytes for silence, got %v", out)
		}
	}
}

func TestRenderClampsOutOfRangeSamples(t *testing.T) {
	samples := []float32{2.0, -2.0}
	out := Render(nil, samples, RenderOptions{Format: FormatInt16})
	if len(out) != 4 {
		t.Fatalf("len(out) = %d, want 4", len(out))
	}
	hi := int16(binary.LittleEndian.Uint16(out[0:2]))
	lo := int16(binary.LittleEndian.Uint16(out[2:4]))
	if hi != 32767 {
		t.Errorf("clamped +1 sample = %d, want 32767", hi)
	}
	if lo != -32768 {
		t.Errorf("clamped -1 sample = %d, want -32768", lo)
	}
}

func TestRenderUint8MidpointIsSilence(t *testing.T) {
	out := Render(nil, []float32{0}, RenderOptions{Format: FormatUint8})
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
	if out[0] < 126 || out[0] > 129 {
		t.Errorf("uint8 midpoint = %d, want ~127", out[0])
	}
}

func TestRenderInt24Pad32Widens(t *testing.T) {
	tight := Render(nil, []float32{1, -1}, RenderOptions{Format: FormatInt24})
	padded := Render(nil, []float32{1, -1}, RenderOptions{Format: FormatInt24, Pad32: true})
	if len(tight) != 6 {
		t.Fatalf("tight len = %d, want 6", len(tight))
	}
	if len(padded) != 8 {
		t.Fatalf("padded len = %d, want 8", len(padded))
	}
}

func TestRenderFloat32PreservesValue(t *testing.T) {
	out := Render(nil, []float32{0.5}, RenderOptions{Format: FormatFloat32})
	if len(out) != 4 {
		t.Fatalf("len(out) = %d, want 4", len(out))
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(out)); got != 0.5 {
		t.Errorf("decoded float32 = %v, want 0.5", got)
	}
}
