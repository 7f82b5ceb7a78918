package audio_test

import (
	"testing"

	"github.com/voxlog/voxlog/pkg/audio"
)

func TestUpsample16To48_Length(t *testing.T) {
	in := []int16{100, 200, 300}
	out := audio.Upsample16To48(in)
	if len(out) != 9 {
		t.Fatalf("expected 9 samples, got %d", len(out))
	}
	// Every third sample is the original.
	for i, s := range in {
		if out[i*3] != s {
			t.Errorf("sample %d: got %d, want %d", i*3, out[i*3], s)
		}
	}
}

func TestUpsample16To48_Interpolation(t *testing.T) {
	out := audio.Upsample16To48([]int16{0, 300})
	want := []int16{0, 100, 200, 300, 300, 300}
	if len(out) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(out), len(want))
	}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, out[i], want[i])
		}
	}
}

func TestUpsample16To48_TailRepeatsLastSample(t *testing.T) {
	out := audio.Upsample16To48([]int16{500})
	want := []int16{500, 500, 500}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, out[i], want[i])
		}
	}
}

func TestDownsample48To16_Averaging(t *testing.T) {
	out := audio.Downsample48To16([]int16{90, 120, 150, -30, -60, -90})
	want := []int16{120, -60}
	if len(out) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(out), len(want))
	}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, out[i], want[i])
		}
	}
}

func TestDownsample48To16_RemainderCopiedVerbatim(t *testing.T) {
	out := audio.Downsample48To16([]int16{30, 30, 30, 777, 888})
	want := []int16{30, 777, 888}
	if len(out) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(out), len(want))
	}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, out[i], want[i])
		}
	}
}

func TestResample_EmptyInput(t *testing.T) {
	if out := audio.Upsample16To48(nil); len(out) != 0 {
		t.Errorf("upsample: expected empty output, got %d samples", len(out))
	}
	if out := audio.Downsample48To16(nil); len(out) != 0 {
		t.Errorf("downsample: expected empty output, got %d samples", len(out))
	}
}

// TestResample_RoundTrip verifies that down(up(x)) approximately reconstructs
// x. The interpolation/averaging introduces bounded error proportional to the
// local slope.
func TestResample_RoundTrip(t *testing.T) {
	in := []int16{0, 120, 240, 360, 240, 120, 0, -120, -240}
	got := audio.Downsample48To16(audio.Upsample16To48(in))
	if len(got) != len(in) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(in))
	}
	for i := range in {
		diff := int(got[i]) - int(in[i])
		if diff < 0 {
			diff = -diff
		}
		// Error bound: one third of the largest step between neighbours.
		if diff > 120/3+1 {
			t.Errorf("sample %d: got %d, want %d (±%d)", i, got[i], in[i], 120/3+1)
		}
	}
}

func TestResampleFloat_MatchesIntegerShape(t *testing.T) {
	in := []float32{0, 0.3, 0.6, 0.3}
	up := audio.Upsample16To48Float(in)
	if len(up) != len(in)*3 {
		t.Fatalf("upsample length: got %d, want %d", len(up), len(in)*3)
	}
	down := audio.Downsample48To16Float(up)
	if len(down) != len(in) {
		t.Fatalf("round-trip length: got %d, want %d", len(down), len(in))
	}
	for i := range in {
		diff := down[i] - in[i]
		if diff < 0 {
			diff = -diff
		}
		if diff > 0.11 {
			t.Errorf("sample %d: got %f, want %f", i, down[i], in[i])
		}
	}
}
