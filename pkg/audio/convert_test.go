package audio_test

import (
	"testing"
	"time"

	"github.com/voxlog/voxlog/pkg/audio"
)

func TestNormalize_PassThrough(t *testing.T) {
	t.Parallel()
	n := &audio.Normalizer{Target: audio.Format{SampleRate: 16000, Channels: 1}}
	in := audio.Frame{
		Samples:    []int16{1, 2, 3},
		SampleRate: 16000,
		Channels:   1,
		Offset:     time.Second,
	}
	out := n.Normalize(in)
	if &out.Samples[0] != &in.Samples[0] {
		t.Error("matching frame should pass through without copying")
	}
}

func TestNormalize_StereoDownsampled(t *testing.T) {
	t.Parallel()
	n := &audio.Normalizer{Target: audio.Format{SampleRate: 16000, Channels: 1}}

	// 48 kHz stereo, constant amplitude so the resampled values are exact.
	samples := make([]int16, 96) // 48 stereo pairs → 48 mono → 16 at 16 kHz
	for i := range samples {
		samples[i] = 300
	}
	out := n.Normalize(audio.Frame{
		Samples:    samples,
		SampleRate: 48000,
		Channels:   2,
		Offset:     250 * time.Millisecond,
	})

	if out.SampleRate != 16000 || out.Channels != 1 {
		t.Fatalf("format = %d Hz / %d ch", out.SampleRate, out.Channels)
	}
	if len(out.Samples) != 16 {
		t.Fatalf("len = %d, want 16", len(out.Samples))
	}
	for i, s := range out.Samples {
		if s != 300 {
			t.Fatalf("sample %d = %d, want 300", i, s)
		}
	}
	if out.Offset != 250*time.Millisecond {
		t.Errorf("offset not preserved: %v", out.Offset)
	}
}

func TestStereoToMono(t *testing.T) {
	t.Parallel()
	got := audio.StereoToMono([]int16{100, 200, -50, 50, 7})
	want := []int16{150, 0, 7}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestResample_ArbitraryRate(t *testing.T) {
	t.Parallel()
	in := make([]int16, 441) // 10 ms at 44.1 kHz
	for i := range in {
		in[i] = 1000
	}
	out := audio.Resample(in, 44100, 16000)
	if len(out) != 160 {
		t.Fatalf("len = %d, want 160", len(out))
	}
	for i, s := range out {
		if s != 1000 {
			t.Fatalf("sample %d = %d, want 1000", i, s)
		}
	}
}

func TestResample_SameRateReturnsInput(t *testing.T) {
	t.Parallel()
	in := []int16{1, 2, 3}
	if out := audio.Resample(in, 16000, 16000); &out[0] != &in[0] {
		t.Error("same-rate resample should return the input slice")
	}
}
