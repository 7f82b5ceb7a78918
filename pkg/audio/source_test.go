package audio_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/voxlog/voxlog/pkg/audio"
)

func writeWAV(t *testing.T, samples []int16, rate, channels int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.wav")
	if err := os.WriteFile(path, audio.EncodeWAV(samples, rate, channels), 0o644); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	return path
}

func TestFileSource_ReplaysAllSamples(t *testing.T) {
	t.Parallel()
	// 100 ms of audio at 16 kHz, ramp so frame boundaries are checkable.
	samples := make([]int16, 1600)
	for i := range samples {
		samples[i] = int16(i)
	}
	src, err := audio.NewFileSource(writeWAV(t, samples, 16000, 1))
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	defer src.Close()

	var got []int16
	var lastOffset time.Duration = -1
	for f := range src.Frames() {
		if f.SampleRate != 16000 || f.Channels != 1 {
			t.Fatalf("frame format = %d Hz / %d ch", f.SampleRate, f.Channels)
		}
		if f.Offset <= lastOffset {
			t.Fatalf("offsets not increasing: %v after %v", f.Offset, lastOffset)
		}
		lastOffset = f.Offset
		got = append(got, f.Samples...)
	}

	if len(got) != len(samples) {
		t.Fatalf("replayed %d samples, want %d", len(got), len(samples))
	}
	for i := range samples {
		if got[i] != samples[i] {
			t.Fatalf("sample %d = %d, want %d", i, got[i], samples[i])
		}
	}

	select {
	case <-src.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed after replay")
	}
}

func TestFileSource_CloseStopsEmission(t *testing.T) {
	t.Parallel()
	// Big enough that the buffered channel cannot hold the whole file.
	samples := make([]int16, 16000*10)
	src, err := audio.NewFileSource(writeWAV(t, samples, 16000, 1))
	if err != nil {
		t.Fatalf("new source: %v", err)
	}

	<-src.Frames() // ensure emission started
	if err := src.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	select {
	case <-src.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed after Close")
	}
}

func TestFileSource_MissingFile(t *testing.T) {
	t.Parallel()
	if _, err := audio.NewFileSource(filepath.Join(t.TempDir(), "nope.wav")); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}
