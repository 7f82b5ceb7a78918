package record_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/voxlog/voxlog/internal/engine"
	"github.com/voxlog/voxlog/internal/record"
	"github.com/voxlog/voxlog/internal/vaultfs"
	"github.com/voxlog/voxlog/pkg/asr"
	asrmock "github.com/voxlog/voxlog/pkg/asr/mock"
	"github.com/voxlog/voxlog/pkg/audio"
	"github.com/voxlog/voxlog/pkg/vad"
)

const frameDur = 10 * time.Millisecond

// scriptedSource feeds a fixed frame sequence and then closes its channel.
type scriptedSource struct {
	ch chan audio.Frame
}

func newScriptedSource(frames []audio.Frame) *scriptedSource {
	s := &scriptedSource{ch: make(chan audio.Frame, len(frames))}
	for _, f := range frames {
		s.ch <- f
	}
	close(s.ch)
	return s
}

func (s *scriptedSource) Frames() <-chan audio.Frame { return s.ch }
func (s *scriptedSource) Close() error               { return nil }

// buildFrames lays out alternating speech/silence stretches as 10ms frames.
// Speech frames carry a Nyquist-rate square wave so they survive the
// high-pass filter with high energy.
func buildFrames(stretches ...struct {
	speech bool
	dur    time.Duration
}) []audio.Frame {
	var frames []audio.Frame
	offset := time.Duration(0)
	samplesPerFrame := int(frameDur * 16000 / time.Second)
	for _, st := range stretches {
		n := int(st.dur / frameDur)
		for i := 0; i < n; i++ {
			samples := make([]int16, samplesPerFrame)
			if st.speech {
				for j := range samples {
					if j%2 == 0 {
						samples[j] = 20000
					} else {
						samples[j] = -20000
					}
				}
			}
			frames = append(frames, audio.Frame{
				Samples: samples, SampleRate: 16000, Channels: 1, Offset: offset,
			})
			offset += frameDur
		}
	}
	return frames
}

func stretch(speech bool, dur time.Duration) struct {
	speech bool
	dur    time.Duration
} {
	return struct {
		speech bool
		dur    time.Duration
	}{speech, dur}
}

// testVAD is tuned so short synthetic stretches trigger transitions quickly.
var testVAD = vad.Config{
	SpeechThreshold:   0.4,
	MinSpeechDuration: 30 * time.Millisecond,
	SilenceTimeout:    100 * time.Millisecond,
}

func newController(t *testing.T, b asr.Backend, opts ...record.Option) (*record.Controller, *vaultfs.OS) {
	t.Helper()
	e := engine.New(b)
	t.Cleanup(func() { _ = e.Close() })
	if err := e.Initialize(context.Background()); err != nil {
		t.Fatalf("engine init: %v", err)
	}
	v := vaultfs.NewOS(t.TempDir())
	opts = append([]record.Option{record.WithVADConfig(testVAD)}, opts...)
	return record.NewController(e, v, opts...), v
}

// waitFor consumes events until pred is satisfied or the deadline passes.
func waitFor(t *testing.T, events <-chan record.Event, pred func(record.Event) bool) []record.Event {
	t.Helper()
	var seen []record.Event
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			seen = append(seen, ev)
			if pred(ev) {
				return seen
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event, saw %d events", len(seen))
		}
	}
}

func TestRecording_ConfirmsSegmentsInOrder(t *testing.T) {
	texts := []string{"first thought", "second thought"}
	call := 0
	var mu sync.Mutex
	b := &asrmock.Backend{
		TranscribeFunc: func(_ context.Context, _ []float32) (asr.Result, error) {
			mu.Lock()
			tx := texts[call%len(texts)]
			call++
			mu.Unlock()
			return asr.Result{Text: tx}, nil
		},
	}
	c, v := newController(t, b)

	src := newScriptedSource(buildFrames(
		stretch(true, 200*time.Millisecond),
		stretch(false, 200*time.Millisecond),
		stretch(true, 200*time.Millisecond),
		stretch(false, 200*time.Millisecond),
	))
	if err := c.StartRecording(context.Background(), src); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := c.State(); got != record.StateRecording {
		t.Fatalf("state = %v, want recording", got)
	}

	confirmed := 0
	events := waitFor(t, c.Events(), func(ev record.Event) bool {
		if ev.Type == record.EventSegmentConfirmed {
			confirmed++
		}
		return confirmed == 2
	})

	sum, err := c.StopRecording(context.Background())
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if sum.Pending {
		t.Error("all segments confirmed, summary must not be pending")
	}
	if sum.Text != "first thought second thought" {
		t.Errorf("text = %q", sum.Text)
	}
	if len(sum.Segments) != 2 || sum.Segments[0].Index != 0 || sum.Segments[1].Index != 1 {
		t.Errorf("segments out of order: %+v", sum.Segments)
	}
	if sum.Segments[0].Start >= sum.Segments[1].Start {
		t.Error("segment starts must be chronological")
	}

	// Session audio landed in the vault under the asset layout.
	if sum.AudioPath == "" || !v.Exists(sum.AudioPath) {
		t.Fatalf("session audio missing at %q", sum.AudioPath)
	}
	data, err := v.ReadFile(sum.AudioPath)
	if err != nil {
		t.Fatalf("read session audio: %v", err)
	}
	if _, _, err := audio.DecodeWAV(data); err != nil {
		t.Errorf("session audio is not a valid WAV: %v", err)
	}

	// Interim text surfaced before confirmation and was cleared after.
	sawInterim, sawClear := false, false
	for _, ev := range events {
		if ev.Type == record.EventInterimTextChanged {
			if ev.Interim != "" {
				sawInterim = true
			} else if sawInterim {
				sawClear = true
			}
		}
	}
	if !sawInterim || !sawClear {
		t.Error("expected interim text to appear and then clear")
	}

	if got := c.State(); got != record.StateIdle {
		t.Errorf("state after stop = %v, want idle", got)
	}
}

func TestRecording_EmitsVADTransitions(t *testing.T) {
	b := &asrmock.Backend{}
	c, _ := newController(t, b)

	src := newScriptedSource(buildFrames(
		stretch(true, 200*time.Millisecond),
		stretch(false, 200*time.Millisecond),
	))
	if err := c.StartRecording(context.Background(), src); err != nil {
		t.Fatalf("start: %v", err)
	}

	events := waitFor(t, c.Events(), func(ev record.Event) bool {
		return ev.Type == record.EventVADActivityChanged && !ev.Speaking
	})
	var speaking []bool
	for _, ev := range events {
		if ev.Type == record.EventVADActivityChanged {
			speaking = append(speaking, ev.Speaking)
		}
	}
	if len(speaking) != 2 || !speaking[0] || speaking[1] {
		t.Errorf("expected [true false] transitions, got %v", speaking)
	}

	if _, err := c.StopRecording(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestStop_FlushesOpenSegment(t *testing.T) {
	b := &asrmock.Backend{
		TranscribeFunc: func(_ context.Context, _ []float32) (asr.Result, error) {
			return asr.Result{Text: "still talking"}, nil
		},
	}
	c, _ := newController(t, b)

	src := newScriptedSource(buildFrames(stretch(true, 300*time.Millisecond)))
	if err := c.StartRecording(context.Background(), src); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Wait until the detector has committed to a speech run.
	waitFor(t, c.Events(), func(ev record.Event) bool {
		return ev.Type == record.EventVADActivityChanged && ev.Speaking
	})

	sum, err := c.StopRecording(context.Background())
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if sum.Pending {
		t.Error("flushed segment should confirm within the timeout")
	}
	if len(sum.Segments) == 0 || sum.Text != "still talking" {
		t.Errorf("open speech span not flushed: %+v", sum)
	}
}

func TestStop_TimeoutLeavesPending(t *testing.T) {
	release := make(chan struct{})
	b := &asrmock.Backend{
		TranscribeFunc: func(ctx context.Context, _ []float32) (asr.Result, error) {
			select {
			case <-release:
			case <-ctx.Done():
			}
			return asr.Result{Text: "too late"}, nil
		},
	}
	defer close(release)
	c, v := newController(t, b, record.WithStopTimeout(50*time.Millisecond))

	src := newScriptedSource(buildFrames(
		stretch(true, 200*time.Millisecond),
		stretch(false, 200*time.Millisecond),
	))
	if err := c.StartRecording(context.Background(), src); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, c.Events(), func(ev record.Event) bool {
		return ev.Type == record.EventVADActivityChanged && !ev.Speaking
	})

	start := time.Now()
	sum, err := c.StopRecording(context.Background())
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("stop blocked for %v despite timeout", elapsed)
	}
	if !sum.Pending {
		t.Error("summary must be pending when transcription misses the timeout")
	}
	if sum.Text != "" {
		t.Errorf("no text should be confirmed, got %q", sum.Text)
	}
	// Audio is still recoverable for a later retry.
	if sum.AudioPath == "" || !v.Exists(sum.AudioPath) {
		t.Error("session audio must survive a transcription timeout")
	}
}

func TestCancel_PersistsNothing(t *testing.T) {
	b := &asrmock.Backend{}
	c, v := newController(t, b)

	src := newScriptedSource(buildFrames(stretch(true, 100*time.Millisecond)))
	if err := c.StartRecording(context.Background(), src); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.CancelRecording(context.Background()); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if names, err := v.ListDir("."); err == nil && len(names) != 0 {
		t.Errorf("cancel must not persist anything, found %v", names)
	}
	if got := c.State(); got != record.StateIdle {
		t.Errorf("state after cancel = %v, want idle", got)
	}
}

func TestStateTransitions(t *testing.T) {
	b := &asrmock.Backend{}
	c, _ := newController(t, b)

	if _, err := c.StopRecording(context.Background()); err != record.ErrNotRecording {
		t.Errorf("stop while idle: %v", err)
	}
	if err := c.CancelRecording(context.Background()); err != record.ErrNotRecording {
		t.Errorf("cancel while idle: %v", err)
	}

	src := newScriptedSource(buildFrames(stretch(false, 50*time.Millisecond)))
	if err := c.StartRecording(context.Background(), src); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.StartRecording(context.Background(), src); err != record.ErrAlreadyRecording {
		t.Errorf("second start: %v", err)
	}
	if _, err := c.StopRecording(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestStop_AllSegmentsFailedMarksFailed(t *testing.T) {
	b := &asrmock.Backend{
		TranscribeFunc: func(context.Context, []float32) (asr.Result, error) {
			return asr.Result{}, errors.New("model crashed")
		},
	}
	c, v := newController(t, b)

	src := newScriptedSource(buildFrames(
		stretch(true, 200*time.Millisecond),
		stretch(false, 200*time.Millisecond),
		stretch(true, 200*time.Millisecond),
		stretch(false, 200*time.Millisecond),
	))
	if err := c.StartRecording(context.Background(), src); err != nil {
		t.Fatalf("start: %v", err)
	}
	confirmed := 0
	waitFor(t, c.Events(), func(ev record.Event) bool {
		if ev.Type == record.EventSegmentConfirmed {
			confirmed++
		}
		return confirmed == 2
	})

	sum, err := c.StopRecording(context.Background())
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !sum.Failed {
		t.Error("every span errored, summary must report failure")
	}
	if sum.Pending {
		t.Error("failed transcription is not pending: nothing is still running")
	}
	if sum.Text != "" {
		t.Errorf("no text should survive a failed transcription, got %q", sum.Text)
	}
	// Audio is still recoverable for a later retry.
	if sum.AudioPath == "" || !v.Exists(sum.AudioPath) {
		t.Error("session audio must survive failed transcription")
	}
}

func TestStop_PartialFailureIsNotFailed(t *testing.T) {
	call := 0
	var mu sync.Mutex
	b := &asrmock.Backend{
		TranscribeFunc: func(context.Context, []float32) (asr.Result, error) {
			mu.Lock()
			defer mu.Unlock()
			call++
			if call == 1 {
				return asr.Result{}, errors.New("model crashed")
			}
			return asr.Result{Text: "second thought"}, nil
		},
	}
	c, _ := newController(t, b)

	src := newScriptedSource(buildFrames(
		stretch(true, 200*time.Millisecond),
		stretch(false, 200*time.Millisecond),
		stretch(true, 200*time.Millisecond),
		stretch(false, 200*time.Millisecond),
	))
	if err := c.StartRecording(context.Background(), src); err != nil {
		t.Fatalf("start: %v", err)
	}
	confirmed := 0
	waitFor(t, c.Events(), func(ev record.Event) bool {
		if ev.Type == record.EventSegmentConfirmed {
			confirmed++
		}
		return confirmed == 2
	})

	sum, err := c.StopRecording(context.Background())
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if sum.Failed {
		t.Error("one span succeeded, summary must not report failure")
	}
	if sum.Text != "second thought" {
		t.Errorf("text = %q", sum.Text)
	}
}

func TestCancel_AbortsInFlightTranscription(t *testing.T) {
	started := make(chan struct{})
	unblocked := make(chan struct{})
	b := &asrmock.Backend{
		TranscribeFunc: func(ctx context.Context, _ []float32) (asr.Result, error) {
			close(started)
			<-ctx.Done()
			close(unblocked)
			return asr.Result{}, ctx.Err()
		},
	}
	c, v := newController(t, b)

	src := newScriptedSource(buildFrames(
		stretch(true, 200*time.Millisecond),
		stretch(false, 200*time.Millisecond),
	))
	if err := c.StartRecording(context.Background(), src); err != nil {
		t.Fatalf("start: %v", err)
	}

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("decode never started")
	}

	if err := c.CancelRecording(context.Background()); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	select {
	case <-unblocked:
	case <-time.After(2 * time.Second):
		t.Fatal("cancel left the decode blocked")
	}

	if names, err := v.ListDir("."); err == nil && len(names) != 0 {
		t.Errorf("cancel must not persist anything, found %v", names)
	}
}

func TestRecording_NormalizesHighRateStereoInput(t *testing.T) {
	b := &asrmock.Backend{
		TranscribeFunc: func(ctx context.Context, samples []float32) (asr.Result, error) {
			return asr.Result{Text: "wearable note"}, nil
		},
	}
	c, _ := newController(t, b)

	// 48 kHz stereo frames carrying an 8 kHz square wave: blocks of three
	// identical samples per channel so the mean-of-3 downsampler reduces them
	// to a full-strength Nyquist wave at 16 kHz.
	var frames []audio.Frame
	offset := time.Duration(0)
	perFrame := int(frameDur*48000/time.Second) * 2
	speechFrames := int(60 * time.Millisecond / frameDur)
	silenceFrames := int(150 * time.Millisecond / frameDur)
	for i := 0; i < speechFrames+silenceFrames; i++ {
		samples := make([]int16, perFrame)
		if i < speechFrames {
			for j := range samples {
				if (j/6)%2 == 0 {
					samples[j] = 20000
				} else {
					samples[j] = -20000
				}
			}
		}
		frames = append(frames, audio.Frame{
			Samples: samples, SampleRate: 48000, Channels: 2, Offset: offset,
		})
		offset += frameDur
	}

	if err := c.StartRecording(context.Background(), newScriptedSource(frames)); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, c.Events(), func(ev record.Event) bool {
		return ev.Type == record.EventSegmentConfirmed
	})

	sum, err := c.StopRecording(context.Background())
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if sum.Text != "wearable note" {
		t.Errorf("text = %q", sum.Text)
	}
}
