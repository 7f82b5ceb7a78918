// Package record orchestrates live voice capture: it runs incoming audio
// frames through the noise filter and voice activity detector, hands each
// detected speech span to the transcription engine, and emits an ordered
// stream of confirmed text segments.
//
// A single process goroutine owns all mutable session state; callers interact
// through Start/Stop/Cancel and the Events channel. Transcription runs off
// the capture path, and results that complete out of order are resequenced by
// segment start time before confirmation.
package record

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/voxlog/voxlog/internal/engine"
	"github.com/voxlog/voxlog/internal/observe"
	"github.com/voxlog/voxlog/internal/vaultfs"
	"github.com/voxlog/voxlog/pkg/audio"
	"github.com/voxlog/voxlog/pkg/vad"
)

// State is the controller lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// EventType discriminates controller events.
type EventType string

const (
	// EventSegmentConfirmed carries a finished, ordered text segment.
	EventSegmentConfirmed EventType = "segmentConfirmed"

	// EventInterimTextChanged carries unconfirmed text for UI feedback only.
	// Interim text is never persisted.
	EventInterimTextChanged EventType = "interimTextChanged"

	// EventVADActivityChanged signals a speech/silence transition.
	EventVADActivityChanged EventType = "vadActivityChanged"
)

// Segment is one confirmed speech span.
type Segment struct {
	// Index is the chronological position of the span within the session.
	Index int

	// Start and End bound the span within the session audio.
	Start, End time.Duration

	// Text is the transcript, empty when transcription failed or timed out.
	Text string
}

// Event is one controller notification.
type Event struct {
	Type     EventType
	Segment  *Segment // EventSegmentConfirmed
	Interim  string   // EventInterimTextChanged
	Speaking bool     // EventVADActivityChanged
	Offset   time.Duration
}

// Summary is the outcome of a finished recording.
type Summary struct {
	// AudioPath is the vault-relative path of the persisted WAV file.
	AudioPath string

	// Text is the confirmed segments joined in chronological order.
	Text string

	// Pending is true when transcription did not finish within the stop
	// timeout; the entry should be persisted with a pending status and
	// retried later from the saved audio.
	Pending bool

	// Failed is true when every detected speech span errored during
	// transcription; the entry should be persisted with a failed status and
	// retried later from the saved audio.
	Failed bool

	// Duration is the total captured audio length.
	Duration time.Duration

	Segments []Segment
}

// Errors returned by the controller's state transitions.
var (
	ErrNotRecording     = errors.New("record: no recording in progress")
	ErrAlreadyRecording = errors.New("record: recording already in progress")
)

const (
	defaultStopTimeout = 30 * time.Second
	defaultEventBuffer = 64
	defaultSampleRate  = 16000
)

// Option is a functional option for configuring a Controller.
type Option func(*Controller)

// WithStopTimeout bounds how long StopRecording waits for in-flight
// transcription before persisting the entry as pending. Default 30s.
func WithStopTimeout(d time.Duration) Option {
	return func(c *Controller) { c.stopTimeout = d }
}

// WithVADConfig overrides the voice activity detector tuning.
func WithVADConfig(cfg vad.Config) Option {
	return func(c *Controller) { c.vadConfig = cfg }
}

// WithEventBuffer sets the buffer capacity of the Events channel. Default 64.
func WithEventBuffer(n int) Option {
	return func(c *Controller) { c.eventBuf = n }
}

// WithMetrics overrides the metrics instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.met = m }
}

// WithClock overrides the time source used for asset naming, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// Controller drives one recording session at a time.
type Controller struct {
	eng         *engine.Engine
	vfs         vaultfs.FS
	met         *observe.Metrics
	vadConfig   vad.Config
	stopTimeout time.Duration
	eventBuf    int
	now         func() time.Time

	events chan Event

	mu      sync.Mutex
	state   State
	session *session
}

// session is the per-recording state owned by the process goroutine.
type session struct {
	source audio.Source
	conv   *audio.Normalizer
	filter *audio.HighPass
	det    *vad.Detector

	buffer   []int16 // all captured (filtered) samples
	elapsed  time.Duration
	inSpeech bool
	segStart time.Duration

	nextIndex   int          // index assigned to the next detected span
	nextConfirm int          // next index to confirm, for resequencing
	arrived     map[int]*Segment
	outstanding int
	failed      int // spans whose transcription errored
	confirmed   []Segment

	// workCtx bounds the in-flight engine decodes; cancelWork aborts them
	// once their results can no longer be used.
	workCtx    context.Context
	cancelWork context.CancelFunc

	results chan segResult
	stopCh  chan chan Summary
	cancel  chan chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
}

type segResult struct {
	seg Segment
	err error
}

// NewController creates a controller that transcribes through eng and
// persists session audio into the vault.
func NewController(eng *engine.Engine, vfs vaultfs.FS, opts ...Option) *Controller {
	c := &Controller{
		eng:         eng,
		vfs:         vfs,
		stopTimeout: defaultStopTimeout,
		eventBuf:    defaultEventBuffer,
		now:         time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	if c.met == nil {
		c.met = observe.DefaultMetrics()
	}
	c.events = make(chan Event, c.eventBuf)
	return c
}

// Events returns the controller's notification channel. The channel is shared
// across sessions for the lifetime of the controller. Slow consumers drop
// events rather than stalling capture.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// StartRecording begins a session reading frames from source. The noise
// filter and VAD are reset so no state leaks across sessions. Returns
// ErrAlreadyRecording when a session is active.
func (c *Controller) StartRecording(ctx context.Context, source audio.Source) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return ErrAlreadyRecording
	}

	s := &session{
		source:  source,
		conv:    &audio.Normalizer{Target: audio.Format{SampleRate: defaultSampleRate, Channels: 1}},
		filter:  audio.NewHighPass(0, defaultSampleRate),
		det:     vad.New(c.vadConfig),
		arrived: make(map[int]*Segment),
		results: make(chan segResult, 16),
		stopCh:  make(chan chan Summary),
		cancel:  make(chan chan struct{}),
		done:    make(chan struct{}),
	}
	s.workCtx, s.cancelWork = context.WithCancel(ctx)
	s.filter.Reset()
	s.det.Reset()

	c.session = s
	c.state = StateRecording
	c.met.ActiveRecordings.Add(ctx, 1)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		c.run(ctx, s)
	}()
	return nil
}

// StopRecording ends the session: the in-flight speech span is flushed to the
// engine, outstanding transcriptions are awaited up to the stop timeout, and
// the captured audio is written to the vault. On timeout the summary reports
// Pending=true so the caller persists the entry for a later retry instead of
// blocking indefinitely.
func (c *Controller) StopRecording(ctx context.Context) (Summary, error) {
	c.mu.Lock()
	if c.state != StateRecording {
		c.mu.Unlock()
		return Summary{}, ErrNotRecording
	}
	s := c.session
	c.state = StateStopping
	c.mu.Unlock()

	reply := make(chan Summary, 1)
	select {
	case s.stopCh <- reply:
	case <-ctx.Done():
		return Summary{}, ctx.Err()
	}

	var sum Summary
	select {
	case sum = <-reply:
	case <-ctx.Done():
		return Summary{}, ctx.Err()
	}

	c.finish(ctx, s)
	return sum, nil
}

// CancelRecording discards all buffered audio and interim state without
// persisting anything.
func (c *Controller) CancelRecording(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateRecording {
		c.mu.Unlock()
		return ErrNotRecording
	}
	s := c.session
	c.state = StateStopping
	c.mu.Unlock()

	reply := make(chan struct{}, 1)
	select {
	case s.cancel <- reply:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-reply:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.finish(ctx, s)
	return nil
}

func (c *Controller) finish(ctx context.Context, s *session) {
	s.cancelWork()
	s.wg.Wait()
	c.mu.Lock()
	c.session = nil
	c.state = StateIdle
	c.mu.Unlock()
	c.met.ActiveRecordings.Add(ctx, -1)
}

// run is the process loop: the only goroutine that touches session state.
func (c *Controller) run(ctx context.Context, s *session) {
	frames := s.source.Frames()
	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				frames = nil // source exhausted, keep serving results until stop
				continue
			}
			c.handleFrame(s, frame)

		case res := <-s.results:
			c.handleResult(ctx, s, res)

		case reply := <-s.stopCh:
			reply <- c.drainAndPersist(ctx, s)
			close(s.done)
			return

		case reply := <-s.cancel:
			s.cancelWork() // abort in-flight decodes, their results are unwanted
			close(s.done)
			reply <- struct{}{}
			return
		}
	}
}

// handleFrame filters one frame, feeds the detector, and reacts to
// speech/silence transitions.
func (c *Controller) handleFrame(s *session, frame audio.Frame) {
	frame = s.conv.Normalize(frame)
	filtered := s.filter.Process(frame.Samples)
	s.buffer = append(s.buffer, filtered...)
	dur := frame.Duration()

	f := audio.Frame{Samples: filtered, SampleRate: frame.SampleRate, Channels: frame.Channels, Offset: frame.Offset}
	_, ev := s.det.ProcessFrame(f.Energy(), frame.Offset, dur)
	s.elapsed = frame.Offset + dur

	if ev == nil {
		return
	}
	switch ev.Type {
	case vad.SpeechStart:
		s.inSpeech = true
		s.segStart = ev.Offset
		c.emit(Event{Type: EventVADActivityChanged, Speaking: true, Offset: ev.Offset})
	case vad.SpeechEnd:
		s.inSpeech = false
		c.emit(Event{Type: EventVADActivityChanged, Speaking: false, Offset: ev.Offset})
		c.submitSegment(s, s.segStart, ev.Offset)
	}
}

// submitSegment hands one speech span to the engine on its own goroutine so
// the capture loop never blocks behind a decode.
func (c *Controller) submitSegment(s *session, start, end time.Duration) {
	idx := s.nextIndex
	s.nextIndex++
	s.outstanding++

	lo := sampleAt(start)
	hi := sampleAt(end)
	if hi > len(s.buffer) {
		hi = len(s.buffer)
	}
	if lo > hi {
		lo = hi
	}
	samples := make([]int16, hi-lo)
	copy(samples, s.buffer[lo:hi])

	// Not tracked by s.wg: a decode that outlives the stop timeout must not
	// block session teardown. The goroutine exits via s.done once it returns,
	// and s.workCtx aborts the decode itself when the session is torn down.
	go func() {
		text, err := c.transcribeSamples(s.workCtx, samples)
		res := segResult{seg: Segment{Index: idx, Start: start, End: end, Text: text}, err: err}
		select {
		case s.results <- res:
		case <-s.done:
		}
	}()
}

// transcribeSamples round-trips the span through a temp WAV file, which is
// the engine's unit of work.
func (c *Controller) transcribeSamples(ctx context.Context, samples []int16) (string, error) {
	tmp, err := os.CreateTemp("", "voxlog-segment-*.wav")
	if err != nil {
		return "", fmt.Errorf("record: create segment file: %w", err)
	}
	path := tmp.Name()
	defer os.Remove(path)

	_, err = tmp.Write(audio.EncodeWAV(samples, defaultSampleRate, 1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("record: write segment file: %w", err)
	}

	res, err := c.eng.Transcribe(ctx, path)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// handleResult stashes one finished transcription and confirms every segment
// that is now next in chronological order. A failed segment is confirmed with
// empty text so later segments are not blocked behind it.
func (c *Controller) handleResult(ctx context.Context, s *session, res segResult) {
	s.outstanding--
	if res.err != nil {
		s.failed++
		slog.Warn("record: segment transcription failed", "index", res.seg.Index, "error", res.err)
		c.met.RecordPipelineError(ctx, "record", "segment_failed")
	}
	seg := res.seg
	s.arrived[seg.Index] = &seg

	// Surface the newest text as interim feedback until it confirms in order.
	if res.err == nil && seg.Text != "" {
		c.emit(Event{Type: EventInterimTextChanged, Interim: seg.Text, Offset: seg.Start})
	}

	for {
		next, ok := s.arrived[s.nextConfirm]
		if !ok {
			return
		}
		delete(s.arrived, s.nextConfirm)
		s.nextConfirm++
		s.confirmed = append(s.confirmed, *next)
		c.met.SegmentsConfirmed.Add(ctx, 1)
		c.emit(Event{Type: EventSegmentConfirmed, Segment: next, Offset: next.Start})
		c.emit(Event{Type: EventInterimTextChanged, Interim: "", Offset: next.End})
	}
}

// drainAndPersist flushes the open speech span, waits for outstanding
// transcriptions up to the stop timeout, and writes the session WAV.
func (c *Controller) drainAndPersist(ctx context.Context, s *session) Summary {
	if s.inSpeech {
		s.inSpeech = false
		c.submitSegment(s, s.segStart, s.elapsed)
	}

	pending := false
	if s.outstanding > 0 {
		timer := time.NewTimer(c.stopTimeout)
		defer timer.Stop()
	drain:
		for s.outstanding > 0 {
			select {
			case res := <-s.results:
				c.handleResult(ctx, s, res)
			case <-timer.C:
				pending = true
				break drain
			case <-ctx.Done():
				pending = true
				break drain
			}
		}
	}

	sum := Summary{
		Pending:  pending,
		Failed:   !pending && s.nextIndex > 0 && s.failed == s.nextIndex,
		Duration: s.elapsed,
		Segments: append([]Segment(nil), s.confirmed...),
	}
	texts := make([]string, 0, len(s.confirmed))
	for _, seg := range s.confirmed {
		if seg.Text != "" {
			texts = append(texts, seg.Text)
		}
	}
	sum.Text = strings.TrimSpace(strings.Join(texts, " "))

	path := vaultfs.AssetPath(c.now(), "voice", "wav")
	if err := c.vfs.WriteFile(path, audio.EncodeWAV(s.buffer, defaultSampleRate, 1)); err != nil {
		slog.Error("record: persist session audio", "path", path, "error", err)
		c.met.RecordPipelineError(ctx, "record", "write_failed")
	} else {
		sum.AudioPath = path
	}
	return sum
}

// emit delivers an event without ever blocking the capture path.
func (c *Controller) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		slog.Debug("record: dropping event, consumer too slow", "type", ev.Type)
	}
}

func sampleAt(off time.Duration) int {
	return int(off * defaultSampleRate / time.Second)
}
