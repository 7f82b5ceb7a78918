// Package vad implements the energy-based Voice Activity Detector that
// segments continuous microphone audio into speech spans.
//
// The detector is a two-state machine {Silent, Speaking} with hysteresis:
// a transition only fires after the energy condition has been sustained for a
// configured duration, so short pops do not start a segment and short pauses
// do not end one. Each transition produces an Event consumed by the streaming
// transcription controller; the detector itself holds no transcript state.
//
// The detector runs synchronously on the capture goroutine — per-frame work
// is a single energy comparison — and is not safe for concurrent use.
package vad

import "time"

// Defaults tuned for a handheld microphone at arm's length. All values are
// adjustable via [Config] to allow tuning per-device microphone sensitivity.
const (
	DefaultSpeechThreshold   = 0.5
	DefaultMinSpeechDuration = 250 * time.Millisecond
	DefaultSilenceTimeout    = 3 * time.Second
)

// Config holds the tunable detector parameters.
type Config struct {
	// SpeechThreshold is the normalized RMS energy (0–1, where 1 is a
	// full-scale 16-bit signal) at or above which a frame counts as speech.
	SpeechThreshold float64

	// MinSpeechDuration is how long energy must stay at or above the
	// threshold before Silent→Speaking fires.
	MinSpeechDuration time.Duration

	// SilenceTimeout is how long energy must stay below the threshold before
	// Speaking→Silent fires. This is also the trigger for auto-pause when the
	// controller has it enabled.
	SilenceTimeout time.Duration
}

// withDefaults returns c with zero fields replaced by package defaults.
func (c Config) withDefaults() Config {
	if c.SpeechThreshold <= 0 {
		c.SpeechThreshold = DefaultSpeechThreshold
	}
	if c.MinSpeechDuration <= 0 {
		c.MinSpeechDuration = DefaultMinSpeechDuration
	}
	if c.SilenceTimeout <= 0 {
		c.SilenceTimeout = DefaultSilenceTimeout
	}
	return c
}

// State is the detector state.
type State int

const (
	StateSilent State = iota
	StateSpeaking
)

// String returns "silent" or "speaking".
func (s State) String() string {
	if s == StateSpeaking {
		return "speaking"
	}
	return "silent"
}

// Decision is the per-frame classification. Decisions are consumed
// immediately by the controller and never stored.
type Decision struct {
	// Speech reports whether the frame's energy met the threshold.
	Speech bool

	// Energy is the frame's normalized RMS energy.
	Energy float64

	// Offset is the frame's position in the capture session.
	Offset time.Duration
}

// EventType enumerates detector transitions.
type EventType int

const (
	// SpeechStart fires on Silent→Speaking once speech has been sustained
	// for MinSpeechDuration. Offset points at the start of the sustained run.
	SpeechStart EventType = iota

	// SpeechEnd fires on Speaking→Silent once silence has been sustained for
	// SilenceTimeout. Offset points at the start of the silence run, i.e.
	// where speech actually ended.
	SpeechEnd
)

// Event is a state transition emitted by the detector.
type Event struct {
	Type   EventType
	Offset time.Duration
	Energy float64
}

// Detector is the VAD state machine. Create one per recording session, or
// call Reset between sessions.
type Detector struct {
	cfg   Config
	state State

	// Hysteresis run tracking. runStart marks the offset of the first frame
	// in the current candidate run; runDur accumulates frame durations.
	runStart time.Duration
	runDur   time.Duration
	inRun    bool
}

// New creates a detector. Zero config fields take package defaults.
func New(cfg Config) *Detector {
	return &Detector{cfg: cfg.withDefaults()}
}

// State returns the current detector state.
func (d *Detector) State() State { return d.state }

// Reset returns the detector to Silent and clears all hysteresis counters.
// Call at the start of every recording session.
func (d *Detector) Reset() {
	d.state = StateSilent
	d.inRun = false
	d.runDur = 0
	d.runStart = 0
}

// ProcessFrame classifies one frame of filtered audio. energy must be the
// frame's normalized RMS energy and offset/dur its position and length in the
// session. The returned event is non-nil only when a transition fired.
func (d *Detector) ProcessFrame(energy float64, offset, dur time.Duration) (Decision, *Event) {
	dec := Decision{
		Speech: energy >= d.cfg.SpeechThreshold,
		Energy: energy,
		Offset: offset,
	}

	switch d.state {
	case StateSilent:
		if dec.Speech {
			if !d.inRun {
				d.inRun = true
				d.runStart = offset
				d.runDur = 0
			}
			d.runDur += dur
			if d.runDur >= d.cfg.MinSpeechDuration {
				d.state = StateSpeaking
				start := d.runStart
				d.inRun = false
				d.runDur = 0
				return dec, &Event{Type: SpeechStart, Offset: start, Energy: energy}
			}
		} else {
			// Run broken before the hysteresis window filled.
			d.inRun = false
			d.runDur = 0
		}

	case StateSpeaking:
		if !dec.Speech {
			if !d.inRun {
				d.inRun = true
				d.runStart = offset
				d.runDur = 0
			}
			d.runDur += dur
			if d.runDur >= d.cfg.SilenceTimeout {
				d.state = StateSilent
				end := d.runStart
				d.inRun = false
				d.runDur = 0
				return dec, &Event{Type: SpeechEnd, Offset: end, Energy: energy}
			}
		} else {
			d.inRun = false
			d.runDur = 0
		}
	}

	return dec, nil
}
