// Package asr defines the Backend interface for offline speech-recognition
// model runtimes.
//
// A Backend wraps one concrete model runtime (the embedded whisper.cpp
// bindings, or a remote transcription API) behind a two-call boundary:
// Initialize loads the model, Transcribe runs inference over one span of
// PCM samples. The chunked engine that splits long recordings into
// overlapping windows is backend-agnostic above this boundary.
//
// Implementations must be safe for concurrent use. Initialize must be
// idempotent: concurrent callers block on the first caller's in-flight
// initialization rather than re-initializing.
package asr

import (
	"context"
	"errors"
	"time"
)

// ErrNotInitialized is returned by Transcribe when Initialize has not
// completed successfully.
var ErrNotInitialized = errors.New("asr: backend not initialized")

// Result is the transcription of one contiguous span of audio.
type Result struct {
	// Text is the transcribed speech, trimmed.
	Text string

	// Language is the detected or configured language code (e.g., "en").
	Language string

	// Segments carries per-segment detail when the backend provides it.
	// May be nil.
	Segments []Segment
}

// Segment is a model-delimited piece of the transcription with its position
// in the transcribed audio.
type Segment struct {
	Text  string
	Start time.Duration
	End   time.Duration
}

// Backend is the abstraction over a speech-recognition model runtime.
type Backend interface {
	// Initialize loads the model and prepares the backend for inference.
	// Idempotent and safe to call concurrently; repeated calls after success
	// return nil immediately. A failed initialization may be retried.
	Initialize(ctx context.Context) error

	// Transcribe runs inference over 16 kHz mono float32 PCM in [-1, 1).
	// Returns ErrNotInitialized if Initialize has not completed. Honors
	// ctx cancellation cooperatively: a cancelled call drops its result
	// without corrupting backend state for the next call.
	Transcribe(ctx context.Context, samples []float32) (Result, error)

	// Close releases model resources. Calling Close more than once is safe.
	Close() error
}
