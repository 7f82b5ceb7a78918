// Package whisper implements asr.Backend on the whisper.cpp CGO bindings.
// The whisper.cpp static library (libwhisper.a) and headers (whisper.h) must
// be available at link time via LIBRARY_PATH and C_INCLUDE_PATH.
//
// The model is loaded once by Initialize and shared across calls; each
// Transcribe creates its own whisper.cpp context, so calls may run
// concurrently without interference.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"golang.org/x/sync/singleflight"

	"github.com/voxlog/voxlog/pkg/asr"
)

const defaultLanguage = "en"

// Compile-time assertion that Backend implements asr.Backend.
var _ asr.Backend = (*Backend)(nil)

// Option is a functional option for configuring a Backend.
type Option func(*Backend)

// WithLanguage sets the transcription language code (e.g., "en", "de").
// Defaults to "en".
func WithLanguage(lang string) Option {
	return func(b *Backend) { b.language = lang }
}

// Backend runs whisper.cpp inference in-process. Safe for concurrent use.
type Backend struct {
	modelPath string
	language  string

	// init coalesces concurrent Initialize calls so the model is loaded at
	// most once at a time; unlike sync.Once a failed load can be retried.
	init singleflight.Group

	mu    sync.Mutex
	model whisperlib.Model
}

// New creates a Backend that will load the ggml model file at modelPath on
// the first Initialize call. modelPath must not be empty.
func New(modelPath string, opts ...Option) (*Backend, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	b := &Backend{
		modelPath: modelPath,
		language:  defaultLanguage,
	}
	for _, o := range opts {
		o(b)
	}
	return b, nil
}

// Initialize loads the model. Concurrent callers block on the in-flight load
// and share its outcome. Returns nil immediately once loaded.
func (b *Backend) Initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("whisper: %w", err)
	}

	b.mu.Lock()
	loaded := b.model != nil
	b.mu.Unlock()
	if loaded {
		return nil
	}

	_, err, _ := b.init.Do("load", func() (any, error) {
		model, err := whisperlib.New(b.modelPath)
		if err != nil {
			return nil, fmt.Errorf("whisper: load model %q: %w", b.modelPath, err)
		}
		b.mu.Lock()
		b.model = model
		b.mu.Unlock()
		return nil, nil
	})
	return err
}

// Transcribe runs inference over 16 kHz mono float32 samples. The whisper
// context is created per call; cancellation between segment reads drops the
// result without corrupting the shared model.
func (b *Backend) Transcribe(ctx context.Context, samples []float32) (asr.Result, error) {
	b.mu.Lock()
	model := b.model
	b.mu.Unlock()
	if model == nil {
		return asr.Result{}, asr.ErrNotInitialized
	}

	wctx, err := model.NewContext()
	if err != nil {
		return asr.Result{}, fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(b.language); err != nil {
		slog.Warn("whisper: failed to set language, using model default", "language", b.language, "error", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return asr.Result{}, fmt.Errorf("whisper: process audio: %w", err)
	}

	var (
		parts    []string
		segments []asr.Segment
	)
	for {
		if err := ctx.Err(); err != nil {
			return asr.Result{}, fmt.Errorf("whisper: %w", err)
		}
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return asr.Result{}, fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text == "" {
			continue
		}
		parts = append(parts, text)
		segments = append(segments, asr.Segment{
			Text:  text,
			Start: segment.Start,
			End:   segment.End,
		})
	}

	return asr.Result{
		Text:     strings.Join(parts, " "),
		Language: b.language,
		Segments: segments,
	}, nil
}

// Close releases the model. Safe to call more than once.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.model == nil {
		return nil
	}
	err := b.model.Close()
	b.model = nil
	return err
}
