// Package openai implements asr.Backend against the OpenAI audio
// transcription API. It exists for devices too small to run whisper.cpp
// locally; the rest of the pipeline does not know the difference.
//
// Each Transcribe call wraps the PCM span in a WAV container and uploads it.
// There is no model to download, so Initialize only verifies the API key is
// present.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/voxlog/voxlog/pkg/asr"
	"github.com/voxlog/voxlog/pkg/audio"
)

const sampleRate = 16000

// Compile-time assertion that Backend implements asr.Backend.
var _ asr.Backend = (*Backend)(nil)

// Option is a functional option for configuring a Backend.
type Option func(*Backend)

// WithModel sets the transcription model. Defaults to whisper-1.
func WithModel(model string) Option {
	return func(b *Backend) { b.model = openai.AudioModel(model) }
}

// WithLanguage sets the expected language code hint (e.g., "en").
func WithLanguage(lang string) Option {
	return func(b *Backend) { b.language = lang }
}

// WithBaseURL overrides the API endpoint, e.g. for a compatible local server.
func WithBaseURL(url string) Option {
	return func(b *Backend) { b.baseURL = url }
}

// Backend transcribes audio via the OpenAI API. Safe for concurrent use.
type Backend struct {
	client   openai.Client
	model    openai.AudioModel
	language string
	baseURL  string
	ready    atomic.Bool
}

// New creates a Backend using the given API key.
func New(apiKey string, opts ...Option) (*Backend, error) {
	if apiKey == "" {
		return nil, errors.New("openai: apiKey must not be empty")
	}
	b := &Backend{model: openai.AudioModelWhisper1}
	for _, o := range opts {
		o(b)
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if b.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(b.baseURL))
	}
	b.client = openai.NewClient(clientOpts...)
	return b, nil
}

// Initialize marks the backend ready. There is no local model; repeated and
// concurrent calls are trivially safe.
func (b *Backend) Initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("openai: %w", err)
	}
	b.ready.Store(true)
	return nil
}

// Transcribe uploads the PCM span as a WAV file and returns the API's text.
func (b *Backend) Transcribe(ctx context.Context, samples []float32) (asr.Result, error) {
	if !b.ready.Load() {
		return asr.Result{}, asr.ErrNotInitialized
	}

	wav := audio.EncodeWAV(audio.Float32ToSamples(samples), sampleRate, 1)

	params := openai.AudioTranscriptionNewParams{
		Model: b.model,
		File:  openai.File(bytes.NewReader(wav), "segment.wav", "audio/wav"),
	}
	if b.language != "" {
		params.Language = openai.String(b.language)
	}

	resp, err := b.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return asr.Result{}, fmt.Errorf("openai: transcribe: %w", err)
	}

	return asr.Result{
		Text:     strings.TrimSpace(resp.Text),
		Language: b.language,
	}, nil
}

// Close is a no-op; the HTTP client holds no resources needing release.
func (b *Backend) Close() error {
	b.ready.Store(false)
	return nil
}
