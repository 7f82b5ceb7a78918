// Package engine implements chunked offline transcription of recorded audio.
//
// Long recordings are split into overlapping fixed-size windows so memory
// stays bounded regardless of file length: each window's byte range is read
// from disk, decoded by the ASR backend, and released before the next window
// loads. Overlapping word spans between consecutive windows are deduplicated
// into one continuous transcript.
//
// # Architecture
//
// All model work runs on a single worker goroutine owned by the engine, so a
// caller on the capture path never blocks behind a decode; [Engine.Transcribe]
// enqueues a request and waits on its response channel, honouring context
// cancellation on both sides.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/voxlog/voxlog/internal/observe"
	"github.com/voxlog/voxlog/pkg/asr"
	"github.com/voxlog/voxlog/pkg/audio"
)

const (
	// DefaultWindow is the chunk window length.
	DefaultWindow = 30 * time.Second

	// DefaultOverlap is how much consecutive windows overlap. The overlap
	// gives the dedup pass a shared word span to match on.
	DefaultOverlap = 2 * time.Second

	// defaultSampleRate is the PCM rate recordings are stored at.
	defaultSampleRate = 16000

	// defaultQueueDepth bounds how many transcription requests may wait on
	// the worker before Transcribe blocks.
	defaultQueueDepth = 8
)

// ErrClosed is returned by Transcribe after the engine has been closed.
var ErrClosed = errors.New("engine: closed")

// Result is one finished transcription.
type Result struct {
	// Text is the merged transcript across all windows.
	Text string

	// Language is the language reported by the backend, when it reports one.
	Language string

	// Windows is how many chunk windows were decoded.
	Windows int
}

// Option is a functional option for configuring an Engine during construction.
type Option func(*Engine)

// WithWindow overrides the chunk window length. Default 30s.
func WithWindow(d time.Duration) Option {
	return func(e *Engine) { e.window = d }
}

// WithOverlap overrides the window overlap. Default 2s.
func WithOverlap(d time.Duration) Option {
	return func(e *Engine) { e.overlap = d }
}

// WithSampleRate sets the expected PCM sample rate of input files.
// Default 16000.
func WithSampleRate(rate int) Option {
	return func(e *Engine) { e.sampleRate = rate }
}

// WithDownloader attaches a model downloader that runs before the backend is
// initialised, fetching the model archive on first use.
func WithDownloader(d *Downloader) Option {
	return func(e *Engine) { e.dl = d }
}

// WithMetrics overrides the metrics instance. Default is
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.met = m }
}

// WithBackendName sets the backend label attached to metrics. Default "asr".
func WithBackendName(name string) Option {
	return func(e *Engine) { e.backendName = name }
}

// Engine transcribes audio files through an [asr.Backend], one file at a
// time on a dedicated worker goroutine.
//
// Engine is safe for concurrent use. Concurrent Transcribe calls queue on the
// worker; concurrent Initialize calls coalesce onto one in-flight
// initialization.
type Engine struct {
	backend     asr.Backend
	dl          *Downloader
	window      time.Duration
	overlap     time.Duration
	sampleRate  int
	met         *observe.Metrics
	backendName string

	init singleflight.Group

	requests  chan request
	startOnce sync.Once

	mu     sync.Mutex
	done   chan struct{}
	closed bool
	wg     sync.WaitGroup
}

type request struct {
	ctx  context.Context
	path string
	resp chan response
}

type response struct {
	result Result
	err    error
}

// New constructs an Engine over the given backend. Options are applied after
// defaults are set. The worker goroutine starts lazily on first Transcribe.
func New(backend asr.Backend, opts ...Option) *Engine {
	e := &Engine{
		backend:     backend,
		window:      DefaultWindow,
		overlap:     DefaultOverlap,
		sampleRate:  defaultSampleRate,
		backendName: "asr",
		requests:    make(chan request, defaultQueueDepth),
		done:        make(chan struct{}),
	}
	for _, o := range opts {
		o(e)
	}
	if e.met == nil {
		e.met = observe.DefaultMetrics()
	}
	return e
}

// Initialize prepares the backend for transcription, downloading the model
// first when a downloader is configured. It is idempotent: concurrent callers
// block on the first caller's in-flight initialization, and a failed attempt
// can be retried.
func (e *Engine) Initialize(ctx context.Context) error {
	_, err, _ := e.init.Do("init", func() (any, error) {
		if e.dl != nil {
			if err := e.dl.Ensure(ctx); err != nil {
				return nil, fmt.Errorf("engine: ensure model: %w", err)
			}
		}
		if err := e.backend.Initialize(ctx); err != nil {
			return nil, fmt.Errorf("engine: initialize backend: %w", err)
		}
		return nil, nil
	})
	return err
}

// Transcribe decodes the WAV file at path into a single merged transcript.
// The work runs on the engine's worker goroutine; Transcribe blocks until the
// result is ready, ctx is cancelled, or the engine closes.
func (e *Engine) Transcribe(ctx context.Context, path string) (Result, error) {
	e.startOnce.Do(e.startWorker)

	req := request{ctx: ctx, path: path, resp: make(chan response, 1)}
	select {
	case e.requests <- req:
	case <-e.done:
		return Result{}, ErrClosed
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	select {
	case r := <-req.resp:
		return r.result, r.err
	case <-e.done:
		return Result{}, ErrClosed
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Close stops the worker and releases the backend. Safe to call multiple
// times; subsequent calls return nil.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.done)
	e.mu.Unlock()

	e.wg.Wait()
	return e.backend.Close()
}

func (e *Engine) startWorker() {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for {
			select {
			case <-e.done:
				return
			case req := <-e.requests:
				res, err := e.transcribeFile(req.ctx, req.path)
				req.resp <- response{result: res, err: err}
			}
		}
	}()
}

// transcribeFile reads the file window by window, decodes each window, and
// merges the chunk transcripts.
func (e *Engine) transcribeFile(ctx context.Context, path string) (Result, error) {
	ctx, span := observe.StartSpan(ctx, "engine.Transcribe",
		trace.WithAttributes(attribute.String("audio.path", path)))
	defer span.End()
	start := time.Now()

	f, err := os.Open(path)
	if err != nil {
		e.met.RecordPipelineError(ctx, "engine", "file_not_found")
		return Result{}, fmt.Errorf("engine: open %s: %w", path, err)
	}
	defer f.Close()

	header := make([]byte, audio.HeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		e.met.RecordPipelineError(ctx, "engine", "invalid_audio")
		return Result{}, fmt.Errorf("engine: read header of %s: %w", path, audio.ErrInvalidWAV)
	}
	info, err := audio.ParseWAVHeader(header)
	if err != nil {
		e.met.RecordPipelineError(ctx, "engine", "invalid_audio")
		return Result{}, fmt.Errorf("engine: %s: %w", path, err)
	}
	if info.SampleRate != e.sampleRate {
		slog.Warn("engine: unexpected sample rate",
			"path", path, "got", info.SampleRate, "want", e.sampleRate)
	}

	total := info.Samples()
	// Streaming writers often never backfill the header's data-size field, so
	// trust the bytes actually on disk over the header's claim.
	if st, err := f.Stat(); err == nil {
		avail := int((st.Size() - audio.HeaderSize) / 2)
		if avail < 0 {
			avail = 0
		}
		if avail < total {
			slog.Warn("engine: wav header overstates payload, truncating",
				"path", path, "header_samples", total, "actual_samples", avail)
			total = avail
		}
	}
	windowSamples := int(e.window.Seconds() * float64(e.sampleRate))
	overlapSamples := int(e.overlap.Seconds() * float64(e.sampleRate))
	stride := windowSamples - overlapSamples

	// Short files skip the chunking machinery entirely.
	singlePassLimit := windowSamples + windowSamples/2
	var offsets []int
	if total <= singlePassLimit {
		offsets = []int{0}
		windowSamples = total
	} else {
		for off := 0; off < total; off += stride {
			offsets = append(offsets, off)
			if off+windowSamples >= total {
				break
			}
		}
	}

	texts := make([]string, 0, len(offsets))
	language := ""
	for _, off := range offsets {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		n := windowSamples
		if off+n > total {
			n = total - off
		}
		chunkStart := time.Now()
		res, err := e.transcribeWindow(ctx, f, off, n)
		if err != nil {
			e.met.RecordBackendRequest(ctx, e.backendName, "error")
			return Result{}, err
		}
		e.met.RecordBackendRequest(ctx, e.backendName, "ok")
		e.met.ChunkDuration.Record(ctx, time.Since(chunkStart).Seconds(),
			metric.WithAttributes(attribute.String("backend", e.backendName)))
		texts = append(texts, res.Text)
		if language == "" {
			language = res.Language
		}
	}

	text := mergeChunks(texts, func(overlap int, near bool) {
		e.met.RecordDedupOverlap(ctx, overlap)
		if near {
			e.met.DedupNearMisses.Add(ctx, 1)
			slog.Debug("engine: fuzzy overlap at chunk boundary left in place", "path", path)
		}
	})

	e.met.TranscriptionDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("backend", e.backendName)))
	return Result{Text: text, Language: language, Windows: len(offsets)}, nil
}

// transcribeWindow loads exactly one window's byte range and decodes it. The
// sample buffer is scoped to this call so each window's memory is released
// before the next loads.
func (e *Engine) transcribeWindow(ctx context.Context, f *os.File, offset, n int) (asr.Result, error) {
	buf := make([]byte, n*2)
	read, err := f.ReadAt(buf, int64(audio.HeaderSize+offset*2))
	if err != nil && !(errors.Is(err, io.EOF) && read == len(buf)) {
		return asr.Result{}, fmt.Errorf("engine: read window at sample %d: %w", offset, err)
	}
	samples := audio.SamplesToFloat32(audio.BytesToSamples(buf))
	return e.backend.Transcribe(ctx, samples)
}
