// Package mock provides a scripted asr.Backend for tests.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/voxlog/voxlog/pkg/asr"
)

// Compile-time assertion that Backend implements asr.Backend.
var _ asr.Backend = (*Backend)(nil)

// Backend is a scripted ASR backend. Configure the exported function fields
// before use; unset fields fall back to benign defaults. Safe for concurrent
// use as long as the function fields are set before any call.
type Backend struct {
	// TranscribeFunc is invoked by Transcribe when set.
	TranscribeFunc func(ctx context.Context, samples []float32) (asr.Result, error)

	// InitErr, when set, is returned by Initialize.
	InitErr error

	// InitDelay makes Initialize sleep before returning, for exercising
	// concurrent-initialization coalescing.
	InitDelay time.Duration

	mu          sync.Mutex
	initCalls   int
	initialized bool
	calls       [][]float32
}

// Initialize records the call and applies the scripted delay/error.
func (b *Backend) Initialize(ctx context.Context) error {
	b.mu.Lock()
	b.initCalls++
	b.mu.Unlock()

	if b.InitDelay > 0 {
		select {
		case <-time.After(b.InitDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if b.InitErr != nil {
		return b.InitErr
	}

	b.mu.Lock()
	b.initialized = true
	b.mu.Unlock()
	return nil
}

// Transcribe records the samples and delegates to TranscribeFunc.
func (b *Backend) Transcribe(ctx context.Context, samples []float32) (asr.Result, error) {
	b.mu.Lock()
	ok := b.initialized
	b.calls = append(b.calls, samples)
	b.mu.Unlock()
	if !ok {
		return asr.Result{}, asr.ErrNotInitialized
	}
	if b.TranscribeFunc != nil {
		return b.TranscribeFunc(ctx, samples)
	}
	return asr.Result{}, nil
}

// Close marks the backend uninitialized.
func (b *Backend) Close() error {
	b.mu.Lock()
	b.initialized = false
	b.mu.Unlock()
	return nil
}

// InitCalls returns how many times Initialize was invoked.
func (b *Backend) InitCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initCalls
}

// Calls returns the sample spans passed to Transcribe, in order.
func (b *Backend) Calls() [][]float32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]float32, len(b.calls))
	copy(out, b.calls)
	return out
}
