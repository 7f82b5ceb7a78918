package config

import (
	"errors"
	"fmt"
	"os"
	"sync"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/voxlog/voxlog/pkg/asr"
	openaiasr "github.com/voxlog/voxlog/pkg/asr/openai"
	whisperasr "github.com/voxlog/voxlog/pkg/asr/whisper"
	"github.com/voxlog/voxlog/pkg/llm"
	"github.com/voxlog/voxlog/pkg/llm/anyllm"
)

// ErrBackendNotRegistered is returned by Create* methods when no factory has
// been registered under the requested name.
var ErrBackendNotRegistered = errors.New("config: backend not registered")

// Registry maps backend names to constructor functions. It decouples the
// composition root from concrete backend packages and lets tests swap in
// fakes. Safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	asr map[ASRBackend]func(ASRConfig) (asr.Backend, error)
	llm map[string]func(PolishConfig) (llm.Provider, error)
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		asr: make(map[ASRBackend]func(ASRConfig) (asr.Backend, error)),
		llm: make(map[string]func(PolishConfig) (llm.Provider, error)),
	}
}

// RegisterASR registers a speech-recognition backend factory.
func (r *Registry) RegisterASR(name ASRBackend, fn func(ASRConfig) (asr.Backend, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.asr[name] = fn
}

// CreateASR constructs the backend selected by cfg.Backend.
func (r *Registry) CreateASR(cfg ASRConfig) (asr.Backend, error) {
	r.mu.RLock()
	fn, ok := r.asr[cfg.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: asr backend %q", ErrBackendNotRegistered, cfg.Backend)
	}
	return fn(cfg)
}

// RegisterLLM registers a polish provider factory.
func (r *Registry) RegisterLLM(name string, fn func(PolishConfig) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = fn
}

// CreateLLM constructs the polish provider selected by cfg.Provider.
func (r *Registry) CreateLLM(cfg PolishConfig) (llm.Provider, error) {
	r.mu.RLock()
	fn, ok := r.llm[cfg.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm provider %q", ErrBackendNotRegistered, cfg.Provider)
	}
	return fn(cfg)
}

// DefaultRegistry returns a registry with every built-in backend registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.RegisterASR(BackendWhisper, func(cfg ASRConfig) (asr.Backend, error) {
		var opts []whisperasr.Option
		if cfg.Language != "" {
			opts = append(opts, whisperasr.WithLanguage(cfg.Language))
		}
		return whisperasr.New(cfg.ModelPath, opts...)
	})

	r.RegisterASR(BackendOpenAI, func(cfg ASRConfig) (asr.Backend, error) {
		var opts []openaiasr.Option
		if cfg.Model != "" {
			opts = append(opts, openaiasr.WithModel(cfg.Model))
		}
		if cfg.Language != "" {
			opts = append(opts, openaiasr.WithLanguage(cfg.Language))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openaiasr.WithBaseURL(cfg.BaseURL))
		}
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv("OPENAI_API_KEY")
		}
		return openaiasr.New(key, opts...)
	})

	anyFactory := func(cfg PolishConfig) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if cfg.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(cfg.APIKey))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(cfg.BaseURL))
		}
		return anyllm.New(cfg.Provider, cfg.Model, opts...)
	}
	for _, name := range validPolishProviders {
		r.RegisterLLM(name, anyFactory)
	}

	return r
}
