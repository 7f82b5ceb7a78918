package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// validPolishProviders lists the LLM provider names the polish stage accepts.
var validPolishProviders = []string{
	"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. Hard failures
// are joined into one error; recoverable oddities are logged as warnings.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Vault.Path == "" {
		errs = append(errs, errors.New("vault.path is required"))
	}

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	switch {
	case !cfg.ASR.Backend.IsValid():
		errs = append(errs, fmt.Errorf("asr.backend %q is invalid; valid values: whisper, openai", cfg.ASR.Backend))
	case cfg.ASR.Backend == BackendWhisper:
		if cfg.ASR.ModelPath == "" {
			errs = append(errs, errors.New("asr.model_path is required for the whisper backend"))
		}
	case cfg.ASR.Backend == BackendOpenAI:
		if cfg.ASR.APIKey == "" && os.Getenv("OPENAI_API_KEY") == "" {
			slog.Warn("asr.api_key is empty and OPENAI_API_KEY is not set; transcription requests will fail")
		}
	}

	if cfg.ASR.Download.URL != "" && cfg.ASR.Download.SHA256 != "" {
		if sum, err := hex.DecodeString(cfg.ASR.Download.SHA256); err != nil || len(sum) != 32 {
			errs = append(errs, fmt.Errorf("asr.download.sha256 %q is not a hex-encoded SHA-256", cfg.ASR.Download.SHA256))
		}
	}
	if cfg.ASR.Download.URL != "" && cfg.ASR.Download.SHA256 == "" && cfg.ASR.Download.SizeBytes == 0 {
		slog.Warn("asr.download has neither sha256 nor size_bytes; the downloaded model will not be validated")
	}

	if cfg.Engine.WindowSeconds < 0 || cfg.Engine.OverlapSeconds < 0 {
		errs = append(errs, errors.New("engine window and overlap must not be negative"))
	} else if cfg.Engine.OverlapSeconds >= cfg.Engine.WindowSeconds {
		errs = append(errs, fmt.Errorf("engine.overlap_seconds (%d) must be smaller than engine.window_seconds (%d)",
			cfg.Engine.OverlapSeconds, cfg.Engine.WindowSeconds))
	}

	if t := cfg.VAD.SpeechThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("vad.speech_threshold %.2f is out of range (0, 1]", t))
	}
	if cfg.VAD.MinSpeechMs < 0 || cfg.VAD.SilenceTimeoutMs < 0 {
		errs = append(errs, errors.New("vad durations must not be negative"))
	}

	if cfg.Record.StopTimeoutSeconds < 0 {
		errs = append(errs, errors.New("record.stop_timeout_seconds must not be negative"))
	}

	if cfg.Polish.Enabled {
		if cfg.Polish.Provider == "" {
			errs = append(errs, errors.New("polish.provider is required when polish is enabled"))
		} else if !slices.Contains(validPolishProviders, cfg.Polish.Provider) {
			slog.Warn("unknown polish provider — may be a typo",
				"provider", cfg.Polish.Provider, "known", validPolishProviders)
		}
		if cfg.Polish.Model == "" {
			errs = append(errs, errors.New("polish.model is required when polish is enabled"))
		}
	}

	return errors.Join(errs...)
}
