// Package config provides the configuration schema, loader, and backend
// registry for the voxlog capture pipeline.
package config

import (
	"time"

	"github.com/voxlog/voxlog/pkg/vad"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// ASRBackend selects the speech-recognition runtime.
type ASRBackend string

const (
	// BackendWhisper runs the embedded whisper.cpp model locally.
	BackendWhisper ASRBackend = "whisper"

	// BackendOpenAI sends audio to the OpenAI transcription API.
	BackendOpenAI ASRBackend = "openai"
)

// IsValid reports whether b is a recognised backend.
func (b ASRBackend) IsValid() bool {
	return b == BackendWhisper || b == BackendOpenAI
}

// Config is the root configuration, loaded from YAML with [Load].
type Config struct {
	Vault  VaultConfig  `yaml:"vault"`
	Server ServerConfig `yaml:"server"`
	ASR    ASRConfig    `yaml:"asr"`
	Engine EngineConfig `yaml:"engine"`
	VAD    VADConfig    `yaml:"vad"`
	Record RecordConfig `yaml:"record"`
	Polish PolishConfig `yaml:"polish"`
	MCP    MCPConfig    `yaml:"mcp"`
}

// VaultConfig locates the journal vault on disk.
type VaultConfig struct {
	// Path is the vault root directory: day files at the top level, assets
	// and the ID registry underneath.
	Path string `yaml:"path"`

	// RegistryLog is the vault-relative path of the para-ID JSONL log.
	// Default ".voxlog/ids.jsonl".
	RegistryLog string `yaml:"registry_log"`
}

// ServerConfig holds the UI bridge listener and logging settings.
type ServerConfig struct {
	// ListenAddr is the address the UI bridge listens on.
	// Default "127.0.0.1:8452".
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Default "info".
	LogLevel LogLevel `yaml:"log_level"`

	// UIEnabled starts the websocket/metrics server. Default true.
	UIEnabled *bool `yaml:"ui_enabled"`
}

// ASRConfig selects and configures the speech-recognition backend.
type ASRConfig struct {
	// Backend picks the runtime. Default "whisper".
	Backend ASRBackend `yaml:"backend"`

	// ModelPath is the local model file for the whisper backend. Doubles as
	// the download destination when Download is configured.
	ModelPath string `yaml:"model_path"`

	// Model names the remote model for the openai backend
	// (e.g. "whisper-1"). Ignored by the whisper backend.
	Model string `yaml:"model"`

	// APIKey authenticates the openai backend. Falls back to the
	// OPENAI_API_KEY environment variable when empty.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the openai backend's API endpoint.
	BaseURL string `yaml:"base_url"`

	// Language is the expected speech language code (e.g. "en"). Empty means
	// auto-detect.
	Language string `yaml:"language"`

	// Download configures fetching the whisper model on first run.
	Download DownloadConfig `yaml:"download"`
}

// DownloadConfig describes where to fetch the ASR model from and how to
// validate it.
type DownloadConfig struct {
	URL string `yaml:"url"`

	// SizeBytes is the exact expected file size. Zero skips the size check.
	SizeBytes int64 `yaml:"size_bytes"`

	// SHA256 is the hex-encoded checksum. Empty skips the hash check.
	SHA256 string `yaml:"sha256"`
}

// EngineConfig tunes the chunked transcription engine.
type EngineConfig struct {
	// WindowSeconds is the transcription window length. Default 30.
	WindowSeconds int `yaml:"window_seconds"`

	// OverlapSeconds is the overlap between consecutive windows. Default 2.
	OverlapSeconds int `yaml:"overlap_seconds"`
}

// Window returns the window length as a duration.
func (e EngineConfig) Window() time.Duration {
	return time.Duration(e.WindowSeconds) * time.Second
}

// Overlap returns the window overlap as a duration.
func (e EngineConfig) Overlap() time.Duration {
	return time.Duration(e.OverlapSeconds) * time.Second
}

// VADConfig tunes the voice activity detector.
type VADConfig struct {
	// SpeechThreshold is the normalized RMS energy at or above which a frame
	// counts as speech, in (0, 1]. Default 0.5.
	SpeechThreshold float64 `yaml:"speech_threshold"`

	// MinSpeechMs is how long speech must be sustained before a segment
	// opens. Default 250.
	MinSpeechMs int `yaml:"min_speech_ms"`

	// SilenceTimeoutMs is how long silence must last before a segment
	// closes. Default 3000.
	SilenceTimeoutMs int `yaml:"silence_timeout_ms"`
}

// Detector converts the YAML tuning to the detector's config type. Zero
// fields keep the detector's own defaults.
func (v VADConfig) Detector() vad.Config {
	return vad.Config{
		SpeechThreshold:   v.SpeechThreshold,
		MinSpeechDuration: time.Duration(v.MinSpeechMs) * time.Millisecond,
		SilenceTimeout:    time.Duration(v.SilenceTimeoutMs) * time.Millisecond,
	}
}

// RecordConfig tunes the streaming controller.
type RecordConfig struct {
	// StopTimeoutSeconds bounds how long stopping a recording waits for
	// in-flight transcription before persisting the entry as pending.
	// Default 30.
	StopTimeoutSeconds int `yaml:"stop_timeout_seconds"`
}

// StopTimeout returns the stop timeout as a duration.
func (r RecordConfig) StopTimeout() time.Duration {
	return time.Duration(r.StopTimeoutSeconds) * time.Second
}

// PolishConfig configures the optional LLM transcript cleanup pass.
type PolishConfig struct {
	// Enabled turns the pass on. Default false: transcripts are journaled
	// exactly as the ASR backend produced them.
	Enabled bool `yaml:"enabled"`

	// Provider names the LLM backend: openai, anthropic, gemini, ollama,
	// deepseek, mistral, groq, llamacpp, llamafile.
	Provider string `yaml:"provider"`

	// Model is the provider-specific model name.
	Model string `yaml:"model"`

	// APIKey authenticates the provider. Falls back to the provider's
	// conventional environment variable when empty.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Temperature is the sampling temperature. Zero means the polisher's
	// default (0.1).
	Temperature float64 `yaml:"temperature"`
}

// MCPConfig configures the Model Context Protocol server.
type MCPConfig struct {
	// Enabled serves journal tools over stdio when the process is started
	// with the mcp subcommand. Default true.
	Enabled *bool `yaml:"enabled"`
}

// applyDefaults fills zero fields with package defaults.
func (c *Config) applyDefaults() {
	if c.Vault.RegistryLog == "" {
		c.Vault.RegistryLog = ".voxlog/ids.jsonl"
	}
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = "127.0.0.1:8452"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Server.UIEnabled == nil {
		t := true
		c.Server.UIEnabled = &t
	}
	if c.ASR.Backend == "" {
		c.ASR.Backend = BackendWhisper
	}
	if c.Engine.WindowSeconds == 0 {
		c.Engine.WindowSeconds = 30
	}
	if c.Engine.OverlapSeconds == 0 {
		c.Engine.OverlapSeconds = 2
	}
	if c.Record.StopTimeoutSeconds == 0 {
		c.Record.StopTimeoutSeconds = 30
	}
	if c.MCP.Enabled == nil {
		t := true
		c.MCP.Enabled = &t
	}
}
