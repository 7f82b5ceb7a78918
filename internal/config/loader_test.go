package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/voxlog/voxlog/internal/config"
)

const sampleYAML = `
vault:
  path: /home/sam/journal
server:
  listen_addr: 127.0.0.1:9000
  log_level: debug
asr:
  backend: whisper
  model_path: models/ggml-base.en.bin
  language: en
  download:
    url: https://example.com/ggml-base.en.bin
    size_bytes: 147951465
    sha256: a03779c86df3323075f5e796cb2ce5029f00ec8869eee3fdfb897afe36c6d002
engine:
  window_seconds: 20
  overlap_seconds: 3
vad:
  speech_threshold: 0.4
  min_speech_ms: 200
  silence_timeout_ms: 2500
record:
  stop_timeout_seconds: 15
polish:
  enabled: true
  provider: ollama
  model: llama3.2
`

func TestLoadFromReader_FullConfig(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Vault.Path != "/home/sam/journal" {
		t.Errorf("vault.path = %q", cfg.Vault.Path)
	}
	if cfg.Vault.RegistryLog != ".voxlog/ids.jsonl" {
		t.Errorf("registry_log default not applied: %q", cfg.Vault.RegistryLog)
	}
	if cfg.Server.LogLevel != config.LogDebug || cfg.Server.ListenAddr != "127.0.0.1:9000" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.ASR.Backend != config.BackendWhisper || cfg.ASR.ModelPath != "models/ggml-base.en.bin" {
		t.Errorf("asr = %+v", cfg.ASR)
	}
	if cfg.ASR.Download.SizeBytes != 147951465 {
		t.Errorf("download size = %d", cfg.ASR.Download.SizeBytes)
	}
	if cfg.Engine.Window() != 20*time.Second || cfg.Engine.Overlap() != 3*time.Second {
		t.Errorf("engine = %+v", cfg.Engine)
	}
	det := cfg.VAD.Detector()
	if det.SpeechThreshold != 0.4 || det.MinSpeechDuration != 200*time.Millisecond || det.SilenceTimeout != 2500*time.Millisecond {
		t.Errorf("vad detector = %+v", det)
	}
	if cfg.Record.StopTimeout() != 15*time.Second {
		t.Errorf("stop timeout = %v", cfg.Record.StopTimeout())
	}
	if !cfg.Polish.Enabled || cfg.Polish.Provider != "ollama" || cfg.Polish.Model != "llama3.2" {
		t.Errorf("polish = %+v", cfg.Polish)
	}
}

func TestLoadFromReader_DefaultsOnMinimalConfig(t *testing.T) {
	t.Parallel()
	yaml := `
vault:
  path: /tmp/vault
asr:
  model_path: m.bin
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.ListenAddr != "127.0.0.1:8452" {
		t.Errorf("listen_addr default = %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level default = %q", cfg.Server.LogLevel)
	}
	if cfg.ASR.Backend != config.BackendWhisper {
		t.Errorf("backend default = %q", cfg.ASR.Backend)
	}
	if cfg.Engine.WindowSeconds != 30 || cfg.Engine.OverlapSeconds != 2 {
		t.Errorf("engine defaults = %+v", cfg.Engine)
	}
	if cfg.Record.StopTimeoutSeconds != 30 {
		t.Errorf("stop timeout default = %d", cfg.Record.StopTimeoutSeconds)
	}
	if cfg.Server.UIEnabled == nil || !*cfg.Server.UIEnabled {
		t.Error("ui_enabled should default to true")
	}
	if cfg.MCP.Enabled == nil || !*cfg.MCP.Enabled {
		t.Error("mcp.enabled should default to true")
	}
	if cfg.Polish.Enabled {
		t.Error("polish should default to disabled")
	}
}

func TestLoadFromReader_UnknownKeyRejected(t *testing.T) {
	t.Parallel()
	yaml := `
vault:
  path: /v
  pth_typo: x
asr:
  model_path: m.bin
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("expected unknown field error, got nil")
	}
}

func TestValidate_Failures(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing vault path",
			yaml: "asr:\n  model_path: m.bin\n",
			want: "vault.path is required",
		},
		{
			name: "bad log level",
			yaml: "vault:\n  path: /v\nserver:\n  log_level: loud\nasr:\n  model_path: m.bin\n",
			want: "server.log_level",
		},
		{
			name: "unknown backend",
			yaml: "vault:\n  path: /v\nasr:\n  backend: deepgram\n",
			want: "asr.backend",
		},
		{
			name: "whisper without model path",
			yaml: "vault:\n  path: /v\nasr:\n  backend: whisper\n",
			want: "asr.model_path is required",
		},
		{
			name: "overlap not smaller than window",
			yaml: "vault:\n  path: /v\nasr:\n  model_path: m.bin\nengine:\n  window_seconds: 5\n  overlap_seconds: 5\n",
			want: "engine.overlap_seconds",
		},
		{
			name: "speech threshold out of range",
			yaml: "vault:\n  path: /v\nasr:\n  model_path: m.bin\nvad:\n  speech_threshold: 1.5\n",
			want: "vad.speech_threshold",
		},
		{
			name: "negative vad duration",
			yaml: "vault:\n  path: /v\nasr:\n  model_path: m.bin\nvad:\n  min_speech_ms: -1\n",
			want: "vad durations",
		},
		{
			name: "polish enabled without model",
			yaml: "vault:\n  path: /v\nasr:\n  model_path: m.bin\npolish:\n  enabled: true\n  provider: openai\n",
			want: "polish.model is required",
		},
		{
			name: "polish enabled without provider",
			yaml: "vault:\n  path: /v\nasr:\n  model_path: m.bin\npolish:\n  enabled: true\n  model: gpt-4o-mini\n",
			want: "polish.provider is required",
		},
		{
			name: "malformed download checksum",
			yaml: "vault:\n  path: /v\nasr:\n  model_path: m.bin\n  download:\n    url: https://x/m.bin\n    sha256: nothex\n",
			want: "asr.download.sha256",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestValidate_JoinsMultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
asr:
  backend: whisper
vad:
  speech_threshold: 2
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	msg := err.Error()
	for _, want := range []string{"vault.path", "asr.model_path", "vad.speech_threshold"} {
		if !strings.Contains(msg, want) {
			t.Errorf("joined error missing %q: %q", want, msg)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	if _, err := config.Load("/nonexistent/voxlog.yaml"); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}
