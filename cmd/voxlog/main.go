// Command voxlog is the voice-journaling capture pipeline. The record
// subcommand replays an audio file through the full pipeline and appends the
// transcript to the journal; the mcp subcommand serves the journal to agent
// tooling over stdio.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voxlog/voxlog/internal/config"
	"github.com/voxlog/voxlog/internal/engine"
	"github.com/voxlog/voxlog/internal/journal"
	"github.com/voxlog/voxlog/internal/mcpserver"
	"github.com/voxlog/voxlog/internal/observe"
	"github.com/voxlog/voxlog/internal/paraid"
	"github.com/voxlog/voxlog/internal/polish"
	"github.com/voxlog/voxlog/internal/record"
	"github.com/voxlog/voxlog/internal/uibridge"
	"github.com/voxlog/voxlog/internal/vaultfs"
	"github.com/voxlog/voxlog/pkg/audio"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "voxlog.yaml", "path to the YAML configuration file")
	flag.Usage = usage
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxlog: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxlog: %v\n", err)
		}
		return 1
	}

	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch flag.Arg(0) {
	case "mcp":
		return runMCP(ctx, cfg, logger)
	case "record":
		if flag.Arg(1) == "" {
			fmt.Fprintln(os.Stderr, "voxlog: record requires an audio file argument")
			usage()
			return 2
		}
		return runRecord(ctx, cfg, logger, level, *configPath, flag.Arg(1))
	case "":
		usage()
		return 2
	default:
		fmt.Fprintf(os.Stderr, "voxlog: unknown command %q\n", flag.Arg(0))
		usage()
		return 2
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: voxlog [-config file] <command>

commands:
  record <file.wav>   transcribe the recording and append it to the journal
  mcp                 serve journal tools over MCP stdio
`)
	flag.PrintDefaults()
}

// runMCP serves the journal over MCP stdio. The ASR stack is never touched:
// agent tooling only reads and edits day files.
func runMCP(ctx context.Context, cfg *config.Config, logger *slog.Logger) int {
	if cfg.MCP.Enabled != nil && !*cfg.MCP.Enabled {
		// Logged, not printed: stdout belongs to the MCP transport.
		logger.Error("mcp server is disabled in the configuration")
		return 1
	}

	store, reg, err := openVault(cfg, logger)
	if err != nil {
		logger.Error("open vault", "err", err)
		return 1
	}

	srv := mcpserver.New(store, reg, mcpserver.WithLogger(logger))
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("mcp server error", "err", err)
		return 1
	}
	return 0
}

// runRecord plays the audio file through the capture pipeline and appends the
// resulting entry to today's journal file.
func runRecord(ctx context.Context, cfg *config.Config, logger *slog.Logger, level *slog.LevelVar, configPath, audioPath string) int {
	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "voxlog"})
	if err != nil {
		logger.Error("init telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			logger.Warn("telemetry shutdown", "err", err)
		}
	}()

	// Live-reload the tunables that are safe to change mid-run.
	watcher, err := config.NewWatcher(configPath, func(old, new *config.Config) {
		d := config.Compare(old, new)
		if d.LogLevelChanged {
			level.Set(slogLevel(d.NewLogLevel))
			logger.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.VADChanged || d.StopTimeoutChanged || d.PolishChanged {
			logger.Info("tuning changed; applies to the next recording session")
		}
	})
	if err != nil {
		logger.Error("watch config", "err", err)
		return 1
	}
	defer watcher.Stop()

	backend, err := config.DefaultRegistry().CreateASR(cfg.ASR)
	if err != nil {
		logger.Error("create asr backend", "err", err)
		return 1
	}
	defer backend.Close()

	engOpts := []engine.Option{
		engine.WithWindow(cfg.Engine.Window()),
		engine.WithOverlap(cfg.Engine.Overlap()),
		engine.WithBackendName(string(cfg.ASR.Backend)),
	}
	if cfg.ASR.Backend == config.BackendWhisper && cfg.ASR.Download.URL != "" {
		var dlOpts []engine.DownloaderOption
		if cfg.ASR.Download.SizeBytes > 0 {
			dlOpts = append(dlOpts, engine.WithExpectedSize(cfg.ASR.Download.SizeBytes))
		}
		if cfg.ASR.Download.SHA256 != "" {
			dlOpts = append(dlOpts, engine.WithChecksum(cfg.ASR.Download.SHA256))
		}
		dlOpts = append(dlOpts, engine.WithProgress(func(p engine.Progress) {
			logger.Info("downloading model", "received", p.Received, "total", p.Total)
		}))
		engOpts = append(engOpts, engine.WithDownloader(
			engine.NewDownloader(cfg.ASR.Download.URL, cfg.ASR.ModelPath, dlOpts...)))
	}
	eng := engine.New(backend, engOpts...)
	if err := eng.Initialize(ctx); err != nil {
		logger.Error("initialize engine", "err", err)
		return 1
	}
	defer eng.Close()

	store, _, err := openVault(cfg, logger)
	if err != nil {
		logger.Error("open vault", "err", err)
		return 1
	}
	vfs := vaultfs.NewOS(cfg.Vault.Path)

	ctrl := record.NewController(eng, vfs,
		record.WithVADConfig(cfg.VAD.Detector()),
		record.WithStopTimeout(cfg.Record.StopTimeout()),
	)

	// The event stream feeds the UI bridge; when the bridge is disabled a
	// local drain keeps the channel from filling.
	if cfg.Server.UIEnabled == nil || *cfg.Server.UIEnabled {
		bridge := uibridge.New(cfg.Server.ListenAddr, ctrl.Events(),
			uibridge.WithLogger(logger),
			uibridge.WithCheckers(
				uibridge.Checker{Name: "vault", Check: func(context.Context) error {
					if !vfs.Exists(".") {
						return fmt.Errorf("vault root %q missing", cfg.Vault.Path)
					}
					return nil
				}},
				uibridge.Checker{Name: "asr", Check: func(ctx context.Context) error {
					return eng.Initialize(ctx)
				}},
			),
		)
		go func() {
			if err := bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("ui bridge error", "err", err)
			}
		}()
		logger.Info("ui bridge listening", "addr", cfg.Server.ListenAddr)
	} else {
		go func() {
			for range ctrl.Events() {
			}
		}()
	}

	source, err := audio.NewFileSource(audioPath)
	if err != nil {
		logger.Error("open audio source", "err", err)
		return 1
	}
	defer source.Close()

	if err := ctrl.StartRecording(ctx, source); err != nil {
		logger.Error("start recording", "err", err)
		return 1
	}
	logger.Info("recording", "source", audioPath)

	// A file source is finite, so stop as soon as it is drained. A live
	// capture source would instead stop on user action. An interrupt stops
	// early but still flushes and journals what was captured.
	select {
	case <-source.Done():
	case <-ctx.Done():
		logger.Info("interrupted, flushing recording")
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Record.StopTimeout()+5*time.Second)
	defer cancel()
	sum, err := ctrl.StopRecording(stopCtx)
	if err != nil {
		logger.Error("stop recording", "err", err)
		return 1
	}

	text := sum.Text
	status := journal.StatusComplete
	switch {
	case sum.Pending:
		status = journal.StatusPending
		logger.Warn("transcription still running at stop; journaling entry as pending", "audio", sum.AudioPath)
	case sum.Failed:
		status = journal.StatusFailed
		logger.Warn("transcription failed for every speech span; journaling entry as failed", "audio", sum.AudioPath)
	case cfg.Polish.Enabled:
		text = polishText(ctx, cfg.Polish, text, logger)
	}

	entry, err := store.Append(time.Now(), journal.NewEntry{
		Title:           "Voice note",
		Content:         text,
		Kind:            journal.KindVoice,
		AudioPath:       sum.AudioPath,
		DurationSeconds: int(sum.Duration.Round(time.Second) / time.Second),
		Status:          status,
	})
	if err != nil {
		logger.Error("journal append", "err", err)
		return 1
	}

	logger.Info("entry journaled",
		"id", entry.ID,
		"status", status,
		"segments", len(sum.Segments),
		"duration", sum.Duration.Round(time.Second),
		"audio", sum.AudioPath,
	)
	fmt.Println(text)
	return 0
}

// polishText runs the optional cleanup pass. Any failure degrades to the raw
// transcript; a recording is never lost to a flaky LLM.
func polishText(ctx context.Context, cfg config.PolishConfig, text string, logger *slog.Logger) string {
	provider, err := config.DefaultRegistry().CreateLLM(cfg)
	if err != nil {
		logger.Warn("polish provider unavailable, keeping raw transcript", "err", err)
		return text
	}
	var opts []polish.Option
	if cfg.Temperature > 0 {
		opts = append(opts, polish.WithTemperature(cfg.Temperature))
	}
	polished, err := polish.New(provider, opts...).Polish(ctx, text)
	if err != nil {
		logger.Warn("polish failed, keeping raw transcript", "err", err)
	}
	return polished
}

func openVault(cfg *config.Config, logger *slog.Logger) (*journal.Store, *paraid.Registry, error) {
	vfs := vaultfs.NewOS(cfg.Vault.Path)
	if err := vfs.EnsureDir("."); err != nil {
		return nil, nil, fmt.Errorf("ensure vault root: %w", err)
	}
	reg := paraid.NewRegistry(vfs, cfg.Vault.RegistryLog)
	if err := reg.Initialize(); err != nil {
		return nil, nil, fmt.Errorf("rehydrate id registry: %w", err)
	}
	return journal.NewStore(vfs, reg, logger), reg, nil
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
