// Command spellcast is the voice spelling practice game for children.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/whizbee/spellcast/internal/app"
	"github.com/whizbee/spellcast/internal/config"
	"github.com/whizbee/spellcast/internal/observe"
	"github.com/whizbee/spellcast/internal/resilience"
	"github.com/whizbee/spellcast/pkg/audio"
	"github.com/whizbee/spellcast/pkg/audio/encode"
	"github.com/whizbee/spellcast/pkg/audio/malgo"
	"github.com/whizbee/spellcast/pkg/audio/wavfile"
	"github.com/whizbee/spellcast/pkg/provider/asr"
	"github.com/whizbee/spellcast/pkg/provider/asr/deepgram"
	"github.com/whizbee/spellcast/pkg/provider/asr/openai"
	"github.com/whizbee/spellcast/pkg/provider/asr/whisper"
)

// version is stamped with -ldflags on release builds.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	wordsPath := flag.String("words", "", "practice word list YAML file (overrides the config)")
	modeName := flag.String("mode", "", "recognition mode for this session (overrides the config default)")
	inputWAV := flag.String("input", "", "WAV file to practice against instead of the microphone")
	listDevices := flag.Bool("list-devices", false, "list capture devices and exit")
	flag.Parse()

	if *listDevices {
		return printDevices()
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	fromFile := err == nil
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist) && !flagWasSet("config"):
		// No config.yaml next to the binary is the normal first-run case.
		cfg = config.Default()
	case errors.Is(err, os.ErrNotExist):
		fmt.Fprintf(os.Stderr, "spellcast: config file %q not found\n", *configPath)
		return 1
	default:
		fmt.Fprintf(os.Stderr, "spellcast: %v\n", err)
		return 1
	}

	if *wordsPath != "" {
		cfg.Words.Path = *wordsPath
	}
	if *inputWAV != "" {
		cfg.Audio.InputWAV = *inputWAV
	}
	if *modeName != "" {
		if _, ok := cfg.Recognition.Modes[*modeName]; !ok {
			fmt.Fprintf(os.Stderr, "spellcast: unknown recognition mode %q (available: %s)\n",
				*modeName, strings.Join(modeNames(cfg), ", "))
			return 1
		}
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Log.Level.Level())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if fromFile {
		slog.Info("spellcast starting", "version", version, "config", *configPath)
	} else {
		slog.Info("spellcast starting", "version", version, "config", "(defaults)")
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	flushTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "spellcast",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := flushTelemetry(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Transcription chain ───────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	transcriber, err := buildTranscriber(cfg, reg)
	if err != nil {
		slog.Error("failed to build transcription chain", "err", err)
		return 1
	}

	// ── Audio source ──────────────────────────────────────────────────────────
	source := buildSource(cfg)

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg, *configPath, fromFile, *modeName)

	// ── Application ───────────────────────────────────────────────────────────
	opts := []app.Option{app.WithLogLevel(level)}
	if fromFile {
		opts = append(opts, app.WithConfigReload(*configPath))
	}
	if *modeName != "" {
		opts = append(opts, app.WithMode(*modeName))
	}

	application, err := app.New(cfg, &app.Providers{Transcriber: transcriber, Source: source}, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the transcription backend factories that ship
// with spellcast into reg. Each factory reads only its own config sub-block.
func registerBuiltinProviders(reg *config.Registry) {
	reg.Register("whisper", func(c config.ASRConfig) (asr.Transcriber, error) {
		var opts []whisper.Option
		if c.Whisper.Language != "" {
			opts = append(opts, whisper.WithLanguage(c.Whisper.Language))
		}
		return whisper.New(c.Whisper.URL, opts...)
	})

	reg.Register("openai", func(c config.ASRConfig) (asr.Transcriber, error) {
		key := os.Getenv(c.OpenAI.APIKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("environment variable %s is empty", c.OpenAI.APIKeyEnv)
		}
		var opts []openai.Option
		if c.OpenAI.Model != "" {
			opts = append(opts, openai.WithModel(c.OpenAI.Model))
		}
		if c.OpenAI.Language != "" {
			opts = append(opts, openai.WithLanguage(c.OpenAI.Language))
		}
		return openai.New(key, opts...)
	})

	reg.Register("deepgram", func(c config.ASRConfig) (asr.Transcriber, error) {
		key := os.Getenv(c.Deepgram.APIKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("environment variable %s is empty", c.Deepgram.APIKeyEnv)
		}
		var opts []deepgram.Option
		if c.Deepgram.Model != "" {
			opts = append(opts, deepgram.WithModel(c.Deepgram.Model))
		}
		if c.Deepgram.Language != "" {
			opts = append(opts, deepgram.WithLanguage(c.Deepgram.Language))
		}
		if codec, ok := codecForEncoding(c.Deepgram.Encoding); ok {
			opts = append(opts, deepgram.WithEncoding(codec))
		}
		return deepgram.New(key, opts...)
	})
}

// codecForEncoding maps the config encoding names onto upload codecs.
func codecForEncoding(name string) (encode.Codec, bool) {
	switch name {
	case "linear16":
		return encode.CodecWAV, true
	case "flac":
		return encode.CodecFLAC, true
	case "opus":
		return encode.CodecOpus, true
	default:
		return "", false
	}
}

// buildTranscriber assembles the failover chain: the primary backend followed
// by every fallback that could be constructed. A fallback that cannot be built
// (usually a missing API key) is skipped with a warning rather than blocking
// startup.
func buildTranscriber(cfg *config.Config, reg *config.Registry) (asr.Transcriber, error) {
	primary, err := reg.Create(cfg.ASR.Provider, cfg.ASR)
	if err != nil {
		return nil, fmt.Errorf("create asr provider %q: %w", cfg.ASR.Provider, err)
	}
	slog.Info("provider created", "kind", "asr", "name", cfg.ASR.Provider)

	chain := resilience.NewChain(cfg.ASR.Provider, primary, resilience.ChainConfig{
		CallTimeout: cfg.ASR.Timeout(),
		Breaker: resilience.BreakerConfig{
			MaxFailures:  cfg.ASR.Breaker.MaxFailures,
			ResetTimeout: cfg.ASR.Breaker.ResetTimeout(),
		},
	})

	for _, name := range cfg.ASR.Fallbacks {
		backend, err := reg.Create(name, cfg.ASR)
		if err != nil {
			slog.Warn("skipping unusable fallback", "name", name, "err", err)
			continue
		}
		chain.AddFallback(name, backend)
		slog.Info("provider created", "kind", "asr", "name", name, "role", "fallback")
	}

	slog.Info("transcription chain ready", "backends", strings.Join(chain.Backends(), " -> "))
	return chain, nil
}

// buildSource picks the audio source: a WAV file when configured, otherwise
// the system microphone.
func buildSource(cfg *config.Config) audio.Source {
	if cfg.Audio.InputWAV != "" {
		slog.Info("capturing from wav file", "path", cfg.Audio.InputWAV)
		return wavfile.New(cfg.Audio.InputWAV)
	}
	var opts []malgo.Option
	if cfg.Audio.Device != "" {
		opts = append(opts, malgo.WithDeviceName(cfg.Audio.Device))
	}
	return malgo.New(opts...)
}

// printDevices lists the capture devices the microphone backend can see.
func printDevices() int {
	devices, err := malgo.ListDevices()
	if err != nil {
		fmt.Fprintf(os.Stderr, "spellcast: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Println("No capture devices found.")
		return 0
	}
	fmt.Println("Capture devices:")
	for _, d := range devices {
		fmt.Printf("  %s\n", d)
	}
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, configPath string, fromFile bool, pinnedMode string) {
	configDisplay := "(defaults)"
	if fromFile {
		configDisplay = configPath
	}
	mode := cfg.Recognition.DefaultMode
	if pinnedMode != "" {
		mode = pinnedMode + " (pinned)"
	}
	wordsDisplay := "(builtin starter)"
	if cfg.Words.Path != "" {
		wordsDisplay = cfg.Words.Path
	}
	inputDisplay := "(microphone)"
	if cfg.Audio.InputWAV != "" {
		inputDisplay = cfg.Audio.InputWAV
	}
	metricsDisplay := "(disabled)"
	if cfg.Metrics.Enabled {
		metricsDisplay = cfg.Metrics.ListenAddr
	}

	fmt.Println("╔════════════════════════════════════════╗")
	fmt.Println("║  spellcast startup summary             ║")
	fmt.Println("╠════════════════════════════════════════╣")
	printRow("Config", configDisplay)
	printRow("ASR chain", strings.Join(cfg.ASR.Backends(), " -> "))
	printRow("Mode", mode)
	printRow("Words", wordsDisplay)
	printRow("Input", inputDisplay)
	printRow("Metrics", metricsDisplay)
	fmt.Println("╚════════════════════════════════════════╝")
}

func printRow(label, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-15s : %-19s ║\n", label, value)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// flagWasSet reports whether the named flag was given on the command line.
func flagWasSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// modeNames returns the configured recognition mode names, sorted.
func modeNames(cfg *config.Config) []string {
	return slices.Sorted(maps.Keys(cfg.Recognition.Modes))
}
