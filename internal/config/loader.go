package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidASRProviders lists the transcription backend names this build ships.
// Used by [Validate] to warn about unrecognised names before the registry
// rejects them at wiring time.
var ValidASRProviders = []string{"whisper", "openai", "deepgram"}

// validEncodings are the accepted deepgram.encoding values.
var validEncodings = []string{"linear16", "flac", "opus"}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
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

// LoadFromReader decodes a YAML config from r over [Default] and validates
// the result. Useful in tests where configs are constructed from string
// literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found and logs
// warnings for settings that will work but are probably not what the author
// meant.
func Validate(cfg *Config) error {
	var errs []error

	// Logging
	if cfg.Log.Level != "" && !cfg.Log.Level.IsValid() {
		errs = append(errs, fmt.Errorf("log.level %q is invalid; valid values: debug, info, warn, error", cfg.Log.Level))
	}

	// Audio
	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %d", cfg.Audio.SampleRate))
	} else if cfg.Audio.SampleRate != 16000 {
		slog.Warn("sample rates other than 16000 Hz are resampled before upload; expect extra latency",
			"sample_rate", cfg.Audio.SampleRate)
	}
	if cfg.Audio.Channels != 1 && cfg.Audio.Channels != 2 {
		errs = append(errs, fmt.Errorf("audio.channels must be 1 or 2, got %d", cfg.Audio.Channels))
	}
	if cfg.Audio.SampleIntervalMS <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_interval_ms must be positive, got %d", cfg.Audio.SampleIntervalMS))
	}

	// Recognition modes
	if len(cfg.Recognition.Modes) == 0 {
		errs = append(errs, errors.New("recognition.modes must define at least one mode"))
	}
	if cfg.Recognition.DefaultMode == "" {
		errs = append(errs, errors.New("recognition.default_mode is required"))
	} else if _, ok := cfg.Recognition.Modes[cfg.Recognition.DefaultMode]; !ok {
		errs = append(errs, fmt.Errorf("recognition.default_mode %q is not defined in recognition.modes", cfg.Recognition.DefaultMode))
	}
	for name, mode := range cfg.Recognition.Modes {
		if err := mode.Params().Validate(); err != nil {
			errs = append(errs, fmt.Errorf("recognition.modes[%q]: %w", name, err))
		}
	}

	// ASR backends
	if cfg.ASR.Provider == "" {
		errs = append(errs, errors.New("asr.provider is required"))
	}
	for _, name := range cfg.ASR.Backends() {
		validateProviderName(name)
	}
	if slices.Contains(cfg.ASR.Fallbacks, cfg.ASR.Provider) {
		slog.Warn("asr.fallbacks repeats the primary provider; the repeat is pointless",
			"provider", cfg.ASR.Provider)
	}
	if cfg.ASR.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("asr.timeout_seconds must be positive, got %g", cfg.ASR.TimeoutSeconds))
	}
	if cfg.ASR.Breaker.MaxFailures < 1 {
		errs = append(errs, fmt.Errorf("asr.breaker.max_failures must be at least 1, got %d", cfg.ASR.Breaker.MaxFailures))
	}
	if cfg.ASR.Breaker.ResetTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("asr.breaker.reset_timeout_seconds must be positive, got %g", cfg.ASR.Breaker.ResetTimeoutSeconds))
	}

	// Per-backend settings, checked only for backends actually selected.
	backends := cfg.ASR.Backends()
	if slices.Contains(backends, "whisper") && cfg.ASR.Whisper.URL == "" {
		errs = append(errs, errors.New("asr.whisper.url is required when the whisper backend is selected"))
	}
	if slices.Contains(backends, "openai") && cfg.ASR.OpenAI.APIKeyEnv == "" {
		errs = append(errs, errors.New("asr.openai.api_key_env is required when the openai backend is selected"))
	}
	if slices.Contains(backends, "deepgram") {
		if cfg.ASR.Deepgram.APIKeyEnv == "" {
			errs = append(errs, errors.New("asr.deepgram.api_key_env is required when the deepgram backend is selected"))
		}
		if !slices.Contains(validEncodings, cfg.ASR.Deepgram.Encoding) {
			errs = append(errs, fmt.Errorf("asr.deepgram.encoding %q is invalid; valid values: linear16, flac, opus", cfg.ASR.Deepgram.Encoding))
		}
	}

	// Metrics
	if cfg.Metrics.Enabled && cfg.Metrics.ListenAddr == "" {
		errs = append(errs, errors.New("metrics.listen_addr is required when metrics.enabled is true"))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not one of
// the backends this build ships.
func validateProviderName(name string) {
	if name == "" || slices.Contains(ValidASRProviders, name) {
		return
	}
	slog.Warn("unknown ASR provider name; the registry will reject it unless something registered it",
		"name", name,
		"known", ValidASRProviders,
	)
}

// reparse decodes data the same way [LoadFromReader] does. Used by the
// watcher, which already holds the file contents for hashing.
func reparse(data []byte) (*Config, error) {
	return LoadFromReader(bytes.NewReader(data))
}
