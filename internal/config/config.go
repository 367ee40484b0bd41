// Package config provides the configuration schema, loader, and ASR provider
// registry for the spellcast recognizer.
package config

import (
	"log/slog"
	"time"

	"github.com/whizbee/spellcast/internal/recorder"
	"github.com/whizbee/spellcast/internal/vad"
	"github.com/whizbee/spellcast/pkg/audio"
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

// Level maps l to its slog level. Unrecognised values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader]; absent keys keep the values
// from [Default].
type Config struct {
	Log         LogConfig         `yaml:"log"`
	Audio       AudioConfig       `yaml:"audio"`
	Recognition RecognitionConfig `yaml:"recognition"`
	ASR         ASRConfig         `yaml:"asr"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Words       WordsConfig       `yaml:"words"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level LogLevel `yaml:"level"`
}

// AudioConfig selects the capture source and format.
type AudioConfig struct {
	// SampleRate is the capture sample rate in Hz.
	SampleRate int `yaml:"sample_rate"`

	// Channels is the capture channel count (1 or 2).
	Channels int `yaml:"channels"`

	// SampleIntervalMS is the loudness sampling window in milliseconds: the
	// cadence at which the voice activity detector sees a level reading.
	SampleIntervalMS int `yaml:"sample_interval_ms"`

	// Device selects the capture device by name substring. Empty uses the
	// system default microphone.
	Device string `yaml:"device"`

	// InputWAV, when set, reads audio from a WAV file instead of the
	// microphone. Meant for scripted demos and debugging.
	InputWAV string `yaml:"input_wav"`
}

// Format returns the capture format described by the audio section.
func (a AudioConfig) Format() audio.Format {
	return audio.Format{SampleRate: a.SampleRate, Channels: a.Channels}
}

// SampleInterval returns the loudness sampling window as a duration.
func (a AudioConfig) SampleInterval() time.Duration {
	return time.Duration(a.SampleIntervalMS) * time.Millisecond
}

// RecognitionConfig holds the recognition mode presets and which one the
// practice loop uses.
type RecognitionConfig struct {
	// DefaultMode names the entry in Modes used when the caller does not
	// pick one.
	DefaultMode string `yaml:"default_mode"`

	// LetterNameAliases enables mapping spoken letter names ("bee", "aitch")
	// onto letters during extraction.
	LetterNameAliases bool `yaml:"letter_name_aliases"`

	// Modes are the named recognition presets. A mode defined in the file
	// replaces a builtin preset of the same name wholesale.
	Modes map[string]ModeConfig `yaml:"modes"`
}

// ModeConfig is one recognition preset. Every caller-facing mode variant is a
// different setting of these same primitives, never a different algorithm.
type ModeConfig struct {
	// MaxDurationSeconds is the hard recording ceiling.
	MaxDurationSeconds float64 `yaml:"max_duration_seconds"`

	// SilenceDurationSeconds is the trailing silence that auto-stops the
	// recording once speech was heard.
	SilenceDurationSeconds float64 `yaml:"silence_duration_seconds"`

	// MinSpeechDurationSeconds is the continuous loudness required before
	// anything counts as speech.
	MinSpeechDurationSeconds float64 `yaml:"min_speech_duration_seconds"`

	// VoiceThresholdDB is the loudness at or above which a sample counts as
	// speech.
	VoiceThresholdDB float64 `yaml:"voice_threshold_db"`

	// SilenceThresholdDB is the loudness at or below which a sample counts
	// as silence. Must sit below VoiceThresholdDB.
	SilenceThresholdDB float64 `yaml:"silence_threshold_db"`

	// StrictAccept additionally requires the word-letters-word pattern to
	// validate before an attempt is accepted.
	StrictAccept bool `yaml:"strict_accept"`
}

// MaxDuration returns the recording ceiling as a duration.
func (m ModeConfig) MaxDuration() time.Duration {
	return secondsToDuration(m.MaxDurationSeconds)
}

// Params returns the recorder parameters described by this mode.
func (m ModeConfig) Params() recorder.Params {
	return recorder.Params{
		MaxDuration: m.MaxDuration(),
		VAD: vad.Config{
			VoiceThresholdDB:   m.VoiceThresholdDB,
			SilenceThresholdDB: m.SilenceThresholdDB,
			MinSpeechDuration:  secondsToDuration(m.MinSpeechDurationSeconds),
			SilenceDuration:    secondsToDuration(m.SilenceDurationSeconds),
		},
	}
}

// ASRConfig selects the transcription backends and their failover behaviour.
type ASRConfig struct {
	// Provider is the primary transcription backend.
	Provider string `yaml:"provider"`

	// Fallbacks are tried in order when the primary fails or its circuit
	// breaker is open.
	Fallbacks []string `yaml:"fallbacks"`

	// TimeoutSeconds bounds each transcription call.
	TimeoutSeconds float64 `yaml:"timeout_seconds"`

	// Breaker configures the per-backend circuit breakers.
	Breaker BreakerConfig `yaml:"breaker"`

	Whisper  WhisperConfig  `yaml:"whisper"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Deepgram DeepgramConfig `yaml:"deepgram"`
}

// Timeout returns the per-call transcription timeout as a duration.
func (a ASRConfig) Timeout() time.Duration {
	return secondsToDuration(a.TimeoutSeconds)
}

// Backends returns the primary provider followed by the fallbacks.
func (a ASRConfig) Backends() []string {
	out := make([]string, 0, 1+len(a.Fallbacks))
	if a.Provider != "" {
		out = append(out, a.Provider)
	}
	return append(out, a.Fallbacks...)
}

// BreakerConfig tunes the circuit breakers guarding each ASR backend.
type BreakerConfig struct {
	// MaxFailures is the consecutive failure count that opens a breaker.
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeoutSeconds is how long an open breaker waits before probing.
	ResetTimeoutSeconds float64 `yaml:"reset_timeout_seconds"`
}

// ResetTimeout returns the probe delay as a duration.
func (b BreakerConfig) ResetTimeout() time.Duration {
	return secondsToDuration(b.ResetTimeoutSeconds)
}

// WhisperConfig points at a whisper.cpp server.
type WhisperConfig struct {
	// URL is the server base address (e.g. "http://localhost:9000").
	URL string `yaml:"url"`

	// Language hints the transcription language (e.g. "en").
	Language string `yaml:"language"`
}

// OpenAIConfig configures the hosted OpenAI transcription backend.
type OpenAIConfig struct {
	// APIKeyEnv names the environment variable holding the API key. The key
	// itself never appears in the config file.
	APIKeyEnv string `yaml:"api_key_env"`

	Model    string `yaml:"model"`
	Language string `yaml:"language"`
}

// DeepgramConfig configures the Deepgram transcription backend.
type DeepgramConfig struct {
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env"`

	Model    string `yaml:"model"`
	Language string `yaml:"language"`

	// Encoding is the upload encoding: "linear16", "flac", or "opus".
	Encoding string `yaml:"encoding"`
}

// MetricsConfig controls the Prometheus/health HTTP endpoint.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// WordsConfig points at the practice word list.
type WordsConfig struct {
	// Path is the word list YAML file. Empty uses the builtin starter list.
	Path string `yaml:"path"`
}

// Default returns the configuration used when no file is given. Loading a
// file overlays it, so a file only needs the keys it changes.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: LogInfo},
		Audio: AudioConfig{
			SampleRate:       16000,
			Channels:         1,
			SampleIntervalMS: 100,
		},
		Recognition: RecognitionConfig{
			DefaultMode: "standard",
			Modes: map[string]ModeConfig{
				"standard": {
					MaxDurationSeconds:       45,
					SilenceDurationSeconds:   2.5,
					MinSpeechDurationSeconds: 1,
					VoiceThresholdDB:         -40,
					SilenceThresholdDB:       -45,
				},
				// patient gives younger children more time to think
				// mid-spelling before the recording auto-stops.
				"patient": {
					MaxDurationSeconds:       60,
					SilenceDurationSeconds:   5,
					MinSpeechDurationSeconds: 0.5,
					VoiceThresholdDB:         -40,
					SilenceThresholdDB:       -48,
				},
			},
		},
		ASR: ASRConfig{
			Provider:       "whisper",
			TimeoutSeconds: 10,
			Breaker: BreakerConfig{
				MaxFailures:         3,
				ResetTimeoutSeconds: 30,
			},
			Whisper: WhisperConfig{
				URL:      "http://localhost:9000",
				Language: "en",
			},
			OpenAI: OpenAIConfig{
				APIKeyEnv: "OPENAI_API_KEY",
				Model:     "whisper-1",
				Language:  "en",
			},
			Deepgram: DeepgramConfig{
				APIKeyEnv: "DEEPGRAM_API_KEY",
				Model:     "nova-2",
				Language:  "en",
				Encoding:  "linear16",
			},
		},
		Metrics: MetricsConfig{
			Enabled:    true,
			ListenAddr: ":9090",
		},
	}
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
