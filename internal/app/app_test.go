package app_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/whizbee/spellcast/internal/app"
	"github.com/whizbee/spellcast/internal/config"
	"github.com/whizbee/spellcast/internal/words"
	"github.com/whizbee/spellcast/pkg/audio"
	"github.com/whizbee/spellcast/pkg/audio/mock"
	asrmock "github.com/whizbee/spellcast/pkg/provider/asr/mock"
)

// testConfig returns defaults with the HTTP endpoint disabled and the
// standard mode retuned so scripted audio finalizes quickly.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Metrics.Enabled = false
	cfg.Recognition.Modes["standard"] = config.ModeConfig{
		MaxDurationSeconds:       10,
		SilenceDurationSeconds:   0.2,
		MinSpeechDurationSeconds: 0.1,
		VoiceThresholdDB:         -40,
		SilenceThresholdDB:       -45,
	}
	return cfg
}

// spokenStream scripts audio that speaks for 300ms and then falls silent
// long enough to auto-stop the recording.
func spokenStream() *mock.Stream {
	stream := mock.NewStream(256)
	const frame = 20 * time.Millisecond
	for elapsed := time.Duration(0); elapsed < 300*time.Millisecond; elapsed += frame {
		stream.Push(mock.Tone(audio.DefaultFormat, frame, 8000))
	}
	for elapsed := time.Duration(0); elapsed < 300*time.Millisecond; elapsed += frame {
		stream.Push(mock.Tone(audio.DefaultFormat, frame, 0))
	}
	return stream
}

// testProviders wires a scripted capture stream to a canned transcript.
func testProviders(transcript string) *app.Providers {
	return &app.Providers{
		Transcriber: &asrmock.Transcriber{TranscribeResult: transcript},
		Source:      &mock.Source{OpenResult: spokenStream()},
	}
}

func oneWord(word, hint string) *words.List {
	return &words.List{Name: "test", Words: []words.Entry{{Word: word, Hint: hint}}}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	providers := func() *app.Providers {
		return &app.Providers{
			Transcriber: &asrmock.Transcriber{},
			Source:      &mock.Source{},
		}
	}

	tests := []struct {
		name      string
		cfg       *config.Config
		providers *app.Providers
		opts      []app.Option
		wantErr   string
	}{
		{
			name:      "nil config",
			cfg:       nil,
			providers: providers(),
			wantErr:   "nil config",
		},
		{
			name:      "nil providers",
			cfg:       testConfig(),
			providers: nil,
			wantErr:   "no transcriber",
		},
		{
			name:      "missing transcriber",
			cfg:       testConfig(),
			providers: &app.Providers{Source: &mock.Source{}},
			wantErr:   "no transcriber",
		},
		{
			name:      "missing capture source",
			cfg:       testConfig(),
			providers: &app.Providers{Transcriber: &asrmock.Transcriber{}},
			wantErr:   "no capture source",
		},
		{
			name:      "unknown pinned mode",
			cfg:       testConfig(),
			providers: providers(),
			opts:      []app.Option{app.WithMode("whirlwind")},
			wantErr:   `"whirlwind" is not configured`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := app.New(tt.cfg, tt.providers, tt.opts...)
			if err == nil {
				t.Fatal("New() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("New() error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestApp_PassWithCorrectSpelling(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	a, err := app.New(testConfig(), testProviders("cat c a t cat"),
		app.WithWords(oneWord("cat", "A small pet that says meow.")),
		app.WithInput(strings.NewReader("\n")),
		app.WithOutput(out),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	for _, want := range []string{
		"Word 1 of 1: CAT",
		"Hint: A small pet that says meow.",
		`Correct! c-a-t spells "cat".`,
		"Practice over: 1 of 1 spelled correctly.",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}

	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error: %v", err)
	}
}

func TestApp_PassWithWrongSpelling(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	a, err := app.New(testConfig(), testProviders("dog d o g dog"),
		app.WithWords(oneWord("cat", "")),
		app.WithInput(strings.NewReader("\n")),
		app.WithOutput(out),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	for _, want := range []string{
		`Not quite: I heard d-o-g, but "cat" is spelled c-a-t.`,
		"Practice over: 0 of 1 spelled correctly.",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestApp_SkipAndQuit(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	a, err := app.New(testConfig(), testProviders("unused"),
		app.WithWords(&words.List{Name: "test", Words: []words.Entry{
			{Word: "cat"}, {Word: "dog"}, {Word: "sun"},
		}}),
		app.WithInput(strings.NewReader("s\nq\n")),
		app.WithOutput(out),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	want := "Practice over: 0 of 0 spelled correctly (1 skipped)."
	if !strings.Contains(out.String(), want) {
		t.Errorf("output missing %q:\n%s", want, out.String())
	}
}

func TestApp_MicrophoneUnavailable(t *testing.T) {
	t.Parallel()

	providers := &app.Providers{
		Transcriber: &asrmock.Transcriber{},
		Source:      &mock.Source{OpenError: audio.ErrDeviceUnavailable},
	}
	a, err := app.New(testConfig(), providers,
		app.WithWords(oneWord("cat", "")),
		app.WithInput(strings.NewReader("\n")),
		app.WithOutput(io.Discard),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	err = a.Run(context.Background())
	if !errors.Is(err, audio.ErrDeviceUnavailable) {
		t.Fatalf("Run() error = %v, want audio.ErrDeviceUnavailable", err)
	}
	if !strings.Contains(err.Error(), "microphone unavailable") {
		t.Errorf("Run() error = %q, want a microphone message", err)
	}
}

func TestApp_RunCancelled(t *testing.T) {
	t.Parallel()

	// A pipe never delivers a line, so the run blocks waiting for the
	// player until the context ends it.
	pr, pw := io.Pipe()
	defer pw.Close()

	a, err := app.New(testConfig(), testProviders("unused"),
		app.WithWords(oneWord("cat", "")),
		app.WithInput(pr),
		app.WithOutput(io.Discard),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Run(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return within 5s of cancellation")
	}
}

func TestApp_ShutdownIdempotent(t *testing.T) {
	t.Parallel()

	a, err := app.New(testConfig(), testProviders("unused"),
		app.WithWords(oneWord("cat", "")),
		app.WithOutput(io.Discard),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("first Shutdown() error: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown() error: %v", err)
	}
}
