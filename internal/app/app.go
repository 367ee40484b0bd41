// Package app assembles the spelling practice application: word list, audio
// capture, recognition pipeline, config reload, and the metrics and health
// endpoint.
//
// main builds the external collaborators (capture source, transcription
// chain) and hands them over as a [Providers] value; [New] wires everything
// else from configuration. [App.Run] drives the practice loop and the HTTP
// endpoint until the pass finishes or the context is cancelled, and
// [App.Shutdown] releases what New acquired.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/whizbee/spellcast/internal/config"
	"github.com/whizbee/spellcast/internal/health"
	"github.com/whizbee/spellcast/internal/observe"
	"github.com/whizbee/spellcast/internal/recognizer"
	"github.com/whizbee/spellcast/internal/recorder"
	"github.com/whizbee/spellcast/internal/spelling"
	"github.com/whizbee/spellcast/internal/words"
	"github.com/whizbee/spellcast/pkg/audio"
	"github.com/whizbee/spellcast/pkg/provider/asr"
)

// similarityNoteMin is the Jaro-Winkler score below which a fuzzy anchor
// match is flagged in the extraction issues.
const similarityNoteMin = 0.8

// httpDrainTimeout bounds the graceful drain of the metrics endpoint once
// the run context ends.
const httpDrainTimeout = 5 * time.Second

// Providers holds the external collaborators the application consumes.
// main builds them from configuration; tests inject doubles.
type Providers struct {
	// Transcriber turns finalized recordings into text. In production this
	// is a resilience.Chain over the configured backends.
	Transcriber asr.Transcriber

	// Source delivers capture audio: a microphone, a WAV file, or a mock.
	Source audio.Source
}

// App is the assembled application.
type App struct {
	cfg       *config.Config
	providers *Providers

	practice *Practice
	server   *http.Server
	watcher  *config.Watcher

	out        io.Writer
	in         io.Reader
	logLevel   *slog.LevelVar
	watchPath  string
	pinnedMode string
	wordList   *words.List

	// closers run in reverse order during Shutdown.
	closers  []func(context.Context) error
	stopOnce sync.Once
}

// Option configures optional [App] dependencies.
type Option func(*App)

// WithOutput redirects player-facing practice output. Defaults to os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(a *App) {
		a.out = w
	}
}

// WithInput replaces the keyboard input stream. Defaults to os.Stdin.
func WithInput(r io.Reader) Option {
	return func(a *App) {
		a.in = r
	}
}

// WithLogLevel hands the app the level var behind the process logger, so a
// config reload can adjust verbosity live.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) {
		a.logLevel = v
	}
}

// WithConfigReload watches the config file at path and applies safe changes
// between attempts.
func WithConfigReload(path string) Option {
	return func(a *App) {
		a.watchPath = path
	}
}

// WithMode pins the recognition mode, overriding the configured default.
// A pinned mode ignores default-mode changes from config reloads but still
// picks up retuned thresholds.
func WithMode(name string) Option {
	return func(a *App) {
		a.pinnedMode = name
	}
}

// WithWords overrides the configured word list.
func WithWords(l *words.List) Option {
	return func(a *App) {
		a.wordList = l
	}
}

// New assembles the application from configuration and providers.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	if providers == nil || providers.Transcriber == nil {
		return nil, errors.New("app: no transcriber provided")
	}
	if providers.Source == nil {
		return nil, errors.New("app: no capture source provided")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
		out:       os.Stdout,
		in:        os.Stdin,
	}
	for _, opt := range opts {
		opt(a)
	}

	// ── 1. Word list ──────────────────────────────────────────────────────────
	list, err := a.initWords()
	if err != nil {
		return nil, fmt.Errorf("app: init words: %w", err)
	}

	// ── 2. Recognition pipeline ───────────────────────────────────────────────
	modeName := cfg.Recognition.DefaultMode
	pinned := false
	if a.pinnedMode != "" {
		modeName = a.pinnedMode
		pinned = true
	}
	mode, ok := modeFromConfig(cfg, modeName)
	if !ok {
		return nil, fmt.Errorf("app: recognition mode %q is not configured", modeName)
	}

	rec := recorder.New(providers.Source,
		recorder.WithFormat(cfg.Audio.Format()),
		recorder.WithSampleInterval(cfg.Audio.SampleInterval()),
	)
	rcg := recognizer.New(rec, providers.Transcriber,
		recognizer.WithExtractor(extractorFromConfig(cfg)))

	// ── 3. Practice loop ──────────────────────────────────────────────────────
	a.practice = NewPractice(PracticeConfig{
		Recognizer: rcg,
		List:       list,
		Mode:       mode,
		ModePinned: pinned,
		Output:     a.out,
		Input:      a.in,
	})

	// ── 4. Metrics and health endpoint ────────────────────────────────────────
	if cfg.Metrics.Enabled {
		a.server = a.buildServer()
	}

	// ── 5. Config reload ──────────────────────────────────────────────────────
	if a.watchPath != "" {
		w, err := config.NewWatcher(a.watchPath, a.onConfigChange)
		if err != nil {
			return nil, fmt.Errorf("app: init config watcher: %w", err)
		}
		a.watcher = w
		a.closers = append(a.closers, func(context.Context) error {
			w.Stop()
			return nil
		})
	}

	return a, nil
}

// initWords resolves the word list the practice pass plays.
func (a *App) initWords() (*words.List, error) {
	if a.wordList != nil {
		return a.wordList, nil
	}
	list, err := loadWordList(a.cfg)
	if err != nil {
		return nil, err
	}
	if a.cfg.Words.Path == "" {
		slog.Info("using built-in practice words", "count", list.Len())
	} else {
		slog.Info("practice words loaded",
			"list", list.Name, "count", list.Len(), "path", a.cfg.Words.Path)
	}
	return list, nil
}

// buildServer wires the health checkers and the Prometheus scrape endpoint
// into one instrumented HTTP server.
func (a *App) buildServer() *http.Server {
	checkers := []health.Checker{
		health.Bool("words", a.practice.WordsLoaded, "no practice words loaded"),
	}
	if hc, ok := a.providers.Transcriber.(interface{ Healthy() bool }); ok {
		checkers = append(checkers,
			health.Bool("asr", hc.Healthy, "all transcription backends have open circuits"))
	}

	mux := http.NewServeMux()
	health.New(checkers...).Register(mux)
	mux.Handle("GET /metrics", observe.MetricsHandler())

	return &http.Server{
		Addr:              a.cfg.Metrics.ListenAddr,
		Handler:           observe.Middleware(observe.DefaultMetrics())(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Run drives the application until the practice pass completes or ctx is
// cancelled. The HTTP endpoint, when enabled, lives exactly as long as the
// practice loop.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// Finishing the pass ends the whole run group.
		defer cancel()
		return a.practice.Run(ctx)
	})

	if a.server != nil {
		g.Go(func() error {
			return a.serveHTTP(ctx)
		})
	}

	return g.Wait()
}

// serveHTTP runs the metrics and health endpoint and drains it when ctx
// ends.
func (a *App) serveHTTP(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.ListenAndServe()
	}()
	slog.Info("metrics and health endpoint up", "addr", a.server.Addr)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), httpDrainTimeout)
	defer cancel()
	if err := a.server.Shutdown(drainCtx); err != nil {
		slog.Warn("http server drain failed, closing", "error", err)
		_ = a.server.Close()
	}
	return nil
}

// onConfigChange receives validated reloads from the watcher. Log level
// changes apply immediately; everything else waits for the gap between
// attempts, so a live recording is never retuned underneath.
func (a *App) onConfigChange(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.Empty() {
		slog.Debug("config reloaded with no applicable changes")
		return
	}
	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	a.practice.QueueReload(new, d)
}

// Shutdown releases everything New acquired, newest first. Only the first
// call does the work.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		for i := len(a.closers) - 1; i >= 0; i-- {
			if cerr := ctx.Err(); cerr != nil {
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				err = cerr
				return
			}
			if cerr := a.closers[i](ctx); cerr != nil {
				slog.Warn("closer failed during shutdown", "error", cerr)
			}
		}
	})
	return err
}

// modeFromConfig materializes a named recognition mode from configuration.
func modeFromConfig(cfg *config.Config, name string) (recognizer.Mode, bool) {
	mc, ok := cfg.Recognition.Modes[name]
	if !ok {
		return recognizer.Mode{}, false
	}
	return recognizer.Mode{
		Name:         name,
		Record:       mc.Params(),
		StrictAccept: mc.StrictAccept,
	}, true
}

// extractorFromConfig builds the transcript extractor for the current
// recognition settings.
func extractorFromConfig(cfg *config.Config) *spelling.Extractor {
	opts := []spelling.Option{spelling.WithSimilarityNotes(similarityNoteMin)}
	if cfg.Recognition.LetterNameAliases {
		opts = append(opts, spelling.WithLetterNameAliases())
	}
	return spelling.New(opts...)
}

// loadWordList resolves the configured practice list, falling back to the
// built-in starter words when no path is set.
func loadWordList(cfg *config.Config) (*words.List, error) {
	if cfg.Words.Path == "" {
		return words.Builtin(), nil
	}
	return words.Load(cfg.Words.Path)
}
