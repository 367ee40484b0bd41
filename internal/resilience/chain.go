package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/whizbee/spellcast/pkg/provider/asr"
)

// ErrAllFailed is returned when every backend in a [Chain] fails or has an
// open circuit breaker.
var ErrAllFailed = errors.New("all transcription backends failed")

const defaultCallTimeout = 10 * time.Second

// ChainConfig configures a [Chain].
type ChainConfig struct {
	// CallTimeout bounds each backend attempt, so a hung backend costs at
	// most this long before the next one is tried. Default: 10s.
	CallTimeout time.Duration

	// Breaker is the per-backend circuit breaker configuration. Name is
	// overridden with the backend's name for each entry.
	Breaker BreakerConfig
}

type chainEntry struct {
	name    string
	backend asr.Transcriber
	breaker *Breaker
}

// Chain is an [asr.Transcriber] that fails over across multiple backends in
// registration order. Each backend has its own [Breaker], so a backend that
// keeps failing is skipped without paying its timeout on every attempt.
//
// Register all backends before the first Transcribe call; AddFallback is not
// synchronized against in-flight calls.
type Chain struct {
	timeout    time.Duration
	breakerCfg BreakerConfig
	entries    []chainEntry
}

var _ asr.Transcriber = (*Chain)(nil)

// NewChain creates a [Chain] with primary as the preferred backend.
func NewChain(primaryName string, primary asr.Transcriber, cfg ChainConfig) *Chain {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	c := &Chain{
		timeout:    cfg.CallTimeout,
		breakerCfg: cfg.Breaker,
	}
	c.add(primaryName, primary)
	return c
}

// AddFallback registers an additional backend. Fallbacks are tried in the
// order they are added, after the primary.
func (c *Chain) AddFallback(name string, backend asr.Transcriber) {
	c.add(name, backend)
}

func (c *Chain) add(name string, backend asr.Transcriber) {
	bcfg := c.breakerCfg
	bcfg.Name = name
	c.entries = append(c.entries, chainEntry{
		name:    name,
		backend: backend,
		breaker: NewBreaker(bcfg),
	})
}

// Transcribe runs the clip through the first healthy backend. Backends with
// an open breaker are skipped; other failures fall through to the next
// entry. An empty clip is rejected up front: it would fail identically
// everywhere, so it neither fails over nor counts against any breaker.
func (c *Chain) Transcribe(ctx context.Context, clip asr.Clip) (string, error) {
	if clip.Empty() {
		return "", asr.ErrEmptyClip
	}

	var lastErr error
	for i := range c.entries {
		if ctx.Err() != nil {
			// The caller has gone away; trying more backends only burns
			// breaker state.
			return "", fmt.Errorf("transcription aborted: %w", ctx.Err())
		}

		entry := &c.entries[i]
		var text string
		err := entry.breaker.Execute(func() error {
			callCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			var callErr error
			text, callErr = entry.backend.Transcribe(callCtx, clip)
			return callErr
		})
		if err == nil {
			return text, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping transcription backend",
				"backend", entry.name, "reason", "circuit open")
		} else {
			slog.Warn("transcription backend failed, trying next",
				"backend", entry.name, "error", err)
		}
	}
	return "", fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}

// Healthy reports whether at least one backend currently has a breaker that
// would admit a call.
func (c *Chain) Healthy() bool {
	for i := range c.entries {
		if c.entries[i].breaker.State() != StateOpen {
			return true
		}
	}
	return false
}

// Backends returns the registered backend names in failover order.
func (c *Chain) Backends() []string {
	names := make([]string, len(c.entries))
	for i, e := range c.entries {
		names[i] = e.name
	}
	return names
}
