// Package recorder owns audio capture for one spelling attempt at a time.
//
// A Recorder hands out at most one live Session. The session pumps frames
// from its audio.Source, accumulates them into a single PCM buffer, and
// evaluates the voice activity detector once per 100 ms of captured audio
// until something ends the attempt: sustained silence after speech, the hard
// duration cap, a manual stop, or cancellation. Whatever the exit path, the
// capture stream is released before the session reports done: the mic
// indicator must go dark the moment the attempt is over.
//
// Loudness sampling is driven by accumulated audio time rather than a
// wall-clock ticker, so a file source replaying faster than real time (and
// every test) finalizes deterministically at the same audio positions a live
// microphone would. Only the hard timeout watches the wall clock; it is the
// guard for a capture device that stops delivering frames entirely.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/whizbee/spellcast/internal/vad"
	"github.com/whizbee/spellcast/pkg/audio"
)

// defaultSampleInterval is the loudness sampling cadence in audio time.
const defaultSampleInterval = 100 * time.Millisecond

// ErrAlreadyRecording is returned by Start while a previous session has not
// finalized yet.
var ErrAlreadyRecording = errors.New("recorder: a recording session is already active")

// Params bundles the per-attempt recording knobs. Every recognition mode is a
// different Params value over the same machinery.
type Params struct {
	// MaxDuration is the hard cap on one attempt. When it expires the
	// session finalizes regardless of what the detector thinks.
	MaxDuration time.Duration

	// VAD holds the thresholds driving automatic finalization.
	VAD vad.Config
}

// Validate returns all hard configuration errors joined together.
func (p Params) Validate() error {
	var errs []error
	if p.MaxDuration <= 0 {
		errs = append(errs, fmt.Errorf("recorder: max duration must be positive, got %s", p.MaxDuration))
	}
	if err := p.VAD.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Recorder creates recording sessions over one audio source, at most one
// live at a time. All exported methods are safe for concurrent use.
type Recorder struct {
	source      audio.Source
	format      audio.Format
	sampleEvery time.Duration

	mu      sync.Mutex
	current *Session
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithFormat overrides the pipeline capture format. Defaults to
// audio.DefaultFormat (16 kHz mono).
func WithFormat(f audio.Format) Option {
	return func(r *Recorder) {
		r.format = f
	}
}

// WithSampleInterval overrides the loudness sampling cadence (audio time).
// Defaults to 100 ms; detector durations shorter than the cadence cannot be
// resolved.
func WithSampleInterval(d time.Duration) Option {
	return func(r *Recorder) {
		r.sampleEvery = d
	}
}

// New creates a Recorder capturing from source.
func New(source audio.Source, opts ...Option) *Recorder {
	r := &Recorder{
		source:      source,
		format:      audio.DefaultFormat,
		sampleEvery: defaultSampleInterval,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Start opens capture and begins a new session. It fails with
// ErrAlreadyRecording while a previous session is still live, and with an
// error wrapping audio.ErrDeviceUnavailable when the capture device cannot
// be acquired, the one failure the caller must treat as fatal.
//
// Cancelling ctx cancels the session (buffer discarded).
func (r *Recorder) Start(ctx context.Context, params Params) (*Session, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("recorder: invalid params: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil && !r.current.finished() {
		return nil, ErrAlreadyRecording
	}

	stream, err := r.source.Open(ctx, r.format)
	if err != nil {
		return nil, fmt.Errorf("recorder: open capture: %w", err)
	}

	s := &Session{
		stream:      stream,
		frames:      audio.ConvertStream(stream.Frames(), r.format),
		meter:       &audio.Meter{},
		det:         vad.New(params.VAD),
		params:      params,
		format:      r.format,
		sampleEvery: r.sampleEvery,
		startedAt:   time.Now(),
		stop:        make(chan FinalizeReason, 1),
		done:        make(chan struct{}),
	}
	r.current = s
	go s.run(ctx)

	slog.Debug("recording session started",
		"max_duration", params.MaxDuration,
		"voice_threshold_db", params.VAD.VoiceThresholdDB,
		"silence_threshold_db", params.VAD.SilenceThresholdDB,
	)
	return s, nil
}
