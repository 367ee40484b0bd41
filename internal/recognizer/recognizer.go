// Package recognizer orchestrates one spelling attempt end to end: record
// from the microphone until the speaker falls silent, transcribe the clip,
// and extract the spelled letters from the transcript.
//
// An attempt moves through Recording → Transcribing → Extracting → Done.
// Nothing after capture can fail the attempt: ASR errors, empty transcripts,
// and unusable extractions all collapse into an empty, rejected outcome that
// the caller treats like a wrong answer. Only capture setup errors surface
// from [Recognizer.Begin].
package recognizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/whizbee/spellcast/internal/observe"
	"github.com/whizbee/spellcast/internal/recorder"
	"github.com/whizbee/spellcast/internal/spelling"
	"github.com/whizbee/spellcast/pkg/provider/asr"
)

// Phase is the stage an [Attempt] is currently in.
type Phase int32

const (
	// PhaseIdle is the zero value; a started attempt never reports it.
	PhaseIdle Phase = iota

	// PhaseRecording means the microphone is live.
	PhaseRecording

	// PhaseTranscribing means the clip is at the speech backend.
	PhaseTranscribing

	// PhaseExtracting means the transcript is being pattern-matched.
	PhaseExtracting

	// PhaseDone means the outcome has been delivered.
	PhaseDone
)

// String returns the human-readable name of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRecording:
		return "recording"
	case PhaseTranscribing:
		return "transcribing"
	case PhaseExtracting:
		return "extracting"
	case PhaseDone:
		return "done"
	default:
		return fmt.Sprintf("unknown(%d)", int32(p))
	}
}

// Mode is one named recognition preset. Presets differ only in these
// primitives; there is a single recognition algorithm.
type Mode struct {
	// Name labels the mode in logs and metrics.
	Name string

	// Record holds the capture limits and speech detection thresholds.
	Record recorder.Params

	// StrictAccept requires the transcript to match the word-letters-word
	// structure (extraction IsValid). The default lenient policy accepts any
	// non-empty spelling and leaves grading to the caller.
	StrictAccept bool
}

// Result is the caller-facing answer of one attempt.
type Result struct {
	// Spelling is the extracted letter sequence, empty when nothing usable
	// was heard.
	Spelling string

	// Accepted reports whether the attempt passed the mode's acceptance
	// policy. An unaccepted attempt is treated like a wrong answer.
	Accepted bool
}

// Outcome is everything known about a finished attempt.
type Outcome struct {
	// Result is the graded answer.
	Result Result

	// Extraction is the full extractor output, for diagnostics and scoring.
	Extraction spelling.Result

	// Transcript is the raw ASR text, empty when transcription failed or
	// was skipped.
	Transcript string

	// Reason tells why the recording ended.
	Reason recorder.FinalizeReason
}

// Recognizer runs spelling attempts against a recorder and a transcription
// backend. Safe for concurrent use; overlapping attempts are serialized by
// the recorder's single-session guarantee.
type Recognizer struct {
	recorder    *recorder.Recorder
	transcriber asr.Transcriber
	extractor   atomic.Pointer[spelling.Extractor]
}

// Option configures a Recognizer.
type Option func(*Recognizer)

// WithExtractor replaces the default extractor, e.g. to enable letter name
// aliases from configuration.
func WithExtractor(e *spelling.Extractor) Option {
	return func(r *Recognizer) {
		r.extractor.Store(e)
	}
}

// New creates a Recognizer.
func New(rec *recorder.Recorder, transcriber asr.Transcriber, opts ...Option) *Recognizer {
	r := &Recognizer{
		recorder:    rec,
		transcriber: transcriber,
	}
	r.extractor.Store(spelling.New())
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetExtractor swaps the transcript extractor, e.g. after a config reload
// toggles letter name aliases. An attempt extracts with whichever extractor
// is current when its transcript comes back. A nil extractor is ignored.
func (r *Recognizer) SetExtractor(e *spelling.Extractor) {
	if e == nil {
		return
	}
	r.extractor.Store(e)
}

// Begin starts a spelling attempt for targetWord and returns immediately
// with a handle. The outcome arrives on [Attempt.Done]. Begin fails when the
// capture device cannot be opened or another attempt is still recording
// ([recorder.ErrAlreadyRecording]).
func (r *Recognizer) Begin(ctx context.Context, targetWord string, mode Mode) (*Attempt, error) {
	word := strings.ToLower(strings.TrimSpace(targetWord))
	if word == "" {
		return nil, errors.New("recognizer: target word is empty")
	}

	session, err := r.recorder.Start(ctx, mode.Record)
	if err != nil {
		return nil, fmt.Errorf("recognizer: starting capture: %w", err)
	}

	a := &Attempt{
		word:      word,
		mode:      mode,
		session:   session,
		startedAt: time.Now(),
		done:      make(chan Outcome, 1),
	}
	a.phase.Store(int32(PhaseRecording))
	observe.DefaultMetrics().AttemptStarted(ctx)

	go r.run(ctx, a)

	slog.Info("spelling attempt started", "word", word, "mode", mode.Name)
	return a, nil
}

// run drives one attempt to completion. It always delivers an outcome.
func (r *Recognizer) run(ctx context.Context, a *Attempt) {
	met := observe.DefaultMetrics()
	defer met.AttemptEnded(ctx)

	rec, err := a.session.Wait(ctx)
	if err != nil {
		// The caller's context died while recording. The session finalizes
		// and releases capture on its own; report a cancelled attempt.
		a.finish(ctx, Outcome{Reason: recorder.ReasonCancelled})
		return
	}

	met.RecordFinalization(ctx, rec.Reason.String())
	outcome := Outcome{Reason: rec.Reason}

	if rec.Empty() {
		slog.Info("attempt heard no usable speech",
			"word", a.word, "reason", rec.Reason.String())
		a.finish(ctx, outcome)
		return
	}

	a.setPhase(PhaseTranscribing)
	asrStart := time.Now()
	transcript, err := r.transcriber.Transcribe(ctx, asr.Clip{PCM: rec.PCM, Format: rec.Format})
	met.RecordASR(ctx, time.Since(asrStart))
	if err != nil {
		met.RecordASRFailure(ctx)
		slog.Warn("transcription failed, treating attempt as no answer",
			"word", a.word, "error", err)
		a.finish(ctx, outcome)
		return
	}
	outcome.Transcript = transcript
	if strings.TrimSpace(transcript) == "" {
		slog.Info("transcription returned no text", "word", a.word)
		a.finish(ctx, outcome)
		return
	}

	a.setPhase(PhaseExtracting)
	ext := r.extractor.Load().Extract(transcript, a.word)
	outcome.Extraction = ext
	outcome.Result = grade(ext, a.mode)
	met.RecordConfidence(ctx, ext.Confidence)

	slog.Info("spelling attempt finished",
		"word", a.word,
		"mode", a.mode.Name,
		"spelling", ext.Spelling,
		"confidence", ext.Confidence,
		"accepted", outcome.Result.Accepted,
		"reason", rec.Reason.String())
	a.finish(ctx, outcome)
}

// grade applies the mode's acceptance policy to an extraction. Lenient mode
// accepts any non-empty spelling; whether it matches the target is scored by
// the caller. Strict mode additionally requires the structural check.
func grade(ext spelling.Result, mode Mode) Result {
	if ext.Spelling == "" || hasCriticalIssue(ext) {
		return Result{}
	}
	res := Result{Spelling: ext.Spelling}
	if mode.StrictAccept && !ext.IsValid {
		return res
	}
	res.Accepted = true
	return res
}

func hasCriticalIssue(ext spelling.Result) bool {
	for _, issue := range ext.Issues {
		if issue == spelling.IssueNoLetters {
			return true
		}
	}
	return false
}

// Attempt is a handle to one in-flight spelling attempt.
type Attempt struct {
	word      string
	mode      Mode
	session   *recorder.Session
	startedAt time.Time

	phase      atomic.Int32
	finishOnce sync.Once
	done       chan Outcome
}

// Word returns the normalized target word of this attempt.
func (a *Attempt) Word() string { return a.word }

// Phase returns the stage the attempt is currently in.
func (a *Attempt) Phase() Phase { return Phase(a.phase.Load()) }

// Done returns a channel that delivers the outcome exactly once and is then
// closed.
func (a *Attempt) Done() <-chan Outcome { return a.done }

// Cancel abandons the attempt. It blocks until the capture device is
// released, so the microphone is free when Cancel returns. If transcription
// is already in flight, the call is left to finish on its own and its result
// is discarded.
func (a *Attempt) Cancel() {
	a.session.Cancel()
	a.finish(context.Background(), Outcome{Reason: recorder.ReasonCancelled})
}

func (a *Attempt) setPhase(p Phase) { a.phase.Store(int32(p)) }

// finish delivers the outcome. Only the first call wins; a late ASR result
// after Cancel is silently dropped here.
func (a *Attempt) finish(ctx context.Context, o Outcome) {
	a.finishOnce.Do(func() {
		a.phase.Store(int32(PhaseDone))
		observe.DefaultMetrics().RecordAttempt(ctx, a.mode.Name, o.Result.Accepted, time.Since(a.startedAt))
		a.done <- o
		close(a.done)
	})
}
