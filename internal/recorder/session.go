package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/whizbee/spellcast/internal/vad"
	"github.com/whizbee/spellcast/pkg/audio"
)

// FinalizeReason tells why a recording session ended.
type FinalizeReason int

const (
	// ReasonSilence means the detector heard sustained silence after speech.
	ReasonSilence FinalizeReason = iota

	// ReasonTimeout means the hard duration cap expired.
	ReasonTimeout

	// ReasonManual means the caller stopped the session.
	ReasonManual

	// ReasonCancelled means the caller cancelled; the buffer was discarded.
	ReasonCancelled

	// ReasonDrained means the input ran out of audio (file sources).
	ReasonDrained
)

// String returns the reason name for logging.
func (r FinalizeReason) String() string {
	switch r {
	case ReasonSilence:
		return "silence"
	case ReasonTimeout:
		return "timeout"
	case ReasonManual:
		return "manual"
	case ReasonCancelled:
		return "cancelled"
	case ReasonDrained:
		return "drained"
	default:
		return fmt.Sprintf("unknown(%d)", int(r))
	}
}

// Recording is the materialized outcome of one session.
type Recording struct {
	// PCM is the accumulated audio, 16-bit signed little-endian in Format.
	// Nil for cancelled sessions.
	PCM []byte

	// Format describes PCM.
	Format audio.Format

	// Duration is the audio time captured, kept even when PCM was discarded.
	Duration time.Duration

	// Reason tells why the session finalized.
	Reason FinalizeReason

	// SpeechDetected reports whether the detector ever confirmed speech.
	SpeechDetected bool
}

// Empty reports whether the recording should be treated as a no-answer
// attempt: nothing captured, or no sustained speech was ever heard. Empty
// recordings are never forwarded to transcription.
func (rec Recording) Empty() bool {
	return len(rec.PCM) == 0 || !rec.SpeechDetected
}

// Session is one live recording attempt, created by Recorder.Start.
// All exported methods are safe for concurrent use.
type Session struct {
	stream      audio.Stream
	frames      <-chan audio.Frame
	meter       *audio.Meter
	det         *vad.Detector
	params      Params
	format      audio.Format
	sampleEvery time.Duration
	startedAt   time.Time

	stop     chan FinalizeReason
	stopOnce sync.Once

	// done is closed after the recording is materialized and capture is
	// released. rec must only be read after done.
	done chan struct{}
	rec  Recording
}

// run is the session goroutine: the only place frames, the meter, and the
// detector are touched.
func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	timeout := time.NewTimer(s.params.MaxDuration)
	defer timeout.Stop()

	var (
		pcm        []byte
		audioTime  time.Duration
		nextSample = s.sampleEvery
		reason     FinalizeReason
	)

loop:
	for {
		select {
		case <-ctx.Done():
			reason = ReasonCancelled
			break loop

		case r := <-s.stop:
			reason = r
			break loop

		case <-timeout.C:
			reason = ReasonTimeout
			break loop

		case f, ok := <-s.frames:
			if !ok {
				reason = ReasonDrained
				break loop
			}
			pcm = append(pcm, f.Data...)
			s.meter.Observe(f)
			audioTime += f.Duration()

			// Evaluate the detector at every elapsed sampling boundary.
			for audioTime >= nextSample {
				sample := s.meter.SampleLoudness(s.startedAt.Add(nextSample))
				nextSample += s.sampleEvery
				if s.det.Observe(sample) == vad.StateFinalized {
					reason = ReasonSilence
					break loop
				}
			}
			// Audio-time cap, for sources running faster than real time.
			if audioTime >= s.params.MaxDuration {
				reason = ReasonTimeout
				break loop
			}
		}
	}

	s.teardown()

	s.rec = Recording{
		Format:         s.format,
		Duration:       audioTime,
		Reason:         reason,
		SpeechDetected: s.det.SpeechConfirmed(),
	}
	if reason != ReasonCancelled {
		s.rec.PCM = pcm
	}

	slog.Info("recording finalized",
		"reason", reason,
		"duration", audioTime,
		"speech_detected", s.rec.SpeechDetected,
		"bytes", len(s.rec.PCM),
	)
}

// teardown releases capture in reverse acquisition order: close the stream,
// then drain the conversion pump so its goroutine exits.
func (s *Session) teardown() {
	if err := s.stream.Close(); err != nil {
		slog.Warn("recording: stream close error", "err", err)
	}
	audio.Drain(s.frames)
}

// Wait blocks until the session finalizes and returns the recording.
func (s *Session) Wait(ctx context.Context) (Recording, error) {
	select {
	case <-s.done:
		return s.rec, nil
	case <-ctx.Done():
		return Recording{}, ctx.Err()
	}
}

// Done returns a channel closed once the session has finalized and released
// capture.
func (s *Session) Done() <-chan struct{} { return s.done }

// Stop ends the session manually, keeping the buffer, and blocks until
// capture is released. Read the recording with Wait.
func (s *Session) Stop() {
	s.request(ReasonManual)
	<-s.done
}

// Cancel ends the session, discards the buffer, and blocks until capture is
// released.
func (s *Session) Cancel() {
	s.request(ReasonCancelled)
	<-s.done
}

func (s *Session) request(reason FinalizeReason) {
	s.stopOnce.Do(func() { s.stop <- reason })
}

func (s *Session) finished() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
