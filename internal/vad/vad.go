// Package vad implements the loudness-driven voice activity detector that
// decides when a spelling attempt has started and when it has finished.
//
// The detector is a four-state machine fed one loudness sample per tick:
//
//	AwaitingSpeech → SpeechConfirmed ⇄ SilenceCounting → Finalized
//
// Speech must stay at or above the voice threshold for a continuous
// MinSpeechDuration before it counts: a door slam is loud but brief, and a
// child's "ummm" that trails off never confirms. Once confirmed, the attempt
// ends only after a continuous SilenceDuration at or below the silence
// threshold; pauses between spelled letters reset the run and keep the
// session alive. Both thresholds are separated by a dead zone so a voice
// hovering near one level does not flicker the machine.
//
// Timing derives from sample timestamps, never from wall-clock reads, so the
// machine is deterministic under test. A Detector is owned by a single
// session loop and is not safe for concurrent use.
package vad

import (
	"errors"
	"fmt"
	"time"

	"github.com/whizbee/spellcast/pkg/audio"
)

// State identifies a detector phase.
type State int

const (
	// StateAwaitingSpeech means no sustained speech has been heard yet.
	StateAwaitingSpeech State = iota

	// StateSpeechConfirmed means the speaker has been talking long enough
	// that the attempt is live.
	StateSpeechConfirmed

	// StateSilenceCounting means the attempt is live but the signal has
	// dropped to silence; the end-of-attempt timer is running.
	StateSilenceCounting

	// StateFinalized means the attempt has ended. Terminal.
	StateFinalized
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateAwaitingSpeech:
		return "awaiting_speech"
	case StateSpeechConfirmed:
		return "speech_confirmed"
	case StateSilenceCounting:
		return "silence_counting"
	case StateFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Config holds the detector thresholds for one recording mode.
type Config struct {
	// VoiceThresholdDB is the loudness (dBFS, ≤ 0) at or above which a
	// sample counts toward confirming speech. Typical: -40.
	VoiceThresholdDB float64

	// SilenceThresholdDB is the loudness at or below which a sample counts
	// toward ending the attempt. Must be strictly below VoiceThresholdDB;
	// the gap between them is a dead zone in which nothing changes.
	// Typical: -45.
	SilenceThresholdDB float64

	// MinSpeechDuration is how long the signal must stay at or above the
	// voice threshold, without a single break, before speech is confirmed.
	MinSpeechDuration time.Duration

	// SilenceDuration is how long the signal must stay at or below the
	// silence threshold, without a single break, before the attempt ends.
	SilenceDuration time.Duration
}

// Validate returns all hard configuration errors joined together.
func (c Config) Validate() error {
	var errs []error
	if c.SilenceThresholdDB >= c.VoiceThresholdDB {
		errs = append(errs, fmt.Errorf("vad: silence threshold (%.1f dB) must be below voice threshold (%.1f dB)",
			c.SilenceThresholdDB, c.VoiceThresholdDB))
	}
	if c.MinSpeechDuration <= 0 {
		errs = append(errs, fmt.Errorf("vad: min speech duration must be positive, got %s", c.MinSpeechDuration))
	}
	if c.SilenceDuration <= 0 {
		errs = append(errs, fmt.Errorf("vad: silence duration must be positive, got %s", c.SilenceDuration))
	}
	return errors.Join(errs...)
}

// Detector is the voice activity state machine. Create one per recording
// session with New and feed it every loudness sample the session takes.
type Detector struct {
	cfg   Config
	state State

	// speechSince marks the start of the current uninterrupted loud run
	// while awaiting speech. Cleared by any sub-threshold sample.
	speechSince    time.Time
	speechSinceSet bool

	// silenceSince marks the start of the current uninterrupted silent run
	// after speech was confirmed.
	silenceSince    time.Time
	silenceSinceSet bool

	// spoke is sticky: set once speech is confirmed, surviving
	// finalization. Distinguishes "said something then stopped" from
	// "never said anything" at the end of a session.
	spoke bool
}

// New creates a Detector in StateAwaitingSpeech. cfg is assumed validated.
func New(cfg Config) *Detector {
	return &Detector{cfg: cfg, state: StateAwaitingSpeech}
}

// Observe advances the machine with one loudness sample and returns the new
// state. Samples must arrive in timestamp order. A loudness of -Inf (the
// meter's no-input sentinel) is below every threshold and behaves as silence.
func (d *Detector) Observe(s audio.LoudnessSample) State {
	switch d.state {
	case StateFinalized:
		// Terminal; ignore everything.

	case StateAwaitingSpeech:
		if s.DB >= d.cfg.VoiceThresholdDB {
			if !d.speechSinceSet {
				d.speechSince = s.At
				d.speechSinceSet = true
			}
			if s.At.Sub(d.speechSince) >= d.cfg.MinSpeechDuration {
				d.state = StateSpeechConfirmed
				d.spoke = true
			}
		} else {
			// Any break discards the run. No partial credit.
			d.speechSinceSet = false
		}

	case StateSpeechConfirmed:
		if s.DB <= d.cfg.SilenceThresholdDB {
			d.state = StateSilenceCounting
			d.silenceSince = s.At
			d.silenceSinceSet = true
		}

	case StateSilenceCounting:
		if s.DB > d.cfg.SilenceThresholdDB {
			d.state = StateSpeechConfirmed
			d.silenceSinceSet = false
		} else if s.At.Sub(d.silenceSince) >= d.cfg.SilenceDuration {
			d.state = StateFinalized
		}
	}
	return d.state
}

// State returns the current state.
func (d *Detector) State() State { return d.state }

// SpeechConfirmed reports whether speech was ever confirmed, even after the
// machine finalized. Sessions that never confirmed speech are treated as
// empty attempts.
func (d *Detector) SpeechConfirmed() bool { return d.spoke }

// SilenceCountingSince returns the start of the running silence window, if
// one is active.
func (d *Detector) SilenceCountingSince() (time.Time, bool) {
	if !d.silenceSinceSet || d.state != StateSilenceCounting {
		return time.Time{}, false
	}
	return d.silenceSince, true
}

// Reset returns the detector to StateAwaitingSpeech and clears all
// accumulated state, including the sticky speech flag.
func (d *Detector) Reset() {
	d.state = StateAwaitingSpeech
	d.speechSinceSet = false
	d.silenceSinceSet = false
	d.spoke = false
}
