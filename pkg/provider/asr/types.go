package asr

import (
	"time"

	"github.com/whizbee/spellcast/pkg/audio"
)

// Clip is a finalized recording handed to a Transcriber.
// PCM is 16-bit signed little-endian audio in the given format; providers
// materialize whatever wire encoding their backend wants (WAV, FLAC, Opus)
// from it themselves.
type Clip struct {
	// PCM is the raw audio payload, 16-bit signed little-endian.
	PCM []byte

	// Format describes the sample rate and channel count of PCM.
	Format audio.Format
}

// Duration returns the play time of the clip, or 0 for an invalid format.
func (c Clip) Duration() time.Duration {
	if c.Format.SampleRate <= 0 || c.Format.Channels <= 0 {
		return 0
	}
	samples := len(c.PCM) / 2 / c.Format.Channels
	return time.Duration(samples) * time.Second / time.Duration(c.Format.SampleRate)
}

// Empty reports whether the clip holds no audio.
func (c Clip) Empty() bool { return len(c.PCM) == 0 }
