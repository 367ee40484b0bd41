// Package audio provides the frame types, capture abstractions, and level
// metering shared by the spellcast recording pipeline.
package audio

import (
	"errors"
	"time"
)

// ErrDeviceUnavailable indicates the capture device could not be opened,
// typically because microphone permission was denied or the device vanished.
// It is the only fatal error the recording pipeline surfaces to callers.
var ErrDeviceUnavailable = errors.New("audio: capture device unavailable")

// Frame represents a single chunk of captured audio flowing through the
// pipeline. Frames are the atomic unit of transport: produced by capture
// sources, metered for loudness, and accumulated into the recording buffer.
type Frame struct {
	// PCM audio data, little-endian int16 samples.
	Data []byte

	// SampleRate in Hz (e.g., 16000 for the ASR pipeline).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo capture devices.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the play time covered by the frame's samples.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(f.Data) / 2 / f.Channels
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}

// LoudnessSample is one timestamped loudness measurement on a decibel scale.
// Samples are ephemeral: produced every sampling tick and consumed immediately
// by the voice activity detector, never persisted.
type LoudnessSample struct {
	// DB is the measured loudness. Real signal lands in [FloorDB, 0];
	// -Inf is the sentinel for "no input available", see [Meter.SampleLoudness].
	DB float64

	// At is the wall-clock instant the sample was taken.
	At time.Time
}
