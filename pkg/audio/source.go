package audio

import "context"

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// DefaultFormat is the pipeline-native capture format: 16 kHz mono, which is
// what every supported ASR backend consumes directly.
var DefaultFormat = Format{SampleRate: 16000, Channels: 1}

// Source provides live audio input. Implementations wrap a microphone
// (pkg/audio/malgo), a WAV file (pkg/audio/wavfile), or a scripted test double
// (pkg/audio/mock).
type Source interface {
	// Open begins capturing in the requested format and returns the live
	// stream. Implementations that cannot honour the exact format may deliver
	// frames in their native format; callers convert via [ConvertStream].
	// A device that cannot be acquired returns an error wrapping
	// [ErrDeviceUnavailable].
	Open(ctx context.Context, format Format) (Stream, error)
}

// Stream is one live capture session. The frame channel is closed when the
// stream ends, either because Close was called or the underlying input was
// exhausted (file sources) or lost.
type Stream interface {
	// Frames returns the channel of captured frames. The channel is owned by
	// the stream and closed on termination.
	Frames() <-chan Frame

	// Close releases the capture resource. It is safe to call more than once.
	// After Close returns no further frames are delivered.
	Close() error
}
