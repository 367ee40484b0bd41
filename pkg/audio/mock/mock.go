// Package mock provides in-memory mock implementations of the [audio.Source]
// and [audio.Stream] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported
// fields that the test can set to control return values.
//
// Typical usage:
//
//	stream := mock.NewStream(16)
//	stream.Push(mock.Tone(audio.DefaultFormat, 100*time.Millisecond, 8000))
//	src := &mock.Source{OpenResult: stream}
//	got, err := src.Open(ctx, audio.DefaultFormat)
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/whizbee/spellcast/pkg/audio"
)

// ─── Source ───────────────────────────────────────────────────────────────────

// Source is a mock implementation of [audio.Source].
// Set the exported Result fields before use; inspect the Call* fields after.
type Source struct {
	mu sync.Mutex

	// OpenResult is returned by [Source.Open] when OpenError is nil.
	// Defaults to a fresh unscripted stream if left nil.
	OpenResult *Stream

	// OpenError is returned by [Source.Open]. Takes precedence over OpenResult.
	OpenError error

	// CallCountOpen records how many times Open was called.
	CallCountOpen int

	// OpenFormats records the format passed to each Open call, in order.
	OpenFormats []audio.Format
}

var _ audio.Source = (*Source)(nil)

// Open implements [audio.Source]. Records the call and returns
// OpenResult / OpenError.
func (s *Source) Open(_ context.Context, format audio.Format) (audio.Stream, error) {
	s.mu.Lock()
	s.CallCountOpen++
	s.OpenFormats = append(s.OpenFormats, format)
	result, err := s.OpenResult, s.OpenError
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if result == nil {
		result = NewStream(0)
	}
	return result, nil
}

// ─── Stream ───────────────────────────────────────────────────────────────────

// Stream is a scripted mock implementation of [audio.Stream]. Tests feed it
// frames via [Stream.Push] and finish the script with [Stream.End]; Close
// also ends the script and counts its invocations.
type Stream struct {
	frames chan audio.Frame

	mu sync.Mutex

	// CloseError is returned by [Stream.Close].
	CloseError error

	// CallCountClose records how many times Close was called.
	CallCountClose int

	endOnce sync.Once
}

var _ audio.Stream = (*Stream)(nil)

// NewStream creates a scripted stream whose frame channel holds up to buffer
// frames before Push blocks.
func NewStream(buffer int) *Stream {
	return &Stream{frames: make(chan audio.Frame, buffer)}
}

// Push queues a frame for delivery. It must not be called after End or Close.
func (s *Stream) Push(frame audio.Frame) {
	s.frames <- frame
}

// End closes the frame channel, signalling the end of input the way a file
// source does on EOF. Safe to call more than once.
func (s *Stream) End() {
	s.endOnce.Do(func() { close(s.frames) })
}

// Frames implements [audio.Stream].
func (s *Stream) Frames() <-chan audio.Frame {
	return s.frames
}

// Close implements [audio.Stream]. It ends the script and records the call.
func (s *Stream) Close() error {
	s.mu.Lock()
	s.CallCountClose++
	err := s.CloseError
	s.mu.Unlock()

	s.End()
	return err
}

// Closed reports whether Close has been called at least once.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCountClose > 0
}

// ─── Frame scripting helpers ──────────────────────────────────────────────────

// Tone builds a frame of constant-amplitude samples covering d of audio in the
// given format. amp is the raw int16 sample value; pick it against the
// full-scale dB math (e.g. 3277 ≈ -20 dB, 33 ≈ -60 dB).
func Tone(format audio.Format, d time.Duration, amp int16) audio.Frame {
	samples := int(int64(format.SampleRate) * int64(d) / int64(time.Second))
	if format.Channels > 1 {
		samples *= format.Channels
	}
	data := make([]byte, samples*2)
	for i := range samples {
		data[i*2] = byte(amp)
		data[i*2+1] = byte(amp >> 8)
	}
	return audio.Frame{
		Data:       data,
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
	}
}

// Silence builds a frame of digital silence covering d of audio.
func Silence(format audio.Format, d time.Duration) audio.Frame {
	return Tone(format, d, 0)
}
