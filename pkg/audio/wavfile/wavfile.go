// Package wavfile provides an [audio.Source] that replays a RIFF/WAV file as
// a live capture stream. It exists for development (exercising the recognizer
// without a microphone) and for deterministic integration tests.
package wavfile

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/whizbee/spellcast/pkg/audio"
	"github.com/whizbee/spellcast/pkg/audio/encode"
)

// frameMs is the chunk size frames are delivered in.
const frameMs = 20

// Source replays a WAV file. Frames are delivered in the file's native format;
// run the stream through [audio.ConvertStream] to reach the pipeline format.
type Source struct {
	path     string
	realtime bool
}

var _ audio.Source = (*Source)(nil)

// Option configures a [Source].
type Option func(*Source)

// WithRealtimePacing makes the stream deliver frames at play speed instead of
// as fast as the consumer reads. Use it when the consumer's timing behaviour
// (silence detection, timeouts) is under test or on display.
func WithRealtimePacing() Option {
	return func(s *Source) {
		s.realtime = true
	}
}

// New creates a Source for the WAV file at path. The file is read on Open,
// not here, so a missing file surfaces exactly like a missing device.
func New(path string, opts ...Option) *Source {
	s := &Source{path: path}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Open implements [audio.Source]. The requested format is ignored; the file's
// own format is delivered.
func (s *Source) Open(ctx context.Context, _ audio.Format) (audio.Stream, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("wavfile: %w: %v", audio.ErrDeviceUnavailable, err)
	}
	pcm, format, err := encode.ParseWAV(data)
	if err != nil {
		return nil, fmt.Errorf("wavfile: parse %q: %w", s.path, err)
	}

	st := &stream{
		frames: make(chan audio.Frame, 64),
		done:   make(chan struct{}),
	}
	go st.replay(ctx, pcm, format, s.realtime)
	return st, nil
}

type stream struct {
	frames    chan audio.Frame
	done      chan struct{}
	closeOnce sync.Once
}

var _ audio.Stream = (*stream)(nil)

func (st *stream) Frames() <-chan audio.Frame { return st.frames }

func (st *stream) Close() error {
	st.closeOnce.Do(func() { close(st.done) })
	return nil
}

// replay slices the PCM body into frames and feeds the channel until the file
// is exhausted, the stream is closed, or the context ends.
func (st *stream) replay(ctx context.Context, pcm []byte, format audio.Format, realtime bool) {
	defer close(st.frames)

	frameBytes := format.SampleRate * format.Channels * 2 * frameMs / 1000
	if frameBytes <= 0 {
		return
	}
	frameDur := frameMs * time.Millisecond

	var ticker *time.Ticker
	if realtime {
		ticker = time.NewTicker(frameDur)
		defer ticker.Stop()
	}

	var elapsed time.Duration
	for start := 0; start < len(pcm); start += frameBytes {
		end := min(start+frameBytes, len(pcm))

		if ticker != nil {
			select {
			case <-ticker.C:
			case <-st.done:
				return
			case <-ctx.Done():
				return
			}
		}

		frame := audio.Frame{
			Data:       pcm[start:end],
			SampleRate: format.SampleRate,
			Channels:   format.Channels,
			Timestamp:  elapsed,
		}
		select {
		case st.frames <- frame:
		case <-st.done:
			return
		case <-ctx.Done():
			return
		}
		elapsed += frameDur
	}
}
