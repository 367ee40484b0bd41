// Package malgo provides microphone capture through the miniaudio library
// (github.com/gen2brain/malgo). It is the production [audio.Source] used by
// the spellcast CLI.
package malgo

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/whizbee/spellcast/pkg/audio"
)

// Source captures from a system microphone. The zero value captures from the
// default device; use [WithDeviceName] to select another by name substring.
type Source struct {
	deviceName string
}

var _ audio.Source = (*Source)(nil)

// Option configures a [Source].
type Option func(*Source)

// WithDeviceName selects the capture device whose name contains the given
// substring (case-insensitive). An empty string keeps the system default.
func WithDeviceName(name string) Option {
	return func(s *Source) {
		s.deviceName = name
	}
}

// New creates a microphone Source.
func New(opts ...Option) *Source {
	s := &Source{}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ListDevices enumerates the capture device names visible to miniaudio.
func ListDevices() ([]string, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("malgo: %w: %v", audio.ErrDeviceUnavailable, err)
	}
	defer func() {
		_ = mctx.Uninit()
		mctx.Free()
	}()

	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("malgo: enumerate devices: %w", err)
	}
	names := make([]string, 0, len(infos))
	for _, d := range infos {
		names = append(names, d.Name())
	}
	return names, nil
}

// Open implements [audio.Source]. It initializes a miniaudio context, resolves
// the requested device, and starts capture in signed 16-bit PCM at the
// requested rate and channel count.
func (s *Source) Open(_ context.Context, format audio.Format) (audio.Stream, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("malgo: %w: %v", audio.ErrDeviceUnavailable, err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(format.Channels)
	deviceConfig.SampleRate = uint32(format.SampleRate)

	if s.deviceName != "" {
		id, name, err := findDevice(mctx, s.deviceName)
		if err != nil {
			_ = mctx.Uninit()
			mctx.Free()
			return nil, err
		}
		deviceConfig.Capture.DeviceID = id.Pointer()
		slog.Info("capture device selected", "device", name)
	}

	st := &stream{
		mctx:   mctx,
		frames: make(chan audio.Frame, 64),
		format: format,
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			st.onData(input)
		},
	}

	dev, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("malgo: %w: %v", audio.ErrDeviceUnavailable, err)
	}
	st.device = dev

	if err := dev.Start(); err != nil {
		dev.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("malgo: %w: %v", audio.ErrDeviceUnavailable, err)
	}

	return st, nil
}

// findDevice resolves a device name substring to a device ID.
func findDevice(mctx *malgo.AllocatedContext, wanted string) (malgo.DeviceID, string, error) {
	var zero malgo.DeviceID
	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return zero, "", fmt.Errorf("malgo: enumerate devices: %w", err)
	}
	lowered := strings.ToLower(wanted)
	for _, d := range infos {
		if strings.Contains(strings.ToLower(d.Name()), lowered) {
			return d.ID, d.Name(), nil
		}
	}
	return zero, "", fmt.Errorf("malgo: %w: no capture device matching %q", audio.ErrDeviceUnavailable, wanted)
}

type stream struct {
	mctx   *malgo.AllocatedContext
	device *malgo.Device
	frames chan audio.Frame
	format audio.Format

	mu         sync.Mutex
	elapsed    time.Duration
	closed     bool
	dropped    int
	warnedFull sync.Once

	closeOnce sync.Once
}

var _ audio.Stream = (*stream)(nil)

// onData runs on miniaudio's capture thread. It must never block: the frame
// buffer is copied and queued, and the frame is dropped if the consumer has
// fallen a full channel buffer behind. The send happens under the mutex so it
// can never race the channel close in [stream.Close].
func (st *stream) onData(input []byte) {
	if len(input) == 0 {
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return
	}

	data := make([]byte, len(input))
	copy(data, input)
	frame := audio.Frame{
		Data:       data,
		SampleRate: st.format.SampleRate,
		Channels:   st.format.Channels,
		Timestamp:  st.elapsed,
	}
	st.elapsed += frame.Duration()

	select {
	case st.frames <- frame:
	default:
		st.dropped++
		st.warnedFull.Do(func() {
			slog.Warn("capture frame buffer full, dropping frames")
		})
	}
}

func (st *stream) Frames() <-chan audio.Frame { return st.frames }

// Close stops the device and releases the miniaudio context. The capture
// callback is fenced off (closed flag, same mutex as the sends) before the
// channel closes, so no send can race the close.
func (st *stream) Close() error {
	st.closeOnce.Do(func() {
		st.mu.Lock()
		st.closed = true
		dropped := st.dropped
		st.mu.Unlock()

		_ = st.device.Stop()
		st.device.Uninit()
		_ = st.mctx.Uninit()
		st.mctx.Free()
		close(st.frames)

		if dropped > 0 {
			slog.Debug("capture stream closed", "dropped_frames", dropped)
		}
	})
	return nil
}
