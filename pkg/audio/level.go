package audio

import (
	"math"
	"sync"
	"time"
)

// FloorDB is the lower clamp for measured loudness. Real signal, however
// quiet, never reports below this; only the no-input sentinel is -Inf.
const FloorDB = -100.0

// fullScale is the normalization reference for 16-bit PCM.
const fullScale = 32768.0

// Meter reduces the audio observed during each sampling window to a single
// loudness value. Capture pumps feed frames in via [Meter.Observe]; the
// recording tick calls [Meter.SampleLoudness] at a fixed cadence (100 ms
// recommended) to read and reset the window.
//
// Observe is non-blocking and SampleLoudness only reads accumulated state, so
// neither side ever stalls the other for longer than a mutex hold.
type Meter struct {
	mu         sync.Mutex
	sumSquares float64
	samples    int
}

// Observe accumulates a frame's samples into the current window.
// Frames with no decodable samples are ignored.
func (m *Meter) Observe(frame Frame) {
	pcm := frame.Data
	if len(pcm) < 2 {
		return
	}

	var sum float64
	n := 0
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int16(pcm[i]) | int16(pcm[i+1])<<8
		sum += float64(s) * float64(s)
		n++
	}

	m.mu.Lock()
	m.sumSquares += sum
	m.samples += n
	m.mu.Unlock()
}

// SampleLoudness computes the loudness of the audio observed since the last
// call and resets the window. The value is the RMS energy normalized to
// full scale and converted to decibels via 20*log10(energy), clamped to
// [FloorDB, 0].
//
// If no audio was observed in the window (input stream stalled, device gone,
// capture not yet producing) the sample carries -Inf so that consumers degrade
// to "always silent" instead of erroring.
func (m *Meter) SampleLoudness(now time.Time) LoudnessSample {
	m.mu.Lock()
	sum, n := m.sumSquares, m.samples
	m.sumSquares, m.samples = 0, 0
	m.mu.Unlock()

	if n == 0 {
		return LoudnessSample{DB: math.Inf(-1), At: now}
	}

	rms := math.Sqrt(sum / float64(n))
	db := 20 * math.Log10(rms/fullScale)
	if db < FloorDB {
		db = FloorDB
	}
	if db > 0 {
		db = 0
	}
	return LoudnessSample{DB: db, At: now}
}

// Reset discards any audio accumulated in the current window.
func (m *Meter) Reset() {
	m.mu.Lock()
	m.sumSquares, m.samples = 0, 0
	m.mu.Unlock()
}
