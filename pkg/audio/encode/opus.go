package encode

import (
	"fmt"
	"slices"

	"layeh.com/gopus"

	"github.com/whizbee/spellcast/pkg/audio"
)

// opusFrameMs is the Opus packet duration used throughout: 20 ms strikes the
// usual balance between latency and packet overhead.
const opusFrameMs = 20

// opusRates lists the sample rates the Opus codec accepts.
var opusRates = []int{8000, 12000, 16000, 24000, 48000}

// OpusFrameBytes returns the byte length of one 20 ms PCM frame in the given
// format, i.e. the input unit expected by [OpusEncoder.EncodePacket].
func OpusFrameBytes(format audio.Format) int {
	samplesPerChannel := format.SampleRate * opusFrameMs / 1000
	return samplesPerChannel * format.Channels * 2
}

// SplitOpusFrames slices pcm into consecutive 20 ms frames for the format,
// zero-padding the final partial frame. Pure; safe to call with any length.
func SplitOpusFrames(pcm []byte, format audio.Format) [][]byte {
	frameBytes := OpusFrameBytes(format)
	if frameBytes <= 0 || len(pcm) == 0 {
		return nil
	}

	n := (len(pcm) + frameBytes - 1) / frameBytes
	frames := make([][]byte, 0, n)
	for start := 0; start < len(pcm); start += frameBytes {
		end := start + frameBytes
		if end <= len(pcm) {
			frames = append(frames, pcm[start:end])
			continue
		}
		padded := make([]byte, frameBytes)
		copy(padded, pcm[start:])
		frames = append(frames, padded)
	}
	return frames
}

// OpusEncoder encodes PCM into raw Opus packets. Packets carry no container;
// streaming consumers (the Deepgram socket) take them one WebSocket message
// per packet.
type OpusEncoder struct {
	enc    *gopus.Encoder
	format audio.Format
}

// NewOpusEncoder creates an encoder for the given format. Opus only supports
// a fixed set of sample rates; anything else is rejected so the caller can
// resample first rather than ship garbage.
func NewOpusEncoder(format audio.Format) (*OpusEncoder, error) {
	if !slices.Contains(opusRates, format.SampleRate) {
		return nil, fmt.Errorf("encode: opus does not support %d Hz (valid: %v)", format.SampleRate, opusRates)
	}
	if format.Channels < 1 || format.Channels > 2 {
		return nil, fmt.Errorf("encode: opus supports 1 or 2 channels, got %d", format.Channels)
	}

	enc, err := gopus.NewEncoder(format.SampleRate, format.Channels, gopus.Voip)
	if err != nil {
		return nil, fmt.Errorf("encode: create opus encoder: %w", err)
	}
	return &OpusEncoder{enc: enc, format: format}, nil
}

// EncodePacket encodes exactly one 20 ms PCM frame (see [OpusFrameBytes])
// into a single Opus packet.
func (e *OpusEncoder) EncodePacket(pcmFrame []byte) ([]byte, error) {
	want := OpusFrameBytes(e.format)
	if len(pcmFrame) != want {
		return nil, fmt.Errorf("encode: opus packet needs exactly %d PCM bytes, got %d", want, len(pcmFrame))
	}

	samplesPerChannel := e.format.SampleRate * opusFrameMs / 1000
	packet, err := e.enc.Encode(BytesToInt16s(pcmFrame), samplesPerChannel, len(pcmFrame))
	if err != nil {
		return nil, fmt.Errorf("encode: opus encode: %w", err)
	}
	return packet, nil
}

// EncodeAll splits pcm into 20 ms frames and encodes each, returning the
// packet sequence for the whole recording.
func (e *OpusEncoder) EncodeAll(pcm []byte) ([][]byte, error) {
	frames := SplitOpusFrames(pcm, e.format)
	packets := make([][]byte, 0, len(frames))
	for _, f := range frames {
		p, err := e.EncodePacket(f)
		if err != nil {
			return nil, err
		}
		packets = append(packets, p)
	}
	return packets, nil
}
