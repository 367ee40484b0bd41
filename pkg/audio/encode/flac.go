package encode

import (
	"bytes"
	"fmt"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"

	"github.com/whizbee/spellcast/pkg/audio"
)

// flacBlockSize is the number of samples per channel encoded per FLAC frame.
const flacBlockSize = 4096

// FLAC compresses raw little-endian int16 PCM into a FLAC stream. Lossless,
// so a transcription backend sees exactly the captured signal at roughly half
// the upload size of WAV.
func FLAC(pcm []byte, format audio.Format) ([]byte, error) {
	if err := validatePCM(pcm, format.Channels); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	info := &meta.StreamInfo{
		BlockSizeMin:  flacBlockSize,
		BlockSizeMax:  flacBlockSize,
		SampleRate:    uint32(format.SampleRate),
		NChannels:     uint8(format.Channels),
		BitsPerSample: bitsPerSample,
	}
	enc, err := flac.NewEncoder(&buf, info)
	if err != nil {
		return nil, fmt.Errorf("encode: create flac encoder: %w", err)
	}

	samples := BytesToInt16s(pcm)
	perBlock := flacBlockSize * format.Channels

	for start := 0; start < len(samples); start += perBlock {
		end := min(start+perBlock, len(samples))
		if err := writeFLACFrame(enc, samples[start:end], format); err != nil {
			return nil, err
		}
	}

	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode: close flac encoder: %w", err)
	}
	return buf.Bytes(), nil
}

// writeFLACFrame encodes one block of interleaved samples as a FLAC frame with
// one verbatim subframe per channel.
func writeFLACFrame(enc *flac.Encoder, block []int16, format audio.Format) error {
	channels := format.Channels
	perChannel := len(block) / channels

	subframes := make([]*frame.Subframe, channels)
	for ch := range channels {
		samples32 := make([]int32, perChannel)
		for i := range perChannel {
			samples32[i] = int32(block[i*channels+ch])
		}
		subframes[ch] = &frame.Subframe{
			SubHeader: frame.SubHeader{
				Pred: frame.PredVerbatim,
			},
			Samples:  samples32,
			NSamples: perChannel,
		}
	}

	frameChannels := frame.ChannelsMono
	if channels == 2 {
		frameChannels = frame.ChannelsLR
	}

	f := &frame.Frame{
		Header: frame.Header{
			BlockSize:     uint16(perChannel),
			SampleRate:    uint32(format.SampleRate),
			Channels:      frameChannels,
			BitsPerSample: bitsPerSample,
		},
		Subframes: subframes,
	}

	if err := enc.WriteFrame(f); err != nil {
		return fmt.Errorf("encode: write flac frame: %w", err)
	}
	return nil
}
