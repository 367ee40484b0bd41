// Package encode materializes accumulated PCM recordings into single encoded
// buffers. The recording pipeline is format-agnostic and hands around raw
// little-endian int16 PCM; ASR providers pick the container their wire format
// needs: RIFF/WAV for multipart uploads, FLAC for bandwidth-friendly uploads,
// raw Opus packets for streaming sockets.
package encode

import "fmt"

// Codec names a supported buffer encoding.
type Codec string

const (
	// CodecWAV is a 44-byte RIFF header plus raw PCM. No compression.
	CodecWAV Codec = "wav"

	// CodecFLAC is a lossless FLAC stream.
	CodecFLAC Codec = "flac"

	// CodecOpus is a sequence of raw Opus packets (no Ogg container).
	CodecOpus Codec = "opus"
)

// IsValid reports whether c is a recognised codec.
func (c Codec) IsValid() bool {
	switch c {
	case CodecWAV, CodecFLAC, CodecOpus:
		return true
	}
	return false
}

// MIME returns the MIME type for the codec, for HTTP uploads.
func (c Codec) MIME() string {
	switch c {
	case CodecWAV:
		return "audio/wav"
	case CodecFLAC:
		return "audio/flac"
	case CodecOpus:
		return "audio/opus"
	default:
		return "application/octet-stream"
	}
}

// Int16sToBytes converts a slice of int16 PCM samples to little-endian bytes.
func Int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}

// BytesToInt16s converts little-endian bytes to a slice of int16 PCM samples.
// A trailing odd byte is dropped.
func BytesToInt16s(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}

// validatePCM rejects sample data that cannot be int16 PCM in the given
// channel count.
func validatePCM(pcm []byte, channels int) error {
	if channels < 1 || channels > 2 {
		return fmt.Errorf("encode: unsupported channel count %d", channels)
	}
	if len(pcm)%(2*channels) != 0 {
		return fmt.Errorf("encode: PCM length %d is not aligned to %d-channel int16 frames", len(pcm), channels)
	}
	return nil
}
