package encode

import (
	"encoding/binary"
	"fmt"

	"github.com/whizbee/spellcast/pkg/audio"
)

const bitsPerSample = 16

// WAVHeaderSize is the fixed size of the RIFF header produced by [WAV].
const WAVHeaderSize = 44

// WAV wraps raw 16-bit signed little-endian PCM data in a standard RIFF/WAV
// container. The returned byte slice is suitable for direct inclusion in a
// multipart form upload.
func WAV(pcm []byte, format audio.Format) []byte {
	sampleRate, channels := format.SampleRate, format.Channels
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, WAVHeaderSize+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize)) // file size − 8
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16) // PCM sub-chunk size
	binary.LittleEndian.PutUint16(buf[20:22], 1)  // audio format: PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// ParseWAV reads a RIFF/WAV container produced by [WAV] or any standard
// 16-bit PCM WAV writer and returns the raw PCM body plus its format.
// Extra chunks between "fmt " and "data" are skipped.
func ParseWAV(data []byte) ([]byte, audio.Format, error) {
	var zero audio.Format
	if len(data) < WAVHeaderSize {
		return nil, zero, fmt.Errorf("encode: wav too short (%d bytes)", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, zero, fmt.Errorf("encode: not a RIFF/WAVE file")
	}

	var format audio.Format
	sampleFormat := uint16(0)
	bits := uint16(0)

	// Walk sub-chunks starting after the 12-byte RIFF descriptor.
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if body+size > len(data) {
			size = len(data) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, zero, fmt.Errorf("encode: wav fmt chunk too short")
			}
			sampleFormat = binary.LittleEndian.Uint16(data[body : body+2])
			format.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			format.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits = binary.LittleEndian.Uint16(data[body+14 : body+16])
		case "data":
			if sampleFormat != 1 || bits != bitsPerSample {
				return nil, zero, fmt.Errorf("encode: unsupported wav encoding (format %d, %d bits); want 16-bit PCM", sampleFormat, bits)
			}
			return data[body : body+size], format, nil
		}

		// Chunks are word-aligned.
		if size%2 == 1 {
			size++
		}
		off = body + size
	}
	return nil, zero, fmt.Errorf("encode: wav data chunk not found")
}
