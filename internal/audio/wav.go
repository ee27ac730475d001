package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// WAV container constants for 16-bit PCM.
const (
	wavHeaderSize    = 44
	wavFormatPCM     = 1
	wavBitsPerSample = 16
	bytesPerSample   = 2
)

var (
	// ErrUnsupportedAudio indicates the payload is neither RIFF/WAV nor MP3.
	ErrUnsupportedAudio = errors.New("unsupported audio format")
	// ErrMalformedWAV indicates a truncated or non-PCM WAV payload.
	ErrMalformedWAV = errors.New("malformed wav payload")
)

// decodeWAV parses a 16-bit PCM RIFF/WAV payload into interleaved samples.
func decodeWAV(data []byte) (*clip, error) {
	if len(data) < wavHeaderSize || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%w: missing RIFF/WAVE header", ErrMalformedWAV)
	}

	var (
		sampleRate int
		channels   int
		pcm        []byte
		haveFmt    bool
	)

	// Walk the chunk list; fmt must precede data.
	offset := 12
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8

		if body+chunkSize > len(data) {
			chunkSize = len(data) - body
		}

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return nil, fmt.Errorf("%w: short fmt chunk", ErrMalformedWAV)
			}

			format := int(binary.LittleEndian.Uint16(data[body : body+2]))
			if format != wavFormatPCM {
				return nil, fmt.Errorf("%w: non-PCM format %d", ErrMalformedWAV, format)
			}

			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))

			bits := int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			if bits != wavBitsPerSample {
				return nil, fmt.Errorf("%w: unsupported bit depth %d", ErrMalformedWAV, bits)
			}

			haveFmt = true
		case "data":
			pcm = data[body : body+chunkSize]
		}

		// Chunks are word-aligned.
		offset = body + chunkSize + (chunkSize & 1)
	}

	if !haveFmt || pcm == nil || channels < 1 || sampleRate < 1 {
		return nil, fmt.Errorf("%w: missing fmt or data chunk", ErrMalformedWAV)
	}

	samples := make([]int16, len(pcm)/bytesPerSample)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*bytesPerSample : i*bytesPerSample+2]))
	}

	return &clip{
		samples:    samples,
		sampleRate: sampleRate,
		channels:   channels,
	}, nil
}

// encodeWAV serializes interleaved 16-bit PCM samples as a RIFF/WAV payload.
func encodeWAV(c *clip) []byte {
	dataSize := len(c.samples) * bytesPerSample
	byteRate := c.sampleRate * c.channels * bytesPerSample
	blockAlign := c.channels * bytesPerSample

	var buf bytes.Buffer

	buf.Grow(wavHeaderSize + dataSize)
	buf.WriteString("RIFF")
	writeUint32(&buf, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	writeUint32(&buf, 16)
	writeUint16(&buf, wavFormatPCM)
	writeUint16(&buf, uint16(c.channels))
	writeUint32(&buf, uint32(c.sampleRate))
	writeUint32(&buf, uint32(byteRate))
	writeUint16(&buf, uint16(blockAlign))
	writeUint16(&buf, wavBitsPerSample)

	buf.WriteString("data")
	writeUint32(&buf, uint32(dataSize))

	sample := make([]byte, bytesPerSample)
	for _, s := range c.samples {
		binary.LittleEndian.PutUint16(sample, uint16(s))
		buf.Write(sample)
	}

	return buf.Bytes()
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte

	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte

	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}
