package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	mp3 "github.com/hajimehoshi/go-mp3"
)

// go-mp3 always emits 16-bit little-endian stereo PCM.
const mp3OutputChannels = 2

// decodeMP3 decodes an MP3 payload into interleaved samples.
func decodeMP3(data []byte) (*clip, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode mp3: %w", err)
	}

	pcm, err := io.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf("failed to read mp3 pcm stream: %w", err)
	}

	samples := make([]int16, len(pcm)/bytesPerSample)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*bytesPerSample : i*bytesPerSample+2]))
	}

	return &clip{
		samples:    samples,
		sampleRate: decoder.SampleRate(),
		channels:   mp3OutputChannels,
	}, nil
}

// isMP3 sniffs an MP3 payload by ID3 tag or frame sync.
func isMP3(data []byte) bool {
	if len(data) < 3 {
		return false
	}

	if bytes.HasPrefix(data, []byte("ID3")) {
		return true
	}

	return data[0] == 0xFF && data[1]&0xE0 == 0xE0
}
