package wav

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"askmarie/internal/domain"
)

const (
	HeaderSize = 44

	formatPCM      = 1
	bitsPerSample  = 16
	bytesPerSample = bitsPerSample / 8
	fmtChunkSize   = 16

	maxAmplitude = 32767
)

// Header is the canonical 44-byte RIFF/WAVE header for 16-bit PCM.
type Header struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // file size - 8
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32
}

// NewHeader builds the header for dataBytes of 16-bit PCM.
func NewHeader(sampleRate, channels, dataBytes int) Header {
	return Header{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(HeaderSize - 8 + dataBytes),
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: fmtChunkSize,
		AudioFormat:   formatPCM,
		NumChannels:   uint16(channels),
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * channels * bytesPerSample),
		BlockAlign:    uint16(channels * bytesPerSample),
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: uint32(dataBytes),
	}
}

// EncodedSize is the exact container length for the given frame layout.
func EncodedSize(frames, channels int) int {
	return HeaderSize + frames*channels*bytesPerSample
}

// Encode serializes pcm as a canonical 16-bit WAV file. Samples outside
// [-1, 1] saturate instead of wrapping.
func Encode(pcm domain.PcmBuffer) ([]byte, error) {
	if err := pcm.Validate(); err != nil {
		return nil, domain.Wrap(domain.ErrorCodeEncode, err)
	}

	dataBytes := len(pcm.Samples) * bytesPerSample
	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize+dataBytes))

	header := NewHeader(pcm.SampleRate, pcm.Channels, dataBytes)
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, domain.Wrap(domain.ErrorCodeEncode, fmt.Errorf("write header: %w", err))
	}

	samples := make([]int16, len(pcm.Samples))
	for i, s := range pcm.Samples {
		samples[i] = quantize(s)
	}
	if err := binary.Write(buf, binary.LittleEndian, samples); err != nil {
		return nil, domain.Wrap(domain.ErrorCodeEncode, fmt.Errorf("write samples: %w", err))
	}

	return buf.Bytes(), nil
}

func quantize(s float32) int16 {
	switch {
	case math.IsNaN(float64(s)):
		return 0
	case s >= 1:
		return maxAmplitude
	case s <= -1:
		return -maxAmplitude
	}
	return int16(math.Round(float64(s) * maxAmplitude))
}
