package wav

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"

	"askmarie/internal/domain"
)

const formatExtensible = 0xFFFE

var (
	ErrInvalidFile       = errors.New("not a valid WAV stream")
	ErrUnsupportedFormat = errors.New("unsupported WAV encoding")
	ErrNoAudio           = errors.New("WAV stream has no audio frames")
)

// Decode parses WAV bytes into a normalized PCM buffer tagged with the
// file's native sample rate and channel count.
func Decode(data []byte) (domain.PcmBuffer, error) {
	dec := gowav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return domain.PcmBuffer{}, domain.Wrap(domain.ErrorCodeDecode, ErrInvalidFile)
	}
	if dec.WavAudioFormat != formatPCM && dec.WavAudioFormat != formatExtensible {
		return domain.PcmBuffer{}, domain.Wrap(domain.ErrorCodeDecode,
			fmt.Errorf("%w: format tag %d", ErrUnsupportedFormat, dec.WavAudioFormat))
	}

	bitDepth := int(dec.BitDepth)
	switch bitDepth {
	case 8, 16, 24, 32:
	default:
		return domain.PcmBuffer{}, domain.Wrap(domain.ErrorCodeDecode,
			fmt.Errorf("%w: %d-bit samples", ErrUnsupportedFormat, bitDepth))
	}

	intBuf, err := dec.FullPCMBuffer()
	if err != nil {
		return domain.PcmBuffer{}, domain.Wrap(domain.ErrorCodeDecode, fmt.Errorf("read pcm: %w", err))
	}

	channels := int(dec.NumChans)
	if channels < 1 || intBuf == nil || len(intBuf.Data) < channels {
		return domain.PcmBuffer{}, domain.Wrap(domain.ErrorCodeDecode, ErrNoAudio)
	}

	samples := toFloat(intBuf, channels, bitDepth)

	pcm := domain.PcmBuffer{
		Samples:    samples,
		SampleRate: int(dec.SampleRate),
		Channels:   channels,
	}
	if err := pcm.Validate(); err != nil {
		return domain.PcmBuffer{}, domain.Wrap(domain.ErrorCodeDecode, err)
	}
	return pcm, nil
}

// toFloat normalizes buf, dropping a trailing partial frame left by a
// truncated download.
func toFloat(buf *audio.IntBuffer, channels, bitDepth int) []float32 {
	usable := len(buf.Data) - len(buf.Data)%channels
	samples := make([]float32, usable)
	for i := 0; i < usable; i++ {
		samples[i] = normalize(buf.Data[i], bitDepth)
	}
	return samples
}

// normalize maps an integer sample to [-1, 1]. 8-bit WAV is unsigned.
func normalize(v int, bitDepth int) float32 {
	if bitDepth == 8 {
		return float32(v-128) / 128
	}
	scale := float32(int64(1) << (bitDepth - 1))
	f := float32(v) / scale
	if f < -1 {
		return -1
	}
	return f
}
