package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"

	"askmarie/internal/domain"
)

func TestEncodeHeaderIsCanonical(t *testing.T) {
	t.Parallel()

	pcm := domain.PcmBuffer{Samples: []float32{0, 0.5, -0.5, 1}, SampleRate: 44100, Channels: 2}
	data, err := Encode(pcm)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	if len(data) != EncodedSize(2, 2) || len(data) != 44+8 {
		t.Fatalf("unexpected length: %d", len(data))
	}

	want := []byte("RIFF")
	want = binary.LittleEndian.AppendUint32(want, 36+8)
	want = append(want, []byte("WAVEfmt ")...)
	want = binary.LittleEndian.AppendUint32(want, 16)
	want = binary.LittleEndian.AppendUint16(want, 1)
	want = binary.LittleEndian.AppendUint16(want, 2)
	want = binary.LittleEndian.AppendUint32(want, 44100)
	want = binary.LittleEndian.AppendUint32(want, 44100*2*2)
	want = binary.LittleEndian.AppendUint16(want, 4)
	want = binary.LittleEndian.AppendUint16(want, 16)
	want = append(want, []byte("data")...)
	want = binary.LittleEndian.AppendUint32(want, 8)

	if !bytes.Equal(data[:HeaderSize], want) {
		t.Fatalf("header mismatch:\n got %v\nwant %v", data[:HeaderSize], want)
	}

	samples := []int16{0, 16384, -16384, 32767}
	for i, s := range samples {
		got := int16(binary.LittleEndian.Uint16(data[HeaderSize+i*2:]))
		if got != s {
			t.Fatalf("sample %d: expected %d, got %d", i, s, got)
		}
	}
}

func TestEncodeTwoSecondsOfSilence(t *testing.T) {
	t.Parallel()

	pcm := domain.PcmBuffer{Samples: make([]float32, 88200), SampleRate: 44100, Channels: 1}
	data, err := Encode(pcm)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if len(data) != 44+88200*2 {
		t.Fatalf("unexpected length: %d", len(data))
	}
	if size := binary.LittleEndian.Uint32(data[4:8]); int(size) != len(data)-8 {
		t.Fatalf("riff size %d does not match file length %d", size, len(data))
	}
	if size := binary.LittleEndian.Uint32(data[40:44]); int(size) != 88200*2 {
		t.Fatalf("unexpected data size: %d", size)
	}
}

func TestEncodeSaturatesOutOfRangeSamples(t *testing.T) {
	t.Parallel()

	pcm := domain.PcmBuffer{
		Samples:    []float32{1.5, -2, float32(math.NaN()), 0.25},
		SampleRate: 8000,
		Channels:   1,
	}
	data, err := Encode(pcm)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	want := []int16{32767, -32767, 0, 8192}
	for i, w := range want {
		got := int16(binary.LittleEndian.Uint16(data[HeaderSize+i*2:]))
		if got != w {
			t.Fatalf("sample %d: expected %d, got %d", i, w, got)
		}
	}
}

func TestEncodeRejectsInvalidBuffers(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		pcm  domain.PcmBuffer
		want error
	}{
		{"empty", domain.PcmBuffer{SampleRate: 44100, Channels: 1}, domain.ErrEmptyBuffer},
		{"partial frame", domain.PcmBuffer{Samples: []float32{0, 0, 0}, SampleRate: 44100, Channels: 2}, domain.ErrInvalidBuffer},
		{"no rate", domain.PcmBuffer{Samples: []float32{0}, Channels: 1}, domain.ErrInvalidBuffer},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Encode(tc.pcm)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if domain.CodeOf(err) != domain.ErrorCodeEncode {
				t.Fatalf("expected encode code, got %s", domain.CodeOf(err))
			}
		})
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	for _, channels := range []int{1, 2} {
		frames := 441
		samples := make([]float32, frames*channels)
		for i := range samples {
			samples[i] = float32(math.Sin(float64(i) / 7))
		}
		samples[0] = 1
		samples[1] = -1

		original := domain.PcmBuffer{Samples: samples, SampleRate: 22050, Channels: channels}
		data, err := Encode(original)
		if err != nil {
			t.Fatalf("encode failed: %v", err)
		}

		decoded, err := Decode(data)
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if decoded.SampleRate != 22050 || decoded.Channels != channels {
			t.Fatalf("unexpected format: rate=%d channels=%d", decoded.SampleRate, decoded.Channels)
		}
		if decoded.FrameCount() != frames {
			t.Fatalf("unexpected frame count: %d", decoded.FrameCount())
		}

		const tolerance = 2.0 / maxAmplitude
		for i := range samples {
			if diff := math.Abs(float64(decoded.Samples[i] - samples[i])); diff > tolerance {
				t.Fatalf("channels=%d sample %d: expected %.5f, got %.5f", channels, i, samples[i], decoded.Samples[i])
			}
		}
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	t.Parallel()

	cases := map[string][]byte{
		"empty":     nil,
		"too short": []byte("RIFF"),
		"html":      []byte("<html><body>404 not found</body></html>"),
	}

	for name, data := range cases {
		data := data
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := Decode(data)
			if err == nil {
				t.Fatalf("expected decode error")
			}
			if domain.CodeOf(err) != domain.ErrorCodeDecode {
				t.Fatalf("expected decode code, got %s", domain.CodeOf(err))
			}
		})
	}
}

func TestDecodeRejectsNonPCM(t *testing.T) {
	t.Parallel()

	data, err := Encode(domain.PcmBuffer{Samples: []float32{0, 0.1}, SampleRate: 8000, Channels: 1})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	// Rewrite the format tag to IEEE float.
	binary.LittleEndian.PutUint16(data[20:22], 3)

	_, err = Decode(data)
	if err == nil {
		t.Fatalf("expected unsupported format error")
	}
	if domain.CodeOf(err) != domain.ErrorCodeDecode {
		t.Fatalf("expected decode code, got %s", domain.CodeOf(err))
	}
}

func TestDecodeForeignEncoderBitDepths(t *testing.T) {
	t.Parallel()

	cases := []struct {
		bitDepth int
		data     []int
		want     []float32
	}{
		{bitDepth: 16, data: []int{0, 16384, -16384, -32768}, want: []float32{0, 0.5, -0.5, -1}},
		{bitDepth: 24, data: []int{0, 4194304, -4194304, -8388608}, want: []float32{0, 0.5, -0.5, -1}},
	}

	for _, tc := range cases {
		path := filepath.Join(t.TempDir(), "reply.wav")
		out, err := os.Create(path)
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		enc := gowav.NewEncoder(out, 16000, tc.bitDepth, 2, 1)
		buf := &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: 2, SampleRate: 16000},
			Data:           tc.data,
			SourceBitDepth: tc.bitDepth,
		}
		if err := enc.Write(buf); err != nil {
			t.Fatalf("%d-bit write failed: %v", tc.bitDepth, err)
		}
		if err := enc.Close(); err != nil {
			t.Fatalf("%d-bit close failed: %v", tc.bitDepth, err)
		}
		_ = out.Close()

		raw, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		pcm, err := Decode(raw)
		if err != nil {
			t.Fatalf("%d-bit decode failed: %v", tc.bitDepth, err)
		}
		if pcm.SampleRate != 16000 || pcm.Channels != 2 || pcm.FrameCount() != 2 {
			t.Fatalf("%d-bit: unexpected format %+v", tc.bitDepth, pcm)
		}
		for i, want := range tc.want {
			if pcm.Samples[i] != want {
				t.Fatalf("%d-bit sample %d: expected %v, got %v", tc.bitDepth, i, want, pcm.Samples[i])
			}
		}
	}
}
