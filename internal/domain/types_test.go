package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestSessionReasonMessage(t *testing.T) {
	t.Parallel()

	cases := map[SessionStateReason]string{
		SessionReasonMicCold:          "Mic cold",
		SessionReasonRecordingStarted: "Recording... toggle again to send",
		SessionReasonRecordingSent:    "Recording sent. Waiting for Marie...",
		SessionReasonRecordingEmpty:   "Nothing was recorded",
		SessionReasonCaptureFailed:    "Microphone capture failed",
		SessionReasonSessionClosed:    "Session closed",
	}

	for reason, want := range cases {
		reason := reason
		want := want
		t.Run(string(reason), func(t *testing.T) {
			t.Parallel()
			if got := reason.Message(); got != want {
				t.Fatalf("unexpected message: %q", got)
			}
		})
	}

	if got := SessionStateReason("unknown").Message(); got != "" {
		t.Fatalf("expected empty unknown reason message, got %q", got)
	}
}

func TestErrorCodeMessage(t *testing.T) {
	t.Parallel()

	if got := ErrorCodeTransport.Message("ignored"); got != "Could not reach the speech service" {
		t.Fatalf("unexpected transport message: %q", got)
	}
	if got := ErrorCode("custom").Message("detail text"); got != "detail text" {
		t.Fatalf("expected detail fallback, got %q", got)
	}
	if got := ErrorCode("custom").Message(""); got != "Unknown error" {
		t.Fatalf("expected unknown fallback, got %q", got)
	}
}

func TestPcmBufferValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		buf  PcmBuffer
		want error
	}{
		{"valid mono", PcmBuffer{Samples: []float32{0, 0.5}, SampleRate: 44100, Channels: 1}, nil},
		{"valid stereo", PcmBuffer{Samples: []float32{0, 0.5, 1, -1}, SampleRate: 8000, Channels: 2}, nil},
		{"empty", PcmBuffer{SampleRate: 44100, Channels: 1}, ErrEmptyBuffer},
		{"partial frame", PcmBuffer{Samples: []float32{0, 0.5, 1}, SampleRate: 44100, Channels: 2}, ErrInvalidBuffer},
		{"zero rate", PcmBuffer{Samples: []float32{0}, Channels: 1}, ErrInvalidBuffer},
		{"zero channels", PcmBuffer{Samples: []float32{0}, SampleRate: 44100}, ErrInvalidBuffer},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if err := tc.buf.Validate(); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestPcmBufferDuration(t *testing.T) {
	t.Parallel()

	buf := PcmBuffer{Samples: make([]float32, 88200), SampleRate: 44100, Channels: 2}
	if buf.FrameCount() != 44100 {
		t.Fatalf("unexpected frame count: %d", buf.FrameCount())
	}
	if buf.DurationSeconds() != 1 {
		t.Fatalf("unexpected duration: %v", buf.DurationSeconds())
	}
}

func TestWrapKeepsInnermostCode(t *testing.T) {
	t.Parallel()

	base := errors.New("boom")
	first := Wrap(ErrorCodeDecode, base)
	second := Wrap(ErrorCodeTransport, fmt.Errorf("fetch: %w", first))

	if CodeOf(second) != ErrorCodeDecode {
		t.Fatalf("expected decode code preserved, got %s", CodeOf(second))
	}
	if !errors.Is(second, base) {
		t.Fatalf("expected wrapped error to match base")
	}
	if Wrap(ErrorCodeParse, nil) != nil {
		t.Fatalf("expected nil passthrough")
	}
	if CodeOf(base) != ErrorCodeUnknown {
		t.Fatalf("expected unknown code for plain error")
	}
}
