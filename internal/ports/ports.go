package ports

import (
	"context"
	"time"

	"askmarie/internal/domain"
)

// CaptureConfig describes how the microphone should be sampled.
type CaptureConfig struct {
	DurationCeiling time.Duration
	SampleRate      int
	Channels        int
}

// CaptureHandle is a live capture. Stop releases the device and returns
// whatever was sampled, which may be shorter than the ceiling.
type CaptureHandle interface {
	Stop() (domain.PcmBuffer, error)
}

// AudioSource opens exclusive microphone captures.
type AudioSource interface {
	Start(ctx context.Context, cfg CaptureConfig) (CaptureHandle, error)
}

// AudioSink plays decoded reply audio. A later Play replaces whatever is
// currently playing.
type AudioSink interface {
	Play(ctx context.Context, pcm domain.PcmBuffer) error
}

// SpeechService is the remote speech-to-response endpoint.
type SpeechService interface {
	Upload(ctx context.Context, payload []byte) (string, error)
	FetchAndDecode(ctx context.Context, path string) (domain.FetchedAudio, error)
}

// EventSink emits backend state/events to the UI.
type EventSink interface {
	SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason)
	ReplyReceived(pipelineID string, reply domain.ServiceReply)
	PlaybackStarted(pipelineID string, durationSeconds float64)
	SessionError(code domain.ErrorCode, detail string)
}
