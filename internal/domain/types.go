package domain

// SessionState models the capture toggle lifecycle.
type SessionState string

const (
	SessionStateIdle      SessionState = "idle"
	SessionStateRecording SessionState = "recording"
)

// SessionStateReason provides a structured reason for state transitions.
type SessionStateReason string

const (
	SessionReasonMicCold          SessionStateReason = "mic_cold"
	SessionReasonRecordingStarted SessionStateReason = "recording_started"
	SessionReasonRecordingSent    SessionStateReason = "recording_sent"
	SessionReasonRecordingEmpty   SessionStateReason = "recording_empty"
	SessionReasonCaptureFailed    SessionStateReason = "capture_failed"
	SessionReasonSessionClosed    SessionStateReason = "session_closed"
)

// Message returns the user-facing text for a reason.
func (r SessionStateReason) Message() string {
	switch r {
	case SessionReasonMicCold:
		return "Mic cold"
	case SessionReasonRecordingStarted:
		return "Recording... toggle again to send"
	case SessionReasonRecordingSent:
		return "Recording sent. Waiting for Marie..."
	case SessionReasonRecordingEmpty:
		return "Nothing was recorded"
	case SessionReasonCaptureFailed:
		return "Microphone capture failed"
	case SessionReasonSessionClosed:
		return "Session closed"
	default:
		return ""
	}
}

// ErrorCode identifies the pipeline stage (or host step) that failed.
type ErrorCode string

const (
	ErrorCodeUnknown   ErrorCode = "unknown"
	ErrorCodeStartup   ErrorCode = "startup"
	ErrorCodeCapture   ErrorCode = "capture"
	ErrorCodeEncode    ErrorCode = "encode"
	ErrorCodeTransport ErrorCode = "transport"
	ErrorCodeParse     ErrorCode = "parse"
	ErrorCodeDecode    ErrorCode = "decode"
	ErrorCodePlayback  ErrorCode = "playback"
)

// Message returns the user-facing summary for an error code.
func (c ErrorCode) Message(detail string) string {
	switch c {
	case ErrorCodeStartup:
		return "Startup failed"
	case ErrorCodeCapture:
		return "Microphone capture issue"
	case ErrorCodeEncode:
		return "Recording could not be encoded"
	case ErrorCodeTransport:
		return "Could not reach the speech service"
	case ErrorCodeParse:
		return "Unexpected reply from the speech service"
	case ErrorCodeDecode:
		return "Reply audio could not be decoded"
	case ErrorCodePlayback:
		return "Reply audio could not be played"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}

// PcmBuffer holds interleaved normalized samples in [-1, 1].
type PcmBuffer struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// FrameCount is the number of sample frames across all channels.
func (b PcmBuffer) FrameCount() int {
	if b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// DurationSeconds reports frames / sampleRate.
func (b PcmBuffer) DurationSeconds() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(b.FrameCount()) / float64(b.SampleRate)
}

// Validate checks the buffer invariants: positive rate and channel count,
// whole frames, and at least one sample.
func (b PcmBuffer) Validate() error {
	if len(b.Samples) == 0 {
		return ErrEmptyBuffer
	}
	if b.SampleRate <= 0 || b.Channels <= 0 || len(b.Samples)%b.Channels != 0 {
		return ErrInvalidBuffer
	}
	return nil
}

// ServiceReply is the structured part of the upload response.
type ServiceReply struct {
	AudioPath     string `json:"audioPath"`
	Transcription string `json:"transcription,omitempty"`
	Response      string `json:"response,omitempty"`
}

// FetchedAudio is the decoded reply audio handed to the sink.
type FetchedAudio struct {
	PCM             PcmBuffer
	DurationSeconds float64
}

// Status summarizes the current runtime status.
type Status struct {
	State    SessionState `json:"state"`
	Active   bool         `json:"active"`
	InFlight int          `json:"inFlight"`
	Message  string       `json:"message,omitempty"`
}
