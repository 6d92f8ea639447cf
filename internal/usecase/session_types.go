package usecase

import (
	"context"
	"time"

	"askmarie/internal/domain"
	"askmarie/internal/metrics"
	"askmarie/internal/ports"
)

// activeCapture is the recording currently holding the microphone. Its id
// becomes the pipeline id once the recording is sent.
type activeCapture struct {
	id        string
	handle    ports.CaptureHandle
	cancel    context.CancelFunc
	startedAt time.Time
}

// stage names a pipeline step and the code reported when its error carries
// none of its own.
type stage struct {
	name string
	code domain.ErrorCode
}

var (
	stageUpload   = stage{name: metrics.StageUpload, code: domain.ErrorCodeTransport}
	stageParse    = stage{name: metrics.StageParse, code: domain.ErrorCodeParse}
	stageFetch    = stage{name: metrics.StageFetch, code: domain.ErrorCodeTransport}
	stagePlayback = stage{name: metrics.StagePlayback, code: domain.ErrorCodePlayback}
)
