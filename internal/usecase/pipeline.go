package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"askmarie/internal/domain"
	"askmarie/internal/reply"
)

// runPipeline drives one sent recording through upload, parse, fetch and
// play. A failure ends this pipeline only.
func (c *SessionController) runPipeline(id string, payload []byte) {
	defer c.pipelines.Done()
	defer func() {
		c.mu.Lock()
		c.inFlight--
		c.mu.Unlock()
	}()

	ctx := c.lifetime
	if c.cfg.PipelineTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.PipelineTimeout)
		defer cancel()
	}

	logger := c.logger.With(slog.String("pipeline_id", id))
	started := time.Now()
	failed := ""
	c.metrics.PipelineStarted()
	defer func() { c.metrics.PipelineFinished(failed) }()

	var body string
	err := c.timeStage(stageUpload, func() error {
		var err error
		body, err = c.service.Upload(ctx, payload)
		return err
	})
	if err != nil {
		failed = c.reportFailure(ctx, logger, stageUpload, err)
		return
	}

	var parsed domain.ServiceReply
	err = c.timeStage(stageParse, func() error {
		var err error
		parsed, err = reply.Parse(body)
		return err
	})
	if err != nil {
		failed = c.reportFailure(ctx, logger, stageParse, err)
		return
	}
	logger.Info("reply received", slog.String("audio_path", parsed.AudioPath))
	c.events.ReplyReceived(id, parsed)

	var audio domain.FetchedAudio
	err = c.timeStage(stageFetch, func() error {
		var err error
		audio, err = c.service.FetchAndDecode(ctx, parsed.AudioPath)
		return err
	})
	if err != nil {
		failed = c.reportFailure(ctx, logger, stageFetch, err)
		return
	}

	if err := audio.PCM.Validate(); err != nil {
		failed = c.reportFailure(ctx, logger, stagePlayback, domain.Wrap(domain.ErrorCodePlayback, err))
		return
	}

	logger.Info("playing reply",
		slog.Float64("duration_seconds", audio.DurationSeconds),
		slog.Int("sample_rate", audio.PCM.SampleRate),
		slog.Int("channels", audio.PCM.Channels),
	)
	c.events.PlaybackStarted(id, audio.DurationSeconds)

	err = c.timeStage(stagePlayback, func() error {
		return c.sink.Play(ctx, audio.PCM)
	})
	if err != nil {
		failed = c.reportFailure(ctx, logger, stagePlayback, err)
		return
	}

	logger.Info("pipeline finished", slog.Duration("elapsed", time.Since(started)))
}

func (c *SessionController) timeStage(s stage, fn func() error) error {
	start := time.Now()
	err := fn()
	c.metrics.ObserveStage(s.name, time.Since(start))
	return err
}

// reportFailure logs and surfaces a stage error and returns the stage label.
// Cancellation from Close is logged but not surfaced.
func (c *SessionController) reportFailure(ctx context.Context, logger *slog.Logger, s stage, err error) string {
	if errors.Is(err, context.Canceled) && c.lifetime.Err() != nil {
		logger.Info("pipeline canceled", slog.String("stage", s.name))
		return s.name
	}

	code := domain.CodeOf(err)
	if code == domain.ErrorCodeUnknown {
		code = s.code
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
		logger.Warn("pipeline timed out", slog.String("stage", s.name), slog.Duration("timeout", c.cfg.PipelineTimeout))
	}
	logger.Error("pipeline failed",
		slog.String("stage", s.name),
		slog.String("code", string(code)),
		slog.String("error", err.Error()),
	)
	c.events.SessionError(code, err.Error())
	return s.name
}
