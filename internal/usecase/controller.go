package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"askmarie/internal/domain"
	"askmarie/internal/metrics"
	"askmarie/internal/ports"
	"askmarie/internal/wav"
)

var (
	ErrNotRecording     = errors.New("no active recording")
	ErrAlreadyRecording = errors.New("already recording")
	ErrClosed           = errors.New("session controller closed")
)

// Config controls capture and pipeline behavior.
type Config struct {
	Capture         ports.CaptureConfig
	PipelineTimeout time.Duration
}

// SessionController drives the Idle/Recording toggle. Each stop hands the
// encoded recording to its own pipeline goroutine and returns immediately.
type SessionController struct {
	source  ports.AudioSource
	service ports.SpeechService
	sink    ports.AudioSink
	events  ports.EventSink
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	lifetime       context.Context
	cancelLifetime context.CancelFunc
	pipelines      sync.WaitGroup

	// opMu serializes transitions; mu guards the fields Status reads.
	opMu       sync.Mutex
	mu         sync.Mutex
	current    *activeCapture
	closed     bool
	inFlight   int
	lastReason domain.SessionStateReason
}

func NewSessionController(
	source ports.AudioSource,
	service ports.SpeechService,
	sink ports.AudioSink,
	events ports.EventSink,
	cfg Config,
	logger *slog.Logger,
	m *metrics.Metrics,
) *SessionController {
	if cfg.Capture.SampleRate <= 0 {
		cfg.Capture.SampleRate = 44100
	}
	if cfg.Capture.Channels <= 0 {
		cfg.Capture.Channels = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	lifetime, cancel := context.WithCancel(context.Background())
	return &SessionController{
		source:         source,
		service:        service,
		sink:           sink,
		events:         events,
		cfg:            cfg,
		logger:         logger,
		metrics:        m,
		lifetime:       lifetime,
		cancelLifetime: cancel,
		lastReason:     domain.SessionReasonMicCold,
	}
}

// Toggle starts a recording when idle and sends it when recording.
func (c *SessionController) Toggle(ctx context.Context) (domain.Status, error) {
	c.opMu.Lock()
	var err error
	if c.isRecording() {
		_, err = c.stopLocked()
	} else {
		err = c.startLocked(ctx)
	}
	c.opMu.Unlock()
	return c.Status(), err
}

// Start opens the microphone with the configured ceiling.
func (c *SessionController) Start(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.startLocked(ctx)
}

// Stop ends the recording, encodes it and launches its pipeline. It returns
// the pipeline id without waiting for the network.
func (c *SessionController) Stop(_ context.Context) (string, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.stopLocked()
}

// Status returns the current backend status.
func (c *SessionController) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	state := domain.SessionStateIdle
	if c.current != nil {
		state = domain.SessionStateRecording
	}
	return domain.Status{
		State:    state,
		Active:   c.current != nil,
		InFlight: c.inFlight,
		Message:  c.lastReason.Message(),
	}
}

// Run toggles once per signal on toggles until the channel closes or ctx is
// done.
func (c *SessionController) Run(ctx context.Context, toggles <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-toggles:
			if !ok {
				return nil
			}
			if _, err := c.Toggle(ctx); err != nil {
				if errors.Is(err, ErrClosed) {
					return err
				}
				c.logger.Warn("toggle failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Close stops any active capture, cancels in-flight pipelines and waits for
// them to return. It is safe to call more than once.
func (c *SessionController) Close() error {
	c.opMu.Lock()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.opMu.Unlock()
		return nil
	}
	c.closed = true
	active := c.current
	c.current = nil
	c.mu.Unlock()

	var stopErr error
	if active != nil {
		_, stopErr = active.handle.Stop()
		active.cancel()
		c.setReason(domain.SessionReasonSessionClosed)
		c.events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonSessionClosed)
	}
	c.cancelLifetime()
	c.opMu.Unlock()

	c.pipelines.Wait()
	c.logger.Info("session controller closed")
	return stopErr
}

// Wait blocks until every launched pipeline has finished.
func (c *SessionController) Wait() {
	c.pipelines.Wait()
}

func (c *SessionController) startLocked(ctx context.Context) error {
	c.mu.Lock()
	closed, recording := c.closed, c.current != nil
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if recording {
		return ErrAlreadyRecording
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	captureCtx, cancel := context.WithCancel(c.lifetime)
	handle, err := c.source.Start(captureCtx, c.cfg.Capture)
	if err != nil {
		cancel()
		c.metrics.Rejected(metrics.StageCapture)
		c.logger.Error("capture start failed", slog.String("error", err.Error()))
		c.events.SessionError(domain.ErrorCodeCapture, err.Error())
		c.transition(domain.SessionStateIdle, domain.SessionReasonCaptureFailed)
		return domain.Wrap(domain.ErrorCodeCapture, err)
	}

	active := &activeCapture{
		id:        uuid.NewString(),
		handle:    handle,
		cancel:    cancel,
		startedAt: time.Now(),
	}
	c.mu.Lock()
	c.current = active
	c.mu.Unlock()

	c.logger.Info("recording started",
		slog.String("pipeline_id", active.id),
		slog.Duration("ceiling", c.cfg.Capture.DurationCeiling),
		slog.Int("sample_rate", c.cfg.Capture.SampleRate),
	)
	c.transition(domain.SessionStateRecording, domain.SessionReasonRecordingStarted)
	return nil
}

func (c *SessionController) stopLocked() (string, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrClosed
	}
	active := c.current
	c.current = nil
	c.mu.Unlock()
	if active == nil {
		return "", ErrNotRecording
	}

	pcm, captureErr := active.handle.Stop()
	active.cancel()
	logger := c.logger.With(slog.String("pipeline_id", active.id))

	if captureErr != nil {
		if len(pcm.Samples) == 0 {
			c.metrics.Rejected(metrics.StageCapture)
			logger.Error("capture failed", slog.String("error", captureErr.Error()))
			c.events.SessionError(domain.ErrorCodeCapture, captureErr.Error())
			c.transition(domain.SessionStateIdle, domain.SessionReasonCaptureFailed)
			return "", domain.Wrap(domain.ErrorCodeCapture, captureErr)
		}
		logger.Warn("capture stopped with error, sending what was recorded", slog.String("error", captureErr.Error()))
	}

	encodeStart := time.Now()
	payload, err := wav.Encode(pcm)
	c.metrics.ObserveStage(metrics.StageEncode, time.Since(encodeStart))
	if err != nil {
		c.metrics.Rejected(metrics.StageEncode)
		reason := domain.SessionReasonCaptureFailed
		if errors.Is(err, domain.ErrEmptyBuffer) {
			reason = domain.SessionReasonRecordingEmpty
		}
		logger.Warn("recording rejected", slog.String("error", err.Error()))
		c.events.SessionError(domain.ErrorCodeEncode, err.Error())
		c.transition(domain.SessionStateIdle, reason)
		return "", err
	}

	logger.Info("recording stopped",
		slog.Duration("recorded", time.Since(active.startedAt)),
		slog.Float64("audio_seconds", pcm.DurationSeconds()),
		slog.Int("payload_bytes", len(payload)),
	)

	c.mu.Lock()
	c.inFlight++
	c.mu.Unlock()
	c.pipelines.Add(1)
	c.transition(domain.SessionStateIdle, domain.SessionReasonRecordingSent)
	go c.runPipeline(active.id, payload)

	return active.id, nil
}

func (c *SessionController) isRecording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

func (c *SessionController) setReason(reason domain.SessionStateReason) {
	c.mu.Lock()
	c.lastReason = reason
	c.mu.Unlock()
}

func (c *SessionController) transition(state domain.SessionState, reason domain.SessionStateReason) {
	c.setReason(reason)
	c.metrics.ObserveToggle(string(state))
	c.events.SessionStateChanged(state, reason)
}
