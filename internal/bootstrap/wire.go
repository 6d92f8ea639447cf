package bootstrap

import (
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"askmarie/internal/config"
	"askmarie/internal/domain"
	"askmarie/internal/logging"
	"askmarie/internal/metrics"
	"askmarie/internal/ports"
	"askmarie/internal/service"
	"askmarie/internal/usecase"
)

// Devices are the host-opened audio endpoints. Close releases them.
type Devices struct {
	Source ports.AudioSource
	Sink   ports.AudioSink
	Close  func() error
}

// Services is the assembled runtime graph.
type Services struct {
	Controller *usecase.SessionController
	Client     *service.Client
	Config     config.Config
	Metrics    *metrics.Metrics
	Registry   *prometheus.Registry
}

// Build wires the speech client, metrics and session controller around the
// given devices.
func Build(cfg config.Config, devices Devices, events ports.EventSink, logger *slog.Logger) (Services, error) {
	if devices.Source == nil || devices.Sink == nil {
		return Services{}, domain.Wrap(domain.ErrorCodeStartup, errors.New("audio devices are not available"))
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := service.NewClient(service.Config{
		EndpointURL: cfg.Service.EndpointURL,
		BaseURL:     cfg.Service.BaseURL,
		Timeout:     cfg.Service.Timeout,
		Logger:      logging.NewComponentLogger(logger, "service"),
	})
	if err != nil {
		return Services{}, domain.Wrap(domain.ErrorCodeStartup, err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	controller := usecase.NewSessionController(
		devices.Source,
		client,
		devices.Sink,
		events,
		usecase.Config{
			Capture: ports.CaptureConfig{
				DurationCeiling: cfg.Audio.DurationCeiling,
				SampleRate:      cfg.Audio.SampleRate,
				Channels:        cfg.Audio.Channels,
			},
			PipelineTimeout: cfg.Session.PipelineTimeout,
		},
		logging.NewComponentLogger(logger, "controller"),
		m,
	)

	logger.Info("services ready",
		slog.String("endpoint", client.Endpoint()),
		slog.String("base_url", client.BaseURL()),
		slog.String("audio_backend", cfg.Audio.Backend),
	)

	return Services{
		Controller: controller,
		Client:     client,
		Config:     cfg,
		Metrics:    m,
		Registry:   registry,
	}, nil
}
