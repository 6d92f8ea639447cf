// Package devices opens the capture backend and speaker chosen in config.
package devices

import (
	"fmt"
	"log/slog"

	"askmarie/internal/audio"
	"askmarie/internal/audio/portaudio"
	"askmarie/internal/bootstrap"
	"askmarie/internal/config"
	"askmarie/internal/playback"
	"askmarie/internal/playback/device"
	"askmarie/internal/ports"
)

// Open returns the configured source and a speaker-backed sink.
func Open(cfg config.Config, logger *slog.Logger) (bootstrap.Devices, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var source ports.AudioSource
	switch cfg.Audio.Backend {
	case config.BackendPortAudio:
		source = portaudio.New()
	case config.BackendFFMPEG, "":
		source = audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand, cfg.Audio.InputFormat, cfg.Audio.InputDevice)
	default:
		return bootstrap.Devices{}, fmt.Errorf("unknown audio backend %q", cfg.Audio.Backend)
	}

	speaker, err := device.Open(cfg.Playback.SampleRate, cfg.Playback.Buffer)
	if err != nil {
		return bootstrap.Devices{}, err
	}
	sink := playback.NewSink(speaker, cfg.Playback.SampleRate)

	logger.Info("audio devices opened",
		slog.String("backend", cfg.Audio.Backend),
		slog.String("input_device", cfg.Audio.InputDevice),
		slog.Int("playback_rate", cfg.Playback.SampleRate),
	)

	return bootstrap.Devices{
		Source: source,
		Sink:   sink,
		Close: func() error {
			sink.Stop()
			return speaker.Close()
		},
	}, nil
}
