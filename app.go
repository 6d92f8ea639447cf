package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"askmarie/internal/bootstrap"
	"askmarie/internal/config"
	"askmarie/internal/devices"
	"askmarie/internal/domain"
	"askmarie/internal/hotkey"
	"askmarie/internal/logging"
	"askmarie/internal/metrics"
	"askmarie/internal/usecase"
)

const (
	eventSession  = "askmarie:session"
	eventReply    = "askmarie:reply"
	eventPlayback = "askmarie:playback"
	eventError    = "askmarie:error"

	hotkeyDebounce = 250 * time.Millisecond
)

// App is the Wails application root.
type App struct {
	ctx    context.Context
	logger *slog.Logger

	controller *usecase.SessionController
	cfg        config.Config
	closeDevs  func() error
	bootErr    error

	cancelBackground context.CancelFunc
	background       sync.WaitGroup
}

func NewApp() *App {
	return &App{logger: slog.Default()}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	cfg, err := config.Load()
	if err != nil {
		a.fail(err)
		return
	}
	level, _ := logging.ParseLevel(cfg.Logging.Level)
	a.logger = logging.New(level, cfg.Logging.Format, os.Stderr)
	slog.SetDefault(a.logger)

	devs, err := devices.Open(cfg, logging.NewComponentLogger(a.logger, "devices"))
	if err != nil {
		a.fail(err)
		return
	}

	services, err := bootstrap.Build(cfg, devs, a, a.logger)
	if err != nil {
		_ = devs.Close()
		a.fail(err)
		return
	}

	a.cfg = services.Config
	a.controller = services.Controller
	a.closeDevs = devs.Close

	bgCtx, cancel := context.WithCancel(context.Background())
	a.cancelBackground = cancel
	a.startMetrics(bgCtx, services)
	a.startHotkey(bgCtx)

	a.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonMicCold)
}

func (a *App) shutdown(_ context.Context) {
	if a.cancelBackground != nil {
		a.cancelBackground()
	}
	if a.controller != nil {
		if err := a.controller.Close(); err != nil {
			a.logger.Warn("controller close", slog.String("error", err.Error()))
		}
	}
	a.background.Wait()
	if a.closeDevs != nil {
		if err := a.closeDevs(); err != nil {
			a.logger.Warn("device close", slog.String("error", err.Error()))
		}
	}
}

func (a *App) startMetrics(ctx context.Context, services bootstrap.Services) {
	if a.cfg.Metrics.Address == "" {
		return
	}
	a.background.Add(1)
	go func() {
		defer a.background.Done()
		logger := logging.NewComponentLogger(a.logger, "metrics")
		if err := metrics.Serve(ctx, a.cfg.Metrics.Address, services.Registry, logger); err != nil {
			logger.Error("metrics server stopped", slog.String("error", err.Error()))
		}
	}()
}

func (a *App) startHotkey(ctx context.Context) {
	if !a.cfg.Hotkey.Enabled {
		return
	}
	logger := logging.NewComponentLogger(a.logger, "hotkey")
	presses, err := hotkey.NewListener(a.cfg.Hotkey.Combo, logger).Listen(ctx)
	if err != nil {
		logger.Warn("hotkey unavailable", slog.String("error", err.Error()))
		return
	}
	a.background.Add(1)
	go func() {
		defer a.background.Done()
		err := a.controller.Run(ctx, usecase.Debounce(ctx, presses, hotkeyDebounce))
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, usecase.ErrClosed) {
			logger.Error("toggle loop stopped", slog.String("error", err.Error()))
		}
	}()
}

func (a *App) fail(err error) {
	a.bootErr = err
	a.logger.Error("startup failed", slog.String("error", err.Error()))
	a.SessionError(domain.ErrorCodeStartup, err.Error())
}

// Toggle starts a recording when idle, or sends it when recording.
func (a *App) Toggle() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	return a.controller.Toggle(a.ctx)
}

// StartRecording opens the microphone.
func (a *App) StartRecording() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.controller.Start(a.ctx); err != nil {
		return domain.Status{}, err
	}
	return a.controller.Status(), nil
}

// StopAndSend ends the recording and returns the id of the pipeline that
// carries it to the service.
func (a *App) StopAndSend() (string, error) {
	if err := a.requireReady(); err != nil {
		return "", err
	}
	return a.controller.Stop(a.ctx)
}

// GetStatus returns the current session status.
func (a *App) GetStatus() domain.Status {
	if a.controller == nil {
		if a.bootErr != nil {
			return domain.Status{State: domain.SessionStateIdle, Active: false, Message: a.bootErr.Error()}
		}
		return domain.Status{State: domain.SessionStateIdle, Active: false}
	}
	return a.controller.Status()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	return map[string]string{
		"endpoint":        a.cfg.Service.EndpointURL,
		"audioBackend":    a.cfg.Audio.Backend,
		"audioInput":      a.cfg.Audio.InputDevice,
		"sampleRate":      strconv.Itoa(a.cfg.Audio.SampleRate),
		"durationCeiling": a.cfg.Audio.DurationCeiling.String(),
		"hotkey":          hotkeyLabel(a.cfg.Hotkey),
		"configFile":      a.cfg.File,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// SessionStateChanged emits session lifecycle updates to the frontend.
func (a *App) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventSession, map[string]string{
		"state":   string(state),
		"reason":  string(reason),
		"message": reason.Message(),
	})
}

// ReplyReceived emits the parsed service reply.
func (a *App) ReplyReceived(pipelineID string, reply domain.ServiceReply) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventReply, map[string]string{
		"pipelineId":    pipelineID,
		"audioPath":     reply.AudioPath,
		"transcription": reply.Transcription,
		"response":      reply.Response,
	})
}

// PlaybackStarted tells the UI a reply is audible.
func (a *App) PlaybackStarted(pipelineID string, durationSeconds float64) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventPlayback, map[string]any{
		"pipelineId":      pipelineID,
		"durationSeconds": durationSeconds,
	})
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": code.Message(detail),
		"detail":  detail,
	})
}

func hotkeyLabel(cfg config.HotkeyConfig) string {
	if !cfg.Enabled {
		return "disabled"
	}
	return strings.Join(cfg.Combo, "+")
}
