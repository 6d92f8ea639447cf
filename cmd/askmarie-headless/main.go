// Command askmarie-headless runs the voice client without a window. A global
// hotkey, or Enter on stdin, toggles recording.
package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dimiro1/banner"

	"askmarie/internal/bootstrap"
	"askmarie/internal/config"
	"askmarie/internal/devices"
	"askmarie/internal/domain"
	"askmarie/internal/hotkey"
	"askmarie/internal/logging"
	"askmarie/internal/metrics"
	"askmarie/internal/usecase"
)

var version = "dev"

const hotkeyDebounce = 250 * time.Millisecond

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "askmarie:", err)
		os.Exit(1)
	}
}

func run() error {
	printBanner()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	level, _ := logging.ParseLevel(cfg.Logging.Level)
	logger := logging.New(level, cfg.Logging.Format, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	devs, err := devices.Open(cfg, logging.NewComponentLogger(logger, "devices"))
	if err != nil {
		return err
	}
	defer func() {
		if err := devs.Close(); err != nil {
			logger.Warn("device close", slog.String("error", err.Error()))
		}
	}()

	services, err := bootstrap.Build(cfg, devs, logEvents{logger: logging.NewComponentLogger(logger, "events")}, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := services.Controller.Close(); err != nil {
			logger.Warn("controller close", slog.String("error", err.Error()))
		}
	}()

	if cfg.Metrics.Address != "" {
		go func() {
			mlog := logging.NewComponentLogger(logger, "metrics")
			if err := metrics.Serve(ctx, cfg.Metrics.Address, services.Registry, mlog); err != nil {
				mlog.Error("metrics server stopped", slog.String("error", err.Error()))
			}
		}()
	}

	toggles := stdinToggles(ctx)
	if cfg.Hotkey.Enabled {
		presses, err := hotkey.NewListener(cfg.Hotkey.Combo, logging.NewComponentLogger(logger, "hotkey")).Listen(ctx)
		if err != nil {
			logger.Warn("hotkey unavailable, using stdin only", slog.String("error", err.Error()))
		} else {
			toggles = merge(ctx, toggles, usecase.Debounce(ctx, presses, hotkeyDebounce))
		}
		logger.Info("ready", slog.String("hotkey", strings.Join(cfg.Hotkey.Combo, "+")))
	} else {
		logger.Info("ready, press Enter to toggle recording")
	}

	err = services.Controller.Run(ctx, toggles)
	if errors.Is(err, context.Canceled) {
		logger.Info("shutting down")
		return nil
	}
	return err
}

func printBanner() {
	tpl := "{{ .Title \"ASK MARIE\" \"\" 0 }}\nVersion: " + version + "\n"
	banner.Init(os.Stdout, true, true, bytes.NewBufferString(tpl))
}

// stdinToggles emits one toggle per line read from stdin.
func stdinToggles(ctx context.Context) <-chan struct{} {
	out := make(chan struct{})
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case out <- struct{}{}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func merge(ctx context.Context, sources ...<-chan struct{}) <-chan struct{} {
	out := make(chan struct{})
	for _, src := range sources {
		go func(src <-chan struct{}) {
			for {
				select {
				case <-ctx.Done():
					return
				case _, ok := <-src:
					if !ok {
						return
					}
					select {
					case out <- struct{}{}:
					case <-ctx.Done():
						return
					}
				}
			}
		}(src)
	}
	return out
}

// logEvents reports session events on the console.
type logEvents struct {
	logger *slog.Logger
}

func (e logEvents) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	e.logger.Info(reason.Message(), slog.String("state", string(state)))
}

func (e logEvents) ReplyReceived(pipelineID string, reply domain.ServiceReply) {
	e.logger.Info("Marie replied",
		slog.String("pipeline_id", pipelineID),
		slog.String("transcription", reply.Transcription),
		slog.String("response", reply.Response),
	)
}

func (e logEvents) PlaybackStarted(pipelineID string, durationSeconds float64) {
	e.logger.Info("playing reply", slog.String("pipeline_id", pipelineID), slog.Float64("seconds", durationSeconds))
}

func (e logEvents) SessionError(code domain.ErrorCode, detail string) {
	e.logger.Error(code.Message(detail), slog.String("code", string(code)), slog.String("detail", detail))
}
