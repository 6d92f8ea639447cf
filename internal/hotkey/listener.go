// Package hotkey turns a global key chord into a stream of toggle signals.
// It hooks the OS keyboard through gohook and needs cgo at build time.
package hotkey

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	hook "github.com/robotn/gohook"
)

var ErrAlreadyListening = errors.New("hotkey listener already running")

// Listener registers one key chord on the global keyboard hook.
type Listener struct {
	combo  []string
	logger *slog.Logger

	mu      sync.Mutex
	running bool
}

func NewListener(combo []string, logger *slog.Logger) *Listener {
	if len(combo) == 0 {
		combo = []string{"ctrl", "shift", "r"}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{combo: combo, logger: logger}
}

// Listen emits one signal per chord press until ctx is done, then closes the
// channel. Presses that arrive while the previous signal is unread are
// dropped.
func (l *Listener) Listen(ctx context.Context) (<-chan struct{}, error) {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return nil, ErrAlreadyListening
	}
	l.running = true
	l.mu.Unlock()

	out := make(chan struct{}, 1)
	chord := strings.Join(l.combo, "+")

	hook.Register(hook.KeyDown, l.combo, func(hook.Event) {
		l.logger.Debug("hotkey pressed", slog.String("combo", chord))
		select {
		case out <- struct{}{}:
		default:
		}
	})

	events := hook.Start()
	done := hook.Process(events)
	l.logger.Info("hotkey listening", slog.String("combo", chord))

	go func() {
		<-ctx.Done()
		hook.End()
	}()
	go func() {
		<-done
		close(out)
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
		l.logger.Info("hotkey stopped")
	}()

	return out, nil
}
