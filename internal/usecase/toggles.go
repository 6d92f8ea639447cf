package usecase

import (
	"context"
	"time"
)

// Debounce forwards signals from in, dropping any that arrive within window
// of the last forwarded one. The result closes when in closes or ctx is done.
func Debounce(ctx context.Context, in <-chan struct{}, window time.Duration) <-chan struct{} {
	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		var last time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-in:
				if !ok {
					return
				}
				now := time.Now()
				if !last.IsZero() && now.Sub(last) < window {
					continue
				}
				last = now
				select {
				case out <- struct{}{}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
