// Package portaudio captures microphone audio through the native PortAudio
// library. It needs cgo and libportaudio at build time.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	pa "github.com/gordonklaus/portaudio"

	"askmarie/internal/audio"
	"askmarie/internal/domain"
	"askmarie/internal/ports"
)

const framesPerBuffer = 1024

// Capture opens the default input device for each recording.
type Capture struct {
	mu     sync.Mutex
	active bool
}

func New() *Capture {
	return &Capture{}
}

func (c *Capture) Start(ctx context.Context, cfg ports.CaptureConfig) (ports.CaptureHandle, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 44100
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}

	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return nil, audio.ErrAlreadyCapturing
	}
	c.active = true
	c.mu.Unlock()

	if err := pa.Initialize(); err != nil {
		c.release()
		return nil, fmt.Errorf("portaudio init: %w", err)
	}

	in := make([]float32, framesPerBuffer*cfg.Channels)
	stream, err := pa.OpenDefaultStream(cfg.Channels, 0, float64(cfg.SampleRate), framesPerBuffer, in)
	if err != nil {
		_ = pa.Terminate()
		c.release()
		return nil, fmt.Errorf("open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = pa.Terminate()
		c.release()
		return nil, fmt.Errorf("start input stream: %w", err)
	}

	maxSamples := 0
	if cfg.DurationCeiling > 0 {
		maxSamples = int(cfg.DurationCeiling.Seconds()*float64(cfg.SampleRate)) * cfg.Channels
	}

	h := &handle{
		owner:      c,
		cfg:        cfg,
		stream:     stream,
		in:         in,
		maxSamples: maxSamples,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
	go h.record(ctx)
	return h, nil
}

func (c *Capture) release() {
	c.mu.Lock()
	c.active = false
	c.mu.Unlock()
}

type handle struct {
	owner  *Capture
	cfg    ports.CaptureConfig
	stream *pa.Stream
	in     []float32

	maxSamples int
	samples    []float32
	readErr    error

	stopCh chan struct{}
	done   chan struct{}

	stopOnce sync.Once
	result   domain.PcmBuffer
	stopErr  error
}

// record reads blocks until the ceiling, Stop, or ctx cancellation.
func (h *handle) record(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-h.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}
		if err := h.stream.Read(); err != nil {
			if errors.Is(err, pa.InputOverflowed) {
				continue
			}
			h.readErr = err
			return
		}
		h.samples = append(h.samples, h.in...)
		if h.maxSamples > 0 && len(h.samples) >= h.maxSamples {
			h.samples = h.samples[:h.maxSamples]
			return
		}
	}
}

func (h *handle) Stop() (domain.PcmBuffer, error) {
	h.stopOnce.Do(func() {
		defer h.owner.release()
		close(h.stopCh)
		<-h.done

		stopErr := h.stream.Stop()
		closeErr := h.stream.Close()
		termErr := pa.Terminate()
		h.stopErr = errors.Join(h.readErr, stopErr, closeErr, termErr)

		h.result = domain.PcmBuffer{
			Samples:    h.samples,
			SampleRate: h.cfg.SampleRate,
			Channels:   h.cfg.Channels,
		}
	})
	return h.result, h.stopErr
}
