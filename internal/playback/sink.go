// Package playback turns decoded PCM into beep streamers and hands them to a
// speaker. The newest Play replaces whatever is currently audible.
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/faiface/beep"

	"askmarie/internal/domain"
)

const resampleQuality = 4

// Speaker is the subset of beep/speaker the sink drives.
type Speaker interface {
	Clear()
	Play(s ...beep.Streamer)
}

// Sink implements ports.AudioSink.
type Sink struct {
	speaker    Speaker
	deviceRate beep.SampleRate

	mu      sync.Mutex
	current *voice
}

func NewSink(speaker Speaker, deviceRate int) *Sink {
	if deviceRate <= 0 {
		deviceRate = 44100
	}
	return &Sink{speaker: speaker, deviceRate: beep.SampleRate(deviceRate)}
}

// Play starts pcm on the speaker and blocks until it has finished, has been
// superseded by a later Play, or ctx is done.
func (s *Sink) Play(ctx context.Context, pcm domain.PcmBuffer) error {
	if err := pcm.Validate(); err != nil {
		return domain.Wrap(domain.ErrorCodePlayback, err)
	}
	if s.speaker == nil {
		return domain.Wrap(domain.ErrorCodePlayback, errors.New("no speaker available"))
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var streamer beep.Streamer = newPCMStreamer(pcm)
	if rate := beep.SampleRate(pcm.SampleRate); rate != s.deviceRate {
		streamer = beep.Resample(resampleQuality, rate, s.deviceRate, streamer)
	}

	v := &voice{done: make(chan struct{})}
	s.mu.Lock()
	if s.current != nil {
		s.current.cut()
	}
	s.current = v
	s.speaker.Clear()
	s.speaker.Play(beep.Seq(&gatedStreamer{Streamer: streamer, cutoff: &v.cutoff}, beep.Callback(v.finish)))
	s.mu.Unlock()

	select {
	case <-v.done:
		if err := streamer.Err(); err != nil {
			return domain.Wrap(domain.ErrorCodePlayback, fmt.Errorf("stream: %w", err))
		}
		return nil
	case <-ctx.Done():
		v.cut()
		return ctx.Err()
	}
}

// Stop silences the current voice, if any.
func (s *Sink) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.current.cut()
		s.current = nil
	}
	if s.speaker != nil {
		s.speaker.Clear()
	}
}

type voice struct {
	cutoff atomic.Bool
	once   sync.Once
	done   chan struct{}
}

func (v *voice) finish() {
	v.once.Do(func() { close(v.done) })
}

func (v *voice) cut() {
	v.cutoff.Store(true)
	v.finish()
}

// gatedStreamer ends its stream as soon as cutoff is set.
type gatedStreamer struct {
	beep.Streamer
	cutoff *atomic.Bool
}

func (g *gatedStreamer) Stream(samples [][2]float64) (int, bool) {
	if g.cutoff.Load() {
		return 0, false
	}
	return g.Streamer.Stream(samples)
}

// pcmStreamer plays interleaved samples as stereo. Mono is duplicated to both
// sides; channels past the second are dropped.
type pcmStreamer struct {
	samples  []float32
	channels int
	frames   int
	pos      int
}

func newPCMStreamer(pcm domain.PcmBuffer) *pcmStreamer {
	return &pcmStreamer{samples: pcm.Samples, channels: pcm.Channels, frames: pcm.FrameCount()}
}

func (p *pcmStreamer) Stream(out [][2]float64) (int, bool) {
	if p.pos >= p.frames {
		return 0, false
	}
	n := 0
	for n < len(out) && p.pos < p.frames {
		base := p.pos * p.channels
		left := float64(p.samples[base])
		right := left
		if p.channels > 1 {
			right = float64(p.samples[base+1])
		}
		out[n][0] = left
		out[n][1] = right
		n++
		p.pos++
	}
	return n, true
}

func (p *pcmStreamer) Err() error { return nil }
