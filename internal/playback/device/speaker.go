// Package device opens the system audio output through beep/speaker. It
// needs cgo and an ALSA/CoreAudio/WASAPI backend at build time.
package device

import (
	"fmt"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
)

// Speaker adapts the process-wide beep speaker to playback.Speaker.
type Speaker struct {
	closeOnce sync.Once
}

// Open initializes the output device at sampleRate with a mixer buffer of
// the given length.
func Open(sampleRate int, buffer time.Duration) (*Speaker, error) {
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	if buffer <= 0 {
		buffer = 100 * time.Millisecond
	}
	rate := beep.SampleRate(sampleRate)
	if err := speaker.Init(rate, rate.N(buffer)); err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	return &Speaker{}, nil
}

func (s *Speaker) Clear() { speaker.Clear() }

func (s *Speaker) Play(streamers ...beep.Streamer) { speaker.Play(streamers...) }

func (s *Speaker) Close() error {
	s.closeOnce.Do(func() {
		speaker.Clear()
		speaker.Close()
	})
	return nil
}
