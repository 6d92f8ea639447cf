package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"askmarie/internal/domain"
	"askmarie/internal/ports"
)

// ErrAlreadyCapturing is returned by every capture backend when the device
// is already held by a capture that has not been stopped.
var ErrAlreadyCapturing = errors.New("already capturing audio")

// FFMPEGCapture records microphone PCM using ffmpeg.
type FFMPEGCapture struct {
	command     string
	inputFormat string
	inputDevice string

	mu     sync.Mutex
	active bool
}

func NewFFMPEGCapture(command, inputFormat, inputDevice string) *FFMPEGCapture {
	if command == "" {
		command = "ffmpeg"
	}
	if inputFormat == "" {
		inputFormat = "pulse"
	}
	if inputDevice == "" {
		inputDevice = "default"
	}
	return &FFMPEGCapture{command: command, inputFormat: inputFormat, inputDevice: inputDevice}
}

func (c *FFMPEGCapture) Start(ctx context.Context, cfg ports.CaptureConfig) (ports.CaptureHandle, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 44100
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}

	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return nil, ErrAlreadyCapturing
	}
	c.active = true
	c.mu.Unlock()

	handle, err := c.start(ctx, cfg)
	if err != nil {
		c.release()
		return nil, err
	}
	return handle, nil
}

func (c *FFMPEGCapture) start(ctx context.Context, cfg ports.CaptureConfig) (*ffmpegCapture, error) {
	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", c.inputFormat,
		"-i", c.inputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
	}
	if cfg.DurationCeiling > 0 {
		args = append(args, "-t", strconv.FormatFloat(cfg.DurationCeiling.Seconds(), 'f', 3, 64))
	}
	args = append(args, "-f", "s16le", "-")

	cmd := exec.CommandContext(ctx, c.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	capture := &ffmpegCapture{
		owner:    c,
		cfg:      cfg,
		process:  cmd.Process,
		stderr:   &stderr,
		readDone: make(chan struct{}),
		waitErr:  make(chan error, 1),
	}

	go capture.collect(stdout)
	go func() {
		<-capture.readDone
		capture.waitErr <- cmd.Wait()
		close(capture.waitErr)
	}()

	select {
	case err := <-capture.waitErr:
		if capture.pcmLen() > 0 {
			// The recorder already reached its ceiling; keep the samples.
			capture.earlyErr = normalizeStopErr(err)
			capture.exited = true
			return capture, nil
		}
		if err != nil {
			return nil, fmt.Errorf("ffmpeg exited before capture started: %w: %s", err, stringsTrimSpaceSafe(stderr.String()))
		}
		return nil, errors.New("ffmpeg exited before capture started")
	case <-time.After(250 * time.Millisecond):
	}

	return capture, nil
}

func (c *FFMPEGCapture) release() {
	c.mu.Lock()
	c.active = false
	c.mu.Unlock()
}

type ffmpegCapture struct {
	owner *FFMPEGCapture
	cfg   ports.CaptureConfig

	process *os.Process
	stderr  *bytes.Buffer

	pcmMu sync.Mutex
	pcm   []byte

	readDone chan struct{}
	waitErr  chan error
	exited   bool
	earlyErr error

	stopOnce sync.Once
	result   domain.PcmBuffer
	stopErr  error
}

func (s *ffmpegCapture) collect(stdout io.ReadCloser) {
	defer close(s.readDone)
	buf := make([]byte, 4096)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			s.pcmMu.Lock()
			s.pcm = append(s.pcm, buf[:n]...)
			s.pcmMu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

func (s *ffmpegCapture) pcmLen() int {
	s.pcmMu.Lock()
	defer s.pcmMu.Unlock()
	return len(s.pcm)
}

// Stop interrupts the recorder (if still running) and returns the captured
// samples as normalized floats.
func (s *ffmpegCapture) Stop() (domain.PcmBuffer, error) {
	s.stopOnce.Do(func() {
		defer s.owner.release()

		if s.exited {
			s.stopErr = s.earlyErr
		} else {
			s.stopErr = s.interruptAndWait()
		}

		if s.stopErr != nil && s.stderr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, stringsTrimSpaceSafe(s.stderr.String()))
		}

		s.pcmMu.Lock()
		raw := s.pcm
		s.pcm = nil
		s.pcmMu.Unlock()

		s.result = pcmFromS16LE(raw, s.cfg.SampleRate, s.cfg.Channels)
	})

	return s.result, s.stopErr
}

func (s *ffmpegCapture) interruptAndWait() error {
	if s.process != nil {
		_ = s.process.Signal(os.Interrupt)
	}

	select {
	case err, ok := <-s.waitErr:
		if ok {
			return normalizeStopErr(err)
		}
		return nil
	case <-time.After(1200 * time.Millisecond):
		if s.process != nil {
			_ = s.process.Kill()
		}
		err, ok := <-s.waitErr
		if ok {
			return normalizeStopErr(err)
		}
		return nil
	}
}

// pcmFromS16LE converts interleaved little-endian int16 bytes to floats,
// dropping any trailing partial frame.
func pcmFromS16LE(raw []byte, sampleRate, channels int) domain.PcmBuffer {
	frameBytes := 2 * channels
	usable := len(raw) - len(raw)%frameBytes
	samples := make([]float32, usable/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(raw[i*2:]))
		samples[i] = float32(v) / 32768
	}
	return domain.PcmBuffer{Samples: samples, SampleRate: sampleRate, Channels: channels}
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func stringsTrimSpaceSafe(input string) string {
	if input == "" {
		return input
	}
	return string(bytes.TrimSpace([]byte(input)))
}
