package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

// CaptureConfig describes the microphone stream to open.
type CaptureConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// Stream is an open microphone producing 16-bit little-endian PCM.
// Stop releases the device and is safe to call more than once.
type Stream interface {
	io.Reader
	Stop() error
}

// Capture opens microphone streams.
type Capture interface {
	Start(ctx context.Context, cfg CaptureConfig) (Stream, error)
}

// FFmpegCapture streams microphone PCM audio using an ffmpeg child process.
type FFmpegCapture struct {
	command     string
	startupWait time.Duration
	stopGrace   time.Duration
}

// NewFFmpegCapture returns a capture that shells out to command (ffmpeg by default)
func NewFFmpegCapture(command string) *FFmpegCapture {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFmpegCapture{
		command:     command,
		startupWait: 250 * time.Millisecond,
		stopGrace:   1200 * time.Millisecond,
	}
}

func (c *FFmpegCapture) Start(ctx context.Context, cfg CaptureConfig) (Stream, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	}

	// The read end is ours, so Wait never closes it under the reader and the
	// tail ffmpeg flushes on interrupt stays readable until EOF.
	stdout, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create %s stdout pipe: %w", c.command, err)
	}

	cmd := exec.CommandContext(ctx, c.command, args...)
	stderr := &lockedBuffer{}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderr

	err = cmd.Start()
	_ = stdoutW.Close()
	if err != nil {
		_ = stdout.Close()
		return nil, fmt.Errorf("failed to start %s: %w", c.command, err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	// A device the process cannot open makes it exit almost immediately.
	select {
	case err := <-waitErr:
		_ = stdout.Close()
		if err != nil {
			return nil, fmt.Errorf("%s exited before capture started: %w: %s", c.command, err, stderr.Trimmed())
		}
		return nil, fmt.Errorf("%s exited before capture started", c.command)
	case <-ctx.Done():
		_ = stdout.Close()
		return nil, ctx.Err()
	case <-time.After(c.startupWait):
	}

	return &ffmpegStream{
		stdout:    stdout,
		stderr:    stderr,
		process:   cmd.Process,
		waitErr:   waitErr,
		drained:   make(chan struct{}),
		stopGrace: c.stopGrace,
	}, nil
}

type ffmpegStream struct {
	stdout *os.File
	stderr *lockedBuffer

	process   *os.Process
	waitErr   <-chan error
	stopGrace time.Duration

	drained   chan struct{}
	drainOnce sync.Once

	stopOnce sync.Once
	stopErr  error
}

func (s *ffmpegStream) Read(p []byte) (int, error) {
	n, err := s.stdout.Read(p)
	if err != nil {
		s.drainOnce.Do(func() { close(s.drained) })
	}
	return n, err
}

// Stop interrupts the process so it flushes, then kills it after the grace
// period. The pipe is closed once a reader has drained it to EOF.
func (s *ffmpegStream) Stop() error {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		case <-time.After(s.stopGrace):
			if s.process != nil {
				_ = s.process.Kill()
			}
			if err, ok := <-s.waitErr; ok {
				s.stopErr = normalizeStopErr(err)
			}
		}

		// Give the reader the flushed tail before closing the pipe.
		select {
		case <-s.drained:
		case <-time.After(s.stopGrace):
		}

		if closeErr := s.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) && s.stopErr == nil {
			s.stopErr = closeErr
		}

		if s.stopErr != nil {
			if msg := s.stderr.Trimmed(); msg != "" {
				s.stopErr = fmt.Errorf("%w: %s", s.stopErr, msg)
			}
		}
	})

	return s.stopErr
}

// An interrupted ffmpeg exits non-zero; that is the normal way to end capture.
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

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Trimmed() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(bytes.TrimSpace(b.buf.Bytes()))
}
