package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
)

// Output plays raw mono 16-bit PCM to the default speaker.
type Output interface {
	Play(ctx context.Context, pcm []byte, sampleRate int) error
}

// FFplayOutput pipes PCM into an ffplay child process.
// Cancelling ctx kills the process and ends playback immediately.
type FFplayOutput struct {
	command string
}

func NewFFplayOutput(command string) *FFplayOutput {
	if command == "" {
		command = "ffplay"
	}
	return &FFplayOutput{command: command}
}

func (o *FFplayOutput) Play(ctx context.Context, pcm []byte, sampleRate int) error {
	if len(pcm) == 0 {
		return nil
	}
	if sampleRate <= 0 {
		return fmt.Errorf("invalid playback sample rate %d", sampleRate)
	}

	args := []string{
		"-nodisp",
		"-autoexit",
		"-hide_banner",
		"-loglevel", "error",
		"-f", "s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", "1",
		"-i", "-",
	}

	cmd := exec.CommandContext(ctx, o.command, args...)
	cmd.Stdin = bytes.NewReader(pcm)
	stderr := &lockedBuffer{}
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s playback failed: %w: %s", o.command, err, stderr.Trimmed())
	}
	return nil
}
