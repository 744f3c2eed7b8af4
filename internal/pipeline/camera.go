package pipeline

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// StillCamera captures with libcamera-still (or a compatible command).
type StillCamera struct {
	command   string
	extraArgs []string
	run       func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewStillCamera creates a camera invoking command.
func NewStillCamera(command string, extraArgs []string) *StillCamera {
	return &StillCamera{
		command:   command,
		extraArgs: extraArgs,
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		},
	}
}

// Capture writes a width x height still to path. A non-zero exit is an
// ErrCaptureFailed.
func (c *StillCamera) Capture(ctx context.Context, path string, width, height int) error {
	args := []string{
		"-o", path,
		"--width", strconv.Itoa(width),
		"--height", strconv.Itoa(height),
		"--nopreview",
	}
	args = append(args, c.extraArgs...)

	log.Info().Str("command", c.command).Str("path", path).Msg("Taking photo")
	out, err := c.run(ctx, c.command, args...)
	if err != nil {
		return fmt.Errorf("%w: %s: %v: %s", ErrCaptureFailed, c.command, err, strings.TrimSpace(string(out)))
	}
	return nil
}
