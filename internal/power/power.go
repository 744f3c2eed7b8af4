// Package power issues the privileged OS shutdown request.
package power

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"
)

// Shutdowner runs a shutdown command.
type Shutdowner struct {
	command []string
	dryRun  bool
	run     func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// New creates a Shutdowner. With dryRun the request is only logged.
func New(command []string, dryRun bool) *Shutdowner {
	return &Shutdowner{
		command: command,
		dryRun:  dryRun,
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		},
	}
}

// Shutdown requests the OS to power off.
func (s *Shutdowner) Shutdown(ctx context.Context) error {
	if len(s.command) == 0 {
		return errors.New("no shutdown command configured")
	}

	cmdline := strings.Join(s.command, " ")
	if s.dryRun {
		log.Warn().Str("command", cmdline).Msg("Dry run: skipping OS shutdown")
		return nil
	}

	log.Warn().Str("command", cmdline).Msg("Requesting OS shutdown")
	out, err := s.run(ctx, s.command[0], s.command[1:]...)
	if err != nil {
		return fmt.Errorf("shutdown command %q failed: %w (output: %s)", cmdline, err, strings.TrimSpace(string(out)))
	}
	return nil
}
