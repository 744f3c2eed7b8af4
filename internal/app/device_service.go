package app

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/glimpsed/internal/pipeline"
	"github.com/dokzlo13/glimpsed/internal/trigger"
)

// TriggerRunner runs one trigger cycle. *trigger.Machine satisfies it.
type TriggerRunner interface {
	Run(ctx context.Context) (trigger.Outcome, error)
}

// CycleRunner runs one capture cycle. *pipeline.Pipeline satisfies it.
type CycleRunner interface {
	Run(ctx context.Context) (*pipeline.Artifact, error)
}

// DeviceService owns the control goroutine: it alternates trigger cycles and
// capture cycles until the context is cancelled.
type DeviceService struct {
	machine      TriggerRunner
	pipeline     CycleRunner
	startupDelay time.Duration
	backoff      time.Duration

	started atomic.Bool
	done    chan struct{}
}

// NewDeviceService creates the device loop. backoff is the pause after a
// failed trigger cycle.
func NewDeviceService(machine TriggerRunner, p CycleRunner, startupDelay, backoff time.Duration) *DeviceService {
	return &DeviceService{
		machine:      machine,
		pipeline:     p,
		startupDelay: startupDelay,
		backoff:      backoff,
		done:         make(chan struct{}),
	}
}

// Start spawns the control goroutine.
func (s *DeviceService) Start(ctx context.Context) {
	s.started.Store(true)
	go func() {
		defer close(s.done)
		s.run(ctx)
	}()
}

// Wait blocks until the control goroutine has exited or ctx expires.
func (s *DeviceService) Wait(ctx context.Context) error {
	if !s.started.Load() {
		return nil
	}
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *DeviceService) run(ctx context.Context) {
	if !sleepCtx(ctx, s.startupDelay) {
		return
	}
	log.Info().Msg("Device loop started")

	for {
		outcome, err := s.machine.Run(ctx)
		if ctx.Err() != nil {
			log.Info().Msg("Device loop stopped")
			return
		}
		if err != nil {
			log.Error().Err(err).Msg("Trigger cycle failed")
			if !sleepCtx(ctx, s.backoff) {
				return
			}
			continue
		}

		switch outcome {
		case trigger.OutcomeShutdown:
			// The OS is going down; keep watching until it does.
			log.Info().Msg("Shutdown requested, waiting for the system to halt")
			continue
		case trigger.OutcomeTriggered:
			if _, err := s.pipeline.Run(ctx); err != nil {
				if errors.Is(err, context.Canceled) && ctx.Err() != nil {
					return
				}
				// already logged by the pipeline with its cycle id
				continue
			}
		}
	}
}

// sleepCtx waits for d and reports whether ctx is still live.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
