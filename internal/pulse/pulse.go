// Package pulse runs the LED breathing sweep in the background while a
// foreground operation proceeds.
package pulse

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/glimpsed/internal/output"
)

// ErrSessionActive is returned by Start while a session is still running.
var ErrSessionActive = errors.New("pulse session already active")

// Controller owns the LED while a Session is active.
type Controller struct {
	out   output.PWM
	step  int
	delay time.Duration

	mu     sync.Mutex
	active *Session
}

// NewController creates a controller sweeping in step increments with delay
// between writes.
func NewController(out output.PWM, step int, delay time.Duration) *Controller {
	if step <= 0 {
		step = 5
	}
	return &Controller{out: out, step: step, delay: delay}
}

// Session binds one background sweep to one foreground operation.
type Session struct {
	ctrl   *Controller
	cancel context.CancelFunc
	done   chan struct{}
}

// Start spawns the sweep. Only one session may be active at a time.
func (c *Controller) Start() (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		return nil, ErrSessionActive
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ctrl:   c,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.active = s

	go s.run(ctx)

	log.Debug().Int("step", c.step).Dur("delay", c.delay).Msg("Pulse session started")
	return s, nil
}

// Stop cancels the sweep and blocks until it has exited. After Stop returns
// the sweep performs no further writes. Safe to call more than once.
func (s *Session) Stop() {
	s.cancel()
	<-s.done

	s.ctrl.mu.Lock()
	if s.ctrl.active == s {
		s.ctrl.active = nil
	}
	s.ctrl.mu.Unlock()
}

// Done is closed once the sweep goroutine has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Stop stops the active session, if any, waiting for it to exit.
func (c *Controller) Stop() {
	c.mu.Lock()
	s := c.active
	c.mu.Unlock()

	if s != nil {
		s.Stop()
	}
}

// Cancel requests the active session to stop without waiting for it.
// Used on the signal path where blocking is not acceptable.
func (c *Controller) Cancel() {
	c.mu.Lock()
	s := c.active
	c.mu.Unlock()

	if s != nil {
		s.cancel()
	}
}

// Active reports whether a session is running.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Pulse sweep panicked")
		}
	}()

	timer := time.NewTimer(0)
	<-timer.C
	defer timer.Stop()

	for {
		for _, duty := range sweep(s.ctrl.step) {
			// Cancellation is checked before every write so that no write
			// can follow an observed cancel.
			if ctx.Err() != nil {
				return
			}
			if err := s.ctrl.out.SetDuty(duty); err != nil {
				log.Debug().Err(err).Int("duty", duty).Msg("Pulse write failed")
			}

			timer.Reset(s.ctrl.delay)
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
		}
	}
}

// sweep returns one 0→100→0 ramp in step increments.
func sweep(step int) []int {
	var duties []int
	for d := 0; d <= 100; d += step {
		duties = append(duties, d)
	}
	for d := 100; d >= 0; d -= step {
		duties = append(duties, d)
	}
	return duties
}
