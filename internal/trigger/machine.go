package trigger

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/glimpsed/internal/display"
	"github.com/dokzlo13/glimpsed/internal/eventbus"
	"github.com/dokzlo13/glimpsed/internal/output"
	"github.com/dokzlo13/glimpsed/internal/sensor"
)

// Clock abstracts time for the poll loops.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

// RealClock is the wall clock.
type RealClock struct{}

// Now returns the current time
func (RealClock) Now() time.Time { return time.Now() }

// Sleep waits for d or ctx cancellation
func (RealClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Shutdowner issues the OS shutdown request.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// Publisher receives machine events. *eventbus.Bus satisfies it.
type Publisher interface {
	Publish(event eventbus.Event)
}

// Settings are the thresholds and poll timings.
type Settings struct {
	Threshold        float64
	DarknessDuration time.Duration
	DarknessPoll     time.Duration
	LightPoll        time.Duration
	MaxReadFailures  int
}

// Machine runs one trigger cycle at a time. The edge latch lives on the
// machine and carries over between cycles.
type Machine struct {
	sensors sensor.Reader
	display display.Annunciator
	led     output.PWM
	power   Shutdowner
	bus     Publisher
	clock   Clock
	s       Settings

	edge      EdgeState
	darkSince *time.Time
	state     atomic.Int32
}

// NewMachine creates a machine. bus may be nil.
func NewMachine(
	sensors sensor.Reader,
	annunciator display.Annunciator,
	led output.PWM,
	power Shutdowner,
	bus Publisher,
	clock Clock,
	s Settings,
) *Machine {
	if s.MaxReadFailures <= 0 {
		s.MaxReadFailures = 1
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &Machine{
		sensors: sensors,
		display: annunciator,
		led:     led,
		power:   power,
		bus:     bus,
		clock:   clock,
		s:       s,
	}
}

// State returns the current phase. Safe to call from any goroutine.
func (m *Machine) State() State {
	return State(m.state.Load())
}

// Edge returns the current latch.
func (m *Machine) Edge() EdgeState {
	return m.edge
}

// DarkSince returns the start of the current darkness episode, if any.
func (m *Machine) DarkSince() (time.Time, bool) {
	if m.darkSince == nil {
		return time.Time{}, false
	}
	return *m.darkSince, true
}

// Run executes one cycle: darkness watch, then wait for light. It returns
// OutcomeShutdown after sustained darkness and OutcomeTriggered on a light
// edge. An error is returned when the context ends or the sensors fail
// MaxReadFailures times in a row.
func (m *Machine) Run(ctx context.Context) (Outcome, error) {
	m.setState(StateIdle)
	m.darkSince = nil

	shutdown, err := m.watchDarkness(ctx)
	if err != nil {
		return 0, err
	}
	if shutdown {
		return OutcomeShutdown, nil
	}

	if err := m.waitForLight(ctx); err != nil {
		return 0, err
	}

	m.setState(StateTriggered)
	m.display.ShowLight()
	return OutcomeTriggered, nil
}

// watchDarkness returns true when darkness outlasted the configured duration
// and a shutdown was requested.
func (m *Machine) watchDarkness(ctx context.Context) (bool, error) {
	m.setState(StateDarknessWatch)

	failures := 0
	for {
		r, err := sensor.Sample(ctx, m.sensors, m.clock.Now())
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			failures++
			if failures >= m.s.MaxReadFailures {
				return false, fmt.Errorf("darkness watch: %w", err)
			}
			log.Warn().Err(err).Int("failures", failures).Msg("Sensor read failed, skipping sample")
		} else {
			failures = 0

			var action DarknessAction
			action, m.darkSince = DarknessStep(m.darkSince, r, m.s.Threshold, m.s.DarknessDuration)

			switch action {
			case DarknessStartTimer:
				log.Info().Float64("a", r.A).Float64("b", r.B).Msg("Both sensors are dark, starting shutdown timer")
				m.display.ShowDark()
			case DarknessShutdown:
				m.shutdown(ctx)
				return true, nil
			case DarknessLeave:
				return false, nil
			}
		}

		if err := m.clock.Sleep(ctx, m.s.DarknessPoll); err != nil {
			return false, err
		}
	}
}

func (m *Machine) shutdown(ctx context.Context) {
	log.Warn().Dur("duration", m.s.DarknessDuration).Msg("Sustained darkness on both sensors, shutting down")

	m.display.ShowShutdown()
	m.publish(eventbus.EventTypeDarknessShutdown, map[string]interface{}{
		"duration_ms": m.s.DarknessDuration.Milliseconds(),
	})
	if err := m.power.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Shutdown request failed")
	}
	m.edge = EdgeState{}
}

func (m *Machine) waitForLight(ctx context.Context) error {
	m.setState(StateWaitForLight)

	// The wait phase owns the LED until the next trigger.
	if err := m.led.SetDuty(0); err != nil {
		log.Warn().Err(err).Msg("Failed to reset LED duty")
	}
	log.Info().Msg("Waiting for light change to trigger capture")

	failures := 0
	for {
		r, err := sensor.Sample(ctx, m.sensors, m.clock.Now())
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			if failures >= m.s.MaxReadFailures {
				return fmt.Errorf("wait for light: %w", err)
			}
			log.Warn().Err(err).Int("failures", failures).Msg("Sensor read failed, skipping sample")
		} else {
			failures = 0

			var fire bool
			m.edge, fire = NextEdge(m.edge, r, m.s.Threshold)
			if fire {
				log.Info().Float64("a", r.A).Float64("b", r.B).Msg("Light detected")
				m.publish(eventbus.EventTypeTriggered, map[string]interface{}{
					"a": r.A,
					"b": r.B,
				})
				return nil
			}
		}

		if err := m.clock.Sleep(ctx, m.s.LightPoll); err != nil {
			return err
		}
	}
}

func (m *Machine) setState(s State) {
	prev := State(m.state.Swap(int32(s)))
	if prev != s {
		log.Debug().Str("from", prev.String()).Str("to", s.String()).Msg("Trigger state")
	}
}

func (m *Machine) publish(t eventbus.EventType, data map[string]interface{}) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(eventbus.Event{Type: t, Data: data})
}
