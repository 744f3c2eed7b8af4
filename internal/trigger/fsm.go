// Package trigger decides, from the two light channels, when the device
// powers down for darkness and when a light edge starts a capture cycle.
package trigger

import (
	"time"

	"github.com/dokzlo13/glimpsed/internal/sensor"
)

// State is the phase of one trigger cycle.
type State int32

const (
	StateIdle State = iota
	StateDarknessWatch
	StateWaitForLight
	StateTriggered
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDarknessWatch:
		return "darkness_watch"
	case StateWaitForLight:
		return "wait_for_light"
	case StateTriggered:
		return "triggered"
	default:
		return "unknown"
	}
}

// Outcome is how a cycle of the machine ended.
type Outcome int

const (
	// OutcomeTriggered means a capture should run.
	OutcomeTriggered Outcome = iota
	// OutcomeShutdown means sustained darkness requested an OS shutdown.
	OutcomeShutdown
)

// String returns a human-readable name for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeTriggered:
		return "triggered"
	case OutcomeShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// DarknessAction is what the darkness watch does with one sample.
type DarknessAction int

const (
	// DarknessStartTimer starts a new darkness episode.
	DarknessStartTimer DarknessAction = iota
	// DarknessKeepWaiting continues an episode that has not yet expired.
	DarknessKeepWaiting
	// DarknessShutdown ends an expired episode with a shutdown.
	DarknessShutdown
	// DarknessLeave clears the timer: at least one channel is bright.
	DarknessLeave
)

// String returns a human-readable name for the action.
func (a DarknessAction) String() string {
	switch a {
	case DarknessStartTimer:
		return "start_timer"
	case DarknessKeepWaiting:
		return "keep_waiting"
	case DarknessShutdown:
		return "shutdown"
	case DarknessLeave:
		return "leave"
	default:
		return "unknown"
	}
}

// EdgeState is the rising-edge latch on channel B.
type EdgeState struct {
	PrevAbove bool
}

// IsDark reports whether a level is below threshold.
func IsDark(level, threshold float64) bool {
	return level < threshold
}

// BothDark reports whether both channels are below threshold. Darkness is
// the conjunction: one dark channel is not darkness.
func BothDark(r sensor.LightReading, threshold float64) bool {
	return IsDark(r.A, threshold) && IsDark(r.B, threshold)
}

// DarknessStep advances the darkness timer by one sample. since is the start
// of the current episode, nil when there is none. The returned timer is nil
// whenever the episode ended, by light or by shutdown.
func DarknessStep(since *time.Time, r sensor.LightReading, threshold float64, duration time.Duration) (DarknessAction, *time.Time) {
	if !BothDark(r, threshold) {
		return DarknessLeave, nil
	}
	if since == nil {
		start := r.At
		return DarknessStartTimer, &start
	}
	if r.At.Sub(*since) > duration {
		return DarknessShutdown, nil
	}
	return DarknessKeepWaiting, since
}

// NextEdge advances the latch by one sample and reports whether the sample
// is a trigger. Channel A gates: while it is dark the latch is forced low.
// Only the transition of B from dark to bright fires; sustained brightness
// does not.
func NextEdge(prev EdgeState, r sensor.LightReading, threshold float64) (EdgeState, bool) {
	switch {
	case IsDark(r.A, threshold):
		return EdgeState{PrevAbove: false}, false
	case IsDark(r.B, threshold):
		return EdgeState{PrevAbove: false}, false
	case !prev.PrevAbove:
		return EdgeState{PrevAbove: true}, true
	default:
		return prev, false
	}
}
