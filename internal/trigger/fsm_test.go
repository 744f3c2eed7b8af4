package trigger

import (
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/dokzlo13/glimpsed/internal/sensor"
)

const threshold = 9000

func reading(a, b float64) sensor.LightReading {
	return sensor.LightReading{A: a, B: b}
}

func TestNextEdge(t *testing.T) {
	tests := []struct {
		name     string
		prev     EdgeState
		a, b     float64
		want     EdgeState
		wantFire bool
	}{
		{name: "a_dark/blocks_trigger", prev: EdgeState{}, a: 8000, b: 9600, want: EdgeState{}, wantFire: false},
		{name: "a_dark/clears_latch", prev: EdgeState{PrevAbove: true}, a: 8000, b: 9600, want: EdgeState{}, wantFire: false},
		{name: "b_dark/stays_low", prev: EdgeState{}, a: 9500, b: 5000, want: EdgeState{}, wantFire: false},
		{name: "b_dark/clears_latch", prev: EdgeState{PrevAbove: true}, a: 9500, b: 5000, want: EdgeState{}, wantFire: false},
		{name: "rising_edge/fires", prev: EdgeState{}, a: 9500, b: 9600, want: EdgeState{PrevAbove: true}, wantFire: true},
		{name: "sustained/no_refire", prev: EdgeState{PrevAbove: true}, a: 9500, b: 9600, want: EdgeState{PrevAbove: true}, wantFire: false},
		{name: "threshold_is_bright", prev: EdgeState{}, a: threshold, b: threshold, want: EdgeState{PrevAbove: true}, wantFire: true},
		{name: "just_below_threshold_is_dark", prev: EdgeState{}, a: 9500, b: threshold - 1, want: EdgeState{}, wantFire: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, fire := NextEdge(tt.prev, reading(tt.a, tt.b), threshold)
			if got != tt.want || fire != tt.wantFire {
				t.Errorf("NextEdge() = %+v, %v; want %+v, %v", got, fire, tt.want, tt.wantFire)
			}
		})
	}
}

func fires(a float64, bs []float64) []int {
	var idx []int
	var edge EdgeState
	for i, b := range bs {
		var fire bool
		edge, fire = NextEdge(edge, reading(a, b), threshold)
		if fire {
			idx = append(idx, i)
		}
	}
	return idx
}

func TestNextEdge_OneTriggerPerRisingEdge(t *testing.T) {
	got := fires(9500, []float64{5000, 5000, 9600, 9600, 5000, 9600})
	if len(got) != 2 {
		t.Fatalf("fired at %v, want exactly two triggers", got)
	}
	if got[0] != 2 || got[1] != 5 {
		t.Errorf("fired at %v, want [2 5]", got)
	}
}

func TestNextEdge_FiresAtIndicesOneAndFour(t *testing.T) {
	got := fires(9500, []float64{5000, 9600, 9600, 5000, 9600})
	if len(got) != 2 || got[0] != 1 || got[1] != 4 {
		t.Errorf("fired at %v, want [1 4]", got)
	}
}

func TestDarknessStep(t *testing.T) {
	t0 := time.Unix(1700000000, 0)
	at := func(a, b float64, offset time.Duration) sensor.LightReading {
		return sensor.LightReading{A: a, B: b, At: t0.Add(offset)}
	}
	started := t0

	tests := []struct {
		name      string
		since     *time.Time
		r         sensor.LightReading
		want      DarknessAction
		wantTimer bool
	}{
		{name: "both_dark/starts_timer", since: nil, r: at(100, 100, 0), want: DarknessStartTimer, wantTimer: true},
		{name: "both_dark/keeps_waiting", since: &started, r: at(100, 100, 3*time.Second), want: DarknessKeepWaiting, wantTimer: true},
		{name: "both_dark/exactly_duration_waits", since: &started, r: at(100, 100, 5*time.Second), want: DarknessKeepWaiting, wantTimer: true},
		{name: "both_dark/expired_shuts_down", since: &started, r: at(100, 100, 5500*time.Millisecond), want: DarknessShutdown, wantTimer: false},
		{name: "a_bright/leaves", since: &started, r: at(9500, 100, time.Second), want: DarknessLeave, wantTimer: false},
		{name: "b_bright/leaves", since: nil, r: at(100, 9500, 0), want: DarknessLeave, wantTimer: false},
		{name: "a_dark_only_is_not_darkness", since: nil, r: at(8000, 9500, 0), want: DarknessLeave, wantTimer: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, timer := DarknessStep(tt.since, tt.r, threshold, 5*time.Second)
			if got != tt.want {
				t.Errorf("DarknessStep() action = %v, want %v", got, tt.want)
			}
			if (timer != nil) != tt.wantTimer {
				t.Errorf("DarknessStep() timer = %v, want present=%v", timer, tt.wantTimer)
			}
		})
	}
}

func TestProperty_DarkGateBlocksAllTriggers(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 60).Draw(t, "n")
		var edge EdgeState
		for i := 0; i < n; i++ {
			a := rapid.Float64Range(0, threshold-1).Draw(t, "a")
			b := rapid.Float64Range(0, 20000).Draw(t, "b")
			var fire bool
			edge, fire = NextEdge(edge, reading(a, b), threshold)
			if fire {
				t.Fatalf("fired at sample %d with A=%v dark", i, a)
			}
		}
	})
}

func TestProperty_FiresOnlyOnRisingEdges(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 80).Draw(t, "n")
		var edge EdgeState
		prevBright := false
		for i := 0; i < n; i++ {
			a := rapid.Float64Range(0, 20000).Draw(t, "a")
			b := rapid.Float64Range(0, 20000).Draw(t, "b")
			bright := a >= threshold && b >= threshold

			var fire bool
			edge, fire = NextEdge(edge, reading(a, b), threshold)

			if want := bright && !prevBright; fire != want {
				t.Fatalf("sample %d: fire = %v, want %v (prevBright=%v bright=%v)", i, fire, want, prevBright, bright)
			}
			if edge.PrevAbove != bright {
				t.Fatalf("sample %d: latch = %v, want %v", i, edge.PrevAbove, bright)
			}
			prevBright = bright
		}
	})
}

func TestProperty_DarknessShutdownOnlyAfterSustainedDarkness(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		duration := 5 * time.Second
		now := time.Unix(1700000000, 0)
		var since *time.Time
		var episodeStart *time.Time

		n := rapid.IntRange(1, 60).Draw(t, "n")
		for i := 0; i < n; i++ {
			now = now.Add(time.Duration(rapid.IntRange(100, 1500).Draw(t, "step_ms")) * time.Millisecond)
			dark := rapid.Bool().Draw(t, "dark")
			r := sensor.LightReading{A: 20000, B: 20000, At: now}
			if dark {
				r.A, r.B = 10, 10
			}

			var action DarknessAction
			action, since = DarknessStep(since, r, threshold, duration)

			switch action {
			case DarknessLeave:
				if dark {
					t.Fatal("left darkness on a dark sample")
				}
				if since != nil {
					t.Fatal("timer survived a bright sample")
				}
				episodeStart = nil
			case DarknessStartTimer:
				if episodeStart != nil {
					t.Fatal("timer restarted inside an episode")
				}
				start := now
				episodeStart = &start
			case DarknessShutdown:
				if episodeStart == nil || now.Sub(*episodeStart) <= duration {
					t.Fatal("shutdown before darkness outlasted the duration")
				}
				if since != nil {
					t.Fatal("timer not reset after shutdown")
				}
				episodeStart = nil
			case DarknessKeepWaiting:
				if episodeStart == nil || now.Sub(*episodeStart) > duration {
					t.Fatal("kept waiting past the duration")
				}
			}
		}
	})
}

func TestStateStrings(t *testing.T) {
	states := map[State]string{
		StateIdle:          "idle",
		StateDarknessWatch: "darkness_watch",
		StateWaitForLight:  "wait_for_light",
		StateTriggered:     "triggered",
		State(42):          "unknown",
	}
	for s, want := range states {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", s, s.String(), want)
		}
	}
}
