package pulse

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// recordingPWM records duty writes and flags any write made after sealed is set.
type recordingPWM struct {
	mu     sync.Mutex
	writes []int
	sealed atomic.Bool
	late   atomic.Int32
	fail   bool
}

func (r *recordingPWM) SetDuty(percent int) error {
	if r.sealed.Load() {
		r.late.Add(1)
	}
	r.mu.Lock()
	r.writes = append(r.writes, percent)
	r.mu.Unlock()
	if r.fail {
		return errors.New("i2c glitch")
	}
	return nil
}

func (r *recordingPWM) Close() error { return nil }

func (r *recordingPWM) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.writes)
}

func (r *recordingPWM) snapshot() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.writes...)
}

func waitForWrites(t *testing.T, r *recordingPWM, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for r.count() < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d writes, got %d", n, r.count())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSweep(t *testing.T) {
	got := sweep(25)
	want := []int{0, 25, 50, 75, 100, 100, 75, 50, 25, 0}
	if len(got) != len(want) {
		t.Fatalf("sweep(25) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sweep(25) = %v, want %v", got, want)
		}
	}

	if n := len(sweep(5)); n != 42 {
		t.Errorf("len(sweep(5)) = %d, want 42", n)
	}
}

func TestSession_StopJoinsBeforeReturning(t *testing.T) {
	for i := 0; i < 20; i++ {
		out := &recordingPWM{}
		c := NewController(out, 5, 100*time.Microsecond)

		s, err := c.Start()
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		waitForWrites(t, out, 3)

		s.Stop()
		out.sealed.Store(true)

		select {
		case <-s.Done():
		default:
			t.Fatal("Stop() returned before the sweep exited")
		}

		before := out.count()
		time.Sleep(5 * time.Millisecond)
		if late := out.late.Load(); late != 0 {
			t.Fatalf("%d writes observed after Stop() returned", late)
		}
		if after := out.count(); after != before {
			t.Fatalf("write count moved from %d to %d after Stop()", before, after)
		}
	}
}

func TestSession_SweepsUpThenDown(t *testing.T) {
	out := &recordingPWM{}
	c := NewController(out, 50, 50*time.Microsecond)

	s, err := c.Start()
	if err != nil {
		t.Fatal(err)
	}
	waitForWrites(t, out, 6)
	s.Stop()

	want := []int{0, 50, 100, 100, 50, 0}
	got := out.snapshot()[:6]
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("first writes = %v, want %v", got, want)
		}
	}
}

func TestController_OneSessionAtATime(t *testing.T) {
	c := NewController(&recordingPWM{}, 5, time.Millisecond)

	s, err := c.Start()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Start(); !errors.Is(err, ErrSessionActive) {
		t.Errorf("second Start() error = %v, want ErrSessionActive", err)
	}
	if !c.Active() {
		t.Error("Active() = false while session running")
	}

	s.Stop()
	s.Stop() // idempotent
	if c.Active() {
		t.Error("Active() = true after Stop()")
	}

	s2, err := c.Start()
	if err != nil {
		t.Fatalf("Start() after Stop() error = %v", err)
	}
	c.Stop()
	<-s2.Done()
}

func TestController_WriteErrorsAreSwallowed(t *testing.T) {
	out := &recordingPWM{fail: true}
	c := NewController(out, 5, 50*time.Microsecond)

	s, err := c.Start()
	if err != nil {
		t.Fatal(err)
	}
	waitForWrites(t, out, 10)
	s.Stop()
}

func TestController_CancelDoesNotBlock(t *testing.T) {
	out := &recordingPWM{}
	c := NewController(out, 5, time.Hour)

	s, err := c.Start()
	if err != nil {
		t.Fatal(err)
	}
	waitForWrites(t, out, 1)

	returned := make(chan struct{})
	go func() {
		c.Cancel()
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Cancel() blocked")
	}

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("sweep did not observe cancellation")
	}
}

func TestController_StopWithoutSession(t *testing.T) {
	c := NewController(&recordingPWM{}, 5, time.Millisecond)
	c.Stop()
	c.Cancel()
}
