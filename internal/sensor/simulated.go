package sensor

import (
	"context"
	"math/rand"
	"sync"
)

// Simulated returns configurable levels with random variance, for running
// the daemon away from the hardware.
type Simulated struct {
	mu        sync.Mutex
	levels    map[Channel]float64
	variation float64
}

// NewSimulated creates a reader returning a and b +/- variation.
func NewSimulated(a, b, variation float64) *Simulated {
	return &Simulated{
		levels:    map[Channel]float64{ChannelA: a, ChannelB: b},
		variation: variation,
	}
}

// Set changes the base level of a channel.
func (s *Simulated) Set(ch Channel, level float64) {
	s.mu.Lock()
	s.levels[ch] = level
	s.mu.Unlock()
}

// Read returns a simulated reading
func (s *Simulated) Read(ctx context.Context, ch Channel) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	base, ok := s.levels[ch]
	s.mu.Unlock()
	if !ok {
		return 0, ErrSensorUnavailable
	}

	v := base + (rand.Float64()-0.5)*2*s.variation
	if v < 0 {
		v = 0
	}
	return v, nil
}

// Close is a no-op for the simulated reader
func (s *Simulated) Close() error {
	return nil
}
