// Package sensor reads the two ambient-light channels.
package sensor

import (
	"context"
	"errors"
	"time"
)

// ErrSensorUnavailable indicates a channel could not be sampled.
var ErrSensorUnavailable = errors.New("sensor unavailable")

// Channel identifies one of the two light inputs.
type Channel int

const (
	// ChannelA gates triggering: no trigger fires while it is dark.
	ChannelA Channel = iota
	// ChannelB supplies the rising edge that fires a trigger.
	ChannelB
)

// String returns the channel name.
func (c Channel) String() string {
	switch c {
	case ChannelA:
		return "A"
	case ChannelB:
		return "B"
	default:
		return "unknown"
	}
}

// Reader exposes normalized intensity readings for both channels.
type Reader interface {
	// Read samples one channel. It never blocks beyond hardware latency.
	Read(ctx context.Context, ch Channel) (float64, error)

	// Close releases any resources
	Close() error
}

// LightReading is both channels sampled at one point in time.
type LightReading struct {
	A  float64
	B  float64
	At time.Time
}

// Sample reads channel A then channel B.
func Sample(ctx context.Context, r Reader, now time.Time) (LightReading, error) {
	a, err := r.Read(ctx, ChannelA)
	if err != nil {
		return LightReading{}, err
	}
	b, err := r.Read(ctx, ChannelB)
	if err != nil {
		return LightReading{}, err
	}
	return LightReading{A: a, B: b, At: now}, nil
}
