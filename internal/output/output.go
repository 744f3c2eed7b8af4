// Package output drives the single PWM-capable status LED.
package output

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/stianeikeland/go-rpio/v4"
)

// PWM is a duty-cycle output. Duty is a percentage in 0..100.
//
// Implementations do not serialize writers; callers own exclusivity.
type PWM interface {
	SetDuty(percent int) error
	Close() error
}

// cycle length in PWM clock ticks; one tick per duty percent
const cycleLen = 100

// RPIO is hardware PWM on a Raspberry Pi pin via /dev/gpiomem.
type RPIO struct {
	pin       rpio.Pin
	closeOnce sync.Once
}

// OpenRPIO maps GPIO memory and configures pin (BCM numbering) for PWM
// at the given output frequency.
func OpenRPIO(pin, frequency int) (*RPIO, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open gpio memory: %w", err)
	}

	p := rpio.Pin(pin)
	p.Mode(rpio.Pwm)
	// PWM output frequency is the clock frequency divided by the cycle length
	p.Freq(frequency * cycleLen)
	p.DutyCycle(0, cycleLen)
	rpio.StartPwm()

	log.Info().Int("pin", pin).Int("frequency", frequency).Msg("PWM output ready")
	return &RPIO{pin: p}, nil
}

// SetDuty changes the duty cycle.
func (o *RPIO) SetDuty(percent int) error {
	o.pin.DutyCycle(uint32(clamp(percent)), cycleLen)
	return nil
}

// Close drives the pin low and unmaps GPIO memory.
func (o *RPIO) Close() error {
	var err error
	o.closeOnce.Do(func() {
		o.pin.DutyCycle(0, cycleLen)
		rpio.StopPwm()
		o.pin.Output()
		o.pin.Low()
		err = rpio.Close()
	})
	return err
}

// Null records the last duty without driving hardware.
type Null struct {
	mu   sync.Mutex
	duty int
}

// NewNull creates an output used in simulated mode.
func NewNull() *Null {
	return &Null{}
}

// SetDuty stores the duty
func (o *Null) SetDuty(percent int) error {
	o.mu.Lock()
	o.duty = clamp(percent)
	o.mu.Unlock()
	log.Trace().Int("duty", percent).Msg("LED duty")
	return nil
}

// Duty returns the last duty written.
func (o *Null) Duty() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.duty
}

// Close is a no-op
func (o *Null) Close() error {
	return nil
}

func clamp(percent int) int {
	switch {
	case percent < 0:
		return 0
	case percent > 100:
		return 100
	default:
		return percent
	}
}
