package sensor

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"
	"periph.io/x/host/v3"
)

// single-ended inputs, in ADC input order
var singleEnded = []ads1x15.Channel{
	ads1x15.Channel0,
	ads1x15.Channel1,
	ads1x15.Channel2,
	ads1x15.Channel3,
}

// ADS1115 reads two single-ended inputs of an ADS1115 on I2C.
// Readings are raw signed 16-bit conversions at the ±4.096V range.
type ADS1115 struct {
	bus  i2c.BusCloser
	dev  *ads1x15.Dev
	pins map[Channel]ads1x15.PinADC
}

// OpenADS1115 initializes the host drivers, opens the bus and binds the
// two channels to ADC inputs inputA and inputB (0..3).
func OpenADS1115(busName string, address uint16, inputA, inputB int) (*ADS1115, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("failed to open i2c bus %q: %w", busName, err)
	}

	dev, err := ads1x15.NewADS1115(bus, &ads1x15.Opts{I2cAddress: address})
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("failed to open ADS1115 at 0x%02x: %w", address, err)
	}

	s := &ADS1115{bus: bus, dev: dev, pins: make(map[Channel]ads1x15.PinADC, 2)}
	for ch, input := range map[Channel]int{ChannelA: inputA, ChannelB: inputB} {
		if input < 0 || input >= len(singleEnded) {
			s.Close()
			return nil, fmt.Errorf("channel %s: input %d out of range", ch, input)
		}
		pin, err := dev.PinForChannel(singleEnded[input], 4096*physic.MilliVolt, 128*physic.Hertz, ads1x15.SaveEnergy)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("channel %s: %w", ch, err)
		}
		s.pins[ch] = pin
	}

	log.Info().
		Str("bus", busName).
		Uint16("address", address).
		Int("input_a", inputA).
		Int("input_b", inputB).
		Msg("ADS1115 light sensors ready")
	return s, nil
}

// Read returns the raw conversion for the channel.
func (s *ADS1115) Read(ctx context.Context, ch Channel) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	pin, ok := s.pins[ch]
	if !ok {
		return 0, fmt.Errorf("%w: channel %s not bound", ErrSensorUnavailable, ch)
	}
	sample, err := pin.Read()
	if err != nil {
		return 0, fmt.Errorf("%w: channel %s: %v", ErrSensorUnavailable, ch, err)
	}
	return float64(sample.Raw), nil
}

// Close halts the pins and releases the bus.
func (s *ADS1115) Close() error {
	for ch, pin := range s.pins {
		if err := pin.Halt(); err != nil {
			log.Debug().Err(err).Str("channel", ch.String()).Msg("Failed to halt ADC pin")
		}
	}
	return s.bus.Close()
}
