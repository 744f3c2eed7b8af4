package app

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/glimpsed/internal/config"
	"github.com/dokzlo13/glimpsed/internal/display"
	"github.com/dokzlo13/glimpsed/internal/output"
	"github.com/dokzlo13/glimpsed/internal/sensor"
)

// Hardware groups the device peripherals.
type Hardware struct {
	Sensors sensor.Reader
	LED     output.PWM
	Panel   display.Panel
}

// OpenHardware opens the peripherals selected by cfg.Hardware.Mode.
func OpenHardware(cfg *config.Config) (*Hardware, error) {
	hw := &Hardware{}

	if cfg.Hardware.IsSimulated() {
		log.Warn().Msg("Running with simulated sensors and LED")
		hw.Sensors = sensor.NewSimulated(cfg.Sensors.SimulatedA, cfg.Sensors.SimulatedB, cfg.Sensors.Variation)
		hw.LED = output.NewNull()
	} else {
		adc, err := sensor.OpenADS1115(cfg.Sensors.I2CBus, cfg.Sensors.I2CAddress, cfg.Sensors.ChannelA, cfg.Sensors.ChannelB)
		if err != nil {
			return nil, fmt.Errorf("light sensors: %w", err)
		}
		hw.Sensors = adc

		led, err := output.OpenRPIO(cfg.LED.Pin, cfg.LED.Frequency)
		if err != nil {
			hw.Close()
			return nil, fmt.Errorf("status led: %w", err)
		}
		hw.LED = led
	}

	panel, err := openPanel(cfg.Display)
	if err != nil {
		hw.Close()
		return nil, fmt.Errorf("display: %w", err)
	}
	hw.Panel = panel

	return hw, nil
}

func openPanel(cfg config.DisplayConfig) (display.Panel, error) {
	switch cfg.Driver {
	case config.DisplayWaveshare:
		// The panel is portrait; landscape frames are rotated before drawing.
		return display.OpenWaveshare("", cfg.Height, cfg.Width)
	case config.DisplayPNG:
		return display.NewPNGFile(cfg.PNGPath), nil
	default:
		return display.Discard{}, nil
	}
}

// Close releases every opened peripheral. The LED is driven low first.
func (h *Hardware) Close() {
	if h.LED != nil {
		if err := h.LED.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close LED")
		}
	}
	if h.Panel != nil {
		if err := h.Panel.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close display")
		}
	}
	if h.Sensors != nil {
		if err := h.Sensors.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close sensors")
		}
	}
}
