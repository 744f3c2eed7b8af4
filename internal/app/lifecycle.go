package app

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/glimpsed/internal/output"
)

// Canceller stops the LED sweep without waiting. *pulse.Controller satisfies it.
type Canceller interface {
	Cancel()
}

// ShutdownHandler reacts to SIGINT/SIGTERM. The first signal silences the
// LED and cancels the process context; the second exits immediately.
// Nothing it does blocks.
type ShutdownHandler struct {
	pulse  Canceller
	led    output.PWM
	cancel context.CancelFunc
	exit   func(code int)

	mu       sync.Mutex
	received int

	sigs chan os.Signal
	stop chan struct{}
	once sync.Once
}

// NewShutdownHandler creates a handler. pulse and led may be nil before
// hardware is opened.
func NewShutdownHandler(pulse Canceller, led output.PWM, cancel context.CancelFunc) *ShutdownHandler {
	return &ShutdownHandler{
		pulse:  pulse,
		led:    led,
		cancel: cancel,
		exit:   os.Exit,
		stop:   make(chan struct{}),
	}
}

// Install registers for SIGINT and SIGTERM.
func (h *ShutdownHandler) Install() {
	h.sigs = make(chan os.Signal, 2)
	signal.Notify(h.sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		for {
			select {
			case sig := <-h.sigs:
				h.Handle(sig)
			case <-h.stop:
				return
			}
		}
	}()
}

// Uninstall stops signal delivery.
func (h *ShutdownHandler) Uninstall() {
	h.once.Do(func() {
		if h.sigs != nil {
			signal.Stop(h.sigs)
		}
		close(h.stop)
	})
}

// Handle processes one signal.
func (h *ShutdownHandler) Handle(sig os.Signal) {
	h.mu.Lock()
	h.received++
	n := h.received
	h.mu.Unlock()

	if n > 1 {
		log.Warn().Str("signal", sig.String()).Msg("Second signal received, exiting immediately")
		h.exit(1)
		return
	}

	log.Warn().Str("signal", sig.String()).Msg("Received shutdown signal")

	if h.pulse != nil {
		h.pulse.Cancel()
	}
	if h.led != nil {
		if err := h.led.SetDuty(0); err != nil {
			log.Error().Err(err).Msg("Failed to turn off LED")
		}
	}
	h.cancel()
}

// Received reports whether a shutdown signal arrived.
func (h *ShutdownHandler) Received() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.received > 0
}
