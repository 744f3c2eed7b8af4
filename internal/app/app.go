package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/glimpsed/internal/config"
)

// App is the main application container that manages all services and their lifecycle.
type App struct {
	cfg      *config.Config
	services *Services
	ctx      context.Context
	cancel   context.CancelFunc
	shutdown *ShutdownHandler
}

// New creates a new App instance with all services initialized but not started.
func New(cfg *config.Config) (*App, error) {
	services, err := NewServices(cfg)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:      cfg,
		services: services,
	}, nil
}

// Start installs the signal handler and starts all services.
func (a *App) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	a.shutdown = NewShutdownHandler(a.services.Pulse, a.services.Hardware.LED, a.cancel)
	a.shutdown.Install()

	if err := a.services.Start(a.ctx); err != nil {
		return err
	}

	log.Info().Str("hardware", a.cfg.Hardware.Mode).Msg("glimpsed started")
	return nil
}

// Stop gracefully shuts down all services within the configured timeout.
func (a *App) Stop() error {
	log.Info().Msg("Shutting down...")

	if a.cancel != nil {
		a.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.GetShutdownTimeout())
	defer cancel()

	var err error
	if a.services != nil {
		err = a.services.Stop(ctx)
	}

	if a.shutdown != nil {
		a.shutdown.Uninstall()
	}
	return err
}

// Wait blocks until the application context is cancelled.
func (a *App) Wait() {
	if a.ctx != nil {
		<-a.ctx.Done()
	}
}
