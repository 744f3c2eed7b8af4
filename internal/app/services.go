package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/glimpsed/internal/config"
	"github.com/dokzlo13/glimpsed/internal/credentials"
	"github.com/dokzlo13/glimpsed/internal/db"
	"github.com/dokzlo13/glimpsed/internal/describe"
	"github.com/dokzlo13/glimpsed/internal/display"
	"github.com/dokzlo13/glimpsed/internal/eventbus"
	"github.com/dokzlo13/glimpsed/internal/ledger"
	"github.com/dokzlo13/glimpsed/internal/pipeline"
	"github.com/dokzlo13/glimpsed/internal/power"
	"github.com/dokzlo13/glimpsed/internal/pulse"
	"github.com/dokzlo13/glimpsed/internal/trigger"
	"github.com/dokzlo13/glimpsed/internal/upload"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB     *db.DB
	Ledger *ledger.Ledger
	Bus    *eventbus.Bus

	// Peripherals and the collaborators built on them
	Hardware *Hardware
	Display  *display.Frames
	Pulse    *pulse.Controller
	Machine  *trigger.Machine
	Pipeline *pipeline.Pipeline

	// High-level services
	Device  *DeviceService
	Hooks   *HooksService
	Events  *EventService
	Cleanup *LedgerService
	Health  *HealthService
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	// Credentials first: without them no cycle can complete
	uploader, describer, err := newRemotes(cfg)
	if err != nil {
		return nil, err
	}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database
	s.Ledger = ledger.New(database.DB)

	s.Bus = eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())

	s.Hardware, err = OpenHardware(cfg)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.Display, err = display.NewFrames(s.Hardware.Panel, display.Options{
		Width:           cfg.Display.Width,
		Height:          cfg.Display.Height,
		Rotate:          cfg.Display.Rotate || cfg.Display.Driver == config.DisplayWaveshare,
		FontPath:        cfg.Display.FontPath,
		MinSize:         cfg.Display.MinFontSize,
		MaxSize:         cfg.Display.MaxFontSize,
		Settle:          cfg.Display.Settle.Duration(),
		TextSettle:      cfg.Display.TextSettle.Duration(),
		ShutdownMessage: cfg.Display.ShutdownMessage,
	})
	if err != nil {
		s.Close()
		return nil, err
	}

	s.Pulse = pulse.NewController(s.Hardware.LED, cfg.LED.PulseStep, cfg.LED.PulseStepDelay.Duration())

	s.Machine = trigger.NewMachine(
		s.Hardware.Sensors,
		s.Display,
		s.Hardware.LED,
		power.New(cfg.Power.Command, cfg.Power.DryRun),
		s.Bus,
		trigger.RealClock{},
		trigger.Settings{
			Threshold:        cfg.Sensors.Threshold,
			DarknessDuration: cfg.Trigger.DarknessDuration.Duration(),
			DarknessPoll:     cfg.Trigger.DarknessPoll.Duration(),
			LightPoll:        cfg.Trigger.LightPoll.Duration(),
			MaxReadFailures:  cfg.Trigger.MaxReadFailures,
		},
	)

	s.Pipeline = pipeline.New(
		s.Hardware.LED,
		s.Pulse,
		pipeline.NewStillCamera(cfg.Capture.Command, cfg.Capture.ExtraArgs),
		uploader,
		describer,
		s.Display,
		s.Bus,
		pipeline.Settings{
			ImagePath:       cfg.Capture.ImagePath,
			Width:           cfg.Capture.Width,
			Height:          cfg.Capture.Height,
			FlashSettle:     cfg.Capture.FlashSettle.Duration(),
			Annotate:        cfg.Upload.AnnotateEnabled(),
			CaptureTimeout:  cfg.Capture.Timeout.Duration(),
			UploadTimeout:   cfg.Upload.Timeout.Duration(),
			DescribeTimeout: cfg.Describe.Timeout.Duration(),
			AnnotateTimeout: cfg.Upload.AnnotateTimeout.Duration(),
		},
	)

	s.Device = NewDeviceService(s.Machine, s.Pipeline, cfg.StartupDelay.Duration(), cfg.Trigger.DarknessPoll.Duration())

	s.Hooks = NewHooksService(cfg, cfg.EventBus.GetQueueSize())
	s.Events = NewEventService(s.Bus, s.Ledger, s.Hooks)
	s.Cleanup = NewLedgerService(s.Ledger, cfg.Ledger.CleanupInterval.Duration(), time.Duration(cfg.Ledger.RetentionDays)*24*time.Hour)
	s.Health = NewHealthService(cfg, s.Machine, s.Ledger)

	return s, nil
}

// newRemotes builds the uploader and describer from the credential bundles.
func newRemotes(cfg *config.Config) (*upload.Cloudinary, *describe.Client, error) {
	upBundle, err := credentials.Load(cfg.Credentials.Upload)
	if err != nil {
		return nil, nil, err
	}
	upCreds, err := upBundle.Require(upload.CloudNameEnv, upload.APIKeyEnv, upload.APISecretEnv)
	if err != nil {
		return nil, nil, err
	}
	uploader, err := upload.FromCredentials(upCreds, cfg.Upload.Folder)
	if err != nil {
		return nil, nil, err
	}

	descBundle, err := credentials.Load(cfg.Credentials.Describe)
	if err != nil {
		return nil, nil, err
	}
	descCreds, err := descBundle.Require(describe.APIKeyEnv)
	if err != nil {
		return nil, nil, err
	}
	describer := describe.New(descCreds[describe.APIKeyEnv], cfg.Describe.BaseURL, describe.PromptConfig{
		System:      cfg.Describe.System,
		User:        cfg.Describe.User,
		Model:       cfg.Describe.Model,
		Temperature: cfg.Describe.GetTemperature(),
		MaxTokens:   cfg.Describe.MaxTokens,
	})

	return uploader, describer, nil
}

// Start starts all services in the correct order.
func (s *Services) Start(ctx context.Context) error {
	// Load the hook script before any event can be published
	if err := s.Hooks.LoadScript(); err != nil {
		return err
	}
	s.Events.Start()

	s.Hooks.Start(ctx)
	s.Cleanup.Start(ctx)
	s.Health.Start(ctx)
	s.Device.Start(ctx)

	return nil
}

// Stop waits for the device loop to leave the current cycle, then releases
// all resources. The pulse session is joined before the LED is closed.
func (s *Services) Stop(ctx context.Context) error {
	if s.Device != nil {
		if err := s.Device.Wait(ctx); err != nil {
			log.Warn().Err(err).Msg("Device loop did not stop in time")
		}
	}
	if s.Pulse != nil {
		s.Pulse.Stop()
	}
	if s.Bus != nil {
		s.Bus.Close(ctx)
	}
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Hooks != nil {
		s.Hooks.Close()
	}
	if s.Hardware != nil {
		s.Hardware.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
