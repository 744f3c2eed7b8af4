// Package pipeline runs one capture cycle: capture, externalize, describe,
// present.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/glimpsed/internal/display"
	"github.com/dokzlo13/glimpsed/internal/eventbus"
	"github.com/dokzlo13/glimpsed/internal/output"
	"github.com/dokzlo13/glimpsed/internal/pulse"
)

// ErrCaptureFailed is returned when the still-capture process fails.
var ErrCaptureFailed = errors.New("capture failed")

// Stage names, used in errors and events
const (
	StageCapture  = "capture"
	StageUpload   = "upload"
	StageDescribe = "describe"
	StagePresent  = "present"
)

// Camera takes one still.
type Camera interface {
	Capture(ctx context.Context, path string, width, height int) error
}

// Upload is where an externalized artifact can be found.
type Upload struct {
	Locator  string // public URL
	PublicID string
}

// Externalizer publishes artifacts and annotates them afterwards.
type Externalizer interface {
	Upload(ctx context.Context, path string) (Upload, error)
	Annotate(ctx context.Context, publicID, text string) error
}

// Describer produces free text about the image at locator.
type Describer interface {
	Describe(ctx context.Context, locator string) (string, error)
}

// Pulser runs the LED sweep during the network-bound stages.
type Pulser interface {
	Start() (*pulse.Session, error)
}

// Publisher receives cycle events. *eventbus.Bus satisfies it.
type Publisher interface {
	Publish(event eventbus.Event)
}

// Artifact is the image produced by one trigger and what was learned about it.
type Artifact struct {
	CycleID     string
	Path        string
	Locator     string
	PublicID    string
	Description string
	CapturedAt  time.Time
}

// Settings configure one cycle.
type Settings struct {
	ImagePath   string
	Width       int
	Height      int
	FlashSettle time.Duration
	Annotate    bool

	CaptureTimeout  time.Duration
	UploadTimeout   time.Duration
	DescribeTimeout time.Duration
	AnnotateTimeout time.Duration
}

// StageError tells which stage aborted the cycle.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Pipeline orchestrates the stages of a capture cycle.
type Pipeline struct {
	led       output.PWM
	pulser    Pulser
	camera    Camera
	uploader  Externalizer
	describer Describer
	display   display.Annunciator
	bus       Publisher
	s         Settings
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time
}

// New creates a pipeline. bus may be nil.
func New(
	led output.PWM,
	pulser Pulser,
	camera Camera,
	uploader Externalizer,
	describer Describer,
	annunciator display.Annunciator,
	bus Publisher,
	s Settings,
) *Pipeline {
	return &Pipeline{
		led:       led,
		pulser:    pulser,
		camera:    camera,
		uploader:  uploader,
		describer: describer,
		display:   annunciator,
		bus:       bus,
		s:         s,
		sleep:     sleepCtx,
		now:       time.Now,
	}
}

// Run executes one cycle. Any capture, upload or describe failure aborts
// the cycle with a *StageError; there are no retries. The display is left
// in its last state on failure.
func (p *Pipeline) Run(ctx context.Context) (*Artifact, error) {
	art := &Artifact{
		CycleID:    uuid.NewString(),
		Path:       p.s.ImagePath,
		CapturedAt: p.now(),
	}
	logger := log.With().Str("cycle_id", art.CycleID).Logger()

	p.publish(eventbus.EventTypeCycleStarted, art, nil)

	err := p.run(ctx, art)
	if err != nil {
		logger.Error().Err(err).Msg("Capture cycle failed")
		p.publish(eventbus.EventTypeCycleFailed, art, err)
		return art, err
	}

	logger.Info().Str("locator", art.Locator).Msg("Capture cycle completed")
	p.publish(eventbus.EventTypeCycleCompleted, art, nil)
	return art, nil
}

func (p *Pipeline) run(ctx context.Context, art *Artifact) error {
	logger := log.With().Str("cycle_id", art.CycleID).Logger()

	p.setLED(100)
	if err := p.sleep(ctx, p.s.FlashSettle); err != nil {
		p.setLED(0)
		return &StageError{Stage: StageCapture, Err: err}
	}

	if err := p.withTimeout(ctx, p.s.CaptureTimeout, func(ctx context.Context) error {
		return p.camera.Capture(ctx, art.Path, p.s.Width, p.s.Height)
	}); err != nil {
		p.setLED(0)
		return &StageError{Stage: StageCapture, Err: err}
	}
	logger.Info().Str("path", art.Path).Msg("Photo captured")

	p.setLED(100)
	session, err := p.pulser.Start()
	if err != nil {
		// The sweep is cosmetic; the cycle goes on with a steady LED.
		logger.Warn().Err(err).Msg("Failed to start LED pulse")
	}
	// Until the session is stopped the sweep is the LED's only writer.
	stopPulse := func() {
		if session != nil {
			session.Stop()
			session = nil
		}
		p.setLED(0)
	}

	p.display.ShowSteps(1)

	err = p.withTimeout(ctx, p.s.UploadTimeout, func(ctx context.Context) error {
		up, err := p.uploader.Upload(ctx, art.Path)
		if err != nil {
			return err
		}
		art.Locator, art.PublicID = up.Locator, up.PublicID
		return nil
	})
	if err != nil {
		stopPulse()
		return &StageError{Stage: StageUpload, Err: err}
	}
	logger.Info().Str("locator", art.Locator).Msg("Uploaded")

	p.display.ShowSteps(2)
	p.display.ShowSteps(3)

	err = p.withTimeout(ctx, p.s.DescribeTimeout, func(ctx context.Context) error {
		text, err := p.describer.Describe(ctx, art.Locator)
		if err != nil {
			return err
		}
		art.Description = text
		return nil
	})
	if err != nil {
		stopPulse()
		return &StageError{Stage: StageDescribe, Err: err}
	}
	logger.Info().Str("description", art.Description).Msg("Generated description")

	stopPulse()
	p.display.ShowText(art.Description)

	if p.s.Annotate && art.PublicID != "" {
		if err := p.withTimeout(ctx, p.s.AnnotateTimeout, func(ctx context.Context) error {
			return p.uploader.Annotate(ctx, art.PublicID, art.Description)
		}); err != nil {
			logger.Warn().Err(err).Msg("Failed to annotate uploaded image")
		}
	}
	return nil
}

func (p *Pipeline) setLED(duty int) {
	if err := p.led.SetDuty(duty); err != nil {
		log.Warn().Err(err).Int("duty", duty).Msg("Failed to set LED duty")
	}
}

func (p *Pipeline) withTimeout(ctx context.Context, d time.Duration, fn func(context.Context) error) error {
	if d <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(ctx)
}

func (p *Pipeline) publish(t eventbus.EventType, art *Artifact, err error) {
	if p.bus == nil {
		return
	}
	data := map[string]interface{}{
		"cycle_id": art.CycleID,
		"path":     art.Path,
	}
	if art.Locator != "" {
		data["locator"] = art.Locator
	}
	if art.Description != "" {
		data["description"] = art.Description
	}
	if err != nil {
		data["error"] = err.Error()
		var se *StageError
		if errors.As(err, &se) {
			data["stage"] = se.Stage
		}
	}
	p.bus.Publish(eventbus.Event{Type: t, Data: data})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 || ctx.Err() != nil {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
