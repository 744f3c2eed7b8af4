package app

import (
	"context"

	"github.com/dokzlo13/glimpsed/internal/config"
	"github.com/dokzlo13/glimpsed/internal/eventbus"
	"github.com/dokzlo13/glimpsed/internal/hooks"
)

// HooksService wraps the Lua hook runtime. It is inert when no script is
// configured.
type HooksService struct {
	script  string
	Runtime *hooks.Runtime
}

// NewHooksService creates a new HooksService.
func NewHooksService(cfg *config.Config, queueSize int) *HooksService {
	s := &HooksService{script: cfg.Hooks.Script}
	if s.script != "" {
		s.Runtime = hooks.NewRuntime(queueSize)
	}
	return s
}

// Enabled reports whether a hook script is configured.
func (s *HooksService) Enabled() bool {
	return s.Runtime != nil
}

// LoadScript loads and executes the Lua script.
// Must be called before Start().
func (s *HooksService) LoadScript() error {
	if !s.Enabled() {
		return nil
	}
	return s.Runtime.LoadScript(s.script)
}

// Start begins the Lua worker goroutine.
func (s *HooksService) Start(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	// The ONLY goroutine that touches Lua
	go s.Runtime.Run(ctx)
}

// Handle forwards an event to the script.
func (s *HooksService) Handle(event eventbus.Event) {
	if s.Enabled() {
		s.Runtime.Handle(event)
	}
}

// Close closes the Lua runtime.
func (s *HooksService) Close() {
	if s.Runtime != nil {
		s.Runtime.Close()
	}
}
