package app

import (
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/glimpsed/internal/eventbus"
	"github.com/dokzlo13/glimpsed/internal/ledger"
)

// EventService subscribes the ledger and the hook script to the event bus.
type EventService struct {
	bus    *eventbus.Bus
	ledger *ledger.Ledger
	hooks  *HooksService
}

// NewEventService creates a new EventService.
func NewEventService(bus *eventbus.Bus, l *ledger.Ledger, h *HooksService) *EventService {
	return &EventService{bus: bus, ledger: l, hooks: h}
}

// Start sets up all event handlers.
func (s *EventService) Start() {
	s.bus.SubscribeAll(s.ledger.Record)

	if s.hooks.Enabled() {
		s.bus.SubscribeAll(s.hooks.Handle)
	}

	s.bus.Subscribe(eventbus.EventTypeDarknessShutdown, func(event eventbus.Event) {
		log.Info().Time("at", event.At).Msg("Darkness shutdown recorded")
	})
}
