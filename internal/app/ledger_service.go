package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/glimpsed/internal/ledger"
)

// LedgerService periodically drops ledger entries past retention.
type LedgerService struct {
	ledger    *ledger.Ledger
	interval  time.Duration
	retention time.Duration
}

// NewLedgerService creates a new LedgerService.
func NewLedgerService(l *ledger.Ledger, interval, retention time.Duration) *LedgerService {
	return &LedgerService{ledger: l, interval: interval, retention: retention}
}

// Start spawns the cleanup loop. A zero interval or retention disables it.
func (s *LedgerService) Start(ctx context.Context) {
	if s.interval <= 0 || s.retention <= 0 {
		log.Info().Msg("Ledger cleanup is disabled")
		return
	}
	go s.run(ctx)
}

func (s *LedgerService) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *LedgerService) cleanup() {
	deleted, err := s.ledger.DeleteOlderThan(s.retention)
	if err != nil {
		log.Error().Err(err).Msg("Failed to cleanup old ledger entries")
	} else if deleted > 0 {
		log.Info().Int64("deleted", deleted).Dur("retention", s.retention).Msg("Cleaned up old ledger entries")
	}
}
