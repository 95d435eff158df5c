// Package scheduler runs journal housekeeping for a serving process: crash
// recovery of entries left pending, then periodic retention pruning.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/mattjoyce/fluxd/internal/config"
	"github.com/mattjoyce/fluxd/internal/events"
)

// TypeJournalPruned is published on the change feed after a prune removed rows.
const TypeJournalPruned = "journal.pruned"

// Publisher is the change feed. *events.Hub satisfies it.
type Publisher interface {
	Publish(eventType string, data any) events.Event
}

// Scheduler manages journal recovery and pruning.
type Scheduler struct {
	journal   JournalService
	feed      Publisher
	retention time.Duration
	every     time.Duration
	jitter    time.Duration
	logger    *slog.Logger
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// New creates a Scheduler from the journal section of the config. feed may
// be nil.
func New(cfg config.JournalConfig, j JournalService, feed Publisher, logger *slog.Logger) (*Scheduler, error) {
	every, err := config.ParseInterval(cfg.PruneEvery)
	if err != nil {
		return nil, err
	}
	if cfg.Retention <= 0 {
		return nil, fmt.Errorf("journal retention must be positive")
	}
	return &Scheduler{
		journal:   j,
		feed:      feed,
		retention: cfg.Retention,
		every:     every,
		jitter:    cfg.PruneJitter,
		logger:    logger.With("component", "scheduler"),
		stopCh:    make(chan struct{}),
	}, nil
}

// Start performs crash recovery, then begins the prune loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("Starting scheduler", "prune_every", s.every.String(), "retention", s.retention.String())

	if err := s.recoverPending(ctx); err != nil {
		return fmt.Errorf("scheduler crash recovery failed: %w", err)
	}

	s.wg.Add(1)
	go s.loop(ctx)
	return nil
}

// Stop gracefully stops the scheduler. It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping scheduler")
		close(s.stopCh)
	})
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	// Initial pass immediately
	s.prune(ctx)

	for {
		timer := time.NewTimer(calculateJitteredInterval(s.every, s.jitter))
		select {
		case <-timer.C:
			s.prune(ctx)
		case <-s.stopCh:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// prune runs a single retention pass.
func (s *Scheduler) prune(ctx context.Context) {
	n, err := s.journal.Prune(ctx, s.retention)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("Journal prune failed", "error", err)
		}
		return
	}
	if n == 0 {
		s.logger.Debug("Journal prune removed nothing")
		return
	}
	if s.feed != nil {
		s.feed.Publish(TypeJournalPruned, map[string]any{
			"removed":   n,
			"retention": s.retention.String(),
		})
	}
}

// recoverPending fails journal entries that a crashed process left pending.
func (s *Scheduler) recoverPending(ctx context.Context) error {
	s.logger.Info("Performing crash recovery for pending journal entries")

	n, err := s.journal.RecoverPending(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover pending journal entries: %w", err)
	}
	if n == 0 {
		s.logger.Info("No pending journal entries found.")
		return nil
	}
	s.logger.Warn("Marked interrupted journal entries as failed", "count", n)
	return nil
}

// calculateJitteredInterval adds a random jitter to the base interval.
func calculateJitteredInterval(baseInterval time.Duration, jitter time.Duration) time.Duration {
	if jitter <= 0 {
		return baseInterval
	}
	randomJitter := time.Duration(rand.Int63n(jitter.Nanoseconds()))
	return baseInterval + randomJitter
}
