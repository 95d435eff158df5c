package scheduler

import (
	"context"
	"time"
)

//go:generate mockgen -destination=mocks/mock_journal.go -package=mocks github.com/mattjoyce/fluxd/internal/scheduler JournalService

// JournalService is the journal maintenance the scheduler drives.
type JournalService interface {
	RecoverPending(ctx context.Context) (int64, error)
	Prune(ctx context.Context, retention time.Duration) (int64, error)
}
