// Package cleanup deletes chat sessions whose retention period has expired.
// It runs on its own schedule and never touches the live conversation.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/nkaluva9/health-chatbot/internal/store"
)

// DefaultInterval is how often the sweeper runs when none is configured.
const DefaultInterval = time.Hour

const (
	maxRetries = 3
	baseDelay  = 100 * time.Millisecond
)

// Sweeper periodically deletes expired sessions.
type Sweeper struct {
	db       *store.DB
	logger   *zap.Logger
	interval time.Duration
	now      func() time.Time
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewSweeper creates a sweeper running every interval.
func NewSweeper(db *store.DB, logger *zap.Logger, interval time.Duration) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{db: db, logger: logger, interval: interval, now: time.Now}
}

// Start runs one sweep immediately, then one per interval until Stop or ctx
// is done.
func (s *Sweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	ticker := time.NewTicker(s.interval)

	go func() {
		defer close(s.done)
		defer ticker.Stop()
		s.logger.Info("cleanup sweeper started", zap.Duration("interval", s.interval))

		s.sweepAndLog(ctx)
		for {
			select {
			case <-ticker.C:
				s.sweepAndLog(ctx)
			case <-ctx.Done():
				s.logger.Info("cleanup sweeper stopped", zap.NamedError("reason", ctx.Err()))
				return
			}
		}
	}()
}

// Stop stops the sweeper and waits for it to exit.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

func (s *Sweeper) sweepAndLog(ctx context.Context) {
	n, err := s.Sweep(ctx)
	if err != nil {
		s.logger.Error("cleanup sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("expired sessions deleted", zap.Int64("count", n))
	}
}

// Sweep deletes every session that expired before now and returns how many
// were removed. A busy database is retried with exponential backoff.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		n, err := s.db.DeleteExpiredSessions(s.now())
		if err == nil {
			return n, nil
		}
		lastErr = err
		if !isBusy(err) || i == maxRetries-1 {
			break
		}

		delay := baseDelay * time.Duration(1<<i)
		s.logger.Debug("database busy, retrying sweep", zap.Int("attempt", i+1), zap.Duration("delay", delay))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return 0, fmt.Errorf("sweep expired sessions: %w", lastErr)
}

func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}
