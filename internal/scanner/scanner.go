package scanner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"library/internal/models"
	"library/internal/notify"
	"library/internal/storage"
)

// Notifier accepts a notification request for asynchronous delivery
type Notifier interface {
	Enqueue(req models.NotificationRequest)
}

// Scanner finds open loans past their due date once a day and enqueues one
// overdue notification per loan. A loan that stays overdue is notified again
// on every run until it is returned; there is no cross-run dedup.
type Scanner struct {
	db       storage.Storage
	notifier Notifier
	logger   *zap.Logger

	hour   int
	minute int
	lock   Lock
	now    func() time.Time

	runMu sync.Mutex
}

type Option func(*Scanner)

// WithSchedule sets the time of day the scan runs at (default midnight)
func WithSchedule(hour, minute int) Option {
	return func(s *Scanner) {
		s.hour = hour
		s.minute = minute
	}
}

// WithLock adds a distributed run lock on top of the built-in in-process one
func WithLock(lock Lock) Option {
	return func(s *Scanner) { s.lock = lock }
}

// NewScanner creates an overdue scanner
func NewScanner(db storage.Storage, notifier Notifier, logger *zap.Logger, opts ...Option) *Scanner {
	s := &Scanner{
		db:       db,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run blocks, firing Scan at the configured time of day until ctx is
// canceled. A failed run is logged and the next tick proceeds independently.
func (s *Scanner) Run(ctx context.Context) {
	s.logger.Info("Overdue scanner started",
		zap.String("schedule", fmt.Sprintf("%02d:%02d", s.hour, s.minute)),
	)
	for {
		next := s.nextRun()
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("Overdue scanner stopped")
			return
		case <-timer.C:
		}

		found, enqueued, err := s.Scan(ctx)
		if err != nil {
			s.logger.Error("Overdue scan run failed",
				zap.Error(err),
				zap.Time("next_run", s.nextRun()),
			)
			continue
		}
		s.logger.Info("Overdue scan run complete",
			zap.Int("overdue_found", found),
			zap.Int("notifications_enqueued", enqueued),
		)
	}
}

// Scan performs one overdue sweep and reports how many overdue loans were
// found and how many notifications were enqueued. A failure on one loan is
// logged and skipped; only a failure to enumerate the loans fails the run.
func (s *Scanner) Scan(ctx context.Context) (found, enqueued int, err error) {
	if !s.runMu.TryLock() {
		s.logger.Warn("Overdue scan already running, skipping this run")
		return 0, 0, nil
	}
	defer s.runMu.Unlock()

	if s.lock != nil {
		if !s.lock.TryAcquire(ctx) {
			s.logger.Warn("Overdue scan lock held elsewhere, skipping this run")
			return 0, 0, nil
		}
		defer s.lock.Release(ctx)
	}

	now := s.now()
	overdue, err := s.db.OverdueLoans(ctx, now)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query overdue loans: %w", err)
	}

	for _, loan := range overdue {
		member, err := s.db.GetMember(ctx, loan.MemberID)
		if err != nil {
			s.logger.Warn("Skipping overdue loan, member lookup failed",
				zap.String("loan_id", loan.ID.String()),
				zap.String("member_id", loan.MemberID.String()),
				zap.Error(err),
			)
			continue
		}
		if member.Email == "" && member.TelegramChatID == 0 {
			s.logger.Warn("Skipping overdue loan, member has no contact address",
				zap.String("loan_id", loan.ID.String()),
				zap.String("member_id", loan.MemberID.String()),
			)
			continue
		}
		book, err := s.db.GetBook(ctx, loan.BookID)
		if err != nil {
			s.logger.Warn("Skipping overdue loan, book lookup failed",
				zap.String("loan_id", loan.ID.String()),
				zap.String("book_id", loan.BookID.String()),
				zap.Error(err),
			)
			continue
		}

		s.notifier.Enqueue(notify.LoanOverdueRequest(loan, member, book, now))
		enqueued++
	}

	return len(overdue), enqueued, nil
}

// nextRun returns the next occurrence of the configured time of day
func (s *Scanner) nextRun() time.Time {
	now := s.now()
	next := time.Date(now.Year(), now.Month(), now.Day(), s.hour, s.minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
