package loans

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"library/internal/models"
	"library/internal/notify"
	"library/internal/storage"
)

// Notifier accepts a notification request for asynchronous delivery.
// Enqueue must not block the caller.
type Notifier interface {
	Enqueue(req models.NotificationRequest)
}

// Service enforces the loan state machine: a loan is created open, may be
// extended while open and not overdue, and is closed exactly once by a
// return. Availability changes ride on the storage layer's atomic loan
// operations, never on separate reads and writes.
type Service struct {
	db       storage.Storage
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates a loan lifecycle service
func NewService(db storage.Storage, notifier Notifier, logger *zap.Logger) *Service {
	return &Service{
		db:       db,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// CreateLoan lends one copy of the book to the member for durationDays.
// On success a loan_created notification is enqueued fire-and-forget; the
// result never waits on delivery.
func (s *Service) CreateLoan(ctx context.Context, bookID, memberID uuid.UUID, durationDays int) (models.Loan, error) {
	if durationDays < 1 {
		return models.Loan{}, fmt.Errorf("%w: duration must be at least 1 day", ErrInvalidInput)
	}

	member, err := s.db.GetMember(ctx, memberID)
	if err != nil {
		return models.Loan{}, err
	}
	book, err := s.db.GetBook(ctx, bookID)
	if err != nil {
		return models.Loan{}, err
	}

	now := s.now()
	loan, err := s.db.CreateLoan(ctx, bookID, memberID, now, now.AddDate(0, 0, durationDays))
	if err != nil {
		return models.Loan{}, err
	}

	s.logger.Info("Loan created",
		zap.String("loan_id", loan.ID.String()),
		zap.String("book_title", book.Title),
		zap.String("member", member.Name),
		zap.Time("due_date", loan.DueDate),
	)

	s.notifier.Enqueue(notify.LoanCreatedRequest(loan, member, book))

	return loan, nil
}

// ReturnLoan closes the member's open loan for the book and puts the copy
// back on the shelf
func (s *Service) ReturnLoan(ctx context.Context, bookID, memberID uuid.UUID) (models.Loan, error) {
	loan, err := s.db.ReturnLoan(ctx, bookID, memberID, s.now())
	if err != nil {
		return models.Loan{}, err
	}

	s.logger.Info("Loan returned",
		zap.String("loan_id", loan.ID.String()),
		zap.String("book_id", bookID.String()),
		zap.String("member_id", memberID.String()),
	)
	return loan, nil
}

// ExtendDueDate pushes the due date of an open, not yet overdue loan forward
// by additionalDays. The due date never moves backwards.
func (s *Service) ExtendDueDate(ctx context.Context, loanID uuid.UUID, additionalDays int) (models.Loan, error) {
	if additionalDays < 1 {
		return models.Loan{}, fmt.Errorf("%w: additional days must be at least 1", ErrInvalidInput)
	}

	loan, err := s.db.GetLoan(ctx, loanID)
	if err != nil {
		return models.Loan{}, err
	}
	if loan.Returned {
		return models.Loan{}, ErrAlreadyReturned
	}
	if loan.DueDate.Before(s.now()) {
		return models.Loan{}, ErrAlreadyOverdue
	}

	updated, err := s.db.ExtendLoanDueDate(ctx, loanID, loan.DueDate.AddDate(0, 0, additionalDays))
	if err != nil {
		return models.Loan{}, err
	}

	s.logger.Info("Loan due date extended",
		zap.String("loan_id", loanID.String()),
		zap.Int("additional_days", additionalDays),
		zap.Time("due_date", updated.DueDate),
	)
	return updated, nil
}
