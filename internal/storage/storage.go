package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"library/internal/models"
)

// Sentinel errors shared by all storage engines.
var (
	ErrBookNotFound   = errors.New("book not found")
	ErrMemberNotFound = errors.New("member not found")
	ErrLoanNotFound   = errors.New("loan not found")
	ErrNoActiveLoan   = errors.New("no active loan for this book and member")
	ErrOutOfStock     = errors.New("no available copies")
)

// Storage defines the interface for data storage operations
type Storage interface {
	// Book operations
	CreateBook(ctx context.Context, title string, totalCopies int) (models.Book, error)
	GetBook(ctx context.Context, id uuid.UUID) (models.Book, error)

	// Member operations
	CreateMember(ctx context.Context, name, email string, telegramChatID int64) (models.Member, error)
	GetMember(ctx context.Context, id uuid.UUID) (models.Member, error)

	// Availability counter operations.
	//
	// These are the only two ways available_copies may change. Both are a
	// single atomic conditional update, never a read followed by a write.
	// DecrementAvailable returns ErrOutOfStock when no copy is available.
	DecrementAvailable(ctx context.Context, bookID uuid.UUID) error
	IncrementAvailable(ctx context.Context, bookID uuid.UUID) error

	// Loan operations.
	//
	// CreateLoan decrements the book's availability and inserts the loan as
	// one atomic unit; it fails with ErrOutOfStock without inserting anything.
	// ReturnLoan marks the unique open loan for (book, member) returned and
	// increments availability as one atomic unit; it fails with
	// ErrNoActiveLoan when no open loan exists.
	CreateLoan(ctx context.Context, bookID, memberID uuid.UUID, loanDate, dueDate time.Time) (models.Loan, error)
	ReturnLoan(ctx context.Context, bookID, memberID uuid.UUID, returnDate time.Time) (models.Loan, error)
	GetLoan(ctx context.Context, id uuid.UUID) (models.Loan, error)
	FindOpenLoan(ctx context.Context, bookID, memberID uuid.UUID) (models.Loan, error)
	ExtendLoanDueDate(ctx context.Context, id uuid.UUID, newDueDate time.Time) (models.Loan, error)

	// OverdueLoans returns all open loans with due_date before now.
	OverdueLoans(ctx context.Context, now time.Time) ([]models.Loan, error)

	// Lifecycle
	Initialize(ctx context.Context) error
	Close() error
}
