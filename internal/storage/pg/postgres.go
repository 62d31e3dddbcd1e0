package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"library/internal/models"
	"library/internal/storage"
)

// PostgresDB is the Postgres-backed Storage engine
type PostgresDB struct {
	pool *pgxpool.Pool
}

// NewPostgresDB opens a connection pool and verifies connectivity
func NewPostgresDB(ctx context.Context, host string, port int, database, user, password, sslMode string) (*PostgresDB, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		user, password, host, port, database, sslMode)
	return NewPostgresDBFromDSN(ctx, dsn)
}

// NewPostgresDBFromDSN opens a connection pool from a full DSN
func NewPostgresDBFromDSN(ctx context.Context, dsn string) (*PostgresDB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping Postgres: %w", err)
	}

	return &PostgresDB{pool: pool}, nil
}

// Initialize is a no-op - tables are managed via migrations (see migrations/)
func (db *PostgresDB) Initialize(ctx context.Context) error {
	return nil
}

// CreateBook inserts a book with all copies available
func (db *PostgresDB) CreateBook(ctx context.Context, title string, totalCopies int) (models.Book, error) {
	book := models.Book{
		ID:              uuid.New(),
		Title:           title,
		TotalCopies:     totalCopies,
		AvailableCopies: totalCopies,
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO books (id, title, total_copies, available_copies) VALUES ($1, $2, $3, $4)`,
		book.ID, book.Title, book.TotalCopies, book.AvailableCopies)
	if err != nil {
		return models.Book{}, fmt.Errorf("failed to create book: %w", err)
	}
	return book, nil
}

// GetBook returns a book by ID
func (db *PostgresDB) GetBook(ctx context.Context, id uuid.UUID) (models.Book, error) {
	var book models.Book
	err := db.pool.QueryRow(ctx,
		`SELECT id, title, total_copies, available_copies FROM books WHERE id = $1`, id).
		Scan(&book.ID, &book.Title, &book.TotalCopies, &book.AvailableCopies)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Book{}, storage.ErrBookNotFound
	}
	if err != nil {
		return models.Book{}, fmt.Errorf("failed to get book: %w", err)
	}
	return book, nil
}

// CreateMember inserts a member
func (db *PostgresDB) CreateMember(ctx context.Context, name, email string, telegramChatID int64) (models.Member, error) {
	member := models.Member{
		ID:             uuid.New(),
		Name:           name,
		Email:          email,
		TelegramChatID: telegramChatID,
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO members (id, name, email, telegram_chat_id) VALUES ($1, $2, $3, $4)`,
		member.ID, member.Name, member.Email, member.TelegramChatID)
	if err != nil {
		return models.Member{}, fmt.Errorf("failed to create member: %w", err)
	}
	return member, nil
}

// GetMember returns a member by ID
func (db *PostgresDB) GetMember(ctx context.Context, id uuid.UUID) (models.Member, error) {
	var member models.Member
	err := db.pool.QueryRow(ctx,
		`SELECT id, name, email, telegram_chat_id FROM members WHERE id = $1`, id).
		Scan(&member.ID, &member.Name, &member.Email, &member.TelegramChatID)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Member{}, storage.ErrMemberNotFound
	}
	if err != nil {
		return models.Member{}, fmt.Errorf("failed to get member: %w", err)
	}
	return member, nil
}

// DecrementAvailable takes one available copy with a single guarded UPDATE.
// The WHERE clause is the whole out-of-stock check, so two concurrent
// decrements on a single remaining copy cannot both succeed.
func (db *PostgresDB) DecrementAvailable(ctx context.Context, bookID uuid.UUID) error {
	return decrementAvailable(ctx, db.pool, bookID)
}

// IncrementAvailable returns one copy to the shelf, capped at total_copies
func (db *PostgresDB) IncrementAvailable(ctx context.Context, bookID uuid.UUID) error {
	return incrementAvailable(ctx, db.pool, bookID)
}

// CreateLoan runs the availability decrement and the loan insert in one
// transaction so the pair commits or rolls back together
func (db *PostgresDB) CreateLoan(ctx context.Context, bookID, memberID uuid.UUID, loanDate, dueDate time.Time) (models.Loan, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return models.Loan{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := decrementAvailable(ctx, tx, bookID); err != nil {
		return models.Loan{}, err
	}

	loan := models.Loan{
		ID:       uuid.New(),
		BookID:   bookID,
		MemberID: memberID,
		LoanDate: loanDate,
		DueDate:  dueDate,
		Returned: false,
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO loans (id, book_id, member_id, loan_date, due_date, returned) VALUES ($1, $2, $3, $4, $5, false)`,
		loan.ID, loan.BookID, loan.MemberID, loan.LoanDate, loan.DueDate)
	if err != nil {
		return models.Loan{}, fmt.Errorf("failed to insert loan: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Loan{}, fmt.Errorf("failed to commit loan: %w", err)
	}
	return loan, nil
}

// ReturnLoan marks the open loan returned and increments availability in one
// transaction
func (db *PostgresDB) ReturnLoan(ctx context.Context, bookID, memberID uuid.UUID, returnDate time.Time) (models.Loan, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return models.Loan{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	loan := models.Loan{
		BookID:   bookID,
		MemberID: memberID,
		Returned: true,
	}
	err = tx.QueryRow(ctx,
		`UPDATE loans SET returned = true, return_date = $3
		 WHERE book_id = $1 AND member_id = $2 AND NOT returned
		 RETURNING id, loan_date, due_date, return_date`,
		bookID, memberID, returnDate).
		Scan(&loan.ID, &loan.LoanDate, &loan.DueDate, &loan.ReturnDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Loan{}, storage.ErrNoActiveLoan
	}
	if err != nil {
		return models.Loan{}, fmt.Errorf("failed to close loan: %w", err)
	}

	if err := incrementAvailable(ctx, tx, bookID); err != nil {
		return models.Loan{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Loan{}, fmt.Errorf("failed to commit return: %w", err)
	}
	return loan, nil
}

// GetLoan returns a loan by ID
func (db *PostgresDB) GetLoan(ctx context.Context, id uuid.UUID) (models.Loan, error) {
	loan, err := scanLoan(db.pool.QueryRow(ctx, selectLoan+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Loan{}, storage.ErrLoanNotFound
	}
	if err != nil {
		return models.Loan{}, fmt.Errorf("failed to get loan: %w", err)
	}
	return loan, nil
}

// FindOpenLoan returns the open loan for the given book and member
func (db *PostgresDB) FindOpenLoan(ctx context.Context, bookID, memberID uuid.UUID) (models.Loan, error) {
	loan, err := scanLoan(db.pool.QueryRow(ctx,
		selectLoan+` WHERE book_id = $1 AND member_id = $2 AND NOT returned`, bookID, memberID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Loan{}, storage.ErrNoActiveLoan
	}
	if err != nil {
		return models.Loan{}, fmt.Errorf("failed to find open loan: %w", err)
	}
	return loan, nil
}

// ExtendLoanDueDate sets a new due date on the loan
func (db *PostgresDB) ExtendLoanDueDate(ctx context.Context, id uuid.UUID, newDueDate time.Time) (models.Loan, error) {
	loan, err := scanLoan(db.pool.QueryRow(ctx,
		`UPDATE loans SET due_date = $2 WHERE id = $1
		 RETURNING id, book_id, member_id, loan_date, due_date, returned, return_date`,
		id, newDueDate))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Loan{}, storage.ErrLoanNotFound
	}
	if err != nil {
		return models.Loan{}, fmt.Errorf("failed to extend loan: %w", err)
	}
	return loan, nil
}

// OverdueLoans returns all open loans with due date before now, oldest first
func (db *PostgresDB) OverdueLoans(ctx context.Context, now time.Time) ([]models.Loan, error) {
	rows, err := db.pool.Query(ctx,
		selectLoan+` WHERE due_date < $1 AND NOT returned ORDER BY due_date`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query overdue loans: %w", err)
	}
	defer rows.Close()

	var loans []models.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan: %w", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read overdue loans: %w", err)
	}
	return loans, nil
}

// Close closes the connection pool
func (db *PostgresDB) Close() error {
	if db.pool != nil {
		db.pool.Close()
	}
	return nil
}

const selectLoan = `SELECT id, book_id, member_id, loan_date, due_date, returned, return_date FROM loans`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLoan(row rowScanner) (models.Loan, error) {
	var loan models.Loan
	err := row.Scan(&loan.ID, &loan.BookID, &loan.MemberID,
		&loan.LoanDate, &loan.DueDate, &loan.Returned, &loan.ReturnDate)
	return loan, err
}
