package stubs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"library/internal/models"
	"library/internal/storage"
)

// MockDB is an in-memory implementation of the Storage interface for testing
type MockDB struct {
	mu      sync.Mutex
	books   map[uuid.UUID]models.Book
	members map[uuid.UUID]models.Member
	loans   map[uuid.UUID]models.Loan
}

// NewMockDB creates a new mock database
func NewMockDB() *MockDB {
	return &MockDB{
		books:   make(map[uuid.UUID]models.Book),
		members: make(map[uuid.UUID]models.Member),
		loans:   make(map[uuid.UUID]models.Loan),
	}
}

// Initialize does nothing for the mock, data is seeded by tests
func (m *MockDB) Initialize(ctx context.Context) error {
	return nil
}

// CreateBook creates a new book with all copies available
func (m *MockDB) CreateBook(ctx context.Context, title string, totalCopies int) (models.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	book := models.Book{
		ID:              uuid.New(),
		Title:           title,
		TotalCopies:     totalCopies,
		AvailableCopies: totalCopies,
	}
	m.books[book.ID] = book
	return book, nil
}

// GetBook returns a book by ID
func (m *MockDB) GetBook(ctx context.Context, id uuid.UUID) (models.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	book, ok := m.books[id]
	if !ok {
		return models.Book{}, storage.ErrBookNotFound
	}
	return book, nil
}

// CreateMember creates a new member
func (m *MockDB) CreateMember(ctx context.Context, name, email string, telegramChatID int64) (models.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	member := models.Member{
		ID:             uuid.New(),
		Name:           name,
		Email:          email,
		TelegramChatID: telegramChatID,
	}
	m.members[member.ID] = member
	return member, nil
}

// GetMember returns a member by ID
func (m *MockDB) GetMember(ctx context.Context, id uuid.UUID) (models.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	member, ok := m.members[id]
	if !ok {
		return models.Member{}, storage.ErrMemberNotFound
	}
	return member, nil
}

// DecrementAvailable atomically takes one available copy of the book
func (m *MockDB) DecrementAvailable(ctx context.Context, bookID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.decrementAvailableLocked(bookID)
}

// IncrementAvailable atomically returns one copy of the book to the shelf
func (m *MockDB) IncrementAvailable(ctx context.Context, bookID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.incrementAvailableLocked(bookID)
}

func (m *MockDB) decrementAvailableLocked(bookID uuid.UUID) error {
	book, ok := m.books[bookID]
	if !ok {
		return storage.ErrBookNotFound
	}
	if book.AvailableCopies < 1 {
		return storage.ErrOutOfStock
	}
	book.AvailableCopies--
	m.books[bookID] = book
	return nil
}

func (m *MockDB) incrementAvailableLocked(bookID uuid.UUID) error {
	book, ok := m.books[bookID]
	if !ok {
		return storage.ErrBookNotFound
	}
	if book.AvailableCopies < book.TotalCopies {
		book.AvailableCopies++
	}
	m.books[bookID] = book
	return nil
}

// CreateLoan decrements availability and inserts the loan under one lock,
// mirroring the single transaction the Postgres engine uses
func (m *MockDB) CreateLoan(ctx context.Context, bookID, memberID uuid.UUID, loanDate, dueDate time.Time) (models.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.members[memberID]; !ok {
		return models.Loan{}, storage.ErrMemberNotFound
	}
	if err := m.decrementAvailableLocked(bookID); err != nil {
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
	m.loans[loan.ID] = loan
	return loan, nil
}

// ReturnLoan closes the open loan and increments availability under one lock
func (m *MockDB) ReturnLoan(ctx context.Context, bookID, memberID uuid.UUID, returnDate time.Time) (models.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	loan, ok := m.findOpenLoanLocked(bookID, memberID)
	if !ok {
		return models.Loan{}, storage.ErrNoActiveLoan
	}

	loan.Returned = true
	rd := returnDate
	loan.ReturnDate = &rd
	m.loans[loan.ID] = loan

	if err := m.incrementAvailableLocked(bookID); err != nil {
		return models.Loan{}, err
	}
	return loan, nil
}

// GetLoan returns a loan by ID
func (m *MockDB) GetLoan(ctx context.Context, id uuid.UUID) (models.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	loan, ok := m.loans[id]
	if !ok {
		return models.Loan{}, storage.ErrLoanNotFound
	}
	return loan, nil
}

// FindOpenLoan returns the open loan for the given book and member
func (m *MockDB) FindOpenLoan(ctx context.Context, bookID, memberID uuid.UUID) (models.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	loan, ok := m.findOpenLoanLocked(bookID, memberID)
	if !ok {
		return models.Loan{}, storage.ErrNoActiveLoan
	}
	return loan, nil
}

func (m *MockDB) findOpenLoanLocked(bookID, memberID uuid.UUID) (models.Loan, bool) {
	for _, loan := range m.loans {
		if loan.BookID == bookID && loan.MemberID == memberID && !loan.Returned {
			return loan, true
		}
	}
	return models.Loan{}, false
}

// ExtendLoanDueDate sets a new due date on the loan
func (m *MockDB) ExtendLoanDueDate(ctx context.Context, id uuid.UUID, newDueDate time.Time) (models.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	loan, ok := m.loans[id]
	if !ok {
		return models.Loan{}, storage.ErrLoanNotFound
	}
	loan.DueDate = newDueDate
	m.loans[id] = loan
	return loan, nil
}

// OverdueLoans returns all open loans with due date before now, oldest first
func (m *MockDB) OverdueLoans(ctx context.Context, now time.Time) ([]models.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var overdue []models.Loan
	for _, loan := range m.loans {
		if !loan.Returned && loan.DueDate.Before(now) {
			overdue = append(overdue, loan)
		}
	}
	sort.Slice(overdue, func(i, j int) bool {
		return overdue[i].DueDate.Before(overdue[j].DueDate)
	})
	return overdue, nil
}

// PutLoan overwrites a loan record directly, bypassing lifecycle rules.
// Test fixture helper only.
func (m *MockDB) PutLoan(loan models.Loan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loans[loan.ID] = loan
}

// DeleteLoan removes a loan record. Test fixture helper only.
func (m *MockDB) DeleteLoan(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.loans, id)
}

// Close does nothing for mock DB
func (m *MockDB) Close() error {
	return nil
}
