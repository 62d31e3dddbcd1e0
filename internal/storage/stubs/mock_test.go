package stubs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library/internal/storage"
)

func TestMockDB_CreateLoanAdjustsAvailability(t *testing.T) {
	db := NewMockDB()
	ctx := context.Background()

	book, err := db.CreateBook(ctx, "The Go Programming Language", 2)
	require.NoError(t, err)
	member, err := db.CreateMember(ctx, "Alice", "alice@example.com", 0)
	require.NoError(t, err)

	now := time.Now()
	loan, err := db.CreateLoan(ctx, book.ID, member.ID, now, now.AddDate(0, 0, 14))
	require.NoError(t, err)
	assert.False(t, loan.Returned)
	assert.Nil(t, loan.ReturnDate)

	got, err := db.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AvailableCopies)
}

func TestMockDB_CreateLoanOutOfStock(t *testing.T) {
	db := NewMockDB()
	ctx := context.Background()

	book, err := db.CreateBook(ctx, "Solo Copy", 1)
	require.NoError(t, err)
	alice, err := db.CreateMember(ctx, "Alice", "alice@example.com", 0)
	require.NoError(t, err)
	bob, err := db.CreateMember(ctx, "Bob", "bob@example.com", 0)
	require.NoError(t, err)

	now := time.Now()
	_, err = db.CreateLoan(ctx, book.ID, alice.ID, now, now.AddDate(0, 0, 14))
	require.NoError(t, err)

	_, err = db.CreateLoan(ctx, book.ID, bob.ID, now, now.AddDate(0, 0, 14))
	assert.ErrorIs(t, err, storage.ErrOutOfStock)

	// The failed loan must not leave the counter stale
	got, err := db.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AvailableCopies)
}

func TestMockDB_ReturnLoan(t *testing.T) {
	db := NewMockDB()
	ctx := context.Background()

	book, err := db.CreateBook(ctx, "Returnable", 1)
	require.NoError(t, err)
	member, err := db.CreateMember(ctx, "Alice", "alice@example.com", 0)
	require.NoError(t, err)

	now := time.Now()
	_, err = db.CreateLoan(ctx, book.ID, member.ID, now, now.AddDate(0, 0, 14))
	require.NoError(t, err)

	returned, err := db.ReturnLoan(ctx, book.ID, member.ID, now.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, returned.Returned)
	require.NotNil(t, returned.ReturnDate)
	assert.False(t, returned.ReturnDate.Before(returned.LoanDate))

	got, err := db.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AvailableCopies)

	// A second return finds no open loan
	_, err = db.ReturnLoan(ctx, book.ID, member.ID, now.Add(2*time.Hour))
	assert.ErrorIs(t, err, storage.ErrNoActiveLoan)
}

func TestMockDB_ConcurrentLoansOneWins(t *testing.T) {
	db := NewMockDB()
	ctx := context.Background()

	book, err := db.CreateBook(ctx, "Contended", 1)
	require.NoError(t, err)

	const attempts = 16

	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		member, err := db.CreateMember(ctx, "Member", "member@example.com", 0)
		require.NoError(t, err)

		wg.Add(1)
		go func() {
			defer wg.Done()
			now := time.Now()
			_, err := db.CreateLoan(ctx, book.ID, member.ID, now, now.AddDate(0, 0, 7))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, outOfStock int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, storage.ErrOutOfStock):
			outOfStock++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one concurrent loan must win")
	assert.Equal(t, attempts-1, outOfStock)

	got, err := db.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AvailableCopies)
}

func TestMockDB_IncrementCappedAtTotal(t *testing.T) {
	db := NewMockDB()
	ctx := context.Background()

	book, err := db.CreateBook(ctx, "Capped", 1)
	require.NoError(t, err)

	require.NoError(t, db.IncrementAvailable(ctx, book.ID))
	got, err := db.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AvailableCopies)
}

func TestMockDB_OverdueLoans(t *testing.T) {
	db := NewMockDB()
	ctx := context.Background()
	now := time.Now()

	book, err := db.CreateBook(ctx, "Overdue Book", 3)
	require.NoError(t, err)
	member, err := db.CreateMember(ctx, "Alice", "alice@example.com", 0)
	require.NoError(t, err)

	// Overdue and open
	overdue, err := db.CreateLoan(ctx, book.ID, member.ID, now.AddDate(0, 0, -10), now.AddDate(0, 0, -1))
	require.NoError(t, err)

	// Overdue but returned
	other, err := db.CreateMember(ctx, "Bob", "bob@example.com", 0)
	require.NoError(t, err)
	_, err = db.CreateLoan(ctx, book.ID, other.ID, now.AddDate(0, 0, -10), now.AddDate(0, 0, -1))
	require.NoError(t, err)
	_, err = db.ReturnLoan(ctx, book.ID, other.ID, now)
	require.NoError(t, err)

	// Open but not yet due
	third, err := db.CreateMember(ctx, "Carol", "carol@example.com", 0)
	require.NoError(t, err)
	_, err = db.CreateLoan(ctx, book.ID, third.ID, now, now.AddDate(0, 0, 1))
	require.NoError(t, err)

	loans, err := db.OverdueLoans(ctx, now)
	require.NoError(t, err)
	require.Len(t, loans, 1)
	assert.Equal(t, overdue.ID, loans[0].ID)
}

func TestMockDB_NotFoundErrors(t *testing.T) {
	db := NewMockDB()
	ctx := context.Background()

	_, err := db.GetBook(ctx, uuid.New())
	assert.ErrorIs(t, err, storage.ErrBookNotFound)

	_, err = db.GetMember(ctx, uuid.New())
	assert.ErrorIs(t, err, storage.ErrMemberNotFound)

	_, err = db.GetLoan(ctx, uuid.New())
	assert.ErrorIs(t, err, storage.ErrLoanNotFound)

	err = db.DecrementAvailable(ctx, uuid.New())
	assert.ErrorIs(t, err, storage.ErrBookNotFound)
}
