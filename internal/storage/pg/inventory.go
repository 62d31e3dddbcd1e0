package pg

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"library/internal/storage"
)

// executor is satisfied by both *pgxpool.Pool and pgx.Tx, so the counter
// statements run standalone or inside a loan transaction unchanged.
type executor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func decrementAvailable(ctx context.Context, ex executor, bookID uuid.UUID) error {
	tag, err := ex.Exec(ctx,
		`UPDATE books SET available_copies = available_copies - 1
		 WHERE id = $1 AND available_copies > 0`, bookID)
	if err != nil {
		return fmt.Errorf("failed to decrement availability: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing book from an exhausted one.
		var exists bool
		if err := ex.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM books WHERE id = $1)`, bookID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check book existence: %w", err)
		}
		if !exists {
			return storage.ErrBookNotFound
		}
		return storage.ErrOutOfStock
	}
	return nil
}

func incrementAvailable(ctx context.Context, ex executor, bookID uuid.UUID) error {
	tag, err := ex.Exec(ctx,
		`UPDATE books SET available_copies = available_copies + 1
		 WHERE id = $1 AND available_copies < total_copies`, bookID)
	if err != nil {
		return fmt.Errorf("failed to increment availability: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := ex.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM books WHERE id = $1)`, bookID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check book existence: %w", err)
		}
		if !exists {
			return storage.ErrBookNotFound
		}
		// All copies already on the shelf, nothing to do.
	}
	return nil
}
