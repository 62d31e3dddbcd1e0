package scanner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"library/internal/models"
	"library/internal/storage"
	"library/internal/storage/stubs"
)

type spyNotifier struct {
	mu   sync.Mutex
	reqs []models.NotificationRequest
}

func (s *spyNotifier) Enqueue(req models.NotificationRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
}

func (s *spyNotifier) requests() []models.NotificationRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.NotificationRequest, len(s.reqs))
	copy(out, s.reqs)
	return out
}

func seedLoan(t *testing.T, db *stubs.MockDB, email string, dueOffset time.Duration, returned bool) models.Loan {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	book, err := db.CreateBook(ctx, "Seeded Book", 1)
	require.NoError(t, err)
	member, err := db.CreateMember(ctx, "Member", email, 0)
	require.NoError(t, err)

	loan, err := db.CreateLoan(ctx, book.ID, member.ID, now.Add(-30*24*time.Hour), now.Add(dueOffset))
	require.NoError(t, err)
	if returned {
		loan, err = db.ReturnLoan(ctx, book.ID, member.ID, now)
		require.NoError(t, err)
	}
	return loan
}

func TestScanner_SelectsOnlyOverdueOpenLoans(t *testing.T) {
	db := stubs.NewMockDB()
	spy := &spyNotifier{}
	s := NewScanner(db, spy, zap.NewNop())

	day := 24 * time.Hour
	overdueOpen := seedLoan(t, db, "open@example.com", -day, false)
	seedLoan(t, db, "returned@example.com", -day, true)
	seedLoan(t, db, "future@example.com", day, false)

	found, enqueued, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, found)
	assert.Equal(t, 1, enqueued)

	reqs := spy.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, models.EventLoanOverdue, reqs[0].Kind)
	assert.Equal(t, overdueOpen.ID, reqs[0].LoanID)
	assert.Equal(t, "open@example.com", reqs[0].Recipient.Email)
}

func TestScanner_SkipsMembersWithoutContactAddress(t *testing.T) {
	db := stubs.NewMockDB()
	spy := &spyNotifier{}
	s := NewScanner(db, spy, zap.NewNop())

	day := 24 * time.Hour
	seedLoan(t, db, "", -day, false)
	notified := seedLoan(t, db, "reachable@example.com", -day, false)

	found, enqueued, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, found, "both loans are overdue")
	assert.Equal(t, 1, enqueued, "only the reachable member is notified")

	reqs := spy.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, notified.ID, reqs[0].LoanID)
}

func TestScanner_SkipsLoansWithMissingMember(t *testing.T) {
	db := stubs.NewMockDB()
	spy := &spyNotifier{}
	s := NewScanner(db, spy, zap.NewNop())

	// A loan whose member record vanished
	db.PutLoan(models.Loan{
		ID:       uuid.New(),
		BookID:   uuid.New(),
		MemberID: uuid.New(),
		LoanDate: time.Now().Add(-48 * time.Hour),
		DueDate:  time.Now().Add(-24 * time.Hour),
	})
	ok := seedLoan(t, db, "ok@example.com", -24*time.Hour, false)

	found, enqueued, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, found)
	assert.Equal(t, 1, enqueued)

	reqs := spy.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, ok.ID, reqs[0].LoanID)
}

func TestScanner_NotifiesAgainOnEveryRun(t *testing.T) {
	db := stubs.NewMockDB()
	spy := &spyNotifier{}
	s := NewScanner(db, spy, zap.NewNop())

	seedLoan(t, db, "repeat@example.com", -24*time.Hour, false)

	for i := 0; i < 3; i++ {
		_, enqueued, err := s.Scan(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, enqueued)
	}
	assert.Len(t, spy.requests(), 3, "an unreturned loan is re-notified each run")
}

type failingOverdueDB struct {
	storage.Storage
}

func (f *failingOverdueDB) OverdueLoans(ctx context.Context, now time.Time) ([]models.Loan, error) {
	return nil, errors.New("connection refused")
}

func TestScanner_FatalRunFailure(t *testing.T) {
	spy := &spyNotifier{}
	s := NewScanner(&failingOverdueDB{Storage: stubs.NewMockDB()}, spy, zap.NewNop())

	found, enqueued, err := s.Scan(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, found)
	assert.Equal(t, 0, enqueued)
	assert.Empty(t, spy.requests())
}

type heldLock struct{}

func (heldLock) TryAcquire(ctx context.Context) bool { return false }
func (heldLock) Release(ctx context.Context)         {}

func TestScanner_SkipsRunWhenLockHeld(t *testing.T) {
	db := stubs.NewMockDB()
	spy := &spyNotifier{}
	s := NewScanner(db, spy, zap.NewNop(), WithLock(heldLock{}))

	seedLoan(t, db, "locked@example.com", -24*time.Hour, false)

	found, enqueued, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, found)
	assert.Equal(t, 0, enqueued)
	assert.Empty(t, spy.requests())
}

func TestScanner_NextRun(t *testing.T) {
	s := NewScanner(stubs.NewMockDB(), &spyNotifier{}, zap.NewNop(), WithSchedule(0, 0))

	base := time.Date(2026, 8, 29, 15, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	assert.Equal(t, time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC), s.nextRun(),
		"afternoon rolls over to next midnight")

	s.now = func() time.Time { return time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC) }
	assert.Equal(t, time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC), s.nextRun(),
		"exactly at the tick schedules the following day")
}
