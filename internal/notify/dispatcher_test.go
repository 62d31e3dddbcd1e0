package notify

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
)

// fakeSender scripts the outcome of each send attempt and records their times
type fakeSender struct {
	mu       sync.Mutex
	errs     []error // consumed per attempt; last entry repeats
	attempts []time.Time
}

func (f *fakeSender) Send(ctx context.Context, to models.Recipient, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, time.Now())
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	if len(f.errs) > 1 {
		f.errs = f.errs[1:]
	}
	return err
}

func (f *fakeSender) attemptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.attempts)
}

func (f *fakeSender) attemptTimes() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Time, len(f.attempts))
	copy(out, f.attempts)
	return out
}

// fakeLoanStore answers GetLoan with a fixed set of known loans
type fakeLoanStore struct {
	known map[uuid.UUID]bool
}

func (f *fakeLoanStore) GetLoan(ctx context.Context, id uuid.UUID) (models.Loan, error) {
	if f.known[id] {
		return models.Loan{ID: id}, nil
	}
	return models.Loan{}, storage.ErrLoanNotFound
}

func request(loanID uuid.UUID) models.NotificationRequest {
	return models.NotificationRequest{
		Kind:      models.EventLoanCreated,
		LoanID:    loanID,
		Recipient: models.Recipient{Name: "Alice", Email: "alice@example.com"},
		Subject:   SubjectLoanCreated,
		Body:      "Hello Alice",
	}
}

func startDispatcher(t *testing.T, sender Sender, loans LoanStore, opts ...Option) *Dispatcher {
	t.Helper()
	opts = append([]Option{WithWorkers(1), WithRetryDelay(10 * time.Millisecond)}, opts...)
	d := NewDispatcher(sender, loans, zap.NewNop(), opts...)
	d.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		d.Stop(ctx)
	})
	return d
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestDispatcher_DeliversOnFirstAttempt(t *testing.T) {
	loanID := uuid.New()
	sender := &fakeSender{}
	store := &fakeLoanStore{known: map[uuid.UUID]bool{loanID: true}}
	d := startDispatcher(t, sender, store)

	d.Enqueue(request(loanID))

	waitFor(t, func() bool { return sender.attemptCount() == 1 })
	// No further attempts happen after success
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, sender.attemptCount())
}

func TestDispatcher_RetryBound(t *testing.T) {
	loanID := uuid.New()
	sender := &fakeSender{errs: []error{Retryable(errors.New("mailbox busy"))}}
	store := &fakeLoanStore{known: map[uuid.UUID]bool{loanID: true}}
	delay := 20 * time.Millisecond
	d := startDispatcher(t, sender, store, WithRetryDelay(delay))

	d.Enqueue(request(loanID))

	// 1 initial attempt + 3 retries, then the request is dropped
	waitFor(t, func() bool { return sender.attemptCount() == 4 })
	time.Sleep(3 * delay)
	require.Equal(t, 4, sender.attemptCount())

	times := sender.attemptTimes()
	for i := 1; i < len(times); i++ {
		assert.GreaterOrEqual(t, times[i].Sub(times[i-1]), delay,
			"attempts must be spaced by the fixed retry delay")
	}
}

func TestDispatcher_SucceedsAfterTransientFailures(t *testing.T) {
	loanID := uuid.New()
	sender := &fakeSender{errs: []error{
		Retryable(errors.New("greylisted")),
		Retryable(errors.New("greylisted")),
		nil,
	}}
	store := &fakeLoanStore{known: map[uuid.UUID]bool{loanID: true}}
	d := startDispatcher(t, sender, store)

	d.Enqueue(request(loanID))

	waitFor(t, func() bool { return sender.attemptCount() == 3 })
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 3, sender.attemptCount())
}

func TestDispatcher_PermanentFailureIsNotRetried(t *testing.T) {
	loanID := uuid.New()
	sender := &fakeSender{errs: []error{Permanent(errors.New("no such mailbox"))}}
	store := &fakeLoanStore{known: map[uuid.UUID]bool{loanID: true}}
	d := startDispatcher(t, sender, store)

	d.Enqueue(request(loanID))

	waitFor(t, func() bool { return sender.attemptCount() == 1 })
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, sender.attemptCount())
}

func TestDispatcher_DiscardsRequestForMissingLoan(t *testing.T) {
	sender := &fakeSender{}
	store := &fakeLoanStore{known: map[uuid.UUID]bool{}}
	d := startDispatcher(t, sender, store)

	d.Enqueue(request(uuid.New()))

	// Silently discarded, never sent
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, sender.attemptCount())
}

func TestDispatcher_EnqueueNeverBlocks(t *testing.T) {
	// A dispatcher that was never started consumes nothing
	sender := &fakeSender{}
	store := &fakeLoanStore{known: map[uuid.UUID]bool{}}
	d := NewDispatcher(sender, store, zap.NewNop(), WithQueueSize(1))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			d.Enqueue(request(uuid.New()))
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(Retryable(errors.New("transient"))))
	assert.False(t, IsRetryable(Permanent(errors.New("bad address"))))
	assert.True(t, IsRetryable(context.DeadlineExceeded), "timeouts count as transient")
	assert.True(t, IsRetryable(errors.New("unclassified")))
}
