package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"library/internal/models"
	"library/internal/storage"
)

// Sender delivers one notification over a concrete channel
type Sender interface {
	Send(ctx context.Context, to models.Recipient, subject, body string) error
}

// LoanStore is the slice of storage the dispatcher needs to drop requests
// whose loan no longer exists
type LoanStore interface {
	GetLoan(ctx context.Context, id uuid.UUID) (models.Loan, error)
}

const (
	defaultQueueSize   = 256
	defaultWorkers     = 4
	defaultMaxRetries  = 3
	defaultRetryDelay  = 60 * time.Second
	defaultSendTimeout = 30 * time.Second
)

// Dispatcher consumes notification requests from a bounded queue and
// delivers them best-effort: a transient failure is retried a fixed number
// of times with a fixed delay, then the request is dropped and reported.
// Producers never wait on delivery.
type Dispatcher struct {
	sender  Sender
	loans   LoanStore
	logger  *zap.Logger
	limiter *rate.Limiter

	queue       chan models.NotificationRequest
	maxRetries  int
	retryDelay  time.Duration
	sendTimeout time.Duration
	workers     int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(*Dispatcher)

func WithQueueSize(n int) Option {
	return func(d *Dispatcher) { d.queue = make(chan models.NotificationRequest, n) }
}

func WithWorkers(n int) Option {
	return func(d *Dispatcher) { d.workers = n }
}

func WithRetryDelay(delay time.Duration) Option {
	return func(d *Dispatcher) { d.retryDelay = delay }
}

func WithSendTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.sendTimeout = timeout }
}

// WithRateLimit caps outbound sends at rps with the given burst
func WithRateLimit(rps float64, burst int) Option {
	return func(d *Dispatcher) { d.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// NewDispatcher creates a dispatcher. Call Start before enqueueing.
func NewDispatcher(sender Sender, loans LoanStore, logger *zap.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sender:      sender,
		loans:       loans,
		logger:      logger,
		limiter:     rate.NewLimiter(rate.Inf, 1),
		queue:       make(chan models.NotificationRequest, defaultQueueSize),
		maxRetries:  defaultMaxRetries,
		retryDelay:  defaultRetryDelay,
		sendTimeout: defaultSendTimeout,
		workers:     defaultWorkers,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches the worker goroutines. They run until ctx is canceled or
// Stop is called.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
	d.logger.Info("Notification dispatcher started",
		zap.Int("workers", d.workers),
		zap.Int("queue_size", cap(d.queue)),
		zap.Duration("retry_delay", d.retryDelay),
	)
}

// Enqueue hands a request to the dispatcher without blocking. When the
// queue is full the request is dropped with a warning; delivery is
// best-effort by contract.
func (d *Dispatcher) Enqueue(req models.NotificationRequest) {
	select {
	case d.queue <- req:
	default:
		d.logger.Warn("Notification queue full, dropping request",
			zap.String("kind", string(req.Kind)),
			zap.String("loan_id", req.LoanID.String()),
		)
	}
}

// Stop cancels in-flight work and waits for the workers, bounded by ctx
func (d *Dispatcher) Stop(ctx context.Context) {
	if d.cancel != nil {
		d.cancel()
	}
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		d.logger.Warn("Dispatcher shutdown timed out")
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-d.queue:
			d.process(ctx, req)
		}
	}
}

// process makes the initial attempt plus up to maxRetries retries, sleeping
// the fixed retry delay between attempts. Failure never propagates to the
// operation that enqueued the request.
func (d *Dispatcher) process(ctx context.Context, req models.NotificationRequest) {
	if _, err := d.loans.GetLoan(ctx, req.LoanID); err != nil {
		if errors.Is(err, storage.ErrLoanNotFound) {
			// The loan disappeared between enqueue and dispatch. Not an error.
			d.logger.Debug("Discarding notification for missing loan",
				zap.String("loan_id", req.LoanID.String()),
				zap.String("kind", string(req.Kind)),
			)
			return
		}
		d.logger.Warn("Could not verify loan before dispatch, sending anyway",
			zap.String("loan_id", req.LoanID.String()),
			zap.Error(err),
		)
	}

	attempts := 1 + d.maxRetries
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(d.retryDelay):
			}
		}
		if err := d.limiter.Wait(ctx); err != nil {
			return
		}

		err := d.attempt(ctx, req)
		if err == nil {
			d.logger.Info("Notification sent",
				zap.String("kind", string(req.Kind)),
				zap.String("loan_id", req.LoanID.String()),
				zap.String("to", req.Recipient.Email),
				zap.Int("attempt", attempt),
			)
			return
		}
		if !IsRetryable(err) {
			d.logger.Error("Notification failed permanently, dropping",
				zap.String("kind", string(req.Kind)),
				zap.String("loan_id", req.LoanID.String()),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return
		}
		d.logger.Warn("Notification attempt failed",
			zap.String("kind", string(req.Kind)),
			zap.String("loan_id", req.LoanID.String()),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}

	d.logger.Error("Notification dropped after exhausting retries",
		zap.String("kind", string(req.Kind)),
		zap.String("loan_id", req.LoanID.String()),
		zap.Int("attempts", attempts),
	)
}

func (d *Dispatcher) attempt(ctx context.Context, req models.NotificationRequest) error {
	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()
	return d.sender.Send(sendCtx, req.Recipient, req.Subject, req.Body)
}
