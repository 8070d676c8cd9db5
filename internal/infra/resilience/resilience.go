// Package resilience provides the fault-tolerance patterns wrapped around
// record-store reads: retry with exponential backoff, circuit breaker and
// bulkhead.
package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/sony/gobreaker"

	"github.com/boddenberg/finance-tracker-go/internal/domain"
)

// Config holds resilience parameters.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err should stop a retry loop. Caller mistakes
// (not found, validation, conflict, auth) are always permanent.
func IsPermanent(err error) bool {
	var (
		p  *permanentError
		nf *domain.ErrNotFound
		ve *domain.ErrValidation
		ce *domain.ErrConflict
		ue *domain.ErrUnauthorized
		co *domain.ErrCircuitOpen
	)
	return errors.As(err, &p) || errors.As(err, &nf) || errors.As(err, &ve) ||
		errors.As(err, &ce) || errors.As(err, &ue) || errors.As(err, &co)
}

// RetryWithBackoff executes fn with exponential backoff + jitter until it
// succeeds, returns a permanent error, or retries run out. It respects
// context cancellation.
func RetryWithBackoff(ctx context.Context, cfg Config, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if IsPermanent(lastErr) {
			var p *permanentError
			if errors.As(lastErr, &p) {
				return p.err
			}
			return lastErr
		}

		if attempt < cfg.MaxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff(cfg.InitialBackoff, attempt)):
			}
		}
	}
	return lastErr
}

func backoff(initial time.Duration, attempt int) time.Duration {
	wait := time.Duration(math.Pow(2, float64(attempt))) * initial
	if half := int64(wait / 2); half > 0 {
		wait += time.Duration(rand.Int63n(half))
	}
	return wait
}

// NewCircuitBreaker creates a circuit breaker that trips when at least 60%
// of five or more calls in a 30s window fail. Permanent errors do not count
// as failures.
func NewCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsPermanent(err)
		},
	})
}

// Call runs fn through the breaker with retries. An open breaker surfaces
// as *domain.ErrCircuitOpen. An error fn marked Permanent stays marked, so
// an enclosing retry loop gives up on it too.
func Call[T any](ctx context.Context, cb *gobreaker.CircuitBreaker, cfg Config, fn func(context.Context) (T, error)) (T, error) {
	var out T
	permanent := false
	err := RetryWithBackoff(ctx, cfg, func() error {
		res, err := cb.Execute(func() (any, error) { return fn(ctx) })
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return &domain.ErrCircuitOpen{Service: cb.Name()}
			}
			var p *permanentError
			permanent = errors.As(err, &p)
			return err
		}
		out = res.(T)
		return nil
	})
	if err != nil && permanent {
		return out, Permanent(err)
	}
	return out, err
}

// Guarded is implemented by clients that already run every call through
// their own breaker and retry loop. Callers should not wrap them again.
type Guarded interface {
	Guarded() bool
}

// Bulkhead limits concurrent access to a resource.
type Bulkhead struct {
	sem chan struct{}
}

// NewBulkhead creates a bulkhead with the given max concurrency.
func NewBulkhead(maxConcurrency int) *Bulkhead {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Bulkhead{sem: make(chan struct{}, maxConcurrency)}
}

// Acquire blocks until a slot is available or context is cancelled.
func (b *Bulkhead) Acquire(ctx context.Context) error {
	select {
	case b.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot.
func (b *Bulkhead) Release() {
	<-b.sem
}
