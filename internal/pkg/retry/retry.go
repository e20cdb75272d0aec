package retry

import (
	"context"
	"time"

	"mirra/internal/logger"
)

// Executor runs an operation with exponential backoff on retryable
// failures. Attempt n sleeps BaseDelay * 2^n before the next try.
type Executor struct {
	MaxRetries int
	BaseDelay  time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

func NewExecutor(maxRetries int, baseDelay time.Duration) *Executor {
	return &Executor{
		MaxRetries: maxRetries,
		BaseDelay:  baseDelay,
		sleep:      sleepCtx,
	}
}

// Do runs fn up to MaxRetries+1 times. A non-retryable classified error
// returns immediately; exhausted retries return the last classified error.
func (e *Executor) Do(ctx context.Context, op string, fn func() error) error {
	var last *ClassifiedError
	for attempt := 0; attempt <= e.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn()
		if err == nil {
			return nil
		}
		last = Classify(err, "")
		if !last.Retryable {
			return last
		}
		if attempt == e.MaxRetries {
			break
		}
		delay := e.BaseDelay * (1 << attempt)
		logger.Warnf("%s failed (attempt %d/%d): %v, retrying in %s", op, attempt+1, e.MaxRetries+1, last, delay)
		if err := e.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return last
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
