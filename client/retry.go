package smb2

import (
	"context"
	"errors"
	"time"

	"github.com/macos-fuse-t/smbclient/stats"
	log "github.com/sirupsen/logrus"
)

// RetryPolicy bounds the retries of transient chunk failures.
type RetryPolicy struct {
	MaxAttempts  int           // Maximum number of attempts (default: 3)
	InitialDelay time.Duration // Initial delay between retries (default: 100ms)
	MaxDelay     time.Duration // Maximum delay between retries (default: 5s)
	Multiplier   float64       // Backoff multiplier (default: 2.0)
}

var defaultRetryPolicy = RetryPolicy{
	MaxAttempts:  3,
	InitialDelay: 100 * time.Millisecond,
	MaxDelay:     5 * time.Second,
	Multiplier:   2.0,
}

// errTransient marks a chunk that moved no data but may on a second try.
var errTransient = errors.New("transient short transfer")

func isRetryable(err error) bool {
	return errors.Is(err, errTransient)
}

// withRetry runs operation until it succeeds, fails permanently or the
// policy is exhausted.
func withRetry(ctx context.Context, policy RetryPolicy, op string, operation func() error) error {
	if policy.MaxAttempts <= 1 {
		return operation()
	}

	var lastErr error
	delay := policy.InitialDelay

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return &ContextError{Err: ctx.Err()}
		}

		err := operation()
		if err == nil {
			return nil
		}

		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if attempt == policy.MaxAttempts {
			break
		}

		log.Debugf("%s failed (attempt %d/%d), retrying in %v: %v", op, attempt, policy.MaxAttempts, delay, err)
		stats.AddRetry(op)

		select {
		case <-ctx.Done():
			return &ContextError{Err: ctx.Err()}
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * policy.Multiplier)
		if delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}

	return lastErr
}
