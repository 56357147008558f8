package retry

import (
	"context"
	"time"
)

// Policy describes how an operation is retried: how many attempts are
// made, and how the wait between attempts grows.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultPolicy matches the backoff used against the device API:
// 3 attempts, 2s initial backoff doubling up to 30s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     30 * time.Second,
	}
}

// Do runs op up to p.MaxAttempts times. A failed attempt is retried only
// if retryable reports the error as transient; otherwise the error is
// returned immediately. The backoff sleep respects ctx cancellation.
func (p Policy) Do(ctx context.Context, op func() error, retryable func(error) bool) error {
	backoff := p.InitialBackoff
	var err error

	for attempt := 1; ; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if attempt >= p.MaxAttempts || retryable == nil || !retryable(err) {
			return err
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		backoff *= 2
		if backoff > p.MaxBackoff {
			backoff = p.MaxBackoff
		}
	}
}
