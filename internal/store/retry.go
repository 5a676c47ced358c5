package store

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// retryableSubstrings are the only two failure modes the Store retries
// automatically, per spec §4.1. Every other error propagates unchanged.
var retryableSubstrings = []string{
	"database is locked",
	"attempt to mix objects belonging to different transactions",
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range retryableSubstrings {
		if strings.Contains(msg, strings.ToLower(s)) {
			return true
		}
	}
	return false
}

// withRetry wraps a single DB operation with the Store-wide backoff policy:
// exponential starting at 50ms, multiplier 1.5, retried only on lock
// contention / cross-transaction object errors. This is the single place
// the retry-on-locked behavior lives (spec §9: "do not spread it across
// callers").
func withRetry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.Multiplier = 1.5
	b.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(b, ctx))
}
