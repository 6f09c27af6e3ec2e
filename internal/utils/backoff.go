package utils

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// ErrPermanent marks an error that must not be retried.
var ErrPermanent = errors.New("permanent failure")

type Backoff struct {
	base       time.Duration
	jitter     time.Duration
	maxRetries int
}

func NewBackoff(base, jitter time.Duration, maxRetries int) Backoff {
	return Backoff{base: base, jitter: jitter, maxRetries: maxRetries}
}

// Do calls fn until it succeeds, returns an error wrapping ErrPermanent, the
// retries run out, or ctx is done. Waits grow exponentially plus jitter.
func (b Backoff) Do(ctx context.Context, fn func(i int) error) error {
	var err error
	for i := 0; i <= b.maxRetries; i++ {
		err = fn(i)
		if err == nil || errors.Is(err, ErrPermanent) || i == b.maxRetries {
			return err
		}
		t := time.Duration(1<<i) * b.base
		if b.jitter > 0 {
			t += time.Duration(rand.Int63n(int64(b.jitter)))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t):
		}
	}
	return err
}
