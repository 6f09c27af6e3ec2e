package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/AngelCh415/flare-go/internal/utils"
)

var retryPolicy = utils.NewBackoff(100*time.Millisecond, 150*time.Millisecond, 2)

// NewBreaker trips after five consecutive upstream failures and probes again
// after thirty seconds.
func NewBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 5 },
	})
}

// GetJSONWithRetry fetches url into dst with exponential backoff. Client
// errors (4xx other than 429) and an open breaker are not retried.
func GetJSONWithRetry(ctx context.Context, c HTTPClient, cb *gobreaker.CircuitBreaker, url string, dst any) error {
	return retryPolicy.Do(ctx, func(int) error {
		_, err := cb.Execute(func() (interface{}, error) {
			return nil, getJSON(ctx, c, url, dst)
		})
		if err == nil {
			return nil
		}
		var se *StatusError
		if errors.As(err, &se) && !se.retryable() {
			return fmt.Errorf("%w: %w", utils.ErrPermanent, err)
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %w", utils.ErrPermanent, err)
		}
		return err
	})
}
