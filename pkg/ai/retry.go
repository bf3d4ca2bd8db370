package ai

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

type retryPolicy struct {
	attempts  int
	baseDelay time.Duration
}

func defaultRetryPolicy(attempts int) retryPolicy {
	if attempts <= 0 {
		attempts = 3
	}
	return retryPolicy{attempts: attempts, baseDelay: time.Second}
}

// do runs fn until it succeeds, fails with a non-transient error, or runs out of attempts.
func (p retryPolicy) do(ctx context.Context, onRetry func(attempt int, delay time.Duration, err error), fn func(ctx context.Context) error) error {
	delay := p.baseDelay
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !IsTransient(err) || attempt == p.attempts {
			return err
		}

		if onRetry != nil {
			onRetry(attempt, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
	return err
}

// IsTransient reports whether err looks like a rate limit, a server error or a network failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return transientStatus(apiErr.HTTPStatusCode)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return transientStatus(reqErr.HTTPStatusCode)
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

func transientStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}
