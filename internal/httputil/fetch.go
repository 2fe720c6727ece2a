// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package httputil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

// Policy controls retry behaviour for Fetch.
type Policy struct {
	// MaxAttempts caps total attempts, first try included. Zero means 5.
	MaxAttempts int

	// BaseDelay is the backoff after the first failed attempt.
	BaseDelay time.Duration

	// MaxDelay caps the backoff; zero means uncapped.
	MaxDelay time.Duration

	// Timeout bounds each attempt, body read included. Zero means none.
	Timeout time.Duration

	// OnRetry, when set, is called before each backoff sleep with the
	// number of the attempt that failed (1-based).
	OnRetry func(attempt int, err error, delay time.Duration)
}

const defaultMaxAttempts = 5

// Attempts returns the effective attempt cap.
func (p Policy) Attempts() int {
	if p.MaxAttempts <= 0 {
		return defaultMaxAttempts
	}
	return p.MaxAttempts
}

// Delay returns the backoff after the given 0-based attempt:
// min(MaxDelay, BaseDelay * 2^attempt).
func (p Policy) Delay(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		if d > math.MaxInt64/2 {
			d = math.MaxInt64
			break
		}
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			break
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.Code)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
}

// Retryable reports whether the status is 429 or 5xx.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// NetworkError is a transport failure: connection refused, reset, or a
// per-attempt timeout.
type NetworkError struct {
	Err     error
	Timeout bool
}

func (e *NetworkError) Error() string {
	if e.Timeout {
		return "timeout: " + e.Err.Error()
	}
	return e.Err.Error()
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	var ne *NetworkError
	return errors.As(err, &ne)
}

// Fetch performs req and returns the response body. Each attempt acquires
// its own permit from pool and releases it before any backoff sleep, so a
// backing-off call never holds a permit. Retryable failures (429, 5xx,
// transport errors, per-attempt timeouts) are retried up to
// policy.Attempts(); other non-2xx responses fail immediately with a
// *StatusError. Cancelling ctx stops retrying and returns ctx.Err().
func Fetch(ctx context.Context, client *http.Client, pool *Pool, req *http.Request, policy Policy) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	maxAttempts := policy.Attempts()

	for attempt := 0; ; attempt++ {
		body, err := fetchOnce(ctx, client, pool, req, policy.Timeout)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !Retryable(err) {
			return nil, err
		}
		if attempt+1 >= maxAttempts {
			return nil, &ExhaustedError{Attempts: attempt + 1, Last: err}
		}

		delay := policy.Delay(attempt)
		if policy.OnRetry != nil {
			policy.OnRetry(attempt+1, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func fetchOnce(ctx context.Context, client *http.Client, pool *Pool, req *http.Request, timeout time.Duration) ([]byte, error) {
	release, err := pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	attemptCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resp, err := client.Do(req.Clone(attemptCtx))
	if err != nil {
		return nil, &NetworkError{Err: err, Timeout: errors.Is(attemptCtx.Err(), context.DeadlineExceeded)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(snippet)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Err: fmt.Errorf("reading body: %w", err), Timeout: errors.Is(attemptCtx.Err(), context.DeadlineExceeded)}
	}
	return body, nil
}
