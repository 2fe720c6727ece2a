// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package retrieval

import (
	"errors"
	"fmt"

	"github.com/pdiddy/litflow/internal/httputil"
)

// Reason classifies a retrieval failure.
type Reason string

const (
	ReasonRateLimited Reason = "rate_limited"
	ReasonServerError Reason = "server_error"
	ReasonNetwork     Reason = "network"
	ReasonParse       Reason = "parse"
	ReasonExhausted   Reason = "exhausted_retries"
)

// Error is a retrieval failure scoped to one search.
type Error struct {
	Reason Reason

	// Last is the reason of the final attempt when Reason is exhausted_retries.
	Last Reason

	Source   string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	if e.Reason == ReasonExhausted {
		return fmt.Sprintf("%s: %s (%s after %d attempts): %v", e.Source, e.Reason, e.Last, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Reason, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ParseError marks a malformed response body. It is never retried.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "parsing response: " + e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }

func parseError(format string, args ...any) error {
	return &ParseError{Err: fmt.Errorf(format, args...)}
}

// ReasonOf returns the reason carried by err, or "" when err is not a
// retrieval error.
func ReasonOf(err error) Reason {
	var re *Error
	if errors.As(err, &re) {
		return re.Reason
	}
	return ""
}

// CauseOf returns the underlying failure reason of err: the last attempt's
// reason when retries ran out, else the reason itself.
func CauseOf(err error) Reason {
	var re *Error
	if !errors.As(err, &re) {
		return ""
	}
	if re.Reason == ReasonExhausted && re.Last != "" {
		return re.Last
	}
	return re.Reason
}

// Exhausted reports whether err ended because the attempt cap was reached.
func Exhausted(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Reason == ReasonExhausted
}

func classify(source string, err error) *Error {
	var re *Error
	if errors.As(err, &re) {
		return re
	}
	out := &Error{Source: source, Attempts: 1, Err: err}
	var exhausted *httputil.ExhaustedError
	if errors.As(err, &exhausted) {
		out.Reason = ReasonExhausted
		out.Last = leafReason(exhausted.Last)
		out.Attempts = exhausted.Attempts
		return out
	}
	out.Reason = leafReason(err)
	return out
}

// leafReason classifies a single-attempt error.
func leafReason(err error) Reason {
	var pe *ParseError
	if errors.As(err, &pe) {
		return ReasonParse
	}
	var se *httputil.StatusError
	if errors.As(err, &se) {
		if se.Code == 429 {
			return ReasonRateLimited
		}
		return ReasonServerError
	}
	// Transport failures, timeouts and cancellation.
	return ReasonNetwork
}
