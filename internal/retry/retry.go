// Package retry holds the retry policy applied to calls into external
// capabilities (transcription, scoring, encoding, captioning).
package retry

import (
	"context"
	"errors"
	"net"
	"os/exec"
	"time"
)

// Policy describes how one external call is attempted.
//
// MaxAttempts counts the first try. Backoff[i] is the wait before attempt
// i+2; the last entry repeats when attempts outnumber it. Timeout bounds
// each attempt individually.
type Policy struct {
	MaxAttempts int
	Backoff     []time.Duration
	Timeout     time.Duration
	Retryable   func(error) bool
}

// Once is a single attempt with no retry.
func Once(timeout time.Duration) Policy {
	return Policy{MaxAttempts: 1, Timeout: timeout}
}

// Do runs fn until it succeeds, returns a non-retryable error, the attempt
// budget is spent, or ctx is done. It returns the number of attempts made.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	limit := p.MaxAttempts
	if limit <= 0 {
		limit = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	var err error
	for attempt := 1; attempt <= limit; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			if err == nil {
				err = cerr
			}
			return attempt - 1, err
		}

		err = p.attempt(ctx, fn)
		if err == nil {
			return attempt, nil
		}
		if attempt == limit || !retryable(err) || ctx.Err() != nil {
			return attempt, err
		}
		if wait := p.backoff(attempt - 1); wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return attempt, err
			case <-t.C:
			}
		}
	}
	return limit, err
}

func (p Policy) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.Timeout <= 0 {
		return fn(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	err := fn(actx)
	if err != nil && errors.Is(actx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return &timeoutError{after: p.Timeout, err: err}
	}
	return err
}

func (p Policy) backoff(i int) time.Duration {
	if len(p.Backoff) == 0 {
		return 0
	}
	if i >= len(p.Backoff) {
		i = len(p.Backoff) - 1
	}
	return p.Backoff[i]
}

type timeoutError struct {
	after time.Duration
	err   error
}

func (e *timeoutError) Error() string {
	return "call timed out after " + e.after.String() + ": " + e.err.Error()
}

func (e *timeoutError) Unwrap() error { return e.err }
func (e *timeoutError) Timeout() bool { return true }

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as safe to retry.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err looks like a network, timeout or
// subprocess failure that a second attempt may not repeat.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	var to interface{ Timeout() bool }
	if errors.As(err, &to) && to.Timeout() {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var ee *exec.ExitError
	return errors.As(err, &ee)
}
