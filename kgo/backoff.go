package kgo

import (
	"context"
	"math/rand"
	"time"

	"github.com/dcrodman/kaf/kerr"
)

// errClass is the three-way classification from spec §4.H.
type errClass int8

const (
	classFatal errClass = iota
	classRetriableLocal
	classRefreshThenRetry
)

// classify applies spec §4.H / §7's taxonomy to an error returned from a
// broker round trip.
func classify(err error) errClass {
	if err == nil {
		return classFatal // never retried; caller shouldn't be classifying a nil error
	}
	switch err {
	case ErrConnDead, ErrCorrelationIDMismatch, ErrInvalidRespSize:
		return classRetriableLocal
	}
	if _, ok := err.(*ErrLargeRespSize); ok {
		return classRetriableLocal
	}
	if kerr.IsRefreshThenRetry(err) {
		return classRefreshThenRetry
	}
	if kerr.IsRetriable(err) {
		return classRetriableLocal
	}
	return classFatal
}

// backoff computes the capped exponential delay for retry attempt n
// (0-indexed), per spec §4.H: "starting at 100ms, capped at 2s".
type backoff struct {
	min, max time.Duration
}

func (b backoff) forAttempt(n int) time.Duration {
	if b.min <= 0 {
		b.min = 100 * time.Millisecond
	}
	if b.max <= 0 {
		b.max = 2 * time.Second
	}
	d := b.min << uint(n)
	if d <= 0 || d > b.max { // overflow or past the cap
		d = b.max
	}
	// Jitter by +/-10% so many clients retrying the same leader change
	// do not all retry in lockstep.
	jitter := time.Duration(rand.Int63n(int64(d)/5+1)) - d/10
	d += jitter
	if d < 0 {
		d = b.min
	}
	return d
}

func (cl *Client) retryBackoff() backoff {
	return backoff{min: cl.cfg.retryBackoffMin, max: cl.cfg.retryBackoffMax}
}

// backoffWait blocks for the retry backoff duration of the given attempt, or
// returns ctx's error if it's cancelled first.
func (cl *Client) backoffWait(ctx context.Context, attempt int) error {
	select {
	case <-time.After(cl.retryBackoff().forAttempt(attempt)):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
