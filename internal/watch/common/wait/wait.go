// Package wait provides bounded polls over a FeedBrowser. Every wait gives
// up after its timeout with an error wrapping domain.ErrInteractionTimeout,
// so a non-responding surface becomes a local failure and never a hang.
package wait

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/haukened/watchangel/internal/watch/domain"
)

// DefaultInterval is the poll period used when Options.Interval is zero.
const DefaultInterval = 250 * time.Millisecond

// Options configures a Waiter.
type Options struct {
	Browser  domain.FeedBrowser
	Interval time.Duration
}

// Waiter polls a FeedBrowser until a target is present or interactable.
type Waiter struct {
	browser  domain.FeedBrowser
	interval time.Duration
}

// New returns a Waiter polling opts.Browser.
func New(opts Options) *Waiter {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Waiter{browser: opts.Browser, interval: interval}
}

var errNotReady = errors.New("not ready")

// Present waits until at least one handle for target exists below scope.
func (w *Waiter) Present(ctx context.Context, target domain.Target, scope domain.Handle, timeout time.Duration) ([]domain.Handle, error) {
	var found []domain.Handle
	err := w.poll(ctx, target.String(), timeout, func(ctx context.Context) error {
		hs, err := w.browser.Find(ctx, target, scope)
		if err != nil {
			return err
		}
		if len(hs) == 0 {
			return errNotReady
		}
		found = hs
		return nil
	})
	return found, err
}

// Interactable waits until the first handle for target below scope can
// receive a click.
func (w *Waiter) Interactable(ctx context.Context, target domain.Target, scope domain.Handle, timeout time.Duration) (domain.Handle, error) {
	var ready domain.Handle
	err := w.poll(ctx, target.String(), timeout, func(ctx context.Context) error {
		hs, err := w.browser.Find(ctx, target, scope)
		if err != nil {
			return err
		}
		for _, h := range hs {
			ok, err := w.browser.Interactable(ctx, h)
			if errors.Is(err, domain.ErrSessionUnavailable) {
				return err
			}
			if err == nil && ok {
				ready = h
				return nil
			}
		}
		return errNotReady
	})
	return ready, err
}

// Handle waits until h itself is interactable.
func (w *Waiter) Handle(ctx context.Context, h domain.Handle, timeout time.Duration) error {
	return w.poll(ctx, "handle "+h.Key(), timeout, func(ctx context.Context) error {
		ok, err := w.browser.Interactable(ctx, h)
		if err != nil {
			return err
		}
		if !ok {
			return errNotReady
		}
		return nil
	})
}

// retryable marks err for another attempt unless the session is gone.
func retryable(err error) error {
	if errors.Is(err, domain.ErrSessionUnavailable) {
		return err
	}
	return retry.RetryableError(err)
}

// poll runs fn until it succeeds or timeout passes. Each attempt runs under
// the same deadline, so a single stalled call cannot outlive the wait. A
// lost session ends the wait at once.
func (w *Waiter) poll(ctx context.Context, what string, timeout time.Duration, fn func(context.Context) error) error {
	if timeout <= 0 {
		timeout = w.interval
	}
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var last error
	backoff := retry.WithMaxDuration(timeout, retry.NewConstant(w.interval))
	err := retry.Do(pollCtx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil {
			last = err
		}
		return retryable(err)
	})
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, domain.ErrSessionUnavailable):
		return err
	}
	if last == nil {
		last = err
	}
	return fmt.Errorf("%w: %s after %s: %w", domain.ErrInteractionTimeout, what, timeout, last)
}
