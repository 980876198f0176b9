// Package retry implements the bounded exponential backoff spec section 7
// requires around transient backend I/O: ErrBackendUnavailable is retried
// locally inside the backend wrapper, everything else propagates unchanged.
//
// No third-party backoff library appears anywhere in the example pack, so
// this is a small stdlib-only helper rather than an import of
// cenkalti/backoff or similar.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/imgstash/imgstash/pkg/apierr"
	"github.com/imgstash/imgstash/pkg/api"
	"github.com/imgstash/imgstash/pkg/backend"
)

// Policy configures the backoff schedule.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy makes three attempts in total (the one original attempt
// plus two retries) per spec section 7's "default 3 attempts before surfacing".
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    2 * time.Second,
	}
}

// Do runs fn, retrying while it returns an error wrapping
// apierr.ErrBackendUnavailable, up to MaxAttempts total attempts. Any other
// error (including apierr.ErrBackendRejected) is returned immediately.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return apierr.ErrCancelled
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, apierr.ErrBackendUnavailable) {
			return lastErr
		}
		if attempt == p.MaxAttempts-1 {
			break
		}

		delay := backoffDelay(p, attempt)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return apierr.ErrCancelled
		case <-timer.C:
		}
	}
	return lastErr
}

func backoffDelay(p Policy, attempt int) time.Duration {
	d := p.BaseDelay << attempt
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	// jitter to avoid thundering herd against the backend.
	jitter := time.Duration(rand.Int63n(int64(d)/2 + 1))
	return d/2 + jitter
}

// Backend wraps a backend.Service so that every Put/Get/Delete absorbs
// transient apierr.ErrBackendUnavailable failures with Do's bounded
// backoff before they reach a caller. cmd/internal/cli.OpenBackend hands
// back every concrete backend wrapped this way, so retrying lives in one
// place rather than being repeated at each call site.
type Backend struct {
	inner  backend.Service
	policy Policy
}

// WrapBackend returns svc wrapped with policy's retry schedule.
func WrapBackend(svc backend.Service, policy Policy) *Backend {
	return &Backend{inner: svc, policy: policy}
}

func (b *Backend) Kind() api.BackendKind { return b.inner.Kind() }

func (b *Backend) Put(ctx context.Context, data []byte) (string, error) {
	var key string
	err := Do(ctx, b.policy, func(ctx context.Context) error {
		k, err := b.inner.Put(ctx, data)
		if err != nil {
			return err
		}
		key = k
		return nil
	})
	return key, err
}

func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := Do(ctx, b.policy, func(ctx context.Context) error {
		d, err := b.inner.Get(ctx, key)
		if err != nil {
			return err
		}
		data = d
		return nil
	})
	return data, err
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	return Do(ctx, b.policy, func(ctx context.Context) error {
		return b.inner.Delete(ctx, key)
	})
}

// List is not retried: it is a lazy streaming iterator rather than one
// atomic call, and a backend that fails mid-list surfaces the error to
// the yield callback the same way it always did.
func (b *Backend) List(ctx context.Context, yield func(key string, err error) bool) {
	b.inner.List(ctx, yield)
}
