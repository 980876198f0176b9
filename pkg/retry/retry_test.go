package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/imgstash/imgstash/pkg/apierr"
)

func fastPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestDoRetriesOnlyBackendUnavailable(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastPolicy(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return apierr.ErrBackendUnavailable
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestDoGivesUpAfterMaxAttempts(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastPolicy(), func(context.Context) error {
		attempts++
		return apierr.ErrBackendUnavailable
	})
	if !errors.Is(err, apierr.ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable after exhausting attempts, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", attempts)
	}
}

func TestDoDoesNotRetryPermanentErrors(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastPolicy(), func(context.Context) error {
		attempts++
		return apierr.ErrBackendRejected
	})
	if !errors.Is(err, apierr.ErrBackendRejected) {
		t.Fatalf("expected ErrBackendRejected, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected a permanent error to not be retried, got %d attempts", attempts)
	}
}

func TestDoRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, fastPolicy(), func(context.Context) error {
		t.Fatalf("fn should not run on an already-cancelled context")
		return nil
	})
	if !errors.Is(err, apierr.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
}
