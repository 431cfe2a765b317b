package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWithContextSucceedsAfterTransientFailures(t *testing.T) {
	cfg := Config{InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond, Multiplier: 2, MaxAttempts: 5}
	attempts := 0
	err := WithContext(context.Background(), cfg, nil, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("got %d attempts, want 3", attempts)
	}
}

func TestWithContextStopsOnNonRetryableError(t *testing.T) {
	cfg := Config{InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond, Multiplier: 2, MaxAttempts: 10}
	fatal := errors.New("fatal")
	attempts := 0
	isRetryable := func(error) bool { return false }
	err := WithContext(context.Background(), cfg, isRetryable, func() error {
		attempts++
		return fatal
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("got %v, want the fatal error surfaced immediately", err)
	}
	if attempts != 1 {
		t.Fatalf("got %d attempts, want exactly 1 (no retry on non-retryable error)", attempts)
	}
}

func TestWithContextExhaustsMaxAttempts(t *testing.T) {
	cfg := Config{InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond, Multiplier: 2, MaxAttempts: 3}
	attempts := 0
	err := WithContext(context.Background(), cfg, nil, func() error {
		attempts++
		return errors.New("always fails")
	})
	if err == nil {
		t.Fatalf("expected an error once attempts are exhausted")
	}
	if attempts != 3 {
		t.Fatalf("got %d attempts, want 3 (MaxAttempts)", attempts)
	}
}

func TestWithContextRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{InitialInterval: 50 * time.Millisecond, MaxInterval: time.Second, Multiplier: 2, MaxAttempts: 100}
	cancel()
	err := WithContext(ctx, cfg, nil, func() error {
		return errors.New("never succeeds")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled on an already-cancelled context", err)
	}
}
