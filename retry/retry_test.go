package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig(maxRetries int) Config {
	return Config{
		MaxRetries:     maxRetries,
		InitialBackoff: time.Microsecond,
		MaxBackoff:     time.Millisecond,
		Multiplier:     2,
	}
}

func TestDo(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	t.Run("succeeds without retrying", func(t *testing.T) {
		calls := 0
		err := Do(ctx, fastConfig(3), func(context.Context) error {
			calls++
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})

	t.Run("retries until success", func(t *testing.T) {
		calls := 0
		err := Do(ctx, fastConfig(3), func(context.Context) error {
			calls++
			if calls < 3 {
				return boom
			}
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
	})

	t.Run("exhaustion keeps the cause", func(t *testing.T) {
		calls := 0
		err := Do(ctx, fastConfig(2), func(context.Context) error {
			calls++
			return boom
		})
		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
		if !errors.Is(err, ErrExhausted) {
			t.Errorf("expected ErrExhausted, got %v", err)
		}
		if !errors.Is(err, boom) {
			t.Errorf("cause should stay reachable, got %v", err)
		}
	})

	t.Run("non-retryable errors stop the loop", func(t *testing.T) {
		cfg := fastConfig(5)
		cfg.IsRetryable = func(err error) bool { return !errors.Is(err, boom) }
		calls := 0
		err := Do(ctx, cfg, func(context.Context) error {
			calls++
			return boom
		})
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
		if !errors.Is(err, boom) || errors.Is(err, ErrExhausted) {
			t.Errorf("expected the bare cause, got %v", err)
		}
	})

	t.Run("canceled context stops before the first attempt", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		err := Do(canceled, fastConfig(3), func(context.Context) error {
			t.Error("op must not run under a canceled context")
			return nil
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}
