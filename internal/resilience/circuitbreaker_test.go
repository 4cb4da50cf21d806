package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/calebmoss/berea/internal/resilience"
)

var errLookupDown = errors.New("lookup down")

func failing(context.Context) error { return errLookupDown }
func succeeding(context.Context) error { return nil }

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	b := resilience.NewBreaker("test", resilience.WithMaxFailures(3))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := b.Do(ctx, failing); !errors.Is(err, errLookupDown) {
			t.Fatalf("call %d: err = %v", i, err)
		}
	}
	if got := b.State(); got != resilience.StateOpen {
		t.Fatalf("state = %v, want open", got)
	}
	if err := b.Do(ctx, succeeding); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("open breaker: err = %v, want ErrCircuitOpen", err)
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	b := resilience.NewBreaker("test", resilience.WithMaxFailures(3))
	ctx := context.Background()

	_ = b.Do(ctx, failing)
	_ = b.Do(ctx, failing)
	_ = b.Do(ctx, succeeding)
	_ = b.Do(ctx, failing)
	_ = b.Do(ctx, failing)

	if got := b.State(); got != resilience.StateClosed {
		t.Errorf("state = %v, want closed (success reset the count)", got)
	}
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	t.Parallel()

	b := resilience.NewBreaker("test",
		resilience.WithMaxFailures(1),
		resilience.WithResetTimeout(10*time.Millisecond),
		resilience.WithHalfOpenMax(2))
	ctx := context.Background()

	_ = b.Do(ctx, failing)
	if got := b.State(); got != resilience.StateOpen {
		t.Fatalf("state = %v, want open", got)
	}

	time.Sleep(20 * time.Millisecond)
	if got := b.State(); got != resilience.StateHalfOpen {
		t.Fatalf("state after reset timeout = %v, want half-open", got)
	}

	// Two successful probes close the breaker.
	if err := b.Do(ctx, succeeding); err != nil {
		t.Fatal(err)
	}
	if err := b.Do(ctx, succeeding); err != nil {
		t.Fatal(err)
	}
	if got := b.State(); got != resilience.StateClosed {
		t.Errorf("state after probes = %v, want closed", got)
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	t.Parallel()

	b := resilience.NewBreaker("test",
		resilience.WithMaxFailures(1),
		resilience.WithResetTimeout(10*time.Millisecond))
	ctx := context.Background()

	_ = b.Do(ctx, failing)
	time.Sleep(20 * time.Millisecond)

	_ = b.Do(ctx, failing)
	if err := b.Do(ctx, succeeding); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("after half-open failure: err = %v, want ErrCircuitOpen", err)
	}
}

func TestBreaker_CanceledContextNotCounted(t *testing.T) {
	t.Parallel()

	b := resilience.NewBreaker("test", resilience.WithMaxFailures(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := b.Do(ctx, succeeding); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if got := b.State(); got != resilience.StateClosed {
		t.Errorf("state = %v, caller cancellation tripped the breaker", got)
	}
}

func TestRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"marked", resilience.AsRetryable(errors.New("upload failed")), true},
		{"wrapped marked", errors.Join(errors.New("outer"), resilience.AsRetryable(errors.New("inner"))), true},
		{"circuit open", resilience.ErrCircuitOpen, true},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
	}
	for _, tt := range tests {
		if got := resilience.Retryable(tt.err); got != tt.want {
			t.Errorf("Retryable(%s) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
