package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirillkom/kt-search/internal/core/domain"
	"github.com/sony/gobreaker/v2"
)

func TestExecuteRetriesTemporaryFailure(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	})

	attempts := 0
	errTemp := errors.New("temporary")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errTemp
		}
		return nil
	}, func(err error) ErrorClassification {
		return ErrorClassification{
			Retryable:     errors.Is(err, errTemp),
			RecordFailure: true,
		}
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteDoesNotRetryPermanentFailure(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	})

	attempts := 0
	errPermanent := errors.New("permanent")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		return errPermanent
	}, func(error) ErrorClassification {
		return ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	})
	if !errors.Is(err, errPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecuteOpensCircuitAfterFailures(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:        1,
		RetryInitialBackoff:     1 * time.Millisecond,
		RetryMaxBackoff:         1 * time.Millisecond,
		RetryMultiplier:         2,
		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      50 * time.Millisecond,
		BreakerHalfOpenMaxCalls: 1,
	})

	errTemp := errors.New("temporary")
	classifier := func(error) ErrorClassification {
		return ErrorClassification{
			Retryable:     false,
			RecordFailure: true,
		}
	}

	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "op", func(context.Context) error {
			return errTemp
		}, classifier)
		if !errors.Is(err, errTemp) {
			t.Fatalf("expected temporary error on iteration %d, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, classifier)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open state error, got %v", err)
	}
}

func TestExecuteBoundsEachAttemptByTimeout(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     1 * time.Millisecond,
		RetryMultiplier:     2,
		AttemptTimeout:      10 * time.Millisecond,
		BreakerEnabled:      false,
	})

	attempts := 0
	err := exec.Execute(context.Background(), "slow", func(ctx context.Context) error {
		attempts++
		<-ctx.Done()
		return ctx.Err()
	}, ClassifyHTTPError)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected timed out attempt to be retried once, got %d attempts", attempts)
	}
}

func TestCallReturnsValue(t *testing.T) {
	exec := NewExecutor(Config{BreakerEnabled: false})

	got, err := Call(context.Background(), exec, "value", func(context.Context) (int, error) {
		return 42, nil
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
}

func TestClassifyHTTPError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
		record    bool
	}{
		{name: "service unavailable", err: &StatusError{StatusCode: 503}, retryable: true, record: true},
		{name: "too many requests", err: &StatusError{StatusCode: 429}, retryable: true, record: true},
		{name: "bad request", err: &StatusError{StatusCode: 400}},
		{name: "canceled", err: context.Canceled},
		{name: "deadline", err: context.DeadlineExceeded, retryable: true, record: true},
		{name: "unknown", err: errors.New("boom"), record: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ClassifyHTTPError(tc.err)
			if got.Retryable != tc.retryable || got.RecordFailure != tc.record {
				t.Fatalf("classification = %+v, want retryable=%v record=%v", got, tc.retryable, tc.record)
			}
		})
	}
}

func TestWrapProviderErrorKinds(t *testing.T) {
	temp := WrapProviderError("embed", &StatusError{Provider: "ollama", Operation: "embed", StatusCode: 503, Status: "503 Service Unavailable"})
	if !domain.IsKind(temp, domain.ErrTemporary) {
		t.Fatalf("expected temporary kind, got %v", temp)
	}
	perm := WrapProviderError("embed", &StatusError{Provider: "ollama", Operation: "embed", StatusCode: 404, Status: "404 Not Found"})
	if !domain.IsKind(perm, domain.ErrProviderUnavailable) {
		t.Fatalf("expected provider unavailable kind, got %v", perm)
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	cfg := Config{
		RetryInitialBackoff: 100 * time.Millisecond,
		RetryMaxBackoff:     350 * time.Millisecond,
		RetryMultiplier:     2,
	}.normalize()

	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 350 * time.Millisecond, 350 * time.Millisecond}
	for i, w := range want {
		if got := cfg.backoffAt(i + 1); got != w {
			t.Fatalf("backoffAt(%d) = %s, want %s", i+1, got, w)
		}
	}
}

func TestWaitAppliesJitterWithinBounds(t *testing.T) {
	exec := NewExecutor(Config{
		RetryInitialBackoff: 100 * time.Millisecond,
		RetryMaxBackoff:     100 * time.Millisecond,
		RetryJitter:         0.2,
	})

	exec.jitter = func() float64 { return 0 }
	if got := exec.wait(1); got != 80*time.Millisecond {
		t.Fatalf("low jitter wait = %s, want 80ms", got)
	}
	exec.jitter = func() float64 { return 1 }
	if got := exec.wait(1); got != 120*time.Millisecond {
		t.Fatalf("high jitter wait = %s, want 120ms", got)
	}

	exec.cfg.RetryJitter = 0
	if got := exec.wait(1); got != 100*time.Millisecond {
		t.Fatalf("jitter disabled wait = %s, want 100ms", got)
	}
}

func TestNormalizeClampsJitter(t *testing.T) {
	if got := (Config{RetryJitter: 3}).normalize().RetryJitter; got != 1 {
		t.Fatalf("expected jitter clamped to 1, got %v", got)
	}
	if got := (Config{RetryJitter: -1}).normalize().RetryJitter; got != 0 {
		t.Fatalf("expected jitter clamped to 0, got %v", got)
	}
}

func TestStateListenerAndOpenBreakers(t *testing.T) {
	var transitions []string
	exec := NewExecutor(Config{
		RetryMaxAttempts:    1,
		BreakerEnabled:      true,
		BreakerMinRequests:  1,
		BreakerFailureRatio: 0.5,
		BreakerOpenTimeout:  time.Minute,
	}, WithStateListener(func(op string, from, to gobreaker.State) {
		transitions = append(transitions, op+":"+from.String()+"->"+to.String())
	}))

	boom := errors.New("boom")
	_ = exec.Execute(context.Background(), "qdrant.query", func(context.Context) error { return boom }, nil)
	_ = exec.Execute(context.Background(), "ollama.embed", func(context.Context) error { return nil }, nil)

	if len(transitions) != 1 || transitions[0] != "qdrant.query:closed->open" {
		t.Fatalf("unexpected transitions: %v", transitions)
	}
	open := exec.OpenBreakers()
	if len(open) != 1 || open[0] != "qdrant.query" {
		t.Fatalf("unexpected open breakers: %v", open)
	}
	if exec.BreakerStates()["ollama.embed"] != "closed" {
		t.Fatalf("unexpected states: %v", exec.BreakerStates())
	}
}

func TestRetryStopsWhenContextCancelledDuringBackoff(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    5,
		RetryInitialBackoff: time.Second,
		RetryMaxBackoff:     time.Second,
		BreakerEnabled:      false,
	})

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	errTemp := errors.New("temporary")
	err := exec.Execute(ctx, "op", func(context.Context) error {
		attempts++
		cancel()
		return errTemp
	}, func(error) ErrorClassification { return ErrorClassification{Retryable: true} })

	if !errors.Is(err, errTemp) {
		t.Fatalf("expected last provider error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected no retry after cancel, got %d attempts", attempts)
	}
}
