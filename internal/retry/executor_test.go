package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

// stubClassifier treats errors as transient based on a fixed answer.
type stubClassifier struct {
	transient bool
}

func (s stubClassifier) IsTransient(err error) bool { return s.transient }

// stubStrategy returns a constant tiny delay.
type stubStrategy struct {
	attempts int
}

func (s stubStrategy) NextDelay(int) time.Duration { return time.Millisecond }
func (s stubStrategy) MaxAttempts() int            { return s.attempts }

func TestExecutor_SucceedsFirstAttempt(t *testing.T) {
	e := NewExecutor(stubClassifier{transient: true}, stubStrategy{attempts: 3})

	calls := 0
	err := e.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})

	if err != nil {
		t.Fatalf("Execute() = %v, want nil", err)
	}
	if calls != 1 {
		t.Errorf("operation called %d times, want 1", calls)
	}
}

func TestExecutor_RetriesTransientThenSucceeds(t *testing.T) {
	e := NewExecutor(stubClassifier{transient: true}, stubStrategy{attempts: 5})

	calls := 0
	err := e.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("LOADING")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Execute() = %v, want nil", err)
	}
	if calls != 3 {
		t.Errorf("operation called %d times, want 3", calls)
	}
}

func TestExecutor_FatalErrorStopsImmediately(t *testing.T) {
	e := NewExecutor(stubClassifier{transient: false}, stubStrategy{attempts: 5})

	fatal := errors.New("WRONGPASS invalid username-password pair")
	calls := 0
	err := e.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return fatal
	})

	if !errors.Is(err, fatal) {
		t.Fatalf("Execute() = %v, want %v", err, fatal)
	}
	if calls != 1 {
		t.Errorf("operation called %d times, want 1", calls)
	}
}

func TestExecutor_ExhaustsAttempts(t *testing.T) {
	e := NewExecutor(stubClassifier{transient: true}, stubStrategy{attempts: 2})

	transient := errors.New("connection refused")
	calls := 0
	err := e.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return transient
	})

	if !errors.Is(err, transient) {
		t.Fatalf("Execute() = %v, want last transient error", err)
	}
	// 1 initial attempt + 2 retries.
	if calls != 3 {
		t.Errorf("operation called %d times, want 3", calls)
	}
}

func TestExecutor_ContextCancellationDuringBackoff(t *testing.T) {
	strategy := NewExponentialBackoff(10,
		WithInitialDelay(time.Hour), // never elapses in the test
		WithJitter(0),
	)
	e := NewExecutor(stubClassifier{transient: true}, strategy)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := e.Execute(ctx, func(ctx context.Context) error {
		return errors.New("connection refused")
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Execute() = %v, want context.Canceled", err)
	}
}

func TestExecutor_OnRetryCallback(t *testing.T) {
	base := NewExecutor(stubClassifier{transient: true}, stubStrategy{attempts: 2})

	var attempts []int
	e := base.WithOnRetry(func(attempt int, err error, delay time.Duration) {
		attempts = append(attempts, attempt)
	})

	_ = e.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("i/o timeout")
	})

	if len(attempts) != 2 || attempts[0] != 0 || attempts[1] != 1 {
		t.Errorf("onRetry attempts = %v, want [0 1]", attempts)
	}

	// The base executor must be unchanged.
	if base.onRetry != nil {
		t.Error("WithOnRetry mutated the receiver")
	}
}

func TestNewExecutor_PanicsOnNilDeps(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("NewExecutor(nil, nil) did not panic")
		}
	}()
	NewExecutor(nil, nil)
}
