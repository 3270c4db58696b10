package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errFake = errors.New("fake error")

func failingTimes(n int) (func(context.Context) (int, error), *int) {
	calls := 0

	return func(context.Context) (int, error) {
		calls++
		if calls <= n {
			return 0, errFake
		}

		return calls, nil
	}, &calls
}

func fastBackoff(maxRetries int) *ExponentialBackoff {
	return NewExponentialBackoff(Backoff{
		MaxRetries:       maxRetries,
		InitialDelay:     time.Millisecond,
		MaxDelay:         4 * time.Millisecond,
		JitterPercentage: 0.1,
	})
}

func TestRetrierRecovers(t *testing.T) {
	action, calls := failingTimes(5)

	got, err := New[int](fastBackoff(-1)).Do(context.Background(), action)
	if err != nil {
		t.Fatal(err)
	}

	if got != 6 || *calls != 6 {
		t.Fatalf("expected success on the 6th call, got result %d after %d calls", got, *calls)
	}
}

func TestRetrierGivesUp(t *testing.T) {
	action, calls := failingTimes(10)

	_, err := New[int](fastBackoff(3)).Do(context.Background(), action)
	if !errors.Is(err, errFake) {
		t.Fatalf("expected fake error, got %v", err)
	}

	if *calls != 4 {
		t.Fatalf("expected 1 call and 3 retries, got %d calls", *calls)
	}
}

func TestRetrierStopsOnPermanentError(t *testing.T) {
	calls := 0

	_, err := New[struct{}](fastBackoff(-1)).Do(context.Background(), func(context.Context) (struct{}, error) {
		calls++

		return struct{}{}, ErrPermanent
	})
	if !errors.Is(err, ErrPermanent) || calls != 1 {
		t.Fatalf("expected a single call ending with ErrPermanent, got %d calls and %v", calls, err)
	}
}

func TestRetrierHonoursContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := New[int](fastBackoff(-1)).Do(ctx, func(context.Context) (int, error) {
		return 0, errFake
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestNeverRetries(t *testing.T) {
	action, calls := failingTimes(1)

	if _, err := New[int](Never{}).Do(context.Background(), action); !errors.Is(err, errFake) {
		t.Fatalf("expected fake error, got %v", err)
	}

	if *calls != 1 {
		t.Fatalf("expected exactly one call, got %d", *calls)
	}
}
