package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// ErrPermanent marks an error that must not be retried.
var ErrPermanent = errors.New("permanent error")

type Decision struct {
	TimeToWait  time.Duration
	ReturnError bool
}

type Strategy interface {
	HandleError(err error) Decision
	HandleSuccess()
}

// Retrier repeats an action until it succeeds, the strategy gives up or the
// context is done. A Retrier is not safe for concurrent use.
type Retrier[T any] struct {
	strategy Strategy
}

func New[T any](strategy Strategy) *Retrier[T] {
	return &Retrier[T]{strategy: strategy}
}

func (r *Retrier[T]) Do(ctx context.Context, action func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	for {
		result, err := action(ctx)
		if err == nil {
			r.strategy.HandleSuccess()

			return result, nil
		}

		if errors.Is(err, ErrPermanent) {
			return zero, err
		}

		decision := r.strategy.HandleError(err)
		if decision.ReturnError {
			return zero, err
		}

		timer := time.NewTimer(decision.TimeToWait)

		select {
		case <-ctx.Done():
			timer.Stop()

			return zero, errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
}

type Backoff struct {
	MaxRetries       int // -1 retries forever
	InitialDelay     time.Duration
	MaxDelay         time.Duration
	JitterPercentage float64
}

type ExponentialBackoff struct {
	conf      Backoff
	retries   int
	nextDelay time.Duration
	rnd       *rand.Rand
}

func NewExponentialBackoff(conf Backoff) *ExponentialBackoff {
	return &ExponentialBackoff{
		conf:      conf,
		nextDelay: conf.InitialDelay,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec
	}
}

func (s *ExponentialBackoff) HandleError(_ error) Decision {
	if s.conf.MaxRetries != -1 && s.retries >= s.conf.MaxRetries {
		return Decision{ReturnError: true}
	}

	s.retries++
	current := s.nextDelay

	next := s.nextDelay * 2 //nolint:gomnd
	if next > s.conf.MaxDelay {
		next = s.conf.MaxDelay
	}

	s.nextDelay = s.withJitter(next)

	return Decision{TimeToWait: current}
}

func (s *ExponentialBackoff) HandleSuccess() {
	s.retries = 0
	s.nextDelay = s.conf.InitialDelay
}

func (s *ExponentialBackoff) withJitter(d time.Duration) time.Duration {
	maxJitter := int64(float64(d) * s.conf.JitterPercentage)
	if maxJitter <= 0 {
		return d
	}

	return d + time.Duration(s.rnd.Int63n(maxJitter)-maxJitter/2) //nolint:gomnd
}

type Never struct{}

func (Never) HandleError(error) Decision { return Decision{ReturnError: true} }

func (Never) HandleSuccess() {}
