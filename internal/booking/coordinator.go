package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/avstrong/hotelbooking/internal/logger"
)

const tracerName = "github.com/avstrong/hotelbooking/internal/booking"

// Outcome is the terminal state of a coordinated operation. Every operation
// starts as OutcomePending once the hotel lock is held.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeAdmitted
	OutcomeRejected
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeAdmitted:
		return "admitted"
	case OutcomeRejected:
		return "rejected"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeAdmitted
	case IsUnavailableError(err) != nil:
		return OutcomeRejected
	default:
		return OutcomeFailed
	}
}

type locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type eventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

type recorder interface {
	OperationStarted(operation string) (done func())
	ObserveOutcome(operation, outcome string)
	ObserveLockWait(d time.Duration)
}

type CoordinatorConfig struct {
	L         *logger.Logger
	Ledger    *Ledger
	Locker    locker
	Publisher eventPublisher
	Recorder  recorder
	// LockTimeout bounds the wait for a hotel lock. Zero waits until ctx is done.
	LockTimeout time.Duration
	// OperationTimeout bounds op once the lock is held. A lock that expires on
	// its own must outlive it, otherwise a second owner can commit alongside.
	OperationTimeout time.Duration
	Tracer           trace.Tracer
}

// Coordinator serializes check-then-commit sequences per hotel.
type Coordinator struct {
	l           *logger.Logger
	ledger      *Ledger
	locker      locker
	publisher   eventPublisher
	recorder    recorder
	lockTimeout time.Duration
	opTimeout   time.Duration
	tracer      trace.Tracer
}

func NewCoordinator(conf CoordinatorConfig) *Coordinator {
	c := &Coordinator{
		l:           conf.L,
		ledger:      conf.Ledger,
		locker:      conf.Locker,
		publisher:   conf.Publisher,
		recorder:    conf.Recorder,
		lockTimeout: conf.LockTimeout,
		opTimeout:   conf.OperationTimeout,
		tracer:      conf.Tracer,
	}

	if c.publisher == nil {
		c.publisher = nopPublisher{}
	}

	if c.recorder == nil {
		c.recorder = nopRecorder{}
	}

	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}

	return c
}

// WithHotelLock runs op while holding the exclusive lock of hotelID. The lock
// is released on every exit path, panics included. op gets a context bounded
// by the operation timeout; the ledger rolls back when it expires.
func (c *Coordinator) WithHotelLock(ctx context.Context, hotelID string, op func(ctx context.Context) error) error {
	lockCtx := ctx

	if c.lockTimeout > 0 {
		var cancel context.CancelFunc

		lockCtx, cancel = context.WithTimeout(ctx, c.lockTimeout)
		defer cancel()
	}

	start := time.Now()

	unlock, err := c.locker.Lock(lockCtx, hotelLockKey(hotelID))

	c.recorder.ObserveLockWait(time.Since(start))

	if err != nil {
		return fmt.Errorf("acquire lock of hotel %s: %w", hotelID, err)
	}

	defer unlock()

	if c.opTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, c.opTimeout)
		defer cancel()
	}

	return op(ctx)
}

func (c *Coordinator) CreateBooking(ctx context.Context, input CreateInput) (*Booking, error) {
	if err := input.validate(); err != nil {
		c.recorder.ObserveOutcome("create", OutcomeFailed.String())

		return nil, err
	}

	var created *Booking

	err := c.coordinate(ctx, "create", input.HotelID, func(ctx context.Context) error {
		b, err := c.ledger.Create(ctx, input)
		if err != nil {
			return err
		}

		created = b

		return nil
	}, attribute.Int("booking.rooms", input.Rooms), attribute.String("booking.range", input.Range.String()))
	if err != nil {
		return nil, err
	}

	c.publish(ctx, EventBookingCreated, *created)

	return created, nil
}

// UpdateBooking reports a missing booking before validating the new details.
func (c *Coordinator) UpdateBooking(ctx context.Context, input UpdateInput) (*Booking, error) {
	hotelID, err := c.ledger.HotelOf(ctx, input.BookingID)
	if err != nil {
		c.recorder.ObserveOutcome("update", OutcomeFailed.String())

		return nil, err
	}

	if err = input.validate(); err != nil {
		c.recorder.ObserveOutcome("update", OutcomeFailed.String())

		return nil, err
	}

	var updated *Booking

	err = c.coordinate(ctx, "update", hotelID, func(ctx context.Context) error {
		b, err := c.ledger.Update(ctx, input)
		if err != nil {
			return err
		}

		updated = b

		return nil
	},
		attribute.String("booking.id", input.BookingID),
		attribute.Int("booking.rooms", input.Rooms),
		attribute.String("booking.range", input.Range.String()),
	)
	if err != nil {
		return nil, err
	}

	c.publish(ctx, EventBookingUpdated, *updated)

	return updated, nil
}

// DeleteBooking takes the hotel lock so that no availability check in flight
// observes a half-removed booking.
func (c *Coordinator) DeleteBooking(ctx context.Context, bookingID string) error {
	hotelID, err := c.ledger.HotelOf(ctx, bookingID)
	if err != nil {
		c.recorder.ObserveOutcome("delete", OutcomeFailed.String())

		return err
	}

	var deleted *Booking

	err = c.coordinate(ctx, "delete", hotelID, func(ctx context.Context) error {
		b, err := c.ledger.Delete(ctx, bookingID)
		if err != nil {
			return err
		}

		deleted = b

		return nil
	}, attribute.String("booking.id", bookingID))
	if err != nil {
		return err
	}

	c.publish(ctx, EventBookingDeleted, *deleted)

	return nil
}

func (c *Coordinator) ListBookings(ctx context.Context) ([]Booking, error) {
	return c.ledger.ListAll(ctx)
}

func (c *Coordinator) Availability(ctx context.Context, hotelID string, r DateRange) ([]DayCapacity, error) {
	return c.ledger.Availability(ctx, hotelID, r)
}

func (c *Coordinator) coordinate(
	ctx context.Context,
	operation, hotelID string,
	fn func(ctx context.Context) error,
	attrs ...attribute.KeyValue,
) error {
	ctx, span := c.tracer.Start(ctx, "booking."+operation,
		trace.WithAttributes(append(attrs, attribute.String("hotel.id", hotelID))...))
	defer span.End()

	done := c.recorder.OperationStarted(operation)
	defer done()

	err := c.WithHotelLock(ctx, hotelID, fn)
	outcome := OutcomeOf(err)

	span.SetAttributes(attribute.String("booking.outcome", outcome.String()))
	c.recorder.ObserveOutcome(operation, outcome.String())

	switch outcome {
	case OutcomeAdmitted:
		span.SetStatus(codes.Ok, operation+" committed")
		c.l.LogDebugf("Booking %s in hotel %s has been committed", operation, hotelID)
	case OutcomeRejected:
		span.SetStatus(codes.Ok, operation+" rejected")
		c.l.LogInfo("Booking %s in hotel %s has been rejected: %v", operation, hotelID, err.Error())
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		if !errors.Is(err, ErrBookingNotFound) && !errors.Is(err, ErrHotelNotFound) {
			c.l.LogErrorf("Booking %s in hotel %s failed: %v", operation, hotelID, err.Error())
		}
	}

	return err
}

func (c *Coordinator) publish(ctx context.Context, eventType EventType, b Booking) {
	event := Event{
		Type:       eventType,
		Booking:    b,
		OccurredAt: time.Now().UTC(),
	}

	if err := c.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		c.l.LogErrorf("Could not publish %s event of booking %s: %v", eventType, b.ID, err.Error())
	}
}

func hotelLockKey(hotelID string) string {
	return "hotel:" + hotelID
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }

type nopRecorder struct{}

func (nopRecorder) OperationStarted(string) func() { return func() {} }

func (nopRecorder) ObserveOutcome(string, string) {}

func (nopRecorder) ObserveLockWait(time.Duration) {}
