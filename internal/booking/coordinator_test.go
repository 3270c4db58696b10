package booking_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/avstrong/hotelbooking/internal/booking"
	"github.com/avstrong/hotelbooking/internal/idgen/simple"
	"github.com/avstrong/hotelbooking/internal/lock"
	"github.com/avstrong/hotelbooking/internal/storage/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []booking.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event booking.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return p.err
}

type countingRecorder struct {
	mu       sync.Mutex
	outcomes map[string]int
	inFlight atomic.Int32
}

func (r *countingRecorder) OperationStarted(string) func() {
	r.inFlight.Add(1)

	return func() { r.inFlight.Add(-1) }
}

func (r *countingRecorder) ObserveOutcome(operation, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.outcomes == nil {
		r.outcomes = make(map[string]int)
	}

	r.outcomes[operation+"/"+outcome]++
}

func (r *countingRecorder) ObserveLockWait(time.Duration) {}

func newCoordinator(db *memory.DB, conf booking.CoordinatorConfig) *booking.Coordinator {
	conf.L = testLogger()
	conf.Ledger = booking.NewLedger(conf.L, db, simple.New("b"))

	if conf.Locker == nil {
		conf.Locker = lock.NewLocal()
	}

	return booking.NewCoordinator(conf)
}

func TestCoordinatorScenario(t *testing.T) {
	ctx := context.Background()
	publisher := &recordingPublisher{}
	recorder := &countingRecorder{}
	c := newCoordinator(newDB(5), booking.CoordinatorConfig{Publisher: publisher, Recorder: recorder})

	a, err := c.CreateBooking(ctx, booking.CreateInput{HotelID: "H1", Range: mustRange(t, "2024-02-15", "2024-02-17"), Rooms: 2})
	if err != nil {
		t.Fatalf("create A: %v", err)
	}

	_, err = c.CreateBooking(ctx, booking.CreateInput{HotelID: "H1", Range: mustRange(t, "2024-02-16", "2024-02-18"), Rooms: 4})
	if booking.IsUnavailableError(err) == nil {
		t.Fatalf("B must be rejected, got %v", err)
	}

	cb, err := c.CreateBooking(ctx, booking.CreateInput{HotelID: "H1", Range: mustRange(t, "2024-02-16", "2024-02-18"), Rooms: 3})
	if err != nil {
		t.Fatalf("C must be admitted: %v", err)
	}

	if _, err = c.UpdateBooking(ctx, booking.UpdateInput{BookingID: cb.ID, Range: cb.Range, Rooms: 2}); err != nil {
		t.Fatalf("update C: %v", err)
	}

	if err = c.DeleteBooking(ctx, a.ID); err != nil {
		t.Fatalf("delete A: %v", err)
	}

	if err = c.DeleteBooking(ctx, a.ID); !errors.Is(err, booking.ErrBookingNotFound) {
		t.Errorf("expected ErrBookingNotFound, got %v", err)
	}

	want := []booking.EventType{
		booking.EventBookingCreated,
		booking.EventBookingCreated,
		booking.EventBookingUpdated,
		booking.EventBookingDeleted,
	}

	if len(publisher.events) != len(want) {
		t.Fatalf("expected %d events, got %+v", len(want), publisher.events)
	}

	for i, e := range publisher.events {
		if e.Type != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], e.Type)
		}
	}

	if recorder.outcomes["create/rejected"] != 1 || recorder.outcomes["create/admitted"] != 2 {
		t.Errorf("unexpected outcomes %v", recorder.outcomes)
	}

	if recorder.inFlight.Load() != 0 {
		t.Errorf("expected no operation in flight, got %d", recorder.inFlight.Load())
	}
}

func TestCoordinatorPublishFailureKeepsCommit(t *testing.T) {
	ctx := context.Background()
	db := newDB(5)
	c := newCoordinator(db, booking.CoordinatorConfig{Publisher: &recordingPublisher{err: errors.New("broker down")}})

	if _, err := c.CreateBooking(ctx, booking.CreateInput{HotelID: "H1", Range: mustRange(t, "2024-02-15", "2024-02-17"), Rooms: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}

	bookings, _ := db.ListBookings(ctx)
	if len(bookings) != 1 {
		t.Errorf("expected the booking to stay, got %+v", bookings)
	}
}

// watchOccupancy samples the committed bookings of hotel until the returned
// func is called and fails the test when a day is ever booked over capacity.
func watchOccupancy(t *testing.T, db *memory.DB, hotel booking.Hotel, r booking.DateRange) (stop func() int) {
	t.Helper()

	var (
		wg      sync.WaitGroup
		samples int
	)

	done := make(chan struct{})

	wg.Add(1)

	go func() {
		defer wg.Done()

		for {
			existing, err := db.ListBookingsByHotel(context.Background(), hotel.ID)
			if err != nil {
				t.Errorf("list bookings: %v", err)

				return
			}

			days, err := booking.DailyAvailability(hotel, existing, r)
			if err != nil {
				t.Errorf("daily availability: %v", err)

				return
			}

			samples++

			for _, d := range days {
				if d.Booked > hotel.TotalRooms {
					t.Errorf("%s oversold while requests were running: %d booked", d.Date.Format(booking.DateLayout), d.Booked)

					return
				}
			}

			select {
			case <-done:
				return
			default:
			}
		}
	}()

	return func() int {
		close(done)
		wg.Wait()

		return samples
	}
}

func TestCoordinatorNoOversellUnderConcurrency(t *testing.T) {
	const (
		rooms   = 5
		workers = 50
	)

	ctx := context.Background()
	db := newDB(rooms)
	c := newCoordinator(db, booking.CoordinatorConfig{})
	r := mustRange(t, "2024-02-15", "2024-02-17")
	stop := watchOccupancy(t, db, booking.Hotel{ID: "H1", TotalRooms: rooms}, r)

	var (
		wg       sync.WaitGroup
		admitted atomic.Int32
		rejected atomic.Int32
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := c.CreateBooking(ctx, booking.CreateInput{HotelID: "H1", Range: r, Rooms: 1})

			switch {
			case err == nil:
				admitted.Add(1)
			case booking.IsUnavailableError(err) != nil:
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	wg.Wait()

	if stop() == 0 {
		t.Error("expected occupancy to be sampled at least once")
	}

	if admitted.Load() != rooms || rejected.Load() != workers-rooms {
		t.Errorf("expected %d admitted and %d rejected, got %d and %d",
			rooms, workers-rooms, admitted.Load(), rejected.Load())
	}

	existing, _ := db.ListBookingsByHotel(ctx, "H1")

	days, err := booking.DailyAvailability(booking.Hotel{ID: "H1", TotalRooms: rooms}, existing, r)
	if err != nil {
		t.Fatalf("daily availability: %v", err)
	}

	for _, d := range days {
		if d.Booked > rooms {
			t.Errorf("%s oversold: %d booked", d.Date.Format(booking.DateLayout), d.Booked)
		}
	}
}

func TestCoordinatorRacingRequestsAdmitOne(t *testing.T) {
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		c := newCoordinator(newDB(5), booking.CoordinatorConfig{})

		if _, err := c.CreateBooking(ctx, booking.CreateInput{HotelID: "H1", Range: mustRange(t, "2024-02-15", "2024-02-17"), Rooms: 2}); err != nil {
			t.Fatalf("create A: %v", err)
		}

		var (
			wg       sync.WaitGroup
			admitted atomic.Int32
		)

		for _, rooms := range []int{4, 3} {
			wg.Add(1)

			go func(rooms int) {
				defer wg.Done()

				_, err := c.CreateBooking(ctx, booking.CreateInput{HotelID: "H1", Range: mustRange(t, "2024-02-16", "2024-02-18"), Rooms: rooms})
				if err == nil {
					admitted.Add(1)
				}
			}(rooms)
		}

		wg.Wait()

		if admitted.Load() > 1 {
			t.Fatalf("iteration %d: both racing requests were admitted", i)
		}
	}
}

func TestCoordinatorConcurrentUpdatesNoOversell(t *testing.T) {
	const rooms = 4

	ctx := context.Background()
	db := newDB(rooms)
	c := newCoordinator(db, booking.CoordinatorConfig{})
	r := mustRange(t, "2024-02-15", "2024-02-17")

	ids := make([]string, 0, rooms)

	for i := 0; i < rooms; i++ {
		b, err := c.CreateBooking(ctx, booking.CreateInput{HotelID: "H1", Range: r, Rooms: 1})
		if err != nil {
			t.Fatalf("create: %v", err)
		}

		ids = append(ids, b.ID)
	}

	for _, id := range ids[1:] {
		if err := c.DeleteBooking(ctx, id); err != nil {
			t.Fatalf("delete: %v", err)
		}
	}

	stop := watchOccupancy(t, db, booking.Hotel{ID: "H1", TotalRooms: rooms}, r)

	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(2)

		go func() {
			defer wg.Done()

			_, _ = c.UpdateBooking(ctx, booking.UpdateInput{BookingID: ids[0], Range: r, Rooms: 3})
		}()

		go func() {
			defer wg.Done()

			_, _ = c.CreateBooking(ctx, booking.CreateInput{HotelID: "H1", Range: r, Rooms: 1})
		}()
	}

	wg.Wait()

	if stop() == 0 {
		t.Error("expected occupancy to be sampled at least once")
	}

	existing, _ := db.ListBookingsByHotel(ctx, "H1")

	days, err := booking.DailyAvailability(booking.Hotel{ID: "H1", TotalRooms: rooms}, existing, r)
	if err != nil {
		t.Fatalf("daily availability: %v", err)
	}

	for _, d := range days {
		if d.Booked > rooms {
			t.Errorf("%s oversold: %d booked", d.Date.Format(booking.DateLayout), d.Booked)
		}
	}
}

func TestCoordinatorLockTimeout(t *testing.T) {
	ctx := context.Background()
	db := newDB(5)
	c := newCoordinator(db, booking.CoordinatorConfig{LockTimeout: 20 * time.Millisecond})

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- c.WithHotelLock(ctx, "H1", func(context.Context) error {
			close(held)
			<-release

			return nil
		})
	}()

	<-held

	_, err := c.CreateBooking(ctx, booking.CreateInput{HotelID: "H1", Range: mustRange(t, "2024-02-15", "2024-02-17"), Rooms: 1})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected a lock timeout, got %v", err)
	}

	close(release)

	if err = <-done; err != nil {
		t.Fatalf("holder: %v", err)
	}

	bookings, _ := db.ListBookings(ctx)
	if len(bookings) != 0 {
		t.Errorf("timed out create must not be stored, got %+v", bookings)
	}

	if _, err = c.CreateBooking(ctx, booking.CreateInput{HotelID: "H1", Range: mustRange(t, "2024-02-15", "2024-02-17"), Rooms: 1}); err != nil {
		t.Errorf("create after release: %v", err)
	}
}

func TestCoordinatorReleasesLockOnPanic(t *testing.T) {
	c := newCoordinator(newDB(5), booking.CoordinatorConfig{LockTimeout: time.Second})

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected the panic to propagate")
			}
		}()

		_ = c.WithHotelLock(context.Background(), "H1", func(context.Context) error {
			panic("boom")
		})
	}()

	err := c.WithHotelLock(context.Background(), "H1", func(context.Context) error { return nil })
	if err != nil {
		t.Errorf("lock must be free after a panic: %v", err)
	}
}

func TestCoordinatorDifferentHotelsDoNotBlock(t *testing.T) {
	db := memory.New(memory.Config{
		L: testLogger(),
		Hotels: []booking.Hotel{
			{ID: "H1", TotalRooms: 1},
			{ID: "H2", TotalRooms: 1},
		},
	})
	c := newCoordinator(db, booking.CoordinatorConfig{LockTimeout: 50 * time.Millisecond})

	err := c.WithHotelLock(context.Background(), "H1", func(ctx context.Context) error {
		_, err := c.CreateBooking(ctx, booking.CreateInput{HotelID: "H2", Range: mustRange(t, "2024-02-15", "2024-02-17"), Rooms: 1})

		return err
	})
	if err != nil {
		t.Errorf("booking another hotel while holding H1: %v", err)
	}
}

type blockingIDGenerator struct{}

func (blockingIDGenerator) GetID(ctx context.Context) (string, error) {
	<-ctx.Done()

	return "", ctx.Err()
}

func TestCoordinatorOperationTimeoutRollsBack(t *testing.T) {
	ctx := context.Background()
	db := newDB(5)

	//nolint:exhaustruct
	c := booking.NewCoordinator(booking.CoordinatorConfig{
		L:                testLogger(),
		Ledger:           booking.NewLedger(testLogger(), db, blockingIDGenerator{}),
		Locker:           lock.NewLocal(),
		OperationTimeout: 20 * time.Millisecond,
	})

	_, err := c.CreateBooking(ctx, booking.CreateInput{HotelID: "H1", Range: mustRange(t, "2024-02-15", "2024-02-17"), Rooms: 1})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	bookings, _ := db.ListBookings(ctx)
	if len(bookings) != 0 {
		t.Errorf("expected nothing committed, got %+v", bookings)
	}

	err = c.WithHotelLock(ctx, "H1", func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("expected the operation context to carry a deadline")
		}

		return nil
	})
	if err != nil {
		t.Errorf("lock was not released after the timeout: %v", err)
	}
}
