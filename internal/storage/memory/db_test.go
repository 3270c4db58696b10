package memory

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/avstrong/hotelbooking/internal/booking"
	"github.com/avstrong/hotelbooking/internal/logger"
)

type failingPersister struct {
	calls int
}

func (p *failingPersister) Persist(context.Context, []booking.Hotel, []booking.Booking) error {
	p.calls++

	return errors.New("disk full")
}

func newTestDB(p Persister) *DB {
	return New(Config{
		L:         logger.New(log.New(io.Discard, "", 0)),
		Persister: p,
		Hotels:    []booking.Hotel{{ID: "H1", TotalRooms: 5}},
	})
}

func testBooking(t *testing.T, id string) booking.Booking {
	t.Helper()

	r, err := booking.ParseDateRange("2024-02-15", "2024-02-17")
	if err != nil {
		t.Fatalf("parse range: %v", err)
	}

	return booking.Booking{ID: id, HotelID: "H1", Range: r, Rooms: 1}
}

func TestStagedWritesAreInvisibleUntilCommit(t *testing.T) {
	db := newTestDB(nil)

	ctx, err := db.BeginTransaction(context.Background(), "")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	if err = db.InsertBooking(ctx, testBooking(t, "b1")); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if _, err = db.GetBooking(ctx, "b1"); !errors.Is(err, booking.ErrRecordNotFound) {
		t.Errorf("staged insert must not be visible, got %v", err)
	}

	if err = db.CommitTransaction(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if _, err = db.GetBooking(ctx, "b1"); err != nil {
		t.Errorf("committed insert must be visible: %v", err)
	}
}

func TestRollbackDiscardsWrites(t *testing.T) {
	db := newTestDB(nil)

	ctx, _ := db.BeginTransaction(context.Background(), "")

	if err := db.InsertBooking(ctx, testBooking(t, "b1")); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := db.RollbackTransaction(ctx); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	if err := db.CommitTransaction(ctx); !errors.Is(err, ErrTransactionNotFound) {
		t.Errorf("expected ErrTransactionNotFound after rollback, got %v", err)
	}

	bookings, _ := db.ListBookings(context.Background())
	if len(bookings) != 0 {
		t.Errorf("expected no bookings, got %+v", bookings)
	}
}

func TestCommitIsAtomic(t *testing.T) {
	db := newTestDB(nil)

	ctx, _ := db.BeginTransaction(context.Background(), "")
	_ = db.InsertBooking(ctx, testBooking(t, "b1"))
	_ = db.RemoveBooking(ctx, "missing")

	if err := db.CommitTransaction(ctx); !errors.Is(err, booking.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}

	if _, err := db.GetBooking(context.Background(), "b1"); !errors.Is(err, booking.ErrRecordNotFound) {
		t.Errorf("partial commit must be undone, got %v", err)
	}
}

func TestFailedPersistUndoesCommit(t *testing.T) {
	p := &failingPersister{}
	db := newTestDB(p)

	ctx, _ := db.BeginTransaction(context.Background(), "")
	_ = db.InsertBooking(ctx, testBooking(t, "b1"))

	if err := db.CommitTransaction(ctx); err == nil {
		t.Fatal("expected the persist error")
	}

	if p.calls != 1 {
		t.Errorf("expected one persist call, got %d", p.calls)
	}

	bookings, _ := db.ListBookings(context.Background())
	if len(bookings) != 0 {
		t.Errorf("expected no bookings, got %+v", bookings)
	}
}

func TestListKeepsInsertionOrder(t *testing.T) {
	db := newTestDB(nil)

	for _, id := range []string{"z", "a", "m"} {
		ctx, _ := db.BeginTransaction(context.Background(), "")
		_ = db.InsertBooking(ctx, testBooking(t, id))

		if err := db.CommitTransaction(ctx); err != nil {
			t.Fatalf("commit %s: %v", id, err)
		}
	}

	ctx, _ := db.BeginTransaction(context.Background(), "")
	updated := testBooking(t, "z")
	updated.Rooms = 3
	_ = db.ReplaceBooking(ctx, updated)

	if err := db.CommitTransaction(ctx); err != nil {
		t.Fatalf("commit replace: %v", err)
	}

	bookings, _ := db.ListBookingsByHotel(context.Background(), "H1")
	if len(bookings) != 3 || bookings[0].ID != "z" || bookings[0].Rooms != 3 || bookings[1].ID != "a" || bookings[2].ID != "m" {
		t.Errorf("unexpected order %+v", bookings)
	}
}

func TestWritesRequireTransaction(t *testing.T) {
	db := newTestDB(nil)

	if err := db.InsertBooking(context.Background(), testBooking(t, "b1")); !errors.Is(err, ErrTransactionIDNotFoundInCtx) {
		t.Errorf("expected ErrTransactionIDNotFoundInCtx, got %v", err)
	}
}
