package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/avstrong/hotelbooking/internal/logger"
)

const isolationLevel = "READ COMMITTED"

type idGenerator interface {
	GetID(ctx context.Context) (string, error)
}

type storageReader interface {
	GetHotel(ctx context.Context, id string) (Hotel, error)
	ListHotels(ctx context.Context) ([]Hotel, error)
	GetBooking(ctx context.Context, id string) (Booking, error)
	ListBookings(ctx context.Context) ([]Booking, error)
	ListBookingsByHotel(ctx context.Context, hotelID string) ([]Booking, error)
}

type storageWriter interface {
	BeginTransaction(ctx context.Context, level string) (context.Context, error)
	CommitTransaction(ctx context.Context) error
	RollbackTransaction(ctx context.Context) error
	InsertBooking(ctx context.Context, b Booking) error
	ReplaceBooking(ctx context.Context, b Booking) error
	RemoveBooking(ctx context.Context, id string) error
}

type storage interface {
	storageReader
	storageWriter
}

type CreateInput struct {
	HotelID string
	Range   DateRange
	Rooms   int
}

func (in CreateInput) validate() error {
	if err := in.Range.Validate(); err != nil {
		return err
	}

	if in.Rooms <= 0 {
		return fmt.Errorf("%d: %w", in.Rooms, ErrInvalidRooms)
	}

	return nil
}

type UpdateInput struct {
	BookingID string
	Range     DateRange
	Rooms     int
}

func (in UpdateInput) validate() error {
	if err := in.Range.Validate(); err != nil {
		return err
	}

	if in.Rooms <= 0 {
		return fmt.Errorf("%d: %w", in.Rooms, ErrInvalidRooms)
	}

	return nil
}

// Ledger is the only writer of booking records. Mutating methods expect the
// caller to hold the lock of the affected hotel.
type Ledger struct {
	l           *logger.Logger
	storage     storage
	idGenerator idGenerator
}

func NewLedger(l *logger.Logger, storage storage, idGenerator idGenerator) *Ledger {
	return &Ledger{
		l:           l,
		storage:     storage,
		idGenerator: idGenerator,
	}
}

func (m *Ledger) Create(ctx context.Context, input CreateInput) (*Booking, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	var created *Booking

	err := m.inTransaction(ctx, "create booking", func(ctx context.Context) error {
		hotel, err := m.hotel(ctx, input.HotelID)
		if err != nil {
			return err
		}

		existing, err := m.storage.ListBookingsByHotel(ctx, hotel.ID)
		if err != nil {
			return newStorageError(fmt.Sprintf("list bookings of hotel %s", hotel.ID), err)
		}

		if err = m.admit(hotel, existing, input.Range, input.Rooms); err != nil {
			return err
		}

		id, err := m.idGenerator.GetID(ctx)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrNextID, err)
		}

		b := Booking{
			ID:      id,
			HotelID: hotel.ID,
			Range:   input.Range,
			Rooms:   input.Rooms,
		}

		if err = m.storage.InsertBooking(ctx, b); err != nil {
			return newStorageError(fmt.Sprintf("insert booking %s", b.ID), err)
		}

		created = &b

		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// Update replaces the range and rooms of a booking. The booking stays in its hotel.
func (m *Ledger) Update(ctx context.Context, input UpdateInput) (*Booking, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	var updated *Booking

	err := m.inTransaction(ctx, "update booking", func(ctx context.Context) error {
		current, err := m.booking(ctx, input.BookingID)
		if err != nil {
			return err
		}

		hotel, err := m.hotel(ctx, current.HotelID)
		if err != nil {
			return err
		}

		existing, err := m.storage.ListBookingsByHotel(ctx, hotel.ID)
		if err != nil {
			return newStorageError(fmt.Sprintf("list bookings of hotel %s", hotel.ID), err)
		}

		if err = m.admit(hotel, ExcludeBooking(existing, current.ID), input.Range, input.Rooms); err != nil {
			return err
		}

		b := Booking{
			ID:      current.ID,
			HotelID: current.HotelID,
			Range:   input.Range,
			Rooms:   input.Rooms,
		}

		if err = m.storage.ReplaceBooking(ctx, b); err != nil {
			return newStorageError(fmt.Sprintf("replace booking %s", b.ID), err)
		}

		updated = &b

		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// Delete removes a booking and returns the removed record.
func (m *Ledger) Delete(ctx context.Context, bookingID string) (*Booking, error) {
	var deleted *Booking

	err := m.inTransaction(ctx, "delete booking", func(ctx context.Context) error {
		current, err := m.booking(ctx, bookingID)
		if err != nil {
			return err
		}

		if err = m.storage.RemoveBooking(ctx, current.ID); err != nil {
			return newStorageError(fmt.Sprintf("remove booking %s", current.ID), err)
		}

		deleted = &current

		return nil
	})
	if err != nil {
		return nil, err
	}

	return deleted, nil
}

// HotelOf returns the hotel a booking belongs to without taking any lock.
func (m *Ledger) HotelOf(ctx context.Context, bookingID string) (string, error) {
	b, err := m.booking(ctx, bookingID)
	if err != nil {
		return "", err
	}

	return b.HotelID, nil
}

func (m *Ledger) ListAll(ctx context.Context) ([]Booking, error) {
	bookings, err := m.storage.ListBookings(ctx)
	if err != nil {
		return nil, newStorageError("list bookings", err)
	}

	return bookings, nil
}

func (m *Ledger) ListByHotel(ctx context.Context, hotelID string) ([]Booking, error) {
	bookings, err := m.storage.ListBookingsByHotel(ctx, hotelID)
	if err != nil {
		return nil, newStorageError(fmt.Sprintf("list bookings of hotel %s", hotelID), err)
	}

	return bookings, nil
}

// Availability reports per-day capacity of a hotel. The result may be stale
// relative to in-flight mutations.
func (m *Ledger) Availability(ctx context.Context, hotelID string, r DateRange) ([]DayCapacity, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	hotel, err := m.hotel(ctx, hotelID)
	if err != nil {
		return nil, err
	}

	existing, err := m.ListByHotel(ctx, hotel.ID)
	if err != nil {
		return nil, err
	}

	return DailyAvailability(hotel, existing, r)
}

func (m *Ledger) admit(hotel Hotel, existing []Booking, r DateRange, rooms int) error {
	if peak := peakBooked(hotel.ID, existing, r); peak > hotel.TotalRooms {
		m.l.LogWarn("Hotel %s has %d rooms booked in %s over its capacity of %d, remaining capacity treated as zero", hotel.ID, peak, r, hotel.TotalRooms)
	}

	ok, err := CanAccommodate(hotel, existing, r, rooms)
	if err != nil {
		return err
	}

	if !ok {
		return &UnavailableError{HotelID: hotel.ID, Rooms: rooms, Range: r}
	}

	return nil
}

func (m *Ledger) hotel(ctx context.Context, id string) (Hotel, error) {
	hotel, err := m.storage.GetHotel(ctx, id)
	if errors.Is(err, ErrRecordNotFound) {
		return Hotel{}, fmt.Errorf("hotel %s: %w", id, ErrHotelNotFound)
	}

	if err != nil {
		return Hotel{}, newStorageError(fmt.Sprintf("get hotel %s", id), err)
	}

	return hotel, nil
}

func (m *Ledger) booking(ctx context.Context, id string) (Booking, error) {
	b, err := m.storage.GetBooking(ctx, id)
	if errors.Is(err, ErrRecordNotFound) {
		return Booking{}, fmt.Errorf("booking %s: %w", id, ErrBookingNotFound)
	}

	if err != nil {
		return Booking{}, newStorageError(fmt.Sprintf("get booking %s", id), err)
	}

	return b, nil
}

// inTransaction runs fn in a storage transaction. The transaction is committed
// only when fn succeeds and ctx is still alive; otherwise it is rolled back.
func (m *Ledger) inTransaction(ctx context.Context, name string, fn func(ctx context.Context) error) (err error) {
	ctx, err = m.storage.BeginTransaction(ctx, isolationLevel)
	if err != nil {
		return newStorageError("begin transaction", err)
	}

	defer func() {
		if p := recover(); p != nil {
			m.rollback(ctx, name)

			panic(p)
		}

		if err == nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = fmt.Errorf("%s cancelled before commit: %w", name, ctxErr)
			}
		}

		if err != nil {
			m.rollback(ctx, name)

			return
		}

		if err = m.storage.CommitTransaction(ctx); err != nil {
			err = newStorageError(fmt.Sprintf("commit %s", name), err)

			m.rollback(ctx, name)

			return
		}

		m.l.LogDebugf("Transaction %q has been committed", name)
	}()

	return fn(ctx)
}

func (m *Ledger) rollback(ctx context.Context, name string) {
	if err := m.storage.RollbackTransaction(ctx); err != nil {
		m.l.LogDebugf("Could not rollback %q transaction: %v", name, err.Error())

		return
	}

	m.l.LogDebugf("Transaction %q has been rolled back", name)
}
