package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/exp/maps"

	"github.com/avstrong/hotelbooking/internal/booking"
	"github.com/avstrong/hotelbooking/internal/logger"
)

// Persister makes a committed snapshot durable. When it fails the commit is
// undone and the in-memory state is left as it was.
type Persister interface {
	Persist(ctx context.Context, hotels []booking.Hotel, bookings []booking.Booking) error
}

type Config struct {
	L         *logger.Logger
	Persister Persister
	Hotels    []booking.Hotel
	Bookings  []booking.Booking
}

type mutationKind int

const (
	insertBooking mutationKind = iota
	replaceBooking
	removeBooking
	saveHotel
)

type mutation struct {
	kind    mutationKind
	booking booking.Booking
	hotel   booking.Hotel
}

type transaction struct {
	id        int64
	mutations []mutation
}

type record[T any] struct {
	value T
	seq   int64
}

// DB keeps hotels and bookings in memory. Writes are staged in a transaction
// and applied atomically on commit; reads always observe committed state.
type DB struct {
	mu           sync.RWMutex
	l            *logger.Logger
	persister    Persister
	hotels       map[string]*record[booking.Hotel]
	bookings     map[string]*record[booking.Booking]
	transactions map[int64]*transaction
	nextTrxID    int64
	nextSeq      int64
}

func New(conf Config) *DB {
	//nolint:exhaustruct
	db := &DB{
		l:            conf.L,
		persister:    conf.Persister,
		hotels:       make(map[string]*record[booking.Hotel]),
		bookings:     make(map[string]*record[booking.Booking]),
		transactions: make(map[int64]*transaction),
	}

	for _, h := range conf.Hotels {
		db.hotels[h.ID] = &record[booking.Hotel]{value: h, seq: db.seq()}
	}

	for _, b := range conf.Bookings {
		db.bookings[b.ID] = &record[booking.Booking]{value: b, seq: db.seq()}
	}

	return db
}

func (db *DB) BeginTransaction(ctx context.Context, _ string) (context.Context, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.nextTrxID++
	db.transactions[db.nextTrxID] = &transaction{id: db.nextTrxID}

	return withTransaction(ctx, db.nextTrxID), nil
}

func (db *DB) CommitTransaction(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	trx, err := db.transaction(ctx)
	if err != nil {
		return err
	}

	var undo []func()

	rollback := func() {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
	}

	for _, m := range trx.mutations {
		action, err := db.apply(m)
		if err != nil {
			rollback()

			return fmt.Errorf("apply transaction %d: %w", trx.id, err)
		}

		undo = append(undo, action)
	}

	if db.persister != nil && len(trx.mutations) > 0 {
		if err := db.persister.Persist(ctx, db.hotelsLocked(), db.bookingsLocked()); err != nil {
			rollback()

			return fmt.Errorf("persist transaction %d: %w", trx.id, err)
		}
	}

	delete(db.transactions, trx.id)

	return nil
}

func (db *DB) RollbackTransaction(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	trx, err := db.transaction(ctx)
	if err != nil {
		return err
	}

	delete(db.transactions, trx.id)

	return nil
}

func (db *DB) InsertBooking(ctx context.Context, b booking.Booking) error {
	return db.stage(ctx, mutation{kind: insertBooking, booking: b})
}

func (db *DB) ReplaceBooking(ctx context.Context, b booking.Booking) error {
	return db.stage(ctx, mutation{kind: replaceBooking, booking: b})
}

func (db *DB) RemoveBooking(ctx context.Context, id string) error {
	return db.stage(ctx, mutation{kind: removeBooking, booking: booking.Booking{ID: id}})
}

func (db *DB) SaveHotels(ctx context.Context, hotels []booking.Hotel) error {
	for _, h := range hotels {
		if err := db.stage(ctx, mutation{kind: saveHotel, hotel: h}); err != nil {
			return err
		}
	}

	return nil
}

func (db *DB) GetHotel(_ context.Context, id string) (booking.Hotel, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	r, ok := db.hotels[id]
	if !ok {
		return booking.Hotel{}, booking.ErrRecordNotFound
	}

	return r.value, nil
}

func (db *DB) ListHotels(_ context.Context) ([]booking.Hotel, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.hotelsLocked(), nil
}

func (db *DB) GetBooking(_ context.Context, id string) (booking.Booking, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	r, ok := db.bookings[id]
	if !ok {
		return booking.Booking{}, booking.ErrRecordNotFound
	}

	return r.value, nil
}

func (db *DB) ListBookings(_ context.Context) ([]booking.Booking, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.bookingsLocked(), nil
}

func (db *DB) ListBookingsByHotel(_ context.Context, hotelID string) ([]booking.Booking, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	res := make([]booking.Booking, 0)

	for _, b := range db.bookingsLocked() {
		if b.HotelID == hotelID {
			res = append(res, b)
		}
	}

	return res, nil
}

func (db *DB) stage(ctx context.Context, m mutation) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	trx, err := db.transaction(ctx)
	if err != nil {
		return err
	}

	trx.mutations = append(trx.mutations, m)

	return nil
}

// apply performs m on the live maps and returns the action that reverts it.
func (db *DB) apply(m mutation) (func(), error) {
	switch m.kind {
	case insertBooking:
		if _, exists := db.bookings[m.booking.ID]; exists {
			return nil, fmt.Errorf("booking %s: %w", m.booking.ID, ErrDuplicateID)
		}

		db.bookings[m.booking.ID] = &record[booking.Booking]{value: m.booking, seq: db.seq()}

		return func() { delete(db.bookings, m.booking.ID) }, nil
	case replaceBooking:
		original, exists := db.bookings[m.booking.ID]
		if !exists {
			return nil, fmt.Errorf("booking %s: %w", m.booking.ID, booking.ErrRecordNotFound)
		}

		db.bookings[m.booking.ID] = &record[booking.Booking]{value: m.booking, seq: original.seq}

		return func() { db.bookings[m.booking.ID] = original }, nil
	case removeBooking:
		original, exists := db.bookings[m.booking.ID]
		if !exists {
			return nil, fmt.Errorf("booking %s: %w", m.booking.ID, booking.ErrRecordNotFound)
		}

		delete(db.bookings, m.booking.ID)

		return func() { db.bookings[m.booking.ID] = original }, nil
	case saveHotel:
		original, exists := db.hotels[m.hotel.ID]
		if exists {
			db.hotels[m.hotel.ID] = &record[booking.Hotel]{value: m.hotel, seq: original.seq}

			return func() { db.hotels[m.hotel.ID] = original }, nil
		}

		db.hotels[m.hotel.ID] = &record[booking.Hotel]{value: m.hotel, seq: db.seq()}

		return func() { delete(db.hotels, m.hotel.ID) }, nil
	default:
		return nil, fmt.Errorf("unknown mutation kind %d", m.kind)
	}
}

func (db *DB) transaction(ctx context.Context) (*transaction, error) {
	trxID, ok := transactionFromContext(ctx)
	if !ok {
		return nil, ErrTransactionIDNotFoundInCtx
	}

	trx, exists := db.transactions[trxID]
	if !exists {
		return nil, fmt.Errorf("transaction %d: %w", trxID, ErrTransactionNotFound)
	}

	return trx, nil
}

func (db *DB) hotelsLocked() []booking.Hotel {
	return values(maps.Values(db.hotels))
}

func (db *DB) bookingsLocked() []booking.Booking {
	return values(maps.Values(db.bookings))
}

func (db *DB) seq() int64 {
	db.nextSeq++

	return db.nextSeq
}

// values returns the records' values in insertion order.
func values[T any](records []*record[T]) []T {
	slices.SortFunc(records, func(a, b *record[T]) int {
		return cmp.Compare(a.seq, b.seq)
	})

	res := make([]T, 0, len(records))
	for _, r := range records {
		res = append(res, r.value)
	}

	return res
}
