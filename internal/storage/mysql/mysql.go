package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/avstrong/hotelbooking/internal/booking"
	"github.com/avstrong/hotelbooking/internal/logger"
)

const errDuplicateEntry = 1062

var (
	ErrNoTransaction = errors.New("write outside of a transaction")
	ErrDuplicateID   = errors.New("record with the same id already exists")
)

type Config struct {
	L               *logger.Logger
	User            string
	Password        string
	Host            string
	Port            string
	Name            string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

// DSN builds the driver connection string. clientFoundRows makes UPDATE
// report matched rows, so replacing a booking with identical values is not
// mistaken for a missing row.
func (c Config) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(c.Host, c.Port)
	cfg.DBName = c.Name
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.ClientFoundRows = true
	cfg.Params = map[string]string{"charset": "utf8mb4"}

	return cfg.FormatDSN()
}

type Store struct {
	l  *logger.Logger
	db *sql.DB
}

func Open(ctx context.Context, conf Config) (*Store, error) {
	db, err := sql.Open("mysql", conf.DSN())
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	db.SetMaxOpenConns(conf.MaxOpenConns)
	db.SetMaxIdleConns(conf.MaxOpenConns)
	db.SetConnMaxLifetime(conf.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, conf.PingTimeout)
	defer cancel()

	if err = db.PingContext(pingCtx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping mysql %s: %w", conf.Host, err)
	}

	return &Store{l: conf.L, db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	s.l.LogInfo("MySQL schema is up to date")

	return nil
}

func (s *Store) BeginTransaction(ctx context.Context, level string) (context.Context, error) {
	//nolint:exhaustruct
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: isolation(level)})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}

	return withTx(ctx, tx), nil
}

func (s *Store) CommitTransaction(ctx context.Context) error {
	tx, ok := txFromContext(ctx)
	if !ok {
		return ErrNoTransaction
	}

	return tx.Commit()
}

func (s *Store) RollbackTransaction(ctx context.Context) error {
	tx, ok := txFromContext(ctx)
	if !ok {
		return ErrNoTransaction
	}

	return tx.Rollback()
}

// GetHotel locks the hotel row when called inside a transaction, which
// serializes bookings of the same hotel across service instances.
func (s *Store) GetHotel(ctx context.Context, id string) (booking.Hotel, error) {
	q := `SELECT id, name, location, total_rooms FROM hotels WHERE id = ?`
	if _, ok := txFromContext(ctx); ok {
		q += ` FOR UPDATE`
	}

	var h booking.Hotel

	err := s.querier(ctx).QueryRowContext(ctx, q, id).Scan(&h.ID, &h.Name, &h.Location, &h.TotalRooms)
	if errors.Is(err, sql.ErrNoRows) {
		return booking.Hotel{}, booking.ErrRecordNotFound
	}

	if err != nil {
		return booking.Hotel{}, fmt.Errorf("select hotel %s: %w", id, err)
	}

	return h, nil
}

func (s *Store) ListHotels(ctx context.Context) ([]booking.Hotel, error) {
	const q = `SELECT id, name, location, total_rooms FROM hotels ORDER BY seq`

	rows, err := s.querier(ctx).QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("select hotels: %w", err)
	}
	defer rows.Close()

	hotels := make([]booking.Hotel, 0)

	for rows.Next() {
		var h booking.Hotel
		if err = rows.Scan(&h.ID, &h.Name, &h.Location, &h.TotalRooms); err != nil {
			return nil, fmt.Errorf("scan hotel: %w", err)
		}

		hotels = append(hotels, h)
	}

	return hotels, rows.Err()
}

func (s *Store) SaveHotels(ctx context.Context, hotels []booking.Hotel) error {
	tx, ok := txFromContext(ctx)
	if !ok {
		return ErrNoTransaction
	}

	const q = `INSERT INTO hotels (id, name, location, total_rooms) VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE name = VALUES(name), location = VALUES(location), total_rooms = VALUES(total_rooms)`

	for _, h := range hotels {
		if _, err := tx.ExecContext(ctx, q, h.ID, h.Name, h.Location, h.TotalRooms); err != nil {
			return fmt.Errorf("upsert hotel %s: %w", h.ID, err)
		}
	}

	return nil
}

func (s *Store) GetBooking(ctx context.Context, id string) (booking.Booking, error) {
	const q = `SELECT id, hotel_id, check_in, check_out, rooms FROM bookings WHERE id = ?`

	b, err := scanBooking(s.querier(ctx).QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return booking.Booking{}, booking.ErrRecordNotFound
	}

	if err != nil {
		return booking.Booking{}, fmt.Errorf("select booking %s: %w", id, err)
	}

	return b, nil
}

func (s *Store) ListBookings(ctx context.Context) ([]booking.Booking, error) {
	const q = `SELECT id, hotel_id, check_in, check_out, rooms FROM bookings ORDER BY seq`

	return s.listBookings(ctx, q)
}

func (s *Store) ListBookingsByHotel(ctx context.Context, hotelID string) ([]booking.Booking, error) {
	const q = `SELECT id, hotel_id, check_in, check_out, rooms FROM bookings WHERE hotel_id = ? ORDER BY seq`

	return s.listBookings(ctx, q, hotelID)
}

func (s *Store) InsertBooking(ctx context.Context, b booking.Booking) error {
	tx, ok := txFromContext(ctx)
	if !ok {
		return ErrNoTransaction
	}

	const q = `INSERT INTO bookings (id, hotel_id, check_in, check_out, rooms) VALUES (?, ?, ?, ?, ?)`

	_, err := tx.ExecContext(ctx, q, b.ID, b.HotelID, b.Range.CheckIn, b.Range.CheckOut, b.Rooms)

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == errDuplicateEntry {
		return fmt.Errorf("booking %s: %w", b.ID, ErrDuplicateID)
	}

	if err != nil {
		return fmt.Errorf("insert booking %s: %w", b.ID, err)
	}

	return nil
}

func (s *Store) ReplaceBooking(ctx context.Context, b booking.Booking) error {
	tx, ok := txFromContext(ctx)
	if !ok {
		return ErrNoTransaction
	}

	const q = `UPDATE bookings SET check_in = ?, check_out = ?, rooms = ? WHERE id = ? AND hotel_id = ?`

	res, err := tx.ExecContext(ctx, q, b.Range.CheckIn, b.Range.CheckOut, b.Rooms, b.ID, b.HotelID)
	if err != nil {
		return fmt.Errorf("update booking %s: %w", b.ID, err)
	}

	return expectOneRow(res, b.ID)
}

func (s *Store) RemoveBooking(ctx context.Context, id string) error {
	tx, ok := txFromContext(ctx)
	if !ok {
		return ErrNoTransaction
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete booking %s: %w", id, err)
	}

	return expectOneRow(res, id)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) querier(ctx context.Context) querier {
	if tx, ok := txFromContext(ctx); ok {
		return tx
	}

	return s.db
}

func (s *Store) listBookings(ctx context.Context, q string, args ...any) ([]booking.Booking, error) {
	rows, err := s.querier(ctx).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("select bookings: %w", err)
	}
	defer rows.Close()

	bookings := make([]booking.Booking, 0)

	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}

		bookings = append(bookings, b)
	}

	return bookings, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBooking(row scanner) (booking.Booking, error) {
	var b booking.Booking

	if err := row.Scan(&b.ID, &b.HotelID, &b.Range.CheckIn, &b.Range.CheckOut, &b.Rooms); err != nil {
		return booking.Booking{}, err
	}

	b.Range.CheckIn = b.Range.CheckIn.UTC()
	b.Range.CheckOut = b.Range.CheckOut.UTC()

	return b, nil
}

func expectOneRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for %s: %w", id, err)
	}

	if n == 0 {
		return fmt.Errorf("booking %s: %w", id, booking.ErrRecordNotFound)
	}

	return nil
}

func isolation(level string) sql.IsolationLevel {
	switch level {
	case "READ UNCOMMITTED":
		return sql.LevelReadUncommitted
	case "READ COMMITTED":
		return sql.LevelReadCommitted
	case "REPEATABLE READ":
		return sql.LevelRepeatableRead
	case "SERIALIZABLE":
		return sql.LevelSerializable
	default:
		return sql.LevelDefault
	}
}
