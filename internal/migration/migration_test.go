package migration

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/avstrong/hotelbooking/internal/booking"
	"github.com/avstrong/hotelbooking/internal/logger"
	"github.com/avstrong/hotelbooking/internal/storage/memory"
)

func TestUpSeedsOnlyMissingHotels(t *testing.T) {
	l := logger.New(log.New(io.Discard, "", 0))
	db := memory.New(memory.Config{
		L:      l,
		Hotels: []booking.Hotel{{ID: "1", Name: "Renamed", Location: "Boston", TotalRooms: 3}},
	})

	if err := Up(context.Background(), l, db, DefaultHotels()); err != nil {
		t.Fatalf("up: %v", err)
	}

	hotels, err := db.ListHotels(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	if len(hotels) != 2 {
		t.Fatalf("expected 2 hotels, got %+v", hotels)
	}

	if hotels[0].Name != "Renamed" || hotels[0].TotalRooms != 3 {
		t.Errorf("existing hotel must be kept, got %+v", hotels[0])
	}

	if hotels[1].ID != "2" || hotels[1].Location != "Los Angeles" {
		t.Errorf("unexpected seeded hotel %+v", hotels[1])
	}

	if err = Up(context.Background(), l, db, DefaultHotels()); err != nil {
		t.Fatalf("second up: %v", err)
	}
}

type brokenStorage struct {
	*memory.DB
	getErr      error
	panicOnGet  bool
	rollbackErr error
	rollbacks   int
}

func (s *brokenStorage) GetHotel(ctx context.Context, id string) (booking.Hotel, error) {
	if s.panicOnGet {
		panic("storage exploded")
	}

	if s.getErr != nil {
		return booking.Hotel{}, s.getErr
	}

	return s.DB.GetHotel(ctx, id)
}

func (s *brokenStorage) RollbackTransaction(ctx context.Context) error {
	s.rollbacks++

	if err := s.DB.RollbackTransaction(ctx); err != nil {
		return err
	}

	return s.rollbackErr
}

func TestUpPanicWithFailedRollback(t *testing.T) {
	var out bytes.Buffer

	l := logger.New(log.New(&out, "", 0))
	//nolint:exhaustruct
	storage := &brokenStorage{
		DB:          memory.New(memory.Config{L: l}),
		panicOnGet:  true,
		rollbackErr: errors.New("connection lost"),
	}

	defer func() {
		p := recover()
		if p != "storage exploded" {
			t.Fatalf("expected the panic to be re-raised, got %v", p)
		}

		if storage.rollbacks != 1 {
			t.Errorf("expected one rollback, got %d", storage.rollbacks)
		}

		logs := out.String()

		if !strings.Contains(logs, "connection lost") {
			t.Errorf("expected the rollback error to be logged, got %q", logs)
		}

		if strings.Contains(logs, "has been rolled back") {
			t.Errorf("failed rollback reported as done: %q", logs)
		}
	}()

	_ = Up(context.Background(), l, storage, DefaultHotels())
}

func TestUpErrorWithFailedRollback(t *testing.T) {
	var out bytes.Buffer

	l := logger.New(log.New(&out, "", 0))
	getErr := errors.New("read timeout")
	//nolint:exhaustruct
	storage := &brokenStorage{
		DB:          memory.New(memory.Config{L: l}),
		getErr:      getErr,
		rollbackErr: errors.New("connection lost"),
	}

	err := Up(context.Background(), l, storage, DefaultHotels())
	if !errors.Is(err, getErr) {
		t.Fatalf("expected the read error to be returned, got %v", err)
	}

	if logs := out.String(); strings.Contains(logs, "has been rolled back") || !strings.Contains(logs, "connection lost") {
		t.Errorf("unexpected logs %q", logs)
	}
}
