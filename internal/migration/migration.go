package migration

import (
	"context"
	"errors"
	"fmt"

	"github.com/avstrong/hotelbooking/internal/booking"
	"github.com/avstrong/hotelbooking/internal/logger"
)

type storage interface {
	BeginTransaction(ctx context.Context, level string) (context.Context, error)
	CommitTransaction(ctx context.Context) error
	RollbackTransaction(ctx context.Context) error
	GetHotel(ctx context.Context, id string) (booking.Hotel, error)
	SaveHotels(ctx context.Context, hotels []booking.Hotel) error
}

//nolint:gomnd
func DefaultHotels() []booking.Hotel {
	return []booking.Hotel{
		{ID: "1", Name: "Hotel A", Location: "New York", TotalRooms: 10},
		{ID: "2", Name: "Hotel B", Location: "Los Angeles", TotalRooms: 5},
	}
}

// Up saves the hotels that the storage does not know yet. Hotels already
// present are left untouched so persisted data wins over the seed.
func Up(ctx context.Context, l *logger.Logger, storage storage, hotels []booking.Hotel) (err error) {
	ctx, err = storage.BeginTransaction(ctx, "")
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := storage.RollbackTransaction(ctx); rbErr != nil {
				l.LogErrorf("Could not rollback migration transaction after panic %v: %v", p, rbErr.Error())
			} else {
				l.LogInfo("Migration transaction has been rolled back after panic")
			}

			panic(p)
		}

		if err != nil {
			if rbErr := storage.RollbackTransaction(ctx); rbErr != nil {
				l.LogErrorf("Could not rollback migration transaction after error %v: %v", err.Error(), rbErr.Error())

				return
			}

			l.LogInfo("Migration transaction has been rolled back after error")

			return
		}

		if err = storage.CommitTransaction(ctx); err != nil {
			err = fmt.Errorf("commit migration: %w", err)

			return
		}

		l.LogInfo("Migration transaction has been committed")
	}()

	missing := make([]booking.Hotel, 0, len(hotels))

	for _, h := range hotels {
		_, err = storage.GetHotel(ctx, h.ID)

		switch {
		case errors.Is(err, booking.ErrRecordNotFound):
			missing = append(missing, h)
		case err != nil:
			return fmt.Errorf("get hotel %s: %w", h.ID, err)
		}
	}

	err = nil

	if len(missing) == 0 {
		l.LogInfo("All %d seed hotels already exist", len(hotels))

		return nil
	}

	if err = storage.SaveHotels(ctx, missing); err != nil {
		return fmt.Errorf("save hotels to storage: %w", err)
	}

	l.LogInfo("%d of %d seed hotels have been saved", len(missing), len(hotels))

	return nil
}
