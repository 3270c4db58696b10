package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/avstrong/hotelbooking/internal/booking"
	"github.com/avstrong/hotelbooking/internal/logger"
)

type hotelLister interface {
	ListHotels(ctx context.Context) ([]booking.Hotel, error)
}

type Catalog struct {
	l       *logger.Logger
	storage hotelLister
}

func New(l *logger.Logger, storage hotelLister) *Catalog {
	return &Catalog{l: l, storage: storage}
}

// ListHotels returns hotels whose location equals location ignoring case.
// An empty location matches every hotel. The result is never nil.
func (c *Catalog) ListHotels(ctx context.Context, location string) ([]booking.Hotel, error) {
	hotels, err := c.storage.ListHotels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list hotels: %w: %w", booking.ErrStorage, err)
	}

	location = strings.TrimSpace(location)
	res := make([]booking.Hotel, 0, len(hotels))

	for _, h := range hotels {
		if location == "" || strings.EqualFold(h.Location, location) {
			res = append(res, h)
		}
	}

	c.l.LogDebugf("Found %d of %d hotels for location %q", len(res), len(hotels), location)

	return res, nil
}
