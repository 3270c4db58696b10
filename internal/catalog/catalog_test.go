package catalog

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/avstrong/hotelbooking/internal/booking"
	"github.com/avstrong/hotelbooking/internal/logger"
)

type stubLister struct {
	hotels []booking.Hotel
	err    error
}

func (s stubLister) ListHotels(context.Context) ([]booking.Hotel, error) {
	return s.hotels, s.err
}

func TestListHotels(t *testing.T) {
	l := logger.New(log.New(io.Discard, "", 0))
	c := New(l, stubLister{hotels: []booking.Hotel{
		{ID: "H1", Name: "Sea View", Location: "Lisbon", TotalRooms: 5},
		{ID: "H2", Name: "Old Town", Location: "Porto", TotalRooms: 3},
		{ID: "H3", Name: "Riverside", Location: "LISBON", TotalRooms: 8},
	}})

	tests := []struct {
		name     string
		location string
		want     []string
	}{
		{name: "case insensitive", location: "lisbon", want: []string{"H1", "H3"}},
		{name: "exact only", location: "Lis", want: nil},
		{name: "empty matches all", location: "", want: []string{"H1", "H2", "H3"}},
		{name: "unknown", location: "Madrid", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.ListHotels(context.Background(), tt.location)
			if err != nil {
				t.Fatalf("list: %v", err)
			}

			if got == nil {
				t.Fatal("expected an empty slice, got nil")
			}

			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %+v", tt.want, got)
			}

			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("position %d: expected %s, got %s", i, id, got[i].ID)
				}
			}
		})
	}
}

func TestListHotelsStorageError(t *testing.T) {
	c := New(logger.New(log.New(io.Discard, "", 0)), stubLister{err: errors.New("disk on fire")})

	if _, err := c.ListHotels(context.Background(), "Lisbon"); !errors.Is(err, booking.ErrStorage) {
		t.Errorf("expected ErrStorage, got %v", err)
	}
}
