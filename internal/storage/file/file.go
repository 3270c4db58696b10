package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/avstrong/hotelbooking/internal/booking"
	"github.com/avstrong/hotelbooking/internal/logger"
	"github.com/avstrong/hotelbooking/internal/storage/memory"
)

const (
	HotelsFile   = "hotels.json"
	BookingsFile = "bookings.json"
)

type Config struct {
	L   *logger.Logger
	Dir string
}

// Store keeps the whole inventory in memory and rewrites the JSON snapshots
// on every commit. A commit whose files cannot be written is undone.
type Store struct {
	*memory.DB
	l   *logger.Logger
	dir string
}

type hotelRecord struct {
	ID         json.RawMessage `json:"id"`
	Name       string          `json:"name"`
	Location   string          `json:"location"`
	TotalRooms *int            `json:"totalRooms,omitempty"`
	// LegacyRooms is the room count field of the first data files.
	LegacyRooms *int `json:"NoOfRoomsAvaiable,omitempty"`
}

func Open(conf Config) (*Store, error) {
	if err := os.MkdirAll(conf.Dir, 0o755); err != nil { //nolint:gomnd
		return nil, fmt.Errorf("create data dir %s: %w", conf.Dir, err)
	}

	hotels, err := readHotels(filepath.Join(conf.Dir, HotelsFile))
	if err != nil {
		return nil, err
	}

	var bookings []booking.Booking

	if err = readJSON(filepath.Join(conf.Dir, BookingsFile), &bookings); err != nil {
		return nil, err
	}

	//nolint:exhaustruct
	s := &Store{
		l:   conf.L,
		dir: conf.Dir,
	}

	s.DB = memory.New(memory.Config{
		L:         conf.L,
		Persister: s,
		Hotels:    hotels,
		Bookings:  bookings,
	})

	conf.L.LogInfo("Loaded %d hotels and %d bookings from %s", len(hotels), len(bookings), conf.Dir)

	return s, nil
}

func (s *Store) Persist(_ context.Context, hotels []booking.Hotel, bookings []booking.Booking) error {
	records := make([]hotelRecord, 0, len(hotels))

	for _, h := range hotels {
		id, err := json.Marshal(h.ID)
		if err != nil {
			return fmt.Errorf("encode hotel id %s: %w", h.ID, err)
		}

		rooms := h.TotalRooms
		records = append(records, hotelRecord{
			ID:         id,
			Name:       h.Name,
			Location:   h.Location,
			TotalRooms: &rooms,
		})
	}

	if err := writeJSON(filepath.Join(s.dir, HotelsFile), records); err != nil {
		return err
	}

	if bookings == nil {
		bookings = []booking.Booking{}
	}

	return writeJSON(filepath.Join(s.dir, BookingsFile), bookings)
}

func readHotels(path string) ([]booking.Hotel, error) {
	var records []hotelRecord

	if err := readJSON(path, &records); err != nil {
		return nil, err
	}

	hotels := make([]booking.Hotel, 0, len(records))

	for _, r := range records {
		id, err := decodeID(r.ID)
		if err != nil {
			return nil, fmt.Errorf("decode hotel id in %s: %w", path, err)
		}

		h := booking.Hotel{ID: id, Name: r.Name, Location: r.Location}

		switch {
		case r.TotalRooms != nil:
			h.TotalRooms = *r.TotalRooms
		case r.LegacyRooms != nil:
			h.TotalRooms = *r.LegacyRooms
		}

		hotels = append(hotels, h)
	}

	return hotels, nil
}

// decodeID accepts both string and numeric ids.
func decodeID(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("id %s is neither string nor number: %w", strings.TrimSpace(string(raw)), err)
	}

	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return "", fmt.Errorf("id %s: %w", n, err)
	}

	return n.String(), nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}

	if err = json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	return nil
}

// writeJSON replaces path atomically through a temporary file in the same dir.
func writeJSON(path string, v any) (err error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}

	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}

	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("sync %s: %w", tmp.Name(), err)
	}

	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}

	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}

	return nil
}
