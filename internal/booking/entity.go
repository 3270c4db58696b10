package booking

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

const day = 24 * time.Hour

type Hotel struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Location   string `json:"location"`
	TotalRooms int    `json:"totalRooms"`
}

// DateRange is the half-open interval [CheckIn, CheckOut) over calendar days.
type DateRange struct {
	CheckIn  time.Time
	CheckOut time.Time
}

func NewDateRange(checkIn, checkOut time.Time) (DateRange, error) {
	r := DateRange{
		CheckIn:  truncateDay(checkIn),
		CheckOut: truncateDay(checkOut),
	}

	if err := r.Validate(); err != nil {
		return DateRange{}, err
	}

	return r, nil
}

// ParseDateRange accepts YYYY-MM-DD dates and RFC 3339 timestamps.
func ParseDateRange(checkIn, checkOut string) (DateRange, error) {
	from, err := ParseDate(checkIn)
	if err != nil {
		return DateRange{}, fmt.Errorf("parse checkIn %q: %w", checkIn, err)
	}

	to, err := ParseDate(checkOut)
	if err != nil {
		return DateRange{}, fmt.Errorf("parse checkOut %q: %w", checkOut, err)
	}

	return NewDateRange(from, to)
}

func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)

	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}

	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, ErrInvalidRange
	}

	return truncateDay(t), nil
}

func (r DateRange) Validate() error {
	if r.CheckIn.IsZero() || r.CheckOut.IsZero() {
		return fmt.Errorf("empty date: %w", ErrInvalidRange)
	}

	if !r.CheckIn.Before(r.CheckOut) {
		return fmt.Errorf("checkIn %s must be before checkOut %s: %w", r.CheckIn.Format(DateLayout), r.CheckOut.Format(DateLayout), ErrInvalidRange)
	}

	return nil
}

func (r DateRange) Nights() int {
	return int(r.CheckOut.Sub(r.CheckIn) / day)
}

// Contains reports whether d falls inside the range. CheckOut itself is excluded.
func (r DateRange) Contains(d time.Time) bool {
	d = truncateDay(d)

	return !d.Before(r.CheckIn) && d.Before(r.CheckOut)
}

func (r DateRange) Overlaps(other DateRange) bool {
	return r.CheckIn.Before(other.CheckOut) && other.CheckIn.Before(r.CheckOut)
}

func (r DateRange) String() string {
	return fmt.Sprintf("[%s, %s)", r.CheckIn.Format(DateLayout), r.CheckOut.Format(DateLayout))
}

type Booking struct {
	ID      string
	HotelID string
	Range   DateRange
	Rooms   int
}

// ActiveOn reports whether the booking occupies rooms on d.
func (b *Booking) ActiveOn(d time.Time) bool {
	return b.Range.Contains(d)
}

type bookingJSON struct {
	ID       string `json:"id"`
	HotelID  string `json:"hotelId"`
	CheckIn  string `json:"checkIn"`
	CheckOut string `json:"checkOut"`
	Rooms    int    `json:"rooms"`
}

func (b Booking) MarshalJSON() ([]byte, error) {
	return json.Marshal(bookingJSON{
		ID:       b.ID,
		HotelID:  b.HotelID,
		CheckIn:  b.Range.CheckIn.Format(DateLayout),
		CheckOut: b.Range.CheckOut.Format(DateLayout),
		Rooms:    b.Rooms,
	})
}

// UnmarshalJSON also accepts a numeric hotelId as written by older clients.
func (b *Booking) UnmarshalJSON(data []byte) error {
	var raw struct {
		bookingJSON
		HotelID json.RawMessage `json:"hotelId"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	hotelID, err := decodeHotelID(raw.HotelID)
	if err != nil {
		return fmt.Errorf("booking %s hotelId: %w", raw.ID, err)
	}

	checkIn, err := ParseDate(raw.CheckIn)
	if err != nil {
		return fmt.Errorf("booking %s checkIn %q: %w", raw.ID, raw.CheckIn, err)
	}

	checkOut, err := ParseDate(raw.CheckOut)
	if err != nil {
		return fmt.Errorf("booking %s checkOut %q: %w", raw.ID, raw.CheckOut, err)
	}

	*b = Booking{
		ID:      raw.ID,
		HotelID: hotelID,
		Range:   DateRange{CheckIn: checkIn, CheckOut: checkOut},
		Rooms:   raw.Rooms,
	}

	return nil
}

func decodeHotelID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}

	return n.String(), nil
}

// DayCapacity is the capacity left on a single day.
type DayCapacity struct {
	Date      time.Time `json:"-"`
	Booked    int       `json:"booked"`
	Remaining int       `json:"remaining"`
}

func (d DayCapacity) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Date      string `json:"date"`
		Booked    int    `json:"booked"`
		Remaining int    `json:"remaining"`
	}{
		Date:      d.Date.Format(DateLayout),
		Booked:    d.Booked,
		Remaining: d.Remaining,
	})
}

func truncateDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}

	y, m, d := t.UTC().Date()

	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
