package booking

import (
	"math"
	"math/bits"
	"slices"
	"time"
)

type occupancyEvent struct {
	at    time.Time
	delta int
}

// CanAccommodate reports whether every day of r has at least rooms unbooked
// rooms in hotel, given the existing bookings. Bookings of other hotels and
// corrupted records (non-positive rooms, inverted ranges) are ignored.
func CanAccommodate(hotel Hotel, existing []Booking, r DateRange, rooms int) (bool, error) {
	if err := r.Validate(); err != nil {
		return false, err
	}

	if rooms <= 0 {
		return false, ErrInvalidRooms
	}

	return remainingCapacity(hotel, existing, r) >= rooms, nil
}

// DailyAvailability returns the booked and remaining rooms for each day of r.
func DailyAvailability(hotel Hotel, existing []Booking, r DateRange) ([]DayCapacity, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	nights := r.Nights()
	diff := make([]roomCount, nights+1)

	for _, b := range existing {
		start, end, ok := clip(hotel.ID, b, r)
		if !ok {
			continue
		}

		first := int(start.Sub(r.CheckIn) / day)
		last := int(end.Sub(r.CheckIn) / day)

		diff[first] = diff[first].plus(b.Rooms)
		diff[last] = diff[last].plus(-b.Rooms)
	}

	capacity := max(hotel.TotalRooms, 0)
	days := make([]DayCapacity, 0, nights)

	var booked roomCount

	for i := range nights {
		booked = booked.add(diff[i])
		n := booked.clamped()

		days = append(days, DayCapacity{
			Date:      r.CheckIn.AddDate(0, 0, i),
			Booked:    n,
			Remaining: max(capacity-n, 0),
		})
	}

	return days, nil
}

// ExcludeBooking returns the bookings without the one identified by id.
func ExcludeBooking(bookings []Booking, id string) []Booking {
	res := make([]Booking, 0, len(bookings))

	for _, b := range bookings {
		if b.ID != id {
			res = append(res, b)
		}
	}

	return res
}

func remainingCapacity(hotel Hotel, existing []Booking, r DateRange) int {
	return max(max(hotel.TotalRooms, 0)-peakBooked(hotel.ID, existing, r), 0)
}

// peakBooked sweeps over booking start and end events clipped to r and
// returns the highest number of rooms booked on a single day of r.
func peakBooked(hotelID string, existing []Booking, r DateRange) int {
	events := make([]occupancyEvent, 0, len(existing)*2) //nolint:gomnd

	for _, b := range existing {
		start, end, ok := clip(hotelID, b, r)
		if !ok {
			continue
		}

		events = append(events,
			occupancyEvent{at: start, delta: b.Rooms},
			occupancyEvent{at: end, delta: -b.Rooms},
		)
	}

	slices.SortFunc(events, func(a, b occupancyEvent) int {
		return a.at.Compare(b.at)
	})

	var (
		booked roomCount
		peak   int
	)

	for i, e := range events {
		booked = booked.plus(e.delta)

		if i+1 < len(events) && events[i+1].at.Equal(e.at) {
			continue
		}

		if e.at.Before(r.CheckOut) {
			peak = max(peak, booked.clamped())
		}
	}

	return peak
}

// roomCount is a signed 128-bit sum of rooms. Corrupted records can push the
// total past the int range; the sum stays exact and is clamped on read.
type roomCount struct {
	hi, lo uint64
}

func (c roomCount) plus(rooms int) roomCount {
	var hi uint64
	if rooms < 0 {
		hi = math.MaxUint64
	}

	return c.add(roomCount{hi: hi, lo: uint64(int64(rooms))})
}

func (c roomCount) add(o roomCount) roomCount {
	lo, carry := bits.Add64(c.lo, o.lo, 0)
	hi, _ := bits.Add64(c.hi, o.hi, carry)

	return roomCount{hi: hi, lo: lo}
}

// clamped returns the sum limited to [0, math.MaxInt].
func (c roomCount) clamped() int {
	switch {
	case c.hi>>63 == 1:
		return 0
	case c.hi > 0 || c.lo > math.MaxInt:
		return math.MaxInt
	default:
		return int(c.lo)
	}
}

func clip(hotelID string, b Booking, r DateRange) (time.Time, time.Time, bool) {
	if b.HotelID != hotelID || b.Rooms <= 0 || b.Range.Validate() != nil || !b.Range.Overlaps(r) {
		return time.Time{}, time.Time{}, false
	}

	start := b.Range.CheckIn
	if start.Before(r.CheckIn) {
		start = r.CheckIn
	}

	end := b.Range.CheckOut
	if end.After(r.CheckOut) {
		end = r.CheckOut
	}

	return start, end, true
}
