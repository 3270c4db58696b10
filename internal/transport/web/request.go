package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/avstrong/hotelbooking/internal/booking"
)

var errInvalidID = errors.New("id must be a string or an integer")

// flexibleID accepts both "1" and 1 since the first data files used numeric ids.
type flexibleID string

func (id *flexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}

		*id = flexibleID(s)

		return nil
	}

	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", data, errInvalidID)
	}

	*id = flexibleID(strconv.FormatInt(n, 10))

	return nil
}

type createBookingRequest struct {
	HotelID  flexibleID `json:"hotelId"`
	CheckIn  string     `json:"checkIn"`
	CheckOut string     `json:"checkOut"`
	Rooms    int        `json:"rooms"`
}

type updateBookingRequest struct {
	CheckIn  string `json:"checkIn"`
	CheckOut string `json:"checkOut"`
	Rooms    int    `json:"rooms"`
}

type messageResponse struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

type availabilityResponse struct {
	HotelID   string                `json:"hotelId"`
	CheckIn   string                `json:"checkIn"`
	CheckOut  string                `json:"checkOut"`
	Remaining int                   `json:"remaining"`
	Days      []booking.DayCapacity `json:"days"`
}
