package dynamo

import (
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/avstrong/hotelbooking/internal/booking"
)

const (
	attrPK        = "PK"
	attrSK        = "SK"
	attrID        = "id"
	attrName      = "name"
	attrLocation  = "location"
	attrRooms     = "total_rooms"
	attrVersion   = "version"
	attrCreatedAt = "created_at"
	attrHotelID   = "hotel_id"
	attrCheckIn   = "check_in"
	attrCheckOut  = "check_out"
	attrBooked    = "rooms"

	hotelPrefix   = "HOTEL#"
	bookingPrefix = "BOOKING#"
	hotelInfoSK   = "INFO"
	bookingRefSK  = "REF"
)

type item = map[string]types.AttributeValue

func strValue(v string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: v}
}

func numValue(v int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(v, 10)}
}

func hotelKey(id string) item {
	return item{attrPK: strValue(hotelPrefix + id), attrSK: strValue(hotelInfoSK)}
}

func bookingKey(hotelID, id string) item {
	return item{attrPK: strValue(hotelPrefix + hotelID), attrSK: strValue(bookingPrefix + id)}
}

func refKey(id string) item {
	return item{attrPK: strValue(bookingPrefix + id), attrSK: strValue(bookingRefSK)}
}

func bookingItem(b booking.Booking, createdAt time.Time) item {
	it := bookingKey(b.HotelID, b.ID)
	it[attrID] = strValue(b.ID)
	it[attrHotelID] = strValue(b.HotelID)
	it[attrCheckIn] = strValue(b.Range.CheckIn.Format(booking.DateLayout))
	it[attrCheckOut] = strValue(b.Range.CheckOut.Format(booking.DateLayout))
	it[attrBooked] = numValue(int64(b.Rooms))
	it[attrCreatedAt] = numValue(createdAt.UnixNano())

	return it
}

func refItem(b booking.Booking) item {
	it := refKey(b.ID)
	it[attrHotelID] = strValue(b.HotelID)

	return it
}

func parseHotel(it item) (booking.Hotel, int64, error) {
	var (
		h   booking.Hotel
		err error
	)

	if h.ID, err = str(it, attrID); err != nil {
		return booking.Hotel{}, 0, err
	}

	h.Name, _ = str(it, attrName)
	h.Location, _ = str(it, attrLocation)

	rooms, err := num(it, attrRooms)
	if err != nil {
		return booking.Hotel{}, 0, err
	}

	h.TotalRooms = int(rooms)

	version, err := num(it, attrVersion)
	if err != nil {
		version = 0
	}

	return h, version, nil
}

func parseBooking(it item) (booking.Booking, int64, error) {
	id, err := str(it, attrID)
	if err != nil {
		return booking.Booking{}, 0, err
	}

	hotelID, err := str(it, attrHotelID)
	if err != nil {
		return booking.Booking{}, 0, err
	}

	checkIn, err := str(it, attrCheckIn)
	if err != nil {
		return booking.Booking{}, 0, err
	}

	checkOut, err := str(it, attrCheckOut)
	if err != nil {
		return booking.Booking{}, 0, err
	}

	r, err := booking.ParseDateRange(checkIn, checkOut)
	if err != nil {
		return booking.Booking{}, 0, fmt.Errorf("booking %s: %w", id, err)
	}

	rooms, err := num(it, attrBooked)
	if err != nil {
		return booking.Booking{}, 0, err
	}

	createdAt, _ := num(it, attrCreatedAt)

	return booking.Booking{ID: id, HotelID: hotelID, Range: r, Rooms: int(rooms)}, createdAt, nil
}

func str(it item, name string) (string, error) {
	v, ok := it[name].(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("attribute %s: %w", name, ErrMalformedItem)
	}

	return v.Value, nil
}

func num(it item, name string) (int64, error) {
	v, ok := it[name].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("attribute %s: %w", name, ErrMalformedItem)
	}

	res, err := strconv.ParseInt(v.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("attribute %s: %w", name, err)
	}

	return res, nil
}
