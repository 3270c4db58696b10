package booking

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRange    = errors.New("invalid date range")
	ErrInvalidRooms    = errors.New("rooms must be a positive number")
	ErrHotelNotFound   = errors.New("hotel not found")
	ErrBookingNotFound = errors.New("booking not found")
	ErrStorage         = errors.New("storage failure")
	ErrNextID          = errors.New("get next id from generator")
	ErrRecordNotFound  = errors.New("record not found")
)

// UnavailableError is returned when at least one day of the requested range
// has less free capacity than requested. It is an expected outcome.
type UnavailableError struct {
	HotelID string
	Rooms   int
	Range   DateRange
}

func IsUnavailableError(err error) *UnavailableError {
	if err == nil {
		return nil
	}

	var unavailableErr *UnavailableError

	if errors.As(err, &unavailableErr) {
		return unavailableErr
	}

	return nil
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%d rooms are unavailable in hotel '%s' for %s", e.Rooms, e.HotelID, e.Range)
}

type StorageError struct {
	Op  string
	Err error
}

func newStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}
