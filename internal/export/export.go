package export

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/avstrong/hotelbooking/internal/booking"
	"github.com/avstrong/hotelbooking/internal/logger"
)

const (
	bookingsSheet  = "Bookings"
	occupancySheet = "Occupancy"
	defaultSheet   = "Sheet1"

	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var (
	bookingsHeader  = []any{"Booking ID", "Hotel ID", "Hotel", "Check-in", "Check-out", "Nights", "Rooms"}
	occupancyHeader = []any{"Hotel ID", "Hotel", "Location", "Total rooms", "Bookings", "Room nights", "Peak booked", "Peak date"}
)

type source interface {
	ListHotels(ctx context.Context) ([]booking.Hotel, error)
	ListBookings(ctx context.Context) ([]booking.Booking, error)
}

type Exporter struct {
	l   *logger.Logger
	src source
}

func New(l *logger.Logger, src source) *Exporter {
	return &Exporter{l: l, src: src}
}

func FileName(now time.Time) string {
	return fmt.Sprintf("bookings_%s.xlsx", now.UTC().Format("2006-01-02"))
}

// Write renders all hotels and bookings into an xlsx workbook.
func (e *Exporter) Write(ctx context.Context, w io.Writer) error {
	hotels, err := e.src.ListHotels(ctx)
	if err != nil {
		return fmt.Errorf("list hotels: %w", err)
	}

	bookings, err := e.src.ListBookings(ctx)
	if err != nil {
		return fmt.Errorf("list bookings: %w", err)
	}

	f, err := Workbook(hotels, bookings)
	if err != nil {
		return err
	}

	defer func() {
		if err := f.Close(); err != nil {
			e.l.LogErrorf("Failed to close workbook: %v", err.Error())
		}
	}()

	if _, err = f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}

	e.l.LogInfo("Exported %d bookings of %d hotels", len(bookings), len(hotels))

	return nil
}

func Workbook(hotels []booking.Hotel, bookings []booking.Booking) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName(defaultSheet, bookingsSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	if _, err := f.NewSheet(occupancySheet); err != nil {
		return nil, fmt.Errorf("create sheet %s: %w", occupancySheet, err)
	}

	header, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	names := make(map[string]string, len(hotels))
	for _, h := range hotels {
		names[h.ID] = h.Name
	}

	rows := make([][]any, 0, len(bookings)+1)
	rows = append(rows, bookingsHeader)

	for _, b := range bookings {
		rows = append(rows, []any{
			b.ID, b.HotelID, names[b.HotelID],
			b.Range.CheckIn.Format(booking.DateLayout),
			b.Range.CheckOut.Format(booking.DateLayout),
			b.Range.Nights(), b.Rooms,
		})
	}

	if err = writeRows(f, bookingsSheet, rows, header); err != nil {
		return nil, err
	}

	rows = [][]any{occupancyHeader}
	for _, h := range hotels {
		rows = append(rows, occupancyRow(h, bookings))
	}

	if err = writeRows(f, occupancySheet, rows, header); err != nil {
		return nil, err
	}

	f.SetActiveSheet(0)

	return f, nil
}

func occupancyRow(h booking.Hotel, bookings []booking.Booking) []any {
	var (
		count, roomNights int
		span              booking.DateRange
	)

	for _, b := range bookings {
		if b.HotelID != h.ID || b.Rooms <= 0 || b.Range.Validate() != nil {
			continue
		}

		count++
		roomNights += b.Range.Nights() * b.Rooms

		if span.CheckIn.IsZero() || b.Range.CheckIn.Before(span.CheckIn) {
			span.CheckIn = b.Range.CheckIn
		}

		if b.Range.CheckOut.After(span.CheckOut) {
			span.CheckOut = b.Range.CheckOut
		}
	}

	row := []any{h.ID, h.Name, h.Location, h.TotalRooms, count, roomNights, 0, ""}

	days, err := booking.DailyAvailability(h, bookings, span)
	if err != nil {
		return row
	}

	for _, d := range days {
		if d.Booked > row[6].(int) {
			row[6] = d.Booked
			row[7] = d.Date.Format(booking.DateLayout)
		}
	}

	return row
}

func writeRows(f *excelize.File, sheet string, rows [][]any, headerStyle int) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}

		if err = f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}

	last, err := excelize.CoordinatesToCellName(len(rows[0]), 1)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}

	if err = f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("style %s header: %w", sheet, err)
	}

	//nolint:gomnd
	if err = f.SetColWidth(sheet, "A", "H", 18); err != nil {
		return fmt.Errorf("set %s column width: %w", sheet, err)
	}

	return nil
}
