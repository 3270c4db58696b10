package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/avstrong/hotelbooking/internal/booking"
	"github.com/avstrong/hotelbooking/internal/export"
)

// maxAvailabilityNights bounds the availability report of a single request.
const maxAvailabilityNights = 366

func (s *Server) createBookingHandler(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, messageResponse{Message: "Invalid request body", Error: err.Error()})

		return
	}

	dates, err := booking.ParseDateRange(req.CheckIn, req.CheckOut)
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, messageResponse{Message: "Error creating booking", Error: err.Error()})

		return
	}

	out, err := s.bookings.CreateBooking(r.Context(), booking.CreateInput{
		HotelID: string(req.HotelID),
		Range:   dates,
		Rooms:   req.Rooms,
	})
	if unavailable := booking.IsUnavailableError(err); unavailable != nil {
		s.writeJSON(w, http.StatusNotFound, messageResponse{
			Message: fmt.Sprintf("%d Room not avaiable for given date range", unavailable.Rooms),
		})

		return
	}

	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, messageResponse{Message: "Error creating booking", Error: err.Error()})

		return
	}

	s.writeJSON(w, http.StatusCreated, out)
}

func (s *Server) listBookingsHandler(w http.ResponseWriter, r *http.Request) {
	bookings, err := s.bookings.ListBookings(r.Context())
	if err != nil {
		s.l.LogErrorf("Could not list bookings: %v", err.Error())
		s.writeJSON(w, http.StatusInternalServerError, messageResponse{Message: "Error retrieving bookings"})

		return
	}

	if bookings == nil {
		bookings = []booking.Booking{}
	}

	s.writeJSON(w, http.StatusOK, bookings)
}

func (s *Server) updateBookingHandler(w http.ResponseWriter, r *http.Request) {
	var req updateBookingRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, messageResponse{Message: "Invalid request body", Error: err.Error()})

		return
	}

	input := booking.UpdateInput{BookingID: r.PathValue("id"), Rooms: req.Rooms}

	dates, parseErr := booking.ParseDateRange(req.CheckIn, req.CheckOut)
	if parseErr == nil {
		input.Range = dates
	}

	out, err := s.bookings.UpdateBooking(r.Context(), input)

	switch {
	case errors.Is(err, booking.ErrBookingNotFound):
		s.writeJSON(w, http.StatusNotFound, messageResponse{Message: "Booking not found"})
	case booking.IsUnavailableError(err) != nil:
		s.writeJSON(w, http.StatusInternalServerError, messageResponse{Message: "Cannot update the booking with this details"})
	case err != nil:
		s.writeJSON(w, http.StatusInternalServerError, messageResponse{Message: "Error updating booking"})
	default:
		s.writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) deleteBookingHandler(w http.ResponseWriter, r *http.Request) {
	err := s.bookings.DeleteBooking(r.Context(), r.PathValue("id"))

	switch {
	case errors.Is(err, booking.ErrBookingNotFound):
		s.writeJSON(w, http.StatusNotFound, messageResponse{Message: "Booking not found"})
	case err != nil:
		s.writeJSON(w, http.StatusInternalServerError, messageResponse{Message: "Error deleting booking"})
	default:
		s.writeJSON(w, http.StatusOK, messageResponse{Message: "Booking deleted"})
	}
}

func (s *Server) exportBookingsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(time.Now())))

	if err := s.exporter.Write(r.Context(), w); err != nil {
		s.l.LogErrorf("Could not export bookings: %v", err.Error())
		w.Header().Del("Content-Disposition")
		s.writeJSON(w, http.StatusInternalServerError, messageResponse{Message: "Error exporting bookings"})
	}
}

func (s *Server) listHotelsHandler(w http.ResponseWriter, r *http.Request) {
	hotels, err := s.hotels.ListHotels(r.Context(), r.URL.Query().Get("location"))
	if err != nil {
		s.l.LogErrorf("Could not list hotels: %v", err.Error())
		s.writeJSON(w, http.StatusInternalServerError, messageResponse{Message: "Error retrieving hotels"})

		return
	}

	s.writeJSON(w, http.StatusOK, hotels)
}

func (s *Server) hotelAvailabilityHandler(w http.ResponseWriter, r *http.Request) {
	hotelID := r.PathValue("id")
	query := r.URL.Query()

	dates, err := booking.ParseDateRange(query.Get("checkIn"), query.Get("checkOut"))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, messageResponse{Message: "Invalid date range", Error: err.Error()})

		return
	}

	if dates.Nights() > maxAvailabilityNights {
		s.writeJSON(w, http.StatusBadRequest, messageResponse{
			Message: fmt.Sprintf("Date range must not exceed %d nights", maxAvailabilityNights),
		})

		return
	}

	days, err := s.bookings.Availability(r.Context(), hotelID, dates)

	switch {
	case errors.Is(err, booking.ErrHotelNotFound):
		s.writeJSON(w, http.StatusNotFound, messageResponse{Message: "Hotel not found"})

		return
	case err != nil:
		s.l.LogErrorf("Could not get availability of hotel %s: %v", hotelID, err.Error())
		s.writeJSON(w, http.StatusInternalServerError, messageResponse{Message: "Error retrieving availability"})

		return
	}

	remaining := 0
	for i, d := range days {
		if i == 0 || d.Remaining < remaining {
			remaining = d.Remaining
		}
	}

	s.writeJSON(w, http.StatusOK, availabilityResponse{
		HotelID:   hotelID,
		CheckIn:   dates.CheckIn.Format(booking.DateLayout),
		CheckOut:  dates.CheckOut.Format(booking.DateLayout),
		Remaining: remaining,
		Days:      days,
	})
}

func (s *Server) livenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.l.LogErrorf("Could not encode response: %v", err.Error())
	}
}

func (s *Server) addRoutes(r *http.ServeMux) {
	routes := map[string]http.HandlerFunc{
		"POST /bookings":                s.createBookingHandler,
		"GET /bookings":                 s.listBookingsHandler,
		"GET /bookings/export":          s.exportBookingsHandler,
		"PUT /bookings/{id}":            s.updateBookingHandler,
		"DELETE /bookings/{id}":         s.deleteBookingHandler,
		"GET /hotels":                   s.listHotelsHandler,
		"GET /hotels/{id}/availability": s.hotelAvailabilityHandler,
	}

	routes[fmt.Sprintf("GET %s", s.conf.LivenessEndpoint)] = s.livenessHandler

	for pattern, handler := range routes {
		r.Handle(pattern, s.applyMiddlewares(handler, s.loggerMiddleware(), s.recoverMiddleware()))
	}

	if s.conf.MetricsHandler != nil {
		r.Handle(fmt.Sprintf("GET %s", s.conf.MetricsEndpoint), s.conf.MetricsHandler)
	}
}
