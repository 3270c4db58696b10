package web

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/avstrong/hotelbooking/internal/booking"
	"github.com/avstrong/hotelbooking/internal/logger"
)

var ErrPanic = errors.New("panic")

type bookingService interface {
	CreateBooking(ctx context.Context, input booking.CreateInput) (*booking.Booking, error)
	UpdateBooking(ctx context.Context, input booking.UpdateInput) (*booking.Booking, error)
	DeleteBooking(ctx context.Context, bookingID string) error
	ListBookings(ctx context.Context) ([]booking.Booking, error)
	Availability(ctx context.Context, hotelID string, r booking.DateRange) ([]booking.DayCapacity, error)
}

type hotelCatalog interface {
	ListHotels(ctx context.Context, location string) ([]booking.Hotel, error)
}

type bookingExporter interface {
	Write(ctx context.Context, w io.Writer) error
}

type Server struct {
	srv      *http.Server
	router   *http.ServeMux
	l        *logger.Logger
	conf     Conf
	bookings bookingService
	hotels   hotelCatalog
	exporter bookingExporter
}

type Conf struct {
	L                 *logger.Logger
	ServerLogger      *log.Logger
	Host              string
	Port              string
	ReadHeaderTimeout time.Duration
	LivenessEndpoint  string
	// MetricsHandler is served on MetricsEndpoint when not nil.
	MetricsHandler  http.Handler
	MetricsEndpoint string
}

func New(
	ctx context.Context,
	conf Conf,
	bookings bookingService,
	hotels hotelCatalog,
	exporter bookingExporter,
) (*Server, error) {
	mux := http.NewServeMux()

	//nolint:exhaustruct
	srv := &http.Server{
		Addr:              net.JoinHostPort(conf.Host, conf.Port),
		ReadHeaderTimeout: conf.ReadHeaderTimeout,
		ErrorLog:          conf.ServerLogger,
		Handler:           mux,
		BaseContext: func(listener net.Listener) context.Context {
			return ctx
		},
	}

	server := &Server{
		srv:      srv,
		router:   mux,
		l:        conf.L,
		conf:     conf,
		bookings: bookings,
		hotels:   hotels,
		exporter: exporter,
	}

	server.addRoutes(mux)

	return server, nil
}

func (s *Server) Srv() *http.Server {
	return s.srv
}

// Handler exposes the routes without the listener.
func (s *Server) Handler() http.Handler {
	return s.router
}
