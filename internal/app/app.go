package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/avstrong/hotelbooking/internal/booking"
	"github.com/avstrong/hotelbooking/internal/catalog"
	"github.com/avstrong/hotelbooking/internal/config"
	"github.com/avstrong/hotelbooking/internal/events"
	"github.com/avstrong/hotelbooking/internal/export"
	"github.com/avstrong/hotelbooking/internal/idgen/simple"
	"github.com/avstrong/hotelbooking/internal/idgen/uuidgen"
	"github.com/avstrong/hotelbooking/internal/lock"
	"github.com/avstrong/hotelbooking/internal/logger"
	"github.com/avstrong/hotelbooking/internal/metrics"
	"github.com/avstrong/hotelbooking/internal/migration"
	"github.com/avstrong/hotelbooking/internal/retry"
	"github.com/avstrong/hotelbooking/internal/storage/dynamo"
	"github.com/avstrong/hotelbooking/internal/storage/file"
	"github.com/avstrong/hotelbooking/internal/storage/memory"
	"github.com/avstrong/hotelbooking/internal/storage/mysql"
	"github.com/avstrong/hotelbooking/internal/transport/web"
)

type store interface {
	BeginTransaction(ctx context.Context, level string) (context.Context, error)
	CommitTransaction(ctx context.Context) error
	RollbackTransaction(ctx context.Context) error
	GetHotel(ctx context.Context, id string) (booking.Hotel, error)
	ListHotels(ctx context.Context) ([]booking.Hotel, error)
	SaveHotels(ctx context.Context, hotels []booking.Hotel) error
	GetBooking(ctx context.Context, id string) (booking.Booking, error)
	ListBookings(ctx context.Context) ([]booking.Booking, error)
	ListBookingsByHotel(ctx context.Context, hotelID string) ([]booking.Booking, error)
	InsertBooking(ctx context.Context, b booking.Booking) error
	ReplaceBooking(ctx context.Context, b booking.Booking) error
	RemoveBooking(ctx context.Context, id string) error
}

type locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

type publisher interface {
	Publish(ctx context.Context, event booking.Event) error
}

type idGenerator interface {
	GetID(ctx context.Context) (string, error)
}

// closers are run in reverse order on shutdown.
type closers []func() error

func (c *closers) add(fn func() error) {
	*c = append(*c, fn)
}

func (c closers) close(l *logger.Logger) {
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			l.LogErrorf("Failed to release resource: %v", err.Error())
		}
	}
}

func Run(l *logger.Logger, conf config.Config) error {
	ctx, cancel := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGHUP,
	)
	defer cancel()

	l.SetLevel(logger.ParseLevel(conf.Logging.Level))

	var resources closers
	defer func() { resources.close(l) }()

	storage, err := openStorage(ctx, l, conf.Storage, &resources)
	if err != nil {
		return fmt.Errorf("open %s storage: %w", conf.Storage.Driver, err)
	}

	if err = migration.Up(ctx, l, storage, seedHotels(conf.Seed)); err != nil {
		return fmt.Errorf("up seed migration: %w", err)
	}

	l.LogInfo("Seed migration has been applied")

	locker, err := newLocker(ctx, l, conf, &resources)
	if err != nil {
		return fmt.Errorf("init %s lock: %w", conf.Lock.Driver, err)
	}

	var pub publisher = events.Nop{}

	if conf.Events.Enabled {
		rabbit, err := events.NewRabbitMQ(events.Config{
			L:              l,
			URL:            conf.Events.URL,
			Queue:          conf.Events.Queue,
			PublishTimeout: conf.Events.PublishTimeout,
		})
		if err != nil {
			return fmt.Errorf("init event publisher: %w", err)
		}

		resources.add(rabbit.Close)
		pub = rabbit
	}

	recorder := metrics.New()

	var metricsHandler http.Handler

	if conf.Monitoring.PrometheusEnabled {
		if err = recorder.Register(prometheus.DefaultRegisterer); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}

		metricsHandler = metrics.Handler(prometheus.DefaultGatherer)
	}

	coordinator := booking.NewCoordinator(booking.CoordinatorConfig{
		L:                l,
		Ledger:           booking.NewLedger(l, storage, newIDGenerator(conf.Booking.IDGenerator)),
		Locker:           locker,
		Publisher:        pub,
		Recorder:         recorder,
		LockTimeout:      conf.Booking.LockTimeout,
		OperationTimeout: conf.Booking.OperationTimeout,
		Tracer:           nil,
	})

	webConf := web.Conf{
		L:                 l,
		ServerLogger:      log.Default(),
		Host:              conf.HTTP.Host,
		Port:              conf.HTTP.Port,
		ReadHeaderTimeout: conf.HTTP.ReadHeaderTimeout,
		LivenessEndpoint:  conf.HTTP.LivenessEndpoint,
		MetricsHandler:    metricsHandler,
		MetricsEndpoint:   conf.Monitoring.Path,
	}

	srv, err := web.New(ctx, webConf, coordinator, catalog.New(l, storage), export.New(l, storage))
	if err != nil {
		return fmt.Errorf("init http server: %w", err)
	}

	//nolint:contextcheck
	go func() {
		<-ctx.Done()

		ctx, cancel := context.WithTimeout(context.Background(), conf.HTTP.ShutdownTimeout)
		defer cancel()

		if err := srv.Srv().Shutdown(ctx); err != nil {
			l.LogErrorf("Failed to stop http server: %v", err.Error())
		}
	}()

	l.LogInfo("Application is running on %v:%v with %s storage and %s lock...",
		webConf.Host, webConf.Port, conf.Storage.Driver, conf.Lock.Driver)

	if err := srv.Srv().ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		l.LogErrorf("Failed to run http server: %v", err.Error())

		cancel()
	}

	l.LogInfo("Application stopped gracefully")

	return nil
}

func openStorage(ctx context.Context, l *logger.Logger, conf config.StorageConfig, resources *closers) (store, error) {
	switch conf.Driver {
	case config.StorageFile:
		return file.Open(file.Config{L: l, Dir: conf.File.Dir})
	case config.StorageMySQL:
		s, err := mysql.Open(ctx, mysql.Config{
			L:               l,
			User:            conf.MySQL.User,
			Password:        conf.MySQL.Password,
			Host:            conf.MySQL.Host,
			Port:            conf.MySQL.Port,
			Name:            conf.MySQL.Name,
			MaxOpenConns:    conf.MySQL.MaxOpenConns,
			ConnMaxLifetime: conf.MySQL.ConnMaxLifetime,
			PingTimeout:     conf.MySQL.PingTimeout,
		})
		if err != nil {
			return nil, err
		}

		resources.add(s.Close)

		if conf.MySQL.Migrate {
			if err = s.Migrate(ctx); err != nil {
				return nil, err
			}
		}

		return s, nil
	case config.StorageDynamoDB:
		client, err := dynamo.NewClient(ctx, dynamo.ClientConfig{
			Region:          conf.DynamoDB.Region,
			Endpoint:        conf.DynamoDB.Endpoint,
			AccessKeyID:     conf.DynamoDB.AccessKeyID,
			SecretAccessKey: conf.DynamoDB.SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}

		s := dynamo.New(dynamo.Config{L: l, Client: client, Table: conf.DynamoDB.Table, Now: nil})

		if conf.DynamoDB.CreateTable {
			if err = s.EnsureTable(ctx, client); err != nil {
				return nil, err
			}
		}

		return s, nil
	default:
		//nolint:exhaustruct
		return memory.New(memory.Config{L: l}), nil
	}
}

func newLocker(ctx context.Context, l *logger.Logger, conf config.Config, resources *closers) (locker, error) {
	if conf.Lock.Driver != config.LockRedis {
		return lock.NewLocal(), nil
	}

	//nolint:exhaustruct
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Address,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
		PoolSize: conf.Redis.PoolSize,
	})

	resources.add(client.Close)

	if err := lock.Ping(ctx, client); err != nil {
		return nil, err
	}

	return lock.NewRedis(lock.RedisConfig{
		L:      l,
		Client: client,
		Prefix: conf.Lock.Prefix,
		TTL:    conf.Lock.TTL,
		Backoff: retry.Backoff{
			MaxRetries:       conf.Lock.Retry.MaxRetries,
			InitialDelay:     conf.Lock.Retry.InitialDelay,
			MaxDelay:         conf.Lock.Retry.MaxDelay,
			JitterPercentage: float64(conf.Lock.Retry.JitterPercentage) / 100, //nolint:gomnd
		},
	}), nil
}

func newIDGenerator(kind string) idGenerator {
	if kind == config.IDGeneratorSequence {
		return simple.New("b")
	}

	return uuidgen.New()
}

func seedHotels(conf config.SeedConfig) []booking.Hotel {
	if len(conf.Hotels) == 0 {
		return migration.DefaultHotels()
	}

	hotels := make([]booking.Hotel, 0, len(conf.Hotels))
	for _, h := range conf.Hotels {
		hotels = append(hotels, booking.Hotel{
			ID:         h.ID,
			Name:       h.Name,
			Location:   h.Location,
			TotalRooms: h.TotalRooms,
		})
	}

	return hotels
}
