package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/avstrong/hotelbooking/internal/booking"
	"github.com/avstrong/hotelbooking/internal/logger"
)

var ErrClosed = errors.New("publisher is closed")

type Config struct {
	L     *logger.Logger
	URL   string
	Queue string
	// PublishTimeout bounds a single publish. Zero leaves it to the caller.
	PublishTimeout time.Duration
}

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQ publishes booking events to a durable queue through the default
// exchange. One channel is shared and guarded by a mutex since amqp channels
// must not be used concurrently.
type RabbitMQ struct {
	l              *logger.Logger
	queue          string
	publishTimeout time.Duration

	mu     sync.Mutex
	conn   io.Closer
	ch     channel
	closed bool
}

func NewRabbitMQ(conf Config) (*RabbitMQ, error) {
	conn, err := amqp.Dial(conf.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()

		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}

	if _, err = ch.QueueDeclare(conf.Queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()

		return nil, fmt.Errorf("declare queue %s: %w", conf.Queue, err)
	}

	conf.L.LogInfo("RabbitMQ publisher is ready, queue %s", conf.Queue)

	//nolint:exhaustruct
	return &RabbitMQ{
		l:              conf.L,
		queue:          conf.Queue,
		publishTimeout: conf.PublishTimeout,
		conn:           conn,
		ch:             ch,
	}, nil
}

func (p *RabbitMQ) Publish(ctx context.Context, event booking.Event) error {
	msg, err := encode(event)
	if err != nil {
		return err
	}

	if p.publishTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, p.publishTimeout)
		defer cancel()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	if err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		return fmt.Errorf("publish %s to %s: %w", event.Type, p.queue, err)
	}

	p.l.LogDebugf("Event %s of booking %s has been published", event.Type, event.Booking.ID)

	return nil
}

func (p *RabbitMQ) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true

	return errors.Join(p.ch.Close(), p.conn.Close())
}

func encode(event booking.Event) (amqp.Publishing, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal %s event: %w", event.Type, err)
	}

	//nolint:exhaustruct
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         string(event.Type),
		MessageId:    event.Booking.ID,
		Timestamp:    event.OccurredAt,
		Body:         body,
	}, nil
}

type Nop struct{}

func (Nop) Publish(context.Context, booking.Event) error { return nil }
