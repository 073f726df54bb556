package amqp

import (
	"context"
	"encoding/json"

	"github.com/BearBump/LiveTrace/internal/broker/messages"
	"github.com/BearBump/LiveTrace/internal/models"
	"github.com/pkg/errors"
	amqp091 "github.com/rabbitmq/amqp091-go"
)

const (
	DefaultExchange = "livetrace.events"

	RoutingNotificationCreated = "notification.created"
)

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// Publisher writes JSON events to a durable topic exchange.
type Publisher struct {
	conn     *amqp091.Connection
	ch       channel
	exchange string
}

func Dial(url, exchange string) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "connect to rabbitmq")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, errors.Wrapf(err, "declare exchange %s", exchange)
	}
	return &Publisher{conn: conn, ch: ch, exchange: exchange}, nil
}

func newPublisherWithChannel(ch channel, exchange string) *Publisher {
	return &Publisher{ch: ch, exchange: exchange}
}

func (p *Publisher) Publish(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "encode amqp payload")
	}
	err = p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Body:         body,
	})
	if err != nil {
		return errors.Wrapf(err, "amqp publish %s", routingKey)
	}
	return nil
}

// Enqueue hands a notification to the outbound delivery queue.
func (p *Publisher) Enqueue(ctx context.Context, n *models.Notification) error {
	return p.Publish(ctx, RoutingNotificationCreated, messages.NewNotificationCreated(n))
}

func (p *Publisher) Name() string { return "rabbitmq" }

func (p *Publisher) Ping(ctx context.Context) error {
	if p.conn == nil || p.conn.IsClosed() {
		return errors.New("rabbitmq connection closed")
	}
	return nil
}

func (p *Publisher) Close() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}
