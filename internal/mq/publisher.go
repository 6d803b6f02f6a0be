package mq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// channel is the subset of *amqp.Channel used for publishing.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type connection interface {
	Close() error
}

type dialFunc func() (connection, channel, error)

// Publisher sends events to a durable topic exchange. The event type is the
// routing key. A closed channel is redialed once per publish.
type Publisher struct {
	exchange string
	dial     dialFunc
	logger   *zerolog.Logger

	mu   sync.Mutex
	conn connection
	ch   channel
}

func NewPublisher(url, exchange string, logger *zerolog.Logger) (*Publisher, error) {
	dial := func() (connection, channel, error) {
		conn, err := amqp.Dial(url)
		if err != nil {
			return nil, nil, fmt.Errorf("dial rabbitmq: %w", err)
		}
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("open channel: %w", err)
		}
		if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, nil, fmt.Errorf("declare exchange: %w", err)
		}
		return conn, ch, nil
	}
	return newPublisher(exchange, dial, logger)
}

func newPublisher(exchange string, dial dialFunc, logger *zerolog.Logger) (*Publisher, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	p := &Publisher{exchange: exchange, dial: dial, logger: logger}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Publisher) connect() error {
	conn, ch, err := p.dial()
	if err != nil {
		return err
	}
	p.conn, p.ch = conn, ch
	return nil
}

// Publish sends body with eventID as the AMQP message id.
func (p *Publisher) Publish(ctx context.Context, eventType, eventID string, body []byte) error {
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    eventID,
		Type:         eventType,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil {
		if err := p.connect(); err != nil {
			return err
		}
	}

	err := p.ch.PublishWithContext(ctx, p.exchange, eventType, false, false, msg)
	if !errors.Is(err, amqp.ErrClosed) {
		return err
	}

	p.logger.Warn().Str("event_type", eventType).Msg("RabbitMQ channel closed, reconnecting")
	p.closeLocked()
	if err := p.connect(); err != nil {
		return err
	}
	return p.ch.PublishWithContext(ctx, p.exchange, eventType, false, false, msg)
}

func (p *Publisher) closeLocked() error {
	var err error
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		err = p.conn.Close()
		p.conn = nil
	}
	return err
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeLocked()
}

// LogPublisher stands in for the broker when RabbitMQ is disabled.
type LogPublisher struct {
	Logger *zerolog.Logger
}

func (p LogPublisher) Publish(ctx context.Context, eventType, eventID string, body []byte) error {
	if p.Logger != nil {
		p.Logger.Debug().Str("event_type", eventType).Str("event_id", eventID).RawJSON("payload", body).Msg("Event")
	}
	return nil
}
