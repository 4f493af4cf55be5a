// Package service holds outbound integrations of the seat engine.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/seat-hold-engine/internal/logging"
	"github.com/iliyamo/seat-hold-engine/internal/queue"
)

// Publisher publishes seats.confirmed events to RabbitMQ.  The connection
// is dialled on first use and redialled after the broker drops it.
// Failures are logged and returned; callers treat publishing as best
// effort since the reservation is already committed.
type Publisher struct {
	url string

	mu   sync.Mutex
	conn *amqp.Connection
}

// NewPublisher returns a publisher for the broker at url.
func NewPublisher(url string) *Publisher {
	return &Publisher{url: url}
}

func (p *Publisher) connection() (*amqp.Connection, error) {
	if p.conn != nil && !p.conn.IsClosed() {
		return p.conn, nil
	}
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, err
	}
	p.conn = conn
	return conn, nil
}

// PublishSeatsConfirmed sends ev as a persistent JSON message to the
// seats.confirmed queue.
func (p *Publisher) PublishSeatsConfirmed(ctx context.Context, ev queue.SeatsConfirmedEvent) error {
	log := logging.FromContext(ctx).WithFields(logrus.Fields{
		"component": "publisher",
		"event_id":  ev.EventID,
	})
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	conn, err := p.connection()
	if err != nil {
		log.WithError(err).Warn("rabbitmq dial failed")
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		log.WithError(err).Warn("rabbitmq channel open failed")
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(queue.SeatsConfirmedQueue, true, false, false, false, nil); err != nil {
		log.WithError(err).Warn("rabbitmq queue declare failed")
		return err
	}
	err = ch.PublishWithContext(ctx, "", queue.SeatsConfirmedQueue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.EventID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		log.WithError(err).Warn("rabbitmq publish failed")
		return err
	}
	log.Debug("seats.confirmed published")
	return nil
}

// Close closes the underlying connection, if any.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil || p.conn.IsClosed() {
		return nil
	}
	err := p.conn.Close()
	if errors.Is(err, amqp.ErrClosed) {
		return nil
	}
	return err
}
