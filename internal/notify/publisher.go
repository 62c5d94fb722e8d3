package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"room-reservation-api/internal/booking"
	"room-reservation-api/internal/model"
)

const (
	RoutingCreated = "reservation.created"
	RoutingDeleted = "reservation.deleted"
)

// Event is the JSON body of every published message.
type Event struct {
	Type          string    `json:"type"`
	ReservationID string    `json:"reservationId"`
	RoomID        string    `json:"roomId"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	AllDay        bool      `json:"allDay"`
	OwnerID       string    `json:"ownerId"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// channel is the subset of *amqp.Channel the publisher uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends reservation lifecycle events to a topic exchange.
type Publisher struct {
	conn     *amqp.Connection
	ch       channel
	exchange string
	now      func() time.Time
}

var _ booking.Events = (*Publisher)(nil)

// Dial connects to the broker and declares the durable topic exchange.
func Dial(url, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	p, err := newPublisher(ch, exchange)
	if err != nil {
		conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, exchange string) (*Publisher, error) {
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &Publisher{ch: ch, exchange: exchange, now: time.Now}, nil
}

func (p *Publisher) ReservationCreated(ctx context.Context, r model.Reservation) error {
	return p.publish(ctx, RoutingCreated, r)
}

func (p *Publisher) ReservationDeleted(ctx context.Context, r model.Reservation) error {
	return p.publish(ctx, RoutingDeleted, r)
}

func (p *Publisher) publish(ctx context.Context, key string, r model.Reservation) error {
	body, err := json.Marshal(Event{
		Type:          key,
		ReservationID: r.ID,
		RoomID:        r.Interval.RoomID,
		Start:         r.Interval.Start,
		End:           r.Interval.End,
		AllDay:        r.AllDay,
		OwnerID:       r.OwnerID,
		OccurredAt:    p.now().UTC(),
	})
	if err != nil {
		return err
	}
	return p.ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    r.ID + ":" + key,
		Timestamp:    p.now(),
		Body:         body,
	})
}

func (p *Publisher) Close() error {
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
