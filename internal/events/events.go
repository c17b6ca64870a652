// Package events publishes ride lifecycle events after successful
// mutations. Consumers project them into the per-ride activity feed.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/example/chainride/internal/observability"
)

// Event types.
const (
	DriverRegistered = "driver.registered"
	ClientRegistered = "client.registered"
	RideCreated      = "ride.created"
	RideRequested    = "ride.requested"
	RequestAccepted  = "request.accepted"
	RequestRejected  = "request.rejected"
	RequestCanceled  = "request.canceled"
	RideStarted      = "ride.started"
	RideCompleted    = "ride.completed"
	PassengerDropped = "ride.passenger_completed"
	RideCanceled     = "ride.canceled"
	PaymentSettled   = "payment.settled"
	RatingSubmitted  = "rating.submitted"
)

type Event struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	RideID     uint64            `json:"rideId,omitempty"`
	Account    string            `json:"account,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
}

// New stamps an event with an id and the current time.
func New(typ string, rideID uint64, account string, attrs map[string]string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		RideID:     rideID,
		Account:    account,
		Attributes: attrs,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher delivers events. Publishing is best effort: a failure is
// logged by the caller and never undoes the ledger mutation.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

type KafkaPublisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaPublisher{writer: w, logger: logger.With("component", "events")}
}

// Publish keys messages by ride id so a ride's events stay ordered.
func (k *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	key := []byte(e.Account)
	if e.RideID != 0 {
		key = []byte(strconv.FormatUint(e.RideID, 10))
	}
	if err := k.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: b}); err != nil {
		observability.EventsPublished.WithLabelValues("failed").Inc()
		return err
	}
	observability.EventsPublished.WithLabelValues("ok").Inc()
	return nil
}

func (k *KafkaPublisher) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}

// NopPublisher drops events. Used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }

// Decode parses a message payload.
func Decode(b []byte) (Event, error) {
	var e Event
	err := json.Unmarshal(b, &e)
	return e, err
}
