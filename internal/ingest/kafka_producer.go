package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// TripEvent is the lifecycle record published for analytics and the
// presence-mirror consumer. It is fire-and-forget telemetry; the engine
// never reads events back.
type TripEvent struct {
	Type        string    `json:"type"`
	RequestID   string    `json:"request_id,omitempty"`
	TripID      string    `json:"trip_id,omitempty"`
	PassengerID string    `json:"passenger_id,omitempty"`
	DriverID    string    `json:"driver_id,omitempty"`
	Price       float64   `json:"price,omitempty"`
	Online      bool      `json:"online,omitempty"`
	Rating      int       `json:"rating,omitempty"`
	At          time.Time `json:"at"`
}

// Event types on the trip-events topic.
const (
	EventRequestSubmitted    = "request_submitted"
	EventOfferReceived       = "offer_received"
	EventOfferAccepted       = "offer_accepted"
	EventRequestCancelled    = "request_cancelled"
	EventTripCompleted       = "trip_completed"
	EventTripRated           = "trip_rated"
	EventDriverPresence      = "driver_presence"
	EventVerificationChanged = "verification_changed"
)

type KafkaProducer struct {
	writer *kafka.Writer
}

func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &KafkaProducer{writer: w}
}

// Publish keys events by trip request so one negotiation stays in order on
// a single partition.
func (k *KafkaProducer) Publish(ev TripEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	key := ev.RequestID
	if key == "" {
		key = ev.DriverID
	}
	b, _ := json.Marshal(ev)
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: b})
}

func (k *KafkaProducer) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
