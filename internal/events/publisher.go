package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	kafka "github.com/segmentio/kafka-go"

	"adminpanel/internal/domain"
	"adminpanel/internal/domain/jsoncfg"
	"adminpanel/internal/infra"
)

const (
	TypeImageGenerated = "image.generated"
	TypeImageArchived  = "image.archived"
)

// Event describes a change to a generated image.
type Event struct {
	Type       string                   `json:"type"`
	OccurredAt time.Time                `json:"occurred_at"`
	Image      domain.GeneratedArtifact `json:"image"`
}

// NewImageEvent stamps an event for artifact.
func NewImageEvent(eventType string, artifact domain.GeneratedArtifact) Event {
	return Event{Type: eventType, OccurredAt: time.Now().UTC(), Image: artifact}
}

// Payload is the message body written to the topic.
func (e Event) Payload() json.RawMessage {
	return jsoncfg.MustMarshal(e)
}

// Publisher delivers lifecycle events. Callers log failures and carry on.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }

// KafkaPublisher writes events to a single topic keyed by character id.
type KafkaPublisher struct {
	writer  *kafka.Writer
	timeout time.Duration
	logger  *infra.Logger
}

// NewPublisher returns a Kafka publisher, or a NopPublisher when no broker is configured.
func NewPublisher(brokers []string, topic string, logger *infra.Logger) Publisher {
	if len(brokers) == 0 {
		return NopPublisher{}
	}
	if topic == "" {
		topic = "character-images"
	}
	if logger == nil {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}
	// kafka.Writer is safe for concurrent use
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		RequiredAcks:           kafka.RequireOne,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	logger.Info().Strs("brokers", brokers).Str("topic", topic).Msg("events: kafka publisher enabled")
	return &KafkaPublisher{writer: w, timeout: 2 * time.Second, logger: logger}
}

func (p *KafkaPublisher) Publish(ctx context.Context, evt Event) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	msg := kafka.Message{
		Key:   []byte(evt.Image.CharacterID),
		Value: evt.Payload(),
		Time:  evt.OccurredAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(evt.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("events: publish %s: %w", evt.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Recorder keeps published events in memory.
type Recorder struct {
	Events []Event
	Err    error
}

func (r *Recorder) Publish(_ context.Context, evt Event) error {
	if r.Err != nil {
		return r.Err
	}
	r.Events = append(r.Events, evt)
	return nil
}

func (r *Recorder) Close() error { return nil }
