package notify

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	skafka "github.com/segmentio/kafka-go"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-tenancy-backend/internal/domain"
	"github.com/tbourn/go-tenancy-backend/internal/repo"
)

// Sink delivers a single request to one destination.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, req Request) error
}

// Subject renders a human-readable title for a notification type, e.g.
// "tenancy_proposed" becomes "Tenancy Proposed".
func Subject(t Type) string {
	// Casers are stateful; build one per call.
	return cases.Title(language.English).String(strings.ReplaceAll(string(t), "_", " "))
}

// InboxSink stores notifications in the user's inbox table.
type InboxSink struct {
	DB  *gorm.DB
	Now func() time.Time
}

// Name implements Sink.
func (s *InboxSink) Name() string { return "inbox" }

// Deliver implements Sink.
func (s *InboxSink) Deliver(ctx context.Context, req Request) error {
	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now()
	}
	kv := datatypes.JSONMap{}
	for k, v := range req.Context {
		kv[k] = v
	}
	return repo.CreateNotification(ctx, s.DB, &domain.Notification{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Type:      string(req.Type),
		Subject:   Subject(req.Type),
		Context:   kv,
		CreatedAt: now,
	})
}

// Writer is the subset of the kafka-go writer the sink needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...skafka.Message) error
	Close() error
}

// KafkaSink publishes notifications as JSON events keyed by user id, so a
// user's notifications stay ordered within a partition.
type KafkaSink struct {
	writer Writer
}

// NewKafkaSink builds a sink writing to topic on the given brokers.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	w := &skafka.Writer{
		Addr:         skafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &skafka.Hash{},
		RequiredAcks: skafka.RequireOne,
	}
	return &KafkaSink{writer: w}
}

// NewKafkaSinkWithWriter allows injecting a test writer.
func NewKafkaSinkWithWriter(w Writer) *KafkaSink {
	return &KafkaSink{writer: w}
}

type kafkaEvent struct {
	Request
	Subject string    `json:"subject"`
	SentAt  time.Time `json:"sent_at"`
}

// Name implements Sink.
func (s *KafkaSink) Name() string { return "kafka" }

// Deliver implements Sink.
func (s *KafkaSink) Deliver(ctx context.Context, req Request) error {
	b, err := json.Marshal(kafkaEvent{Request: req, Subject: Subject(req.Type), SentAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, skafka.Message{Key: []byte(req.UserID), Value: b})
}

// Close closes the underlying writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// LogSink writes every notification to the structured log.
type LogSink struct{}

// Name implements Sink.
func (LogSink) Name() string { return "log" }

// Deliver implements Sink.
func (LogSink) Deliver(_ context.Context, req Request) error {
	ev := log.Info().
		Str("component", "notify").
		Str("user_id", req.UserID).
		Str("type", string(req.Type))
	for k, v := range req.Context {
		ev = ev.Str(k, v)
	}
	ev.Msg("notification")
	return nil
}
