// Package kafka publishes outgoing notifications to a topic for an external
// delivery service to pick up, instead of sending them in-process.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"
)

const (
	eventEmail = "email"
	eventText  = "text"
)

// Event is the message value written to the notifications topic.
type Event struct {
	Type       string   `json:"type"`
	Subject    string   `json:"subject,omitempty"`
	Message    string   `json:"message"`
	Recipients []string `json:"recipients"`
}

type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	l     *slog.Logger
	w     writer
	topic string
}

// NewProducer writes synchronously so a failed publish surfaces to the caller.
func NewProducer(l *slog.Logger, brokers []string, topic string) *Producer {
	l = l.WithGroup("kafka").With("topic", topic)
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		ErrorLogger:            kafka.LoggerFunc(func(msg string, args ...interface{}) { l.Error(fmt.Sprintf(msg, args...)) }),
	}
	return &Producer{l: l, w: w, topic: topic}
}

func (p *Producer) SendEmail(ctx context.Context, to, subject, body string) error {
	return p.publish(ctx, to, Event{Type: eventEmail, Subject: subject, Message: body, Recipients: []string{to}})
}

func (p *Producer) SendText(ctx context.Context, to, body string) error {
	return p.publish(ctx, to, Event{Type: eventText, Message: body, Recipients: []string{to}})
}

// publish keys by recipient so messages for one address stay ordered.
func (p *Producer) publish(ctx context.Context, key string, e Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	err = p.w.WriteMessages(ctx, kafka.Message{
		Topic: p.topic,
		Key:   []byte(key),
		Value: b,
	})
	if err != nil {
		return fmt.Errorf("write kafka message: %w", err)
	}
	return nil
}

func (p *Producer) Close() {
	if err := p.w.Close(); err != nil {
		p.l.Error("close kafka writer", "err", err)
	}
}
