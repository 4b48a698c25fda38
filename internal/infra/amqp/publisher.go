package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"samaquiz-service/internal/domain"
)

// DefaultExchange is the topic exchange session lifecycle events go to.
const DefaultExchange = "quiz_session.events"

// Publisher forwards session lifecycle events to a RabbitMQ topic exchange so
// other services (analytics, notifications) can follow quiz progress. With an
// empty URL it is disabled and drops events.
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
	enabled  bool
}

// Message is the body published for each event.
type Message struct {
	EventType  domain.EventKind `json:"event_type"`
	SessionID  string           `json:"quiz_session_id"`
	Version    int64            `json:"version"`
	Count      int              `json:"count,omitempty"`
	Status     string           `json:"status,omitempty"`
	QuizID     string           `json:"quiz_id,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

func NewPublisher(url, exchange string) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if url == "" {
		slog.Info("amqp url not configured, lifecycle events disabled")
		return &Publisher{exchange: exchange}, nil
	}

	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	err = channel.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	slog.Info("lifecycle event publisher ready", "exchange", exchange)
	return &Publisher{conn: conn, channel: channel, exchange: exchange, enabled: true}, nil
}

// Publish sends lifecycle events. Per-answer tallies are not forwarded.
func (p *Publisher) Publish(ctx context.Context, event domain.SessionEvent) error {
	if !p.enabled || !Forwarded(event.Kind) {
		return nil
	}
	body, err := json.Marshal(NewMessage(event))
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.channel.PublishWithContext(ctx,
		p.exchange,
		RoutingKey(event.Kind),
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    event.OccurredAt,
			Body:         body,
			Headers: amqp091.Table{
				"event_type":      string(event.Kind),
				"quiz_session_id": event.SessionID,
			},
		},
	)
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	if !p.enabled {
		return nil
	}
	if err := p.channel.Close(); err != nil {
		return err
	}
	return p.conn.Close()
}

// Forwarded reports whether an event kind goes to the exchange.
func Forwarded(kind domain.EventKind) bool {
	return kind != domain.EventResponse
}

// RoutingKey maps an event kind to its topic, e.g. quiz_session.quiz_start.
func RoutingKey(kind domain.EventKind) string {
	switch kind {
	case domain.EventJoined:
		return "quiz_session.joined"
	case domain.EventCountdown:
		return "quiz_session.countdown"
	case domain.EventQuizStart:
		return "quiz_session.quiz_start"
	case domain.EventQuestionStart:
		return "quiz_session.question_start"
	case domain.EventQuestionEndUpdate:
		return "quiz_session.question_end_update"
	case domain.EventQuizEnd:
		return "quiz_session.quiz_end"
	case domain.EventQuizCancel:
		return "quiz_session.quiz_cancel"
	case domain.EventResponse:
		return "quiz_session.response"
	}
	return "quiz_session.unknown"
}

// NewMessage builds the published body for an event.
func NewMessage(event domain.SessionEvent) Message {
	msg := Message{
		EventType:  event.Kind,
		SessionID:  event.SessionID,
		Version:    event.Version,
		Count:      event.Count,
		OccurredAt: event.OccurredAt,
	}
	if event.Session != nil {
		msg.Status = string(event.Session.Status)
		msg.QuizID = event.Session.QuizID
	}
	return msg
}
