// Package events publishes session lifecycle events to a RabbitMQ topic
// exchange for analytics consumers. Publishing is asynchronous: callers
// enqueue and never wait on the broker.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/playperu/motionquiz/internal/metrics"
	"github.com/playperu/motionquiz/internal/motionquiz"
)

const (
	ExchangeName = "motionquiz.events"
	queueSize    = 256
)

// channel is the slice of *amqp091.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

type envelope struct {
	key  EventType
	body any
}

type Publisher struct {
	conn    *amqp091.Connection
	channel channel
	logger  *slog.Logger
	queue   chan envelope
	enabled bool
	now     func() time.Time
}

// NewPublisher dials rabbitURI and declares the topic exchange. An empty
// URI yields a disabled publisher that drops every event.
func NewPublisher(rabbitURI string, logger *slog.Logger) (*Publisher, error) {
	if rabbitURI == "" {
		logger.Warn("AMQP_URL is empty, lifecycle events are disabled")
		return &Publisher{logger: logger, now: time.Now}, nil
	}

	conn, err := amqp091.Dial(rabbitURI)
	if err != nil {
		return nil, fmt.Errorf("connecting to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		ExchangeName, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declaring exchange: %w", err)
	}

	p := newPublisher(ch, logger)
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, logger *slog.Logger) *Publisher {
	return &Publisher{
		channel: ch,
		logger:  logger,
		queue:   make(chan envelope, queueSize),
		enabled: true,
		now:     time.Now,
	}
}

func (p *Publisher) Enabled() bool { return p.enabled }

var errConnectionClosed = errors.New("rabbitmq connection closed")

// Check reports whether the broker connection is still open.
func (p *Publisher) Check(context.Context) error {
	if p.conn != nil && p.conn.IsClosed() {
		return errConnectionClosed
	}
	return nil
}

// Run drains the queue until ctx is cancelled, then flushes what is left
// with a short deadline.
func (p *Publisher) Run(ctx context.Context) error {
	if !p.enabled {
		<-ctx.Done()
		return nil
	}
	for {
		select {
		case ev := <-p.queue:
			p.publish(ctx, ev)
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			for {
				select {
				case ev := <-p.queue:
					p.publish(flushCtx, ev)
				default:
					return nil
				}
			}
		}
	}
}

func (p *Publisher) Close() error {
	if !p.enabled {
		return nil
	}
	p.channel.Close()
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

func (p *Publisher) SessionStarted(s motionquiz.Session, participants int) {
	p.enqueue(EventSessionStarted, SessionStartedEvent{
		BaseEvent:    newBase(EventSessionStarted, s, p.now()),
		HostID:       s.HostID,
		TotalRounds:  s.TotalRounds,
		Participants: participants,
	})
}

func (p *Publisher) RoundClosed(s motionquiz.Session, r motionquiz.Round, responses []motionquiz.Response) {
	ev := RoundClosedEvent{
		BaseEvent:  newBase(EventRoundClosed, s, p.now()),
		Round:      r.Number,
		QuestionID: r.QuestionID,
	}
	for _, resp := range responses {
		if !resp.TimedOut {
			ev.Responded++
		}
		if resp.IsCorrect {
			ev.Correct++
		}
	}
	p.enqueue(EventRoundClosed, ev)
}

func (p *Publisher) SessionFinished(s motionquiz.Session, leaderboard []motionquiz.Score) {
	p.enqueue(EventSessionFinished, SessionFinishedEvent{
		BaseEvent:    newBase(EventSessionFinished, s, p.now()),
		RoundsPlayed: s.CurrentRound,
		Leaderboard:  leaderboard,
	})
}

func (p *Publisher) enqueue(key EventType, body any) {
	if !p.enabled {
		return
	}
	select {
	case p.queue <- envelope{key: key, body: body}:
	default:
		metrics.EventsPublished.WithLabelValues(string(key), "dropped").Inc()
		p.logger.Warn("event queue full, dropping event", "routing_key", key)
	}
}

func (p *Publisher) publish(ctx context.Context, ev envelope) {
	body, err := json.Marshal(ev.body)
	if err != nil {
		p.logger.Error("marshaling event", "routing_key", ev.key, "error", err)
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = p.channel.PublishWithContext(
		pubCtx,
		ExchangeName,   // exchange
		string(ev.key), // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    p.now(),
			Body:         body,
		},
	)
	if err != nil {
		metrics.EventsPublished.WithLabelValues(string(ev.key), "error").Inc()
		p.logger.Error("publishing event", "routing_key", ev.key, "error", err)
		return
	}
	metrics.EventsPublished.WithLabelValues(string(ev.key), "ok").Inc()
	p.logger.Debug("published event", "routing_key", ev.key)
}
