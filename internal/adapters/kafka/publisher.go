// Package kafka publishes State service events to Kafka topics.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/target/itinerary/internal/core"
	"github.com/target/itinerary/internal/domain/model"
)

// messageWriter abstracts kafka.Writer for tests.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Topics maps outbound message types to topic names.
type Topics struct {
	Completion string
	Status     string
}

// PublisherOptions configures a Publisher.
type PublisherOptions struct {
	Brokers      []string
	Topics       Topics
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// Publisher writes events synchronously, keyed by job id so a job's events stay in one partition.
type Publisher struct {
	writer messageWriter
	topics Topics
	logger *slog.Logger
}

var _ core.EventPublisher = (*Publisher)(nil)

// NewPublisher builds a kafka.Writer that waits for all in-sync replicas.
func NewPublisher(opts PublisherOptions) (*Publisher, error) {
	if len(opts.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if opts.Topics.Completion == "" {
		return nil, errors.New("kafka completion topic is required")
	}
	timeout := opts.WriteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(opts.Brokers...),
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
		Async:                  false,
		WriteTimeout:           timeout,
		ReadTimeout:            timeout,
	}
	return newPublisher(w, opts.Topics, opts.Logger), nil
}

func newPublisher(w messageWriter, topics Topics, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{writer: w, topics: topics, logger: logger.With("component", "kafka_publisher")}
}

// PublishStatus writes a job.status event. Without a status topic the event is dropped.
func (p *Publisher) PublishStatus(ctx context.Context, update model.JobStatusUpdate) error {
	if p.topics.Status == "" {
		return nil
	}
	return p.write(ctx, p.topics.Status, model.MessageJobStatus, update.JobID, update)
}

// PublishCompletion writes a processing.complete event.
func (p *Publisher) PublishCompletion(ctx context.Context, event model.ProcessingComplete) error {
	return p.write(ctx, p.topics.Completion, model.MessageProcessingComplete, event.JobID, event)
}

func (p *Publisher) write(ctx context.Context, topic string, msgType model.MessageType, jobID string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msgType, err)
	}
	msg := kafkago.Message{
		Topic: topic,
		Key:   []byte(jobID),
		Value: body,
		Headers: []kafkago.Header{
			{Key: "content-type", Value: []byte("application/json")},
			{Key: "message-type", Value: []byte(msgType)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WarnContext(ctx, "kafka write failed", "topic", topic, "job_id", jobID, "error", err)
		return fmt.Errorf("kafka publish %s: %w", msgType, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
