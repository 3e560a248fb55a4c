package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/funddocs/funds-tracker/internal/pipeline"
)

// Dial connects to RabbitMQ.
func Dial(url string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	return conn, nil
}

// DeclareQueue declares a durable queue, idempotently.
func DeclareQueue(ch *amqp.Channel, name string) error {
	_, err := ch.QueueDeclare(name, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}
	return nil
}

// Publisher sends job and result messages. It implements pipeline.Notifier.
type Publisher struct {
	ch          *amqp.Channel
	jobQueue    string
	resultQueue string
	logger      *slog.Logger
}

func NewPublisher(conn *amqp.Connection, jobQueue, resultQueue string, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	for _, q := range []string{jobQueue, resultQueue} {
		if err := DeclareQueue(ch, q); err != nil {
			return nil, err
		}
	}
	return &Publisher{ch: ch, jobQueue: jobQueue, resultQueue: resultQueue, logger: logger}, nil
}

// PublishJob enqueues one document job.
func (p *Publisher) PublishJob(ctx context.Context, job DocumentJob) error {
	return p.publish(ctx, p.jobQueue, job)
}

// PublishResult emits the downstream "succeeded" event.
func (p *Publisher) PublishResult(ctx context.Context, n pipeline.ResultNotification) error {
	return p.publish(ctx, p.resultQueue, n)
}

func (p *Publisher) publish(ctx context.Context, queueName string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("serialize message: %w", err)
	}
	err = p.ch.PublishWithContext(ctx, "", queueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", queueName, err)
	}
	p.logger.Info("queue.publish.ok", "queue", queueName, "bytes", len(body))
	return nil
}

func (p *Publisher) Close() error { return p.ch.Close() }

// RabbitConsumer accumulates deliveries into batches, hands them to the
// Consumer, and acks or nacks per message according to the batch failure
// report. Failed messages are nacked with requeue so the broker redelivers
// them; backoff and dead-lettering are broker policy, not consumer logic.
type RabbitConsumer struct {
	Conn        *amqp.Connection
	Handler     *Consumer
	Logger      *slog.Logger
	Queue       string
	BatchSize   int
	BatchWindow time.Duration
}

// Run consumes until ctx is cancelled.
func (rc *RabbitConsumer) Run(ctx context.Context) error {
	if rc.BatchSize <= 0 {
		rc.BatchSize = 10
	}
	if rc.BatchWindow <= 0 {
		rc.BatchWindow = 2 * time.Second
	}

	ch, err := rc.Conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := DeclareQueue(ch, rc.Queue); err != nil {
		return err
	}
	// Cap in-flight deliveries at one batch.
	if err := ch.Qos(rc.BatchSize, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(rc.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}

	rc.Logger.Info("queue.consumer.started", "queue", rc.Queue, "batch_size", rc.BatchSize)

	for {
		batch, ok := rc.collect(ctx, deliveries)
		if len(batch) > 0 {
			rc.dispatch(ctx, batch)
		}
		if !ok {
			rc.Logger.Info("queue.consumer.stopped", "queue", rc.Queue)
			return nil
		}
	}
}

// collect drains up to BatchSize deliveries or until BatchWindow elapses
// after the first one. The second return is false when the channel closed
// or the context was cancelled.
func (rc *RabbitConsumer) collect(ctx context.Context, deliveries <-chan amqp.Delivery) ([]amqp.Delivery, bool) {
	var batch []amqp.Delivery

	// Block for the first delivery.
	select {
	case <-ctx.Done():
		return batch, false
	case d, ok := <-deliveries:
		if !ok {
			return batch, false
		}
		batch = append(batch, d)
	}

	window := time.NewTimer(rc.BatchWindow)
	defer window.Stop()

	for len(batch) < rc.BatchSize {
		select {
		case <-ctx.Done():
			return batch, false
		case <-window.C:
			return batch, true
		case d, ok := <-deliveries:
			if !ok {
				return batch, false
			}
			batch = append(batch, d)
		}
	}
	return batch, true
}

func (rc *RabbitConsumer) dispatch(ctx context.Context, batch []amqp.Delivery) {
	msgs := make([]Message, len(batch))
	for i, d := range batch {
		msgs[i] = Message{ID: messageID(d), Body: d.Body}
	}

	failed := rc.Handler.HandleBatch(ctx, msgs)
	failedSet := make(map[string]struct{}, len(failed))
	for _, id := range failed {
		failedSet[id] = struct{}{}
	}

	// Settle every delivery by its own tag. At-least-once delivery means
	// two deliveries in one batch can share a publisher-assigned id, and a
	// delivery left unsettled holds a Qos prefetch slot forever.
	for i, d := range batch {
		id := msgs[i].ID
		if _, bad := failedSet[id]; bad {
			if err := d.Nack(false, true); err != nil {
				rc.Logger.Error("queue.consumer.nack_error", "message_id", id, "error", err)
			}
			continue
		}
		if err := d.Ack(false); err != nil {
			rc.Logger.Error("queue.consumer.ack_error", "message_id", id, "error", err)
		}
	}
}

// messageID prefers the publisher-assigned id and falls back to the broker
// delivery tag, which is unique per channel.
func messageID(d amqp.Delivery) string {
	if d.MessageId != "" {
		return d.MessageId
	}
	return strconv.FormatUint(d.DeliveryTag, 10)
}

var _ pipeline.Notifier = (*Publisher)(nil)
