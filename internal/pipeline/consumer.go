package pipeline

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/okian/gameradar/internal/adapters/mq/queue"
	"github.com/okian/gameradar/internal/adapters/players"
	"github.com/okian/gameradar/internal/domain/dedupe"
	"github.com/okian/gameradar/pkg/logger"
	"github.com/okian/gameradar/pkg/metrics"
)

// Enqueuer is the write side of the recomputation queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, e queue.Event) error
}

// Consumer moves change notifications from the pub/sub topic onto the
// recomputation queue. Every message is acked once it has been handed off,
// dropped as a duplicate, or rejected; nothing is redelivered.
type Consumer struct {
	sub     message.Subscriber
	topic   string
	deduper dedupe.Deduper
	queue   Enqueuer
	ready   chan struct{}
	logger  logger.Logger
}

// NewConsumer creates a consumer for topic; an empty topic means
// players.ChangeTopic.
func NewConsumer(sub message.Subscriber, topic string, deduper dedupe.Deduper, q Enqueuer) *Consumer {
	if topic == "" {
		topic = players.ChangeTopic
	}
	return &Consumer{
		sub:     sub,
		topic:   topic,
		deduper: deduper,
		queue:   q,
		ready:   make(chan struct{}),
		logger:  logger.Get().Named("consumer"),
	}
}

// Ready is closed once the consumer has subscribed. The pub/sub drops
// messages published before that, so ingestion waits on it.
func (c *Consumer) Ready() <-chan struct{} { return c.ready }

// Serve subscribes and handles messages until ctx is done.
func (c *Consumer) Serve(ctx context.Context) error {
	messages, err := c.sub.Subscribe(ctx, c.topic)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", c.topic, err)
	}
	select {
	case <-c.ready:
	default:
		close(c.ready)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return ctx.Err()
			}
			c.handle(ctx, msg)
			msg.Ack()
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg *message.Message) {
	event, err := players.DecodeChange(msg)
	if err != nil {
		metrics.RecordNotification("malformed")
		c.logger.Warn(ctx, "dropping malformed change notification", logger.Error(err))
		return
	}

	if c.deduper.SeenAndRecord(ctx, event.EventID) {
		metrics.RecordNotification("duplicate")
		return
	}

	if err := c.queue.Enqueue(ctx, event); err != nil {
		// Forget the id so a redelivery can still be processed.
		c.deduper.Unrecord(ctx, event.EventID)
		metrics.RecordNotification("dropped")
		c.logger.Warn(ctx, "recomputation queue rejected change",
			logger.String("player_id", event.PlayerID),
			logger.String("event_id", event.EventID),
			logger.Error(err),
		)
		return
	}
	metrics.RecordNotification("enqueued")
}

// String names the consumer for supervisor logs.
func (c *Consumer) String() string { return "change-consumer" }
