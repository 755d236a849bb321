package players

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/okian/gameradar/internal/domain/model"
	"github.com/okian/gameradar/pkg/logger"
)

// ChangeTopic is the topic player change notifications are published on.
const ChangeTopic = "players.changed"

const defaultOutputBuffer = 1024

// NewPubSub creates the in-process pub/sub carrying change notifications.
// It is not persistent: a subscriber only sees messages published after it
// subscribed.
func NewPubSub(outputBuffer int) *gochannel.GoChannel {
	if outputBuffer <= 0 {
		outputBuffer = defaultOutputBuffer
	}
	return gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: int64(outputBuffer)},
		watermill.NewSlogLogger(logger.Slog()),
	)
}

// Publisher is a Notifier over a watermill publisher.
type Publisher struct {
	pub   message.Publisher
	topic string
}

// NewPublisher publishes on topic; an empty topic means ChangeTopic.
func NewPublisher(pub message.Publisher, topic string) *Publisher {
	if topic == "" {
		topic = ChangeTopic
	}
	return &Publisher{pub: pub, topic: topic}
}

// Notify serializes event and publishes it. The event id becomes the
// message UUID so consumers can dedupe on either.
func (p *Publisher) Notify(ctx context.Context, event model.ChangeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%w: marshal event: %w", ErrPublish, err)
	}

	msg := message.NewMessage(event.EventID, data)
	msg.SetContext(ctx)
	msg.Metadata.Set("player_id", event.PlayerID)
	msg.Metadata.Set("revision", strconv.FormatUint(event.Revision, 10))

	if err := p.pub.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("%w: %w", ErrPublish, err)
	}
	return nil
}

// DecodeChange unmarshals a change notification payload.
func DecodeChange(msg *message.Message) (model.ChangeEvent, error) {
	var event model.ChangeEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return event, fmt.Errorf("decode change notification %s: %w", msg.UUID, err)
	}
	if event.EventID == "" {
		event.EventID = msg.UUID
	}
	return event, nil
}
