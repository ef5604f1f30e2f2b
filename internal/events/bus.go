package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/mroshb/rallypoint/pkg/logger"
)

const metaKeyType = "event_type"

// Bus is an in-process publisher/subscriber for movement events.
type Bus struct {
	pub message.Publisher
	sub message.Subscriber
}

func NewBus() *Bus {
	ch := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 256},
		watermill.NewStdLogger(false, false),
	)
	return &Bus{pub: ch, sub: ch}
}

func (b *Bus) Publish(ctx context.Context, ev MovementEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Type, err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(metaKeyType, string(ev.Type))
	msg.SetContext(ctx)
	return b.pub.Publish(Topic, msg)
}

// Handler processes one decoded event. Errors are logged; the event is not redelivered.
type Handler func(ctx context.Context, ev MovementEvent) error

// Subscribe runs handler for every event until ctx is cancelled or the bus closes.
// It returns as soon as the subscription is active.
func (b *Bus) Subscribe(ctx context.Context, handler Handler) error {
	messages, err := b.sub.Subscribe(ctx, Topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			ev, err := Decode(msg)
			if err != nil {
				logger.Error("Dropping undecodable event", "msg_id", msg.UUID, "error", err)
				msg.Ack()
				continue
			}
			if err := handler(ctx, ev); err != nil {
				logger.Error("Failed to handle event", "type", ev.Type, "movement_id", ev.MovementID, "error", err)
			}
			msg.Ack()
		}
		logger.Debug("Event subscription ended", "topic", Topic)
	}()
	return nil
}

func Decode(msg *message.Message) (MovementEvent, error) {
	var ev MovementEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return ev, fmt.Errorf("decode event %s: %w", msg.UUID, err)
	}
	return ev, nil
}

func (b *Bus) Close() error {
	return b.pub.Close()
}
