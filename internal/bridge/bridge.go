// Package bridge exports bus envelopes onto a Watermill GoChannel so
// external collaborators consume them through ordinary Watermill
// subscriptions without touching the bus internals. Delivery stays
// in-process.
package bridge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"

	"github.com/nfrund/courier/internal/bus"
	"github.com/nfrund/courier/internal/topics"
)

// Metadata keys carried on exported Watermill messages.
const (
	metaKeyKind       = "kind"
	metaKeyEnvelopeID = "envelope_id"
	metaKeyTopic      = "topic"
)

// subscriberPrefix namespaces the bridge's registry subscriptions.
const subscriberPrefix = "bridge."

// WatermillBridge forwards envelopes from chosen bus topics into a Watermill
// publisher, one serial subscription per forwarded topic. The envelope
// travels as its canonical wire form in the message payload.
type WatermillBridge struct {
	reg     *bus.Registry
	channel *gochannel.GoChannel
	logger  *slog.Logger
	subs    []*bus.Subscription
}

// New initializes an in-memory bridge over the registry.
func New(reg *bus.Registry, logger *slog.Logger) *WatermillBridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &WatermillBridge{
		reg:     reg,
		channel: gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false)),
		logger:  logger.With("component", "bridge"),
	}
}

// Forward subscribes the bridge to the given bus topics and republishes
// every envelope on the Watermill side under the same topic name. Serial
// dispatch keeps the exported stream in per-topic order.
func (b *WatermillBridge) Forward(forwarded ...topics.Topic) error {
	for _, t := range forwarded {
		sub, err := b.reg.Subscribe(t, subscriberPrefix+t.Name(),
			bus.WithHandler(b.export(t)),
		)
		if err != nil {
			return fmt.Errorf("forwarding %s: %w", t, err)
		}
		b.subs = append(b.subs, sub)
	}
	return nil
}

func (b *WatermillBridge) export(t topics.Topic) bus.Handler {
	return func(e bus.Envelope) error {
		encoded, err := e.Encode()
		if err != nil {
			return err
		}
		msg := message.NewMessage(uuid.NewString(), encoded)
		msg.Metadata.Set(metaKeyKind, e.Kind)
		msg.Metadata.Set(metaKeyEnvelopeID, e.ID)
		msg.Metadata.Set(metaKeyTopic, t.Name())
		return b.channel.Publish(t.Name(), msg)
	}
}

// Subscribe hands out a Watermill message stream for an exported topic.
// Callers ack messages themselves, as with any Watermill subscriber.
func (b *WatermillBridge) Subscribe(ctx context.Context, t topics.Topic) (<-chan *message.Message, error) {
	return b.channel.Subscribe(ctx, t.Name())
}

// Close tears down the bridge's bus subscriptions and the Watermill channel.
func (b *WatermillBridge) Close() error {
	for _, sub := range b.subs {
		b.reg.Unsubscribe(sub.Topic(), sub.Name())
		<-sub.Done()
	}
	b.subs = nil
	return b.channel.Close()
}
