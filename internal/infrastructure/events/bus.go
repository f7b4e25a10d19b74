// Package events implements the event bus on watermill's gochannel Pub/Sub:
// events serialize to JSON with their type inside the payload and fan out to
// registered handlers on a single dispatch routine.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	log "github.com/sirupsen/logrus"

	"github.com/quantummint/qmintd/internal/core/domain"
	"github.com/quantummint/qmintd/internal/core/ports"
)

const eventsTopic = "protocol_events"

type Bus struct {
	pubsub *gochannel.GoChannel

	handlersLock sync.RWMutex
	handlers     []func(domain.Event)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBus builds and starts the bus. The subscription is live before New
// returns, so no published event is ever dropped.
func NewBus(buffer int, logger watermill.LoggerAdapter) (ports.EventBus, error) {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	// Blocking publishes make Publish return only after every handler ran,
	// so callers observe events in publish order.
	pubsub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            int64(buffer),
			BlockPublishUntilSubscriberAck: true,
		},
		logger,
	)
	messages, err := pubsub.Subscribe(ctx, eventsTopic)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe %s: %w", eventsTopic, err)
	}

	bus := &Bus{pubsub: pubsub, cancel: cancel}
	bus.wg.Add(1)
	go bus.dispatch(messages)
	return bus, nil
}

func (b *Bus) Publish(_ context.Context, events ...domain.Event) error {
	messages := make([]*message.Message, 0, len(events))
	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal %s event: %w", event.GetType(), err)
		}
		messages = append(messages, message.NewMessage(watermill.NewUUID(), payload))
	}
	return b.pubsub.Publish(eventsTopic, messages...)
}

func (b *Bus) RegisterHandler(handler func(domain.Event)) {
	b.handlersLock.Lock()
	defer b.handlersLock.Unlock()
	b.handlers = append(b.handlers, handler)
}

func (b *Bus) Close() error {
	b.cancel()
	err := b.pubsub.Close()
	b.wg.Wait()
	return err
}

func (b *Bus) dispatch(messages <-chan *message.Message) {
	defer b.wg.Done()
	for msg := range messages {
		event, err := deserializeEvent(msg.Payload)
		if err != nil {
			log.WithError(err).Warnf("failed to deserialize event: %s", string(msg.Payload))
			msg.Ack()
			continue
		}

		b.handlersLock.RLock()
		handlers := make([]func(domain.Event), len(b.handlers))
		copy(handlers, b.handlers)
		b.handlersLock.RUnlock()

		for _, handler := range handlers {
			handler(event)
		}
		msg.Ack()
	}
}

func deserializeEvent(buf []byte) (domain.Event, error) {
	var eventType struct {
		Type domain.EventType
	}

	if err := json.Unmarshal(buf, &eventType); err != nil {
		return nil, err
	}

	switch eventType.Type {
	case domain.EventTypeTokenMinted:
		var event = domain.TokenMinted{}
		if err := json.Unmarshal(buf, &event); err == nil {
			return event, nil
		}
	case domain.EventTypeTokenDistributed:
		var event = domain.TokenDistributed{}
		if err := json.Unmarshal(buf, &event); err == nil {
			return event, nil
		}
	case domain.EventTypeTokenReceived:
		var event = domain.TokenReceived{}
		if err := json.Unmarshal(buf, &event); err == nil {
			return event, nil
		}
	case domain.EventTypeRedemptionRequested:
		var event = domain.RedemptionRequested{}
		if err := json.Unmarshal(buf, &event); err == nil {
			return event, nil
		}
	case domain.EventTypeRedemptionVerified:
		var event = domain.RedemptionVerified{}
		if err := json.Unmarshal(buf, &event); err == nil {
			return event, nil
		}
	case domain.EventTypeRedemptionAborted:
		var event = domain.RedemptionAborted{}
		if err := json.Unmarshal(buf, &event); err == nil {
			return event, nil
		}
	case domain.EventTypeTokenDisposed:
		var event = domain.TokenDisposed{}
		if err := json.Unmarshal(buf, &event); err == nil {
			return event, nil
		}
	case domain.EventTypeUnitIntercepted:
		var event = domain.UnitIntercepted{}
		if err := json.Unmarshal(buf, &event); err == nil {
			return event, nil
		}
	}

	return nil, fmt.Errorf("unknown event type %q", eventType.Type)
}
