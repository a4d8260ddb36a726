package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Event types pushed to clients.
const (
	EventNewMessage        = "chat:new_message"
	EventListUpdate        = "chat:list_update"
	EventReadReceipt       = "chat:read_receipt"
	EventListUpdateTrigger = "chat:list_update:trigger"
	EventTypingStart       = "chat:typing_start"
	EventTypingStop        = "chat:typing_stop"
)

// Event is the tagged envelope carried on every topic.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEvent marshals payload into an Event envelope.
func NewEvent(eventType string, payload interface{}) (Event, error) {
	if payload == nil {
		return Event{Type: eventType}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return Event{Type: eventType, Payload: raw}, nil
}

// UserTopic is the per-user topic carrying list-refresh hints and new-chat
// notifications. A connection subscribes to exactly one for its lifetime.
func UserTopic(userID uuid.UUID) string {
	return "user:" + userID.String()
}

// ChatTopic is the per-chat topic carrying new messages and read receipts.
func ChatTopic(chatID uuid.UUID) string {
	return "chat:" + chatID.String()
}

// Delivery pairs a topic with the event published to it.
type Delivery struct {
	Topic string
	Event Event
}

// Bus publishes chat mutation events to per-user and per-chat topics. Pure
// fan-out: no persistence, at-most-once, best-effort. A disconnected client
// misses live pushes and reconciles on its next pull.
type Bus interface {
	PublishToUser(ctx context.Context, userID uuid.UUID, event Event) error
	PublishToChat(ctx context.Context, chatID uuid.UUID, event Event) error
}

// RedisBus implements Bus over Redis Pub/Sub so fan-out reaches sockets held
// by any server process.
type RedisBus struct {
	rdb *redis.Client
}

func NewRedisBus(rdb *redis.Client) *RedisBus {
	return &RedisBus{rdb: rdb}
}

func (b *RedisBus) PublishToUser(ctx context.Context, userID uuid.UUID, event Event) error {
	return b.publish(ctx, UserTopic(userID), event)
}

func (b *RedisBus) PublishToChat(ctx context.Context, chatID uuid.UUID, event Event) error {
	return b.publish(ctx, ChatTopic(chatID), event)
}

func (b *RedisBus) publish(ctx context.Context, topic string, event Event) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event for topic %s: %w", topic, err)
	}
	if err := b.rdb.Publish(ctx, topic, raw).Err(); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
	}
	return nil
}

// Subscribe opens a pattern subscription over all user and chat topics and
// returns a channel of deliveries. Cancel ctx to stop; the returned close
// function tears down the subscription.
func (b *RedisBus) Subscribe(ctx context.Context) (<-chan Delivery, func() error) {
	pubsub := b.rdb.PSubscribe(ctx, "user:*", "chat:*")
	out := make(chan Delivery, 64)

	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Printf("DeliveryBus: Dropping malformed event on topic %s: %v", msg.Channel, err)
				continue
			}
			select {
			case out <- Delivery{Topic: msg.Channel, Event: event}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, pubsub.Close
}
