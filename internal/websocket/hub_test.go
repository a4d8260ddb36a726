package websocket

import (
	"context"
	"sync"
	"testing"
	"time"

	"localchat-backend/internal/delivery"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitTimeout  = 2 * time.Second
	pollInterval = 10 * time.Millisecond
)

// fakeSession records delivered events in place of a real socket.
type fakeSession struct {
	userID uuid.UUID

	mu        sync.Mutex
	delivered []delivery.Event
}

func newFakeSession() *fakeSession {
	return &fakeSession{userID: uuid.New()}
}

func (s *fakeSession) UserID() uuid.UUID { return s.userID }

func (s *fakeSession) Deliver(event delivery.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered = append(s.delivered, event)
}

func (s *fakeSession) events() []delivery.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]delivery.Event, len(s.delivered))
	copy(out, s.delivered)
	return out
}

// chanBus implements both delivery.Bus and the hub's Subscriber over an
// in-process channel, standing in for Redis.
type chanBus struct {
	deliveries chan delivery.Delivery
}

func newChanBus() *chanBus {
	return &chanBus{deliveries: make(chan delivery.Delivery, 16)}
}

func (b *chanBus) PublishToUser(_ context.Context, userID uuid.UUID, event delivery.Event) error {
	b.deliveries <- delivery.Delivery{Topic: delivery.UserTopic(userID), Event: event}
	return nil
}

func (b *chanBus) PublishToChat(_ context.Context, chatID uuid.UUID, event delivery.Event) error {
	b.deliveries <- delivery.Delivery{Topic: delivery.ChatTopic(chatID), Event: event}
	return nil
}

func (b *chanBus) Subscribe(context.Context) (<-chan delivery.Delivery, func() error) {
	return b.deliveries, func() error { return nil }
}

func TestHub_DispatchRoutesByTopic(t *testing.T) {
	bus := newChanBus()
	hub := NewHub(bus, bus)

	alice := newFakeSession()
	bob := newFakeSession()
	hub.Register(alice)
	hub.Register(bob)

	chatID := uuid.New()
	hub.JoinChat(alice, chatID)

	// A chat event reaches only sessions that joined the chat topic.
	hub.Dispatch(delivery.Delivery{
		Topic: delivery.ChatTopic(chatID),
		Event: delivery.Event{Type: delivery.EventNewMessage},
	})
	assert.Len(t, alice.events(), 1)
	assert.Empty(t, bob.events())

	// A user event reaches only that user's sessions.
	hub.Dispatch(delivery.Delivery{
		Topic: delivery.UserTopic(bob.UserID()),
		Event: delivery.Event{Type: delivery.EventListUpdateTrigger},
	})
	assert.Len(t, alice.events(), 1)
	require.Len(t, bob.events(), 1)
	assert.Equal(t, delivery.EventListUpdateTrigger, bob.events()[0].Type)
}

func TestHub_JoinLeaveChat(t *testing.T) {
	bus := newChanBus()
	hub := NewHub(bus, bus)

	alice := newFakeSession()
	hub.Register(alice)

	chatID := uuid.New()
	topic := delivery.ChatTopic(chatID)

	hub.JoinChat(alice, chatID)
	hub.JoinChat(alice, chatID)
	assert.Equal(t, 1, hub.SubscriberCount(topic))

	hub.LeaveChat(alice, chatID)
	assert.Equal(t, 0, hub.SubscriberCount(topic))

	// Events for a left chat no longer arrive.
	hub.Dispatch(delivery.Delivery{Topic: topic, Event: delivery.Event{Type: delivery.EventNewMessage}})
	assert.Empty(t, alice.events())
}

func TestHub_UnregisterDropsAllTopics(t *testing.T) {
	bus := newChanBus()
	hub := NewHub(bus, bus)

	alice := newFakeSession()
	hub.Register(alice)

	chatA := uuid.New()
	chatB := uuid.New()
	hub.JoinChat(alice, chatA)
	hub.JoinChat(alice, chatB)

	hub.Unregister(alice)
	assert.Equal(t, 0, hub.SubscriberCount(delivery.UserTopic(alice.UserID())))
	assert.Equal(t, 0, hub.SubscriberCount(delivery.ChatTopic(chatA)))
	assert.Equal(t, 0, hub.SubscriberCount(delivery.ChatTopic(chatB)))

	hub.Dispatch(delivery.Delivery{
		Topic: delivery.UserTopic(alice.UserID()),
		Event: delivery.Event{Type: delivery.EventListUpdateTrigger},
	})
	assert.Empty(t, alice.events())
}

func TestHub_RunConsumesPublishedDeliveries(t *testing.T) {
	bus := newChanBus()
	hub := NewHub(bus, bus)

	alice := newFakeSession()
	hub.Register(alice)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	require.NoError(t, bus.PublishToUser(ctx, alice.UserID(), delivery.Event{Type: delivery.EventListUpdate}))

	// Published events flow bus -> Run -> Dispatch -> session.
	assert.Eventually(t, func() bool {
		return len(alice.events()) == 1
	}, waitTimeout, pollInterval)

	cancel()
	<-done
}

func TestHub_RelayTypingPublishesToChatTopic(t *testing.T) {
	bus := newChanBus()
	hub := NewHub(bus, bus)

	chatID := uuid.New()
	hub.RelayTyping(context.Background(), delivery.EventTypingStart, TypingPayload{
		ChatID:   chatID,
		UserID:   uuid.New(),
		Username: "alice",
	})

	select {
	case d := <-bus.deliveries:
		assert.Equal(t, delivery.ChatTopic(chatID), d.Topic)
		assert.Equal(t, delivery.EventTypingStart, d.Event.Type)
	default:
		t.Fatal("expected a typing delivery on the bus")
	}
}
