package websocket

import (
	"context"
	"log"
	"sync"

	"localchat-backend/internal/delivery"

	"github.com/google/uuid"
)

// Session is one connected socket. *Client implements it; tests substitute
// fakes.
type Session interface {
	UserID() uuid.UUID
	Deliver(event delivery.Event)
}

// Subscriber hands the hub a stream of published deliveries. Implemented by
// delivery.RedisBus.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan delivery.Delivery, func() error)
}

// Hub tracks which sessions are subscribed to which topics and fans published
// events out to them. A session holds exactly one user topic for its lifetime
// and zero or more chat topics while chat screens are open. Delivery is
// at-most-once, best-effort: nothing is buffered for disconnected clients.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[Session]bool
	// Reverse index for teardown on unregister.
	sessions map[Session]map[string]bool

	bus delivery.Bus
	sub Subscriber
}

// NewHub returns a Hub publishing through bus and consuming from sub.
func NewHub(bus delivery.Bus, sub Subscriber) *Hub {
	return &Hub{
		topics:   make(map[string]map[Session]bool),
		sessions: make(map[Session]map[string]bool),
		bus:      bus,
		sub:      sub,
	}
}

// Run consumes the delivery stream until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	log.Println("WebSocket Hub: Starting delivery consumer...")
	deliveries, closeSub := h.sub.Subscribe(ctx)
	defer func() {
		if err := closeSub(); err != nil {
			log.Printf("WebSocket Hub: Error closing subscription: %v", err)
		}
	}()

	for {
		select {
		case d, ok := <-deliveries:
			if !ok {
				log.Println("WebSocket Hub: Delivery stream closed.")
				return
			}
			h.Dispatch(d)
		case <-ctx.Done():
			return
		}
	}
}

// Register subscribes a session to its user topic.
func (h *Hub) Register(s Session) {
	h.subscribe(s, delivery.UserTopic(s.UserID()))
	log.Printf("WebSocket Hub: Session registered for user %s", s.UserID())
}

// Unregister drops a session from every topic it holds.
func (h *Hub) Unregister(s Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for topic := range h.sessions[s] {
		delete(h.topics[topic], s)
		if len(h.topics[topic]) == 0 {
			delete(h.topics, topic)
		}
	}
	delete(h.sessions, s)
	log.Printf("WebSocket Hub: Session unregistered for user %s", s.UserID())
}

// JoinChat subscribes a session to a chat topic. Opening the same chat twice
// is a no-op.
func (h *Hub) JoinChat(s Session, chatID uuid.UUID) {
	h.subscribe(s, delivery.ChatTopic(chatID))
}

// LeaveChat drops a session's chat topic subscription.
func (h *Hub) LeaveChat(s Session, chatID uuid.UUID) {
	topic := delivery.ChatTopic(chatID)
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.topics[topic], s)
	if len(h.topics[topic]) == 0 {
		delete(h.topics, topic)
	}
	delete(h.sessions[s], topic)
}

func (h *Hub) subscribe(s Session, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[Session]bool)
	}
	h.topics[topic][s] = true
	if h.sessions[s] == nil {
		h.sessions[s] = make(map[string]bool)
	}
	h.sessions[s][topic] = true
}

// Dispatch fans a delivery out to every session subscribed to its topic.
func (h *Hub) Dispatch(d delivery.Delivery) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.topics[d.Topic] {
		s.Deliver(d.Event)
	}
}

// SubscriberCount reports how many sessions hold the given topic.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// RelayTyping publishes a typing start/stop event to the chat topic. Typing
// state is transient and goes through the bus so sockets on other server
// processes see it too.
func (h *Hub) RelayTyping(ctx context.Context, eventType string, payload TypingPayload) {
	event, err := delivery.NewEvent(eventType, payload)
	if err != nil {
		log.Printf("WebSocket Hub: Failed to build typing event: %v", err)
		return
	}
	if err := h.bus.PublishToChat(ctx, payload.ChatID, event); err != nil {
		log.Printf("WebSocket Hub: Failed to relay typing event for chat %s: %v", payload.ChatID, err)
	}
}
