// Package clientstate holds the client-side chat state machine: normalized
// chats and messages, the offline send queue, typing indicators and read
// receipts. All transitions are synchronous; messages arriving from REST
// fetches, socket pushes and optimistic local sends all funnel through the
// same dedup-safe append path, so arrival order across channels does not
// matter for correctness.
package clientstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"localchat-backend/internal/delivery"
	"localchat-backend/internal/models"

	"github.com/google/uuid"
)

// MessageStatus is the client-side delivery state of a message.
type MessageStatus string

const (
	StatusPending MessageStatus = "pending"
	StatusSent    MessageStatus = "sent"
)

// Message is the client-side view of a chat message. IDs are strings because
// a pending message carries a locally generated temp-<millis> id until the
// server confirms it with a durable one.
type Message struct {
	ID        string
	ChatID    uuid.UUID
	SenderID  uuid.UUID
	Content   string
	Type      models.MessageType
	Timestamp time.Time
	Status    MessageStatus
}

// FromServer converts a server message into its client-side view.
func FromServer(m models.Message) Message {
	return Message{
		ID:        m.ID.String(),
		ChatID:    m.ChatID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		Type:      m.Type,
		Timestamp: m.Timestamp.Time(),
		Status:    StatusSent,
	}
}

// TypingUser is one entry of a chat's typing set.
type TypingUser struct {
	UserID   uuid.UUID
	Username string
	Since    time.Time
}

// Receipt is the client-side view of another member's read position.
type Receipt struct {
	MessageID string
	ReadAt    time.Time
}

// SendFunc performs the network send for a queued message and returns the
// server-confirmed message.
type SendFunc func(ctx context.Context, chatID, senderID uuid.UUID, content string, messageType models.MessageType) (*models.Message, error)

// ValidationFailure marks a send rejection that must surface to the user
// instead of being retried.
type ValidationFailure struct {
	Reason string
}

func (e *ValidationFailure) Error() string {
	return fmt.Sprintf("send rejected: %s", e.Reason)
}

// State is the reducer over the four logical maps. One mutex guards all of
// them; flushes for different chats may still run concurrently because the
// lock is only held across individual transitions, never across a network
// await.
type State struct {
	mu sync.Mutex

	chats    map[uuid.UUID]models.ChatSummary
	messages map[uuid.UUID][]Message
	queued   map[uuid.UUID][]Message
	typing   map[uuid.UUID]map[uuid.UUID]TypingUser
	receipts map[uuid.UUID]map[uuid.UUID]Receipt

	now func() time.Time
}

func New() *State {
	return &State{
		chats:    make(map[uuid.UUID]models.ChatSummary),
		messages: make(map[uuid.UUID][]Message),
		queued:   make(map[uuid.UUID][]Message),
		typing:   make(map[uuid.UUID]map[uuid.UUID]TypingUser),
		receipts: make(map[uuid.UUID]map[uuid.UUID]Receipt),
		now:      time.Now,
	}
}

// SetChats replaces the chat list with fresh summaries from the server.
func (s *State) SetChats(summaries []models.ChatSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats = make(map[uuid.UUID]models.ChatSummary, len(summaries))
	for _, summary := range summaries {
		s.chats[summary.ChatID] = summary
	}
}

// Chats returns the current chat summaries.
func (s *State) Chats() []models.ChatSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ChatSummary, 0, len(s.chats))
	for _, summary := range s.chats {
		out = append(out, summary)
	}
	return out
}

// AppendMessage adds a message to its chat's list. A no-op when a message
// with the same id is already present, regardless of which source it arrived
// from.
func (s *State) AppendMessage(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(msg)
}

func (s *State) appendLocked(msg Message) {
	for _, existing := range s.messages[msg.ChatID] {
		if existing.ID == msg.ID {
			return
		}
	}
	s.messages[msg.ChatID] = append(s.messages[msg.ChatID], msg)
}

// Messages returns a copy of a chat's message list in insertion order.
func (s *State) Messages(chatID uuid.UUID) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages[chatID]))
	copy(out, s.messages[chatID])
	return out
}

// QueuePending creates a pending message with a locally generated temp id and
// mirrors it into both the chat's queue and its message list so the UI shows
// it immediately. Returns the temp id for later reconciliation.
func (s *State) QueuePending(chatID, senderID uuid.UUID, content string, messageType models.MessageType) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	tempID := fmt.Sprintf("temp-%d", s.now().UnixMilli())
	// Millisecond timestamps collide when two messages are queued in the same
	// tick; extend until unique within the chat.
	for s.hasMessageIDLocked(chatID, tempID) {
		tempID += "x"
	}

	msg := Message{
		ID:        tempID,
		ChatID:    chatID,
		SenderID:  senderID,
		Content:   content,
		Type:      messageType,
		Timestamp: s.now(),
		Status:    StatusPending,
	}
	s.queued[chatID] = append(s.queued[chatID], msg)
	s.appendLocked(msg)
	return tempID
}

func (s *State) hasMessageIDLocked(chatID uuid.UUID, id string) bool {
	for _, m := range s.messages[chatID] {
		if m.ID == id {
			return true
		}
	}
	return false
}

// Queued returns a copy of a chat's pending queue in enqueue order.
func (s *State) Queued(chatID uuid.UUID) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.queued[chatID]))
	copy(out, s.queued[chatID])
	return out
}

// ConfirmPending replaces the temp entry with the server-confirmed message in
// place. The durable id then falls under the dedup invariant, so a later
// socket echo of the same message is a no-op.
func (s *State) ConfirmPending(chatID uuid.UUID, tempID string, confirmed models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	serverMsg := FromServer(confirmed)
	replaced := false
	for i, existing := range s.messages[chatID] {
		if existing.ID == tempID {
			s.messages[chatID][i] = serverMsg
			replaced = true
			break
		}
	}
	if !replaced {
		s.appendLocked(serverMsg)
	}

	queue := s.queued[chatID]
	for i, pending := range queue {
		if pending.ID == tempID {
			s.queued[chatID] = append(queue[:i:i], queue[i+1:]...)
			break
		}
	}
}

// dropPending removes a queued message (and its mirror in the message list)
// after a validation rejection.
func (s *State) dropPending(chatID uuid.UUID, tempID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue := s.queued[chatID]
	for i, pending := range queue {
		if pending.ID == tempID {
			s.queued[chatID] = append(queue[:i:i], queue[i+1:]...)
			break
		}
	}
	msgs := s.messages[chatID]
	for i, m := range msgs {
		if m.ID == tempID {
			s.messages[chatID] = append(msgs[:i:i], msgs[i+1:]...)
			break
		}
	}
}

// FlushQueued sends a chat's queued messages in enqueue order, one at a time.
// A retryable failure stops the flush and leaves the failed message and the
// remainder queued; a validation failure drops the offending message,
// surfaces it in the returned error, and continues with the rest. Flushes for
// different chats may run concurrently.
func (s *State) FlushQueued(ctx context.Context, chatID uuid.UUID, send SendFunc) error {
	var surfaced []error

	for {
		s.mu.Lock()
		if len(s.queued[chatID]) == 0 {
			s.mu.Unlock()
			break
		}
		pending := s.queued[chatID][0]
		s.mu.Unlock()

		confirmed, err := send(ctx, chatID, pending.SenderID, pending.Content, pending.Type)
		if err != nil {
			var vf *ValidationFailure
			if errors.As(err, &vf) {
				log.Printf("ClientState: Dropping rejected queued message %s in chat %s: %v", pending.ID, chatID, err)
				s.dropPending(chatID, pending.ID)
				surfaced = append(surfaced, err)
				continue
			}
			// Retryable: keep this message and everything behind it queued.
			if len(surfaced) > 0 {
				return fmt.Errorf("flush stopped after %d rejected message(s): %w", len(surfaced), err)
			}
			return err
		}
		s.ConfirmPending(chatID, pending.ID, *confirmed)
	}

	if len(surfaced) > 0 {
		return surfaced[0]
	}
	return nil
}

// SetTypingUser records that a user is typing in a chat. Re-adding an
// already-present user overwrites their record; the set never grows a
// duplicate entry for the same user id.
func (s *State) SetTypingUser(chatID, userID uuid.UUID, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.typing[chatID] == nil {
		s.typing[chatID] = make(map[uuid.UUID]TypingUser)
	}
	s.typing[chatID][userID] = TypingUser{UserID: userID, Username: username, Since: s.now()}
}

// RemoveTypingUser clears a user from a chat's typing set.
func (s *State) RemoveTypingUser(chatID, userID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.typing[chatID], userID)
}

// TypingUsers returns the current typing set for a chat.
func (s *State) TypingUsers(chatID uuid.UUID) []TypingUser {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TypingUser, 0, len(s.typing[chatID]))
	for _, u := range s.typing[chatID] {
		out = append(out, u)
	}
	return out
}

// ReceiptFor returns another member's read position in a chat, if known.
func (s *State) ReceiptFor(chatID, userID uuid.UUID) (Receipt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.receipts[chatID][userID]
	return r, ok
}

// ApplyEvent merges a socket push into the state. Every path is idempotent,
// so an event that duplicates an earlier REST fetch or local confirmation is
// harmless.
func (s *State) ApplyEvent(event delivery.Event) {
	switch event.Type {
	case delivery.EventNewMessage:
		var msg models.Message
		if err := json.Unmarshal(event.Payload, &msg); err != nil {
			log.Printf("ClientState: Dropping malformed %s event: %v", event.Type, err)
			return
		}
		s.AppendMessage(FromServer(msg))

	case delivery.EventListUpdate:
		var summaries []models.ChatSummary
		if err := json.Unmarshal(event.Payload, &summaries); err != nil {
			log.Printf("ClientState: Dropping malformed %s event: %v", event.Type, err)
			return
		}
		s.SetChats(summaries)

	case delivery.EventReadReceipt:
		var receipt models.ReadReceipt
		if err := json.Unmarshal(event.Payload, &receipt); err != nil {
			log.Printf("ClientState: Dropping malformed %s event: %v", event.Type, err)
			return
		}
		s.mu.Lock()
		if s.receipts[receipt.ChatID] == nil {
			s.receipts[receipt.ChatID] = make(map[uuid.UUID]Receipt)
		}
		s.receipts[receipt.ChatID][receipt.UserID] = Receipt{
			MessageID: receipt.MessageID.String(),
			ReadAt:    receipt.ReadAt,
		}
		s.mu.Unlock()

	case delivery.EventTypingStart, delivery.EventTypingStop:
		var payload struct {
			ChatID   uuid.UUID `json:"chatId"`
			UserID   uuid.UUID `json:"userId"`
			Username string    `json:"username"`
		}
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			log.Printf("ClientState: Dropping malformed %s event: %v", event.Type, err)
			return
		}
		if event.Type == delivery.EventTypingStart {
			s.SetTypingUser(payload.ChatID, payload.UserID, payload.Username)
		} else {
			s.RemoveTypingUser(payload.ChatID, payload.UserID)
		}

	case delivery.EventListUpdateTrigger:
		// A hint to re-pull the chat list; nothing to merge locally.

	default:
		log.Printf("ClientState: Ignoring unknown event type %q", event.Type)
	}
}
