package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MessageType tags the shape of a message's content.
type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeLocation MessageType = "location"
	MessageTypeQuiz     MessageType = "quiz"
)

// Message represents a chat message persisted to storage. Messages are
// immutable once created; there is no edit or delete.
type Message struct {
	ID        uuid.UUID   `json:"id" db:"id"`
	ChatID    uuid.UUID   `json:"chatId" db:"chat_id"`
	SenderID  uuid.UUID   `json:"senderId" db:"sender_id"`
	Content   string      `json:"content" db:"content"`
	Type      MessageType `json:"messageType" db:"message_type"`
	Timestamp JSONTime    `json:"timestamp" db:"created_at"`

	Sender *PublicUser `json:"sender,omitempty" db:"-"`
}

// CreateMessageRequest captures the send-message payload. Content is raw JSON
// so location messages can carry a structured payload while text stays a plain
// string.
type CreateMessageRequest struct {
	SenderID    uuid.UUID       `json:"sender_id" binding:"required"`
	Content     json.RawMessage `json:"message" binding:"required"`
	MessageType MessageType     `json:"message_type"`
}

// --- Content variants ---
//
// Message content is stored as text regardless of message_type; parsing and
// formatting live here per variant so nothing else branches on content shape.

// LocationPayload is the structured content of a location message.
type LocationPayload struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Encode renders the canonical textual form persisted for location messages.
func (p LocationPayload) Encode() string {
	return fmt.Sprintf("{latitude:%v,longitude:%v}",
		strconv.FormatFloat(p.Latitude, 'f', -1, 64),
		strconv.FormatFloat(p.Longitude, 'f', -1, 64))
}

// ParseLocationContent accepts either a JSON object with numeric
// latitude/longitude or the canonical encoded form.
func ParseLocationContent(content string) (*LocationPayload, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, fmt.Errorf("location content is empty")
	}

	var payload LocationPayload
	if err := json.Unmarshal([]byte(trimmed), &payload); err == nil {
		if !strings.Contains(trimmed, "latitude") && !strings.Contains(trimmed, "longitude") {
			return nil, fmt.Errorf("location content missing latitude/longitude")
		}
		return &payload, nil
	}

	// Canonical form: {latitude:<v>,longitude:<v>}
	inner := strings.TrimSuffix(strings.TrimPrefix(trimmed, "{"), "}")
	for _, part := range strings.Split(inner, ",") {
		kv := strings.SplitN(part, ":", 2)
		if len(kv) != 2 {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(kv[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("location content has non-numeric %s", strings.TrimSpace(kv[0]))
		}
		switch strings.TrimSpace(kv[0]) {
		case "latitude":
			payload.Latitude = v
		case "longitude":
			payload.Longitude = v
		}
	}
	if !strings.Contains(inner, "latitude") || !strings.Contains(inner, "longitude") {
		return nil, fmt.Errorf("location content missing latitude/longitude")
	}
	return &payload, nil
}

const quizMarker = "::quiz::"

// EncodeQuizContent wraps a quiz payload in its storage marker.
func EncodeQuizContent(payload string) string {
	return quizMarker + payload
}

// ParseQuizContent strips the quiz marker and returns the raw payload.
func ParseQuizContent(content string) (string, error) {
	if !strings.HasPrefix(content, quizMarker) {
		return "", fmt.Errorf("quiz content missing %q marker", quizMarker)
	}
	return strings.TrimPrefix(content, quizMarker), nil
}

// ReadReceipt is the per-user marker of the last message viewed in a chat.
// Upsert semantics on (chat_id, user_id); the server does not enforce that a
// new receipt advances the read position.
type ReadReceipt struct {
	ChatID    uuid.UUID `json:"chatId" db:"chat_id"`
	UserID    uuid.UUID `json:"userId" db:"user_id"`
	MessageID uuid.UUID `json:"messageId" db:"message_id"`
	ReadAt    time.Time `json:"readAt" db:"read_at"`
}

// Alert is a lightweight notification record written when a user is added to
// a new chat or joins a local group.
type Alert struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"userId" db:"user_id"`
	ChatID    uuid.UUID `json:"chatId" db:"chat_id"`
	Body      string    `json:"body" db:"body"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
