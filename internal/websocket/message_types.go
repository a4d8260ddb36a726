package websocket

import (
	"github.com/google/uuid"
)

// Client -> server message types. Server -> client traffic is the delivery
// event envelope (delivery.Event) forwarded verbatim.
const (
	ClientTypeJoinChat    = "join_chat"
	ClientTypeLeaveChat   = "leave_chat"
	ClientTypeTypingStart = "chat:typing_start"
	ClientTypeTypingStop  = "chat:typing_stop"
	ClientTypeError       = "error"
)

// ClientMessage is the envelope for all client -> server socket traffic.
type ClientMessage struct {
	Type    string           `json:"type"`
	Payload ChatTopicPayload `json:"payload"`
}

// ChatTopicPayload names the chat a subscription or typing event refers to.
type ChatTopicPayload struct {
	ChatID uuid.UUID `json:"chatId"`
}

// TypingPayload is broadcast on a chat topic when a member starts or stops
// typing. Transient; never persisted.
type TypingPayload struct {
	ChatID   uuid.UUID `json:"chatId"`
	UserID   uuid.UUID `json:"userId"`
	Username string    `json:"username,omitempty"`
}

// ErrorPayload is sent to a client when its message could not be handled.
type ErrorPayload struct {
	Message string `json:"message"`
}
