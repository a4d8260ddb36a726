package models

import (
	"time"

	"github.com/google/uuid"
)

// MemberRole is the role a user holds inside a chat.
type MemberRole string

const (
	RoleOwner  MemberRole = "owner"
	RoleMember MemberRole = "member"
)

// Chat represents a conversation between two users (direct) or many (group).
// Local groups additionally carry a geographic anchor and join radius.
type Chat struct {
	ID        uuid.UUID `json:"id" db:"id"`
	IsGroup   bool      `json:"isGroup" db:"is_group"`
	Name      string    `json:"name,omitempty" db:"name"`
	CreatedBy uuid.UUID `json:"createdBy" db:"created_by"`
	Latitude  *float64  `json:"latitude,omitempty" db:"latitude"`
	Longitude *float64  `json:"longitude,omitempty" db:"longitude"`
	RadiusKm  *float64  `json:"radiusKm,omitempty" db:"radius_km"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	LastMessage *Message `json:"lastMessage,omitempty" db:"-"`
}

// HasGeo reports whether the chat is anchored to a geographic point.
func (c *Chat) HasGeo() bool {
	return c.Latitude != nil && c.Longitude != nil && c.RadiusKm != nil
}

// ChatMember links a user to a chat with a role.
type ChatMember struct {
	ChatID    uuid.UUID  `json:"chatId" db:"chat_id"`
	UserID    uuid.UUID  `json:"userId" db:"user_id"`
	Role      MemberRole `json:"role" db:"role"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
}

// MemberInfo is a chat member joined with user display fields.
type MemberInfo struct {
	UserID     uuid.UUID  `json:"userId"`
	Username   string     `json:"username"`
	PostalCode string     `json:"postalCode,omitempty"`
	Role       MemberRole `json:"role"`
}

// ChatSummary is one row of a user's chat list: display name resolved for the
// caller, last message preview, full member list, and a coarse proximity flag
// for direct chats.
type ChatSummary struct {
	ChatID        uuid.UUID    `json:"chatId"`
	IsGroup       bool         `json:"isGroup"`
	Name          string       `json:"name"`
	LastMessage   string       `json:"lastMessage,omitempty"`
	LastMessageAt *JSONTime    `json:"lastMessageAt,omitempty"`
	Members       []MemberInfo `json:"members"`
	IsNearby      bool         `json:"isNearby"`
}

// --- DTOs for chat operations ---

// CreateChatRequest defines the payload for creating a chat.
type CreateChatRequest struct {
	UserID         uuid.UUID   `json:"user_id" binding:"required"`
	ParticipantIDs []uuid.UUID `json:"participant_ids" binding:"required"`
	IsGroup        bool        `json:"is_group"`
	GroupName      string      `json:"group_name"`
}

// JoinLocalGroupRequest defines the payload for the local-group join flow.
// Coordinates are pointers so that 0 (equator, prime meridian) survives the
// required check; only an absent field is rejected.
type JoinLocalGroupRequest struct {
	UserID    uuid.UUID `json:"userId" binding:"required"`
	Latitude  *float64  `json:"latitude" binding:"required"`
	Longitude *float64  `json:"longitude" binding:"required"`
}

// ReadReceiptRequest marks a message as read for a user.
type ReadReceiptRequest struct {
	ChatID    uuid.UUID `json:"chat_id" binding:"required"`
	UserID    uuid.UUID `json:"user_id" binding:"required"`
	MessageID uuid.UUID `json:"message_id" binding:"required"`
}
