package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents an application user. The chat subsystem only reads
// id/name/location; the rest is owned by the account flows.
type User struct {
	ID             uuid.UUID `json:"id" db:"id"`
	Username       string    `json:"username" db:"username"`
	Email          string    `json:"email" db:"email"`
	HashedPassword string    `json:"-" db:"hashed_password"`
	PostalCode     string    `json:"postalCode" db:"postal_code"`
	Latitude       *float64  `json:"latitude,omitempty" db:"latitude"`
	Longitude      *float64  `json:"longitude,omitempty" db:"longitude"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time `json:"updatedAt" db:"updated_at"`
}

// PublicUser is the safe representation returned via APIs.
type PublicUser struct {
	ID         uuid.UUID `json:"id"`
	Username   string    `json:"username"`
	PostalCode string    `json:"postalCode,omitempty"`
}

func (u *User) ToPublicUser() *PublicUser {
	return &PublicUser{
		ID:         u.ID,
		Username:   u.Username,
		PostalCode: u.PostalCode,
	}
}

// CreateUserRequest captures registration input.
type CreateUserRequest struct {
	Username   string   `json:"username" binding:"required,min=3,max=50"`
	Email      string   `json:"email" binding:"required,email"`
	Password   string   `json:"password" binding:"required,min=6,max=72"`
	PostalCode string   `json:"postalCode" binding:"max=16"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
}

// LoginUserRequest captures login input.
type LoginUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6,max=72"`
}
