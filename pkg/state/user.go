package state

import (
	"time"

	"github.com/google/uuid"
)

// User is an identity record. RoomID is empty when the user is in no room.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	RoomID       string    `json:"room_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func NewUser(username, passwordHash string) *User {
	return &User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
}

// Profile is the public view of a user.
type Profile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	RoomID   string `json:"room_id"`
}

func (u *User) Profile() Profile {
	return Profile{ID: u.ID, Username: u.Username, RoomID: u.RoomID}
}
