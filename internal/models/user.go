package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Password string    `json:"-"`

	// Money is the wallet balance in whole chips. It never goes negative.
	Money  int64 `json:"money"`
	Wins   int   `json:"wins"`
	Losses int   `json:"losses"`

	CreatedAt time.Time `json:"created_at"`
}

// UserProfile is the public view of a user returned by /api/user/profile.
type UserProfile struct {
	Username string `json:"username"`
	Money    int64  `json:"money"`
	Wins     int    `json:"wins"`
	Losses   int    `json:"losses"`
}

// Profile strips credentials and ids from the user.
func (u *User) Profile() UserProfile {
	return UserProfile{
		Username: u.Username,
		Money:    u.Money,
		Wins:     u.Wins,
		Losses:   u.Losses,
	}
}
