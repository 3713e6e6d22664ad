package models

import (
	"context"
	"time"
)

// User is the directory record the access core consumes. Everything else
// about users lives outside this service.
type User struct {
	UserID    string    `json:"userId" db:"user_id"`
	Email     string    `json:"email" db:"email"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

type UserDirectory interface {
	GetUser(ctx context.Context, userID string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
}
