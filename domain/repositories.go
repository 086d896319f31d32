package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrSessionNotFound    = errors.New("session not found")
	ErrLaunchStateUnknown = errors.New("launch state not found or expired")
)

// UserRepository stores local user records. ExternalUserID is unique.
type UserRepository interface {
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByExternalID(ctx context.Context, externalUserID string) (*User, error)
	// CreateUser returns ErrUserAlreadyExists when the id or external id is taken.
	CreateUser(ctx context.Context, user *User) error
	UpdateUser(ctx context.Context, user *User) error
}

// SessionRepository stores minted sessions.
type SessionRepository interface {
	StoreSession(ctx context.Context, session *Session) error
	GetSessionByTokenID(ctx context.Context, tokenID string) (*Session, error)
	RevokeSession(ctx context.Context, id string) error
}

// LaunchStateStore keeps LaunchState between initiation and callback.
type LaunchStateStore interface {
	Save(ctx context.Context, state *LaunchState, ttl time.Duration) error
	// Consume returns and deletes the state. A second call for the same state
	// returns ErrLaunchStateUnknown.
	Consume(ctx context.Context, state string) (*LaunchState, error)
}
