package domain

import "time"

// Session is a locally minted authentication session.
type Session struct {
	ID             string      `bson:"_id,omitempty"`
	UserID         string      `bson:"user_id"`
	TokenID        string      `bson:"token_id"` // JTI of the session JWT
	Source         LoginSource `bson:"source"`
	CredentialHash string      `bson:"credential_hash,omitempty"`
	ExpiresAt      time.Time   `bson:"expires_at"`
	CreatedAt      time.Time   `bson:"created_at"`
	IsRevoked      bool        `bson:"is_revoked,omitempty"`
}

// SessionToken is handed to the caller, who signs the user in with it.
type SessionToken struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}
