package mongodb

import (
	"context"
	"fmt"

	"github.com/pilab-dev/partner-sso/domain"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// Repositories bundles the MongoDB-backed stores the services need.
type Repositories struct {
	Users    *UserRepository
	Sessions *SessionRepositoryMongo
}

// NewRepositories creates every repository on db, ensuring indexes once.
func NewRepositories(ctx context.Context, db *mongo.Database) (*Repositories, error) {
	users, err := NewUserRepository(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("user repository: %w", err)
	}
	sessions, err := NewSessionRepositoryMongo(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("session repository: %w", err)
	}
	return &Repositories{Users: users, Sessions: sessions}, nil
}

func (r *Repositories) UserRepository(context.Context) domain.UserRepository {
	return r.Users
}

func (r *Repositories) SessionRepository(context.Context) domain.SessionRepository {
	return r.Sessions
}
