package services

import (
	"context"

	"github.com/pilab-dev/partner-sso/domain"
)

// RepositoryProvider defines an interface for accessing all repository types.
// This allows for centralized repository creation and dependency injection,
// simplifying setup and testing.
type RepositoryProvider interface {
	UserRepository(ctx context.Context) domain.UserRepository
	SessionRepository(ctx context.Context) domain.SessionRepository
}
