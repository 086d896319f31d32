package services

import (
	"context"
	"sync"

	"github.com/pilab-dev/partner-sso/domain"
	"github.com/pilab-dev/partner-sso/internal/lti"
	"github.com/stretchr/testify/mock"
)

// --- Mock Implementations ---

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepository) GetUserByExternalID(ctx context.Context, externalUserID string) (*domain.User, error) {
	args := m.Called(ctx, externalUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepository) CreateUser(ctx context.Context, user *domain.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUserRepository) UpdateUser(ctx context.Context, user *domain.User) error {
	return m.Called(ctx, user).Error(0)
}

type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) StoreSession(ctx context.Context, session *domain.Session) error {
	return m.Called(ctx, session).Error(0)
}

func (m *MockSessionRepository) GetSessionByTokenID(ctx context.Context, tokenID string) (*domain.Session, error) {
	args := m.Called(ctx, tokenID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockSessionRepository) RevokeSession(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type MockMinter struct {
	mock.Mock
}

func (m *MockMinter) Mint(ctx context.Context, user *domain.User, source domain.LoginSource, credentialHash string) (*domain.SessionToken, error) {
	args := m.Called(ctx, user, source, credentialHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SessionToken), args.Error(1)
}

type MockCredentialVerifier struct {
	mock.Mock
}

func (m *MockCredentialVerifier) Verify(ctx context.Context, credential domain.BearerCredential) (*domain.VerificationResult, error) {
	args := m.Called(ctx, credential)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.VerificationResult), args.Error(1)
}

type MockLaunchValidator struct {
	mock.Mock
}

func (m *MockLaunchValidator) Initiate(ctx context.Context, req lti.InitiateRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockLaunchValidator) ValidateCallback(ctx context.Context, launchToken, state string) (*lti.Launch, error) {
	args := m.Called(ctx, launchToken, state)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*lti.Launch), args.Error(1)
}

type MockScoreSubmitter struct {
	mock.Mock
}

func (m *MockScoreSubmitter) SubmitScore(ctx context.Context, lineItem string, score *domain.GradeSubmission) error {
	return m.Called(ctx, lineItem, score).Error(0)
}

// memoryUsers is a concurrency-safe UserRepository for flow tests.
type memoryUsers struct {
	mu      sync.Mutex
	byID    map[string]*domain.User
	ext     map[string]string
	creates int
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{byID: map[string]*domain.User{}, ext: map[string]string{}}
}

func (m *memoryUsers) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memoryUsers) GetUserByExternalID(ctx context.Context, externalUserID string) (*domain.User, error) {
	m.mu.Lock()
	id, ok := m.ext[externalUserID]
	m.mu.Unlock()
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return m.GetUserByID(ctx, id)
}

func (m *memoryUsers) CreateUser(_ context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[user.ID]; ok {
		return domain.ErrUserAlreadyExists
	}
	if _, ok := m.ext[user.ExternalUserID]; ok {
		return domain.ErrUserAlreadyExists
	}
	cp := *user
	m.byID[user.ID] = &cp
	m.ext[user.ExternalUserID] = user.ID
	m.creates++
	return nil
}

func (m *memoryUsers) UpdateUser(_ context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[user.ID]; !ok {
		return domain.ErrUserNotFound
	}
	cp := *user
	m.byID[user.ID] = &cp
	return nil
}

func (m *memoryUsers) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}
