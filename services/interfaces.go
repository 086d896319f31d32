package services

import (
	"context"

	"github.com/pilab-dev/partner-sso/domain"
	"github.com/pilab-dev/partner-sso/internal/lti"
)

// CredentialVerifier checks a Partner bearer credential server-to-server.
type CredentialVerifier interface {
	Verify(ctx context.Context, credential domain.BearerCredential) (*domain.VerificationResult, error)
}

// LaunchValidator runs both legs of an LTI launch.
type LaunchValidator interface {
	Initiate(ctx context.Context, req lti.InitiateRequest) (string, error)
	ValidateCallback(ctx context.Context, launchToken, state string) (*lti.Launch, error)
}

// ScoreSubmitter delivers a score to a Partner line item.
type ScoreSubmitter interface {
	SubmitScore(ctx context.Context, lineItem string, score *domain.GradeSubmission) error
}

// Minter turns a resolved local user into a session token.
type Minter interface {
	Mint(ctx context.Context, user *domain.User, source domain.LoginSource, credentialHash string) (*domain.SessionToken, error)
}
