package services

import (
	"context"
	"errors"
	"time"

	psso "github.com/pilab-dev/partner-sso"
)

// DefaultServiceProvider implements the ServiceProvider interface.
type DefaultServiceProvider struct {
	repoProvider RepositoryProvider
	keys         *psso.JWKSService
	verifier     CredentialVerifier
	launches     LaunchValidator
	scores       ScoreSubmitter
	minter       Minter

	issuer         string
	sessionTTL     time.Duration
	gradeTargetTTL time.Duration
	loginConfig    LoginServiceConfig

	// Cached services to ensure singletons
	tokenSigner        *psso.TokenSigner
	identityResolver   *IdentityResolver
	sessionEstablisher *SessionEstablisher
	gradeService       *GradeService
	loginService       *PartnerLoginService
}

// DefaultServiceProviderOptions holds all necessary dependencies to create a DefaultServiceProvider.
type DefaultServiceProviderOptions struct {
	RepositoryProvider RepositoryProvider
	Keys               *psso.JWKSService
	Verifier           CredentialVerifier
	// Launches is optional; without it the launch flow is disabled.
	Launches LaunchValidator
	// Scores is optional; without it grade passback is disabled.
	Scores ScoreSubmitter
	// Minter defaults to a LocalMinter on Keys and the session repository.
	Minter Minter

	Issuer         string
	SessionTTL     time.Duration
	GradeTargetTTL time.Duration
	Login          LoginServiceConfig
}

// NewDefaultServiceProvider creates a new instance of DefaultServiceProvider.
func NewDefaultServiceProvider(opts DefaultServiceProviderOptions) (*DefaultServiceProvider, error) {
	if opts.RepositoryProvider == nil {
		return nil, errors.New("RepositoryProvider is required in DefaultServiceProviderOptions")
	}
	if opts.Verifier == nil {
		return nil, errors.New("Verifier is required in DefaultServiceProviderOptions")
	}
	if opts.Keys == nil && opts.Minter == nil {
		return nil, errors.New("either Keys or Minter is required in DefaultServiceProviderOptions")
	}

	return &DefaultServiceProvider{
		repoProvider:   opts.RepositoryProvider,
		keys:           opts.Keys,
		verifier:       opts.Verifier,
		launches:       opts.Launches,
		scores:         opts.Scores,
		minter:         opts.Minter,
		issuer:         opts.Issuer,
		sessionTTL:     opts.SessionTTL,
		gradeTargetTTL: opts.GradeTargetTTL,
		loginConfig:    opts.Login,
	}, nil
}

// Context used for repository getters. For singleton services, this is typically context.Background().
var initCtx = context.Background()

func (p *DefaultServiceProvider) JWKSService() *psso.JWKSService {
	return p.keys
}

func (p *DefaultServiceProvider) TokenSigner() *psso.TokenSigner {
	if p.tokenSigner == nil && p.keys != nil {
		p.tokenSigner = psso.NewTokenSigner(p.keys)
	}
	return p.tokenSigner
}

func (p *DefaultServiceProvider) IdentityResolver() *IdentityResolver {
	if p.identityResolver == nil {
		p.identityResolver = NewIdentityResolver(p.repoProvider.UserRepository(initCtx))
	}
	return p.identityResolver
}

func (p *DefaultServiceProvider) SessionEstablisher() *SessionEstablisher {
	if p.sessionEstablisher == nil {
		minter := p.minter
		if minter == nil {
			minter = NewLocalMinter(p.TokenSigner(), p.repoProvider.SessionRepository(initCtx), p.issuer, p.sessionTTL)
		}
		p.sessionEstablisher = NewSessionEstablisher(p.repoProvider.UserRepository(initCtx), minter)
	}
	return p.sessionEstablisher
}

func (p *DefaultServiceProvider) GradeService() *GradeService {
	if p.gradeService == nil && p.scores != nil {
		p.gradeService = NewGradeService(p.scores, p.gradeTargetTTL)
	}
	return p.gradeService
}

func (p *DefaultServiceProvider) LoginService() *PartnerLoginService {
	if p.loginService == nil {
		p.loginService = NewPartnerLoginService(
			p.loginConfig,
			p.verifier,
			p.IdentityResolver(),
			p.SessionEstablisher(),
			p.launches,
			p.GradeService(),
		)
	}
	return p.loginService
}

func (p *DefaultServiceProvider) Stop() {
	if p.loginService != nil {
		p.loginService.Stop()
	}
	if p.gradeService != nil {
		p.gradeService.Stop()
	}
}

var _ ServiceProvider = (*DefaultServiceProvider)(nil)
