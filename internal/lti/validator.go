// Package lti validates LTI 1.3 launches: it builds the OIDC initiation
// redirect, checks the form-posted launch token and ties it back to the
// persisted state and nonce.
package lti

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pilab-dev/partner-sso/domain"
	serrors "github.com/pilab-dev/partner-sso/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// Posture selects how launch token signatures are handled.
type Posture string

const (
	PostureProduction  Posture = "production"
	PostureDevelopment Posture = "development"
)

// ErrUnverifiedInProduction is returned by New when the development posture is
// requested in a production environment.
var ErrUnverifiedInProduction = errors.New("lti: unverified launch tokens are not allowed in production")

// Config is the platform registration with the Partner.
type Config struct {
	Issuer       string
	ClientID     string
	DeploymentID string
	// AuthURL is the Partner's OIDC authorization endpoint.
	AuthURL string
	JWKSURL string
	// RedirectURI is where the Partner form-posts the launch token.
	RedirectURI string
	Posture     Posture
	Environment string
	StateTTL    time.Duration
}

// InitiateRequest is a third-party initiated login.
type InitiateRequest struct {
	LoginHint     string
	MessageHint   string
	TargetLinkURI string
	ReturnTarget  string
}

// Launch is a validated launch.
type Launch struct {
	Identity *domain.ExternalIdentity
	Proof    *domain.LaunchProof
	Context  domain.LaunchContext
	// Subject is the raw sub claim, which grade passback addresses.
	Subject      string
	Nonce        string
	ReturnTarget string
	Verified     bool
}

// Validator is the Launch Validator.
type Validator struct {
	cfg      Config
	store    domain.LaunchStateStore
	verifier TokenVerifier
	oauth    *oauth2.Config
	now      func() time.Time
}

// New creates a Validator. A nil verifier is derived from the posture.
func New(ctx context.Context, cfg Config, store domain.LaunchStateStore, verifier TokenVerifier) (*Validator, error) {
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = 10 * time.Minute
	}
	if cfg.Posture == "" {
		cfg.Posture = PostureProduction
	}

	if verifier == nil {
		switch cfg.Posture {
		case PostureProduction:
			if cfg.JWKSURL == "" {
				return nil, errors.New("lti: jwks url is required in production posture")
			}
			verifier = NewRemoteKeySetVerifier(ctx, cfg.Issuer, cfg.ClientID, cfg.JWKSURL, nil)
		case PostureDevelopment:
			verifier = UnverifiedDecoder{}
		default:
			return nil, fmt.Errorf("lti: unknown posture %q", cfg.Posture)
		}
	}
	if !verifier.Verified() && strings.EqualFold(cfg.Environment, "production") {
		return nil, ErrUnverifiedInProduction
	}
	if !verifier.Verified() {
		log.Warn().Msg("lti: launch validator runs WITHOUT signature verification")
	}

	return &Validator{
		cfg:      cfg,
		store:    store,
		verifier: verifier,
		oauth: &oauth2.Config{
			ClientID:    cfg.ClientID,
			RedirectURL: cfg.RedirectURI,
			Endpoint:    oauth2.Endpoint{AuthURL: cfg.AuthURL},
			Scopes:      []string{"openid"},
		},
		now: time.Now,
	}, nil
}

// Initiate creates and persists a fresh state/nonce pair and returns the
// Partner authorization URL to redirect the browser to.
func (v *Validator) Initiate(ctx context.Context, req InitiateRequest) (string, error) {
	const op = "lti.initiate"

	if strings.TrimSpace(req.LoginHint) == "" {
		return "", serrors.Newf(serrors.KindMissingClaims, op, "login_hint is required")
	}

	state, err := randomState()
	if err != nil {
		return "", serrors.New(serrors.KindInternal, op, err)
	}
	ls := &domain.LaunchState{
		State:        state,
		Nonce:        uuid.NewString(),
		IssuedAt:     v.now(),
		ReturnTarget: req.ReturnTarget,
		LoginHint:    req.LoginHint,
	}
	if ls.ReturnTarget == "" {
		ls.ReturnTarget = req.TargetLinkURI
	}
	if err := v.store.Save(ctx, ls, v.cfg.StateTTL); err != nil {
		return "", serrors.New(serrors.KindInternal, op, fmt.Errorf("saving launch state: %w", err))
	}

	return v.AuthorizationURL(ls, req.MessageHint), nil
}

// AuthorizationURL renders the initiation redirect for ls without persisting anything.
func (v *Validator) AuthorizationURL(ls *domain.LaunchState, messageHint string) string {
	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("response_type", "id_token"),
		oauth2.SetAuthURLParam("response_mode", "form_post"),
		oauth2.SetAuthURLParam("prompt", "none"),
		oauth2.SetAuthURLParam("nonce", ls.Nonce),
		oauth2.SetAuthURLParam("login_hint", ls.LoginHint),
	}
	if v.cfg.DeploymentID != "" {
		opts = append(opts, oauth2.SetAuthURLParam("lti_deployment_id", v.cfg.DeploymentID))
	}
	if messageHint != "" {
		opts = append(opts, oauth2.SetAuthURLParam("lti_message_hint", messageHint))
	}
	return v.oauth.AuthCodeURL(ls.State, opts...)
}

// Validate decodes and checks a launch token.
func (v *Validator) Validate(ctx context.Context, launchToken string) (*Launch, error) {
	const op = "lti.validate"

	payload, err := decodePayload(launchToken)
	if err != nil {
		return nil, serrors.New(serrors.KindParseFailure, op, err)
	}

	var claims launchClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, serrors.New(serrors.KindParseFailure, op, fmt.Errorf("decoding claims: %w", err))
	}

	if err := v.verifier.Verify(ctx, launchToken); err != nil {
		if v.verifier.Verified() {
			log.Warn().Err(err).Str("iss", claims.Issuer).Msg("launch token rejected")
			return nil, serrors.New(serrors.KindSignatureInvalid, op, err)
		}
		return nil, serrors.New(serrors.KindParseFailure, op, err)
	}

	if strings.TrimSpace(claims.Subject) == "" {
		return nil, serrors.Newf(serrors.KindMissingClaims, op, "no sub claim")
	}
	if strings.TrimSpace(claims.Email) == "" && strings.TrimSpace(claims.PreferredUsername) == "" {
		return nil, serrors.Newf(serrors.KindMissingClaims, op, "neither email nor preferred_username present")
	}
	if v.cfg.DeploymentID != "" && claims.DeploymentID != v.cfg.DeploymentID {
		return nil, serrors.Newf(serrors.KindInvalidClaims, op, "unexpected deployment id %q", claims.DeploymentID)
	}
	if claims.MessageType != "" && claims.MessageType != MessageResourceLink && claims.MessageType != MessageDeepLinking {
		return nil, serrors.Newf(serrors.KindInvalidClaims, op, "unsupported message type %q", claims.MessageType)
	}
	if claims.Version != "" && !strings.HasPrefix(claims.Version, "1.3") {
		return nil, serrors.Newf(serrors.KindInvalidClaims, op, "unsupported lti version %q", claims.Version)
	}

	return &Launch{
		Identity: claims.identity(),
		Proof:    domain.NewLaunchProof(claims.Subject, claims.DeploymentID),
		Context:  claims.launchContext(),
		Subject:  claims.Subject,
		Nonce:    claims.Nonce,
		Verified: v.verifier.Verified(),
	}, nil
}

// ValidateCallback consumes the state echoed by the Partner, validates the
// launch token and checks that its nonce is the one issued for that state.
// The state is spent whatever the outcome.
func (v *Validator) ValidateCallback(ctx context.Context, launchToken, state string) (*Launch, error) {
	const op = "lti.callback"

	if state == "" {
		return nil, serrors.Newf(serrors.KindStateMismatch, op, "no state returned")
	}
	ls, err := v.store.Consume(ctx, state)
	if errors.Is(err, domain.ErrLaunchStateUnknown) {
		return nil, serrors.New(serrors.KindStateMismatch, op, err)
	}
	if err != nil {
		return nil, serrors.New(serrors.KindInternal, op, err)
	}
	if v.now().Sub(ls.IssuedAt) > v.cfg.StateTTL {
		return nil, serrors.New(serrors.KindStateMismatch, op, domain.ErrLaunchStateUnknown)
	}

	launch, err := v.Validate(ctx, launchToken)
	if err != nil {
		return nil, err
	}
	if launch.Nonce == "" || launch.Nonce != ls.Nonce {
		return nil, serrors.Newf(serrors.KindStateMismatch, op, "nonce does not match the issued one")
	}
	launch.ReturnTarget = ls.ReturnTarget
	return launch, nil
}

func decodePayload(token string) ([]byte, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("expected 3 segments, got %d", len(parts))
	}
	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}
	return payload, nil
}

func randomState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
