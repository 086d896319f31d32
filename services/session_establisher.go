package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	psso "github.com/pilab-dev/partner-sso"
	"github.com/pilab-dev/partner-sso/domain"
	serrors "github.com/pilab-dev/partner-sso/errors"
	"github.com/pilab-dev/partner-sso/internal/metrics"
	"github.com/pilab-dev/partner-sso/tracing"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

// SessionEstablisher is the only place sessions are minted.
type SessionEstablisher struct {
	users  domain.UserRepository
	minter Minter
}

// NewSessionEstablisher creates a SessionEstablisher.
func NewSessionEstablisher(users domain.UserRepository, minter Minter) *SessionEstablisher {
	return &SessionEstablisher{users: users, minter: minter}
}

type establishOptions struct {
	credential domain.BearerCredential
}

// EstablishOption customizes Establish.
type EstablishOption func(*establishOptions)

// WithCredential records a fingerprint of the Partner credential on the session.
func WithCredential(c domain.BearerCredential) EstablishOption {
	return func(o *establishOptions) { o.credential = c }
}

// Establish signs userID in. proof must come from a passed Partner check and
// permit the login; otherwise UserDisabled is returned and nothing is minted.
func (s *SessionEstablisher) Establish(ctx context.Context, userID string, proof domain.Proof, opts ...EstablishOption) (*domain.SessionToken, error) {
	const op = "session.establish"

	if proof == nil || !proof.Permits() {
		return nil, serrors.Newf(serrors.KindUserDisabled, op, "no permitting proof for user %s", userID)
	}

	var o establishOptions
	for _, opt := range opts {
		opt(&o)
	}

	ctx, span := tracing.Start(ctx, "SessionEstablisher.Establish",
		attribute.String("user.id", userID),
		attribute.String("login.source", string(proof.Source())),
	)
	token, err := s.establish(ctx, userID, proof.Source(), o)
	tracing.End(span, err)
	return token, err
}

func (s *SessionEstablisher) establish(ctx context.Context, userID string, source domain.LoginSource, o establishOptions) (*domain.SessionToken, error) {
	const op = "session.establish"

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, serrors.New(serrors.KindLinkFailure, op, err)
	}
	if user.Status != domain.UserStatusActive || !user.Enabled {
		return nil, serrors.Newf(serrors.KindUserDisabled, op, "local account %s is %s", user.ID, user.Status)
	}

	token, err := s.minter.Mint(ctx, user, source, psso.HashCredential(o.credential))
	if err != nil {
		return nil, serrors.New(serrors.KindInternal, op, err)
	}

	metrics.SessionsMintedTotal.WithLabelValues(string(source)).Inc()
	log.Info().Str("user_id", user.ID).Str("source", string(source)).Msg("session established")
	return token, nil
}

// LocalMinter issues RS256 session tokens with the platform key and records them.
type LocalMinter struct {
	signer   *psso.TokenSigner
	sessions domain.SessionRepository
	issuer   string
	ttl      time.Duration
}

// NewLocalMinter creates a LocalMinter. ttl defaults to 8 hours.
func NewLocalMinter(signer *psso.TokenSigner, sessions domain.SessionRepository, issuer string, ttl time.Duration) *LocalMinter {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &LocalMinter{signer: signer, sessions: sessions, issuer: issuer, ttl: ttl}
}

// SessionClaims are the claims of a locally minted session token.
type SessionClaims struct {
	jwt.RegisteredClaims
	Role   domain.LocalRole   `json:"role"`
	Source domain.LoginSource `json:"src"`
}

func (m *LocalMinter) Mint(ctx context.Context, user *domain.User, source domain.LoginSource, credentialHash string) (*domain.SessionToken, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(m.ttl)
	jti := uuid.NewString()

	signed, err := m.signer.Sign(SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        jti,
		},
		Role:   user.Role,
		Source: source,
	})
	if err != nil {
		return nil, err
	}

	if err := m.sessions.StoreSession(ctx, &domain.Session{
		UserID:         user.ID,
		TokenID:        jti,
		Source:         source,
		CredentialHash: credentialHash,
		ExpiresAt:      expiresAt,
		CreatedAt:      now,
	}); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	return &domain.SessionToken{Token: signed, UserID: user.ID, ExpiresAt: expiresAt}, nil
}

// RemoteMinter asks a trusted endpoint of the host platform for a custom token.
type RemoteMinter struct {
	url        string
	httpClient *http.Client
}

// NewRemoteMinter creates a RemoteMinter posting to url.
func NewRemoteMinter(url string, httpClient *http.Client) *RemoteMinter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &RemoteMinter{url: url, httpClient: httpClient}
}

func (m *RemoteMinter) Mint(ctx context.Context, user *domain.User, _ domain.LoginSource, _ string) (*domain.SessionToken, error) {
	body, err := json.Marshal(map[string]string{"uid": user.ID})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("minting endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading minting response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("minting endpoint returned status %d", resp.StatusCode)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding minting response: %w", err)
	}
	if out.Token == "" {
		return nil, errors.New("minting endpoint returned no token")
	}
	return &domain.SessionToken{Token: out.Token, UserID: user.ID}, nil
}

var (
	_ Minter = (*LocalMinter)(nil)
	_ Minter = (*RemoteMinter)(nil)
)
