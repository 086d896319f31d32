package pssoecho

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	psso "github.com/pilab-dev/partner-sso"
	"github.com/pilab-dev/partner-sso/api"
	"github.com/pilab-dev/partner-sso/domain"
	serrors "github.com/pilab-dev/partner-sso/errors"
	"github.com/pilab-dev/partner-sso/internal/bridge"
	"github.com/pilab-dev/partner-sso/internal/lti"
	"github.com/pilab-dev/partner-sso/internal/metrics"
	"github.com/pilab-dev/partner-sso/middleware"
	"github.com/pilab-dev/partner-sso/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const successURL = "https://partner.example/login_webview/token:ABC123/user_id:42/name:Amira/type:Student"

type fakeVerifier struct{}

func (fakeVerifier) Verify(_ context.Context, c domain.BearerCredential) (*domain.VerificationResult, error) {
	if c != "ABC123" {
		return nil, serrors.Newf(serrors.KindVerificationFailed, "partner.verify", "unknown credential")
	}
	return &domain.VerificationResult{ExternalUserID: "42", Enabled: true}, nil
}

type memUsers struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func (m *memUsers) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &u, nil
}

func (m *memUsers) GetUserByExternalID(ctx context.Context, ext string) (*domain.User, error) {
	return m.GetUserByID(ctx, services.LocalUserID(ext))
}

func (m *memUsers) CreateUser(_ context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; ok {
		return domain.ErrUserAlreadyExists
	}
	m.users[u.ID] = *u
	return nil
}

func (m *memUsers) UpdateUser(_ context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = *u
	return nil
}

type memSessions struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
}

func (m *memSessions) StoreSession(_ context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.TokenID] = *s
	return nil
}

func (m *memSessions) GetSessionByTokenID(_ context.Context, id string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return &s, nil
}

func (m *memSessions) RevokeSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessions[id]
	s.IsRevoked = true
	m.sessions[id] = s
	return nil
}

type fakeLaunches struct{}

func (fakeLaunches) Initiate(_ context.Context, req lti.InitiateRequest) (string, error) {
	if req.LoginHint == "" {
		return "", serrors.Newf(serrors.KindMissingClaims, "lti.initiate", "login_hint is required")
	}
	return "https://partner.example/auth?login_hint=" + url.QueryEscape(req.LoginHint), nil
}

func (fakeLaunches) ValidateCallback(_ context.Context, token, state string) (*lti.Launch, error) {
	if state != "good-state" {
		return nil, serrors.Newf(serrors.KindStateMismatch, "lti.callback", "unknown state")
	}
	return &lti.Launch{
		Identity: &domain.ExternalIdentity{ExternalUserID: "42", DisplayName: "Amira", Role: domain.ExternalRoleStudent},
		Proof:    domain.NewLaunchProof("sub-42", "d-1"),
		Subject:  "sub-42",
		Verified: true,
		Context: domain.LaunchContext{
			MessageType:  lti.MessageResourceLink,
			DeploymentID: "d-1",
			ResourceLink: domain.ResourceLink{ID: "rl-1"},
			Grades:       &domain.GradeEndpoint{LineItem: "https://partner.example/lineitems/1"},
		},
	}, nil
}

type fakeScores struct {
	mu        sync.Mutex
	submitted []*domain.GradeSubmission
}

func (f *fakeScores) SubmitScore(_ context.Context, _ string, s *domain.GradeSubmission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, s)
	return nil
}

type apiFixture struct {
	e        http.Handler
	scores   *fakeScores
	sessions *memSessions
	keys     *psso.JWKSService
}

func newAPIFixture(t *testing.T, ping func(context.Context) error) *apiFixture {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	keys := psso.NewStaticJWKSService("k1", key)
	signer := psso.NewTokenSigner(keys)

	users := &memUsers{users: map[string]domain.User{}}
	sessions := &memSessions{sessions: map[string]domain.Session{}}
	scores := &fakeScores{}
	grades := services.NewGradeService(scores, time.Minute)

	login := services.NewPartnerLoginService(
		services.LoginServiceConfig{
			LoginURL: "https://partner.example/login",
			Bridge:   bridge.Options{Interval: 2 * time.Millisecond, MaxTicks: 5000},
		},
		fakeVerifier{},
		services.NewIdentityResolver(users),
		services.NewSessionEstablisher(users, services.NewLocalMinter(signer, sessions, "https://platform.example", time.Hour)),
		fakeLaunches{},
		grades,
	)
	t.Cleanup(func() {
		login.Stop()
		grades.Stop()
	})

	reg := prometheus.NewRegistry()
	metrics.InitCustomMetrics(reg)

	pa := NewPartnerAPI(Options{
		Login:            login,
		Grades:           grades,
		Keys:             keys,
		Auth:             middleware.NewAuthenticator(signer, sessions),
		FrameAncestors:   []string{"https://partner.example"},
		FallbackLoginURL: "https://platform.example/login",
		Gatherer:         reg,
		Ping:             ping,
	})
	return &apiFixture{e: NewEcho(pa), scores: scores, sessions: sessions, keys: keys}
}

func (f *apiFixture) do(t *testing.T, method, target string, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

var jsonHeader = map[string]string{"Content-Type": "application/json"}

func TestBridgeAttemptFlow(t *testing.T) {
	f := newAPIFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/partner/bridge/attempts", "", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var attempt api.AttemptResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &attempt))
	assert.NotEmpty(t, attempt.AttemptID)
	assert.Equal(t, "https://partner.example/login", attempt.LoginURL)
	assert.Contains(t, attempt.Features, "width=500,height=600")
	assert.EqualValues(t, 2, attempt.PollIntervalMs)

	base := "/partner/bridge/attempts/" + attempt.AttemptID

	rec = f.do(t, http.MethodPost, base+"/events", `{"type":"teleported"}`, jsonHeader)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, base+"/events", `{"type":"location","url":"`+successURL+`"}`, jsonHeader)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = f.do(t, http.MethodGet, base+"?wait=5000", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status api.AttemptStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Equal(t, services.AttemptResolved, status.Status, rec.Body.String())
	assert.True(t, status.CloseRequested)
	require.NotNil(t, status.Session)
	assert.Equal(t, services.LocalUserID("42"), status.Session.UserID)
	assert.NotEmpty(t, status.Session.Token)
}

func TestBridgeAttemptFailureIsLocalized(t *testing.T) {
	f := newAPIFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/partner/bridge/attempts", "", nil)
	var attempt api.AttemptResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &attempt))

	rec = f.do(t, http.MethodDelete, "/partner/bridge/attempts/"+attempt.AttemptID, "", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/partner/bridge/attempts/"+attempt.AttemptID+"?wait=5000", "", map[string]string{"Accept-Language": "ar"})
	var status api.AttemptStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, services.AttemptFailed, status.Status)
	require.NotNil(t, status.Error)
	assert.Equal(t, serrors.KindCancelled, status.Error.Code)
	assert.Equal(t, serrors.Message(serrors.KindCancelled, "ar"), status.Error.Description)
	assert.Equal(t, "https://platform.example/login", status.Error.FallbackLoginURL)
}

func TestBridgeAttemptNotFound(t *testing.T) {
	f := newAPIFixture(t, nil)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/partner/bridge/attempts/nope", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/partner/bridge/attempts/nope", "", nil).Code)
	assert.Equal(t, http.StatusNotFound,
		f.do(t, http.MethodPost, "/partner/bridge/attempts/nope/events", `{"type":"closed"}`, jsonHeader).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/partner/bridge/attempts/nope?wait=abc", "", nil).Code)
}

func TestLTILogin(t *testing.T) {
	f := newAPIFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/lti/login?iss=https://partner.example&login_hint=u42", "", nil)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://partner.example/auth?login_hint=u42", rec.Header().Get("Location"))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "frame-ancestors https://partner.example")

	form := url.Values{"login_hint": {"u42"}}
	rec = f.do(t, http.MethodPost, "/lti/login", form.Encode(), map[string]string{"Content-Type": "application/x-www-form-urlencoded"})
	assert.Equal(t, http.StatusFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/lti/login", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var errResp serrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, serrors.KindMissingClaims, errResp.Code)
}

func launch(t *testing.T, f *apiFixture, state string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{"id_token": {"header.payload.sig"}, "state": {state}}
	return f.do(t, http.MethodPost, "/lti/launch", form.Encode(), map[string]string{"Content-Type": "application/x-www-form-urlencoded"})
}

func TestLaunchAndScore(t *testing.T) {
	f := newAPIFixture(t, nil)

	rec := launch(t, f, "bad-state")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = launch(t, f, "good-state")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp api.LaunchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Verified)
	assert.Equal(t, "rl-1", resp.Context.ResourceLink.ID)
	require.NotNil(t, resp.Session)
	assert.Equal(t, string(domain.LocalRoleStudent), resp.Session.Role)

	score := `{"resource_link_id":"rl-1","score_given":7,"score_maximum":10}`

	rec = f.do(t, http.MethodPost, "/lti/scores", score, jsonHeader)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	auth := map[string]string{"Content-Type": "application/json", "Authorization": "Bearer " + resp.Session.Token}
	rec = f.do(t, http.MethodPost, "/lti/scores", score, auth)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var scoreResp api.ScoreResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &scoreResp))
	assert.True(t, scoreResp.Delivered)
	require.Len(t, f.scores.submitted, 1)
	assert.Equal(t, "sub-42", f.scores.submitted[0].UserID)

	// Unknown resource link: accepted, not delivered.
	rec = f.do(t, http.MethodPost, "/lti/scores", `{"resource_link_id":"rl-9","score_given":1,"score_maximum":1}`, auth)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &scoreResp))
	assert.False(t, scoreResp.Delivered)
}

func TestJWKSMetricsHealth(t *testing.T) {
	f := newAPIFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/.well-known/jwks.json", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var set psso.JSONWebKeySet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &set))
	require.Len(t, set.Keys, 1)
	assert.Equal(t, "k1", set.Keys[0].Kid)

	rec = f.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "psso_bridge_active_attempts")

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", "", nil).Code)

	down := newAPIFixture(t, func(context.Context) error { return errors.New("no primary") })
	assert.Equal(t, http.StatusServiceUnavailable, down.do(t, http.MethodGet, "/healthz", "", nil).Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(serrors.KindStateMismatch))
	assert.Equal(t, http.StatusUnauthorized, statusFor(serrors.KindSignatureInvalid))
	assert.Equal(t, http.StatusForbidden, statusFor(serrors.KindUserDisabled))
	assert.Equal(t, http.StatusBadGateway, statusFor(serrors.KindVerificationFailed))
	assert.Equal(t, http.StatusConflict, statusFor(serrors.KindPopupBlocked))
	assert.Equal(t, http.StatusInternalServerError, statusFor(serrors.KindLinkFailure))
}
