package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"github.com/pilab-dev/partner-sso/domain"
	serrors "github.com/pilab-dev/partner-sso/errors"
	"github.com/pilab-dev/partner-sso/internal/audit"
	"github.com/pilab-dev/partner-sso/internal/bridge"
	"github.com/pilab-dev/partner-sso/internal/lti"
	"github.com/pilab-dev/partner-sso/internal/metrics"
	"github.com/pilab-dev/partner-sso/tracing"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

// ErrAttemptNotFound is returned for unknown or expired relay attempts.
var ErrAttemptNotFound = errors.New("login attempt not found or expired")

// Attempt status values.
const (
	AttemptPending  = "pending"
	AttemptResolved = "resolved"
	AttemptFailed   = "failed"
)

// LoginServiceConfig configures PartnerLoginService.
type LoginServiceConfig struct {
	// LoginURL is the Partner page the popup opens.
	LoginURL string
	Bridge   bridge.Options
	// AttemptTTL bounds how long a relay attempt and its outcome are kept.
	AttemptTTL time.Duration
}

// LoginResult is a successful interactive login.
type LoginResult struct {
	AttemptID string
	User      *domain.User
	Session   *domain.SessionToken
}

// LaunchResult is a successful launch.
type LaunchResult struct {
	User    *domain.User
	Session *domain.SessionToken
	Launch  *lti.Launch
}

// AttemptInfo is what a browser needs to open the popup for a relay attempt.
type AttemptInfo struct {
	ID             string
	LoginURL       string
	Features       bridge.Features
	WatcherScript  string
	PollInterval   time.Duration
	AllowedOrigins []string
}

// AttemptStatus is the browser-facing state of a relay attempt.
type AttemptStatus struct {
	Status         string
	CloseRequested bool
	Result         *LoginResult
	Err            error
}

type attempt struct {
	id     string
	relay  *bridge.Relay
	cancel context.CancelFunc
	done   chan struct{}

	// Set before done is closed.
	result *LoginResult
	err    error
}

// PartnerLoginService orchestrates both trust bridges:
// popup → verify → resolve → establish, and launch → resolve → establish.
type PartnerLoginService struct {
	cfg         LoginServiceConfig
	verifier    CredentialVerifier
	resolver    *IdentityResolver
	establisher *SessionEstablisher
	launches    LaunchValidator
	grades      *GradeService

	attempts *ttlcache.Cache[string, *attempt]
	baseCtx  context.Context
	stop     context.CancelFunc
	wg       sync.WaitGroup
}

// NewPartnerLoginService wires the login flows. launches and grades may be nil
// when the launch flow is not configured.
func NewPartnerLoginService(
	cfg LoginServiceConfig,
	verifier CredentialVerifier,
	resolver *IdentityResolver,
	establisher *SessionEstablisher,
	launches LaunchValidator,
	grades *GradeService,
) *PartnerLoginService {
	cfg.Bridge = cfg.Bridge.WithDefaults()
	if cfg.AttemptTTL <= 0 {
		cfg.AttemptTTL = time.Duration(cfg.Bridge.MaxTicks)*cfg.Bridge.Interval + 2*time.Minute
	}

	attempts := ttlcache.New(
		ttlcache.WithTTL[string, *attempt](cfg.AttemptTTL),
		ttlcache.WithDisableTouchOnHit[string, *attempt](),
	)
	attempts.OnEviction(func(_ context.Context, _ ttlcache.EvictionReason, item *ttlcache.Item[string, *attempt]) {
		item.Value().cancel()
	})
	go attempts.Start()

	baseCtx, stop := context.WithCancel(context.Background())
	return &PartnerLoginService{
		cfg:         cfg,
		verifier:    verifier,
		resolver:    resolver,
		establisher: establisher,
		launches:    launches,
		grades:      grades,
		attempts:    attempts,
		baseCtx:     baseCtx,
		stop:        stop,
	}
}

// Stop cancels in-flight attempts and stops the attempt cache.
func (s *PartnerLoginService) Stop() {
	s.stop()
	s.wg.Wait()
	s.attempts.Stop()
}

// Login runs a complete interactive login through host, blocking until it
// resolves or fails.
func (s *PartnerLoginService) Login(ctx context.Context, host bridge.Host) (*LoginResult, error) {
	res, err := bridge.New(host, s.cfg.Bridge).Start(ctx, s.cfg.LoginURL)
	if err != nil {
		s.observe(ctx, metrics.FlowBridge, "", err)
		return nil, err
	}
	return s.CompleteBridgeLogin(ctx, res)
}

// CompleteBridgeLogin verifies the credential extracted by the bridge, links
// the identity and establishes the session.
func (s *PartnerLoginService) CompleteBridgeLogin(ctx context.Context, res *bridge.Result) (*LoginResult, error) {
	ctx, span := tracing.Start(ctx, "PartnerLoginService.CompleteBridgeLogin",
		attribute.String("bridge.attempt", res.AttemptID),
	)
	out, err := s.completeBridgeLogin(ctx, res)
	tracing.End(span, err)

	target := ""
	if res.Identity != nil {
		target = res.Identity.ExternalUserID
	}
	s.observe(ctx, metrics.FlowBridge, target, err)
	if err == nil {
		audit.Record(ctx, audit.Event{Action: audit.ActionBridgeLogin, UserID: out.User.ID, PartnerUserID: target})
	}
	return out, err
}

func (s *PartnerLoginService) completeBridgeLogin(ctx context.Context, res *bridge.Result) (*LoginResult, error) {
	verification, err := s.verifier.Verify(ctx, res.Credential)
	if err != nil {
		return nil, err
	}
	if verification.ExternalUserID != res.Identity.ExternalUserID {
		return nil, serrors.Newf(serrors.KindVerificationFailed, "partner.verify",
			"credential belongs to %s, popup reported %s", verification.ExternalUserID, res.Identity.ExternalUserID)
	}

	user, err := s.resolver.Resolve(ctx, res.Identity, verification, domain.LoginSourceBridge)
	if err != nil {
		return nil, err
	}

	session, err := s.establisher.Establish(ctx, user.ID, verification, WithCredential(res.Credential))
	if err != nil {
		return nil, err
	}
	return &LoginResult{AttemptID: res.AttemptID, User: user, Session: session}, nil
}

// StartAttempt begins a relay attempt driven by a browser over HTTP. The
// attempt runs in the background until it settles or expires.
func (s *PartnerLoginService) StartAttempt() (*AttemptInfo, error) {
	if s.baseCtx.Err() != nil {
		return nil, serrors.New(serrors.KindCancelled, "bridge.attempt", s.baseCtx.Err())
	}

	id := uuid.NewString()
	relay := bridge.NewRelay()
	ctx, cancel := context.WithTimeout(s.baseCtx, s.cfg.AttemptTTL)
	a := &attempt{id: id, relay: relay, cancel: cancel, done: make(chan struct{})}
	s.attempts.Set(id, a, ttlcache.DefaultTTL)

	s.wg.Add(1)
	metrics.ActiveAttemptsGauge.Inc()
	go func() {
		defer s.wg.Done()
		defer metrics.ActiveAttemptsGauge.Dec()
		defer cancel()

		res, err := bridge.New(relay, s.cfg.Bridge).StartAttempt(ctx, id, s.cfg.LoginURL)
		if err != nil {
			s.observe(ctx, metrics.FlowBridge, "", err)
			a.err = err
		} else {
			a.result, a.err = s.CompleteBridgeLogin(ctx, res)
		}
		close(a.done)
	}()

	return &AttemptInfo{
		ID:             id,
		LoginURL:       s.cfg.LoginURL,
		Features:       s.cfg.Bridge.Features,
		WatcherScript:  bridge.WatcherScript(s.cfg.Bridge.TargetOrigin, s.cfg.Bridge.SuccessMarker),
		PollInterval:   s.cfg.Bridge.Interval,
		AllowedOrigins: s.cfg.Bridge.AllowedOrigins,
	}, nil
}

func (s *PartnerLoginService) attempt(id string) (*attempt, error) {
	item := s.attempts.Get(id)
	if item == nil {
		return nil, ErrAttemptNotFound
	}
	return item.Value(), nil
}

// ReportEvent feeds a browser observation into a relay attempt.
func (s *PartnerLoginService) ReportEvent(id string, ev bridge.Event) error {
	a, err := s.attempt(id)
	if err != nil {
		return err
	}
	a.relay.Report(ev)
	return nil
}

// CancelAttempt abandons a relay attempt; it fails with Cancelled.
func (s *PartnerLoginService) CancelAttempt(id string) error {
	a, err := s.attempt(id)
	if err != nil {
		return err
	}
	a.cancel()
	return nil
}

// AttemptStatus reports a relay attempt's state. With wait > 0 it blocks up to
// wait (or until ctx ends) for the attempt to settle.
func (s *PartnerLoginService) AttemptStatus(ctx context.Context, id string, wait time.Duration) (*AttemptStatus, error) {
	a, err := s.attempt(id)
	if err != nil {
		return nil, err
	}

	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-a.done:
		case <-timer.C:
		case <-ctx.Done():
		}
	}

	status := &AttemptStatus{CloseRequested: a.relay.Status().CloseRequested}
	select {
	case <-a.done:
		if a.err != nil {
			status.Status = AttemptFailed
			status.Err = a.err
		} else {
			status.Status = AttemptResolved
			status.Result = a.result
		}
	default:
		status.Status = AttemptPending
	}
	return status, nil
}

// InitiateLaunch starts the launch flow and returns the Partner redirect.
func (s *PartnerLoginService) InitiateLaunch(ctx context.Context, req lti.InitiateRequest) (string, error) {
	if s.launches == nil {
		return "", serrors.Newf(serrors.KindInternal, "lti.initiate", "launch flow is not configured")
	}
	return s.launches.Initiate(ctx, req)
}

// CompleteLaunch validates the form-posted launch and signs the user in.
func (s *PartnerLoginService) CompleteLaunch(ctx context.Context, launchToken, state string) (*LaunchResult, error) {
	if s.launches == nil {
		return nil, serrors.Newf(serrors.KindInternal, "lti.callback", "launch flow is not configured")
	}

	ctx, span := tracing.Start(ctx, "PartnerLoginService.CompleteLaunch")
	out, err := s.completeLaunch(ctx, launchToken, state)
	tracing.End(span, err)

	target := ""
	if out != nil {
		target = out.Launch.Identity.ExternalUserID
	}
	s.observe(ctx, metrics.FlowLaunch, target, err)
	if err == nil {
		audit.Record(ctx, audit.Event{
			Action:        audit.ActionLaunchLogin,
			UserID:        out.User.ID,
			PartnerUserID: target,
			Resource:      out.Launch.Context.ResourceLink.ID,
		})
	}
	return out, err
}

func (s *PartnerLoginService) completeLaunch(ctx context.Context, launchToken, state string) (*LaunchResult, error) {
	launch, err := s.launches.ValidateCallback(ctx, launchToken, state)
	if err != nil {
		return nil, err
	}

	user, err := s.resolver.Resolve(ctx, launch.Identity, nil, domain.LoginSourceLaunch)
	if err != nil {
		return nil, err
	}

	session, err := s.establisher.Establish(ctx, user.ID, launch.Proof)
	if err != nil {
		return nil, err
	}

	if s.grades != nil {
		s.grades.Remember(user.ID, launch)
	}
	return &LaunchResult{User: user, Session: session, Launch: launch}, nil
}

func (s *PartnerLoginService) observe(ctx context.Context, flow, target string, err error) {
	if err == nil {
		metrics.ObserveLogin(flow, "")
		return
	}

	kind := serrors.KindOf(err)
	metrics.ObserveLogin(flow, string(kind))
	log.Info().Err(err).Str("flow", flow).Str("kind", string(kind)).Msg("partner login failed")

	action := audit.ActionBridgeLogin
	if flow == metrics.FlowLaunch {
		action = audit.ActionLaunchLogin
	}
	audit.Record(ctx, audit.Event{Action: action, PartnerUserID: target, Err: err})
}
