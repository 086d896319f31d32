//nolint:varnamelen
package pssoecho

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	psso "github.com/pilab-dev/partner-sso"
	"github.com/pilab-dev/partner-sso/api"
	"github.com/pilab-dev/partner-sso/domain"
	serrors "github.com/pilab-dev/partner-sso/errors"
	"github.com/pilab-dev/partner-sso/internal/bridge"
	"github.com/pilab-dev/partner-sso/internal/lti"
	"github.com/pilab-dev/partner-sso/middleware"
	"github.com/pilab-dev/partner-sso/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// maxStatusWait caps long-polling of an attempt's status.
const maxStatusWait = 25 * time.Second

// Options holds the API's dependencies.
type Options struct {
	Login *services.PartnerLoginService
	// Grades is nil when grade passback is disabled.
	Grades *services.GradeService
	Keys   *psso.JWKSService
	// Auth validates session tokens on the score endpoint. Nil disables it.
	Auth *middleware.Authenticator
	// FrameAncestors may embed the launch pages, typically the Partner origin.
	FrameAncestors []string
	// FallbackLoginURL is offered to users whose partner sign-in failed.
	FallbackLoginURL string
	// Gatherer backs /metrics. Nil serves the default registry.
	Gatherer prometheus.Gatherer
	// Ping reports backing store health for /healthz.
	Ping func(ctx context.Context) error
}

// PartnerAPI serves the partner login, launch and grade endpoints.
type PartnerAPI struct {
	login            *services.PartnerLoginService
	grades           *services.GradeService
	keys             *psso.JWKSService
	auth             *middleware.Authenticator
	frameAncestors   []string
	fallbackLoginURL string
	gatherer         prometheus.Gatherer
	ping             func(ctx context.Context) error
}

// NewPartnerAPI initializes the API.
func NewPartnerAPI(opts Options) *PartnerAPI {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	return &PartnerAPI{
		login:            opts.Login,
		grades:           opts.Grades,
		keys:             opts.Keys,
		auth:             opts.Auth,
		frameAncestors:   opts.FrameAncestors,
		fallbackLoginURL: opts.FallbackLoginURL,
		gatherer:         opts.Gatherer,
		ping:             opts.Ping,
	}
}

// RegisterRoutes registers the API routes.
func (pa *PartnerAPI) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/partner/bridge/attempts")
	g.POST("", pa.StartAttemptHandler)
	g.GET("/:id", pa.AttemptStatusHandler)
	g.POST("/:id/events", pa.ReportEventHandler)
	g.DELETE("/:id", pa.CancelAttemptHandler)

	l := e.Group("/lti", middleware.SecurityHeaders(pa.frameAncestors...))
	l.GET("/login", pa.LTILoginHandler)
	l.POST("/login", pa.LTILoginHandler)
	l.POST("/launch", pa.LaunchHandler)
	if pa.auth != nil {
		l.POST("/scores", pa.ScoreHandler, middleware.SessionAuth(pa.auth))
	}

	e.GET("/.well-known/jwks.json", pa.JWKSHandler)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(pa.gatherer, promhttp.HandlerOpts{})))
	e.GET("/healthz", pa.HealthHandler)
}

// statusFor maps an error kind to the HTTP status of a failed request.
func statusFor(kind serrors.Kind) int {
	switch kind {
	case serrors.KindStateMismatch, serrors.KindParseFailure, serrors.KindMissingClaims, serrors.KindInvalidClaims:
		return http.StatusBadRequest
	case serrors.KindSignatureInvalid:
		return http.StatusUnauthorized
	case serrors.KindUserDisabled:
		return http.StatusForbidden
	case serrors.KindVerificationFailed, serrors.KindPartnerError:
		return http.StatusBadGateway
	case serrors.KindPopupBlocked, serrors.KindPopupClosed, serrors.KindTimeout, serrors.KindCancelled:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (pa *PartnerAPI) errorResponse(c echo.Context, err error) *serrors.ErrorResponse {
	return serrors.NewErrorResponse(err, c.Request().Header.Get("Accept-Language"), pa.fallbackLoginURL)
}

func (pa *PartnerAPI) writeError(c echo.Context, err error) error {
	kind := serrors.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}
	return c.JSON(status, pa.errorResponse(c, err))
}

// StartAttemptHandler begins a relay attempt and tells the browser which popup to open.
func (pa *PartnerAPI) StartAttemptHandler(c echo.Context) error {
	info, err := pa.login.StartAttempt()
	if err != nil {
		return pa.writeError(c, err)
	}

	return c.JSON(http.StatusCreated, api.AttemptResponse{
		AttemptID:      info.ID,
		LoginURL:       info.LoginURL,
		Features:       info.Features.String(),
		WatcherScript:  info.WatcherScript,
		PollIntervalMs: info.PollInterval.Milliseconds(),
		AllowedOrigins: info.AllowedOrigins,
	})
}

var knownEvents = map[string]bool{
	bridge.EventOpened:      true,
	bridge.EventBlocked:     true,
	bridge.EventLocation:    true,
	bridge.EventCrossOrigin: true,
	bridge.EventClosed:      true,
	bridge.EventMessage:     true,
}

// ReportEventHandler feeds a browser observation of the popup into its attempt.
func (pa *PartnerAPI) ReportEventHandler(c echo.Context) error {
	var ev bridge.Event
	if err := c.Bind(&ev); err != nil || !knownEvents[ev.Type] {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid_event"})
	}

	if err := pa.login.ReportEvent(c.Param("id"), ev); err != nil {
		return pa.attemptError(c, err)
	}
	return c.NoContent(http.StatusAccepted)
}

// AttemptStatusHandler reports an attempt's state. ?wait=<ms> long-polls until it settles.
func (pa *PartnerAPI) AttemptStatusHandler(c echo.Context) error {
	var wait time.Duration
	if raw := c.QueryParam("wait"); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms < 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid_wait"})
		}
		wait = min(time.Duration(ms)*time.Millisecond, maxStatusWait)
	}

	status, err := pa.login.AttemptStatus(c.Request().Context(), c.Param("id"), wait)
	if err != nil {
		return pa.attemptError(c, err)
	}

	resp := api.AttemptStatusResponse{Status: status.Status, CloseRequested: status.CloseRequested}
	if status.Result != nil {
		resp.Session = api.NewSessionResponse(status.Result.User, status.Result.Session)
	}
	if status.Err != nil {
		resp.Error = pa.errorResponse(c, status.Err)
	}
	return c.JSON(http.StatusOK, resp)
}

// CancelAttemptHandler abandons an attempt.
func (pa *PartnerAPI) CancelAttemptHandler(c echo.Context) error {
	if err := pa.login.CancelAttempt(c.Param("id")); err != nil {
		return pa.attemptError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (pa *PartnerAPI) attemptError(c echo.Context, err error) error {
	if errors.Is(err, services.ErrAttemptNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "attempt_not_found"})
	}
	return pa.writeError(c, err)
}

// LTILoginHandler handles a third-party initiated login and redirects to the Partner.
func (pa *PartnerAPI) LTILoginHandler(c echo.Context) error {
	redirect, err := pa.login.InitiateLaunch(c.Request().Context(), lti.InitiateRequest{
		LoginHint:     c.FormValue("login_hint"),
		MessageHint:   c.FormValue("lti_message_hint"),
		TargetLinkURI: c.FormValue("target_link_uri"),
		ReturnTarget:  c.FormValue("return"),
	})
	if err != nil {
		return pa.writeError(c, err)
	}
	return c.Redirect(http.StatusFound, redirect)
}

// LaunchHandler receives the form-posted launch token and signs the user in.
func (pa *PartnerAPI) LaunchHandler(c echo.Context) error {
	res, err := pa.login.CompleteLaunch(c.Request().Context(), c.FormValue("id_token"), c.FormValue("state"))
	if err != nil {
		return pa.writeError(c, err)
	}

	return c.JSON(http.StatusOK, api.LaunchResponse{
		Session:      api.NewSessionResponse(res.User, res.Session),
		Context:      res.Launch.Context,
		ReturnTarget: res.Launch.ReturnTarget,
		Verified:     res.Launch.Verified,
	})
}

// ScoreHandler posts a grade back to the Partner on behalf of the session's user.
// Delivery is best effort: any accepted request answers 202.
func (pa *PartnerAPI) ScoreHandler(c echo.Context) error {
	session, ok := middleware.SessionFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid_session"})
	}
	if pa.grades == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "grade_passback_disabled"})
	}

	var req api.ScoreRequest
	if err := c.Bind(&req); err != nil || req.ResourceLinkID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid_score"})
	}

	err := pa.grades.SubmitFor(c.Request().Context(), session.UserID, req.ResourceLinkID, domain.GradeSubmission{
		ScoreGiven:       req.ScoreGiven,
		ScoreMaximum:     req.ScoreMaximum,
		ActivityProgress: req.ActivityProgress,
		GradingProgress:  req.GradingProgress,
	})
	if err != nil {
		log.Debug().Err(err).Str("user_id", session.UserID).Msg("score not delivered")
	}
	return c.JSON(http.StatusAccepted, api.ScoreResponse{Delivered: err == nil})
}

// JWKSHandler publishes the session signing keys.
func (pa *PartnerAPI) JWKSHandler(c echo.Context) error {
	if pa.keys == nil {
		return c.JSON(http.StatusOK, psso.JSONWebKeySet{Keys: []psso.JSONWebKey{}})
	}
	return c.JSON(http.StatusOK, pa.keys.GetJWKS())
}

// HealthHandler reports liveness and backing store reachability.
func (pa *PartnerAPI) HealthHandler(c echo.Context) error {
	if pa.ping != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := pa.ping(ctx); err != nil {
			log.Warn().Err(err).Msg("health check failed")
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
