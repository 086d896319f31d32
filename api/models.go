package api

import (
	"time"

	"github.com/pilab-dev/partner-sso/domain"
	serrors "github.com/pilab-dev/partner-sso/errors"
)

// AttemptResponse starts a relay attempt in the browser.
//
//nolint:tagliatelle
type AttemptResponse struct {
	AttemptID      string   `json:"attempt_id"`
	LoginURL       string   `json:"login_url"`
	Features       string   `json:"features"`
	WatcherScript  string   `json:"watcher_script"`
	PollIntervalMs int64    `json:"poll_interval_ms"`
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
}

// SessionResponse is a signed-in user.
//
//nolint:tagliatelle
type SessionResponse struct {
	Token     string     `json:"token"`
	UserID    string     `json:"user_id"`
	Role      string     `json:"role"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// NewSessionResponse builds a SessionResponse.
func NewSessionResponse(user *domain.User, token *domain.SessionToken) *SessionResponse {
	resp := &SessionResponse{Token: token.Token, UserID: user.ID, Role: string(user.Role)}
	if !token.ExpiresAt.IsZero() {
		exp := token.ExpiresAt
		resp.ExpiresAt = &exp
	}
	return resp
}

// AttemptStatusResponse is polled by the opener page.
//
//nolint:tagliatelle
type AttemptStatusResponse struct {
	Status         string                 `json:"status"`
	CloseRequested bool                   `json:"close_requested"`
	Session        *SessionResponse       `json:"session,omitempty"`
	Error          *serrors.ErrorResponse `json:"error,omitempty"`
}

// LaunchResponse is returned after a validated launch.
//
//nolint:tagliatelle
type LaunchResponse struct {
	Session      *SessionResponse     `json:"session"`
	Context      domain.LaunchContext `json:"launch"`
	ReturnTarget string               `json:"return_target,omitempty"`
	Verified     bool                 `json:"verified"`
}

// ScoreRequest posts a grade for the resource link the caller launched from.
//
//nolint:tagliatelle
type ScoreRequest struct {
	ResourceLinkID   string  `json:"resource_link_id"`
	ScoreGiven       float64 `json:"score_given"`
	ScoreMaximum     float64 `json:"score_maximum"`
	ActivityProgress string  `json:"activity_progress,omitempty"`
	GradingProgress  string  `json:"grading_progress,omitempty"`
}

// ScoreResponse reports whether a best-effort submission was delivered.
type ScoreResponse struct {
	Delivered bool `json:"delivered"`
}
