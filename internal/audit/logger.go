// Package audit writes one structured record per security-relevant outcome of
// the partner login flows, separate from the application log.
package audit

import (
	"context"
	"os"
	"sync"
	"time"

	serrors "github.com/pilab-dev/partner-sso/errors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Actions recorded by the login flows.
const (
	ActionBridgeLogin = "partner.bridge_login"
	ActionLaunchLogin = "partner.lti_launch"
	ActionUserLinked  = "partner.user_linked"
	ActionGradePosted = "partner.grade_posted"
)

// Event is one audit record. Credentials never appear here, only ids.
type Event struct {
	Action string
	// UserID is the local account, when one was resolved.
	UserID string
	// PartnerUserID is the Partner's id of the user.
	PartnerUserID string
	// Resource is the resource link or line item the action concerned.
	Resource string
	Detail   string
	Err      error
}

var (
	mu     sync.RWMutex
	output = zerolog.New(os.Stdout).With().Str("service", "partner-sso").Logger()
)

// SetOutput replaces the audit destination, e.g. a dedicated file.
func SetOutput(l zerolog.Logger) {
	mu.Lock()
	output = l
	mu.Unlock()
}

// Record writes ev. Failed events carry the error kind so they can be grouped
// without parsing messages.
func Record(ctx context.Context, ev Event) {
	mu.RLock()
	l := output
	mu.RUnlock()

	e := l.Log().
		Time("at", time.Now().UTC()).
		Str("audit", ev.Action).
		Bool("success", ev.Err == nil)
	if ev.UserID != "" {
		e = e.Str("user_id", ev.UserID)
	}
	if ev.PartnerUserID != "" {
		e = e.Str("partner_user_id", ev.PartnerUserID)
	}
	if ev.Resource != "" {
		e = e.Str("resource", ev.Resource)
	}
	if ev.Detail != "" {
		e = e.Str("detail", ev.Detail)
	}
	if ev.Err != nil {
		e = e.Str("kind", string(serrors.KindOf(ev.Err))).Str("error", ev.Err.Error())
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		e = e.Str("trace_id", sc.TraceID().String())
	}
	e.Send()
}
