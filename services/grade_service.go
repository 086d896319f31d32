package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/pilab-dev/partner-sso/domain"
	"github.com/pilab-dev/partner-sso/internal/audit"
	"github.com/pilab-dev/partner-sso/internal/lti"
	"github.com/pilab-dev/partner-sso/internal/metrics"
	"github.com/pilab-dev/partner-sso/internal/partner"
	"github.com/rs/zerolog/log"
)

const defaultGradeTargetTTL = 8 * time.Hour

var (
	// ErrNoGradeTarget is returned when no launch with a gradable line item is known for the user.
	ErrNoGradeTarget = errors.New("no gradable launch for this user and resource link")
	// ErrScoreScopeMissing is returned when the launch did not grant the score scope.
	ErrScoreScopeMissing = errors.New("launch did not grant the score scope")
)

// GradeTarget is where and for whom a score is posted.
type GradeTarget struct {
	LineItem string
	Scopes   []string
	// Subject is the Partner's id for the user, the AGS userId.
	Subject string
}

// GradeService posts scores back to the Partner. Delivery is best effort:
// outcomes are logged, audited and counted, and never fail a login.
type GradeService struct {
	submitter ScoreSubmitter
	targets   *ttlcache.Cache[string, *GradeTarget]
	now       func() time.Time
}

// NewGradeService creates a GradeService remembering launch targets for ttl (8h by default).
func NewGradeService(submitter ScoreSubmitter, ttl time.Duration) *GradeService {
	if ttl <= 0 {
		ttl = defaultGradeTargetTTL
	}
	targets := ttlcache.New(
		ttlcache.WithTTL[string, *GradeTarget](ttl),
	)
	go targets.Start()

	return &GradeService{submitter: submitter, targets: targets, now: time.Now}
}

// Stop should be called on server shutdown to clean up the cache.
func (s *GradeService) Stop() {
	s.targets.Stop()
}

func targetKey(userID, resourceLinkID string) string {
	return userID + "|" + resourceLinkID
}

// Remember keeps the grade endpoint of a validated launch for later submissions.
func (s *GradeService) Remember(userID string, launch *lti.Launch) {
	if launch == nil || launch.Context.Grades == nil || launch.Context.Grades.LineItem == "" {
		return
	}
	s.targets.Set(targetKey(userID, launch.Context.ResourceLink.ID), &GradeTarget{
		LineItem: launch.Context.Grades.LineItem,
		Scopes:   launch.Context.Grades.Scopes,
		Subject:  launch.Subject,
	}, ttlcache.DefaultTTL)
}

// Target returns the remembered target for a user's resource link.
func (s *GradeService) Target(userID, resourceLinkID string) (*GradeTarget, bool) {
	item := s.targets.Get(targetKey(userID, resourceLinkID))
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

// SubmitFor posts score for the launch the user made from resourceLinkID.
func (s *GradeService) SubmitFor(ctx context.Context, userID, resourceLinkID string, score domain.GradeSubmission) error {
	target, ok := s.Target(userID, resourceLinkID)
	if !ok {
		return ErrNoGradeTarget
	}
	return s.Submit(ctx, target, score)
}

// Submit posts score to target. The returned error is for logging only.
func (s *GradeService) Submit(ctx context.Context, target *GradeTarget, score domain.GradeSubmission) error {
	err := s.submit(ctx, target, &score)

	outcome := "delivered"
	if err != nil {
		outcome = "failed"
		log.Warn().Err(err).Str("lineitem", target.LineItem).Str("user", score.UserID).Msg("grade passback failed")
	} else {
		log.Info().Str("lineitem", target.LineItem).Str("user", score.UserID).Float64("score", score.ScoreGiven).Msg("grade passback delivered")
	}
	metrics.GradeSubmissionsTotal.WithLabelValues(outcome).Inc()
	audit.Record(ctx, audit.Event{
		Action:        audit.ActionGradePosted,
		PartnerUserID: score.UserID,
		Resource:      target.LineItem,
		Detail:        fmt.Sprintf("score=%g/%g", score.ScoreGiven, score.ScoreMaximum),
		Err:           err,
	})
	return err
}

func (s *GradeService) submit(ctx context.Context, target *GradeTarget, score *domain.GradeSubmission) error {
	if target == nil || target.LineItem == "" {
		return ErrNoGradeTarget
	}
	if len(target.Scopes) > 0 && !slices.Contains(target.Scopes, partner.ScoreScope) {
		return ErrScoreScopeMissing
	}
	if score.ScoreMaximum <= 0 || score.ScoreGiven < 0 || score.ScoreGiven > score.ScoreMaximum {
		return fmt.Errorf("score %g/%g out of range", score.ScoreGiven, score.ScoreMaximum)
	}

	if score.UserID == "" {
		score.UserID = target.Subject
	}
	if score.Timestamp.IsZero() {
		score.Timestamp = s.now().UTC()
	}
	if score.ActivityProgress == "" {
		score.ActivityProgress = domain.ActivityCompleted
	}
	if score.GradingProgress == "" {
		score.GradingProgress = domain.GradingFullyGraded
	}

	return s.submitter.SubmitScore(ctx, target.LineItem, score)
}
