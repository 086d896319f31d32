package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pilab-dev/partner-sso/domain"
	serrors "github.com/pilab-dev/partner-sso/errors"
	"github.com/pilab-dev/partner-sso/internal/audit"
	"github.com/pilab-dev/partner-sso/internal/metrics"
	"github.com/pilab-dev/partner-sso/tracing"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
)

// SynthesizedEmailDomain is the reserved TLD used for placeholder addresses.
const SynthesizedEmailDomain = "partner.invalid"

// userIDNamespace derives local user ids from Partner user ids, so the same
// Partner account always maps to the same local id.
var userIDNamespace = uuid.MustParse("6f1c2f52-3c1e-5b8e-9d43-0b6a8e1f7a10")

// LocalUserID returns the deterministic local id for a Partner user id.
func LocalUserID(externalUserID string) string {
	return uuid.NewSHA1(userIDNamespace, []byte(externalUserID)).String()
}

// resolveTimeout bounds a shared resolution once detached from its callers.
const resolveTimeout = 15 * time.Second

// IdentityResolver links Partner identities to local accounts.
type IdentityResolver struct {
	users domain.UserRepository
	group singleflight.Group
	now   func() time.Time
}

// NewIdentityResolver creates an IdentityResolver.
func NewIdentityResolver(users domain.UserRepository) *IdentityResolver {
	return &IdentityResolver{users: users, now: time.Now}
}

// Resolve finds the local account linked to identity, updating it, or creates
// one. verification is nil for launches. Store failures surface as LinkFailure.
func (r *IdentityResolver) Resolve(ctx context.Context, identity *domain.ExternalIdentity, verification *domain.VerificationResult, source domain.LoginSource) (*domain.User, error) {
	const op = "identity.resolve"

	if identity == nil || strings.TrimSpace(identity.ExternalUserID) == "" {
		return nil, serrors.Newf(serrors.KindLinkFailure, op, "identity has no external user id")
	}

	ctx, span := tracing.Start(ctx, "IdentityResolver.Resolve",
		attribute.String("partner.user_id", identity.ExternalUserID),
		attribute.String("login.source", string(source)),
	)

	// Concurrent resolutions of one Partner account in this process share a
	// single store round trip, which must outlive any one caller's cancellation.
	ch := r.group.DoChan(identity.ExternalUserID, func() (any, error) {
		sharedCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resolveTimeout)
		defer cancel()
		return r.resolve(sharedCtx, identity, verification, source)
	})

	select {
	case <-ctx.Done():
		err := serrors.New(serrors.KindCancelled, op, ctx.Err())
		tracing.End(span, err)
		return nil, err
	case res := <-ch:
		tracing.End(span, res.Err)
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			log.Debug().Str("external_user_id", identity.ExternalUserID).Msg("identity resolution shared with a concurrent call")
		}
		user := *res.Val.(*domain.User)
		return &user, nil
	}
}

func (r *IdentityResolver) resolve(ctx context.Context, identity *domain.ExternalIdentity, verification *domain.VerificationResult, source domain.LoginSource) (*domain.User, error) {
	const op = "identity.resolve"

	existing, err := r.users.GetUserByExternalID(ctx, identity.ExternalUserID)
	switch {
	case err == nil:
		return r.update(ctx, existing, identity, verification, source)
	case !errors.Is(err, domain.ErrUserNotFound):
		return nil, serrors.New(serrors.KindLinkFailure, op, err)
	}

	user := r.newUser(identity, verification, source)
	err = r.users.CreateUser(ctx, user)
	if errors.Is(err, domain.ErrUserAlreadyExists) {
		// Another instance created the account between our read and write.
		log.Info().Str("external_user_id", identity.ExternalUserID).Msg("lost create race, merging into existing account")
		existing, err = r.users.GetUserByExternalID(ctx, identity.ExternalUserID)
		if err != nil {
			return nil, serrors.New(serrors.KindLinkFailure, op, err)
		}
		return r.update(ctx, existing, identity, verification, source)
	}
	if err != nil {
		return nil, serrors.New(serrors.KindLinkFailure, op, err)
	}

	metrics.UsersLinkedTotal.WithLabelValues("true").Inc()
	audit.Record(ctx, audit.Event{Action: audit.ActionUserLinked, UserID: user.ID, PartnerUserID: identity.ExternalUserID, Detail: "created"})
	log.Info().Str("user_id", user.ID).Str("external_user_id", identity.ExternalUserID).Bool("email_synthesized", user.EmailSynthesized).Msg("created local account for partner identity")
	return user, nil
}

func (r *IdentityResolver) update(ctx context.Context, user *domain.User, identity *domain.ExternalIdentity, verification *domain.VerificationResult, source domain.LoginSource) (*domain.User, error) {
	mergeIdentity(user, identity, verification)
	r.touch(user, source)

	if err := r.users.UpdateUser(ctx, user); err != nil {
		return nil, serrors.New(serrors.KindLinkFailure, "identity.resolve", err)
	}
	metrics.UsersLinkedTotal.WithLabelValues("false").Inc()
	return user, nil
}

func (r *IdentityResolver) newUser(identity *domain.ExternalIdentity, verification *domain.VerificationResult, source domain.LoginSource) *domain.User {
	user := &domain.User{
		ID:             LocalUserID(identity.ExternalUserID),
		Name:           identity.DisplayName,
		Status:         domain.UserStatusActive,
		ExternalUserID: identity.ExternalUserID,
		Enabled:        true,
	}
	if user.Name == "" {
		user.Name = identity.Username
	}

	if identity.Email != "" {
		user.Email = identity.Email
	} else {
		user.Email = SynthesizeEmail(identity.Username, identity.ExternalUserID)
		user.EmailSynthesized = true
	}

	mergeIdentity(user, identity, verification)
	r.touch(user, source)
	user.CreatedAt = user.UpdatedAt
	return user
}

func (r *IdentityResolver) touch(user *domain.User, source domain.LoginSource) {
	now := r.now().UTC()
	user.LastLoginSource = source
	user.LastLoginAt = &now
	user.UpdatedAt = now
}

// mergeIdentity copies incoming non-empty values onto user. Email is never touched.
func mergeIdentity(user *domain.User, identity *domain.ExternalIdentity, verification *domain.VerificationResult) {
	if identity.DisplayName != "" {
		user.Name = identity.DisplayName
	}
	if identity.Username != "" {
		user.ExternalUsername = identity.Username
	}
	if identity.SchoolID != "" {
		user.ExternalSchoolID = identity.SchoolID
	}
	if identity.Birthdate != "" {
		user.Birthdate = identity.Birthdate
	}

	role := identity.Role
	if verification != nil && verification.Role != "" {
		role = domain.ParseExternalRole(verification.Role)
	}
	user.Role = domain.LocalRoleFor(role)

	switch role {
	case domain.ExternalRoleTeacher:
		if identity.TeacherRef != "" {
			user.ExternalTeacherRef = identity.TeacherRef
		}
	case domain.ExternalRoleStudent:
		if identity.StudentRef != "" {
			user.ExternalStudentRef = identity.StudentRef
		}
	}

	if verification != nil {
		user.Enabled = verification.Enabled
		user.LTMEnabled = verification.LTMEnabled
	}
}

// SynthesizeEmail builds the placeholder address for accounts the Partner gave no email.
func SynthesizeEmail(username, externalUserID string) string {
	local := sanitizeLocalPart(username)
	if local == "" {
		local = sanitizeLocalPart("user" + externalUserID)
	}
	return local + "@" + SynthesizedEmailDomain
}

func sanitizeLocalPart(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('.')
		}
	}
	return strings.Trim(b.String(), ".")
}
