package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies why a partner login attempt ended without a session.
// Every kind is terminal for the attempt; callers re-initiate instead of retrying.
type Kind string

const (
	KindPopupBlocked       Kind = "popup_blocked"
	KindPopupClosed        Kind = "popup_closed"
	KindTimeout            Kind = "timeout"
	KindParseFailure       Kind = "parse_failure"
	KindVerificationFailed Kind = "verification_failed"
	KindUserDisabled       Kind = "user_disabled"
	KindMissingClaims      Kind = "missing_claims"
	KindSignatureInvalid   Kind = "signature_invalid"
	KindLinkFailure        Kind = "link_failure"

	KindPartnerError  Kind = "partner_error"
	KindCancelled     Kind = "cancelled"
	KindStateMismatch Kind = "state_mismatch"
	KindInvalidClaims Kind = "invalid_claims"
	KindInternal      Kind = "internal"
)

// Sentinels for errors.Is checks. An *AuthError matches the sentinel of its Kind.
var (
	ErrPopupBlocked       = &AuthError{Kind: KindPopupBlocked}
	ErrPopupClosed        = &AuthError{Kind: KindPopupClosed}
	ErrTimeout            = &AuthError{Kind: KindTimeout}
	ErrParseFailure       = &AuthError{Kind: KindParseFailure}
	ErrVerificationFailed = &AuthError{Kind: KindVerificationFailed}
	ErrUserDisabled       = &AuthError{Kind: KindUserDisabled}
	ErrMissingClaims      = &AuthError{Kind: KindMissingClaims}
	ErrSignatureInvalid   = &AuthError{Kind: KindSignatureInvalid}
	ErrLinkFailure        = &AuthError{Kind: KindLinkFailure}
	ErrPartnerError       = &AuthError{Kind: KindPartnerError}
	ErrCancelled          = &AuthError{Kind: KindCancelled}
	ErrStateMismatch      = &AuthError{Kind: KindStateMismatch}
	ErrInvalidClaims      = &AuthError{Kind: KindInvalidClaims}
)

// AuthError is a classified failure of a login attempt.
type AuthError struct {
	Kind Kind
	// Op names the operation that failed, e.g. "bridge.start" or "partner.verify".
	Op  string
	Err error
}

// New creates an AuthError of the given kind.
func New(kind Kind, op string, err error) *AuthError {
	return &AuthError{Kind: kind, Op: op, Err: err}
}

// Newf creates an AuthError with a formatted cause.
func Newf(kind Kind, op, format string, args ...any) *AuthError {
	return &AuthError{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *AuthError) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an AuthError of the same kind.
func (e *AuthError) Is(target error) bool {
	var t *AuthError
	if !stderrors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first AuthError in err's chain,
// or KindInternal if there is none.
func KindOf(err error) Kind {
	var ae *AuthError
	if stderrors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}
