package psso

import (
	serrors "github.com/pilab-dev/partner-sso/errors"
)

// Re-exported from the errors package.
var (
	ErrPopupBlocked       = serrors.ErrPopupBlocked
	ErrPopupClosed        = serrors.ErrPopupClosed
	ErrTimeout            = serrors.ErrTimeout
	ErrParseFailure       = serrors.ErrParseFailure
	ErrVerificationFailed = serrors.ErrVerificationFailed
	ErrUserDisabled       = serrors.ErrUserDisabled
	ErrMissingClaims      = serrors.ErrMissingClaims
	ErrSignatureInvalid   = serrors.ErrSignatureInvalid
	ErrLinkFailure        = serrors.ErrLinkFailure
	ErrPartnerError       = serrors.ErrPartnerError
	ErrCancelled          = serrors.ErrCancelled
	ErrStateMismatch      = serrors.ErrStateMismatch
	ErrInvalidClaims      = serrors.ErrInvalidClaims
)
