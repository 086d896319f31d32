package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthError_IsMatchesKind(t *testing.T) {
	err := New(KindTimeout, "bridge.start", stderrors.New("300 ticks elapsed"))
	wrapped := fmt.Errorf("login attempt: %w", err)

	assert.ErrorIs(t, wrapped, ErrTimeout)
	assert.NotErrorIs(t, wrapped, ErrPopupClosed)
	assert.Equal(t, KindTimeout, KindOf(wrapped))
	assert.Equal(t, "bridge.start: timeout: 300 ticks elapsed", err.Error())
}

func TestKindOf_PlainErrorIsInternal(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(stderrors.New("boom")))
}

func TestMessage_LanguageFallback(t *testing.T) {
	en := Message(KindUserDisabled, "")
	assert.Contains(t, en, "disabled")

	assert.NotEqual(t, en, Message(KindUserDisabled, "ar-SA,ar;q=0.9"))
	assert.Equal(t, en, Message(KindUserDisabled, "fr"))
}

func TestMessage_EveryKindHasEnglish(t *testing.T) {
	kinds := []Kind{
		KindPopupBlocked, KindPopupClosed, KindTimeout, KindParseFailure,
		KindVerificationFailed, KindUserDisabled, KindMissingClaims,
		KindSignatureInvalid, KindLinkFailure, KindPartnerError, KindCancelled,
		KindStateMismatch, KindInvalidClaims, KindInternal,
	}
	for _, k := range kinds {
		assert.NotEmpty(t, Message(k, "en"), k)
	}
}

func TestNewErrorResponse(t *testing.T) {
	resp := NewErrorResponse(New(KindPopupBlocked, "", nil), "en", "/login")
	assert.Equal(t, KindPopupBlocked, resp.Code)
	assert.Equal(t, "/login", resp.FallbackLoginURL)
	assert.NotEmpty(t, resp.Description)
}
