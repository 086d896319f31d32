package domain

import (
	"encoding/hex"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/blake2b"
)

// ExternalIdentity is the normalized shape of a Partner-supplied user.
// Empty strings mean "absent"; parsers never store whitespace-only values.
type ExternalIdentity struct {
	ExternalUserID string
	Username       string
	DisplayName    string
	Role           ExternalRole
	Birthdate      string
	SchoolID       string
	StudentRef     string
	TeacherRef     string
	Email          string // only the launch flow supplies one, and rarely
}

// BearerCredential is the opaque secret proving the user authenticated with the Partner.
// It must never be logged in full; String and the zerolog marshaller only expose
// its length, a short prefix and a fingerprint.
type BearerCredential string

const credentialPrefixLen = 4

func (c BearerCredential) prefix() string {
	if len(c) <= credentialPrefixLen {
		return ""
	}
	return string(c[:credentialPrefixLen])
}

// Fingerprint returns a short, stable, non-reversible identifier of the credential.
func (c BearerCredential) Fingerprint() string {
	sum := blake2b.Sum256([]byte(c))
	return hex.EncodeToString(sum[:6])
}

func (c BearerCredential) String() string {
	return fmt.Sprintf("credential(len=%d prefix=%q fp=%s)", len(c), c.prefix(), c.Fingerprint())
}

// MarshalZerologObject lets a credential be passed to zerolog's Object().
func (c BearerCredential) MarshalZerologObject(e *zerolog.Event) {
	e.Int("len", len(c)).Str("prefix", c.prefix()).Str("fp", c.Fingerprint())
}

// Reveal returns the raw secret for transmission to the Partner.
func (c BearerCredential) Reveal() string {
	return string(c)
}
