package psso

import (
	"encoding/hex"

	"github.com/pilab-dev/partner-sso/domain"
	"golang.org/x/crypto/blake2b"
)

// HashCredential returns the hex blake2b-256 digest of a Partner credential,
// which is what gets stored alongside a session.
func HashCredential(credential domain.BearerCredential) string {
	if credential == "" {
		return ""
	}
	sum := blake2b.Sum256([]byte(credential.Reveal()))
	return hex.EncodeToString(sum[:])
}
