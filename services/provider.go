package services

import psso "github.com/pilab-dev/partner-sso"

// ServiceProvider defines an interface for accessing all service types.
type ServiceProvider interface {
	JWKSService() *psso.JWKSService
	TokenSigner() *psso.TokenSigner

	IdentityResolver() *IdentityResolver
	SessionEstablisher() *SessionEstablisher
	// GradeService is nil when no score submitter is configured.
	GradeService() *GradeService
	LoginService() *PartnerLoginService

	// Stop releases background workers of the services created so far.
	Stop()
}
