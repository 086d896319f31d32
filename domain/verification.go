package domain

// VerificationResult is the Partner's authoritative answer on whether a
// credential is live and its account enabled.
type VerificationResult struct {
	ExternalUserID string
	Enabled        bool
	LTMEnabled     bool
	Role           string
}

func (*VerificationResult) isProof() {}

// Permits reports whether a session may be minted on the strength of this result.
func (v *VerificationResult) Permits() bool {
	return v != nil && v.Enabled
}

func (*VerificationResult) Source() LoginSource { return LoginSourceBridge }

// LaunchProof records that a launch token passed validation. Its fields are
// unexported so a composite literal never permits a login; NewLaunchProof is
// called only by the launch validator after every check has passed. Go cannot
// restrict who calls an exported constructor, so that part of the gate is held
// by review of its callers.
type LaunchProof struct {
	subject      string
	deploymentID string
}

// NewLaunchProof is for the launch validator. subject is the validated sub claim.
func NewLaunchProof(subject, deploymentID string) *LaunchProof {
	return &LaunchProof{subject: subject, deploymentID: deploymentID}
}

// Subject is the validated sub claim.
func (p *LaunchProof) Subject() string { return p.subject }

// DeploymentID is the deployment the launch came from.
func (p *LaunchProof) DeploymentID() string { return p.deploymentID }

func (*LaunchProof) isProof() {}

func (p *LaunchProof) Permits() bool {
	return p != nil && p.subject != ""
}

func (*LaunchProof) Source() LoginSource { return LoginSourceLaunch }

// Proof is evidence that a login attempt passed the Partner's checks.
// Only this package's types implement it.
type Proof interface {
	isProof()
	Permits() bool
	Source() LoginSource
}
