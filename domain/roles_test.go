package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapLaunchRoles(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
		want  ExternalRole
	}{
		{"instructor uri", []string{"http://purl.imsglobal.org/vocab/lis/v2/membership#Instructor"}, ExternalRoleTeacher},
		{"teacher label", []string{"Teacher"}, ExternalRoleTeacher},
		{"administrator", []string{"http://purl.imsglobal.org/vocab/lis/v2/institution/person#Administrator"}, ExternalRoleAdmin},
		{"content developer", []string{"http://purl.imsglobal.org/vocab/lis/v2/membership#ContentDeveloper"}, ExternalRoleTeacher},
		{"learner", []string{"http://purl.imsglobal.org/vocab/lis/v2/membership#Learner"}, ExternalRoleStudent},
		{"unrecognized", []string{"urn:example:janitor"}, ExternalRoleStudent},
		{"none", nil, ExternalRoleStudent},
		{"admin wins over learner", []string{"Learner", "ADMINISTRATOR"}, ExternalRoleAdmin},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapLaunchRoles(tt.roles)
			assert.Equal(t, tt.want, got)
			// Pure function: same input, same output.
			assert.Equal(t, got, MapLaunchRoles(tt.roles))
		})
	}
}

func TestLocalRoleFor(t *testing.T) {
	assert.Equal(t, LocalRoleStudent, LocalRoleFor(ExternalRoleStudent))
	assert.Equal(t, LocalRoleTeacher, LocalRoleFor(ExternalRoleTeacher))
	assert.Equal(t, LocalRoleAdmin, LocalRoleFor(ExternalRoleAdmin))
	assert.Equal(t, LocalRoleAdmin, LocalRoleFor(ExternalRoleSupervisor))
	assert.Equal(t, LocalRoleStudent, LocalRoleFor(ExternalRole("Janitor")))
}

func TestParseExternalRole(t *testing.T) {
	assert.Equal(t, ExternalRoleStudent, ParseExternalRole("Student"))
	assert.Equal(t, ExternalRoleTeacher, ParseExternalRole(" teacher "))
	assert.Equal(t, ExternalRoleAdmin, ParseExternalRole("ADMIN"))
	assert.Equal(t, ExternalRoleSupervisor, ParseExternalRole("Supervisor"))
	assert.Equal(t, ExternalRoleStudent, ParseExternalRole(""))
}

func TestBearerCredential_NeverPrintsSecret(t *testing.T) {
	c := BearerCredential("ABCDEFGHsecretsecret")
	s := c.String()
	assert.NotContains(t, s, "secretsecret")
	assert.Contains(t, s, "len=20")
	assert.Contains(t, s, `prefix="ABCD"`)
	assert.Len(t, c.Fingerprint(), 12)

	short := BearerCredential("abc")
	assert.NotContains(t, short.String(), "abc\"")
}

func TestProofs(t *testing.T) {
	assert.False(t, (*VerificationResult)(nil).Permits())
	assert.False(t, (&VerificationResult{Enabled: false}).Permits())
	assert.True(t, (&VerificationResult{Enabled: true}).Permits())
	assert.Equal(t, LoginSourceBridge, (&VerificationResult{}).Source())

	assert.False(t, (&LaunchProof{}).Permits())
	assert.True(t, NewLaunchProof("s", "").Permits())
	assert.Equal(t, LoginSourceLaunch, (&LaunchProof{}).Source())
}

func TestLaunchProof_OnlyConstructedProofsPermit(t *testing.T) {
	assert.False(t, NewLaunchProof("", "d-1").Permits(), "no subject")
	assert.False(t, (*LaunchProof)(nil).Permits())

	p := NewLaunchProof("sub-1", "d-1")
	assert.True(t, p.Permits())
	assert.Equal(t, "sub-1", p.Subject())
	assert.Equal(t, "d-1", p.DeploymentID())
}
