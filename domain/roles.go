package domain

import "strings"

// ExternalRole is the role label the Partner assigns to a user.
type ExternalRole string

const (
	ExternalRoleStudent    ExternalRole = "Student"
	ExternalRoleTeacher    ExternalRole = "Teacher"
	ExternalRoleAdmin      ExternalRole = "Admin"
	ExternalRoleSupervisor ExternalRole = "Supervisor"
)

// LocalRole is the platform's own role.
type LocalRole string

const (
	LocalRoleStudent LocalRole = "student"
	LocalRoleTeacher LocalRole = "teacher"
	LocalRoleAdmin   LocalRole = "admin"
)

// ParseExternalRole maps the popup flow's "type" segment (and the verification
// endpoint's role field) to an ExternalRole. Unknown labels default to Student.
func ParseExternalRole(label string) ExternalRole {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "teacher", "instructor":
		return ExternalRoleTeacher
	case "admin", "administrator":
		return ExternalRoleAdmin
	case "supervisor":
		return ExternalRoleSupervisor
	default:
		return ExternalRoleStudent
	}
}

// launchRoleMatchers are checked in order; the first substring hit wins, so a
// user carrying both administrator and learner roles maps to Admin.
var launchRoleMatchers = []struct {
	substr string
	role   ExternalRole
}{
	{"administrator", ExternalRoleAdmin},
	{"instructor", ExternalRoleTeacher},
	{"teacher", ExternalRoleTeacher},
	{"contentdeveloper", ExternalRoleTeacher},
	{"learner", ExternalRoleStudent},
}

// MapLaunchRoles maps LTI role URIs (or bare labels) to an ExternalRole by
// case-insensitive substring match. No match defaults to Student.
func MapLaunchRoles(roles []string) ExternalRole {
	lowered := make([]string, 0, len(roles))
	for _, r := range roles {
		lowered = append(lowered, strings.ToLower(r))
	}
	for _, m := range launchRoleMatchers {
		for _, r := range lowered {
			if strings.Contains(r, m.substr) {
				return m.role
			}
		}
	}
	return ExternalRoleStudent
}

// LocalRoleFor maps an external role to the platform role.
func LocalRoleFor(role ExternalRole) LocalRole {
	switch role {
	case ExternalRoleTeacher:
		return LocalRoleTeacher
	case ExternalRoleAdmin, ExternalRoleSupervisor:
		return LocalRoleAdmin
	default:
		return LocalRoleStudent
	}
}
