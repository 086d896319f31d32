package domain

import "time"

// UserStatus defines the possible statuses of a user account.
type UserStatus string

const (
	UserStatusActive UserStatus = "ACTIVE"
	UserStatusLocked UserStatus = "LOCKED"
)

// LoginSource records which trust bridge last signed the user in.
type LoginSource string

const (
	LoginSourceBridge LoginSource = "partner_bridge"
	LoginSourceLaunch LoginSource = "lti_launch"
)

// User is the platform's own account, linked to at most one Partner identity.
type User struct {
	ID    string `bson:"_id"`
	Name  string `bson:"name"`
	Email string `bson:"email"`
	// EmailSynthesized marks a placeholder address on the .invalid TLD.
	// It is never used as a contact channel.
	EmailSynthesized bool       `bson:"email_synthesized"`
	Role             LocalRole  `bson:"role"`
	Status           UserStatus `bson:"status"`

	ExternalUserID     string `bson:"external_user_id,omitempty"`
	ExternalUsername   string `bson:"external_username,omitempty"`
	ExternalSchoolID   string `bson:"external_school_id,omitempty"`
	ExternalStudentRef string `bson:"external_student_ref,omitempty"`
	ExternalTeacherRef string `bson:"external_teacher_ref,omitempty"`
	Birthdate          string `bson:"birthdate,omitempty"`

	Enabled    bool `bson:"enabled"`
	LTMEnabled bool `bson:"ltm_enabled"`

	LastLoginSource LoginSource `bson:"last_login_source,omitempty"`
	LastLoginAt     *time.Time  `bson:"last_login_at,omitempty"`
	CreatedAt       time.Time   `bson:"created_at"`
	UpdatedAt       time.Time   `bson:"updated_at"`
}
