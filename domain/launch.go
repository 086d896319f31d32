package domain

import "time"

// LaunchState is generated when a launch is initiated and must be echoed back
// by the Partner. It lives for one round trip.
type LaunchState struct {
	State        string    `json:"state"`
	Nonce        string    `json:"nonce"`
	IssuedAt     time.Time `json:"issued_at"`
	ReturnTarget string    `json:"return_target,omitempty"`
	LoginHint    string    `json:"login_hint,omitempty"`
}

// ResourceLink identifies the placement the user launched from.
type ResourceLink struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}

// LaunchCourse is the LTI context (course/section) of a launch.
type LaunchCourse struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
	Title string `json:"title,omitempty"`
}

// GradeEndpoint is the assignment-and-grade-services claim.
type GradeEndpoint struct {
	LineItem  string   `json:"lineitem,omitempty"`
	LineItems string   `json:"lineitems,omitempty"`
	Scopes    []string `json:"scope,omitempty"`
}

// LaunchContext is the message-type/context metadata of a validated launch.
type LaunchContext struct {
	MessageType   string         `json:"message_type"`
	Version       string         `json:"version,omitempty"`
	DeploymentID  string         `json:"deployment_id"`
	TargetLinkURI string         `json:"target_link_uri,omitempty"`
	ResourceLink  ResourceLink   `json:"resource_link"`
	Course        LaunchCourse   `json:"context"`
	Roles         []string       `json:"roles,omitempty"`
	Grades        *GradeEndpoint `json:"grades,omitempty"`
}
