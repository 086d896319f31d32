package lti

import (
	"encoding/json"
	"strings"

	"github.com/pilab-dev/partner-sso/domain"
)

// Claim names under the IMS namespaces.
const (
	ClaimMessageType   = "https://purl.imsglobal.org/spec/lti/claim/message_type"
	ClaimVersion       = "https://purl.imsglobal.org/spec/lti/claim/version"
	ClaimDeploymentID  = "https://purl.imsglobal.org/spec/lti/claim/deployment_id"
	ClaimTargetLinkURI = "https://purl.imsglobal.org/spec/lti/claim/target_link_uri"
	ClaimResourceLink  = "https://purl.imsglobal.org/spec/lti/claim/resource_link"
	ClaimContext       = "https://purl.imsglobal.org/spec/lti/claim/context"
	ClaimRoles         = "https://purl.imsglobal.org/spec/lti/claim/roles"
	ClaimCustom        = "https://purl.imsglobal.org/spec/lti/claim/custom"
	ClaimAGSEndpoint   = "https://purl.imsglobal.org/spec/lti-ags/claim/endpoint"
)

// Message types accepted by the validator.
const (
	MessageResourceLink = "LtiResourceLinkRequest"
	MessageDeepLinking  = "LtiDeepLinkingRequest"
)

type launchClaims struct {
	Issuer            string       `json:"iss"`
	Subject           string       `json:"sub"`
	Audience          audience     `json:"aud"`
	Nonce             string       `json:"nonce"`
	Email             string       `json:"email"`
	PreferredUsername string       `json:"preferred_username"`
	Name              string       `json:"name"`
	GivenName         string       `json:"given_name"`
	FamilyName        string       `json:"family_name"`
	MessageType       string       `json:"https://purl.imsglobal.org/spec/lti/claim/message_type"`
	Version           string       `json:"https://purl.imsglobal.org/spec/lti/claim/version"`
	DeploymentID      string       `json:"https://purl.imsglobal.org/spec/lti/claim/deployment_id"`
	TargetLinkURI     string       `json:"https://purl.imsglobal.org/spec/lti/claim/target_link_uri"`
	ResourceLink      resourceLink `json:"https://purl.imsglobal.org/spec/lti/claim/resource_link"`
	Context           contextClaim `json:"https://purl.imsglobal.org/spec/lti/claim/context"`
	Roles             []string     `json:"https://purl.imsglobal.org/spec/lti/claim/roles"`
	Custom            customClaims `json:"https://purl.imsglobal.org/spec/lti/claim/custom"`
	AGS               *agsClaim    `json:"https://purl.imsglobal.org/spec/lti-ags/claim/endpoint"`
}

type resourceLink struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type contextClaim struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Title string `json:"title"`
}

type agsClaim struct {
	Scope     []string `json:"scope"`
	LineItem  string   `json:"lineitem"`
	LineItems string   `json:"lineitems"`
}

// audience accepts both the string and array forms of "aud".
type audience []string

func (a *audience) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*a = audience{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*a = many
	return nil
}

// customClaims holds the Partner's custom substitution values. Non-string
// values are rendered as JSON text.
type customClaims map[string]string

func (c *customClaims) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(customClaims, len(raw))
	for k, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[k] = s
			continue
		}
		out[k] = string(v)
	}
	*c = out
	return nil
}

// Custom parameter names the Partner substitutes into launches.
const (
	customUserID    = "user_id"
	customSchoolID  = "school_id"
	customStudentID = "student_id"
	customTeacherID = "teacher_id"
	customBirthdate = "birthdate"
)

func (c customClaims) get(key string) string {
	return strings.TrimSpace(c[key])
}

func (lc *launchClaims) displayName() string {
	if n := strings.TrimSpace(lc.Name); n != "" {
		return n
	}
	return strings.TrimSpace(strings.TrimSpace(lc.GivenName) + " " + strings.TrimSpace(lc.FamilyName))
}

// identity builds the ExternalIdentity of the launching user. The Partner's own
// user id, when substituted as a custom parameter, takes precedence over sub so
// both login flows link to the same local account.
func (lc *launchClaims) identity() *domain.ExternalIdentity {
	externalID := lc.Custom.get(customUserID)
	if externalID == "" {
		externalID = strings.TrimSpace(lc.Subject)
	}
	return &domain.ExternalIdentity{
		ExternalUserID: externalID,
		Username:       strings.TrimSpace(lc.PreferredUsername),
		DisplayName:    lc.displayName(),
		Role:           domain.MapLaunchRoles(lc.Roles),
		Birthdate:      lc.Custom.get(customBirthdate),
		SchoolID:       lc.Custom.get(customSchoolID),
		StudentRef:     lc.Custom.get(customStudentID),
		TeacherRef:     lc.Custom.get(customTeacherID),
		Email:          strings.TrimSpace(lc.Email),
	}
}

func (lc *launchClaims) launchContext() domain.LaunchContext {
	ctx := domain.LaunchContext{
		MessageType:   lc.MessageType,
		Version:       lc.Version,
		DeploymentID:  lc.DeploymentID,
		TargetLinkURI: lc.TargetLinkURI,
		ResourceLink:  domain.ResourceLink{ID: lc.ResourceLink.ID, Title: lc.ResourceLink.Title},
		Course:        domain.LaunchCourse{ID: lc.Context.ID, Label: lc.Context.Label, Title: lc.Context.Title},
		Roles:         lc.Roles,
	}
	if lc.AGS != nil {
		ctx.Grades = &domain.GradeEndpoint{
			LineItem:  lc.AGS.LineItem,
			LineItems: lc.AGS.LineItems,
			Scopes:    lc.AGS.Scope,
		}
	}
	return ctx
}
