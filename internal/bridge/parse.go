package bridge

import (
	"net/url"
	"strings"

	"github.com/pilab-dev/partner-sso/domain"
	serrors "github.com/pilab-dev/partner-sso/errors"
)

// DefaultSuccessMarker is the path fragment of the Partner page that carries the credential.
const DefaultSuccessMarker = "/login_webview/"

// Path segment keys of the success URL.
const (
	segToken     = "token"
	segUserID    = "user_id"
	segName      = "name"
	segType      = "type"
	segUsername  = "username"
	segBirthdate = "birthdate"
	segTeacherID = "teacher_id"
	segStudentID = "student_id"
	segSchoolID  = "school_id"
)

// IsSuccessURL reports whether raw looks like the Partner's success page.
func IsSuccessURL(raw, marker string) bool {
	if marker == "" {
		marker = DefaultSuccessMarker
	}
	p := rawPath(raw)
	return strings.Contains(p, marker) && strings.Contains(p, "/"+segToken+":")
}

// ParseSuccessURL extracts the bearer credential and identity fields from the
// ordered key:value path segments of the Partner's success URL, e.g.
//
//	https://partner.example/login_webview/token:ABC123/user_id:42/name:Amira/type:Student
func ParseSuccessURL(raw string) (domain.BearerCredential, *domain.ExternalIdentity, error) {
	fields := segmentFields(rawPath(raw))

	token := fields[segToken]
	if token == "" {
		return "", nil, serrors.Newf(serrors.KindParseFailure, "bridge.parse", "no %s segment", segToken)
	}
	userID := fields[segUserID]
	if userID == "" {
		return "", nil, serrors.Newf(serrors.KindParseFailure, "bridge.parse", "no %s segment", segUserID)
	}

	identity := &domain.ExternalIdentity{
		ExternalUserID: userID,
		Username:       fields[segUsername],
		DisplayName:    fields[segName],
		Role:           domain.ParseExternalRole(fields[segType]),
		Birthdate:      fields[segBirthdate],
		SchoolID:       fields[segSchoolID],
		StudentRef:     fields[segStudentID],
		TeacherRef:     fields[segTeacherID],
	}
	return domain.BearerCredential(token), identity, nil
}

// rawPath returns the still-escaped path of raw. It avoids url.Parse, which
// rejects the whole URL over one malformed escape in any segment.
func rawPath(raw string) string {
	raw, _, _ = strings.Cut(raw, "#")
	raw, _, _ = strings.Cut(raw, "?")
	if _, rest, ok := strings.Cut(raw, "://"); ok {
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			return rest[i:]
		}
		return ""
	}
	return raw
}

// segmentFields collects key:value segments. The first occurrence of a key wins;
// values are percent-decoded (raw on failure) and whitespace-only values are dropped.
func segmentFields(escapedPath string) map[string]string {
	fields := make(map[string]string)
	for _, seg := range strings.Split(escapedPath, "/") {
		key, value, ok := strings.Cut(seg, ":")
		if !ok || key == "" {
			continue
		}
		key = strings.ToLower(decodeSegment(key))
		if _, seen := fields[key]; seen {
			continue
		}
		if v := strings.TrimSpace(decodeSegment(value)); v != "" {
			fields[key] = v
		} else {
			// Remember the key so a later duplicate cannot fill it in.
			fields[key] = ""
		}
	}
	return fields
}

func decodeSegment(s string) string {
	if d, err := url.PathUnescape(s); err == nil {
		return d
	}
	return s
}
