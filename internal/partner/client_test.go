package partner_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pilab-dev/partner-sso/domain"
	serrors "github.com/pilab-dev/partner-sso/errors"
	"github.com/pilab-dev/partner-sso/internal/partner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPartnerServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "svc-secret", req["access_token"])
		assert.Equal(t, "ABC123", req["auth_token"])
		assert.Equal(t, "school-platform", req["partner_name"])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func newClient(url string) *partner.Client {
	return partner.NewClient(partner.Config{
		CheckURL:          url,
		ServiceCredential: "svc-secret",
		PartnerName:       "school-platform",
	}, nil)
}

func TestClient_Verify(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantID   string
		wantLTM  bool
		wantRole string
	}{
		{
			name:     "numeric user id",
			body:     `{"success":true,"user_id":42,"enabled":"1","LTM enabled":"1","role":"Student"}`,
			wantID:   "42",
			wantLTM:  true,
			wantRole: "Student",
		},
		{
			name:     "string user id",
			body:     `{"success":"1","user_id":"u-77","enabled":"1","LTM enabled":"0","role":"Teacher"}`,
			wantID:   "u-77",
			wantRole: "Teacher",
		},
		{
			name:   "numeric flags",
			body:   `{"success":1,"user_id":9,"enabled":1,"LTM enabled":0}`,
			wantID: "9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newPartnerServer(t, http.StatusOK, tt.body)

			res, err := newClient(server.URL).Verify(context.Background(), domain.BearerCredential("ABC123"))
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, res.ExternalUserID)
			assert.True(t, res.Enabled)
			assert.True(t, res.Permits())
			assert.Equal(t, tt.wantLTM, res.LTMEnabled)
			assert.Equal(t, tt.wantRole, res.Role)
		})
	}
}

func TestClient_Verify_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"disabled account", http.StatusOK, `{"success":true,"user_id":42,"enabled":"0"}`, serrors.ErrUserDisabled},
		{"missing enabled flag", http.StatusOK, `{"success":true,"user_id":42}`, serrors.ErrUserDisabled},
		{"success false", http.StatusOK, `{"success":false,"user_id":42,"enabled":"1"}`, serrors.ErrVerificationFailed},
		{"no user id", http.StatusOK, `{"success":true,"enabled":"1"}`, serrors.ErrVerificationFailed},
		{"server error", http.StatusInternalServerError, `{"success":true,"user_id":42,"enabled":"1"}`, serrors.ErrVerificationFailed},
		{"unauthorized", http.StatusUnauthorized, `nope`, serrors.ErrVerificationFailed},
		{"garbage body", http.StatusOK, `<html>maintenance</html>`, serrors.ErrVerificationFailed},
		{"object user id", http.StatusOK, `{"success":true,"user_id":{"id":1},"enabled":"1"}`, serrors.ErrVerificationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newPartnerServer(t, tt.status, tt.body)

			res, err := newClient(server.URL).Verify(context.Background(), domain.BearerCredential("ABC123"))
			assert.Nil(t, res)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestClient_Verify_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := newClient(url).Verify(context.Background(), domain.BearerCredential("ABC123"))
	assert.ErrorIs(t, err, serrors.ErrVerificationFailed)
}

func TestClient_Verify_Cancelled(t *testing.T) {
	server := newPartnerServer(t, http.StatusOK, `{}`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newClient(server.URL).Verify(ctx, domain.BearerCredential("ABC123"))
	assert.ErrorIs(t, err, serrors.ErrCancelled)
}
