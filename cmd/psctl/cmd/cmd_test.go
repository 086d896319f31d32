package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	psso "github.com/pilab-dev/partner-sso"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestParseURL(t *testing.T) {
	out, err := run(t, "parse-url", "https://partner.example/login_webview/token:SECRET123/user_id:42/name:Amira%20K/type:Teacher/school_id:7")
	require.NoError(t, err)

	assert.NotContains(t, out, "SECRET123")

	var parsed parsedURL
	require.NoError(t, yaml.Unmarshal([]byte(out), &parsed))
	assert.True(t, parsed.SuccessPage)
	assert.Equal(t, len("SECRET123"), parsed.Credential.Length)
	assert.NotEmpty(t, parsed.Credential.Fingerprint)
	assert.Equal(t, "42", parsed.Identity.ExternalUserID)
	assert.Equal(t, "Amira K", parsed.Identity.DisplayName)
	assert.Equal(t, "7", parsed.Identity.SchoolID)
}

func TestParseURL_NoToken(t *testing.T) {
	_, err := run(t, "parse-url", "https://partner.example/login_webview/user_id:42")
	assert.Error(t, err)
}

func TestJWKS_FetchesRemoteSet(t *testing.T) {
	want := psso.JSONWebKeySet{Keys: []psso.JSONWebKey{{Kid: "k1", Kty: "RSA", Alg: "RS256", Use: "sig", N: "abc", E: "AQAB"}}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(want)
	}))
	defer srv.Close()

	out, err := run(t, "jwks", srv.URL)
	require.NoError(t, err)

	var got psso.JSONWebKeySet
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, want, got)
}

func TestJWKS_RemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := run(t, "jwks", srv.URL)
	assert.ErrorContains(t, err, "status 500")
}
