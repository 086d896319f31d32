package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

const sampleYAML = `
environment: production
http:
  public_origin: https://platform.example
partner:
  login_url: https://partner.example/login
  check_url: https://partner.example/api/check
  origin: https://partner.example
bridge:
  interval: 250ms
lti:
  enabled: true
  issuer: https://partner.example
  client_id: client-1
  deployment_id: dep-1
  auth_url: https://partner.example/auth
  redirect_uri: https://platform.example/lti/launch
`

func TestLoadConfig_FileEnvAndDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "partner_sso.yaml"), []byte(sampleYAML), 0o600))
	chdir(t, dir)
	t.Setenv("PSSO_PARTNER_SERVICE_CREDENTIAL", "s3cret")
	t.Setenv("PSSO_BRIDGE_MAX_TICKS", "42")

	cfg, err := LoadConfig(filepath.Join(dir, "missing.env"))
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "https://partner.example/api/check", cfg.Partner.CheckURL)
	assert.Equal(t, "s3cret", cfg.Partner.ServiceCredential, "env overrides")
	assert.Equal(t, 42, cfg.Bridge.MaxTicks)
	assert.Equal(t, 250*time.Millisecond, cfg.Bridge.Interval)

	// Defaults
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 600, cfg.Bridge.Height)
	assert.Equal(t, "production", cfg.LTI.Posture)
	assert.Equal(t, 10*time.Minute, cfg.LTI.StateTTL)
	assert.Equal(t, "local", cfg.Session.Minter)
	assert.Equal(t, 8*time.Hour, cfg.Session.TTL)
}

func TestLoadConfig_DotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"PSSO_PARTNER_LOGIN_URL=https://partner.example/login\nPSSO_PARTNER_CHECK_URL=https://partner.example/check\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv("PSSO_PARTNER_LOGIN_URL")
		_ = os.Unsetenv("PSSO_PARTNER_CHECK_URL")
	})

	cfg, err := LoadConfig(envFile)
	require.NoError(t, err)
	assert.Equal(t, "https://partner.example/check", cfg.Partner.CheckURL)
	assert.False(t, cfg.IsProduction())
}

func TestValidate(t *testing.T) {
	valid := func() ServerConfig {
		return ServerConfig{
			Environment: "development",
			Partner:     PartnerConfig{LoginURL: "https://p/login", CheckURL: "https://p/check"},
			Session:     SessionConfig{Minter: "local"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*ServerConfig)
		wantErr string
	}{
		{"valid", func(*ServerConfig) {}, ""},
		{"missing check url", func(c *ServerConfig) { c.Partner.CheckURL = "" }, "partner.check_url"},
		{"production needs origin", func(c *ServerConfig) { c.Environment = "production" }, "partner.origin"},
		{"remote minter needs url", func(c *ServerConfig) { c.Session.Minter = "remote" }, "remote_mint_url"},
		{"unknown minter", func(c *ServerConfig) { c.Session.Minter = "magic" }, "local or remote"},
		{"lti needs registration", func(c *ServerConfig) { c.LTI.Enabled = true }, "lti.client_id"},
		{"grades need lti", func(c *ServerConfig) { c.Grades.Enabled = true }, "requires lti.enabled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
