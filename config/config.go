package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. PSSO_PARTNER_CHECK_URL.
const EnvPrefix = "PSSO"

// ServerConfig holds all configuration for the server.
// Tags use mapstructure for Viper unmarshalling.
type ServerConfig struct {
	// Environment is "production" or "development".
	Environment string        `mapstructure:"environment"`
	HTTP        HTTPConfig    `mapstructure:"http"`
	Mongo       MongoConfig   `mapstructure:"mongo"`
	Redis       RedisConfig   `mapstructure:"redis"`
	Log         LogConfig     `mapstructure:"log"`
	Tracing     TracingConfig `mapstructure:"tracing"`
	Partner     PartnerConfig `mapstructure:"partner"`
	Bridge      BridgeConfig  `mapstructure:"bridge"`
	LTI         LTIConfig     `mapstructure:"lti"`
	Session     SessionConfig `mapstructure:"session"`
	Keys        KeysConfig    `mapstructure:"keys"`
	Grades      GradesConfig  `mapstructure:"grades"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
	// PublicOrigin is this platform's origin; the watcher script posts messages to it.
	PublicOrigin    string        `mapstructure:"public_origin"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// H2C accepts cleartext HTTP/2 from a TLS-terminating proxy.
	H2C bool `mapstructure:"h2c"`
}

type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

// RedisConfig enables the shared launch state store. An empty Addr keeps launch
// state in process memory.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

type PartnerConfig struct {
	Name string `mapstructure:"name"`
	// LoginURL is the page the popup opens.
	LoginURL string `mapstructure:"login_url"`
	// CheckURL is the server-to-server verification endpoint.
	CheckURL          string        `mapstructure:"check_url"`
	ServiceCredential string        `mapstructure:"service_credential"`
	Origin            string        `mapstructure:"origin"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

type BridgeConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	MaxTicks     int           `mapstructure:"max_ticks"`
	PopupGrace   time.Duration `mapstructure:"popup_grace"`
	Width        int           `mapstructure:"width"`
	Height       int           `mapstructure:"height"`
	ScreenWidth  int           `mapstructure:"screen_width"`
	ScreenHeight int           `mapstructure:"screen_height"`
	AttemptTTL   time.Duration `mapstructure:"attempt_ttl"`
}

type LTIConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Issuer       string `mapstructure:"issuer"`
	ClientID     string `mapstructure:"client_id"`
	DeploymentID string `mapstructure:"deployment_id"`
	AuthURL      string `mapstructure:"auth_url"`
	JWKSURL      string `mapstructure:"jwks_url"`
	// TokenURL is the Partner's OAuth2 token endpoint used for grade passback.
	TokenURL    string        `mapstructure:"token_url"`
	RedirectURI string        `mapstructure:"redirect_uri"`
	Posture     string        `mapstructure:"posture"`
	StateTTL    time.Duration `mapstructure:"state_ttl"`
}

type SessionConfig struct {
	// Minter is "local" (RS256 tokens signed here) or "remote".
	Minter        string        `mapstructure:"minter"`
	Issuer        string        `mapstructure:"issuer"`
	TTL           time.Duration `mapstructure:"ttl"`
	RemoteMintURL string        `mapstructure:"remote_mint_url"`
}

type KeysConfig struct {
	Rotation       time.Duration `mapstructure:"rotation"`
	PrivateKeyFile string        `mapstructure:"private_key_file"`
	KeyID          string        `mapstructure:"key_id"`
}

type GradesConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	TargetTTL time.Duration `mapstructure:"target_ttl"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.public_origin", "http://localhost:8080")
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("http.h2c", false)

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "partner_sso")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "psso")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "partner-sso")
	v.SetDefault("tracing.sample_ratio", 1.0)

	v.SetDefault("partner.name", "classera")
	v.SetDefault("partner.login_url", "")
	v.SetDefault("partner.check_url", "")
	v.SetDefault("partner.service_credential", "")
	v.SetDefault("partner.origin", "")
	v.SetDefault("partner.timeout", 10*time.Second)

	v.SetDefault("bridge.interval", 500*time.Millisecond)
	v.SetDefault("bridge.max_ticks", 300)
	v.SetDefault("bridge.popup_grace", time.Second)
	v.SetDefault("bridge.width", 500)
	v.SetDefault("bridge.height", 600)
	v.SetDefault("bridge.screen_width", 1366)
	v.SetDefault("bridge.screen_height", 768)
	v.SetDefault("bridge.attempt_ttl", 5*time.Minute)

	v.SetDefault("lti.enabled", false)
	v.SetDefault("lti.issuer", "")
	v.SetDefault("lti.client_id", "")
	v.SetDefault("lti.deployment_id", "")
	v.SetDefault("lti.auth_url", "")
	v.SetDefault("lti.jwks_url", "")
	v.SetDefault("lti.token_url", "")
	v.SetDefault("lti.redirect_uri", "")
	v.SetDefault("lti.posture", "production")
	v.SetDefault("lti.state_ttl", 10*time.Minute)

	v.SetDefault("session.minter", "local")
	v.SetDefault("session.issuer", "http://localhost:8080")
	v.SetDefault("session.ttl", 8*time.Hour)
	v.SetDefault("session.remote_mint_url", "")

	v.SetDefault("keys.rotation", 24*time.Hour)
	v.SetDefault("keys.private_key_file", "")
	v.SetDefault("keys.key_id", "")

	v.SetDefault("grades.enabled", false)
	v.SetDefault("grades.target_ttl", 8*time.Hour)
	v.SetDefault("grades.timeout", 10*time.Second)
}

// LoadConfig reads configuration from .env files, the config file,
// environment variables and defaults, in increasing order of precedence
// for the latter three. envFiles default to ".env".
func LoadConfig(envFiles ...string) (*ServerConfig, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("error loading %s: %w", f, err)
		}
	}

	v := viper.New()

	v.SetConfigName("partner_sso")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/partner-sso/")
	v.AddConfigPath("$HOME/.partner-sso")

	// PSSO_PARTNER_CHECK_URL -> partner.check_url
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// ConfigFileNotFoundError is acceptable, means we use defaults/env vars.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsProduction reports whether the server runs in the production environment.
func (c *ServerConfig) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Validate reports missing or contradictory settings.
func (c *ServerConfig) Validate() error {
	var errs []error

	if c.Partner.LoginURL == "" {
		errs = append(errs, errors.New("partner.login_url is required"))
	}
	if c.Partner.CheckURL == "" {
		errs = append(errs, errors.New("partner.check_url is required"))
	}
	if c.IsProduction() && c.Partner.Origin == "" {
		errs = append(errs, errors.New("partner.origin is required in production"))
	}

	switch c.Session.Minter {
	case "local":
	case "remote":
		if c.Session.RemoteMintURL == "" {
			errs = append(errs, errors.New("session.remote_mint_url is required for the remote minter"))
		}
	default:
		errs = append(errs, fmt.Errorf("session.minter must be local or remote, got %q", c.Session.Minter))
	}

	if c.LTI.Enabled {
		for key, val := range map[string]string{
			"lti.issuer":        c.LTI.Issuer,
			"lti.client_id":     c.LTI.ClientID,
			"lti.deployment_id": c.LTI.DeploymentID,
			"lti.auth_url":      c.LTI.AuthURL,
			"lti.redirect_uri":  c.LTI.RedirectURI,
		} {
			if val == "" {
				errs = append(errs, fmt.Errorf("%s is required when lti.enabled", key))
			}
		}
		if c.Grades.Enabled && c.LTI.TokenURL == "" {
			errs = append(errs, errors.New("lti.token_url is required for grade passback"))
		}
	} else if c.Grades.Enabled {
		errs = append(errs, errors.New("grades.enabled requires lti.enabled"))
	}

	return errors.Join(errs...)
}
