// Package partner talks to the Partner platform's server-to-server endpoints.
package partner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pilab-dev/partner-sso/domain"
	serrors "github.com/pilab-dev/partner-sso/errors"
	"github.com/rs/zerolog/log"
)

// maxBodyBytes bounds how much of a Partner response is read.
const maxBodyBytes = 1 << 20

// Config holds the verification endpoint settings.
type Config struct {
	// CheckURL is the Partner's credential verification endpoint.
	CheckURL string
	// ServiceCredential authenticates this platform to the Partner.
	ServiceCredential string
	PartnerName       string
	Timeout           time.Duration
}

// Client is the Verification Client.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a Client. A nil httpClient gets one with cfg.Timeout (10s by default).
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{cfg: cfg, httpClient: httpClient}
}

type verifyRequest struct {
	AccessToken string `json:"access_token"`
	AuthToken   string `json:"auth_token"`
	PartnerName string `json:"partner_name"`
}

type verifyResponse struct {
	Success    flexString `json:"success"`
	UserID     flexString `json:"user_id"`
	Enabled    flexString `json:"enabled"`
	LTMEnabled flexString `json:"LTM enabled"`
	Role       flexString `json:"role"`
}

// Verify asks the Partner whether credential is live and its account enabled.
//
// A non-2xx status, an undecodable body or success=false yields
// VerificationFailed. A verified but disabled account yields UserDisabled;
// the returned error is the only result in that case.
func (c *Client) Verify(ctx context.Context, credential domain.BearerCredential) (*domain.VerificationResult, error) {
	const op = "partner.verify"

	body, err := json.Marshal(verifyRequest{
		AccessToken: c.cfg.ServiceCredential,
		AuthToken:   credential.Reveal(),
		PartnerName: c.cfg.PartnerName,
	})
	if err != nil {
		return nil, serrors.New(serrors.KindInternal, op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.CheckURL, bytes.NewReader(body))
	if err != nil {
		return nil, serrors.New(serrors.KindInternal, op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, serrors.New(serrors.KindCancelled, op, ctx.Err())
		}
		return nil, serrors.New(serrors.KindVerificationFailed, op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, serrors.New(serrors.KindVerificationFailed, op, fmt.Errorf("reading response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Warn().Int("status", resp.StatusCode).Object("credential", credential).Msg("partner rejected verification request")
		return nil, serrors.Newf(serrors.KindVerificationFailed, op, "status %d", resp.StatusCode)
	}

	var vr verifyResponse
	if err := json.Unmarshal(raw, &vr); err != nil {
		return nil, serrors.New(serrors.KindVerificationFailed, op, fmt.Errorf("decoding response: %w", err))
	}
	if !vr.Success.truthy() {
		return nil, serrors.Newf(serrors.KindVerificationFailed, op, "partner reported success=%q", vr.Success)
	}
	if vr.UserID == "" {
		return nil, serrors.Newf(serrors.KindVerificationFailed, op, "response has no user_id")
	}

	result := &domain.VerificationResult{
		ExternalUserID: string(vr.UserID),
		Enabled:        vr.Enabled == "1",
		LTMEnabled:     vr.LTMEnabled == "1",
		Role:           string(vr.Role),
	}
	if !result.Enabled {
		log.Info().Str("external_user_id", result.ExternalUserID).Msg("partner account is disabled")
		return nil, serrors.Newf(serrors.KindUserDisabled, op, "account %s is disabled", result.ExternalUserID)
	}
	return result, nil
}

// flexString accepts a JSON string, number or boolean. The Partner is not
// consistent about quoting ids and flags.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	switch {
	case s == "null":
		*f = ""
	case strings.HasPrefix(s, `"`):
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(v))
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err == nil {
			*f = flexString(n.String())
			return nil
		}
		var v bool
		if err := json.Unmarshal(b, &v); err != nil {
			return fmt.Errorf("partner: unsupported JSON value %s", s)
		}
		*f = flexString(fmt.Sprint(v))
	}
	return nil
}

func (f flexString) truthy() bool {
	switch strings.ToLower(string(f)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
