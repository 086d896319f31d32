package partner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pilab-dev/partner-sso/domain"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Assignment-and-grade services constants.
const (
	ScoreScope       = "https://purl.imsglobal.org/spec/lti-ags/scope/score"
	ScoreContentType = "application/vnd.ims.lis.v1.score+json"

	clientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"
)

// AssertionSigner signs the private_key_jwt client assertion.
type AssertionSigner interface {
	Sign(claims jwt.Claims) (string, error)
}

// GradeConfig configures score delivery to the Partner.
type GradeConfig struct {
	ClientID string
	// TokenURL is the Partner's OAuth2 token endpoint.
	TokenURL string
	Timeout  time.Duration
}

// GradeClient posts scores to a Partner line item.
type GradeClient struct {
	cfg        GradeConfig
	signer     AssertionSigner
	httpClient *http.Client
	tokens     oauth2.TokenSource
}

// NewGradeClient creates a GradeClient. Access tokens are cached until they expire.
func NewGradeClient(cfg GradeConfig, signer AssertionSigner, httpClient *http.Client) *GradeClient {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	g := &GradeClient{cfg: cfg, signer: signer, httpClient: httpClient}
	g.tokens = oauth2.ReuseTokenSource(nil, &assertionTokenSource{g: g})
	return g
}

// assertionTokenSource fetches a client-credentials token with a freshly signed assertion each time.
type assertionTokenSource struct {
	g *GradeClient
}

func (s *assertionTokenSource) Token() (*oauth2.Token, error) {
	return s.g.fetchToken(context.Background())
}

func (g *GradeClient) fetchToken(ctx context.Context) (*oauth2.Token, error) {
	now := time.Now()
	assertion, err := g.signer.Sign(jwt.RegisteredClaims{
		Issuer:    g.cfg.ClientID,
		Subject:   g.cfg.ClientID,
		Audience:  jwt.ClaimStrings{g.cfg.TokenURL},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
		ID:        uuid.NewString(),
	})
	if err != nil {
		return nil, fmt.Errorf("partner: signing client assertion: %w", err)
	}

	cc := clientcredentials.Config{
		ClientID: g.cfg.ClientID,
		TokenURL: g.cfg.TokenURL,
		Scopes:   []string{ScoreScope},
		EndpointParams: url.Values{
			"client_assertion_type": {clientAssertionType},
			"client_assertion":      {assertion},
		},
		AuthStyle: oauth2.AuthStyleInParams,
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
	tok, err := cc.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("partner: fetching grade token: %w", err)
	}
	return tok, nil
}

// ScoresURL appends /scores to the path of a line item URL, keeping its query.
func ScoresURL(lineItem string) (string, error) {
	u, err := url.Parse(lineItem)
	if err != nil {
		return "", fmt.Errorf("partner: invalid line item url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("partner: line item url %q is not absolute", lineItem)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/scores"
	u.RawPath = ""
	return u.String(), nil
}

// SubmitScore posts a score to lineItem.
func (g *GradeClient) SubmitScore(ctx context.Context, lineItem string, score *domain.GradeSubmission) error {
	target, err := ScoresURL(lineItem)
	if err != nil {
		return err
	}
	body, err := json.Marshal(score)
	if err != nil {
		return fmt.Errorf("partner: encoding score: %w", err)
	}

	tok, err := g.tokens.Token()
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("partner: building score request: %w", err)
	}
	req.Header.Set("Content-Type", ScoreContentType)
	tok.SetAuthHeader(req)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("partner: posting score: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("partner: score rejected: status %d, body: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
