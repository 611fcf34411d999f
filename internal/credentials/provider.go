package credentials

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Qzief/arufkuy-store/internal/config"
)

const (
	GrantType    = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	AssertionTTL = time.Hour

	// refresh cached tokens a bit early so a token never expires mid-chain
	expirySkew = time.Minute
)

type ConfigError = config.ConfigError

// AuthError means the token endpoint did not hand out an access token.
type AuthError struct {
	Status      int
	Code        string
	Description string
}

func (e *AuthError) Error() string {
	msg := e.Description
	if msg == "" {
		msg = e.Code
	}
	if msg == "" {
		msg = "no access_token in response"
	}
	return fmt.Sprintf("credentials: token exchange failed (%d): %s", e.Status, msg)
}

type ServiceAccount struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`

	key *rsa.PrivateKey
}

// ParseServiceAccount decodes the JSON key file blob and its PEM private key.
func ParseServiceAccount(raw string) (ServiceAccount, error) {
	if strings.TrimSpace(raw) == "" {
		return ServiceAccount{}, &ConfigError{Field: "FIREBASE_SERVICE_ACCOUNT", Reason: "not set"}
	}
	var sa ServiceAccount
	if err := json.Unmarshal([]byte(raw), &sa); err != nil {
		return ServiceAccount{}, &ConfigError{Field: "FIREBASE_SERVICE_ACCOUNT", Reason: "invalid JSON: " + err.Error()}
	}
	if sa.ClientEmail == "" {
		return ServiceAccount{}, &ConfigError{Field: "FIREBASE_SERVICE_ACCOUNT", Reason: "client_email missing"}
	}
	// env files often carry the key with escaped newlines
	pem := strings.ReplaceAll(sa.PrivateKey, `\n`, "\n")
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(pem))
	if err != nil {
		return ServiceAccount{}, &ConfigError{Field: "FIREBASE_SERVICE_ACCOUNT", Reason: "private_key: " + err.Error()}
	}
	sa.key = key
	return sa, nil
}

// BuildAssertion signs the RS256 claim set exchanged for an access token.
// It does no I/O.
func BuildAssertion(sa ServiceAccount, audience, scope string, now time.Time) (string, error) {
	if sa.key == nil {
		return "", &ConfigError{Field: "FIREBASE_SERVICE_ACCOUNT", Reason: "private key not loaded"}
	}
	iat := now.Unix()
	claims := jwt.MapClaims{
		"iss":   sa.ClientEmail,
		"sub":   sa.ClientEmail,
		"aud":   audience,
		"iat":   iat,
		"exp":   iat + int64(AssertionTTL/time.Second),
		"scope": scope,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(sa.key)
	if err != nil {
		return "", fmt.Errorf("sign assertion: %w", err)
	}
	return signed, nil
}

type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int64  `json:"expires_in"`
	TokenType        string `json:"token_type"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Exchange posts the assertion to tokenURL as a form-encoded jwt-bearer grant.
func Exchange(ctx context.Context, hc *http.Client, tokenURL, assertion string, now time.Time) (Token, error) {
	form := url.Values{}
	form.Set("grant_type", GrantType)
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, fmt.Errorf("token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := hc.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("token request: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return Token{}, fmt.Errorf("token response: %w", err)
	}
	var tr tokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return Token{}, &AuthError{Status: res.StatusCode, Description: "unreadable response: " + strings.TrimSpace(string(raw))}
	}
	if tr.AccessToken == "" {
		return Token{}, &AuthError{Status: res.StatusCode, Code: tr.Error, Description: tr.ErrorDescription}
	}
	ttl := time.Duration(tr.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = AssertionTTL
	}
	return Token{AccessToken: tr.AccessToken, ExpiresAt: now.Add(ttl)}, nil
}

type Options struct {
	ServiceAccount string
	TokenURL       string
	Scope          string
	// Cache keeps one token for the process until shortly before it expires.
	Cache bool
}

func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		ServiceAccount: cfg.ServiceAccount,
		TokenURL:       cfg.TokenURL,
		Scope:          cfg.TokenScope,
		Cache:          cfg.TokenCache,
	}
}

// Provider turns the service-account secret into bearer tokens. Without
// caching every Token call performs one exchange.
type Provider struct {
	opts Options
	hc   *http.Client
	now  func() time.Time

	mu     sync.Mutex
	cached Token
}

func NewProvider(opts Options, hc *http.Client) *Provider {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Provider{opts: opts, hc: hc, now: time.Now}
}

func (p *Provider) Token(ctx context.Context) (string, error) {
	if p.opts.Cache {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.cached.AccessToken != "" && p.now().Before(p.cached.ExpiresAt.Add(-expirySkew)) {
			return p.cached.AccessToken, nil
		}
	}

	if p.opts.TokenURL == "" {
		return "", &ConfigError{Field: "OAUTH_TOKEN_URL", Reason: "not set"}
	}
	sa, err := ParseServiceAccount(p.opts.ServiceAccount)
	if err != nil {
		return "", err
	}
	now := p.now()
	assertion, err := BuildAssertion(sa, p.opts.TokenURL, p.opts.Scope, now)
	if err != nil {
		return "", err
	}
	tok, err := Exchange(ctx, p.hc, p.opts.TokenURL, assertion, now)
	if err != nil {
		return "", err
	}
	if p.opts.Cache {
		p.cached = tok
	}
	return tok.AccessToken, nil
}
