// Package auth acquires bearer tokens for the IRI API.
//
// The request path only ever sees the resulting token string; nothing here
// refreshes tokens or tracks expiry.
package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"iriclient/pkg/backoff"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// DefaultTokenURL is the NERSC OIDC token endpoint.
const DefaultTokenURL = "https://oidc.nersc.gov/c2id/token"

const (
	assertionType    = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"
	defaultAssertTTL = 5 * time.Minute
)

// TokenSource produces a bearer token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Static is a fixed token. The empty Static means "no credential".
type Static string

func (s Static) Token(context.Context) (string, error) {
	return string(s), nil
}

// PrivateKeyJWT obtains tokens with the OAuth2 client credentials grant,
// authenticating the client with a signed JWT assertion (RFC 7523).
type PrivateKeyJWT struct {
	ClientID string
	TokenURL string
	Scopes   []string
	Key      *rsa.PrivateKey
	KeyID    string        // optional "kid" header
	TTL      time.Duration // assertion lifetime, default 5m

	HTTPClient *http.Client    // default http.DefaultClient
	Retry      *backoff.Config // token endpoint retries, default 3 attempts

	now func() time.Time
}

// Files locates the credentials on disk.
type Files struct {
	ClientIDFile   string
	PrivateKeyFile string
	TokenURL       string
	Scope          string // space separated
}

// LoadPrivateKeyJWT reads the client id and PEM encoded RSA key named by f.
func LoadPrivateKeyJWT(f Files) (*PrivateKeyJWT, error) {
	idBytes, err := os.ReadFile(f.ClientIDFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read client id: %w", err)
	}
	clientID := strings.TrimSpace(string(idBytes))
	if clientID == "" {
		return nil, fmt.Errorf("client id file %s is empty", f.ClientIDFile)
	}

	pemBytes, err := os.ReadFile(f.PrivateKeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key %s: %w", f.PrivateKeyFile, err)
	}

	tokenURL := f.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	return &PrivateKeyJWT{
		ClientID: clientID,
		TokenURL: tokenURL,
		Scopes:   strings.Fields(f.Scope),
		Key:      key,
	}, nil
}

// Assertion builds and signs the client assertion. The issuer and subject
// are the client id and the audience is the token endpoint.
func (p *PrivateKeyJWT) Assertion() (string, error) {
	if p.Key == nil {
		return "", errors.New("private key is required")
	}
	now := time.Now
	if p.now != nil {
		now = p.now
	}
	ttl := p.TTL
	if ttl <= 0 {
		ttl = defaultAssertTTL
	}

	issued := now()
	claims := jwt.RegisteredClaims{
		Issuer:    p.ClientID,
		Subject:   p.ClientID,
		Audience:  jwt.ClaimStrings{p.TokenURL},
		IssuedAt:  jwt.NewNumericDate(issued),
		ExpiresAt: jwt.NewNumericDate(issued.Add(ttl)),
		ID:        uuid.NewString(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if p.KeyID != "" {
		token.Header["kid"] = p.KeyID
	}
	signed, err := token.SignedString(p.Key)
	if err != nil {
		return "", fmt.Errorf("failed to sign client assertion: %w", err)
	}
	return signed, nil
}

// Exchange performs the client credentials grant and returns the full token
// response. Each attempt uses a fresh assertion. Rejections by the token
// endpoint (4xx) are not retried.
func (p *PrivateKeyJWT) Exchange(ctx context.Context) (*oauth2.Token, error) {
	if p.ClientID == "" || p.TokenURL == "" {
		return nil, errors.New("client id and token URL are required")
	}
	if p.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.HTTPClient)
	}

	var tok *oauth2.Token
	err := backoff.Retry(ctx, p.Retry, func(ctx context.Context) error {
		assertion, err := p.Assertion()
		if err != nil {
			return backoff.Permanent(err)
		}
		cfg := clientcredentials.Config{
			ClientID:  p.ClientID,
			TokenURL:  p.TokenURL,
			Scopes:    p.Scopes,
			AuthStyle: oauth2.AuthStyleInParams,
			EndpointParams: url.Values{
				"client_assertion_type": {assertionType},
				"client_assertion":      {assertion},
			},
		}
		tok, err = cfg.Token(ctx)
		if err != nil && isRejected(err) {
			return backoff.Permanent(err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("token request to %s failed: %w", p.TokenURL, err)
	}
	return tok, nil
}

// Token returns a fresh access token.
func (p *PrivateKeyJWT) Token(ctx context.Context) (string, error) {
	tok, err := p.Exchange(ctx)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// Describe flattens a token response for display.
func Describe(tok *oauth2.Token) map[string]any {
	out := map[string]any{
		"access_token": tok.AccessToken,
		"token_type":   tok.Type(),
	}
	if !tok.Expiry.IsZero() {
		out["expires_at"] = tok.Expiry.UTC().Format(time.RFC3339)
	}
	if tok.ExpiresIn > 0 {
		out["expires_in"] = tok.ExpiresIn
	}
	for _, key := range []string{"scope", "id_token"} {
		if v := tok.Extra(key); v != nil && v != "" {
			out[key] = v
		}
	}
	return out
}

func isRejected(err error) bool {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return re.Response.StatusCode >= 400 && re.Response.StatusCode < 500
	}
	return false
}

var (
	_ TokenSource = Static("")
	_ TokenSource = (*PrivateKeyJWT)(nil)
)
