// Package identity resolves the username behind an inbound request. It
// only verifies identities issued elsewhere; it never issues them.
package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Verification modes
const (
	ModeHeader = "header"
	ModeJWT    = "jwt"
)

// DefaultHeader carries the username in header mode
const DefaultHeader = "X-Player-Username"

// accessTokenParam carries a bearer token for clients that cannot set
// headers, such as browser WebSocket and EventSource
const accessTokenParam = "access_token"

var (
	// ErrNoIdentity means the request carried no identity at all
	ErrNoIdentity = errors.New("no identity supplied")
	// ErrInvalidToken means an identity was supplied but failed verification
	ErrInvalidToken = errors.New("invalid identity token")
)

// Verifier resolves the caller's username from a request
type Verifier interface {
	Verify(r *http.Request) (string, error)
}

// Config selects and configures a Verifier
type Config struct {
	Mode   string
	Header string
	// Secret is the HS256 signing key for jwt mode
	Secret string
	// Issuer, when set, must match the token's iss claim
	Issuer string
}

// New builds the Verifier described by cfg
func New(cfg Config) (Verifier, error) {
	switch cfg.Mode {
	case "", ModeHeader:
		return NewHeaderVerifier(cfg.Header), nil
	case ModeJWT:
		if cfg.Secret == "" {
			return nil, errors.New("jwt identity mode requires a secret")
		}
		return NewJWTVerifier([]byte(cfg.Secret), cfg.Issuer), nil
	default:
		return nil, fmt.Errorf("unknown identity mode %q: must be %q or %q", cfg.Mode, ModeHeader, ModeJWT)
	}
}

// HeaderVerifier trusts a header set by an authenticating proxy
type HeaderVerifier struct {
	header string
}

// NewHeaderVerifier reads the username from header, or DefaultHeader
func NewHeaderVerifier(header string) *HeaderVerifier {
	if header == "" {
		header = DefaultHeader
	}
	return &HeaderVerifier{header: header}
}

func (v *HeaderVerifier) Verify(r *http.Request) (string, error) {
	username := strings.TrimSpace(r.Header.Get(v.header))
	if username == "" {
		return "", ErrNoIdentity
	}
	return username, nil
}

// JWTVerifier checks HS256 tokens whose subject is the username
type JWTVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewJWTVerifier creates a verifier for tokens signed with secret
func NewJWTVerifier(secret []byte, issuer string) *JWTVerifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &JWTVerifier{secret: secret, parser: jwt.NewParser(opts...)}
}

func (v *JWTVerifier) Verify(r *http.Request) (string, error) {
	raw := bearerToken(r)
	if raw == "" {
		return "", ErrNoIdentity
	}

	var claims jwt.RegisteredClaims
	_, err := v.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}

func bearerToken(r *http.Request) string {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return r.URL.Query().Get(accessTokenParam)
}
