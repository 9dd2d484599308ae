package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// ErrNotConfigured is returned when no auth base URL is set.
var ErrNotConfigured = errors.New("NEON_AUTH_BASE_URL is not set")

// Verifier validates Neon Auth JWTs against the provider's JWKS. The key set is fetched once
// and refreshed in the background by keyfunc.
type Verifier struct {
	issuer  string
	keys    keyfunc.Keyfunc
	methods []string
}

// NewVerifier builds a Verifier for baseURL (e.g. from NEON_AUTH_BASE_URL). The JWKS is read
// from baseURL + "/.well-known/jwks.json"; the expected issuer is the scheme and host of baseURL.
func NewVerifier(ctx context.Context, baseURL string) (*Verifier, error) {
	if baseURL == "" {
		return nil, ErrNotConfigured
	}
	issuer, err := issuerOf(baseURL)
	if err != nil {
		return nil, err
	}
	keys, err := keyfunc.NewDefaultCtx(ctx, []string{strings.TrimSuffix(baseURL, "/") + "/.well-known/jwks.json"})
	if err != nil {
		return nil, err
	}
	return &Verifier{issuer: issuer, keys: keys, methods: []string{"EdDSA"}}, nil
}

func issuerOf(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid base URL %q", baseURL)
	}
	return u.Scheme + "://" + u.Host, nil
}

// Validate parses tokenString and returns its claims.
func (v *Verifier) Validate(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, v.keys.Keyfunc,
		jwt.WithIssuer(v.issuer),
		jwt.WithValidMethods(v.methods))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// FirstNameFromClaims returns the first word of the "name" claim, or a fallback.
func FirstNameFromClaims(claims jwt.MapClaims) string {
	name, _ := claims["name"].(string)
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "Player"
	}
	return parts[0]
}

// UserIDFromClaims returns the user id from claims ("sub" or "id").
func UserIDFromClaims(claims jwt.MapClaims) string {
	if sub, ok := claims["sub"].(string); ok && sub != "" {
		return sub
	}
	if id, ok := claims["id"].(string); ok && id != "" {
		return id
	}
	return ""
}
