package oauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNotJWT is returned by ParseClaims when the token is not a JWT.
// Opaque access tokens are valid; callers treat this as "no claims".
var ErrNotJWT = errors.New("token is not a JWT")

// Claims holds the subset of access token claims the CLI uses for display
// and for resolving organization scoped origins.
//
// The claims are read without signature verification. They are only ever
// used as hints; the API verifies the token itself.
type Claims struct {
	Subject      string
	Email        string
	Issuer       string
	Organization string
	ExpiresAt    time.Time
	IssuedAt     time.Time
}

// ParseClaims extracts claims from a JWT access token without validating it.
func ParseClaims(token string) (*Claims, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	parsed, _, err := parser.ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotJWT, err)
	}

	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("failed to extract claims")
	}

	c := &Claims{
		Subject:      stringClaim(mc, "sub"),
		Email:        stringClaim(mc, "email"),
		Issuer:       stringClaim(mc, "iss"),
		Organization: organizationClaim(mc),
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		c.IssuedAt = iat.Time
	}
	return c, nil
}

// organizationClaim prefers user.organization_name, then the flat org_id
// and org claims.
func organizationClaim(mc jwt.MapClaims) string {
	if user, ok := mc["user"].(map[string]interface{}); ok {
		if name, ok := user["organization_name"].(string); ok && name != "" {
			return name
		}
	}
	if v := stringClaim(mc, "org_id"); v != "" {
		return v
	}
	return stringClaim(mc, "org")
}

func stringClaim(mc jwt.MapClaims, key string) string {
	v, _ := mc[key].(string)
	return v
}
