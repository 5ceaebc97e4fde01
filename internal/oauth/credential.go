package oauth

import (
	"fmt"
	"time"

	pkgoauth "github.com/barndoor/barndoor-cli/pkg/oauth"

	"golang.org/x/oauth2"
)

// DefaultExpiryMargin is subtracted from a credential's expiry when
// deciding whether it can still be used. It covers clock skew and the
// time a request spends in flight.
const DefaultExpiryMargin = 60 * time.Second

// DefaultTokenLifetime is assumed when neither the token response nor the
// access token itself carry an expiry.
const DefaultTokenLifetime = time.Hour

// Credential is the cached result of a successful login.
//
// SECURITY: AccessToken, RefreshToken and IDToken are secrets. Credential
// implements fmt.Stringer and fmt.GoStringer without them so that it can
// be passed to loggers safely.
type Credential struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	IDToken      string

	// Issuer identifies the authority that issued the token.
	Issuer string

	// Organization and Subject are read from the access token claims.
	Organization string
	Subject      string

	IssuedAt  time.Time
	ExpiresAt time.Time
}

// IsExpired reports whether the credential expires within margin of now.
func (c *Credential) IsExpired(now time.Time, margin time.Duration) bool {
	if c == nil {
		return true
	}
	return !now.Add(margin).Before(c.ExpiresAt)
}

// HasRefreshToken reports whether the credential can be refreshed.
func (c *Credential) HasRefreshToken() bool {
	return c != nil && c.RefreshToken != ""
}

// String implements fmt.Stringer without exposing token values.
func (c *Credential) String() string {
	if c == nil {
		return "<nil credential>"
	}
	return fmt.Sprintf("Credential{issuer=%s organization=%s expires=%s refresh=%t}",
		c.Issuer, c.Organization, c.ExpiresAt.Format(time.RFC3339), c.HasRefreshToken())
}

// GoString implements fmt.GoStringer for %#v.
func (c *Credential) GoString() string {
	return c.String()
}

// oauth2Token converts the credential for use with an oauth2.TokenSource.
func (c *Credential) oauth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    c.TokenType,
		Expiry:       c.ExpiresAt,
	}
}

// credentialFromToken builds a Credential from a token endpoint response.
// When the response omits expires_in the JWT exp claim is used, and
// failing that the default lifetime, so ExpiresAt is never zero.
// previous supplies the refresh token when the authority does not rotate it.
func credentialFromToken(tok *oauth2.Token, issuer string, now time.Time, previous *Credential) *Credential {
	cred := &Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Issuer:       issuer,
		IssuedAt:     now,
		ExpiresAt:    tok.Expiry,
	}
	if cred.TokenType == "" {
		cred.TokenType = "Bearer"
	}
	if idToken, ok := tok.Extra("id_token").(string); ok {
		cred.IDToken = idToken
	}
	if cred.RefreshToken == "" && previous != nil {
		cred.RefreshToken = previous.RefreshToken
	}

	if claims, err := pkgoauth.ParseClaims(tok.AccessToken); err == nil {
		cred.Organization = claims.Organization
		cred.Subject = claims.Subject
		if cred.ExpiresAt.IsZero() {
			cred.ExpiresAt = claims.ExpiresAt
		}
	}
	if cred.Organization == "" && previous != nil {
		cred.Organization = previous.Organization
	}
	if cred.ExpiresAt.IsZero() {
		cred.ExpiresAt = now.Add(DefaultTokenLifetime)
	}
	return cred
}
