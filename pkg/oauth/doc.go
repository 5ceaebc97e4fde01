// Package oauth provides OAuth 2.1 primitives shared by the CLI and by
// programs embedding the barndoor client libraries.
//
// # Core Components
//
//   - PKCE: Proof Key for Code Exchange generation (RFC 7636, S256 only)
//   - State: random state parameter generation
//   - Claims: unverified extraction of access token claims (subject,
//     email, organization, expiry)
//
// # Usage
//
//	pkce, err := oauth.GeneratePKCE()
//	state, err := oauth.GenerateState()
//
//	claims, err := oauth.ParseClaims(accessToken)
//	if errors.Is(err, oauth.ErrNotJWT) {
//	    // opaque token, no claims available
//	}
//
// The flow itself (callback listener, token exchange, caching) lives in
// internal/oauth.
package oauth
