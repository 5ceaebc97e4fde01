// Package oauth implements the client side of the barndoor login: the
// authorization code flow with PKCE, the local callback listener, the
// single-slot token cache and the lifecycle manager that ties them
// together.
//
// # Components
//
//   - FileStore: the cached credential at ~/.barndoor/token.json, written
//     atomically with 0600 permissions
//   - CallbackListener: binds 127.0.0.1:52765 and accepts exactly one
//     request on /cb
//   - Authenticator: runs one interactive login and refreshes credentials
//   - Manager: EnsureValid returns a cached, refreshed or newly obtained
//     credential
//
// # Usage
//
//	store, _ := oauth.NewFileStore("")
//	auth, err := oauth.NewAuthenticator(oauth.AuthenticatorConfig{
//	    AuthDomain: "auth.barndoor.ai",
//	    ClientID:   clientID,
//	    Audience:   "https://barndoor.ai/",
//	})
//	mgr := oauth.NewManager(store, auth)
//	cred, err := mgr.EnsureValid(ctx)
//
// # Errors
//
// Failures are *AuthError values with a Kind; use errors.Is with the
// sentinels (ErrTimedOut, ErrUserDenied, ...) to branch on them.
//
// # Security
//
// Token values, authorization codes and verifiers are never logged.
// Security relevant events go through logging.Audit.
package oauth
