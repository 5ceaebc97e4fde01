// Package logging provides structured, subsystem-tagged logging for the
// barndoor CLI and its libraries.
//
// It is built on Go's standard slog package. Every entry carries a
// subsystem attribute so output can be filtered per component:
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//
//	logging.Info("TokenStore", "Loaded credential from %s", path)
//	logging.Debug("Config", "Using environment %s", env)
//	logging.Error("Authenticator", err, "Code exchange failed")
//
// # Audit Logging
//
// Security-relevant operations on the local credential are reported with
// Audit:
//
//	logging.Audit(logging.AuditEvent{
//	    Action:  "token_stored",
//	    Outcome: "success",
//	    Issuer:  cred.Issuer,
//	    Expiry:  cred.ExpiresAt,
//	})
//
// Audit events are logged at INFO level with an [AUDIT] prefix. They never
// contain token values; use Redact when a secret must be shown to a user.
package logging
