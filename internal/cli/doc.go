// Package cli holds the presentation layer shared by the barndoor
// commands.
//
// Output helpers render results as kubectl-style tables (go-pretty), JSON
// or YAML. Progress wraps a spinner that follows an interactive login
// through its flow states. The error types carry the guidance printed to
// the user, and TranslateError maps auth and registry failures onto them
// so the root command can pick an exit code.
package cli
