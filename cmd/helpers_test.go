package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/barndoor/barndoor-cli/internal/config"
	"github.com/barndoor/barndoor-cli/internal/oauth"

	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

// testEnv isolates a command run from the host: every configuration
// variable is blanked, the keyring is mocked and the config directory
// is a temp dir.
type testEnv struct {
	configDir string
	tokenPath string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	keyring.MockInit()
	for _, key := range []string{
		config.EnvEnvironment, config.EnvMode, config.EnvAuthDomain, config.EnvClientID,
		config.EnvClientSecret, config.EnvAudience, config.EnvAPIOrigin, config.EnvProxyOrigin,
		config.EnvCallbackPort, config.EnvLoginLock, envLogLevel,
	} {
		t.Setenv(key, "")
	}
	dir := t.TempDir()
	env := &testEnv{configDir: dir, tokenPath: filepath.Join(dir, "token.json")}
	t.Setenv(config.EnvTokenPath, env.tokenPath)
	return env
}

// saveCredential caches a credential that expires after ttl.
func (e *testEnv) saveCredential(t *testing.T, ttl time.Duration) *oauth.Credential {
	t.Helper()
	store, err := oauth.NewFileStore(e.tokenPath)
	require.NoError(t, err)
	now := time.Now().UTC().Truncate(time.Second)
	cred := &oauth.Credential{
		AccessToken:  "cached-access-token",
		RefreshToken: "cached-refresh-token",
		TokenType:    "Bearer",
		Issuer:       "https://auth.barndoor.ai/",
		Organization: "acme",
		Subject:      "auth0|42",
		IssuedAt:     now,
		ExpiresAt:    now.Add(ttl),
	}
	require.NoError(t, store.Save(cred))
	return cred
}

// run executes a fresh command tree with args and returns stdout and stderr.
func (e *testEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config-path", e.configDir}, args...))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}
