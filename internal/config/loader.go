package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/barndoor/barndoor-cli/internal/environment"
	"github.com/barndoor/barndoor-cli/pkg/logging"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".barndoor"
	configFileName = "config.yaml"
	tokenFileName  = "token.json"
)

// Environment variables read by LoadConfig.
const (
	EnvEnvironment  = "BARNDOOR_ENV"
	EnvMode         = "MODE"
	EnvAuthDomain   = "AUTH_DOMAIN"
	EnvClientID     = "AGENT_CLIENT_ID"
	EnvClientSecret = "AGENT_CLIENT_SECRET"
	EnvAudience     = "API_AUDIENCE"
	EnvAPIOrigin    = "BARNDOOR_API"
	EnvProxyOrigin  = "BARNDOOR_URL"
	EnvTokenPath    = "BARNDOOR_TOKEN_PATH"
	EnvCallbackPort = "BARNDOOR_CALLBACK_PORT"
	EnvLoginLock    = "BARNDOOR_LOGIN_LOCK"
)

// dotEnvFiles lists the .env files tried for each profile, most specific
// first. The legacy names come from the MODE values of older tooling.
var dotEnvFiles = map[string][]string{
	environment.Prod:  {".env.prod", ".env.production"},
	environment.Dev:   {".env.dev", ".env.development"},
	environment.Local: {".env.local", ".env.localdev"},
}

// GetDefaultConfigPath returns ~/.barndoor.
func GetDefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// LoadOptions controls where LoadConfig looks.
type LoadOptions struct {
	// ConfigPath is the directory holding config.yaml. Empty means ~/.barndoor.
	ConfigPath string
	// DotEnvDir is searched for .env files. Empty means the working directory.
	DotEnvDir string
	// SkipKeyring disables the client secret lookup in the OS keyring.
	SkipKeyring bool
	// Environment, when set, wins over every other environment source
	// and selects the profile specific .env file.
	Environment string
}

// LoadConfig builds the configuration from, in increasing precedence:
// defaults, config.yaml, .env files and the process environment.
// Command-line flags are applied by the caller afterwards.
func LoadConfig(opts LoadOptions) (Config, error) {
	configPath := opts.ConfigPath
	if configPath == "" {
		p, err := GetDefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		configPath = p
	}

	config, err := LoadConfigFile(configPath)
	if err != nil {
		return Config{}, err
	}

	env := newEnvLookup(nil)
	dotEnv, err := readDotEnv(opts.DotEnvDir, firstNonEmpty(opts.Environment, env.get(EnvEnvironment), env.get(EnvMode), config.Environment))
	if err != nil {
		return Config{}, err
	}
	env = newEnvLookup(dotEnv)

	if err := applyEnv(&config, env); err != nil {
		return Config{}, err
	}
	if opts.Environment != "" {
		config.Environment = opts.Environment
	}

	if config.ClientSecret == "" && config.ClientID != "" && !opts.SkipKeyring {
		secret, err := LoadClientSecret(config.ClientID)
		if err != nil {
			logging.Debug("ConfigLoader", "Client secret not available from keyring: %v", err)
		} else if secret != "" {
			config.ClientSecret = secret
		}
	}

	return config, nil
}

// LoadConfigFile returns the defaults merged with config.yaml in
// configPath only, ignoring .env files and the environment. Use it to
// edit and save the file without persisting values from other layers.
func LoadConfigFile(configPath string) (Config, error) {
	config := GetDefaultConfig()
	config.configDir = configPath

	configFilePath := filepath.Join(configPath, configFileName)
	// #nosec G304 -- the config path is chosen by the user
	data, err := os.ReadFile(configFilePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logging.Debug("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
	case err != nil:
		logging.Info("ConfigLoader", "Error loading config.yaml from %s: %s", configFilePath, err)
		return Config{}, err
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return Config{}, fmt.Errorf("error loading config from %s: %w", configFilePath, err)
		}
		config.configDir = configPath
		logging.Debug("ConfigLoader", "Loaded configuration from %s", configFilePath)
	}
	return config, nil
}

// envLookup reads the process environment first and the .env values second.
type envLookup struct {
	dotEnv map[string]string
}

func newEnvLookup(dotEnv map[string]string) envLookup {
	return envLookup{dotEnv: dotEnv}
}

func (e envLookup) get(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return e.dotEnv[key]
}

func applyEnv(c *Config, env envLookup) error {
	if v := firstNonEmpty(env.get(EnvEnvironment), env.get(EnvMode)); v != "" {
		c.Environment = v
	}
	setIfPresent(&c.AuthDomain, env.get(EnvAuthDomain))
	setIfPresent(&c.ClientID, env.get(EnvClientID))
	setIfPresent(&c.ClientSecret, env.get(EnvClientSecret))
	setIfPresent(&c.Audience, env.get(EnvAudience))
	setIfPresent(&c.APIOrigin, env.get(EnvAPIOrigin))
	setIfPresent(&c.ProxyOrigin, env.get(EnvProxyOrigin))
	setIfPresent(&c.TokenPath, env.get(EnvTokenPath))

	if v := env.get(EnvCallbackPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvCallbackPort, v, err)
		}
		c.CallbackPort = port
	}
	if v := env.get(EnvLoginLock); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvLoginLock, v, err)
		}
		c.LoginLock = enabled
	}
	return nil
}

// readDotEnv reads the profile specific .env file and the plain .env file
// from dir. Values from the more specific file win.
func readDotEnv(dir, envName string) (map[string]string, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, nil
		}
		dir = wd
	}

	profile, _ := environment.Lookup(envName)
	if profile.Name == "" {
		profile.Name = environment.Default
	}

	candidates := append(append([]string{}, dotEnvFiles[profile.Name]...), ".env")
	var files []string
	for _, name := range candidates {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			files = append(files, path)
		}
	}
	if len(files) == 0 {
		return nil, nil
	}

	merged := make(map[string]string)
	// Read in reverse so the most specific file is applied last.
	for i := len(files) - 1; i >= 0; i-- {
		values, err := godotenv.Read(files[i])
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", files[i], err)
		}
		for k, v := range values {
			merged[k] = v
		}
		logging.Debug("ConfigLoader", "Loaded environment from %s", files[i])
	}
	return merged, nil
}

func setIfPresent(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// SaveConfig writes c to config.yaml in its config directory. The client
// secret is never written; it belongs in the keyring.
func SaveConfig(c Config) error {
	if c.configDir == "" {
		return errors.New("config has no directory")
	}
	if err := os.MkdirAll(c.configDir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	c.ClientSecret = ""
	data, err := yaml.Marshal(&c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	path := filepath.Join(c.configDir, configFileName)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	logging.Info("ConfigLoader", "Saved configuration to %s", path)
	return nil
}

// WithConfigDir returns a copy of c bound to dir.
func (c Config) WithConfigDir(dir string) Config {
	c.configDir = dir
	return c
}

// durationOrDefault is used by callers that accept a zero duration.
func durationOrDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
