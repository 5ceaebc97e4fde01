// Package config provides configuration management for the barndoor CLI.
//
// Configuration is layered, later layers winning:
//
//  1. Built-in defaults (GetDefaultConfig)
//  2. config.yaml in the config directory (default ~/.barndoor)
//  3. .env files in the working directory: the profile specific file
//     (.env.dev, .env.development, ...) then .env
//  4. Process environment variables (BARNDOOR_ENV or MODE, AUTH_DOMAIN,
//     AGENT_CLIENT_ID, AGENT_CLIENT_SECRET, API_AUDIENCE, BARNDOOR_API,
//     BARNDOOR_URL, BARNDOOR_TOKEN_PATH)
//  5. Command-line flags, applied by the cmd package
//
// When no client secret is configured, the OS keyring is consulted under
// the service "barndoor" with the client id as the user.
//
// Example config.yaml:
//
//	environment: dev
//	clientId: abc123
//	callbackTimeout: 3m
//	loginLock: true
package config
