package config

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeyringService is the service name client secrets are stored under.
// The keyring user is the client id.
const KeyringService = "barndoor"

// StoreClientSecret saves the client secret for clientID in the OS keyring.
func StoreClientSecret(clientID, secret string) error {
	if clientID == "" {
		return ErrClientIDRequired
	}
	if err := keyring.Set(KeyringService, clientID, secret); err != nil {
		return fmt.Errorf("failed to store client secret in keyring: %w", err)
	}
	return nil
}

// LoadClientSecret returns the stored client secret for clientID, or ""
// when none is stored.
func LoadClientSecret(clientID string) (string, error) {
	secret, err := keyring.Get(KeyringService, clientID)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read client secret from keyring: %w", err)
	}
	return secret, nil
}

// DeleteClientSecret removes the stored client secret. Removing a missing
// secret is not an error.
func DeleteClientSecret(clientID string) error {
	err := keyring.Delete(KeyringService, clientID)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete client secret from keyring: %w", err)
	}
	return nil
}
