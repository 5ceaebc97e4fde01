package oauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/barndoor/barndoor-cli/pkg/logging"
)

const (
	// DefaultStoreDir is the directory under the user's home that holds the
	// token record and the optional config file.
	DefaultStoreDir = ".barndoor"

	// DefaultTokenFile is the name of the token record.
	DefaultTokenFile = "token.json"

	// recordVersion is bumped whenever the on-disk layout changes. Records
	// with another version are discarded on load.
	recordVersion = 1
)

// Store persists the single active credential.
type Store interface {
	// Load returns the cached credential. ok is false when there is no
	// usable record; Load never fails.
	Load() (cred *Credential, ok bool)
	// Save atomically replaces the cached record.
	Save(cred *Credential) error
	// Clear removes the record. Clearing a missing record is not an error.
	Clear() error
}

// record is the on-disk layout of the token file.
type record struct {
	Version      int       `json:"version"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	IDToken      string    `json:"id_token,omitempty"`
	Issuer       string    `json:"issuer,omitempty"`
	Organization string    `json:"organization,omitempty"`
	Subject      string    `json:"subject,omitempty"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// FileStore keeps the credential in a single JSON file.
//
// SECURITY:
//   - The file is written with 0600 permissions inside a 0700 directory
//   - Writes go to a temp file in the same directory and are renamed into place
//   - Token values are never logged, only issuer and expiry
type FileStore struct {
	path string
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a store backed by path. An empty path selects
// ~/.barndoor/token.json.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		p, err := DefaultTokenPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return &FileStore{path: path}, nil
}

// DefaultTokenPath returns ~/.barndoor/token.json.
func DefaultTokenPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, DefaultStoreDir, DefaultTokenFile), nil
}

// Path returns the location of the token record.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the token record. A missing or unreadable file yields
// (nil, false). A file that exists but is not a valid record of the
// current version is removed as well.
func (s *FileStore) Load() (*Credential, bool) {
	// #nosec G304 -- path comes from configuration, not from remote input
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logging.Warn("TokenStore", "Token record at %s is unreadable: %v", s.path, err)
		}
		return nil, false
	}

	cred, err := decodeRecord(data)
	if err != nil {
		logging.Warn("TokenStore", "Discarding token record at %s: %v", s.path, err)
		if rmErr := s.remove(); rmErr != nil {
			logging.Warn("TokenStore", "Failed to remove token record at %s: %v", s.path, rmErr)
		}
		return nil, false
	}

	logging.Debug("TokenStore", "Loaded credential from %s (expires %s)", s.path, cred.ExpiresAt.Format(time.RFC3339))
	return cred, true
}

// Save writes cred atomically with owner-only permissions.
func (s *FileStore) Save(cred *Credential) error {
	if cred == nil || cred.AccessToken == "" {
		return newAuthErrorf(KindStoreUnavailable, "store", "refusing to store an empty credential")
	}

	data, err := json.MarshalIndent(record{
		Version:      recordVersion,
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		TokenType:    cred.TokenType,
		IDToken:      cred.IDToken,
		Issuer:       cred.Issuer,
		Organization: cred.Organization,
		Subject:      cred.Subject,
		IssuedAt:     cred.IssuedAt.UTC(),
		ExpiresAt:    cred.ExpiresAt.UTC(),
	}, "", "  ")
	if err != nil {
		return newAuthError(KindStoreUnavailable, "store", fmt.Errorf("failed to marshal credential: %w", err))
	}

	if err := writeFileAtomic(s.path, data); err != nil {
		logging.Audit(logging.AuditEvent{
			Action:  "token_stored",
			Outcome: "failure",
			Issuer:  cred.Issuer,
			Target:  s.path,
			Error:   err.Error(),
		})
		return newAuthError(KindStoreUnavailable, "store", err)
	}

	logging.Audit(logging.AuditEvent{
		Action:          "token_stored",
		Outcome:         "success",
		Issuer:          cred.Issuer,
		Target:          s.path,
		Expiry:          cred.ExpiresAt,
		HasRefreshToken: cred.HasRefreshToken(),
	})
	return nil
}

// Clear removes the token record.
func (s *FileStore) Clear() error {
	if err := s.remove(); err != nil {
		return newAuthError(KindStoreUnavailable, "store", fmt.Errorf("failed to remove token record: %w", err))
	}
	logging.Audit(logging.AuditEvent{
		Action:  "token_cleared",
		Outcome: "success",
		Target:  s.path,
	})
	return nil
}

func (s *FileStore) remove() error {
	err := os.Remove(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func decodeRecord(data []byte) (*Credential, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if r.Version != recordVersion {
		return nil, fmt.Errorf("unsupported record version %d", r.Version)
	}
	if r.AccessToken == "" {
		return nil, errors.New("record has no access token")
	}
	if r.ExpiresAt.IsZero() {
		return nil, errors.New("record has no expiry")
	}

	return &Credential{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    r.TokenType,
		IDToken:      r.IDToken,
		Issuer:       r.Issuer,
		Organization: r.Organization,
		Subject:      r.Subject,
		IssuedAt:     r.IssuedAt,
		ExpiresAt:    r.ExpiresAt,
	}, nil
}

// writeFileAtomic replaces path with data so that readers see either the
// old or the new content, never a partial write.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// No-op after a successful rename.
		_ = os.Remove(tmpName)
	}()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace token record: %w", err)
	}
	return nil
}
