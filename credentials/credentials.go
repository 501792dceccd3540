// Package credentials stores the API token used by the gRPC candidate
// fetcher. Tokens live in the system keyring, one entry per server:
// - macOS: Keychain
// - Windows: Credential Manager
// - Linux: Secret Service (libsecret)
//
// When the keyring is unavailable and MENTIONKIT_TOKEN_PASSPHRASE is set,
// tokens go to an encrypted file in the config directory instead.
//
// For CI and scripts, MENTIONKIT_API_TOKEN overrides whatever is stored.
package credentials

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

const (
	// DefaultService is the service name used in the system keyring.
	DefaultService = "mentionkit"

	// EnvToken overrides the stored token when set.
	EnvToken = "MENTIONKIT_API_TOKEN"
)

// Source reports where an active token came from.
type Source string

const (
	SourceEnv     Source = "env"
	SourceKeyring Source = "keyring"
	SourceFile    Source = "file"
)

var (
	// ErrNoCredentials is returned when no token is stored for a server.
	ErrNoCredentials = errors.New("no credentials stored")
	// ErrKeyringUnavailable indicates the system keyring is not available.
	ErrKeyringUnavailable = errors.New("system keyring unavailable")
	// ErrEmptyToken is returned when saving a blank token.
	ErrEmptyToken = errors.New("token is empty")
)

// Credential is the token in effect for a server.
type Credential struct {
	Server string `json:"server" yaml:"server"`
	Token  string `json:"-" yaml:"-"`
	Source Source `json:"source" yaml:"source"`
}

// Store keeps one token per server address in the system keyring.
type Store struct {
	service  string
	fallback *FileVault
	mu       sync.Mutex
}

// NewStore creates a Store using DefaultService, falling back to the file
// vault when MENTIONKIT_TOKEN_PASSPHRASE is set.
func NewStore() *Store {
	return NewStoreWithService(DefaultService).WithFallback(VaultFromEnv())
}

// WithFallback sets the vault used when the keyring fails. nil disables it.
func (s *Store) WithFallback(v *FileVault) *Store {
	s.fallback = v
	return s
}

// NewStoreWithService creates a Store under a custom keyring service name.
func NewStoreWithService(service string) *Store {
	return &Store{service: service}
}

// Save stores token for server, replacing any previous one.
func (s *Store) Save(server, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrEmptyToken
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := keyring.Set(s.service, server, token); err != nil {
		if s.fallback != nil {
			return s.fallback.Set(server, token)
		}
		return fmt.Errorf("%w: storing token: %v", ErrKeyringUnavailable, err)
	}
	return nil
}

// Load returns the stored token for server.
func (s *Store) Load(server string) (string, error) {
	token, _, err := s.load(server)
	return token, err
}

func (s *Store) load(server string) (string, Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, err := keyring.Get(s.service, server)
	switch {
	case err == nil:
		return token, SourceKeyring, nil
	case errors.Is(err, keyring.ErrNotFound):
		return "", "", ErrNoCredentials
	case s.fallback != nil:
		token, err := s.fallback.Get(server)
		return token, SourceFile, err
	default:
		return "", "", fmt.Errorf("%w: reading token: %v", ErrKeyringUnavailable, err)
	}
}

// Delete removes the stored token for server. Deleting a missing token is not an error.
func (s *Store) Delete(server string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := keyring.Delete(s.service, server)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		if s.fallback != nil {
			return s.fallback.Delete(server)
		}
		return fmt.Errorf("%w: deleting token: %v", ErrKeyringUnavailable, err)
	}
	return nil
}

// Active returns the token in effect for server. The environment wins
// over the keyring, which wins over the file vault.
func (s *Store) Active(server string) (*Credential, error) {
	if token := strings.TrimSpace(os.Getenv(EnvToken)); token != "" {
		return &Credential{Server: server, Token: token, Source: SourceEnv}, nil
	}

	token, source, err := s.load(server)
	if err != nil {
		return nil, err
	}
	return &Credential{Server: server, Token: token, Source: source}, nil
}

// Token returns the active token for server, or "" when none is available.
// It satisfies the token source expected by the gRPC fetcher.
func (s *Store) Token(server string) (string, error) {
	cred, err := s.Active(server)
	if errors.Is(err, ErrNoCredentials) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return cred.Token, nil
}

// MaskToken returns a masked token with first/last few characters visible.
func MaskToken(token string) string {
	if len(token) <= 20 {
		return strings.Repeat("*", len(token))
	}
	return token[:8] + "..." + token[len(token)-8:]
}
