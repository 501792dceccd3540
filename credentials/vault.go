package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"

	"github.com/otherjamesbrown/mentionkit/config"
)

const (
	// EnvPassphrase unlocks the file vault used when no keyring is available.
	EnvPassphrase = "MENTIONKIT_TOKEN_PASSPHRASE"

	// VaultFile is the vault's file name inside the config directory.
	VaultFile = "tokens.enc"

	keyLength  = 32
	saltLength = 16
)

// Argon2id parameters for passphrase-based key derivation.
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024
	argon2Threads = 4
)

// ErrBadPassphrase is returned when the vault cannot be decrypted.
var ErrBadPassphrase = errors.New("vault passphrase is wrong or the file is corrupt")

// vaultFile is the on-disk shape of the vault.
type vaultFile struct {
	Salt  []byte `json:"salt"`
	Nonce []byte `json:"nonce"`
	Data  []byte `json:"data"`
}

// FileVault keeps tokens in an AES-256-GCM encrypted file whose key is
// derived from a passphrase with Argon2id. A fresh salt and nonce are
// written on every save.
type FileVault struct {
	path       string
	passphrase string
	mu         sync.Mutex
}

// NewFileVault creates a vault at path.
func NewFileVault(path, passphrase string) *FileVault {
	return &FileVault{path: path, passphrase: passphrase}
}

// VaultFromEnv returns the vault in the config directory when
// MENTIONKIT_TOKEN_PASSPHRASE is set, nil otherwise.
func VaultFromEnv() *FileVault {
	pass := os.Getenv(EnvPassphrase)
	if pass == "" {
		return nil
	}
	dir, err := config.ConfigDir()
	if err != nil {
		return nil
	}
	return NewFileVault(filepath.Join(dir, VaultFile), pass)
}

// Path returns the vault file path.
func (v *FileVault) Path() string {
	return v.path
}

func (v *FileVault) Get(server string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	tokens, err := v.read()
	if err != nil {
		return "", err
	}
	token, ok := tokens[server]
	if !ok {
		return "", ErrNoCredentials
	}
	return token, nil
}

func (v *FileVault) Set(server, token string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	tokens, err := v.read()
	if err != nil {
		return err
	}
	tokens[server] = token
	return v.write(tokens)
}

func (v *FileVault) Delete(server string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	tokens, err := v.read()
	if err != nil {
		return err
	}
	if _, ok := tokens[server]; !ok {
		return nil
	}
	delete(tokens, server)
	return v.write(tokens)
}

// read returns the decrypted tokens; a missing file is an empty vault.
func (v *FileVault) read() (map[string]string, error) {
	raw, err := os.ReadFile(v.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading vault: %w", err)
	}

	var f vaultFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPassphrase, err)
	}

	gcm, err := v.cipher(f.Salt)
	if err != nil {
		return nil, err
	}
	plain, err := gcm.Open(nil, f.Nonce, f.Data, nil)
	if err != nil {
		return nil, ErrBadPassphrase
	}

	tokens := map[string]string{}
	if err := json.Unmarshal(plain, &tokens); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPassphrase, err)
	}
	return tokens, nil
}

func (v *FileVault) write(tokens map[string]string) error {
	plain, err := json.Marshal(tokens)
	if err != nil {
		return err
	}

	f := vaultFile{Salt: make([]byte, saltLength)}
	if _, err := rand.Read(f.Salt); err != nil {
		return fmt.Errorf("generating salt: %w", err)
	}
	gcm, err := v.cipher(f.Salt)
	if err != nil {
		return err
	}
	f.Nonce = make([]byte, gcm.NonceSize())
	if _, err := rand.Read(f.Nonce); err != nil {
		return fmt.Errorf("generating nonce: %w", err)
	}
	f.Data = gcm.Seal(nil, f.Nonce, plain, nil)

	raw, err := json.Marshal(f)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(v.path), 0o700); err != nil {
		return fmt.Errorf("creating vault directory: %w", err)
	}
	return os.WriteFile(v.path, raw, 0o600)
}

func (v *FileVault) cipher(salt []byte) (cipher.AEAD, error) {
	if strings.TrimSpace(v.passphrase) == "" {
		return nil, errors.New("vault passphrase is empty")
	}
	key := argon2.IDKey([]byte(v.passphrase), salt, argon2Time, argon2Memory, argon2Threads, keyLength)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
