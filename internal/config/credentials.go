package config

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/pbkdf2"
)

// CredentialStore keeps the single session credential on disk, AES-GCM
// encrypted with a machine-derived key. This is obfuscation at rest, not
// strong secrecy: it keeps the cookie out of casual file reads and backups,
// same trade-off the vendor IDE integrations make.
type CredentialStore struct {
	path string
	key  []byte
	mu   sync.Mutex
}

func CredentialPath() string {
	return filepath.Join(ConfigDir(), "credential")
}

func NewCredentialStore(path string) *CredentialStore {
	return &CredentialStore{path: path, key: machineKey()}
}

func machineKey() []byte {
	host, _ := os.Hostname()
	home, _ := os.UserHomeDir()
	seed := host + "|" + home + "|usagewatch-credential"
	return pbkdf2.Key([]byte(seed), []byte("usagewatch.v1"), 4096, 32, sha256.New)
}

func (s *CredentialStore) Load(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("reading credential: %w", err)
	}

	raw, err := base64.StdEncoding.DecodeString(string(data))
	if err != nil {
		return "", fmt.Errorf("decoding credential: %w", err)
	}
	plain, err := s.decrypt(raw)
	if err != nil {
		// A credential we can no longer decrypt (key material changed) is
		// the same as no credential.
		log.Printf("[config] stored credential unreadable, ignoring: %v", err)
		return "", nil
	}
	return string(plain), nil
}

func (s *CredentialStore) Save(_ context.Context, credential string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sealed, err := s.encrypt([]byte(credential))
	if err != nil {
		return fmt.Errorf("encrypting credential: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating credential dir: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(sealed)
	if err := os.WriteFile(s.path, []byte(encoded), 0o600); err != nil {
		return fmt.Errorf("writing credential: %w", err)
	}
	return nil
}

func (s *CredentialStore) Delete(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing credential: %w", err)
	}
	return nil
}

func (s *CredentialStore) encrypt(plain []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plain, nil), nil
}

func (s *CredentialStore) decrypt(sealed []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext shorter than nonce")
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

// MigrateLegacyCookie moves the plaintext session_cookie settings key into
// the credential store. The legacy key is removed from the settings file only
// after the store write succeeds, so a failed migration can be retried on the
// next start.
func MigrateLegacyCookie(ctx context.Context, configPath string, store *CredentialStore) error {
	cfg, err := LoadFrom(configPath)
	if err != nil {
		return err
	}
	if cfg.LegacySessionCookie == "" {
		return nil
	}

	if err := store.Save(ctx, cfg.LegacySessionCookie); err != nil {
		return fmt.Errorf("migrating legacy cookie: %w", err)
	}

	saveMu.Lock()
	defer saveMu.Unlock()
	cfg.LegacySessionCookie = ""
	if err := SaveTo(configPath, cfg); err != nil {
		return fmt.Errorf("clearing legacy cookie key: %w", err)
	}
	log.Printf("[config] migrated legacy session cookie into credential store")
	return nil
}
