// Package sessionstore persists session credentials in an encrypted file.
//
// Each entry is sealed separately with AES-GCM under a key derived from a
// master key with argon2id. The file is a JSON object mapping entry names
// (rc_token, rc_uid) to base64 ciphertext and is replaced atomically on
// every write.
package sessionstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"golang.org/x/crypto/argon2"

	rocketchat "github.com/NeboLoop/rocketchat-go-sdk"
)

// ErrNotFound is returned by Get and Delete for unknown entry names.
var ErrNotFound = errors.New("sessionstore: entry not found")

// Store is a rocketchat.SessionStore backed by one encrypted file.
type Store struct {
	path string
	gcm  cipher.AEAD

	mu sync.Mutex
}

var _ rocketchat.SessionStore = (*Store)(nil)

// Open returns a store for path. The file is created on first write.
func Open(path, masterKey string) (*Store, error) {
	if masterKey == "" {
		return nil, fmt.Errorf("sessionstore: master key must not be empty")
	}
	if path == "" {
		return nil, fmt.Errorf("sessionstore: path must not be empty")
	}

	block, err := aes.NewCipher(deriveKey(masterKey))
	if err != nil {
		return nil, fmt.Errorf("sessionstore: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: creating GCM: %w", err)
	}

	return &Store{path: path, gcm: gcm}, nil
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Load reads the credential pair. A missing file reads as empty.
func (s *Store) Load() (rocketchat.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readAll()
	if err != nil {
		return rocketchat.Credentials{}, err
	}
	return rocketchat.CredentialsFromEntries(entries), nil
}

// Save replaces the credential pair. Saving empty credentials removes both
// entries.
func (s *Store) Save(creds rocketchat.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readAll()
	if err != nil {
		return err
	}
	for name, value := range creds.Entries() {
		if value == "" {
			delete(entries, name)
		} else {
			entries[name] = value
		}
	}
	return s.writeAll(entries)
}

// Set stores one named entry.
func (s *Store) Set(name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readAll()
	if err != nil {
		return err
	}
	entries[name] = value
	return s.writeAll(entries)
}

// Get returns one named entry.
func (s *Store) Get(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readAll()
	if err != nil {
		return "", err
	}
	v, ok := entries[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return v, nil
}

// Delete removes one named entry.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readAll()
	if err != nil {
		return err
	}
	if _, ok := entries[name]; !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	delete(entries, name)
	return s.writeAll(entries)
}

// List returns the stored entry names, sorted.
func (s *Store) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readAll()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// --- file format ---

func (s *Store) readAll() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("sessionstore: reading %s: %w", s.path, err)
	}

	var sealed map[string]string
	if err := json.Unmarshal(data, &sealed); err != nil {
		return nil, fmt.Errorf("sessionstore: parsing %s: %w", s.path, err)
	}

	entries := make(map[string]string, len(sealed))
	for name, enc := range sealed {
		ciphertext, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return nil, fmt.Errorf("sessionstore: decoding %q: %w", name, err)
		}
		plaintext, err := s.decrypt(ciphertext)
		if err != nil {
			return nil, fmt.Errorf("sessionstore: decrypting %q: %w", name, err)
		}
		entries[name] = string(plaintext)
	}
	return entries, nil
}

func (s *Store) writeAll(entries map[string]string) error {
	sealed := make(map[string]string, len(entries))
	for name, value := range entries {
		ciphertext, err := s.encrypt([]byte(value))
		if err != nil {
			return fmt.Errorf("sessionstore: encrypting %q: %w", name, err)
		}
		sealed[name] = base64.StdEncoding.EncodeToString(ciphertext)
	}
	data, err := json.MarshalIndent(sealed, "", "  ")
	if err != nil {
		return fmt.Errorf("sessionstore: encoding: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("sessionstore: creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("sessionstore: creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("sessionstore: writing: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sessionstore: syncing: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("sessionstore: closing: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("sessionstore: replacing %s: %w", s.path, err)
	}
	return nil
}

func (s *Store) encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return s.gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func (s *Store) decrypt(ciphertext []byte) ([]byte, error) {
	nonceSize := s.gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, data := ciphertext[:nonceSize], ciphertext[nonceSize:]
	return s.gcm.Open(nil, nonce, data, nil)
}

func deriveKey(masterKey string) []byte {
	saltHash := sha256.Sum256([]byte("rcctl-session-salt:" + masterKey))
	salt := saltHash[:16]

	return argon2.IDKey([]byte(masterKey), salt, 1, 64*1024, 4, 32)
}
