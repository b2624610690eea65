package rocketchat

import "sync"

// Storage entry names for the two session credentials.
const (
	TokenKey  = "rc_token"
	UserIDKey = "rc_uid"
)

// Credentials authenticate REST calls and resume realtime sessions.
type Credentials struct {
	Token  string
	UserID string
}

// Empty reports whether neither value is set.
func (c Credentials) Empty() bool { return c.Token == "" && c.UserID == "" }

// Entries returns the credentials keyed by their storage entry names.
func (c Credentials) Entries() map[string]string {
	return map[string]string{TokenKey: c.Token, UserIDKey: c.UserID}
}

// CredentialsFromEntries is the inverse of Entries. Missing names read as "".
func CredentialsFromEntries(entries map[string]string) Credentials {
	return Credentials{Token: entries[TokenKey], UserID: entries[UserIDKey]}
}

// SessionStore persists the credential pair for one Client.
type SessionStore interface {
	Load() (Credentials, error)
	Save(Credentials) error
}

// MemoryStore is a SessionStore that lives only as long as the process.
type MemoryStore struct {
	mu    sync.RWMutex
	creds Credentials
}

// NewMemoryStore returns a store seeded with creds.
func NewMemoryStore(creds Credentials) *MemoryStore {
	return &MemoryStore{creds: creds}
}

func (s *MemoryStore) Load() (Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds, nil
}

func (s *MemoryStore) Save(creds Credentials) error {
	s.mu.Lock()
	s.creds = creds
	s.mu.Unlock()
	return nil
}
