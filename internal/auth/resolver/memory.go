package resolver

import (
	"context"
	"strings"
	"sync"
	"time"

	"bankid-auth/internal/auth"

	"github.com/google/uuid"
)

// MemoryStore enforces the same uniqueness rule as the database.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]StoredIdentity
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]StoredIdentity)}
}

func (m *MemoryStore) FindByExternalKey(_ context.Context, key string, pt auth.ProviderType) (*StoredIdentity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.rows {
		if r.ExternalKey == key && r.ProviderType == pt {
			return &r, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) FindByEmail(_ context.Context, email string) ([]StoredIdentity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []StoredIdentity
	for _, r := range m.rows {
		if r.Email != nil && strings.EqualFold(*r.Email, email) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryStore) Insert(_ context.Context, s *StoredIdentity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conflicts("", s) {
		return ErrDuplicate
	}
	now := time.Now()
	s.ID = uuid.NewString()
	s.CreatedAt, s.UpdatedAt = now, now
	m.rows[s.ID] = *s
	return nil
}

func (m *MemoryStore) Update(_ context.Context, s *StoredIdentity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rows[s.ID]; !ok {
		return ErrNotFound
	}
	if m.conflicts(s.ID, s) {
		return ErrDuplicate
	}
	s.UpdatedAt = time.Now()
	m.rows[s.ID] = *s
	return nil
}

// Put stores s as is. Tests use it to seed rows such as deactivated ones.
func (m *MemoryStore) Put(s StoredIdentity) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	m.rows[s.ID] = s
}

// Len returns the number of stored identities.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func (m *MemoryStore) conflicts(selfID string, s *StoredIdentity) bool {
	for id, r := range m.rows {
		if id != selfID && r.ExternalKey == s.ExternalKey && r.ProviderType == s.ProviderType {
			return true
		}
	}
	return false
}
