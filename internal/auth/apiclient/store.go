package apiclient

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"bankid-auth/internal/db"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

var ErrNotFound = errors.New("api client not found")

// Store loads API clients. Lookups always hit the backing storage.
type Store interface {
	Get(ctx context.Context, id string) (*APIClient, error)
	List(ctx context.Context) ([]APIClient, error)
	Create(ctx context.Context, c APIClient) (*APIClient, error)
}

type PostgresStore struct {
	db *db.DB
}

func NewPostgresStore(db *db.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*APIClient, error) {
	// A malformed id can never match a uuid column.
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	var c APIClient
	err := s.db.QueryRowContext(ctx, `
		SELECT id, secret, name, is_active, permissions, created_at
		FROM api_clients
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Secret, &c.Name, &c.IsActive, pq.Array(&c.Permissions), &c.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("apiclient: get %s: %w", id, err)
	}
	return &c, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]APIClient, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, secret, name, is_active, permissions, created_at
		FROM api_clients
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("apiclient: list: %w", err)
	}
	defer rows.Close()

	var out []APIClient
	for rows.Next() {
		var c APIClient
		if err := rows.Scan(&c.ID, &c.Secret, &c.Name, &c.IsActive, pq.Array(&c.Permissions), &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("apiclient: scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Create(ctx context.Context, c APIClient) (*APIClient, error) {
	if c.Permissions == nil {
		c.Permissions = []string{}
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO api_clients (secret, name, is_active, permissions)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, c.Secret, c.Name, c.IsActive, pq.Array(c.Permissions)).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("apiclient: create: %w", err)
	}
	return &c, nil
}

// MemoryStore keeps clients in process memory. Used in tests and local runs.
type MemoryStore struct {
	mu      sync.RWMutex
	clients map[string]APIClient
}

func NewMemoryStore(clients ...APIClient) *MemoryStore {
	m := &MemoryStore{clients: make(map[string]APIClient, len(clients))}
	for _, c := range clients {
		m.clients[c.ID] = c
	}
	return m
}

func (m *MemoryStore) Get(_ context.Context, id string) (*APIClient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.clients[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (m *MemoryStore) List(_ context.Context) ([]APIClient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]APIClient, 0, len(m.clients))
	for _, c := range m.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) Create(_ context.Context, c APIClient) (*APIClient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	m.clients[c.ID] = c
	return &c, nil
}

// SetActive flips the active flag, mirroring administrative deactivation.
func (m *MemoryStore) SetActive(id string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.clients[id]; ok {
		c.IsActive = active
		m.clients[id] = c
	}
}
