package resolver

import (
	"context"
	"errors"

	"bankid-auth/internal/auth"
)

var (
	ErrNotFound  = errors.New("identity not found")
	ErrDuplicate = errors.New("identity already exists")
)

// Store persists identities. Insert returns ErrDuplicate when another row
// already holds the same (external key, provider type).
type Store interface {
	FindByExternalKey(ctx context.Context, key string, pt auth.ProviderType) (*StoredIdentity, error)
	FindByEmail(ctx context.Context, email string) ([]StoredIdentity, error)
	Insert(ctx context.Context, s *StoredIdentity) error
	Update(ctx context.Context, s *StoredIdentity) error
}
