package resolver

import (
	"context"
	"errors"
	"sync"
	"testing"

	"bankid-auth/internal/apperr"
	"bankid-auth/internal/auth"
	"bankid-auth/internal/auth/credentials"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(s string) *string { return &s }

func record() auth.IdentityRecord {
	return auth.IdentityRecord{
		ExternalKey:  "123",
		FirstName:    "ЄВГЕН",
		LastName:     "САЛО",
		Email:        ptr("eugene@example.com"),
		ProviderType: auth.ProviderPrivatbank,
	}
}

func newTestResolver(store Store) *Resolver {
	r := New(store)
	// bcrypt at default cost is slow; tests only need distinct values.
	n := 0
	var mu sync.Mutex
	r.generate = func() (credentials.Credential, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		return credentials.Credential{Hash: "hash-" + string(rune('a'+n)), HashVersion: credentials.HashVersionBcrypt}, nil
	}
	return r
}

func TestSave_CreatesNewIdentity(t *testing.T) {
	store := NewMemoryStore()
	r := newTestResolver(store)
	ctx := context.Background()

	existing, err := r.Lookup(ctx, record())
	require.NoError(t, err)
	require.Nil(t, existing)

	s, err := r.Save(ctx, nil, record())
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.NotEmpty(t, s.CredentialHash)
	assert.True(t, s.IsActive)
	assert.Equal(t, "123", s.ExternalKey)
	assert.Equal(t, 1, store.Len())
}

func TestLookup_ByKeyThenEmail(t *testing.T) {
	store := NewMemoryStore()
	store.Put(StoredIdentity{ID: "by-email", ExternalKey: "old", ProviderType: auth.ProviderOschadbank, Email: ptr("Eugene@Example.com")})
	r := newTestResolver(store)

	s, err := r.Lookup(context.Background(), record())
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "by-email", s.ID)

	store.Put(StoredIdentity{ID: "by-key", ExternalKey: "123", ProviderType: auth.ProviderPrivatbank})
	rec := record()
	rec.Email = nil
	s, err = r.Lookup(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, "by-key", s.ID)
}

func TestLookup_Ambiguous(t *testing.T) {
	t.Run("key and email disagree", func(t *testing.T) {
		store := NewMemoryStore()
		store.Put(StoredIdentity{ID: "by-key", ExternalKey: "123", ProviderType: auth.ProviderPrivatbank})
		store.Put(StoredIdentity{ID: "by-email", ExternalKey: "456", ProviderType: auth.ProviderPrivatbank, Email: ptr("eugene@example.com")})

		_, err := newTestResolver(store).Lookup(context.Background(), record())
		assert.ErrorIs(t, err, ErrAmbiguousIdentity)
		assert.Equal(t, apperr.KindAmbiguous, apperr.KindOf(err))
	})

	t.Run("several email matches", func(t *testing.T) {
		store := NewMemoryStore()
		store.Put(StoredIdentity{ExternalKey: "1", ProviderType: auth.ProviderOschadbank, Email: ptr("eugene@example.com")})
		store.Put(StoredIdentity{ExternalKey: "2", ProviderType: auth.ProviderPrivatbank, Email: ptr("eugene@example.com")})

		_, err := newTestResolver(store).Lookup(context.Background(), record())
		assert.ErrorIs(t, err, ErrAmbiguousIdentity)
	})

	t.Run("key and email agree", func(t *testing.T) {
		store := NewMemoryStore()
		store.Put(StoredIdentity{ID: "same", ExternalKey: "123", ProviderType: auth.ProviderPrivatbank, Email: ptr("eugene@example.com")})

		s, err := newTestResolver(store).Lookup(context.Background(), record())
		require.NoError(t, err)
		assert.Equal(t, "same", s.ID)
	})
}

func TestSave_MergeKeepsStoredOptionalFields(t *testing.T) {
	store := NewMemoryStore()
	store.Put(StoredIdentity{
		ID:             "id-1",
		ExternalKey:    "123",
		ProviderType:   auth.ProviderPrivatbank,
		FirstName:      "OLD",
		MiddleName:     "МИКОЛАЙОВИЧ",
		LastName:       "САЛО",
		Phone:          ptr("+380961234511"),
		Passport:       ptr("ШО 123456"),
		CredentialHash: "keep",
		IsActive:       true,
	})
	r := newTestResolver(store)
	ctx := context.Background()

	rec := record()
	existing, err := r.Lookup(ctx, rec)
	require.NoError(t, err)

	s, err := r.Save(ctx, existing, rec)
	require.NoError(t, err)

	assert.Equal(t, "ЄВГЕН", s.FirstName)
	assert.Equal(t, "МИКОЛАЙОВИЧ", s.MiddleName)
	assert.Equal(t, "+380961234511", *s.Phone)
	assert.Equal(t, "ШО 123456", *s.Passport)
	assert.Equal(t, "eugene@example.com", *s.Email)
	assert.Equal(t, "keep", s.CredentialHash)
	assert.Equal(t, 1, store.Len())
}

// racingStore makes the first FindByExternalKey miss, simulating a
// concurrent first login that inserts between lookup and insert.
type racingStore struct {
	*MemoryStore
	once     sync.Once
	inactive bool
}

func (s *racingStore) Insert(ctx context.Context, si *StoredIdentity) error {
	s.once.Do(func() {
		s.Put(StoredIdentity{
			ID:           "winner",
			ExternalKey:  si.ExternalKey,
			ProviderType: si.ProviderType,
			FirstName:    "WINNER",
			LastName:     "WINNER",
			Phone:        ptr("+380000000000"),
			IsActive:     !s.inactive,
		})
	})
	return s.MemoryStore.Insert(ctx, si)
}

func TestSave_RetriesAsUpdateOnDuplicate(t *testing.T) {
	store := &racingStore{MemoryStore: NewMemoryStore()}
	r := newTestResolver(store)

	s, err := r.Save(context.Background(), nil, record())
	require.NoError(t, err)

	assert.Equal(t, "winner", s.ID)
	assert.Equal(t, "ЄВГЕН", s.FirstName)
	assert.Equal(t, "+380000000000", *s.Phone)
	assert.Equal(t, 1, store.Len())
}

func TestSave_RetryRejectsDeactivatedWinner(t *testing.T) {
	store := &racingStore{MemoryStore: NewMemoryStore(), inactive: true}
	r := newTestResolver(store)

	s, err := r.Save(context.Background(), nil, record())
	assert.Nil(t, s)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	stored, err := store.FindByExternalKey(context.Background(), "123", auth.ProviderPrivatbank)
	require.NoError(t, err)
	assert.Equal(t, "WINNER", stored.FirstName)
}

func TestSave_EmailMatchKeepsStoredKey(t *testing.T) {
	store := NewMemoryStore()
	store.Put(StoredIdentity{
		ID:           "osb",
		ExternalKey:  "555",
		ProviderType: auth.ProviderOschadbank,
		FirstName:    "ЄВГЕН",
		LastName:     "САЛО",
		Email:        ptr("eugene@example.com"),
		IsActive:     true,
	})
	r := newTestResolver(store)
	ctx := context.Background()

	// Alternate between the two banks; the row stays reachable by its
	// original key and is never duplicated.
	for i := 0; i < 3; i++ {
		rec := record()
		if i%2 == 1 {
			rec.ExternalKey = "555"
			rec.ProviderType = auth.ProviderOschadbank
		}
		existing, err := r.Lookup(ctx, rec)
		require.NoError(t, err)
		require.NotNil(t, existing)

		s, err := r.Save(ctx, existing, rec)
		require.NoError(t, err)
		assert.Equal(t, "osb", s.ID)
		assert.Equal(t, "555", s.ExternalKey)
		assert.Equal(t, auth.ProviderOschadbank, s.ProviderType)
	}

	_, err := store.FindByExternalKey(ctx, "123", auth.ProviderPrivatbank)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, store.Len())
}

func TestSave_ConcurrentFirstLogins(t *testing.T) {
	store := NewMemoryStore()
	r := newTestResolver(store)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Save(context.Background(), nil, record())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, store.Len())
}

type brokenStore struct{ *MemoryStore }

func (brokenStore) FindByExternalKey(context.Context, string, auth.ProviderType) (*StoredIdentity, error) {
	return nil, errors.New("db down")
}

func TestLookup_StoreError(t *testing.T) {
	_, err := newTestResolver(brokenStore{NewMemoryStore()}).Lookup(context.Background(), record())
	assert.EqualError(t, err, "db down")
}

func TestIsComplete(t *testing.T) {
	s := StoredIdentity{FirstName: "A", LastName: "B"}
	assert.False(t, s.IsComplete())
	assert.Equal(t, "A B", s.FullName())

	s.Email, s.Phone, s.BirthDate, s.Passport = ptr("a@b.cd"), ptr("+380961234511"), ptr("01.01.1970"), ptr("ШО 123456")
	assert.True(t, s.IsComplete())
}
