// Package resolver maps a provider identity to a stored one. It is the
// only place where identity matching and creation happen.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"bankid-auth/internal/apperr"
	"bankid-auth/internal/auth"
	"bankid-auth/internal/auth/credentials"
	"bankid-auth/internal/logger"
)

// ErrAmbiguousIdentity is returned when the record matches more than one
// stored identity. No precedence rule is applied.
var ErrAmbiguousIdentity = apperr.New(apperr.KindAmbiguous, "identity matches more than one stored identity")

type Resolver struct {
	store    Store
	generate func() (credentials.Credential, error)
}

func New(store Store) *Resolver {
	return &Resolver{store: store, generate: credentials.Generate}
}

// Lookup finds the stored identity for rec by external key, then by email.
// It returns nil and no error when nothing matches.
func (r *Resolver) Lookup(ctx context.Context, rec auth.IdentityRecord) (*StoredIdentity, error) {
	var byKey *StoredIdentity
	if rec.ExternalKey != "" {
		s, err := r.store.FindByExternalKey(ctx, rec.ExternalKey, rec.ProviderType)
		switch {
		case err == nil:
			byKey = s
		case !errors.Is(err, ErrNotFound):
			return nil, err
		}
	}

	if rec.Email == nil {
		return byKey, nil
	}

	byEmail, err := r.store.FindByEmail(ctx, *rec.Email)
	if err != nil {
		return nil, err
	}

	if byKey != nil {
		for _, s := range byEmail {
			if s.ID != byKey.ID {
				r.logAmbiguous(rec, append([]StoredIdentity{*byKey}, byEmail...))
				return nil, ErrAmbiguousIdentity
			}
		}
		return byKey, nil
	}

	switch len(byEmail) {
	case 0:
		return nil, nil
	case 1:
		return &byEmail[0], nil
	default:
		r.logAmbiguous(rec, byEmail)
		return nil, ErrAmbiguousIdentity
	}
}

// Save merges rec into existing, or creates a new identity when existing
// is nil. A create that loses a race against a concurrent first login is
// retried once as an update of the winning row.
func (r *Resolver) Save(ctx context.Context, existing *StoredIdentity, rec auth.IdentityRecord) (*StoredIdentity, error) {
	if existing != nil {
		return r.update(ctx, existing, rec)
	}

	cred, err := r.generate()
	if err != nil {
		return nil, err
	}

	s := &StoredIdentity{
		CredentialHash: cred.Hash,
		HashVersion:    cred.HashVersion,
		IsActive:       true,
	}
	s.merge(rec)

	err = r.store.Insert(ctx, s)
	if err == nil {
		logger.Info("identity created", map[string]any{
			"identity_id": s.ID,
			"provider":    string(s.ProviderType),
		})
		return s, nil
	}
	if !errors.Is(err, ErrDuplicate) {
		return nil, err
	}

	logger.Warn("concurrent identity create, retrying as update", map[string]any{
		"provider": string(rec.ProviderType),
	})

	winner, err := r.store.FindByExternalKey(ctx, rec.ExternalKey, rec.ProviderType)
	if err != nil {
		return nil, fmt.Errorf("resolver: reload after duplicate: %w", err)
	}
	if !winner.IsActive {
		return nil, apperr.ErrForbidden
	}
	return r.update(ctx, winner, rec)
}

func (r *Resolver) update(ctx context.Context, s *StoredIdentity, rec auth.IdentityRecord) (*StoredIdentity, error) {
	merged := *s
	merged.merge(rec)
	if err := r.store.Update(ctx, &merged); err != nil {
		return nil, err
	}
	return &merged, nil
}

func (r *Resolver) logAmbiguous(rec auth.IdentityRecord, candidates []StoredIdentity) {
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.ID)
	}
	logger.Warn("ambiguous identity match", map[string]any{
		"provider":   string(rec.ProviderType),
		"candidates": ids,
	})
}
