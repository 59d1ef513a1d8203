package resolver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bankid-auth/internal/auth"
	"bankid-auth/internal/db"
)

const identityColumns = `
	id, external_key, provider_type, first_name, middle_name, last_name,
	email, phone, birth_date, passport, credential_hash, hash_version,
	is_active, created_at, updated_at`

type PostgresStore struct {
	db *db.DB
}

func NewPostgresStore(db *db.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) FindByExternalKey(ctx context.Context, key string, pt auth.ProviderType) (*StoredIdentity, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+identityColumns+`
		FROM identities
		WHERE external_key = $1
		  AND provider_type = $2
	`, key, string(pt))

	s, err := scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolver: find by key: %w", err)
	}
	return s, nil
}

func (p *PostgresStore) FindByEmail(ctx context.Context, email string) ([]StoredIdentity, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+identityColumns+`
		FROM identities
		WHERE LOWER(email) = LOWER($1)
	`, email)
	if err != nil {
		return nil, fmt.Errorf("resolver: find by email: %w", err)
	}
	defer rows.Close()

	var out []StoredIdentity
	for rows.Next() {
		s, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("resolver: scan: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Insert(ctx context.Context, s *StoredIdentity) error {
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO identities (
			external_key, provider_type, first_name, middle_name, last_name,
			email, phone, birth_date, passport, credential_hash, hash_version, is_active
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at
	`,
		s.ExternalKey, string(s.ProviderType), s.FirstName, s.MiddleName, s.LastName,
		s.Email, s.Phone, s.BirthDate, s.Passport, s.CredentialHash, s.HashVersion, s.IsActive,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)

	if db.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("resolver: insert: %w", err)
	}
	return nil
}

func (p *PostgresStore) Update(ctx context.Context, s *StoredIdentity) error {
	err := p.db.QueryRowContext(ctx, `
		UPDATE identities
		SET external_key = $2, provider_type = $3,
		    first_name = $4, middle_name = $5, last_name = $6,
		    email = $7, phone = $8, birth_date = $9, passport = $10,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`,
		s.ID, s.ExternalKey, string(s.ProviderType),
		s.FirstName, s.MiddleName, s.LastName,
		s.Email, s.Phone, s.BirthDate, s.Passport,
	).Scan(&s.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if db.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("resolver: update: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row scanner) (*StoredIdentity, error) {
	var (
		s  StoredIdentity
		pt string
	)
	err := row.Scan(
		&s.ID, &s.ExternalKey, &pt, &s.FirstName, &s.MiddleName, &s.LastName,
		&s.Email, &s.Phone, &s.BirthDate, &s.Passport, &s.CredentialHash, &s.HashVersion,
		&s.IsActive, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.ProviderType = auth.ProviderType(pt)
	return &s, nil
}
