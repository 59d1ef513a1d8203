package db

import (
	"context"
	"database/sql"
)

const schema = `
CREATE EXTENSION IF NOT EXISTS "pgcrypto";

CREATE TABLE IF NOT EXISTS api_clients (
    id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
    secret text NOT NULL,
    name text NOT NULL,
    is_active boolean NOT NULL DEFAULT true,
    permissions text[] NOT NULL DEFAULT '{}',
    created_at timestamptz NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS identities (
    id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
    external_key text NOT NULL,
    provider_type text NOT NULL,
    first_name text NOT NULL,
    middle_name text NOT NULL DEFAULT '',
    last_name text NOT NULL,
    email text,
    phone text,
    birth_date text,
    passport text,
    credential_hash text NOT NULL,
    hash_version text NOT NULL,
    is_active boolean NOT NULL DEFAULT true,
    created_at timestamptz NOT NULL DEFAULT NOW(),
    updated_at timestamptz NOT NULL DEFAULT NOW(),
    CONSTRAINT identities_external_key_unique
        UNIQUE (external_key, provider_type)
);

CREATE INDEX IF NOT EXISTS identities_email_lower_idx
ON identities (LOWER(email));
`

// Migrate creates the tables the service needs. It is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}
