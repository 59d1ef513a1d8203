// Package credentials issues the opaque credential stored with every
// identity. Only its bcrypt hash is kept.
package credentials

import (
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	HashVersionBcrypt = "bcrypt"
)

// Credential is the stored form of an opaque credential.
type Credential struct {
	Hash        string
	HashVersion string
}

// Generate creates a random credential and returns its hash. The
// plaintext is discarded: identities authenticate through a provider and
// never present it.
func Generate() (Credential, error) {
	plain, err := uuid.NewRandom()
	if err != nil {
		return Credential{}, fmt.Errorf("credentials: generate: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(plain.String()), bcrypt.DefaultCost)
	if err != nil {
		return Credential{}, fmt.Errorf("credentials: hash: %w", err)
	}

	return Credential{Hash: string(hash), HashVersion: HashVersionBcrypt}, nil
}
