package resolver

import (
	"time"

	"bankid-auth/internal/auth"
)

// StoredIdentity is a persisted end user.
type StoredIdentity struct {
	ID             string
	ExternalKey    string
	ProviderType   auth.ProviderType
	FirstName      string
	MiddleName     string
	LastName       string
	Email          *string
	Phone          *string
	BirthDate      *string
	Passport       *string
	CredentialHash string
	HashVersion    string
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsComplete reports whether every optional profile field is known.
func (s *StoredIdentity) IsComplete() bool {
	return s.Email != nil && s.Phone != nil && s.BirthDate != nil && s.Passport != nil
}

func (s *StoredIdentity) FullName() string {
	return auth.IdentityRecord{FirstName: s.FirstName, MiddleName: s.MiddleName, LastName: s.LastName}.FullName()
}

// merge copies rec into s. Empty names and nil optional fields keep the
// stored value. The (external key, provider) pair is set once at creation;
// an identity reached through the email fallback keeps its own.
func (s *StoredIdentity) merge(rec auth.IdentityRecord) {
	if s.ExternalKey == "" {
		s.ExternalKey = rec.ExternalKey
		s.ProviderType = rec.ProviderType
	}
	if rec.FirstName != "" {
		s.FirstName = rec.FirstName
	}
	if rec.MiddleName != "" {
		s.MiddleName = rec.MiddleName
	}
	if rec.LastName != "" {
		s.LastName = rec.LastName
	}
	if rec.Email != nil {
		s.Email = rec.Email
	}
	if rec.Phone != nil {
		s.Phone = rec.Phone
	}
	if rec.BirthDate != nil {
		s.BirthDate = rec.BirthDate
	}
	if rec.Passport != nil {
		s.Passport = rec.Passport
	}
}
