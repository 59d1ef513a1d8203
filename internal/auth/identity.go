package auth

import (
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"
)

// ProviderType names the bank that vouched for an identity.
type ProviderType string

const (
	ProviderOschadbank ProviderType = "oschadbank"
	ProviderPrivatbank ProviderType = "privatbank"
)

// BirthDateLayout is the dd.mm.yyyy format used by BankID.
const BirthDateLayout = "02.01.2006"

// IdentityRecord is the normalized identity produced from a provider's
// user info. Optional fields are nil when the provider did not send them,
// so a merge into a stored identity never blanks out known values.
type IdentityRecord struct {
	ExternalKey  string // tax id (inn), or passport when inn is missing
	FirstName    string
	MiddleName   string
	LastName     string
	Email        *string
	Phone        *string
	BirthDate    *string // raw dd.mm.yyyy
	Passport     *string // "<series> <number>"
	ProviderType ProviderType
}

var (
	passportRe = regexp.MustCompile(`^\pL{2} \d{6}$`)
	phoneRe    = regexp.MustCompile(`^\+?\d{9,15}$`)
)

// FieldError describes one failing field.
type FieldError struct {
	Field  string
	Reason string
}

// ValidationError lists every field that failed validation.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Reason)
	}
	return "invalid identity: " + strings.Join(parts, "; ")
}

// Validate checks the record before it is resolved against storage.
func (r IdentityRecord) Validate() error {
	var fields []FieldError
	add := func(field, reason string) {
		fields = append(fields, FieldError{Field: field, Reason: reason})
	}

	if strings.TrimSpace(r.ExternalKey) == "" {
		add("external_key", "required")
	}
	if strings.TrimSpace(r.FirstName) == "" {
		add("first_name", "required")
	}
	if strings.TrimSpace(r.LastName) == "" {
		add("last_name", "required")
	}
	if r.ProviderType != ProviderOschadbank && r.ProviderType != ProviderPrivatbank {
		add("provider_type", fmt.Sprintf("unknown provider %q", r.ProviderType))
	}
	if r.Email != nil && !validEmail(*r.Email) {
		add("email", "invalid address")
	}
	if r.Phone != nil && !phoneRe.MatchString(*r.Phone) {
		add("phone", "invalid number")
	}
	if r.Passport != nil && !passportRe.MatchString(*r.Passport) {
		add("passport", "expected two letters, a space and six digits")
	}
	if r.BirthDate != nil {
		if _, err := time.Parse(BirthDateLayout, *r.BirthDate); err != nil {
			add("birth_date", "expected dd.mm.yyyy")
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// FullName joins the name parts, skipping an empty middle name.
func (r IdentityRecord) FullName() string {
	parts := []string{r.FirstName}
	if r.MiddleName != "" {
		parts = append(parts, r.MiddleName)
	}
	parts = append(parts, r.LastName)
	return strings.Join(parts, " ")
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndex(s, "@")
	domain := s[at+1:]
	return !strings.HasPrefix(domain, ".") && strings.Contains(domain, ".")
}

// IsValidationError reports whether err is a *ValidationError.
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
