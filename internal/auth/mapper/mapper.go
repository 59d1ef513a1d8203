// Package mapper turns BankID customer data into an IdentityRecord.
package mapper

import (
	"strings"

	"bankid-auth/internal/auth"
	"bankid-auth/internal/auth/payload"
)

const documentPassport = "passport"

// MapUserInfo builds an IdentityRecord from the decrypted "customer" object.
// It never fails: missing required values are left empty and reported by
// IdentityRecord.Validate.
func MapUserInfo(providerType auth.ProviderType, customer payload.Map) auth.IdentityRecord {
	rec := auth.IdentityRecord{
		FirstName:    text(customer, "firstName"),
		MiddleName:   text(customer, "middleName"),
		LastName:     text(customer, "lastName"),
		Email:        optional(customer, "email"),
		Phone:        optional(customer, "phone"),
		BirthDate:    optional(customer, "birthDay"),
		Passport:     passport(customer),
		ProviderType: providerType,
	}

	rec.ExternalKey = text(customer, "inn")
	if rec.ExternalKey == "" && rec.Passport != nil {
		rec.ExternalKey = *rec.Passport
	}
	return rec
}

func text(m payload.Map, key string) string {
	s, _ := m.StringAt(key)
	return strings.TrimSpace(s)
}

func optional(m payload.Map, key string) *string {
	s := text(m, key)
	if s == "" {
		return nil
	}
	return &s
}

// passport formats the first passport document as "<series> <number>".
func passport(customer payload.Map) *string {
	docs, ok := customer.ListAt("documents")
	if !ok {
		return nil
	}
	for _, d := range docs {
		doc, ok := d.(payload.Map)
		if !ok || text(doc, "type") != documentPassport {
			continue
		}
		series, number := text(doc, "series"), text(doc, "number")
		if series == "" && number == "" {
			return nil
		}
		p := strings.TrimSpace(series + " " + number)
		return &p
	}
	return nil
}
