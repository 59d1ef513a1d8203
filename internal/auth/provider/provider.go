// Package provider talks to BankID identity providers. Implementations
// return identity facts only and never create users or sessions.
package provider

import (
	"context"

	"bankid-auth/internal/auth"
	"bankid-auth/internal/auth/payload"
)

// Provider is one BankID variant.
type Provider interface {
	// Type returns the variant tag used in routes and stored identities.
	Type() auth.ProviderType

	// AuthorizationURL returns the provider's authorization URL with
	// client_id, redirect_uri and response_type=code. It performs no I/O.
	AuthorizationURL(redirectURL string) string

	// ExchangeCode trades an authorization code for a token. redirectURL
	// must match the one passed to AuthorizationURL.
	ExchangeCode(ctx context.Context, code, redirectURL string) (*Token, error)

	// RefreshToken obtains a new access token. tok.RefreshToken must be set.
	// The returned token never carries a refresh token.
	RefreshToken(ctx context.Context, tok *Token) (*Token, error)

	// FetchUserInfo requests the declared fields with an access token.
	FetchUserInfo(ctx context.Context, tok *Token, decl Declaration) (*UserInfo, error)

	// DeriveSecret returns the client_secret sent with a code or refresh token.
	DeriveSecret(codeOrRefreshToken string) string
}

// Token is a provider access token. It lives for one completion request.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
	TokenType    string
}

// UserInfo is the provider response with the "customer" object extracted.
// Decrypted reports whether Customer was decrypted locally.
type UserInfo struct {
	Raw       payload.Map
	Customer  payload.Map
	Decrypted bool
}

// Declaration lists the fields requested from the provider.
type Declaration map[string]any

// DefaultDeclaration requests every field the identity mapper reads.
func DefaultDeclaration() Declaration {
	return Declaration{
		"type": "physical",
		"fields": []string{
			"firstName", "middleName", "lastName",
			"phone", "inn", "birthDay", "email",
		},
		"documents": []map[string]any{
			{
				"type":   "passport",
				"fields": []string{"series", "number", "issue", "dateIssue"},
			},
		},
	}
}
