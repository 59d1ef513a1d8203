// Package oschadbank is the BankID client for Oschadbank (id.bank.gov.ua).
package oschadbank

import (
	"context"

	"bankid-auth/internal/auth"
	"bankid-auth/internal/auth/provider"
)

const (
	DefaultAuthorizationURL = "https://id.bank.gov.ua/v1/bank/oauth2/authorize"
	DefaultAPIBaseURL       = "https://id.bank.gov.ua/v1/"

	tokenPath    = "bank/oauth2/token"
	userInfoPath = "bank/resource/client"
)

// Provider sends the static client secret and a plain bearer header.
type Provider struct {
	*provider.Client
}

var _ provider.Provider = (*Provider)(nil)

// New builds the client. Empty URLs fall back to the production endpoints.
func New(cfg provider.Config) *Provider {
	if cfg.AuthorizationURL == "" {
		cfg.AuthorizationURL = DefaultAuthorizationURL
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultAPIBaseURL
	}
	cfg.TokenPath = tokenPath
	cfg.UserInfoPath = userInfoPath

	return &Provider{Client: provider.NewClient(auth.ProviderOschadbank, cfg, nil, nil)}
}

func (p *Provider) FetchUserInfo(ctx context.Context, tok *provider.Token, decl provider.Declaration) (*provider.UserInfo, error) {
	raw, err := p.PostUserInfo(ctx, tok, decl)
	if err != nil {
		return nil, err
	}
	customer, err := provider.Customer(raw)
	if err != nil {
		return nil, err
	}
	return &provider.UserInfo{Raw: raw, Customer: customer}, nil
}
