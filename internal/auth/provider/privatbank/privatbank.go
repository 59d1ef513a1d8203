// Package privatbank is the BankID client for PrivatBank. Its user info
// fields arrive RSA encrypted and are decrypted with the service key.
package privatbank

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"

	"bankid-auth/internal/auth"
	"bankid-auth/internal/auth/payload"
	"bankid-auth/internal/auth/provider"
	"bankid-auth/internal/logger"
)

const (
	DefaultAuthorizationURL = "https://bankid.privatbank.ua/DataAccessService/das/authorize"
	DefaultAPIBaseURL       = "https://bankid.privatbank.ua/"

	tokenPath    = "DataAccessService/oauth/token"
	userInfoPath = "ResourceService/checked/data"

	stateOK  = "ok"
	stateErr = "err"
)

type Provider struct {
	*provider.Client
	decryptor *payload.Decryptor
}

var _ provider.Provider = (*Provider)(nil)

// New builds the client. The decryptor holds the key approved by the bank.
func New(cfg provider.Config, decryptor *payload.Decryptor) *Provider {
	if cfg.AuthorizationURL == "" {
		cfg.AuthorizationURL = DefaultAuthorizationURL
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultAPIBaseURL
	}
	cfg.TokenPath = tokenPath
	cfg.UserInfoPath = userInfoPath

	secret := func(code string) string {
		return Secret(cfg.ClientID, cfg.ClientSecret, code)
	}
	header := func(accessToken string) string {
		return fmt.Sprintf("Bearer %s, Id %s", accessToken, cfg.ClientID)
	}

	return &Provider{
		Client:    provider.NewClient(auth.ProviderPrivatbank, cfg, secret, header),
		decryptor: decryptor,
	}
}

// Secret returns hex(SHA-1(clientID + clientSecret + code)).
func Secret(clientID, clientSecret, code string) string {
	sum := sha1.Sum([]byte(clientID + clientSecret + code))
	return hex.EncodeToString(sum[:])
}

func (p *Provider) FetchUserInfo(ctx context.Context, tok *provider.Token, decl provider.Declaration) (*provider.UserInfo, error) {
	raw, err := p.PostUserInfo(ctx, tok, decl)
	if err != nil {
		return nil, err
	}

	state, _ := raw.StringAt("state")
	switch state {
	case stateOK:
	case stateErr:
		desc, _ := raw.StringAt("desc")
		return nil, provider.NewError(payload.ToJSON(raw["code"]), desc)
	default:
		return nil, provider.NewError(nil, fmt.Sprintf("unknown response state %q", state))
	}

	customer, err := provider.Customer(raw)
	if err != nil {
		return nil, err
	}

	info := &provider.UserInfo{Raw: raw, Customer: customer}
	if !customer.Has(payload.KeySignature) {
		logger.Debug("privatbank customer is not signed, skipping decryption", nil)
		return info, nil
	}

	dec, err := p.decryptor.Decrypt(customer)
	if err != nil {
		return nil, &provider.Error{Description: "customer decryption failed", Err: err}
	}
	info.Customer = dec.(payload.Map)
	info.Decrypted = true
	return info, nil
}
