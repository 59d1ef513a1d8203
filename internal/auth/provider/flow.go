package provider

import (
	"context"
	"errors"

	"bankid-auth/internal/apperr"
	"bankid-auth/internal/auth"
	"bankid-auth/internal/auth/mapper"
	"bankid-auth/internal/auth/payload"
)

// State is a step of one authorization-code flow.
type State string

const (
	StateInit                State = "init"
	StateAuthorizationIssued State = "authorization_issued"
	StateCodeReceived        State = "code_received"
	StateTokenExchanged      State = "token_exchanged"
	StateUserInfoFetched     State = "user_info_fetched"
	StateDecrypted           State = "decrypted"
	StateMapped              State = "mapped"
	StateFailed              State = "failed"
)

// Flow drives a single login through a provider and records how far it got.
// A Flow is used by one request and is not safe for concurrent use.
type Flow struct {
	Provider Provider
	State    State
	Err      error
}

func NewFlow(p Provider) *Flow {
	return &Flow{Provider: p, State: StateInit}
}

// Authorize returns the URL the user agent is redirected to.
func (f *Flow) Authorize(redirectURL string) string {
	u := f.Provider.AuthorizationURL(redirectURL)
	f.State = StateAuthorizationIssued
	return u
}

// Complete exchanges code, fetches the declared user info and maps it to an
// IdentityRecord. Failures are returned as *apperr.Error of kind
// ProviderProtocol or Decryption wrapping the provider error.
func (f *Flow) Complete(ctx context.Context, code, redirectURL string, decl Declaration) (auth.IdentityRecord, error) {
	if f.State == StateFailed {
		return auth.IdentityRecord{}, f.Err
	}
	f.State = StateCodeReceived

	tok, err := f.Provider.ExchangeCode(ctx, code, redirectURL)
	if err != nil {
		return auth.IdentityRecord{}, f.fail("token exchange", err)
	}
	f.State = StateTokenExchanged

	info, err := f.Provider.FetchUserInfo(ctx, tok, decl)
	if err != nil {
		return auth.IdentityRecord{}, f.fail("user info", err)
	}
	f.State = StateUserInfoFetched
	if info.Decrypted {
		f.State = StateDecrypted
	}

	rec := mapper.MapUserInfo(f.Provider.Type(), info.Customer)
	f.State = StateMapped
	return rec, nil
}

func (f *Flow) fail(step string, err error) error {
	kind := apperr.KindProviderProtocol
	var de *payload.DecryptionError
	if errors.As(err, &de) {
		kind = apperr.KindDecryption
	}
	f.State = StateFailed
	f.Err = apperr.Wrap(kind, step, err)
	return f.Err
}
