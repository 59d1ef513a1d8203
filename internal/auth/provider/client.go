package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bankid-auth/internal/auth"
	"bankid-auth/internal/auth/payload"

	"golang.org/x/oauth2"
)

// maxBody caps provider response bodies.
const maxBody = 1 << 20

// Config holds the settings shared by every variant.
type Config struct {
	ClientID         string
	ClientSecret     string
	AuthorizationURL string
	APIBaseURL       string
	TokenPath        string
	UserInfoPath     string
	HTTPClient       *http.Client
}

// Client implements the authorization-code protocol common to all BankID
// variants. Variants supply the secret derivation and the user info header.
type Client struct {
	cfg        Config
	typ        auth.ProviderType
	secret     func(code string) string
	authHeader func(accessToken string) string
}

// NewClient builds a Client. secret and authHeader may be nil, in which
// case the static client secret and a plain bearer header are used.
func NewClient(typ auth.ProviderType, cfg Config, secret func(string) string, authHeader func(string) string) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	c := &Client{cfg: cfg, typ: typ, secret: secret, authHeader: authHeader}
	if c.secret == nil {
		c.secret = func(string) string { return cfg.ClientSecret }
	}
	if c.authHeader == nil {
		c.authHeader = func(tok string) string { return "Bearer " + tok }
	}
	return c
}

func (c *Client) Type() auth.ProviderType { return c.typ }

func (c *Client) DeriveSecret(codeOrRefreshToken string) string {
	return c.secret(codeOrRefreshToken)
}

func (c *Client) AuthorizationURL(redirectURL string) string {
	return c.oauthConfig("", redirectURL).AuthCodeURL("")
}

func (c *Client) ExchangeCode(ctx context.Context, code, redirectURL string) (*Token, error) {
	cfg := c.oauthConfig(c.DeriveSecret(code), redirectURL)

	tok, err := cfg.Exchange(c.context(ctx), code)
	if err != nil {
		return nil, translateTokenError(err)
	}
	return fromOAuth2(tok), nil
}

func (c *Client) RefreshToken(ctx context.Context, tok *Token) (*Token, error) {
	if tok == nil || tok.RefreshToken == "" {
		panic("provider: RefreshToken called without a refresh token")
	}
	cfg := c.oauthConfig(c.DeriveSecret(tok.RefreshToken), "")

	// An empty access token forces the source to refresh.
	src := cfg.TokenSource(c.context(ctx), &oauth2.Token{RefreshToken: tok.RefreshToken})
	fresh, err := src.Token()
	if err != nil {
		return nil, translateTokenError(err)
	}

	out := fromOAuth2(fresh)
	out.RefreshToken = ""
	return out, nil
}

// PostUserInfo POSTs decl as JSON to the user info endpoint and decodes
// a successful response.
func (c *Client) PostUserInfo(ctx context.Context, tok *Token, decl Declaration) (payload.Map, error) {
	body, err := json.Marshal(decl)
	if err != nil {
		return nil, fmt.Errorf("provider: encode declaration: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(c.cfg.UserInfoPath), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("provider: build user info request: %w", err)
	}
	req.Header.Set("Authorization", c.authHeader(tok.AccessToken))
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, &Error{Description: "user info request failed", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &Error{Description: "read user info response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, TranslateResponse(resp.StatusCode, data)
	}

	v, err := payload.Decode(data)
	if err != nil {
		return nil, &Error{Description: "user info is not valid JSON", Err: err}
	}
	m, ok := v.(payload.Map)
	if !ok {
		return nil, &Error{Description: "user info is not a JSON object"}
	}
	return m, nil
}

// Customer extracts the "customer" object from a user info response.
func Customer(raw payload.Map) (payload.Map, error) {
	customer, ok := raw.MapAt("customer")
	if !ok {
		return nil, &Error{Description: "user info has no customer object"}
	}
	return customer, nil
}

func (c *Client) oauthConfig(secret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: secret,
		RedirectURL:  redirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.cfg.AuthorizationURL,
			TokenURL:  c.endpoint(c.cfg.TokenPath),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (c *Client) context(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.cfg.HTTPClient)
}

// endpoint resolves path against the API base URL.
func (c *Client) endpoint(path string) string {
	base, err := url.Parse(c.cfg.APIBaseURL)
	if err != nil {
		return strings.TrimRight(c.cfg.APIBaseURL, "/") + "/" + strings.TrimLeft(path, "/")
	}
	ref, err := url.Parse(path)
	if err != nil {
		return strings.TrimRight(c.cfg.APIBaseURL, "/") + "/" + strings.TrimLeft(path, "/")
	}
	return base.ResolveReference(ref).String()
}

func fromOAuth2(tok *oauth2.Token) *Token {
	out := &Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    tok.ExpiresIn,
		TokenType:    tok.TokenType,
	}
	if out.ExpiresIn == 0 && !tok.Expiry.IsZero() {
		out.ExpiresIn = int64(time.Until(tok.Expiry).Round(time.Second).Seconds())
	}
	return out
}

func translateTokenError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return TranslateResponse(re.Response.StatusCode, re.Body)
	}
	return &Error{Description: "token request failed", Err: err}
}
