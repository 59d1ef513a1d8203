package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"bankid-auth/internal/auth"
	"bankid-auth/internal/auth/apiclient"
	"bankid-auth/internal/auth/provider"
	"bankid-auth/internal/auth/provider/oschadbank"
	"bankid-auth/internal/auth/provider/privatbank"
	"bankid-auth/internal/auth/resolver"
	"bankid-auth/internal/auth/token"
	"bankid-auth/internal/logger"
	"bankid-auth/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const (
	clientID     = "0d1c7a52-8d55-4d0e-a0a4-2f8b1f0f6b11"
	clientSecret = "s3cr3t"
	publicBase   = "https://auth.example.com"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeBank serves the token and user info endpoints of both variants.
type fakeBank struct {
	userInfo string
	calls    int
}

func (b *fakeBank) server(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	tokenHandler := func(w http.ResponseWriter, r *http.Request) {
		b.calls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"at","refresh_token":"rt","expires_in":180,"token_type":"bearer"}`)
	}
	userInfoHandler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, b.userInfo)
	}
	mux.HandleFunc("/DataAccessService/oauth/token", tokenHandler)
	mux.HandleFunc("/ResourceService/checked/data", userInfoHandler)
	mux.HandleFunc("/v1/bank/oauth2/token", tokenHandler)
	mux.HandleFunc("/v1/bank/resource/client", userInfoHandler)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type env struct {
	router     *gin.Engine
	identities *resolver.MemoryStore
	clients    *apiclient.MemoryStore
	tokens     *token.Issuer
	bank       *fakeBank
	now        time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	bank := &fakeBank{}
	srv := bank.server(t)

	registry := provider.NewRegistry(
		oschadbank.New(provider.Config{
			ClientID:     "osb-client",
			ClientSecret: "osb-secret",
			APIBaseURL:   srv.URL + "/v1/",
			HTTPClient:   srv.Client(),
		}),
		privatbank.New(provider.Config{
			ClientID:     "pb-client",
			ClientSecret: "pb-secret",
			APIBaseURL:   srv.URL + "/",
			HTTPClient:   srv.Client(),
		}, nil),
	)

	e := &env{
		identities: resolver.NewMemoryStore(),
		clients: apiclient.NewMemoryStore(apiclient.APIClient{
			ID: clientID, Secret: clientSecret, Name: "mobile", IsActive: true,
		}),
		tokens: token.NewIssuer(token.Config{
			Secret:        "jwt-secret",
			Issuer:        "bankid-auth",
			TTL:           time.Hour,
			RefreshWindow: 24 * time.Hour,
		}),
		bank: bank,
		now:  time.Unix(1_700_000_000, 0),
	}

	verifier := apiclient.NewVerifier(e.clients, 5*time.Minute)
	verifier.Now = func() time.Time { return e.now }

	h := NewHandler(Options{
		Providers:     registry,
		Verifier:      verifier,
		Resolver:      resolver.New(e.identities),
		Tokens:        e.tokens,
		PublicBaseURL: publicBase,
	})

	r := gin.New()
	h.RegisterRoutes(r)
	api := r.Group("/api", middleware.GinRequireAuth(middleware.NewAuthMiddleware(e.tokens)))
	api.GET("/me", h.Me)
	e.router = r
	return e
}

func (e *env) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *env) get(path string) *httptest.ResponseRecorder {
	return e.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (e *env) loginURL(provider, id, hash, ts string) string {
	q := url.Values{}
	if id != "" {
		q.Set("client_id", id)
	}
	if hash != "" {
		q.Set("client_secret", hash)
	}
	if ts != "" {
		q.Set("timestamp", ts)
	}
	return "/oauth/login/" + provider + "?" + q.Encode()
}

func observeLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	prev := logger.L()
	logger.Replace(zap.New(core))
	t.Cleanup(func() { logger.Replace(prev) })
	return logs
}

func TestLogin_RedirectsToProvider(t *testing.T) {
	e := newEnv(t)
	ts := strconv.FormatInt(e.now.Unix(), 10)

	w := e.get(e.loginURL("oschadbank", clientID, apiclient.SecretHash(clientSecret, ts), ts))

	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "id.bank.gov.ua", loc.Host)
	assert.Equal(t, "osb-client", loc.Query().Get("client_id"))
	assert.Equal(t, publicBase+"/oauth/complete/oschadbank", loc.Query().Get("redirect_uri"))
	assert.Equal(t, "code", loc.Query().Get("response_type"))
}

func TestLogin_Rejections(t *testing.T) {
	e := newEnv(t)
	now := strconv.FormatInt(e.now.Unix(), 10)
	stale := strconv.FormatInt(e.now.Add(-10*time.Minute).Unix(), 10)

	tests := []struct {
		name string
		path string
		want int
	}{
		{"missing client_id", e.loginURL("privatbank", "", apiclient.SecretHash(clientSecret, now), now), http.StatusBadRequest},
		{"missing hash", e.loginURL("privatbank", clientID, "", now), http.StatusBadRequest},
		{"missing timestamp", e.loginURL("privatbank", clientID, "abc", ""), http.StatusBadRequest},
		{"wrong hash", e.loginURL("privatbank", clientID, apiclient.SecretHash("nope", now), now), http.StatusForbidden},
		{"stale timestamp", e.loginURL("privatbank", clientID, apiclient.SecretHash(clientSecret, stale), stale), http.StatusForbidden},
		{"unknown client", e.loginURL("privatbank", "other", apiclient.SecretHash(clientSecret, now), now), http.StatusForbidden},
		{"unknown provider", e.loginURL("dummy", clientID, apiclient.SecretHash(clientSecret, now), now), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.get(tt.path)
			assert.Equal(t, tt.want, w.Code)
			assert.Empty(t, w.Header().Get("Location"))
		})
	}
}

func TestLogin_RedirectURIFromRequestHost(t *testing.T) {
	h := NewHandler(Options{})
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "http://svc.local:8080/oauth/login/privatbank", nil)
	c.Request.Header.Set("X-Forwarded-Proto", "https")

	assert.Equal(t, "https://svc.local:8080/oauth/complete/privatbank", h.redirectURL(c, "privatbank"))
}

func TestComplete_MissingCode(t *testing.T) {
	e := newEnv(t)
	w := e.get("/oauth/complete/privatbank")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, w.Body.String())
	assert.Zero(t, e.bank.calls)
}

func TestComplete_ProviderErrorState(t *testing.T) {
	logs := observeLogs(t)
	e := newEnv(t)
	e.bank.userInfo = `{"state":"err","code":"E1","desc":"bad code"}`

	w := e.get("/oauth/complete/privatbank?code=abc")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, w.Body.String())

	entries := logs.FilterMessage("provider interaction failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "E1", entries[0].ContextMap()["code"])
	assert.Equal(t, "bad code", entries[0].ContextMap()["description"])
}

const customerJSON = `{"state":"ok","customer":{
	"firstName":"ЄВГЕН","middleName":"МИКОЛАЙОВИЧ","lastName":"САЛО",
	"inn":"123","birthDay":"20.01.1973"}}`

func TestComplete_CreatesIdentityAndIssuesCredential(t *testing.T) {
	e := newEnv(t)
	e.bank.userInfo = customerJSON

	w := e.get("/oauth/complete/privatbank?code=abc")

	require.Equal(t, http.StatusOK, w.Code)
	header := w.Header().Get("Authorization")
	require.True(t, strings.HasPrefix(header, "Bearer "), header)

	claims, err := e.tokens.Verify(strings.TrimPrefix(header, "Bearer "))
	require.NoError(t, err)
	assert.Equal(t, "123", claims.ExternalKey)
	assert.Equal(t, "privatbank", claims.ProviderType)
	assert.Equal(t, "ЄВГЕН МИКОЛАЙОВИЧ САЛО", claims.FullName)
	assert.False(t, claims.IsComplete)

	stored, err := e.identities.FindByExternalKey(context.Background(), "123", auth.ProviderPrivatbank)
	require.NoError(t, err)
	assert.Equal(t, claims.Subject, stored.ID)
	assert.NotEmpty(t, stored.CredentialHash)
	assert.Nil(t, stored.Email)
	assert.Equal(t, 1, e.identities.Len())

	// A second login updates the same identity.
	w = e.get("/oauth/complete/privatbank?code=def")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, e.identities.Len())
}

func TestComplete_DeactivatedIdentity(t *testing.T) {
	e := newEnv(t)
	e.bank.userInfo = customerJSON
	e.identities.Put(resolver.StoredIdentity{
		ExternalKey:  "123",
		ProviderType: auth.ProviderPrivatbank,
		FirstName:    "ЄВГЕН",
		LastName:     "САЛО",
		IsActive:     false,
	})

	w := e.get("/oauth/complete/privatbank?code=abc")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("Authorization"))
}

func TestComplete_InvalidUserData(t *testing.T) {
	logs := observeLogs(t)
	e := newEnv(t)
	e.bank.userInfo = `{"state":"ok","customer":{"firstName":"ЄВГЕН","email":"invalid@.com"}}`

	w := e.get("/oauth/complete/privatbank?code=abc")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid user data", w.Body.String())
	assert.Equal(t, 0, e.identities.Len())
	assert.Equal(t, 1, logs.FilterMessage("provider identity failed validation").Len())
}

func TestComplete_AmbiguousIdentity(t *testing.T) {
	e := newEnv(t)
	e.bank.userInfo = `{"state":"ok","customer":{"firstName":"A","lastName":"B","inn":"123","email":"a@b.com"}}`
	email := "a@b.com"
	e.identities.Put(resolver.StoredIdentity{ExternalKey: "123", ProviderType: auth.ProviderPrivatbank, IsActive: true})
	e.identities.Put(resolver.StoredIdentity{ExternalKey: "999", ProviderType: auth.ProviderOschadbank, Email: &email, IsActive: true})

	w := e.get("/oauth/complete/privatbank?code=abc")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTokenEndpointsAndMe(t *testing.T) {
	e := newEnv(t)
	e.bank.userInfo = customerJSON

	w := e.get("/oauth/complete/oschadbank?code=abc")
	require.Equal(t, http.StatusOK, w.Code)
	raw := strings.TrimPrefix(w.Header().Get("Authorization"), "Bearer ")

	post := func(path, tok string) *httptest.ResponseRecorder {
		body, _ := json.Marshal(map[string]string{"token": tok})
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		return e.do(req)
	}

	w = post("/api/token/verify", raw)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.StatusBadRequest, post("/api/token/verify", "nope").Code)

	w = post("/api/token/refresh", raw)
	require.Equal(t, http.StatusOK, w.Code)
	var refreshed map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &refreshed))
	assert.NotEmpty(t, refreshed["token"])

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer "+refreshed["token"])
	w = e.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	var me map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	assert.Equal(t, "123", me["external_key"])
	assert.Equal(t, "oschadbank", me["provider_type"])

	assert.Equal(t, http.StatusUnauthorized, e.get("/api/me").Code)
}
