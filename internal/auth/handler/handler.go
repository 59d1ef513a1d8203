package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"bankid-auth/internal/apperr"
	"bankid-auth/internal/auth"
	"bankid-auth/internal/auth/apiclient"
	"bankid-auth/internal/auth/provider"
	"bankid-auth/internal/auth/resolver"
	"bankid-auth/internal/auth/token"
	"bankid-auth/internal/logger"
	"bankid-auth/internal/metrics"

	"github.com/gin-gonic/gin"
)

const invalidUserData = "Invalid user data"

type ClientVerifier interface {
	Verify(ctx context.Context, clientID, claimedHash, timestamp string) (*apiclient.APIClient, error)
}

type IdentityResolver interface {
	Lookup(ctx context.Context, rec auth.IdentityRecord) (*resolver.StoredIdentity, error)
	Save(ctx context.Context, existing *resolver.StoredIdentity, rec auth.IdentityRecord) (*resolver.StoredIdentity, error)
}

type TokenIssuer interface {
	Issue(s token.Subject) (string, error)
	Verify(raw string) (*token.Claims, error)
	Refresh(raw string) (string, error)
}

type Handler struct {
	providers     *provider.Registry
	verifier      ClientVerifier
	resolver      IdentityResolver
	tokens        TokenIssuer
	metrics       *metrics.Metrics
	publicBaseURL string
	declaration   provider.Declaration
}

type Options struct {
	Providers *provider.Registry
	Verifier  ClientVerifier
	Resolver  IdentityResolver
	Tokens    TokenIssuer
	Metrics   *metrics.Metrics

	// PublicBaseURL prefixes the completion redirect URI. When empty the
	// request's scheme and host are used.
	PublicBaseURL string
}

func NewHandler(opts Options) *Handler {
	return &Handler{
		providers:     opts.Providers,
		verifier:      opts.Verifier,
		resolver:      opts.Resolver,
		tokens:        opts.Tokens,
		metrics:       opts.Metrics,
		publicBaseURL: strings.TrimRight(opts.PublicBaseURL, "/"),
		declaration:   provider.DefaultDeclaration(),
	}
}

// RegisterRoutes mounts the public endpoints. oauth middleware (rate
// limiting) applies to the provider flow only.
func (h *Handler) RegisterRoutes(r gin.IRouter, oauth ...gin.HandlerFunc) {
	g := r.Group("/oauth", oauth...)
	g.GET("/login/:provider", h.login)
	g.GET("/complete/:provider", h.complete)

	r.POST("/api/token/verify", h.verifyToken)
	r.POST("/api/token/refresh", h.refreshToken)
}

func (h *Handler) login(c *gin.Context) {
	name := c.Param("provider")

	p, err := h.providers.Get(name)
	if err != nil {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}

	clientID := c.Query("client_id")
	clientHash := c.Query("client_secret")
	timestamp := c.Query("timestamp")
	if clientID == "" || clientHash == "" || timestamp == "" {
		h.metrics.Login(name, "malformed")
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	client, err := h.verifier.Verify(c.Request.Context(), clientID, clientHash, timestamp)
	if err != nil {
		status := apperr.StatusOf(err)
		fields := map[string]any{
			"provider":  name,
			"client_id": clientID,
			"ip":        c.ClientIP(),
		}
		if status >= http.StatusInternalServerError {
			fields["error"] = err
			logger.Error("api client verification failed", fields)
		} else {
			logger.Warn("api client rejected", fields)
		}
		h.metrics.Login(name, "rejected")
		c.AbortWithStatus(status)
		return
	}

	flow := provider.NewFlow(p)
	target := flow.Authorize(h.redirectURL(c, name))

	logger.Info("redirecting to provider", map[string]any{
		"provider":  name,
		"client_id": client.ID,
	})
	h.metrics.Login(name, "redirected")
	c.Redirect(http.StatusFound, target)
}

func (h *Handler) complete(c *gin.Context) {
	name := c.Param("provider")
	ctx := c.Request.Context()

	p, err := h.providers.Get(name)
	if err != nil {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}

	code := c.Query("code")
	if code == "" {
		h.metrics.Completion(name, "malformed")
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	flow := provider.NewFlow(p)
	rec, err := flow.Complete(ctx, code, h.redirectURL(c, name), h.declaration)
	if err != nil {
		h.logProviderError(name, err)
		h.metrics.ProviderError(name, string(apperr.KindOf(err)))
		h.metrics.Completion(name, "provider_error")
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	existing, err := h.resolver.Lookup(ctx, rec)
	if err != nil {
		h.fail(c, name, "lookup", err)
		return
	}
	if existing != nil && !existing.IsActive {
		logger.Warn("deactivated identity tried to log in", map[string]any{
			"provider":    name,
			"identity_id": existing.ID,
		})
		h.metrics.Completion(name, "forbidden")
		c.AbortWithStatus(http.StatusForbidden)
		return
	}

	if err := rec.Validate(); err != nil {
		logger.Warn("provider identity failed validation", map[string]any{
			"provider": name,
			"error":    err,
		})
		h.metrics.Completion(name, "invalid")
		c.String(http.StatusBadRequest, invalidUserData)
		c.Abort()
		return
	}

	stored, err := h.resolver.Save(ctx, existing, rec)
	if err != nil {
		h.fail(c, name, "save", err)
		return
	}

	signed, err := h.tokens.Issue(token.Subject{
		ID:           stored.ID,
		ExternalKey:  stored.ExternalKey,
		ProviderType: string(stored.ProviderType),
		Email:        deref(stored.Email),
		FullName:     stored.FullName(),
		IsComplete:   stored.IsComplete(),
	})
	if err != nil {
		h.fail(c, name, "issue token", err)
		return
	}

	logger.Info("login completed", map[string]any{
		"provider":    name,
		"identity_id": stored.ID,
		"created":     existing == nil,
	})
	h.metrics.Completion(name, "ok")
	c.Header("Authorization", "Bearer "+signed)
	c.Status(http.StatusOK)
}

type tokenRequest struct {
	Token string `json:"token" binding:"required"`
}

func (h *Handler) verifyToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}
	if _, err := h.tokens.Verify(req.Token); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": req.Token})
}

func (h *Handler) refreshToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}
	fresh, err := h.tokens.Refresh(req.Token)
	if err != nil {
		msg := "invalid token"
		if errors.Is(err, token.ErrRefreshExpired) {
			msg = "refresh has expired"
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": fresh})
}

// Me returns the claims of the bearer token. Mount it behind
// middleware.GinRequireAuth.
func (h *Handler) Me(c *gin.Context) {
	claims, ok := c.Get("claims")
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	tc := claims.(*token.Claims)
	c.JSON(http.StatusOK, gin.H{
		"id":            tc.Subject,
		"external_key":  tc.ExternalKey,
		"provider_type": tc.ProviderType,
		"email":         tc.Email,
		"full_name":     tc.FullName,
		"is_complete":   tc.IsComplete,
	})
}

func (h *Handler) redirectURL(c *gin.Context, name string) string {
	base := h.publicBaseURL
	if base == "" {
		scheme := "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}
		if fwd := c.GetHeader("X-Forwarded-Proto"); fwd != "" {
			scheme = fwd
		}
		base = scheme + "://" + c.Request.Host
	}
	return base + "/oauth/complete/" + name
}

// fail maps resolver and issuing errors to a status. Ambiguous matches are
// a 400, anything unexpected a 500.
func (h *Handler) fail(c *gin.Context, name, step string, err error) {
	kind := apperr.KindOf(err)
	fields := map[string]any{
		"provider": name,
		"step":     step,
		"error":    err,
	}
	if kind == apperr.KindAmbiguous {
		logger.Warn("identity resolution is ambiguous", fields)
	} else {
		logger.Error("login completion failed", fields)
	}
	h.metrics.Completion(name, string(kind))
	c.AbortWithStatus(apperr.StatusOf(err))
}

func (h *Handler) logProviderError(name string, err error) {
	fields := map[string]any{
		"provider": name,
		"kind":     string(apperr.KindOf(err)),
		"error":    err,
	}
	var pe *provider.Error
	if errors.As(err, &pe) {
		fields["code"] = pe.CodeString()
		fields["description"] = pe.Description
	}
	logger.Warn("provider interaction failed", fields)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
