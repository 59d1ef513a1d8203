package app

import (
	"context"
	"fmt"
	"net/http"

	"bankid-auth/internal/auth/apiclient"
	"bankid-auth/internal/auth/handler"
	"bankid-auth/internal/auth/payload"
	"bankid-auth/internal/auth/provider"
	"bankid-auth/internal/auth/provider/oschadbank"
	"bankid-auth/internal/auth/provider/privatbank"
	"bankid-auth/internal/auth/resolver"
	"bankid-auth/internal/auth/token"
	"bankid-auth/internal/config"
	"bankid-auth/internal/logger"
	"bankid-auth/internal/metrics"
	"bankid-auth/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func setupHTTP(ctx context.Context, cfg config.Config) (*gin.Engine, func() error, error) {
	// Providers first: a missing private key must stop startup before any
	// connection is opened.
	registry, err := setupProviders(cfg)
	if err != nil {
		return nil, nil, err
	}

	infra, err := setupInfra(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	m, err := metrics.New(prometheus.DefaultRegisterer)
	if err != nil {
		_ = infra.Close()
		return nil, nil, err
	}

	// ----------------------------
	// Dependencies
	// ----------------------------

	verifier := apiclient.NewVerifier(apiclient.NewPostgresStore(infra.DB), cfg.SecretDriftThreshold)
	if infra.Redis != nil {
		verifier.Guard = apiclient.NewRedisNonceGuard(infra.Redis.Client)
	}

	tokens := token.NewIssuer(token.Config{
		Secret:        cfg.JWTSecret,
		Issuer:        cfg.JWTIssuer,
		TTL:           cfg.JWTTTL,
		RefreshWindow: cfg.JWTRefreshWindow,
	})

	authHandler := handler.NewHandler(handler.Options{
		Providers:     registry,
		Verifier:      verifier,
		Resolver:      resolver.New(resolver.NewPostgresStore(infra.DB)),
		Tokens:        tokens,
		Metrics:       m,
		PublicBaseURL: cfg.PublicBaseURL,
	})

	authMiddleware := middleware.NewAuthMiddleware(tokens)
	limiter := middleware.NewRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst)

	// ----------------------------
	// Router
	// ----------------------------

	if cfg.AppEnv == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), m.Middleware())

	// ----------------------------
	// Public Routes
	// ----------------------------

	authHandler.RegisterRoutes(router, limiter.Gin())

	router.GET("/health", func(c *gin.Context) {
		if err := infra.DB.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ----------------------------
	// Protected API Routes
	// ----------------------------

	api := router.Group("/api")
	api.Use(middleware.GinRequireAuth(authMiddleware))
	api.GET("/me", authHandler.Me)

	for _, route := range router.Routes() {
		logger.Debug("route registered", map[string]any{
			"method": route.Method,
			"path":   route.Path,
		})
	}

	return router, infra.Close, nil
}

// setupProviders builds the enabled BankID clients. The PrivatBank key is
// loaded here, once, for the whole process.
func setupProviders(cfg config.Config) (*provider.Registry, error) {
	httpClient := &http.Client{Timeout: cfg.ProviderHTTPTimeout}
	var list []provider.Provider

	if p := cfg.Oschadbank; p.Enabled() {
		list = append(list, oschadbank.New(provider.Config{
			ClientID:         p.ClientID,
			ClientSecret:     p.ClientSecret,
			AuthorizationURL: p.AuthorizationURL,
			APIBaseURL:       p.APIBaseURL,
			HTTPClient:       httpClient,
		}))
	}

	if p := cfg.Privatbank; p.Enabled() {
		key, err := payload.LoadPrivateKey(p.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("privatbank: %w", err)
		}
		list = append(list, privatbank.New(provider.Config{
			ClientID:         p.ClientID,
			ClientSecret:     p.ClientSecret,
			AuthorizationURL: p.AuthorizationURL,
			APIBaseURL:       p.APIBaseURL,
			HTTPClient:       httpClient,
		}, payload.NewDecryptor(key)))
	}

	registry := provider.NewRegistry(list...)
	logger.Info("providers configured", map[string]any{"providers": registry.Types()})
	return registry, nil
}
