package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort       string
	AppEnv        string
	LogLevel      string
	PublicBaseURL string

	DatabaseDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SecretDriftThreshold time.Duration
	ReplayGuard          bool

	JWTSecret        string
	JWTIssuer        string
	JWTTTL           time.Duration
	JWTRefreshWindow time.Duration

	ProviderHTTPTimeout time.Duration

	RateLimitPerSecond float64
	RateLimitBurst     int

	Oschadbank Provider
	Privatbank Provider
}

// Provider holds the credentials and endpoints of one BankID provider.
// Empty URLs fall back to the provider defaults.
type Provider struct {
	ClientID         string
	ClientSecret     string
	AuthorizationURL string
	APIBaseURL       string
	PrivateKeyPath   string
}

// Enabled reports whether the provider has credentials configured.
func (p Provider) Enabled() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

// Load reads the environment after loading an optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load(".env")

	var errs []error

	cfg := Config{
		AppPort:       getenv("APP_PORT", "8080"),
		AppEnv:        getenv("APP_ENV", "dev"),
		LogLevel:      getenv("LOG_LEVEL", "info"),
		PublicBaseURL: os.Getenv("PUBLIC_BASE_URL"),

		DatabaseDSN: os.Getenv("DATABASE_DSN"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       intEnv("REDIS_DB", 0, &errs),

		SecretDriftThreshold: durationEnv("SECRET_DRIFT_THRESHOLD", 5*time.Minute, &errs),
		ReplayGuard:          boolEnv("SECRET_REPLAY_GUARD", false, &errs),

		JWTSecret:        os.Getenv("JWT_SECRET"),
		JWTIssuer:        getenv("JWT_ISSUER", "bankid-auth"),
		JWTTTL:           durationEnv("JWT_TTL", 24*time.Hour, &errs),
		JWTRefreshWindow: durationEnv("JWT_REFRESH_WINDOW", 7*24*time.Hour, &errs),

		ProviderHTTPTimeout: durationEnv("PROVIDER_HTTP_TIMEOUT", 10*time.Second, &errs),

		RateLimitPerSecond: floatEnv("RATE_LIMIT_PER_SECOND", 5, &errs),
		RateLimitBurst:     intEnv("RATE_LIMIT_BURST", 10, &errs),

		Oschadbank: Provider{
			ClientID:         os.Getenv("OSCHADBANK_CLIENT_ID"),
			ClientSecret:     os.Getenv("OSCHADBANK_CLIENT_SECRET"),
			AuthorizationURL: os.Getenv("OSCHADBANK_AUTHORIZATION_URL"),
			APIBaseURL:       os.Getenv("OSCHADBANK_API_BASE_URL"),
		},
		Privatbank: Provider{
			ClientID:         os.Getenv("PRIVATBANK_CLIENT_ID"),
			ClientSecret:     os.Getenv("PRIVATBANK_CLIENT_SECRET"),
			AuthorizationURL: os.Getenv("PRIVATBANK_AUTHORIZATION_URL"),
			APIBaseURL:       os.Getenv("PRIVATBANK_API_BASE_URL"),
			PrivateKeyPath:   os.Getenv("PRIVATBANK_PRIVATE_KEY_PATH"),
		},
	}

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return cfg, nil
}

// Validate checks the values the HTTP server cannot start without.
func (c Config) Validate() error {
	var errs []error
	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("DATABASE_DSN is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.ReplayGuard && c.RedisAddr == "" {
		errs = append(errs, errors.New("REDIS_ADDR is required when SECRET_REPLAY_GUARD is on"))
	}
	if c.Privatbank.Enabled() && c.Privatbank.PrivateKeyPath == "" {
		errs = append(errs, errors.New("PRIVATBANK_PRIVATE_KEY_PATH is required for privatbank"))
	}
	if !c.Oschadbank.Enabled() && !c.Privatbank.Enabled() {
		errs = append(errs, errors.New("at least one bank provider must be configured"))
	}
	return errors.Join(errs...)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func intEnv(key string, def int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func floatEnv(key string, def float64, errs *[]error) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return f
}

func boolEnv(key string, def bool, errs *[]error) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}
