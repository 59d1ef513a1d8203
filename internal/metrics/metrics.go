// Package metrics exposes the Prometheus collectors of the service.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Logins          *prometheus.CounterVec
	Completions     *prometheus.CounterVec
	ProviderErrors  *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg. Collectors that
// are already registered are reused.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bankid_logins_total",
			Help: "Login attempts by provider and result",
		}, []string{"provider", "result"}),
		Completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bankid_completions_total",
			Help: "Login completions by provider and result",
		}, []string{"provider", "result"}),
		ProviderErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bankid_provider_errors_total",
			Help: "Provider failures by provider and error kind",
		}, []string{"provider", "kind"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}

	var err error
	if m.Logins, err = register(reg, m.Logins); err != nil {
		return nil, err
	}
	if m.Completions, err = register(reg, m.Completions); err != nil {
		return nil, err
	}
	if m.ProviderErrors, err = register(reg, m.ProviderErrors); err != nil {
		return nil, err
	}
	if m.RequestDuration, err = register(reg, m.RequestDuration); err != nil {
		return nil, err
	}
	return m, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) Login(provider, result string) {
	if m == nil {
		return
	}
	m.Logins.WithLabelValues(provider, result).Inc()
}

func (m *Metrics) Completion(provider, result string) {
	if m == nil {
		return
	}
	m.Completions.WithLabelValues(provider, result).Inc()
}

func (m *Metrics) ProviderError(provider, kind string) {
	if m == nil {
		return
	}
	m.ProviderErrors.WithLabelValues(provider, kind).Inc()
}

// Middleware records request latency labelled by route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.RequestDuration.
			WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
