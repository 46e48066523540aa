package providers

import (
	"github.com/samber/do/v2"

	"github.com/toollender/toollender/internal/config"
	"github.com/toollender/toollender/internal/metrics"
	"github.com/toollender/toollender/internal/ratelimit"
)

// Version is reported in build info and the OpenAPI document. Set by main.
var Version = "dev"

// ProvideMetrics provides the Prometheus collectors.
func ProvideMetrics(_ do.Injector) (*metrics.Metrics, error) {
	m := metrics.New()
	m.SetBuildInfo(Version)
	return m, nil
}

// SignInLimiterHandle wraps the per-client sign-in limiter.
type SignInLimiterHandle struct {
	*ratelimit.KeyedRateLimiter
}

// Shutdown implements do.Shutdownable.
func (h *SignInLimiterHandle) Shutdown() error {
	h.Stop()
	return nil
}

// ProvideSignInLimiter provides the rate limiter for sign-in and sign-up.
func ProvideSignInLimiter(i do.Injector) (*SignInLimiterHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return &SignInLimiterHandle{
		KeyedRateLimiter: ratelimit.New(cfg.Auth.SignInRate, cfg.Auth.SignInBurst, limiterIdleTTL),
	}, nil
}
