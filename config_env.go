package sessiongate

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// envOverlay captures the subset of Config that operators commonly tune
// without a code change. Fields left unset keep the defaults.
type envOverlay struct {
	BaseURL    string        `env:"SESSIONGATE_API_BASE_URL"`
	APITimeout time.Duration `env:"SESSIONGATE_API_TIMEOUT"`
	UserAgent  string        `env:"SESSIONGATE_API_USER_AGENT"`

	CacheTTL    time.Duration `env:"SESSIONGATE_CACHE_TTL"`
	RedisPrefix string        `env:"SESSIONGATE_CACHE_REDIS_PREFIX"`

	RefreshLeadTime time.Duration `env:"SESSIONGATE_REFRESH_LEAD_TIME"`
	RefreshMinDelay time.Duration `env:"SESSIONGATE_REFRESH_MIN_DELAY"`

	SignInPath     string `env:"SESSIONGATE_ROUTES_SIGNIN_PATH"`
	DefaultLanding string `env:"SESSIONGATE_ROUTES_DEFAULT_LANDING"`

	ResendCooldown time.Duration `env:"SESSIONGATE_TWOFACTOR_RESEND_COOLDOWN"`

	GuardMinInterval time.Duration `env:"SESSIONGATE_GUARD_MIN_INTERVAL"`

	AuditEnabled   bool `env:"SESSIONGATE_AUDIT_ENABLED"`
	MetricsEnabled bool `env:"SESSIONGATE_METRICS_ENABLED" envDefault:"true"`
}

// ConfigFromEnv returns the default configuration with SESSIONGATE_*
// environment overrides applied.
//
// ConfigFromEnv may return an error when input validation, dependency calls, or security checks fail.
func ConfigFromEnv() (Config, error) {
	cfg := defaultConfig()

	var overlay envOverlay
	if err := env.Parse(&overlay); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if overlay.BaseURL != "" {
		cfg.API.BaseURL = overlay.BaseURL
	}
	if overlay.APITimeout > 0 {
		cfg.API.Timeout = overlay.APITimeout
	}
	if overlay.UserAgent != "" {
		cfg.API.UserAgent = overlay.UserAgent
	}
	if overlay.CacheTTL > 0 {
		cfg.Cache.TTL = overlay.CacheTTL
	}
	if overlay.RedisPrefix != "" {
		cfg.Cache.RedisPrefix = overlay.RedisPrefix
	}
	if overlay.RefreshLeadTime > 0 {
		cfg.Refresh.LeadTime = overlay.RefreshLeadTime
	}
	if overlay.RefreshMinDelay > 0 {
		cfg.Refresh.MinDelay = overlay.RefreshMinDelay
	}
	if overlay.SignInPath != "" {
		cfg.Routes.SignInPath = overlay.SignInPath
	}
	if overlay.DefaultLanding != "" {
		cfg.Routes.DefaultLanding = overlay.DefaultLanding
	}
	if overlay.ResendCooldown > 0 {
		cfg.TwoFactor.ResendCooldown = overlay.ResendCooldown
	}
	if overlay.GuardMinInterval > 0 {
		cfg.Guard.MinInterval = overlay.GuardMinInterval
	}
	cfg.Audit.Enabled = overlay.AuditEnabled
	cfg.Metrics.Enabled = overlay.MetricsEnabled

	return cfg, nil
}
