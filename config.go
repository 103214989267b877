package sessiongate

import (
	"errors"
	"strings"
	"time"

	"github.com/velatir/sessiongate/routes"
)

// Config defines a public type used by sessiongate APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	API         APIConfig
	Cache       CacheConfig
	Refresh     RefreshConfig
	Routes      RoutesConfig
	TwoFactor   TwoFactorConfig
	Fingerprint FingerprintConfig
	Guard       GuardConfig
	Audit       AuditConfig
	Metrics     MetricsConfig
	Events      EventsConfig
}

/*
====================================
API CONFIG
====================================
*/

// APIConfig defines a public type used by sessiongate APIs.
//
// APIConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type APIConfig struct {
	// BaseURL is the origin the auth endpoints live under.
	BaseURL string
	// Timeout caps every request the wire client makes.
	Timeout time.Duration
	// UserAgent is sent with every request when non-empty.
	UserAgent string
}

/*
====================================
CACHE CONFIG
====================================
*/

// CacheConfig defines a public type used by sessiongate APIs.
//
// CacheConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CacheConfig struct {
	// TTL is the resolution-cache freshness window.
	TTL time.Duration
	// RedisPrefix namespaces cache keys when a Redis backend is used.
	RedisPrefix string
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig defines a public type used by sessiongate APIs.
//
// RefreshConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RefreshConfig struct {
	// LeadTime is how long before expiry a renewal fires.
	LeadTime time.Duration
	// MinDelay floors the renewal timer.
	MinDelay time.Duration
	// FallbackLifetime is assumed when the server does not advertise
	// a session lifetime.
	FallbackLifetime time.Duration
}

/*
====================================
ROUTES CONFIG
====================================
*/

// RoutesConfig defines a public type used by sessiongate APIs.
//
// RoutesConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RoutesConfig struct {
	// SignInPath is where anonymous visitors are redirected from
	// protected routes. It must be reachable anonymously.
	SignInPath string
	// SignUpPath is the account creation page, treated like SignInPath
	// for already-authenticated redirects.
	SignUpPath string
	// DefaultLanding is where authenticated visitors on auth pages are
	// redirected to.
	DefaultLanding string

	Exact             map[string]routes.Class
	PublicPrefixes    []routes.Rule
	ProtectedPrefixes []string
}

/*
====================================
TWO-FACTOR CONFIG
====================================
*/

// TwoFactorConfig defines a public type used by sessiongate APIs.
//
// TwoFactorConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TwoFactorConfig struct {
	ResendCooldown      time.Duration
	CodeDigits          int
	EscalationThreshold int
}

/*
====================================
FINGERPRINT CONFIG
====================================
*/

// FingerprintConfig defines a public type used by sessiongate APIs.
//
// FingerprintConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type FingerprintConfig struct {
	ProbeTimeout      time.Duration
	AudioProbeTimeout time.Duration
}

/*
====================================
GUARD CONFIG
====================================
*/

// GuardConfig defines a public type used by sessiongate APIs.
//
// GuardConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type GuardConfig struct {
	// MinInterval is the minimum pause between consecutive account
	// operations (sign-out, sign-out-all, device trust changes).
	MinInterval time.Duration
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig defines a public type used by sessiongate APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig defines a public type used by sessiongate APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
EVENTS CONFIG
====================================
*/

// EventsConfig defines a public type used by sessiongate APIs.
//
// EventsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type EventsConfig struct {
	// BufferSize is the per-subscriber channel depth. Slow subscribers
	// past this depth lose events rather than stall the manager.
	BufferSize int
}

func defaultConfig() Config {
	return Config{
		API: APIConfig{
			Timeout: 15 * time.Second,
		},
		Cache: CacheConfig{
			TTL:         60 * time.Second,
			RedisPrefix: "sg",
		},
		Refresh: RefreshConfig{
			LeadTime:         5 * time.Minute,
			MinDelay:         time.Minute,
			FallbackLifetime: 15 * time.Minute,
		},
		Routes: RoutesConfig{
			SignInPath:     "/auth/signin",
			SignUpPath:     "/auth/signup",
			DefaultLanding: "/users/dashboard",
			Exact: map[string]routes.Class{
				"/":                     routes.Public,
				"/about":                routes.Public,
				"/pricing":              routes.Public,
				"/auth/signin":          routes.PublicWithBackgroundCheck,
				"/auth/signup":          routes.PublicWithBackgroundCheck,
				"/auth/forgot-password": routes.Public,
			},
			PublicPrefixes: []routes.Rule{
				{Prefix: "/courses", Class: routes.PublicWithBackgroundCheck},
				{Prefix: "/users/public-courses", Class: routes.Public},
			},
			ProtectedPrefixes: []string{"/users", "/admin", "/studio", "/settings"},
		},
		TwoFactor: TwoFactorConfig{
			ResendCooldown:      60 * time.Second,
			CodeDigits:          6,
			EscalationThreshold: 3,
		},
		Fingerprint: FingerprintConfig{
			ProbeTimeout:      2 * time.Second,
			AudioProbeTimeout: time.Second,
		},
		Guard: GuardConfig{
			MinInterval: time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
		Events: EventsConfig{
			BufferSize: 16,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg

	if cfg.Routes.Exact != nil {
		out.Routes.Exact = make(map[string]routes.Class, len(cfg.Routes.Exact))
		for path, class := range cfg.Routes.Exact {
			out.Routes.Exact[path] = class
		}
	}
	out.Routes.PublicPrefixes = append([]routes.Rule(nil), cfg.Routes.PublicPrefixes...)
	out.Routes.ProtectedPrefixes = append([]string(nil), cfg.Routes.ProtectedPrefixes...)

	return out
}

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
func (c *Config) Validate() error {
	// API
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return ErrBaseURLRequired
	}
	if c.API.Timeout <= 0 {
		return errors.New("API Timeout must be > 0")
	}

	// Cache
	if c.Cache.TTL <= 0 {
		return errors.New("Cache TTL must be > 0")
	}

	// Refresh
	if c.Refresh.LeadTime <= 0 {
		return errors.New("Refresh LeadTime must be > 0")
	}
	if c.Refresh.MinDelay <= 0 {
		return errors.New("Refresh MinDelay must be > 0")
	}
	if c.Refresh.FallbackLifetime <= 0 {
		return errors.New("Refresh FallbackLifetime must be > 0")
	}

	// Routes
	if !strings.HasPrefix(c.Routes.SignInPath, "/") {
		return errors.New("Routes SignInPath must start with a slash")
	}
	if !strings.HasPrefix(c.Routes.SignUpPath, "/") {
		return errors.New("Routes SignUpPath must start with a slash")
	}
	if !strings.HasPrefix(c.Routes.DefaultLanding, "/") {
		return errors.New("Routes DefaultLanding must start with a slash")
	}

	// TwoFactor
	if c.TwoFactor.ResendCooldown <= 0 {
		return errors.New("TwoFactor ResendCooldown must be > 0")
	}
	if c.TwoFactor.CodeDigits < 4 || c.TwoFactor.CodeDigits > 10 {
		return errors.New("TwoFactor CodeDigits must be between 4 and 10")
	}
	if c.TwoFactor.EscalationThreshold < 1 {
		return errors.New("TwoFactor EscalationThreshold must be >= 1")
	}

	// Fingerprint
	if c.Fingerprint.ProbeTimeout <= 0 {
		return errors.New("Fingerprint ProbeTimeout must be > 0")
	}
	if c.Fingerprint.AudioProbeTimeout <= 0 {
		return errors.New("Fingerprint AudioProbeTimeout must be > 0")
	}

	// Guard
	if c.Guard.MinInterval < 0 {
		return errors.New("Guard MinInterval must be >= 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when auditing is enabled")
	}

	// Events
	if c.Events.BufferSize <= 0 {
		return errors.New("Events BufferSize must be > 0")
	}

	return nil
}
