package sessiongate

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	internalaudit "github.com/velatir/sessiongate/internal/audit"

	"github.com/velatir/sessiongate/cache"
	"github.com/velatir/sessiongate/fingerprint"
	"github.com/velatir/sessiongate/httpapi"
	"github.com/velatir/sessiongate/refresh"
	"github.com/velatir/sessiongate/routes"
	"github.com/velatir/sessiongate/twofactor"
)

// Builder defines a public type used by sessiongate APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  *redis.Client

	cacheStore   cache.Store
	httpClient   *http.Client
	signalSource fingerprint.SignalSource
	passkey      twofactor.PasskeyCeremony
	auditSink    AuditSink

	built bool
}

// New describes the new operation and its observable behavior.
//
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithBaseURL describes the withbaseurl operation and its observable behavior.
//
// WithBaseURL does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithBaseURL(baseURL string) *Builder {
	b.config.API.BaseURL = baseURL
	return b
}

// WithSignalSource describes the withsignalsource operation and its observable behavior.
//
// WithSignalSource does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithSignalSource(source fingerprint.SignalSource) *Builder {
	b.signalSource = source
	return b
}

// WithHTTPClient describes the withhttpclient operation and its observable behavior.
//
// WithHTTPClient does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithHTTPClient(hc *http.Client) *Builder {
	b.httpClient = hc
	return b
}

// WithRedis describes the withredis operation and its observable behavior.
//
// WithRedis does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithCacheStore describes the withcachestore operation and its observable behavior.
//
// WithCacheStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithCacheStore(store cache.Store) *Builder {
	b.cacheStore = store
	return b
}

// WithPasskeyCeremony describes the withpasskeyceremony operation and its observable behavior.
//
// WithPasskeyCeremony does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithPasskeyCeremony(ceremony twofactor.PasskeyCeremony) *Builder {
	b.passkey = ceremony
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms describes the withlatencyhistograms operation and its observable behavior.
//
// WithLatencyHistograms does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
func (b *Builder) Build() (*Manager, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.signalSource == nil {
		return nil, ErrSignalSourceRequired
	}

	// -------- WIRE CLIENT --------
	clientOpts := []httpapi.Option{}
	if b.httpClient != nil {
		clientOpts = append(clientOpts, httpapi.WithHTTPClient(b.httpClient))
	} else {
		clientOpts = append(clientOpts, httpapi.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}))
	}
	if cfg.API.UserAgent != "" {
		clientOpts = append(clientOpts, httpapi.WithUserAgent(cfg.API.UserAgent))
	}
	client, err := httpapi.NewClient(cfg.API.BaseURL, clientOpts...)
	if err != nil {
		return nil, err
	}

	// -------- FINGERPRINT --------
	gen, err := fingerprint.NewGenerator(b.signalSource, &fingerprint.Config{
		ProbeTimeout:      cfg.Fingerprint.ProbeTimeout,
		AudioProbeTimeout: cfg.Fingerprint.AudioProbeTimeout,
	})
	if err != nil {
		return nil, err
	}

	// -------- RESOLUTION CACHE --------
	store := b.cacheStore
	if store == nil {
		if b.redis != nil {
			store = cache.NewRedisStore(b.redis, cfg.Cache.RedisPrefix, cfg.Cache.TTL)
		} else {
			store = cache.NewMemoryStore(cfg.Cache.TTL)
		}
	}

	// -------- ROUTE TABLE --------
	classifier, err := routes.NewClassifier(routes.Table{
		Exact:             cfg.Routes.Exact,
		PublicPrefixes:    cfg.Routes.PublicPrefixes,
		ProtectedPrefixes: cfg.Routes.ProtectedPrefixes,
	})
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		cfg:        cfg,
		client:     client,
		fp:         gen,
		store:      store,
		classifier: classifier,
		passkey:    b.passkey,
		installID:  uuid.NewString(),
		now:        time.Now,
	}

	manager.metrics = NewMetrics(cfg.Metrics)
	manager.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	manager.bus = newIdentityBus(cfg.Events.BufferSize)
	manager.guard = newOpGuard(cfg.Guard.MinInterval, manager.now)

	// -------- RENEWAL TIMER --------
	scheduler, err := refresh.NewScheduler(refresh.Deps{
		Do: func(ctx context.Context) (*httpapi.AuthOutcome, error) {
			return client.Refresh(ctx, gen.Generate(ctx).String())
		},
		CurrentClass: manager.currentClass,
		OnRenewed:    manager.onRenewed,
		OnForcedSignOut: func(ctx context.Context) {
			manager.onForcedSignOut(ctx)
		},
		OnCollapsed: func() {
			manager.metrics.Inc(MetricRenewalCollapsed)
		},
		OnFailed: manager.onRenewalFailed,
		LeadTime:         cfg.Refresh.LeadTime,
		MinDelay:         cfg.Refresh.MinDelay,
		FallbackLifetime: cfg.Refresh.FallbackLifetime,
	})
	if err != nil {
		return nil, err
	}
	manager.scheduler = scheduler

	b.built = true

	return manager, nil
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *internalaudit.Dispatcher {
	return internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Enabled,
		BufferSize: cfg.BufferSize,
		DropIfFull: cfg.DropIfFull,
	}, sink)
}
