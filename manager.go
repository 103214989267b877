package sessiongate

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	internalaudit "github.com/velatir/sessiongate/internal/audit"

	"github.com/velatir/sessiongate/cache"
	"github.com/velatir/sessiongate/fingerprint"
	"github.com/velatir/sessiongate/httpapi"
	"github.com/velatir/sessiongate/refresh"
	"github.com/velatir/sessiongate/routes"
	"github.com/velatir/sessiongate/twofactor"
)

// Resolution is the outcome of resolving one navigation.
//
//	Docs: docs/resolution.md
type Resolution struct {
	Path  string
	Class routes.Class
	// User is the identity known at the time the resolution returned.
	// Nil means anonymous as far as the manager knows.
	User *httpapi.Identity
	// FromCache reports that User came from the resolution cache and
	// no network round trip was made.
	FromCache bool
	// RedirectTo is non-empty when the caller must navigate away
	// instead of rendering the requested path.
	RedirectTo string
	// Pending reports that a background identity check was started.
	// Its outcome arrives as an [Event]; rendering proceeds meanwhile.
	Pending bool
}

// Manager owns the client-side session state for one installation: the
// device fingerprint, the resolution cache, the renewal timer, and the
// identity the backend last reported.
//
// Manager instances are intended to be configured during initialization and then treated as immutable unless documented otherwise; all methods are safe for concurrent use.
//
//	Docs: docs/resolution.md
type Manager struct {
	cfg        Config
	client     *httpapi.Client
	fp         *fingerprint.Generator
	store      cache.Store
	classifier *routes.Classifier
	scheduler  *refresh.Scheduler
	metrics    *Metrics
	audit      *internalaudit.Dispatcher
	bus        *identityBus
	guard      *opGuard
	passkey    twofactor.PasskeyCeremony

	installID string
	now       func() time.Time

	mu   sync.RWMutex
	user *httpapi.Identity

	lastClass   atomic.Int32
	authChecked atomic.Bool
	closed      atomic.Bool
}

// CurrentUser returns a copy of the identity the manager currently
// holds, or nil when anonymous.
func (m *Manager) CurrentUser() *httpapi.Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user.Clone()
}

// AuthChecked reports whether the most recent navigation has finished
// its identity check. It resets to false when a resolution starts and
// flips to true exactly once when that resolution's check completes,
// including checks that run in the background.
func (m *Manager) AuthChecked() bool {
	return m.authChecked.Load()
}

// Subscribe registers for session events. The returned id cancels the
// subscription via [Manager.Unsubscribe]. Slow subscribers lose events
// rather than stalling the manager.
func (m *Manager) Subscribe() (string, <-chan Event) {
	return m.bus.subscribe()
}

// Unsubscribe cancels a subscription and closes its channel.
func (m *Manager) Unsubscribe(id string) {
	m.bus.unsubscribe(id)
}

// Fingerprint returns the device fingerprint, probing signal sources on
// first use and memoized copies afterwards.
func (m *Manager) Fingerprint(ctx context.Context) fingerprint.Digest {
	return m.fp.Generate(ctx)
}

// MetricsSnapshot returns a point-in-time copy of all counters and
// histograms. Exporters poll this.
func (m *Manager) MetricsSnapshot() MetricsSnapshot {
	return m.metrics.Snapshot()
}

// AuditDropped reports how many audit events the dispatcher discarded
// because its buffer was full.
func (m *Manager) AuditDropped() uint64 {
	return m.audit.Dropped()
}

// Resolve classifies path and establishes the identity state the
// caller should render under.
//
// Public paths return immediately and render anonymously for the
// pass, whatever the snapshot holds. Background-check paths return
// immediately too, with Pending set, and deliver the check's outcome
// as an [Event]. Protected paths
// block on the identity check; when it fails for any reason the
// resolution carries a RedirectTo pointing at the sign-in page with
// the original path as the redirect query parameter.
//
// Resolve may return an error when input validation, dependency calls, or security checks fail.
//
//	Docs: docs/resolution.md
func (m *Manager) Resolve(ctx context.Context, path string) (*Resolution, error) {
	if m == nil {
		return nil, ErrManagerNotReady
	}
	if m.closed.Load() {
		return nil, ErrManagerClosed
	}

	start := m.now()
	m.authChecked.Store(false)

	class := m.classifier.Classify(path)
	m.lastClass.Store(int32(class))

	res := &Resolution{Path: path, Class: class}

	if class == routes.Public {
		// Plain public pages always render anonymously for the pass,
		// even when an identity is already known. The snapshot and the
		// cache stay as they are for the routes that do care.
		m.metrics.Inc(MetricResolvePublic)
		m.emitAudit(ctx, auditEventResolvePublic, true, "", path, class.String(), "", "", nil, nil)
		res.User = nil
		m.finishCheck(start)
		m.publishResolved(nil)
		return res, nil
	}

	fp := m.fp.Generate(ctx)

	entry, err := m.store.Read(ctx, fp)
	switch {
	case err == nil:
		m.metrics.Inc(MetricResolveCacheHit)
		m.setUser(entry.User)
		m.emitAudit(ctx, auditEventResolveCacheHit, true, identityID(entry.User), path, class.String(), "", fp.String(), nil, nil)
		res.User = entry.User.Clone()
		res.FromCache = true
		if entry.User == nil && class == routes.Protected {
			// A cached 401 still bars the door.
			res.RedirectTo = m.signInRedirect(path)
		}
		m.finishCheck(start)
		m.publishResolved(entry.User)
		return res, nil
	case !errors.Is(err, cache.ErrMiss):
		// A broken cache backend downgrades to a miss. The check below
		// still answers authoritatively.
		m.metrics.Inc(MetricCacheBackendError)
		m.emitAudit(ctx, auditEventCacheBackendError, false, "", path, class.String(), "", fp.String(), err, nil)
	}
	m.metrics.Inc(MetricResolveCacheMiss)

	if class == routes.PublicWithBackgroundCheck {
		m.metrics.Inc(MetricBackgroundCheck)
		res.User = m.CurrentUser()
		res.Pending = true
		go m.backgroundCheck(context.WithoutCancel(ctx), path, fp, start)
		return res, nil
	}

	out, err := m.client.Me(ctx)
	if err != nil || out.Kind != httpapi.OutcomeAuthenticated {
		// A transport failure on a protected path is handled like a
		// rejection: the caller cannot render without an identity.
		m.clearSession(ctx)
		res.User = nil
		res.RedirectTo = m.signInRedirect(path)
		if err != nil {
			m.metrics.Inc(MetricResolveTransportError)
			m.emitAudit(ctx, auditEventResolveTransport, false, "", path, class.String(), "", fp.String(), err, nil)
		} else {
			m.metrics.Inc(MetricResolveUnauthorized)
			m.emitAudit(ctx, auditEventResolveUnauthorized, false, "", path, class.String(), "", fp.String(), nil, nil)
			m.writeCache(ctx, &cache.Entry{Fingerprint: fp, CapturedAt: m.now()})
		}
		m.finishCheck(start)
		m.publishResolved(nil)
		return res, nil
	}

	m.adopt(ctx, out, fp)
	m.metrics.Inc(MetricResolveAuthenticated)
	m.emitAudit(ctx, auditEventResolveAuthenticated, true, identityID(out.Identity), path, class.String(), "", fp.String(), nil, nil)
	res.User = out.Identity.Clone()
	m.finishCheck(start)
	m.publishResolved(out.Identity)
	return res, nil
}

// publishResolved closes out one resolution on the bus. Subscribers
// hear the identity every finished check settled on, nil included, and
// dedupe on their side if they only care about changes.
func (m *Manager) publishResolved(identity *httpapi.Identity) {
	m.bus.publish(Event{Reason: EventResolved, User: identity.Clone()})
}

// backgroundCheck runs the non-blocking identity check behind a
// background-check path. Transport failures leave the current state
// untouched; definitive answers update it and notify subscribers.
func (m *Manager) backgroundCheck(ctx context.Context, path string, fp fingerprint.Digest, start time.Time) {
	defer m.finishCheck(start)

	out, err := m.client.Me(ctx)
	if err != nil {
		m.metrics.Inc(MetricResolveTransportError)
		m.emitAudit(ctx, auditEventResolveTransport, false, "", path, routes.PublicWithBackgroundCheck.String(), "", fp.String(), err, nil)
		m.publishResolved(m.CurrentUser())
		return
	}

	if out.Kind != httpapi.OutcomeAuthenticated {
		m.setUser(nil)
		m.writeCache(ctx, &cache.Entry{Fingerprint: fp, CapturedAt: m.now()})
		m.metrics.Inc(MetricResolveUnauthorized)
		m.emitAudit(ctx, auditEventBackgroundCheck, true, "", path, routes.PublicWithBackgroundCheck.String(), "", fp.String(), nil, nil)
		m.publishResolved(nil)
		return
	}

	m.adopt(ctx, out, fp)
	m.metrics.Inc(MetricBackgroundUpgrade)
	m.emitAudit(ctx, auditEventBackgroundUpgrade, true, identityID(out.Identity), path, routes.PublicWithBackgroundCheck.String(), "", fp.String(), nil, nil)

	// Authenticated visitors have no business on the auth pages; this
	// is the one place a background check asks for a navigation.
	redirect := ""
	if path == m.cfg.Routes.SignInPath || path == m.cfg.Routes.SignUpPath {
		redirect = m.cfg.Routes.DefaultLanding
	}
	m.bus.publish(Event{
		Reason:     EventBackgroundUpgrade,
		User:       out.Identity.Clone(),
		RedirectTo: redirect,
	})
}

// Renew forces a renewal round trip outside the timer, subject to the
// same single-flight and failure policy as scheduled renewals. With no
// identity to renew it returns [ErrNotSignedIn].
func (m *Manager) Renew(ctx context.Context) error {
	if m == nil {
		return ErrManagerNotReady
	}
	if m.closed.Load() {
		return ErrManagerClosed
	}
	if m.CurrentUser() == nil {
		return ErrNotSignedIn
	}
	return m.scheduler.Renew(ctx)
}

// Close stops the renewal timer, closes the event bus, and drains the
// audit dispatcher. The manager accepts no operations afterwards.
func (m *Manager) Close() {
	if m == nil || !m.closed.CompareAndSwap(false, true) {
		return
	}
	m.scheduler.Stop()
	m.bus.close()
	m.audit.Close()
}

// adopt installs an authenticated outcome: identity, cache entry, and
// the renewal timer armed from the advertised lifetime.
func (m *Manager) adopt(ctx context.Context, out *httpapi.AuthOutcome, fp fingerprint.Digest) {
	m.setUser(out.Identity)
	m.writeCache(ctx, &cache.Entry{
		User:        out.Identity.Clone(),
		Fingerprint: fp,
		CapturedAt:  m.now(),
	})
	m.scheduler.Schedule(m.scheduler.Lifetime(out))
}

// onRenewed runs on the scheduler's goroutine after a successful
// renewal. The scheduler has already re-armed itself.
func (m *Manager) onRenewed(identity *httpapi.Identity, lifetime time.Duration) {
	ctx := context.Background()
	m.setUser(identity)
	m.writeCache(ctx, &cache.Entry{
		User:        identity.Clone(),
		Fingerprint: m.fp.Generate(ctx),
		CapturedAt:  m.now(),
	})
	m.metrics.Inc(MetricRenewalSuccess)
	m.emitAudit(ctx, auditEventRenewalSuccess, true, identityID(identity), "", "", "", "", nil, func() map[string]string {
		return map[string]string{"lifetime": lifetime.String()}
	})
	m.bus.publish(Event{Reason: EventRenewed, User: identity.Clone()})
}

// onRenewalFailed runs on every failed renewal attempt, including the
// ones the route policy then swallows. A nil err means the server
// declined the renewal rather than being unreachable.
func (m *Manager) onRenewalFailed(ctx context.Context, err error) {
	if err == nil {
		err = refresh.ErrRenewalFailed
	}
	m.emitAudit(ctx, auditEventRenewalFailure, false, identityID(m.CurrentUser()), "", "", "", "", err, nil)
}

// onForcedSignOut runs when a renewal failed under a protected route.
// The scheduler has already disarmed itself.
func (m *Manager) onForcedSignOut(ctx context.Context) {
	userID := identityID(m.CurrentUser())
	m.clearSession(ctx)
	m.metrics.Inc(MetricForcedSignOut)
	m.emitAudit(ctx, auditEventForcedSignOut, false, userID, "", "", "", "", refresh.ErrRenewalFailed, nil)
	m.bus.publish(Event{
		Reason:     EventForcedSignOut,
		RedirectTo: m.cfg.Routes.SignInPath,
	})
}

// clearSession drops identity, timer, and cache. Best-effort on the
// cache: an unreachable backend does not block the local state change.
func (m *Manager) clearSession(ctx context.Context) {
	m.setUser(nil)
	m.scheduler.Stop()
	_ = m.store.Invalidate(ctx)
}

func (m *Manager) setUser(user *httpapi.Identity) {
	m.mu.Lock()
	m.user = user.Clone()
	m.mu.Unlock()
}

func (m *Manager) writeCache(ctx context.Context, entry *cache.Entry) {
	if err := m.store.Write(ctx, entry); err != nil {
		m.metrics.Inc(MetricCacheBackendError)
		m.emitAudit(ctx, auditEventCacheBackendError, false, identityID(entry.User), "", "", "", entry.Fingerprint.String(), err, nil)
	}
}

// finishCheck flips the navigation's checked flag and records latency.
// Store is idempotent, so a cache-hit path and its superseding
// background check cannot flip the flag more than once per navigation.
func (m *Manager) finishCheck(start time.Time) {
	m.metrics.Observe(MetricResolveLatency, m.now().Sub(start))
	m.authChecked.Store(true)
}

func (m *Manager) signInRedirect(path string) string {
	return m.cfg.Routes.SignInPath + "?redirect=" + url.QueryEscape(path)
}

func (m *Manager) currentClass() routes.Class {
	return routes.Class(m.lastClass.Load())
}

func identityID(user *httpapi.Identity) string {
	if user == nil {
		return ""
	}
	return user.UserID
}
