package refresh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/velatir/sessiongate/httpapi"
	"github.com/velatir/sessiongate/routes"
)

// ErrRenewalFailed is an exported constant or variable used by session renewal.
var ErrRenewalFailed = errors.New("session renewal failed")

// ErrDepsIncomplete is an exported constant or variable used by session renewal.
var ErrDepsIncomplete = errors.New("scheduler dependencies incomplete")

const (
	// DefaultLeadTime is how long before expiry a renewal fires.
	DefaultLeadTime = 5 * time.Minute
	// DefaultMinDelay floors the timer so very short sessions do not
	// renew in a tight loop.
	DefaultMinDelay = time.Minute
	// DefaultFallbackLifetime is assumed when the server does not
	// advertise a session lifetime in any form.
	DefaultFallbackLifetime = 15 * time.Minute
)

// Deps wires the [Scheduler] to its collaborators. All funcs except
// the optional hooks are required.
type Deps struct {
	// Do performs one renewal round trip.
	Do func(ctx context.Context) (*httpapi.AuthOutcome, error)
	// CurrentClass reports the class of the route currently rendered,
	// which selects the failure policy.
	CurrentClass func() routes.Class
	// OnRenewed receives the renewed identity and the lifetime the
	// next timer was armed from.
	OnRenewed func(identity *httpapi.Identity, lifetime time.Duration)
	// OnForcedSignOut runs when a renewal fails under a protected
	// route. The scheduler has already disarmed itself.
	OnForcedSignOut func(ctx context.Context)

	// OnCollapsed, when set, observes renewal attempts that were
	// dropped because another renewal was already in flight.
	OnCollapsed func()
	// OnFailed, when set, observes every failed renewal attempt before
	// the route policy is applied, swallowed failures included. A nil
	// err means the server answered but declined the renewal.
	OnFailed func(ctx context.Context, err error)

	LeadTime         time.Duration
	MinDelay         time.Duration
	FallbackLifetime time.Duration
}

func (d *Deps) withDefaults() {
	if d.LeadTime <= 0 {
		d.LeadTime = DefaultLeadTime
	}
	if d.MinDelay <= 0 {
		d.MinDelay = DefaultMinDelay
	}
	if d.FallbackLifetime <= 0 {
		d.FallbackLifetime = DefaultFallbackLifetime
	}
}

// Scheduler arms a single renewal timer and runs renewals with
// single-flight semantics.
//
// Scheduler instances are intended to be configured during
// initialization and then treated as immutable unless documented
// otherwise; Schedule, Renew, and Stop are safe for concurrent use.
type Scheduler struct {
	deps Deps

	mu    sync.Mutex
	timer *time.Timer

	inFlight atomic.Bool
}

// NewScheduler validates deps and builds a disarmed [Scheduler].
func NewScheduler(deps Deps) (*Scheduler, error) {
	if deps.Do == nil || deps.CurrentClass == nil || deps.OnRenewed == nil || deps.OnForcedSignOut == nil {
		return nil, ErrDepsIncomplete
	}
	deps.withDefaults()
	return &Scheduler{deps: deps}, nil
}

// Schedule arms the renewal timer for a session with the given
// remaining lifetime. The timer fires LeadTime before expiry, floored
// at MinDelay. Re-arming replaces any previously armed timer, so two
// quick resolutions leave exactly one timer standing.
func (s *Scheduler) Schedule(lifetime time.Duration) {
	delay := lifetime - s.deps.LeadTime
	if delay < s.deps.MinDelay {
		delay = s.deps.MinDelay
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(delay, func() {
		_ = s.Renew(context.Background())
	})
}

// Stop disarms the timer. A renewal already in flight is not
// interrupted; it simply will not re-arm through Stop's caller.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Armed reports whether a renewal timer is currently standing.
func (s *Scheduler) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// Renew performs one renewal. Concurrent calls collapse: losers return
// nil immediately without issuing a request.
//
// On success the identity is published through OnRenewed and the timer
// re-arms from the renewed lifetime. On failure the policy depends on
// the current route class: protected routes force a sign-out and
// surface [ErrRenewalFailed]; public and background-check routes
// swallow the failure and leave all state untouched.
func (s *Scheduler) Renew(ctx context.Context) error {
	if !s.inFlight.CompareAndSwap(false, true) {
		if s.deps.OnCollapsed != nil {
			s.deps.OnCollapsed()
		}
		return nil
	}
	defer s.inFlight.Store(false)

	out, err := s.deps.Do(ctx)
	if err != nil || out.Kind != httpapi.OutcomeAuthenticated {
		if s.deps.OnFailed != nil {
			s.deps.OnFailed(ctx, err)
		}
		if s.deps.CurrentClass() == routes.Protected {
			s.Stop()
			s.deps.OnForcedSignOut(ctx)
			if err != nil {
				return errors.Join(ErrRenewalFailed, err)
			}
			return ErrRenewalFailed
		}
		return nil
	}

	lifetime := s.Lifetime(out)
	s.deps.OnRenewed(out.Identity, lifetime)
	s.Schedule(lifetime)
	return nil
}

// Lifetime extracts the session lifetime from an outcome: the
// advertised expiresIn when present, otherwise the access token's own
// expiry claim, otherwise the configured fallback.
func (s *Scheduler) Lifetime(out *httpapi.AuthOutcome) time.Duration {
	if out.ExpiresIn > 0 {
		return time.Duration(out.ExpiresIn) * time.Second
	}
	if out.AccessToken != "" {
		if lifetime, ok := TokenLifetime(out.AccessToken, time.Now()); ok {
			return lifetime
		}
	}
	return s.deps.FallbackLifetime
}
