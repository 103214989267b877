package sessiongate

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// opGuard serializes destructive account operations and enforces a
// minimum pause between them, absorbing double-submits from the UI.
type opGuard struct {
	mu          sync.Mutex
	inProgress  bool
	last        time.Time
	minInterval time.Duration
	now         func() time.Time
}

func newOpGuard(minInterval time.Duration, now func() time.Time) *opGuard {
	if now == nil {
		now = time.Now
	}
	return &opGuard{
		minInterval: minInterval,
		now:         now,
	}
}

// acquire claims the guard or reports why it cannot be claimed.
// Callers must release on every path once acquired.
func (g *opGuard) acquire() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.inProgress {
		return ErrOperationInProgress
	}
	if !g.last.IsZero() && g.now().Sub(g.last) < g.minInterval {
		return ErrOperationThrottled
	}
	g.inProgress = true
	return nil
}

func (g *opGuard) release() {
	g.mu.Lock()
	g.inProgress = false
	g.last = g.now()
	g.mu.Unlock()
}

// SignOut ends the current session.
//
// Local state is cleared even when the server call fails: the user
// asked to be signed out, and a dead backend must not pin them into a
// session. The server error is still returned so callers can surface
// it.
func (m *Manager) SignOut(ctx context.Context) error {
	return m.signOut(ctx, false)
}

// SignOutAll ends every session for the account, on this device and
// all others. Local handling matches [Manager.SignOut].
func (m *Manager) SignOutAll(ctx context.Context) error {
	return m.signOut(ctx, true)
}

func (m *Manager) signOut(ctx context.Context, all bool) error {
	if m == nil {
		return ErrManagerNotReady
	}
	if m.closed.Load() {
		return ErrManagerClosed
	}
	if err := m.guard.acquire(); err != nil {
		m.metrics.Inc(MetricGuardRejected)
		m.emitAudit(ctx, auditEventGuardRejected, false, "", "", "", "", "", err, nil)
		return err
	}
	defer m.guard.release()

	userID := identityID(m.CurrentUser())

	var err error
	if all {
		err = m.client.SignOutAll(ctx)
	} else {
		err = m.client.SignOut(ctx)
	}

	m.clearSession(ctx)

	eventType := auditEventSignOut
	metric := MetricSignOut
	if all {
		eventType = auditEventSignOutAll
		metric = MetricSignOutAll
	}
	m.metrics.Inc(metric)
	m.emitAudit(ctx, eventType, err == nil, userID, "", "", "", "", err, nil)
	m.bus.publish(Event{
		Reason:     EventSignedOut,
		RedirectTo: m.cfg.Routes.SignInPath,
	})

	if err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// SetDeviceTrust marks the current device as trusted or untrusted for
// the signed-in account.
//
// SetDeviceTrust may return an error when input validation, dependency calls, or security checks fail.
func (m *Manager) SetDeviceTrust(ctx context.Context, trusted bool) error {
	if m == nil {
		return ErrManagerNotReady
	}
	if m.closed.Load() {
		return ErrManagerClosed
	}

	user := m.CurrentUser()
	if user == nil {
		return ErrNotSignedIn
	}

	if err := m.guard.acquire(); err != nil {
		m.metrics.Inc(MetricGuardRejected)
		m.emitAudit(ctx, auditEventGuardRejected, false, user.UserID, "", "", "", "", err, nil)
		return err
	}
	defer m.guard.release()

	fp := m.fp.Generate(ctx)
	if err := m.client.SetDeviceTrust(ctx, trusted, fp.String(), m.deviceInfo()); err != nil {
		m.emitAudit(ctx, auditEventDeviceTrustChanged, false, user.UserID, "", "", "", fp.String(), err, nil)
		return fmt.Errorf("set device trust: %w", err)
	}

	user.DeviceTrusted = trusted
	m.setUser(user)
	// The cached resolution now lies about trust; drop it so the next
	// navigation re-fetches.
	_ = m.store.Invalidate(ctx)

	m.metrics.Inc(MetricDeviceTrustChanged)
	m.emitAudit(ctx, auditEventDeviceTrustChanged, true, user.UserID, "", "", "", fp.String(), nil, func() map[string]string {
		if trusted {
			return map[string]string{"trusted": "true"}
		}
		return map[string]string{"trusted": "false"}
	})
	m.bus.publish(Event{Reason: EventDeviceTrustChanged, User: user.Clone()})

	return nil
}
