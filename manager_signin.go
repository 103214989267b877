package sessiongate

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/velatir/sessiongate/httpapi"
	"github.com/velatir/sessiongate/twofactor"
)

// SignInResult is returned by [Manager.SignIn]. Exactly one of User
// and TwoFactor is non-nil on success.
type SignInResult struct {
	// User is set when the credentials alone established a session.
	User *httpapi.Identity
	// TwoFactor is set when the backend requires a second factor. The
	// machine drives the challenge; the manager adopts the session
	// automatically when the machine completes.
	//
	//	Docs: docs/twofactor.md
	TwoFactor *twofactor.Machine
}

// SignIn authenticates with email and password.
//
// An invalid credential pair returns [ErrInvalidCredentials]. A
// two-factor requirement is not an error: the result carries a
// challenge machine instead of a user.
//
// SignIn may return an error when input validation, dependency calls, or security checks fail.
func (m *Manager) SignIn(ctx context.Context, email, password string, rememberMe bool) (*SignInResult, error) {
	if m == nil {
		return nil, ErrManagerNotReady
	}
	if m.closed.Load() {
		return nil, ErrManagerClosed
	}
	if strings.TrimSpace(email) == "" {
		return nil, ErrEmailRequired
	}
	if password == "" {
		return nil, ErrPasswordRequired
	}

	fp := m.fp.Generate(ctx)
	out, err := m.client.SignIn(ctx, httpapi.SignInRequest{
		Email:             strings.TrimSpace(email),
		Password:          password,
		RememberMe:        rememberMe,
		DeviceFingerprint: fp.String(),
		Device:            m.deviceInfo(),
	})
	if err != nil {
		m.metrics.Inc(MetricSignInFailure)
		m.emitAudit(ctx, auditEventSignInFailure, false, "", "", "", "", fp.String(), err, nil)
		return nil, fmt.Errorf("sign in: %w", err)
	}

	switch out.Kind {
	case httpapi.OutcomeTwoFactorRequired:
		var machine *twofactor.Machine
		machine, err = twofactor.NewMachine(m.client, m.passkey, out.TwoFactor, twofactor.Config{
			ResendCooldown:      m.cfg.TwoFactor.ResendCooldown,
			CodeDigits:          m.cfg.TwoFactor.CodeDigits,
			EscalationThreshold: m.cfg.TwoFactor.EscalationThreshold,
		}, func(vo *httpapi.VerifyOutcome) {
			m.completeTwoFactor(machine.Snapshot().Active, vo)
		})
		if err != nil {
			return nil, fmt.Errorf("sign in: %w", err)
		}
		m.metrics.Inc(MetricSignInTwoFactorRequired)
		m.emitAudit(ctx, auditEventSignInTwoFactor, true, "", "", "", "", fp.String(), nil, func() map[string]string {
			return map[string]string{"session_id": out.TwoFactor.SessionID}
		})
		return &SignInResult{TwoFactor: machine}, nil

	case httpapi.OutcomeAuthenticated:
		m.adopt(ctx, out, fp)
		m.metrics.Inc(MetricSignInSuccess)
		m.emitAudit(ctx, auditEventSignInSuccess, true, identityID(out.Identity), "", "", "", fp.String(), nil, nil)
		m.bus.publish(Event{Reason: EventSignedIn, User: out.Identity.Clone()})
		return &SignInResult{User: out.Identity.Clone()}, nil

	default:
		m.metrics.Inc(MetricSignInFailure)
		m.emitAudit(ctx, auditEventSignInFailure, false, "", "", "", "", fp.String(), ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}
}

// completeTwoFactor adopts the session a challenge machine produced.
// It runs on the machine's goroutine, after the machine has already
// entered its done state.
func (m *Manager) completeTwoFactor(method twofactor.Method, vo *httpapi.VerifyOutcome) {
	if vo == nil || vo.Identity == nil || m.closed.Load() {
		return
	}

	ctx := context.Background()
	fp := m.fp.Generate(ctx)
	m.adopt(ctx, &httpapi.AuthOutcome{
		Kind:        httpapi.OutcomeAuthenticated,
		Identity:    vo.Identity,
		AccessToken: vo.AccessToken,
		ExpiresIn:   vo.ExpiresIn,
	}, fp)

	m.metrics.Inc(MetricTwoFactorSuccess)
	m.emitAudit(ctx, auditEventTwoFactorSuccess, true, identityID(vo.Identity), "", "", string(method), fp.String(), nil, nil)
	m.bus.publish(Event{Reason: EventSignedIn, User: vo.Identity.Clone()})
}

func (m *Manager) deviceInfo() httpapi.DeviceInfo {
	zone, _ := time.Now().Zone()
	return httpapi.DeviceInfo{
		InstallID: m.installID,
		UserAgent: m.cfg.API.UserAgent,
		Platform:  runtime.GOOS,
		Timezone:  zone,
	}
}
