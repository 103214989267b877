package twofactor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/velatir/sessiongate/httpapi"
)

var (
	// ErrClientRequired is an exported constant or variable used by the two-factor machine.
	ErrClientRequired = errors.New("challenge client required")
	// ErrChallengeRequired is an exported constant or variable used by the two-factor machine.
	ErrChallengeRequired = errors.New("two-factor challenge required")
	// ErrChallengeCompleted is an exported constant or variable used by the two-factor machine.
	ErrChallengeCompleted = errors.New("two-factor challenge already completed")
	// ErrNoActiveMethod is an exported constant or variable used by the two-factor machine.
	ErrNoActiveMethod = errors.New("no verification method selected")
	// ErrUnknownMethod is an exported constant or variable used by the two-factor machine.
	ErrUnknownMethod = errors.New("unknown verification method")
	// ErrMethodNotOffered is an exported constant or variable used by the two-factor machine.
	ErrMethodNotOffered = errors.New("verification method not offered for this challenge")
	// ErrAttemptInFlight is an exported constant or variable used by the two-factor machine.
	ErrAttemptInFlight = errors.New("verification attempt already in flight")
	// ErrCodeIncomplete is an exported constant or variable used by the two-factor machine.
	ErrCodeIncomplete = errors.New("verification code incomplete")
	// ErrBackupCodeEmpty is an exported constant or variable used by the two-factor machine.
	ErrBackupCodeEmpty = errors.New("backup code empty after normalization")
	// ErrPasskeyUnavailable is an exported constant or variable used by the two-factor machine.
	ErrPasskeyUnavailable = errors.New("passkey ceremony unavailable")
	// ErrDispatchFailed is an exported constant or variable used by the two-factor machine.
	ErrDispatchFailed = errors.New("verification code dispatch failed")
	// ErrVerifyUnavailable is an exported constant or variable used by the two-factor machine.
	ErrVerifyUnavailable = errors.New("verification backend unavailable")
)

// State is the machine's position in the challenge flow.
type State int

const (
	// StateSelecting means no method is active; the user is choosing.
	StateSelecting State = iota
	// StateChallenging means a method is active and awaiting input.
	StateChallenging
	// StateVerifying means an attempt is in flight.
	StateVerifying
	// StateDone means the challenge succeeded or was abandoned; the
	// machine accepts no further operations.
	StateDone
)

// Config tunes challenge behavior.
type Config struct {
	// ResendCooldown is the pause enforced between code dispatches for
	// the same method.
	ResendCooldown time.Duration
	// CodeDigits is the expected length of numeric codes.
	CodeDigits int
	// EscalationThreshold is the failed-attempt count at which
	// recovery-tier methods unlock locally, independent of the server
	// advertising them.
	EscalationThreshold int
}

func (c *Config) withDefaults() {
	if c.ResendCooldown <= 0 {
		c.ResendCooldown = time.Minute
	}
	if c.CodeDigits <= 0 {
		c.CodeDigits = 6
	}
	if c.EscalationThreshold <= 0 {
		c.EscalationThreshold = 3
	}
}

// ChallengeClient is the slice of the wire client the machine needs.
type ChallengeClient interface {
	VerifyTwoFactor(ctx context.Context, req httpapi.VerifyRequest) (*httpapi.VerifyOutcome, error)
	RequestCode(ctx context.Context, sessionID, method string) (*httpapi.ChallengeReceipt, error)
	RequestAdditionalCode(ctx context.Context, sessionID, method string) (*httpapi.ChallengeReceipt, error)
}

// PasskeyCeremony runs the host's WebAuthn assertion flow and returns
// the serialized assertion to submit. Implementations live in the
// embedding shell; the machine only drives them.
type PasskeyCeremony interface {
	Authenticate(ctx context.Context, sessionID string) (string, error)
}

// Completion receives the accepted outcome exactly once, after the
// machine has already moved to [StateDone].
type Completion func(*httpapi.VerifyOutcome)

// Snapshot is a read-only view of the machine for rendering.
type Snapshot struct {
	State             State
	SessionID         string
	Methods           []Method
	AdditionalMethods []Method
	// AdditionalUnlocked stays true once escalation has triggered,
	// even if a later server response omits the recovery methods.
	AdditionalUnlocked bool
	Active             Method
	FailedAttempts     int
	// ResendRemaining is the cooldown left before another code can be
	// dispatched, in whole seconds.
	ResendRemaining int
	// Warning carries the most recent server rejection message.
	Warning string
}

// Machine drives one two-factor challenge from method selection to
// success or abandonment.
//
//	Docs: docs/twofactor.md
type Machine struct {
	client   ChallengeClient
	passkey  PasskeyCeremony
	cfg      Config
	complete Completion

	mu         sync.Mutex
	state      State
	sessionID  string
	methods    []Method
	additional []Method
	unlocked   bool
	active     Method
	failed     int
	trust      bool
	warning    string

	cooldown     int
	cooldownStop chan struct{}
}

// NewMachine builds a [Machine] for a pending challenge. passkey may
// be nil when the host cannot run assertion ceremonies; complete may
// be nil.
func NewMachine(client ChallengeClient, passkey PasskeyCeremony, challenge *httpapi.TwoFactorChallenge, cfg Config, complete Completion) (*Machine, error) {
	if client == nil {
		return nil, ErrClientRequired
	}
	if challenge == nil || challenge.SessionID == "" || len(challenge.Methods) == 0 {
		return nil, ErrChallengeRequired
	}
	cfg.withDefaults()

	m := &Machine{
		client:    client,
		passkey:   passkey,
		cfg:       cfg,
		complete:  complete,
		state:     StateSelecting,
		sessionID: challenge.SessionID,
		failed:    challenge.FailedAttempts,
	}
	for _, raw := range challenge.Methods {
		if method, ok := ParseMethod(raw); ok {
			m.methods = appendMethod(m.methods, method)
		}
	}
	if len(challenge.AdditionalMethods) > 0 {
		m.unlockLocked(challenge.AdditionalMethods)
	}
	if len(m.methods) == 0 {
		return nil, ErrChallengeRequired
	}
	return m, nil
}

// SelectMethod activates a verification method. Code-delivering
// methods dispatch a code immediately and start the resend cooldown;
// recovery-tier methods dispatch through their dedicated endpoint.
// Selecting the passkey method runs the assertion ceremony and submits
// its result in the same call.
//
// SelectMethod may return an error when input validation, dependency
// calls, or security checks fail.
func (m *Machine) SelectMethod(ctx context.Context, method Method) error {
	if _, ok := ParseMethod(string(method)); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}

	m.mu.Lock()
	switch m.state {
	case StateDone:
		m.mu.Unlock()
		return ErrChallengeCompleted
	case StateVerifying:
		m.mu.Unlock()
		return ErrAttemptInFlight
	}
	if !containsMethod(m.methods, method) && !containsMethod(m.additional, method) {
		m.mu.Unlock()
		return ErrMethodNotOffered
	}

	m.active = method
	m.state = StateChallenging
	m.warning = ""
	sessionID := m.sessionID
	m.mu.Unlock()

	if method.DeliversCode() {
		if err := m.dispatchCode(ctx, sessionID, method); err != nil {
			m.mu.Lock()
			m.active = ""
			m.state = StateSelecting
			m.mu.Unlock()
			return err
		}
		return nil
	}

	if method == MethodPasskey {
		return m.runPasskey(ctx, sessionID)
	}
	return nil
}

// Verify submits one attempt for the active method. Numeric methods
// validate length client-side before any network traffic; backup codes
// are normalized first and an input that normalizes to nothing is
// rejected locally.
//
// A server rejection is returned as an outcome, not an error, and
// advances the escalation ladder.
func (m *Machine) Verify(ctx context.Context, input string) (*httpapi.VerifyOutcome, error) {
	m.mu.Lock()
	if m.state == StateDone {
		m.mu.Unlock()
		return nil, ErrChallengeCompleted
	}
	if m.state == StateVerifying {
		m.mu.Unlock()
		return nil, ErrAttemptInFlight
	}
	if m.active == "" {
		m.mu.Unlock()
		return nil, ErrNoActiveMethod
	}

	req := httpapi.VerifyRequest{
		SessionID:       m.sessionID,
		Method:          string(m.active),
		TrustThisDevice: m.trust,
	}
	switch {
	case m.active.TakesNumericCode():
		code := normalizeCode(input)
		if len(code) != m.cfg.CodeDigits || !isDigits(code) {
			m.mu.Unlock()
			return nil, ErrCodeIncomplete
		}
		req.Code = code
	case m.active == MethodBackupCode:
		normalized := NormalizeBackupCode(input)
		if normalized == "" {
			m.mu.Unlock()
			return nil, ErrBackupCodeEmpty
		}
		req.BackupCode = normalized
	case m.active == MethodPasskey:
		if input == "" {
			m.mu.Unlock()
			return nil, ErrPasskeyUnavailable
		}
		req.PasskeyResponse = input
	}

	m.state = StateVerifying
	m.mu.Unlock()

	return m.submit(ctx, req)
}

func (m *Machine) submit(ctx context.Context, req httpapi.VerifyRequest) (*httpapi.VerifyOutcome, error) {
	out, err := m.client.VerifyTwoFactor(ctx, req)
	if err != nil {
		m.mu.Lock()
		m.state = StateChallenging
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrVerifyUnavailable, err)
	}

	m.mu.Lock()
	if out.OK {
		m.state = StateDone
		m.warning = ""
		m.stopCooldownLocked()
		complete := m.complete
		m.mu.Unlock()
		if complete != nil {
			complete(out)
		}
		return out, nil
	}

	// Rejection: the server's counter wins when it is ahead, so a
	// challenge resumed in a second tab cannot reset the ladder.
	m.failed++
	if out.FailedAttempts > m.failed {
		m.failed = out.FailedAttempts
	}
	if len(out.AdditionalMethods) > 0 {
		m.unlockLocked(out.AdditionalMethods)
	}
	if m.failed >= m.cfg.EscalationThreshold {
		m.unlocked = true
	}
	m.warning = out.Message
	if m.active == MethodPasskey {
		// A failed assertion cannot be retried in place; back to the
		// method list.
		m.active = ""
		m.state = StateSelecting
	} else {
		m.state = StateChallenging
	}
	m.mu.Unlock()

	return out, nil
}

// Resend dispatches another code for the active method. While the
// cooldown is running the call is a no-op and reports false.
func (m *Machine) Resend(ctx context.Context) (bool, error) {
	m.mu.Lock()
	if m.state == StateDone {
		m.mu.Unlock()
		return false, ErrChallengeCompleted
	}
	if m.active == "" || !m.active.DeliversCode() {
		m.mu.Unlock()
		return false, ErrNoActiveMethod
	}
	if m.cooldown > 0 {
		m.mu.Unlock()
		return false, nil
	}
	sessionID, method := m.sessionID, m.active
	m.mu.Unlock()

	if err := m.dispatchCode(ctx, sessionID, method); err != nil {
		return false, err
	}
	return true, nil
}

// SetTrustDevice records whether the accepted verification should also
// mark this device as trusted. It rides on the next Verify call.
func (m *Machine) SetTrustDevice(trust bool) {
	m.mu.Lock()
	m.trust = trust
	m.mu.Unlock()
}

// Abandon terminates the challenge and cancels its timers. The machine
// accepts no operations afterwards.
func (m *Machine) Abandon() {
	m.mu.Lock()
	m.state = StateDone
	m.active = ""
	m.stopCooldownLocked()
	m.mu.Unlock()
}

// Snapshot returns a copy of the visible machine state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Snapshot{
		State:              m.state,
		SessionID:          m.sessionID,
		Methods:            append([]Method(nil), m.methods...),
		AdditionalMethods:  append([]Method(nil), m.additional...),
		AdditionalUnlocked: m.unlocked,
		Active:             m.active,
		FailedAttempts:     m.failed,
		ResendRemaining:    m.cooldown,
		Warning:            m.warning,
	}
}

func (m *Machine) runPasskey(ctx context.Context, sessionID string) error {
	if m.passkey == nil {
		m.mu.Lock()
		m.active = ""
		m.state = StateSelecting
		m.mu.Unlock()
		return ErrPasskeyUnavailable
	}

	assertion, err := m.passkey.Authenticate(ctx, sessionID)
	if err != nil || assertion == "" {
		m.mu.Lock()
		m.active = ""
		m.state = StateSelecting
		m.mu.Unlock()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPasskeyUnavailable, err)
		}
		return ErrPasskeyUnavailable
	}

	m.mu.Lock()
	m.state = StateVerifying
	req := httpapi.VerifyRequest{
		SessionID:       sessionID,
		Method:          string(MethodPasskey),
		PasskeyResponse: assertion,
		TrustThisDevice: m.trust,
	}
	m.mu.Unlock()

	_, err = m.submit(ctx, req)
	return err
}

// dispatchCode routes primary methods through the standard endpoint
// and recovery-tier methods through the additional-code endpoint.
func (m *Machine) dispatchCode(ctx context.Context, sessionID string, method Method) error {
	var (
		receipt *httpapi.ChallengeReceipt
		err     error
	)
	if method.RecoveryTier() {
		receipt, err = m.client.RequestAdditionalCode(ctx, sessionID, string(method))
	} else {
		receipt, err = m.client.RequestCode(ctx, sessionID, string(method))
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}
	if !receipt.Delivered {
		return ErrDispatchFailed
	}

	cooldown := m.cfg.ResendCooldown
	if receipt.RetryAfter > 0 {
		cooldown = time.Duration(receipt.RetryAfter) * time.Second
	}

	m.mu.Lock()
	m.startCooldownLocked(cooldown)
	m.mu.Unlock()
	return nil
}

// startCooldownLocked begins the resend cooldown, counted down once
// per second. A fresh stop channel supersedes any running countdown so
// only one ticker lives at a time.
func (m *Machine) startCooldownLocked(cooldown time.Duration) {
	m.stopCooldownLocked()

	seconds := int(cooldown / time.Second)
	if seconds <= 0 {
		m.cooldown = 0
		return
	}
	m.cooldown = seconds

	stop := make(chan struct{})
	m.cooldownStop = stop

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.mu.Lock()
				if m.cooldownStop != stop {
					m.mu.Unlock()
					return
				}
				m.cooldown--
				if m.cooldown <= 0 {
					m.cooldown = 0
					m.cooldownStop = nil
					m.mu.Unlock()
					return
				}
				m.mu.Unlock()
			}
		}
	}()
}

func (m *Machine) stopCooldownLocked() {
	if m.cooldownStop != nil {
		close(m.cooldownStop)
		m.cooldownStop = nil
	}
	m.cooldown = 0
}

// unlockLocked merges newly advertised recovery methods. Methods are
// only ever added; an unlocked method never disappears from the list.
func (m *Machine) unlockLocked(raw []string) {
	for _, name := range raw {
		if method, ok := ParseMethod(name); ok {
			m.additional = appendMethod(m.additional, method)
		}
	}
	if len(m.additional) > 0 {
		m.unlocked = true
	}
}

func appendMethod(list []Method, method Method) []Method {
	if containsMethod(list, method) {
		return list
	}
	return append(list, method)
}

func containsMethod(list []Method, method Method) bool {
	for _, existing := range list {
		if existing == method {
			return true
		}
	}
	return false
}
