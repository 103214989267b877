package httpapi

// Identity is the authenticated user snapshot as the server reports it.
// Identity instances are intended to be treated as immutable once
// handed to callers; use [Identity.Clone] before mutating a copy.
type Identity struct {
	UserID             string `json:"id"`
	Email              string `json:"email"`
	Name               string `json:"name,omitempty"`
	EmailVerified      bool   `json:"emailVerified"`
	TwoFactorEnabled   bool   `json:"twoFactorEnabled"`
	BiometricEnabled   bool   `json:"biometricEnabled"`
	DeviceTrusted      bool   `json:"deviceTrusted"`
	SuspiciousActivity bool   `json:"suspiciousActivity"`
}

// Clone returns a copy that is safe to mutate independently.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	clone := *i
	return &clone
}

// OutcomeKind tags an [AuthOutcome] with what the server decided.
type OutcomeKind int

const (
	// OutcomeAuthenticated carries a usable identity snapshot.
	OutcomeAuthenticated OutcomeKind = iota
	// OutcomeUnauthorized means the server rejected the credentials or
	// session. It is a result, not an error: transport worked.
	OutcomeUnauthorized
	// OutcomeTwoFactorRequired means credentials were accepted but a
	// second factor must be verified before a session exists.
	OutcomeTwoFactorRequired
)

// AuthOutcome is the decoded result of a sign-in, identity, or renewal
// call. Exactly one of Identity and TwoFactor is populated depending on
// Kind.
type AuthOutcome struct {
	Kind      OutcomeKind
	Identity  *Identity
	TwoFactor *TwoFactorChallenge

	// AccessToken is the short-lived bearer token, when the deployment
	// exposes it to the client instead of relying on cookies alone.
	AccessToken string
	// ExpiresIn is the advertised session lifetime in seconds. Zero
	// means the server did not say.
	ExpiresIn int64
}

// TwoFactorChallenge describes a pending second-factor requirement.
type TwoFactorChallenge struct {
	SessionID         string   `json:"sessionId"`
	Methods           []string `json:"methods"`
	AdditionalMethods []string `json:"additionalMethods,omitempty"`
	FailedAttempts    int      `json:"failedAttempts,omitempty"`
}

// VerifyOutcome is the decoded result of a second-factor verification
// attempt. OK distinguishes acceptance from rejection; rejection is a
// result, not an error.
type VerifyOutcome struct {
	OK       bool
	Identity *Identity

	AccessToken string
	ExpiresIn   int64

	// FailedAttempts is the server-side attempt counter after this try.
	FailedAttempts int
	// AdditionalMethods lists recovery-tier methods the server has
	// unlocked for this challenge, if any.
	AdditionalMethods []string
	// Message is the server's human-readable rejection reason, if any.
	Message string
}

// ChallengeReceipt acknowledges that a verification code was (or was
// not) dispatched to the user.
type ChallengeReceipt struct {
	Delivered   bool   `json:"delivered"`
	Destination string `json:"destination,omitempty"`
	// RetryAfter is the server-suggested resend cooldown in seconds.
	RetryAfter int `json:"retryAfter,omitempty"`
}

// DeviceInfo describes the installation making the request. It rides
// along with sign-in and device-trust calls so the server can correlate
// sessions with devices.
type DeviceInfo struct {
	InstallID string `json:"installId"`
	UserAgent string `json:"userAgent"`
	Platform  string `json:"platform"`
	Timezone  string `json:"timezone"`
}

// SignInRequest is the credential payload for [Client.SignIn].
type SignInRequest struct {
	Email             string     `json:"email"`
	Password          string     `json:"password"`
	RememberMe        bool       `json:"rememberMe"`
	DeviceFingerprint string     `json:"deviceFingerprint"`
	Device            DeviceInfo `json:"deviceInfo"`
}

// VerifyRequest is the payload for [Client.VerifyTwoFactor]. Exactly
// one of Code, BackupCode, and PasskeyResponse is set, matching Method.
type VerifyRequest struct {
	SessionID       string `json:"sessionId"`
	Method          string `json:"method"`
	Code            string `json:"code,omitempty"`
	BackupCode      string `json:"backupCode,omitempty"`
	PasskeyResponse string `json:"passkeyResponse,omitempty"`
	TrustThisDevice bool   `json:"trustThisDevice,omitempty"`
}
