package twofactor

// Method names a way of satisfying a second-factor challenge. The wire
// values match the server's method identifiers.
type Method string

const (
	// MethodAuthenticator is a TOTP code from an authenticator app.
	MethodAuthenticator Method = "totp"
	// MethodBackupCode is a single-use recovery code.
	MethodBackupCode Method = "backup_code"
	// MethodEmail is a one-time code delivered by email.
	MethodEmail Method = "email"
	// MethodSMS is a one-time code delivered by text message.
	MethodSMS Method = "sms"
	// MethodPasskey is a WebAuthn assertion performed by the host
	// environment.
	MethodPasskey Method = "passkey"
	// MethodRecoveryEmail is the recovery-tier email fallback unlocked
	// by escalation.
	MethodRecoveryEmail Method = "recovery_email"
	// MethodRecoverySMS is the recovery-tier SMS fallback unlocked by
	// escalation.
	MethodRecoverySMS Method = "recovery_sms"
)

// ParseMethod maps a wire identifier to a [Method].
func ParseMethod(s string) (Method, bool) {
	switch Method(s) {
	case MethodAuthenticator, MethodBackupCode, MethodEmail, MethodSMS,
		MethodPasskey, MethodRecoveryEmail, MethodRecoverySMS:
		return Method(s), true
	default:
		return "", false
	}
}

// DeliversCode reports whether selecting the method triggers a code
// dispatch to the user (and therefore a resend cooldown).
func (m Method) DeliversCode() bool {
	switch m {
	case MethodEmail, MethodSMS, MethodRecoveryEmail, MethodRecoverySMS:
		return true
	default:
		return false
	}
}

// RecoveryTier reports whether the method belongs to the escalation
// ladder. Recovery methods dispatch through their own endpoint.
func (m Method) RecoveryTier() bool {
	return m == MethodRecoveryEmail || m == MethodRecoverySMS
}

// TakesNumericCode reports whether verification input for the method
// is a fixed-length numeric code.
func (m Method) TakesNumericCode() bool {
	switch m {
	case MethodAuthenticator, MethodEmail, MethodSMS, MethodRecoveryEmail, MethodRecoverySMS:
		return true
	default:
		return false
	}
}
