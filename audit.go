package sessiongate

import (
	"context"
	"errors"
	"time"

	"github.com/velatir/sessiongate/cache"
	"github.com/velatir/sessiongate/httpapi"
	"github.com/velatir/sessiongate/refresh"
	"github.com/velatir/sessiongate/twofactor"
)

const (
	auditEventResolvePublic        = "resolve_public"
	auditEventResolveCacheHit      = "resolve_cache_hit"
	auditEventResolveAuthenticated = "resolve_authenticated"
	auditEventResolveUnauthorized  = "resolve_unauthorized"
	auditEventResolveTransport     = "resolve_transport_error"
	auditEventBackgroundCheck      = "background_check"
	auditEventBackgroundUpgrade    = "background_upgrade"
	auditEventSignInSuccess        = "signin_success"
	auditEventSignInFailure        = "signin_failure"
	auditEventSignInTwoFactor      = "signin_twofactor_required"
	auditEventTwoFactorSuccess     = "twofactor_success"
	auditEventRenewalSuccess       = "renewal_success"
	auditEventRenewalFailure       = "renewal_failure"
	auditEventForcedSignOut        = "forced_signout"
	auditEventSignOut              = "signout"
	auditEventSignOutAll           = "signout_all"
	auditEventDeviceTrustChanged   = "device_trust_changed"
	auditEventGuardRejected        = "guard_rejected"
	auditEventCacheBackendError    = "cache_backend_error"
)

// AuditErrorCode defines a public type used by sessiongate APIs.
//
// AuditErrorCode instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrTransport          AuditErrorCode = "transport_error"
	auditErrServerPayload      AuditErrorCode = "server_payload"
	auditErrServerStatus       AuditErrorCode = "server_status"
	auditErrRenewalFailed      AuditErrorCode = "renewal_failed"
	auditErrCacheUnavailable   AuditErrorCode = "cache_backend_unavailable"
	auditErrCodeInvalid        AuditErrorCode = "code_invalid"
	auditErrThrottled          AuditErrorCode = "operation_throttled"
	auditErrInProgress         AuditErrorCode = "operation_in_progress"
	auditErrNotSignedIn        AuditErrorCode = "not_signed_in"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (m *Manager) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	path string,
	routeClass string,
	method string,
	fp string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if m == nil || m.audit == nil {
		return
	}
	if path == "" {
		path = clientPathFromContext(ctx)
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}
	if navID := navigationIDFromContext(ctx); navID != "" {
		if metadata == nil {
			metadata = map[string]string{}
		}
		metadata["navigation_id"] = navID
	}

	event := AuditEvent{
		Timestamp:   time.Now().UTC(),
		EventType:   eventType,
		UserID:      userID,
		Path:        path,
		RouteClass:  routeClass,
		Method:      method,
		Fingerprint: fp,
		Success:     success,
		Metadata:    metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	m.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrNotSignedIn):
		return auditErrNotSignedIn
	case errors.Is(err, ErrOperationThrottled):
		return auditErrThrottled
	case errors.Is(err, ErrOperationInProgress):
		return auditErrInProgress
	case errors.Is(err, refresh.ErrRenewalFailed):
		return auditErrRenewalFailed
	case errors.Is(err, cache.ErrBackendUnavailable):
		return auditErrCacheUnavailable
	case errors.Is(err, httpapi.ErrTransport):
		return auditErrTransport
	case errors.Is(err, httpapi.ErrServerPayload):
		return auditErrServerPayload
	case errors.Is(err, httpapi.ErrServerStatus):
		return auditErrServerStatus
	case errors.Is(err, twofactor.ErrCodeIncomplete),
		errors.Is(err, twofactor.ErrBackupCodeEmpty):
		return auditErrCodeInvalid
	case errors.Is(err, twofactor.ErrDispatchFailed),
		errors.Is(err, twofactor.ErrVerifyUnavailable):
		return auditErrTransport
	default:
		return auditErrInternal
	}
}
