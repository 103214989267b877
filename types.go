package sessiongate

import (
	"io"

	internalaudit "github.com/velatir/sessiongate/internal/audit"

	"github.com/velatir/sessiongate/cache"
	"github.com/velatir/sessiongate/httpapi"
	"github.com/velatir/sessiongate/routes"
)

// Identity is the authenticated account as the backend reports it.
//
//	Docs: docs/resolution.md
type Identity = httpapi.Identity

// DeviceInfo describes the installation the manager reports to the
// backend on sign-in and verification calls.
type DeviceInfo = httpapi.DeviceInfo

// TwoFactorChallenge is the second-factor state returned when a
// sign-in requires verification.
//
//	Docs: docs/twofactor.md
type TwoFactorChallenge = httpapi.TwoFactorChallenge

// RouteClass identifies how a path is treated during resolution.
//
//	Docs: docs/resolution.md
type RouteClass = routes.Class

const (
	// RoutePublic is an exported constant or variable used by the session manager.
	RoutePublic = routes.Public
	// RoutePublicWithBackgroundCheck is an exported constant or variable used by the session manager.
	RoutePublicWithBackgroundCheck = routes.PublicWithBackgroundCheck
	// RouteProtected is an exported constant or variable used by the session manager.
	RouteProtected = routes.Protected
)

// CacheStore is the interface resolution caches implement. The built-in
// implementations are [cache.MemoryStore] and [cache.RedisStore].
type CacheStore = cache.Store

// CacheEntry is a single cached resolution.
type CacheEntry = cache.Entry

// AuditEvent is a structured audit record emitted by the manager.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the manager's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
