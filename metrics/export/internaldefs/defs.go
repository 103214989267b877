package internaldefs

import (
	sessiongate "github.com/velatir/sessiongate"
)

// CounterDef defines a public type used by sessiongate APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   sessiongate.MetricID
	Name string
	Help string
}

// HistogramDef defines a public type used by sessiongate APIs.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   sessiongate.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the session manager.
var CounterDefs = []CounterDef{
	{ID: sessiongate.MetricResolvePublic, Name: "sessiongate_resolve_public_total", Help: "Resolutions short-circuited on a public path."},
	{ID: sessiongate.MetricResolveCacheHit, Name: "sessiongate_resolve_cache_hit_total", Help: "Resolutions answered from the cache."},
	{ID: sessiongate.MetricResolveCacheMiss, Name: "sessiongate_resolve_cache_miss_total", Help: "Resolutions that missed the cache."},
	{ID: sessiongate.MetricResolveAuthenticated, Name: "sessiongate_resolve_authenticated_total", Help: "Protected resolutions answered with an identity."},
	{ID: sessiongate.MetricResolveUnauthorized, Name: "sessiongate_resolve_unauthorized_total", Help: "Resolutions the backend answered as anonymous."},
	{ID: sessiongate.MetricResolveTransportError, Name: "sessiongate_resolve_transport_error_total", Help: "Identity checks that failed in transport."},
	{ID: sessiongate.MetricBackgroundCheck, Name: "sessiongate_background_check_total", Help: "Background identity checks started."},
	{ID: sessiongate.MetricBackgroundUpgrade, Name: "sessiongate_background_upgrade_total", Help: "Background checks that surfaced an identity."},
	{ID: sessiongate.MetricSignInSuccess, Name: "sessiongate_signin_success_total", Help: "Successful sign-in attempts."},
	{ID: sessiongate.MetricSignInFailure, Name: "sessiongate_signin_failure_total", Help: "Failed sign-in attempts."},
	{ID: sessiongate.MetricSignInTwoFactorRequired, Name: "sessiongate_signin_twofactor_required_total", Help: "Sign-in attempts requiring a second factor."},
	{ID: sessiongate.MetricTwoFactorSuccess, Name: "sessiongate_twofactor_success_total", Help: "Completed two-factor challenges."},
	{ID: sessiongate.MetricRenewalSuccess, Name: "sessiongate_renewal_success_total", Help: "Successful session renewals."},
	{ID: sessiongate.MetricRenewalCollapsed, Name: "sessiongate_renewal_collapsed_total", Help: "Renewal attempts dropped into an in-flight renewal."},
	{ID: sessiongate.MetricForcedSignOut, Name: "sessiongate_forced_signout_total", Help: "Sessions ended by a failed renewal on a protected path."},
	{ID: sessiongate.MetricSignOut, Name: "sessiongate_signout_total", Help: "Single-session sign-out operations."},
	{ID: sessiongate.MetricSignOutAll, Name: "sessiongate_signout_all_total", Help: "Sign-out-all operations."},
	{ID: sessiongate.MetricDeviceTrustChanged, Name: "sessiongate_device_trust_changed_total", Help: "Device trust changes."},
	{ID: sessiongate.MetricGuardRejected, Name: "sessiongate_guard_rejected_total", Help: "Account operations rejected by the operation guard."},
	{ID: sessiongate.MetricCacheBackendError, Name: "sessiongate_cache_backend_error_total", Help: "Cache backend failures downgraded to misses."},
}

// HistogramDefs is an exported constant or variable used by the session manager.
var HistogramDefs = []HistogramDef{
	{ID: sessiongate.MetricResolveLatency, Name: "sessiongate_resolve_latency_seconds", Help: "Resolve latency histogram."},
}

// HistogramBounds is an exported constant or variable used by the session manager.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is an exported constant or variable used by the session manager.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets describes the normalizebuckets operation and its observable behavior.
//
// NormalizeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets describes the cumulativebuckets operation and its observable behavior.
//
// CumulativeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
