// Package sessiongate manages client-side authentication sessions for a
// course platform: device fingerprinting, a short-lived resolution
// cache, proactive token renewal, route-aware identity checks, and
// escalating multi-method two-factor challenges.
//
// The package is designed for concurrent embedding shells: Manager
// methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// sessiongate is the public surface. It exposes [Manager], [Builder],
// [Config], and value types (Resolution, Event, MetricsSnapshot, etc.).
// The wire protocol lives in httpapi, route classification in routes,
// fingerprinting in fingerprint, the resolution cache in cache, renewal
// timing in refresh, and challenge flow in twofactor. Audit dispatch is
// internal and never exported directly.
//
// # What this package must NOT do
//
//   - Force a navigation from a public or background-check resolution;
//     only protected paths and the auth-page upgrade carry redirects.
//   - Block rendering on anything but a protected path's identity check.
//   - Expose Redis clients or cache encoding details in its public API.
//
// # Performance contract
//
// Resolve is the hot path. A public path completes without network or
// cache I/O; a cache hit completes without network I/O. The fingerprint
// is computed once per process and memoized.
package sessiongate
