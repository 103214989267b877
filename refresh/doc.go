// Package refresh keeps an authenticated session alive by renewing it
// shortly before expiry. One timer exists at a time: re-arming always
// supersedes the previous timer, and concurrent renewal attempts
// collapse into a single in-flight request.
//
// Failure policy is route-aware. A failed renewal on a protected page
// forces a sign-out; on a public page it is swallowed, because an
// anonymous render is already correct there.
//
//	Docs: docs/resolution.md
package refresh
