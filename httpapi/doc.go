// Package httpapi is the thin wire client for the platform's
// authentication endpoints. It owns the request and response shapes,
// converts HTTP status codes into tagged outcomes, and never interprets
// them: deciding what an outcome means for session state is the
// caller's job.
//
// Every response body is validated at this boundary. A payload the
// server should never produce is reported as [ErrServerPayload] rather
// than leaking half-decoded structs upward.
package httpapi
