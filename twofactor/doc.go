// Package twofactor drives the client side of a second-factor
// challenge: method selection, code dispatch with resend cooldowns,
// verification attempts, and the escalation ladder that unlocks
// recovery-tier methods after repeated failures.
//
// The machine tracks one challenge from creation to success or
// abandonment. Unlocked methods never disappear again, the server's
// attempt counter is authoritative whenever it is ahead of the local
// one, and every timer the machine starts is cancelled on every exit
// path.
//
//	Docs: docs/twofactor.md
package twofactor
