// Package fingerprint derives a stable device digest from environment
// probes supplied by the embedding shell (browser bridge, desktop
// wrapper, test double).
//
// Every probe is allowed to fail: a blocked canvas, a muted audio
// stack, or a privacy extension each degrade to a fixed sentinel value
// instead of failing generation. Generation therefore always produces
// a digest, and the digest stays stable for a given environment even
// when parts of that environment refuse to be probed.
//
//	Docs: docs/resolution.md
package fingerprint
