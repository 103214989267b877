// Package cache holds the short-lived resolution cache that lets
// navigations inside a small window skip the identity round trip.
// An entry is only usable while it is fresh AND was written for the
// same device fingerprint; either condition failing reads as a miss.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/velatir/sessiongate/fingerprint"
	"github.com/velatir/sessiongate/httpapi"
)

// ErrMiss is an exported constant or variable used by the resolution cache.
var ErrMiss = errors.New("auth cache miss")

// ErrBackendUnavailable is an exported constant or variable used by the resolution cache.
var ErrBackendUnavailable = errors.New("auth cache backend unavailable")

// DefaultTTL is the freshness window applied when a store is built
// with a non-positive TTL.
const DefaultTTL = 60 * time.Second

// Entry is one cached resolution. User may be nil: a cached anonymous
// result is as valid as a cached identity and saves the same round
// trip.
type Entry struct {
	User        *httpapi.Identity
	Fingerprint fingerprint.Digest
	CapturedAt  time.Time
}

// Store is the resolution cache contract. Reads validate freshness and
// fingerprint; writes are last-write-wins; Invalidate drops everything.
//
//	Docs: docs/resolution.md
type Store interface {
	// Read returns the cached entry when it is fresh and was captured
	// for the given fingerprint, and ErrMiss otherwise.
	Read(ctx context.Context, fp fingerprint.Digest) (*Entry, error)
	// Write replaces the cached entry atomically.
	Write(ctx context.Context, entry *Entry) error
	// Invalidate drops the cached entry.
	Invalidate(ctx context.Context) error
}
