// Package limiter throttles callers that keep presenting invalid tokens.
package limiter

import (
	"context"
	"crypto/sha256"
	"net"
	"time"

	"github.com/and161185/riffid/internal/reqattr"
)

// Limiter tracks failed authentications per caller key and imposes temporary blocks.
type Limiter interface {
	// Allow reports whether the caller may authenticate and an optional retry-after.
	Allow(ctx context.Context, key []byte) (bool, time.Duration, error)
	// Success resets the caller's counters.
	Success(ctx context.Context, key []byte) error
	// Failure records a failed attempt; it reports whether the caller is now blocked.
	Failure(ctx context.Context, key []byte) (bool, time.Duration, error)
}

// HashIP returns a stable hash of the host part of addr so raw addresses are never stored.
func HashIP(addr string) []byte {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	h := sha256.Sum256([]byte(addr))
	return h[:]
}

// CallerKey derives the throttle key for the request bound to ctx.
// Only the transport peer address is used; headers such as X-Tenant or
// X-Forwarded-For are client controlled and never part of the key.
func CallerKey(ctx context.Context) ([]byte, bool) {
	a, ok := reqattr.Get(ctx)
	if !ok || a.RemoteAddr == "" {
		return nil, false
	}
	return HashIP(a.RemoteAddr), true
}
