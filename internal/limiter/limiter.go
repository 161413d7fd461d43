// Package limiter throttles abuse of the unauthenticated entry points
// (sign_in, did_auth) by method name and a hash of the calling peer's
// transport node id.
package limiter

import (
	"context"
	"time"
)

// Limiter controls attempt rates and temporary lockouts per (method, node).
type Limiter interface {
	// Allow reports whether method is currently allowed for nodeHash and an
	// optional retry-after when it is not.
	Allow(ctx context.Context, method string, nodeHash []byte) (bool, time.Duration, error)
	// Success clears any block after a successful call; recorded failed
	// attempts are kept.
	Success(ctx context.Context, method string, nodeHash []byte) error
	// Failure records a failed attempt; may place a temporary block.
	Failure(ctx context.Context, method string, nodeHash []byte) (bool, time.Duration, error)
}
