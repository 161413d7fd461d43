package limiter

import (
	"context"
	"crypto/sha256"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PG is a PostgreSQL-backed limiter. It keeps two tables: an append-only
// log of failed attempts (auth_limiter_attempts) and the current lockout
// state (auth_limiter_blocks). Failure counts rows inside the sliding
// window at query time instead of maintaining a running counter, so a
// window with no recent activity ages out on its own rather than needing
// to be reset. Allow reads only the block row.
type PG struct {
	pool     pgxQuerier
	window   time.Duration
	maxFails int
	blockFor time.Duration
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed limiter.
func NewPG(pool *pgxpool.Pool, window time.Duration, maxFails int, blockFor time.Duration) *PG {
	return &PG{pool: pool, window: window, maxFails: maxFails, blockFor: blockFor}
}

// NewPGWithQuerier constructs a PostgreSQL-backed limiter against any
// pgxQuerier, so tests can substitute a pgxmock connection for the pool.
func NewPGWithQuerier(q pgxQuerier, window time.Duration, maxFails int, blockFor time.Duration) *PG {
	return &PG{pool: q, window: window, maxFails: maxFails, blockFor: blockFor}
}

// HashNodeID returns a stable hash for a transport node id, so the limiter
// tables never store raw peer addresses.
func HashNodeID(nodeID string) []byte {
	h := sha256.Sum256([]byte(nodeID))
	return h[:]
}

// Allow reports whether method is currently allowed for nodeHash and a
// retry-after duration when it is not.
func (l *PG) Allow(ctx context.Context, method string, nodeHash []byte) (bool, time.Duration, error) {
	const q = `SELECT blocked_until FROM auth_limiter_blocks WHERE method=$1 AND node_hash=$2`
	var blockedUntil time.Time
	err := l.pool.QueryRow(ctx, q, method, nodeHash).Scan(&blockedUntil)
	switch err {
	case nil:
		if until := time.Until(blockedUntil); until > 0 {
			return false, until, nil
		}
		return true, 0, nil
	case pgx.ErrNoRows:
		return true, 0, nil
	default:
		return false, 0, err
	}
}

// Success clears any block on (method, node). Past failed attempts are
// left in the log — they'll fall outside the window on their own, and the
// log is also useful audit trail of abuse history.
func (l *PG) Success(ctx context.Context, method string, nodeHash []byte) error {
	const q = `DELETE FROM auth_limiter_blocks WHERE method=$1 AND node_hash=$2`
	_, err := l.pool.Exec(ctx, q, method, nodeHash)
	return err
}

// Failure records a failed attempt and, once the sliding-window count
// reaches maxFails, places a block until now+blockFor.
func (l *PG) Failure(ctx context.Context, method string, nodeHash []byte) (bool, time.Duration, error) {
	const insert = `INSERT INTO auth_limiter_attempts (method, node_hash, attempted_at) VALUES ($1,$2,now())`
	if _, err := l.pool.Exec(ctx, insert, method, nodeHash); err != nil {
		return false, 0, err
	}

	const count = `
SELECT count(*) FROM auth_limiter_attempts
WHERE method=$1 AND node_hash=$2 AND attempted_at > now() - $3::interval`
	var fails int
	if err := l.pool.QueryRow(ctx, count, method, nodeHash, l.window).Scan(&fails); err != nil {
		return false, 0, err
	}
	if fails < l.maxFails {
		return false, 0, nil
	}

	blockUntil := time.Now().Add(l.blockFor)
	const upsert = `
INSERT INTO auth_limiter_blocks (method, node_hash, blocked_until)
VALUES ($1,$2,$3)
ON CONFLICT (method, node_hash) DO UPDATE SET blocked_until=EXCLUDED.blocked_until`
	if _, err := l.pool.Exec(ctx, upsert, method, nodeHash, blockUntil); err != nil {
		return false, 0, err
	}
	return true, l.blockFor, nil
}
