package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/chenyukaola/feeds-service/internal/errs"
	"github.com/chenyukaola/feeds-service/internal/model"
	"github.com/chenyukaola/feeds-service/internal/storage"
)

// SubscriptionStore implements storage.SubscriptionStore.
type SubscriptionStore struct{ db *DB }

var _ storage.SubscriptionStore = (*SubscriptionStore)(nil)

// NewSubscriptionStore constructs a subscription store.
func NewSubscriptionStore(db *DB) *SubscriptionStore { return &SubscriptionStore{db: db} }

// Insert records that userID subscribed to chanID.
func (s *SubscriptionStore) Insert(ctx context.Context, sub *model.Subscription) error {
	const q = `INSERT INTO subscriptions (user_id, chan_id) VALUES ($1,$2)`
	_, err := s.db.Pool.Exec(ctx, q, sub.UserID, sub.ChanID)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// Delete removes a subscription, used by unsubscribe_channel.
func (s *SubscriptionStore) Delete(ctx context.Context, userID string, chanID uint64) error {
	const q = `DELETE FROM subscriptions WHERE user_id=$1 AND chan_id=$2`
	tag, err := s.db.Pool.Exec(ctx, q, userID, chanID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrWrongState
	}
	return nil
}

// Exists reports whether userID is subscribed to chanID.
func (s *SubscriptionStore) Exists(ctx context.Context, userID string, chanID uint64) (bool, error) {
	const q = `SELECT 1 FROM subscriptions WHERE user_id=$1 AND chan_id=$2`
	var one int
	err := s.db.Pool.QueryRow(ctx, q, userID, chanID).Scan(&one)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, pgx.ErrNoRows):
		return false, nil
	default:
		return false, err
	}
}

// CountByChannel returns the number of distinct subscribers, used to check
// the subs invariant against the in-memory Channel counter.
func (s *SubscriptionStore) CountByChannel(ctx context.Context, chanID uint64) (uint64, error) {
	const q = `SELECT COUNT(*) FROM subscriptions WHERE chan_id=$1`
	var n uint64
	err := s.db.Pool.QueryRow(ctx, q, chanID).Scan(&n)
	return n, err
}

// ListChannelsByUser answers get_subscribed_channels.
func (s *SubscriptionStore) ListChannelsByUser(ctx context.Context, userID string, q model.QueryCriteria) ([]*model.Channel, error) {
	clause, args := rangeClause("c.chan_id", q, 2)
	sql := `
SELECT c.chan_id, c.name, c.intro, c.owner_uid, c.owner_name, c.owner_did, c.created_at, c.upd_at, c.subs, c.next_post_id, c.avatar
FROM channels c
JOIN subscriptions s ON s.chan_id = c.chan_id
WHERE s.user_id = $1` + clause
	rows, err := s.db.Pool.Query(ctx, sql, append([]any{userID}, args...)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Channel
	for rows.Next() {
		ch := &model.Channel{}
		if err := rows.Scan(&ch.ChanID, &ch.Name, &ch.Intro, &ch.Owner.UID, &ch.Owner.Name, &ch.Owner.DID,
			&ch.CreatedAt, &ch.UpdAt, &ch.Subs, &ch.NextPostID, &ch.Avatar); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}
