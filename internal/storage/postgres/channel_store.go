package postgres

import (
	"context"

	"github.com/chenyukaola/feeds-service/internal/errs"
	"github.com/chenyukaola/feeds-service/internal/model"
	"github.com/chenyukaola/feeds-service/internal/storage"
)

// ChannelStore implements storage.ChannelStore.
type ChannelStore struct{ db *DB }

var _ storage.ChannelStore = (*ChannelStore)(nil)

// NewChannelStore constructs a channel store.
func NewChannelStore(db *DB) *ChannelStore { return &ChannelStore{db: db} }

// Insert persists a newly created channel.
func (s *ChannelStore) Insert(ctx context.Context, ch *model.Channel) error {
	const q = `
INSERT INTO channels (chan_id, name, intro, owner_uid, owner_name, owner_did, created_at, upd_at, subs, next_post_id, avatar)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
	_, err := s.db.Pool.Exec(ctx, q,
		ch.ChanID, ch.Name, ch.Intro, ch.Owner.UID, ch.Owner.Name, ch.Owner.DID,
		ch.CreatedAt, ch.UpdAt, ch.Subs, ch.NextPostID, ch.Avatar)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// UpdateCounters persists the in-memory-authoritative mutable fields of ch.
func (s *ChannelStore) UpdateCounters(ctx context.Context, ch *model.Channel) error {
	const q = `UPDATE channels SET subs=$2, next_post_id=$3, upd_at=$4 WHERE chan_id=$1`
	_, err := s.db.Pool.Exec(ctx, q, ch.ChanID, ch.Subs, ch.NextPostID, ch.UpdAt)
	return err
}

// LoadAll returns every channel, used once at startup to seed the
// subscription index.
func (s *ChannelStore) LoadAll(ctx context.Context) ([]*model.Channel, error) {
	const q = `
SELECT chan_id, name, intro, owner_uid, owner_name, owner_did, created_at, upd_at, subs, next_post_id, avatar
FROM channels ORDER BY chan_id`
	rows, err := s.db.Pool.Query(ctx, q)
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
