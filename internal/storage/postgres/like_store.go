package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/chenyukaola/feeds-service/internal/errs"
	"github.com/chenyukaola/feeds-service/internal/model"
	"github.com/chenyukaola/feeds-service/internal/storage"
)

// LikeStore implements storage.LikeStore.
type LikeStore struct{ db *DB }

var _ storage.LikeStore = (*LikeStore)(nil)

// NewLikeStore constructs a like store.
func NewLikeStore(db *DB) *LikeStore { return &LikeStore{db: db} }

// Insert records that like.UserID liked the subject.
func (s *LikeStore) Insert(ctx context.Context, like *model.Like) error {
	const q = `INSERT INTO likes (user_id, chan_id, post_id, cmt_id) VALUES ($1,$2,$3,$4)`
	_, err := s.db.Pool.Exec(ctx, q, like.UserID, like.ChanID, like.PostID, like.CmtID)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// Delete removes a like row, used by post_unlike.
func (s *LikeStore) Delete(ctx context.Context, like *model.Like) error {
	const q = `DELETE FROM likes WHERE user_id=$1 AND chan_id=$2 AND post_id=$3 AND cmt_id=$4`
	tag, err := s.db.Pool.Exec(ctx, q, like.UserID, like.ChanID, like.PostID, like.CmtID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrWrongState
	}
	return nil
}

// Exists reports whether UserID has already liked the subject.
func (s *LikeStore) Exists(ctx context.Context, like *model.Like) (bool, error) {
	const q = `SELECT 1 FROM likes WHERE user_id=$1 AND chan_id=$2 AND post_id=$3 AND cmt_id=$4`
	var one int
	err := s.db.Pool.QueryRow(ctx, q, like.UserID, like.ChanID, like.PostID, like.CmtID).Scan(&one)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, pgx.ErrNoRows):
		return false, nil
	default:
		return false, err
	}
}

// ListLikedPostsByUser answers get_liked_posts: every post the user has
// liked directly (cmt_id = 0), joined against posts for display fields.
func (s *LikeStore) ListLikedPostsByUser(ctx context.Context, userID string, q model.QueryCriteria) ([]*model.Post, error) {
	clause, args := rangeClause("p.post_id", q, 2)
	sql := `
SELECT p.chan_id, p.post_id, p.created_at, p.upd_at, p.content, p.cmts, p.likes
FROM posts p
JOIN likes l ON l.chan_id = p.chan_id AND l.post_id = p.post_id AND l.cmt_id = 0
WHERE l.user_id = $1` + clause
	rows, err := s.db.Pool.Query(ctx, sql, append([]any{userID}, args...)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Post
	for rows.Next() {
		post := &model.Post{}
		if err := rows.Scan(&post.ChanID, &post.PostID, &post.CreatedAt, &post.UpdAt, &post.Content, &post.Cmts, &post.Likes); err != nil {
			return nil, err
		}
		out = append(out, post)
	}
	return out, rows.Err()
}
