package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/chenyukaola/feeds-service/internal/errs"
	"github.com/chenyukaola/feeds-service/internal/model"
	"github.com/chenyukaola/feeds-service/internal/storage"
)

// PostStore implements storage.PostStore.
type PostStore struct{ db *DB }

var _ storage.PostStore = (*PostStore)(nil)

// NewPostStore constructs a post store.
func NewPostStore(db *DB) *PostStore { return &PostStore{db: db} }

// Insert persists a newly published post.
func (s *PostStore) Insert(ctx context.Context, post *model.Post) error {
	const q = `
INSERT INTO posts (chan_id, post_id, created_at, upd_at, content, cmts, likes)
VALUES ($1,$2,$3,$4,$5,0,0)`
	_, err := s.db.Pool.Exec(ctx, q, post.ChanID, post.PostID, post.CreatedAt, post.UpdAt, post.Content)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// UpdateCounters persists cmts/likes/upd_at after a comment or like lands
// on this post.
func (s *PostStore) UpdateCounters(ctx context.Context, post *model.Post) error {
	const q = `UPDATE posts SET cmts=$3, likes=$4, upd_at=$5 WHERE chan_id=$1 AND post_id=$2`
	_, err := s.db.Pool.Exec(ctx, q, post.ChanID, post.PostID, post.Cmts, post.Likes, post.UpdAt)
	return err
}

// Get returns a single post, or ErrNotExist if absent.
func (s *PostStore) Get(ctx context.Context, chanID, postID uint64) (*model.Post, error) {
	const q = `SELECT chan_id, post_id, created_at, upd_at, content, cmts, likes FROM posts WHERE chan_id=$1 AND post_id=$2`
	row := s.db.Pool.QueryRow(ctx, q, chanID, postID)
	post := &model.Post{}
	if err := row.Scan(&post.ChanID, &post.PostID, &post.CreatedAt, &post.UpdAt, &post.Content, &post.Cmts, &post.Likes); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotExist
		}
		return nil, err
	}
	return post, nil
}

// ListByChannel answers get_posts for a single channel.
func (s *PostStore) ListByChannel(ctx context.Context, chanID uint64, q model.QueryCriteria) ([]*model.Post, error) {
	clause, args := rangeClause("post_id", q, 2)
	sql := `SELECT chan_id, post_id, created_at, upd_at, content, cmts, likes FROM posts WHERE chan_id=$1` + clause
	rows, err := s.db.Pool.Query(ctx, sql, append([]any{chanID}, args...)...)
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
