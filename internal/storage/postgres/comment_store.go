package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/chenyukaola/feeds-service/internal/errs"
	"github.com/chenyukaola/feeds-service/internal/model"
	"github.com/chenyukaola/feeds-service/internal/storage"
)

// CommentStore implements storage.CommentStore.
type CommentStore struct{ db *DB }

var _ storage.CommentStore = (*CommentStore)(nil)

// NewCommentStore constructs a comment store.
func NewCommentStore(db *DB) *CommentStore { return &CommentStore{db: db} }

// Insert persists a newly posted comment.
func (s *CommentStore) Insert(ctx context.Context, cmt *model.Comment) error {
	const q = `
INSERT INTO comments (chan_id, post_id, cmt_id, reply_to_cmt, author_uid, author_name, author_did, content, created_at, upd_at, likes)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,0)`
	_, err := s.db.Pool.Exec(ctx, q,
		cmt.ChanID, cmt.PostID, cmt.CmtID, cmt.ReplyToCmt,
		cmt.Author.UID, cmt.Author.Name, cmt.Author.DID, cmt.Content, cmt.CreatedAt, cmt.UpdAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// UpdateCounters persists likes/upd_at after a like lands on this comment.
func (s *CommentStore) UpdateCounters(ctx context.Context, cmt *model.Comment) error {
	const q = `UPDATE comments SET likes=$4, upd_at=$5 WHERE chan_id=$1 AND post_id=$2 AND cmt_id=$3`
	_, err := s.db.Pool.Exec(ctx, q, cmt.ChanID, cmt.PostID, cmt.CmtID, cmt.Likes, cmt.UpdAt)
	return err
}

// Exists reports whether a comment reference is valid — used to validate
// ReplyToCmt before inserting a reply.
func (s *CommentStore) Exists(ctx context.Context, chanID, postID, cmtID uint64) (bool, error) {
	const q = `SELECT 1 FROM comments WHERE chan_id=$1 AND post_id=$2 AND cmt_id=$3`
	var one int
	err := s.db.Pool.QueryRow(ctx, q, chanID, postID, cmtID).Scan(&one)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, pgx.ErrNoRows):
		return false, nil
	default:
		return false, err
	}
}

// Get resolves a single comment, used to bump its like counter.
func (s *CommentStore) Get(ctx context.Context, chanID, postID, cmtID uint64) (*model.Comment, error) {
	const q = `
SELECT chan_id, post_id, cmt_id, reply_to_cmt, author_uid, author_name, author_did, content, created_at, upd_at, likes
FROM comments WHERE chan_id=$1 AND post_id=$2 AND cmt_id=$3`
	cmt := &model.Comment{}
	err := s.db.Pool.QueryRow(ctx, q, chanID, postID, cmtID).Scan(
		&cmt.ChanID, &cmt.PostID, &cmt.CmtID, &cmt.ReplyToCmt,
		&cmt.Author.UID, &cmt.Author.Name, &cmt.Author.DID, &cmt.Content, &cmt.CreatedAt, &cmt.UpdAt, &cmt.Likes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotExist
	}
	if err != nil {
		return nil, err
	}
	return cmt, nil
}

// ListByPost answers get_comments for a single post.
func (s *CommentStore) ListByPost(ctx context.Context, chanID, postID uint64, q model.QueryCriteria) ([]*model.Comment, error) {
	clause, args := rangeClause("cmt_id", q, 3)
	sql := `
SELECT chan_id, post_id, cmt_id, reply_to_cmt, author_uid, author_name, author_did, content, created_at, upd_at, likes
FROM comments WHERE chan_id=$1 AND post_id=$2` + clause
	rows, err := s.db.Pool.Query(ctx, sql, append([]any{chanID, postID}, args...)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Comment
	for rows.Next() {
		cmt := &model.Comment{}
		if err := rows.Scan(&cmt.ChanID, &cmt.PostID, &cmt.CmtID, &cmt.ReplyToCmt,
			&cmt.Author.UID, &cmt.Author.Name, &cmt.Author.DID, &cmt.Content, &cmt.CreatedAt, &cmt.UpdAt, &cmt.Likes); err != nil {
			return nil, err
		}
		out = append(out, cmt)
	}
	return out, rows.Err()
}
