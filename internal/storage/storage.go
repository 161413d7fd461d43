// Package storage defines the persistence contracts the dispatcher and
// subscription index depend on. The core never imports a database driver
// directly — internal/storage/postgres provides the only concrete
// implementation, but any engine satisfying these interfaces can serve the
// same callers.
package storage

import (
	"context"

	"github.com/chenyukaola/feeds-service/internal/model"
)

// ChannelStore persists channels. The subscription index loads every
// channel at startup via LoadAll and owns the authoritative in-memory
// Subs/NextPostID/UpdAt counters for the rest of the run; handlers call
// UpdateCounters after mutating those fields.
type ChannelStore interface {
	Insert(ctx context.Context, ch *model.Channel) error
	UpdateCounters(ctx context.Context, ch *model.Channel) error
	LoadAll(ctx context.Context) ([]*model.Channel, error)
}

// PostStore persists posts and answers the ranged listing queries behind
// get_posts.
type PostStore interface {
	Insert(ctx context.Context, post *model.Post) error
	UpdateCounters(ctx context.Context, post *model.Post) error
	Get(ctx context.Context, chanID, postID uint64) (*model.Post, error)
	ListByChannel(ctx context.Context, chanID uint64, q model.QueryCriteria) ([]*model.Post, error)
}

// CommentStore persists comments and answers get_comments.
type CommentStore interface {
	Insert(ctx context.Context, cmt *model.Comment) error
	UpdateCounters(ctx context.Context, cmt *model.Comment) error
	Exists(ctx context.Context, chanID, postID, cmtID uint64) (bool, error)
	// Get resolves a single comment, used to bump its like counter.
	Get(ctx context.Context, chanID, postID, cmtID uint64) (*model.Comment, error)
	ListByPost(ctx context.Context, chanID, postID uint64, q model.QueryCriteria) ([]*model.Comment, error)
}

// LikeStore persists likes. CmtID == 0 means the like targets the post
// itself rather than a comment on it.
type LikeStore interface {
	Insert(ctx context.Context, like *model.Like) error
	Delete(ctx context.Context, like *model.Like) error
	Exists(ctx context.Context, like *model.Like) (bool, error)
	// ListLikedPostsByUser returns, in q's order, every post the user has
	// liked (directly, not via a comment like).
	ListLikedPostsByUser(ctx context.Context, userID string, q model.QueryCriteria) ([]*model.Post, error)
}

// SubscriptionStore persists subscriptions.
type SubscriptionStore interface {
	Insert(ctx context.Context, sub *model.Subscription) error
	Delete(ctx context.Context, userID string, chanID uint64) error
	Exists(ctx context.Context, userID string, chanID uint64) (bool, error)
	CountByChannel(ctx context.Context, chanID uint64) (uint64, error)
	ListChannelsByUser(ctx context.Context, userID string, q model.QueryCriteria) ([]*model.Channel, error)
}
