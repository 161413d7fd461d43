package dispatch

import (
	"context"
	"fmt"

	"github.com/chenyukaola/feeds-service/internal/errs"
	"github.com/chenyukaola/feeds-service/internal/model"
	"github.com/chenyukaola/feeds-service/internal/notify"
	"github.com/chenyukaola/feeds-service/internal/transport"
)

func handlePostComment(ctx context.Context, d *Dispatcher, nodeID string, req transport.Request, uinfo model.UserInfo) error {
	var p postCommentParams
	if err := d.unmarshalParams(req, &p); err != nil {
		return err
	}
	ch, ok := d.idx.ChannelByID(p.ChanID)
	if !ok {
		return fmt.Errorf("dispatch: post_comment channel not found: %w", errs.ErrNotExist)
	}
	if p.PostID >= ch.NextPostID {
		return fmt.Errorf("dispatch: post_comment post not found: %w", errs.ErrNotExist)
	}
	if len(p.Content) > d.cfg.MaxContentBytes {
		return fmt.Errorf("dispatch: post_comment content too large: %w", errs.ErrWrongState)
	}
	post, err := d.stores.Posts.Get(ctx, p.ChanID, p.PostID)
	if err != nil {
		return fmt.Errorf("dispatch: post_comment load post: %w", err)
	}

	if p.ReplyToCmt != 0 {
		exists, err := d.stores.Comments.Exists(ctx, p.ChanID, p.PostID, p.ReplyToCmt)
		if err != nil {
			return fmt.Errorf("dispatch: post_comment check reply target: %w", errs.ErrInternal)
		}
		if !exists {
			return fmt.Errorf("dispatch: post_comment reply target missing: %w", errs.ErrNotExist)
		}
	}

	// cmt_id reuses the cmts counter: comments are never deleted, so it
	// also serves as the post's next-comment-id counter.
	cmt := &model.Comment{
		ChanID: p.ChanID, PostID: p.PostID, CmtID: post.Cmts + 1,
		ReplyToCmt: p.ReplyToCmt,
		Author:     uinfo, Content: p.Content, CreatedAt: now(), UpdAt: now(),
	}
	if err := d.stores.Comments.Insert(ctx, cmt); err != nil {
		return fmt.Errorf("dispatch: post_comment persist: %w", errs.ErrInternal)
	}
	post.Cmts++
	post.UpdAt = now()
	if err := d.stores.Posts.UpdateCounters(ctx, post); err != nil {
		return fmt.Errorf("dispatch: post_comment update post: %w", errs.ErrInternal)
	}

	if err := d.fan.SendResponse(ctx, nodeID, req.TsxID, postCommentResult{CmtID: cmt.CmtID}); err != nil {
		return err
	}
	return d.notifyChannelAndOwner(ctx, p.ChanID, "new_comment", commentToResult(cmt))
}

func handlePostLike(ctx context.Context, d *Dispatcher, nodeID string, req transport.Request, uinfo model.UserInfo) error {
	var p likeParams
	if err := d.unmarshalParams(req, &p); err != nil {
		return err
	}
	ch, ok := d.idx.ChannelByID(p.ChanID)
	if !ok {
		return fmt.Errorf("dispatch: post_like channel not found: %w", errs.ErrNotExist)
	}
	if p.PostID >= ch.NextPostID {
		return fmt.Errorf("dispatch: post_like post not found: %w", errs.ErrNotExist)
	}
	if p.CmtID != 0 {
		exists, err := d.stores.Comments.Exists(ctx, p.ChanID, p.PostID, p.CmtID)
		if err != nil {
			return fmt.Errorf("dispatch: post_like check comment: %w", errs.ErrInternal)
		}
		if !exists {
			return fmt.Errorf("dispatch: post_like comment not found: %w", errs.ErrNotExist)
		}
	}
	like := &model.Like{UserID: uinfo.UID, ChanID: p.ChanID, PostID: p.PostID, CmtID: p.CmtID}
	if exists, err := d.stores.Likes.Exists(ctx, like); err != nil {
		return fmt.Errorf("dispatch: post_like check: %w", errs.ErrInternal)
	} else if exists {
		return fmt.Errorf("dispatch: post_like already liked: %w", errs.ErrWrongState)
	}
	if err := d.stores.Likes.Insert(ctx, like); err != nil {
		return fmt.Errorf("dispatch: post_like persist: %w", errs.ErrInternal)
	}
	if err := d.bumpLikeCounter(ctx, p, +1); err != nil {
		return err
	}
	if err := d.fan.SendResponse(ctx, nodeID, req.TsxID, struct{}{}); err != nil {
		return err
	}
	return d.notifyChannelAndOwner(ctx, p.ChanID, "new_like", likeParams{ChanID: p.ChanID, PostID: p.PostID, CmtID: p.CmtID})
}

func handlePostUnlike(ctx context.Context, d *Dispatcher, nodeID string, req transport.Request, uinfo model.UserInfo) error {
	var p likeParams
	if err := d.unmarshalParams(req, &p); err != nil {
		return err
	}
	if _, ok := d.idx.ChannelByID(p.ChanID); !ok {
		return fmt.Errorf("dispatch: post_unlike channel not found: %w", errs.ErrNotExist)
	}
	like := &model.Like{UserID: uinfo.UID, ChanID: p.ChanID, PostID: p.PostID, CmtID: p.CmtID}
	if err := d.stores.Likes.Delete(ctx, like); err != nil {
		return fmt.Errorf("dispatch: post_unlike: %w", err)
	}
	if err := d.bumpLikeCounter(ctx, p, -1); err != nil {
		return err
	}
	return d.fan.SendResponse(ctx, nodeID, req.TsxID, struct{}{})
}

// bumpLikeCounter applies delta to the Likes counter of whichever entity
// the like targets — the post itself when CmtID == 0, otherwise the comment.
func (d *Dispatcher) bumpLikeCounter(ctx context.Context, p likeParams, delta int64) error {
	if p.CmtID == 0 {
		post, err := d.stores.Posts.Get(ctx, p.ChanID, p.PostID)
		if err != nil {
			return fmt.Errorf("dispatch: load post for like counter: %w", errs.ErrInternal)
		}
		post.Likes = addCounter(post.Likes, delta)
		post.UpdAt = now()
		if err := d.stores.Posts.UpdateCounters(ctx, post); err != nil {
			return fmt.Errorf("dispatch: update post like counter: %w", errs.ErrInternal)
		}
		return nil
	}
	cmt, err := d.stores.Comments.Get(ctx, p.ChanID, p.PostID, p.CmtID)
	if err != nil {
		return fmt.Errorf("dispatch: load comment for like counter: %w", errs.ErrInternal)
	}
	cmt.Likes = addCounter(cmt.Likes, delta)
	cmt.UpdAt = now()
	if err := d.stores.Comments.UpdateCounters(ctx, cmt); err != nil {
		return fmt.Errorf("dispatch: update comment like counter: %w", errs.ErrInternal)
	}
	return nil
}

func addCounter(v uint64, delta int64) uint64 {
	if delta < 0 && v == 0 {
		return 0
	}
	return uint64(int64(v) + delta)
}

func handleGetPosts(ctx context.Context, d *Dispatcher, nodeID string, req transport.Request, _ model.UserInfo) error {
	var p struct {
		ChanID uint64 `json:"chan_id"`
		queryParams
	}
	if err := d.unmarshalParams(req, &p); err != nil {
		return err
	}
	if _, ok := d.idx.ChannelByID(p.ChanID); !ok {
		return fmt.Errorf("dispatch: get_posts channel not found: %w", errs.ErrNotExist)
	}
	posts, err := d.stores.Posts.ListByChannel(ctx, p.ChanID, p.criteria())
	if err != nil {
		return fmt.Errorf("dispatch: get_posts: %w", errs.ErrInternal)
	}
	return notify.SendListing(ctx, d.fan, nodeID, req.TsxID, posts, postSize, buildPostBatch)
}

func handleGetLikedPosts(ctx context.Context, d *Dispatcher, nodeID string, req transport.Request, uinfo model.UserInfo) error {
	var p queryParams
	if err := d.unmarshalParams(req, &p); err != nil {
		return err
	}
	posts, err := d.stores.Likes.ListLikedPostsByUser(ctx, uinfo.UID, p.criteria())
	if err != nil {
		return fmt.Errorf("dispatch: get_liked_posts: %w", errs.ErrInternal)
	}
	return notify.SendListing(ctx, d.fan, nodeID, req.TsxID, posts, postSize, buildPostBatch)
}

func handleGetComments(ctx context.Context, d *Dispatcher, nodeID string, req transport.Request, _ model.UserInfo) error {
	var p struct {
		ChanID uint64 `json:"chan_id"`
		PostID uint64 `json:"post_id"`
		queryParams
	}
	if err := d.unmarshalParams(req, &p); err != nil {
		return err
	}
	ch, ok := d.idx.ChannelByID(p.ChanID)
	if !ok {
		return fmt.Errorf("dispatch: get_comments channel not found: %w", errs.ErrNotExist)
	}
	if p.PostID >= ch.NextPostID {
		return fmt.Errorf("dispatch: get_comments post not found: %w", errs.ErrNotExist)
	}
	comments, err := d.stores.Comments.ListByPost(ctx, p.ChanID, p.PostID, p.criteria())
	if err != nil {
		return fmt.Errorf("dispatch: get_comments: %w", errs.ErrInternal)
	}
	return notify.SendListing(ctx, d.fan, nodeID, req.TsxID, comments, commentSize, buildCommentBatch)
}

func handleGetStatistics(ctx context.Context, d *Dispatcher, nodeID string, req transport.Request, _ model.UserInfo) error {
	return d.fan.SendResponse(ctx, nodeID, req.TsxID, statsResult{
		ServerDID:         d.cfg.ServerDID,
		ActiveConnections: d.idx.ActiveSuberCount(),
	})
}

func buildPostBatch(batch []*model.Post, isLast bool) any {
	items := make([]postResult, len(batch))
	for i, p := range batch {
		items[i] = postToResult(p)
	}
	return struct {
		Items  []postResult `json:"items"`
		IsLast bool         `json:"is_last"`
	}{Items: items, IsLast: isLast}
}

func buildCommentBatch(batch []*model.Comment, isLast bool) any {
	items := make([]commentResult, len(batch))
	for i, c := range batch {
		items[i] = commentToResult(c)
	}
	return struct {
		Items  []commentResult `json:"items"`
		IsLast bool            `json:"is_last"`
	}{Items: items, IsLast: isLast}
}
