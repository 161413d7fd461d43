package dispatch

import (
	"context"
	"fmt"

	"github.com/chenyukaola/feeds-service/internal/errs"
	"github.com/chenyukaola/feeds-service/internal/model"
	"github.com/chenyukaola/feeds-service/internal/notify"
	"github.com/chenyukaola/feeds-service/internal/transport"
)

func handleCreateChannel(ctx context.Context, d *Dispatcher, nodeID string, req transport.Request, uinfo model.UserInfo) error {
	var p createChannelParams
	if err := d.unmarshalParams(req, &p); err != nil {
		return err
	}
	if p.Name == "" {
		return fmt.Errorf("dispatch: create_channel empty name: %w", errs.ErrWrongState)
	}
	if len(p.Avatar) > d.cfg.MaxAvatarBytes {
		return fmt.Errorf("dispatch: create_channel avatar too large: %w", errs.ErrWrongState)
	}
	if _, exists := d.idx.ChannelByName(p.Name); exists {
		return fmt.Errorf("dispatch: create_channel duplicate name: %w", errs.ErrAlreadyExists)
	}

	ch := &model.Channel{
		Name:       p.Name,
		Intro:      p.Intro,
		Owner:      uinfo,
		CreatedAt:  now(),
		UpdAt:      now(),
		NextPostID: d.cfg.PostIDStart,
		Avatar:     p.Avatar,
	}
	d.idx.InsertChannel(ch)
	if err := d.stores.Channels.Insert(ctx, ch); err != nil {
		return fmt.Errorf("dispatch: create_channel persist: %w", errs.ErrInternal)
	}
	return d.fan.SendResponse(ctx, nodeID, req.TsxID, createChannelResult{ID: ch.ChanID})
}

func handlePublishPost(ctx context.Context, d *Dispatcher, nodeID string, req transport.Request, uinfo model.UserInfo) error {
	var p publishPostParams
	if err := d.unmarshalParams(req, &p); err != nil {
		return err
	}
	ch, ok := d.idx.ChannelByID(p.ChanID)
	if !ok {
		return fmt.Errorf("dispatch: publish_post channel not found: %w", errs.ErrNotExist)
	}
	if len(p.Content) > d.cfg.MaxContentBytes {
		return fmt.Errorf("dispatch: publish_post content too large: %w", errs.ErrWrongState)
	}

	post := &model.Post{ChanID: ch.ChanID, PostID: ch.NextPostID, CreatedAt: now(), UpdAt: now(), Content: p.Content}
	if err := d.stores.Posts.Insert(ctx, post); err != nil {
		return fmt.Errorf("dispatch: publish_post persist: %w", errs.ErrInternal)
	}
	ch.NextPostID++
	ch.UpdAt = now()
	if err := d.stores.Channels.UpdateCounters(ctx, ch); err != nil {
		return fmt.Errorf("dispatch: publish_post update channel: %w", errs.ErrInternal)
	}

	if err := d.fan.SendResponse(ctx, nodeID, req.TsxID, publishPostResult{PostID: post.PostID}); err != nil {
		return err
	}
	return d.notifyChannelAndOwner(ctx, ch.ChanID, "new_post", postToResult(post))
}

func handleGetChannels(ctx context.Context, d *Dispatcher, nodeID string, req transport.Request, _ model.UserInfo) error {
	var p queryParams
	if err := d.unmarshalParams(req, &p); err != nil {
		return err
	}
	channels := filterChannels(d.idx.Channels(), p.criteria())
	return notify.SendListing(ctx, d.fan, nodeID, req.TsxID, channels, channelSize, buildChannelBatch)
}

func handleGetMyChannels(ctx context.Context, d *Dispatcher, nodeID string, req transport.Request, uinfo model.UserInfo) error {
	var p queryParams
	if err := d.unmarshalParams(req, &p); err != nil {
		return err
	}
	var mine []*model.Channel
	for _, ch := range d.idx.Channels() {
		if ch.Owner.UID == uinfo.UID {
			mine = append(mine, ch)
		}
	}
	mine = filterChannels(mine, p.criteria())
	return notify.SendListing(ctx, d.fan, nodeID, req.TsxID, mine, channelSize, buildChannelBatch)
}

func handleGetMyChannelsMeta(ctx context.Context, d *Dispatcher, nodeID string, req transport.Request, uinfo model.UserInfo) error {
	var count, subs uint64
	for _, ch := range d.idx.Channels() {
		if ch.Owner.UID == uinfo.UID {
			count++
			subs += ch.Subs
		}
	}
	return d.fan.SendResponse(ctx, nodeID, req.TsxID, myChannelsMetaResult{ChannelCount: count, TotalSubs: subs})
}

func handleGetChannelDetail(ctx context.Context, d *Dispatcher, nodeID string, req transport.Request, _ model.UserInfo) error {
	var p channelIDParams
	if err := d.unmarshalParams(req, &p); err != nil {
		return err
	}
	ch, ok := d.idx.ChannelByID(p.ChanID)
	if !ok {
		return fmt.Errorf("dispatch: get_channel_detail not found: %w", errs.ErrNotExist)
	}
	return d.fan.SendResponse(ctx, nodeID, req.TsxID, channelToResult(ch))
}

func handleGetSubscribedChannels(ctx context.Context, d *Dispatcher, nodeID string, req transport.Request, uinfo model.UserInfo) error {
	var p queryParams
	if err := d.unmarshalParams(req, &p); err != nil {
		return err
	}
	channels, err := d.stores.Subscriptions.ListChannelsByUser(ctx, uinfo.UID, p.criteria())
	if err != nil {
		return fmt.Errorf("dispatch: get_subscribed_channels: %w", errs.ErrInternal)
	}
	return notify.SendListing(ctx, d.fan, nodeID, req.TsxID, channels, channelSize, buildChannelBatch)
}

func handleSubscribeChannel(ctx context.Context, d *Dispatcher, nodeID string, req transport.Request, uinfo model.UserInfo) error {
	var p subscriptionParams
	if err := d.unmarshalParams(req, &p); err != nil {
		return err
	}
	ch, ok := d.idx.ChannelByID(p.ChanID)
	if !ok {
		return fmt.Errorf("dispatch: subscribe_channel not found: %w", errs.ErrNotExist)
	}
	if exists, err := d.stores.Subscriptions.Exists(ctx, uinfo.UID, p.ChanID); err != nil {
		return fmt.Errorf("dispatch: subscribe_channel check: %w", errs.ErrInternal)
	} else if exists {
		return fmt.Errorf("dispatch: subscribe_channel already subscribed: %w", errs.ErrWrongState)
	}

	if err := d.stores.Subscriptions.Insert(ctx, &model.Subscription{UserID: uinfo.UID, ChanID: p.ChanID}); err != nil {
		return fmt.Errorf("dispatch: subscribe_channel persist: %w", errs.ErrInternal)
	}
	ch.Subs++
	ch.UpdAt = now()
	if err := d.stores.Channels.UpdateCounters(ctx, ch); err != nil {
		return fmt.Errorf("dispatch: subscribe_channel update channel: %w", errs.ErrInternal)
	}
	d.idx.LinkChannel(nodeID, p.ChanID)

	if err := d.fan.SendResponse(ctx, nodeID, req.TsxID, struct{}{}); err != nil {
		return err
	}
	return d.fan.NotifyOwner(ctx, "new_subscriber", subscriptionParams{ChanID: p.ChanID})
}

func handleUnsubscribeChannel(ctx context.Context, d *Dispatcher, nodeID string, req transport.Request, uinfo model.UserInfo) error {
	var p subscriptionParams
	if err := d.unmarshalParams(req, &p); err != nil {
		return err
	}
	ch, ok := d.idx.ChannelByID(p.ChanID)
	if !ok {
		return fmt.Errorf("dispatch: unsubscribe_channel not found: %w", errs.ErrNotExist)
	}
	if err := d.stores.Subscriptions.Delete(ctx, uinfo.UID, p.ChanID); err != nil {
		return fmt.Errorf("dispatch: unsubscribe_channel: %w", err)
	}
	ch.Subs--
	ch.UpdAt = now()
	if err := d.stores.Channels.UpdateCounters(ctx, ch); err != nil {
		return fmt.Errorf("dispatch: unsubscribe_channel update channel: %w", errs.ErrInternal)
	}
	d.idx.UnlinkChannel(nodeID, p.ChanID)
	return d.fan.SendResponse(ctx, nodeID, req.TsxID, struct{}{})
}

func handleEnableNotification(ctx context.Context, d *Dispatcher, nodeID string, req transport.Request, uinfo model.UserInfo) error {
	if uinfo.UID == d.ownerUID {
		if err := d.idx.SetOwnerNotifNodeID(nodeID); err != nil {
			return fmt.Errorf("dispatch: enable_notification owner slot occupied: %w", errs.ErrWrongState)
		}
		return d.fan.SendResponse(ctx, nodeID, req.TsxID, struct{}{})
	}

	if _, exists := d.idx.SuberByNode(nodeID); exists {
		return fmt.Errorf("dispatch: enable_notification already active: %w", errs.ErrWrongState)
	}
	subs, err := d.stores.Subscriptions.ListChannelsByUser(ctx, uinfo.UID, model.QueryCriteria{})
	if err != nil {
		return fmt.Errorf("dispatch: enable_notification load subscriptions: %w", errs.ErrInternal)
	}
	chanIDs := make([]uint64, len(subs))
	for i, ch := range subs {
		chanIDs[i] = ch.ChanID
	}
	if _, err := d.idx.EnableNotification(nodeID, chanIDs); err != nil {
		return fmt.Errorf("dispatch: enable_notification: %w", errs.ErrWrongState)
	}
	return d.fan.SendResponse(ctx, nodeID, req.TsxID, struct{}{})
}

// notifyChannelAndOwner fans a notification out to both targets named in
// 4.6: the owner notification slot and every ActiveSuber on chanID.
func (d *Dispatcher) notifyChannelAndOwner(ctx context.Context, chanID uint64, method string, params any) error {
	if err := d.fan.NotifyChannel(ctx, chanID, method, params); err != nil {
		return err
	}
	return d.fan.NotifyOwner(ctx, method, params)
}

func filterChannels(in []*model.Channel, q model.QueryCriteria) []*model.Channel {
	out := make([]*model.Channel, 0, len(in))
	for _, ch := range in {
		if q.Lower != 0 && ch.ChanID < q.Lower {
			continue
		}
		if q.Upper != 0 && ch.ChanID > q.Upper {
			continue
		}
		out = append(out, ch)
		if q.MaxCnt != 0 && uint64(len(out)) >= q.MaxCnt {
			break
		}
	}
	return out
}

func buildChannelBatch(batch []*model.Channel, isLast bool) any {
	items := make([]channelResult, len(batch))
	for i, ch := range batch {
		items[i] = channelToResult(ch)
	}
	return struct {
		Items  []channelResult `json:"items"`
		IsLast bool            `json:"is_last"`
	}{Items: items, IsLast: isLast}
}
