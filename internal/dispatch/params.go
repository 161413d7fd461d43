package dispatch

import "github.com/chenyukaola/feeds-service/internal/model"

// queryParams is the wire shape of model.QueryCriteria, embedded by every
// listing method's params.
type queryParams struct {
	Tk     string         `json:"tk"`
	By     model.OrderKey `json:"by"`
	Upper  uint64         `json:"upper"`
	Lower  uint64         `json:"lower"`
	MaxCnt uint64         `json:"maxcnt"`
}

func (q queryParams) criteria() model.QueryCriteria {
	return model.QueryCriteria{By: q.By, Upper: q.Upper, Lower: q.Lower, MaxCnt: q.MaxCnt}
}

type signInParams struct {
	Doc []byte `json:"doc"`
}

type signInResult struct {
	ChallengeJwt string `json:"challenge_jwt"`
}

type didAuthParams struct {
	PresentationJwt string `json:"presentation_jwt"`
}

type didAuthResult struct {
	AccessToken string `json:"access_token"`
}

type createChannelParams struct {
	Tk     string `json:"tk"`
	Name   string `json:"name"`
	Intro  string `json:"intro"`
	Avatar []byte `json:"avatar"`
}

type createChannelResult struct {
	ID uint64 `json:"id"`
}

type publishPostParams struct {
	Tk      string `json:"tk"`
	ChanID  uint64 `json:"chan_id"`
	Content []byte `json:"content"`
}

type publishPostResult struct {
	PostID uint64 `json:"post_id"`
}

type postCommentParams struct {
	Tk         string `json:"tk"`
	ChanID     uint64 `json:"chan_id"`
	PostID     uint64 `json:"post_id"`
	ReplyToCmt uint64 `json:"reply_to_cmt"`
	Content    []byte `json:"content"`
}

type postCommentResult struct {
	CmtID uint64 `json:"cmt_id"`
}

type likeParams struct {
	Tk     string `json:"tk"`
	ChanID uint64 `json:"chan_id"`
	PostID uint64 `json:"post_id"`
	CmtID  uint64 `json:"cmt_id"`
}

type subscriptionParams struct {
	Tk     string `json:"tk"`
	ChanID uint64 `json:"chan_id"`
}

type enableNotificationParams struct {
	Tk string `json:"tk"`
}

type channelIDParams struct {
	Tk     string `json:"tk"`
	ChanID uint64 `json:"chan_id"`
}

type channelResult struct {
	ChanID     uint64          `json:"chan_id"`
	Name       string          `json:"name"`
	Intro      string          `json:"intro"`
	Owner      model.UserInfo  `json:"owner"`
	CreatedAt  int64           `json:"created_at"`
	UpdAt      int64           `json:"upd_at"`
	Subs       uint64          `json:"subs"`
	NextPostID uint64          `json:"next_post_id"`
	Avatar     []byte          `json:"avatar,omitempty"`
}

func channelToResult(ch *model.Channel) channelResult {
	return channelResult{
		ChanID:     ch.ChanID,
		Name:       ch.Name,
		Intro:      ch.Intro,
		Owner:      ch.Owner,
		CreatedAt:  ch.CreatedAt.Unix(),
		UpdAt:      ch.UpdAt.Unix(),
		Subs:       ch.Subs,
		NextPostID: ch.NextPostID,
		Avatar:     ch.Avatar,
	}
}

func channelSize(ch *model.Channel) int {
	return len(ch.Name) + len(ch.Intro) + len(ch.Avatar) + len(ch.Owner.DID) + len(ch.Owner.Name) + 64
}

type postResult struct {
	ChanID    uint64 `json:"chan_id"`
	PostID    uint64 `json:"post_id"`
	CreatedAt int64  `json:"created_at"`
	UpdAt     int64  `json:"upd_at"`
	Content   []byte `json:"content"`
	Cmts      uint64 `json:"cmts"`
	Likes     uint64 `json:"likes"`
}

func postToResult(p *model.Post) postResult {
	return postResult{
		ChanID: p.ChanID, PostID: p.PostID,
		CreatedAt: p.CreatedAt.Unix(), UpdAt: p.UpdAt.Unix(),
		Content: p.Content, Cmts: p.Cmts, Likes: p.Likes,
	}
}

func postSize(p *model.Post) int { return len(p.Content) + 48 }

type commentResult struct {
	ChanID     uint64         `json:"chan_id"`
	PostID     uint64         `json:"post_id"`
	CmtID      uint64         `json:"cmt_id"`
	ReplyToCmt uint64         `json:"reply_to_cmt"`
	Author     model.UserInfo `json:"author"`
	Content    []byte         `json:"content"`
	CreatedAt  int64          `json:"created_at"`
	UpdAt      int64          `json:"upd_at"`
	Likes      uint64         `json:"likes"`
}

func commentToResult(c *model.Comment) commentResult {
	return commentResult{
		ChanID: c.ChanID, PostID: c.PostID, CmtID: c.CmtID,
		ReplyToCmt: c.ReplyToCmt, Author: c.Author,
		Content: c.Content, CreatedAt: c.CreatedAt.Unix(), UpdAt: c.UpdAt.Unix(), Likes: c.Likes,
	}
}

func commentSize(c *model.Comment) int {
	return len(c.Content) + len(c.Author.DID) + len(c.Author.Name) + 64
}

type statsResult struct {
	ServerDID         string `json:"server_did"`
	ActiveConnections int    `json:"active_connections"`
}

type myChannelsMetaResult struct {
	ChannelCount uint64 `json:"channel_count"`
	TotalSubs    uint64 `json:"total_subs"`
}
