// Package model defines domain entities shared by the auth core, the
// subscription index, the request dispatcher and the storage façade.
package model

import "time"

// Channel is an owner-created feed. Names are unique across all channels;
// ChanID is never reused and NextPostID only increases.
type Channel struct {
	ChanID     uint64
	Name       string
	Intro      string
	Owner      UserInfo
	CreatedAt  time.Time
	UpdAt      time.Time
	Subs       uint64
	NextPostID uint64
	Avatar     []byte
}

// Post belongs to exactly one channel. PostID must stay below the owning
// channel's NextPostID.
type Post struct {
	ChanID    uint64
	PostID    uint64
	CreatedAt time.Time
	UpdAt     time.Time
	Content   []byte
	Cmts      uint64
	Likes     uint64
}

// Comment belongs to a (ChanID, PostID) pair. ReplyToCmt == 0 means top-level.
type Comment struct {
	ChanID     uint64
	PostID     uint64
	CmtID      uint64
	ReplyToCmt uint64
	Author     UserInfo
	Content    []byte
	CreatedAt  time.Time
	UpdAt      time.Time
	Likes      uint64
}

// Like records that UserID liked a post (CmtID == 0) or a comment.
type Like struct {
	UserID string
	ChanID uint64
	PostID uint64
	CmtID  uint64
}

// Subscription records that UserID is subscribed to ChanID.
type Subscription struct {
	UserID string
	ChanID uint64
}

// UserInfo is derived from an access token's claims.
type UserInfo struct {
	UID  string
	Name string
	DID  string
}

// AuthSecret is the per-outstanding-challenge nonce record.
type AuthSecret struct {
	DID        string
	Expiration time.Time
}

// ActiveSuber is the in-memory-only record of a connected, notification-
// enabled peer. ChanIDs holds the set of channels it is linked to — arena-
// style integer handles instead of pointers, so Channel and ActiveSuber
// never cross-reference each other directly and can't form a reference
// cycle; subsidx.Index resolves the link in both directions through its
// own maps.
type ActiveSuber struct {
	SuberID uint64
	NodeID  string
	ChanIDs map[uint64]struct{}
}

// OrderKey is the domain-specific ordering enum shared by listing queries.
type OrderKey int

const (
	OrderByCreatedAt OrderKey = iota
	OrderByUpdatedAt
	OrderByLikes
)

// QueryCriteria is the shared shape for listing endpoints.
// Upper/Lower are inclusive where non-zero; zero means unbounded in that
// direction. MaxCnt == 0 means no cap.
type QueryCriteria struct {
	By     OrderKey
	Upper  uint64
	Lower  uint64
	MaxCnt uint64
}

// Stats answers get_statistics (supplemented with ServerDID, see
// SPEC_FULL.md item 1).
type Stats struct {
	ServerDID         string
	ActiveConnections int
}
