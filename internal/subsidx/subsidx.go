// Package subsidx holds the in-memory indexes the dispatcher consults on
// every request: channels keyed by name and by id, and the set of
// currently-connected notification-enabled peers (active subscribers)
// linked to the channels they watch.
//
// Channels and ActiveSubers never hold pointers to each other. A
// channel-to-suber link exists only as a pair of integer ids recorded in
// both directions — Index.chanSubers (chan id → set of suber ids) and
// ActiveSuber.ChanIDs (suber-local set of chan ids) — so the two sides
// can never form a reference cycle and either side can be torn down by
// id alone.
package subsidx

import (
	"errors"
	"sort"

	"github.com/chenyukaola/feeds-service/internal/model"
)

// ErrSuberAlreadyActive is returned by EnableNotification when the calling
// node already holds an ActiveSuber, and by SetOwnerNotifNodeID when the
// owner notification slot is already occupied.
var ErrSuberAlreadyActive = errors.New("subsidx: already active")

// Index is the single-threaded, lock-free aggregate of channel and
// active-subscriber state. Every method assumes it is called from the one
// goroutine that runs the dispatcher; nothing here is safe for concurrent
// use.
type Index struct {
	byName map[string]*model.Channel
	byID   map[uint64]*model.Channel

	subersByNode map[string]*model.ActiveSuber
	subersByID   map[uint64]*model.ActiveSuber
	chanSubers   map[uint64]map[uint64]struct{} // chan id -> set of suber id

	nextChanID       uint64
	nextSuberID      uint64
	ownerNotifNodeID string
}

// New constructs an empty Index. startChanID seeds NextChanID before any
// channel has been loaded or created — the configured base id.
func New(startChanID uint64) *Index {
	return &Index{
		byName:       make(map[string]*model.Channel),
		byID:         make(map[uint64]*model.Channel),
		subersByNode: make(map[string]*model.ActiveSuber),
		subersByID:   make(map[uint64]*model.ActiveSuber),
		chanSubers:   make(map[uint64]map[uint64]struct{}),
		nextChanID:   startChanID,
	}
}

// LoadChannels seeds both channel tables from a storage-returned snapshot
// and advances NextChanID past the highest loaded id. Call once at startup,
// before the dispatcher accepts requests.
func (x *Index) LoadChannels(channels []*model.Channel) {
	for _, ch := range channels {
		x.byName[ch.Name] = ch
		x.byID[ch.ChanID] = ch
		if ch.ChanID >= x.nextChanID {
			x.nextChanID = ch.ChanID + 1
		}
	}
}

// ChannelByName looks up a channel by its unique name.
func (x *Index) ChannelByName(name string) (*model.Channel, bool) {
	ch, ok := x.byName[name]
	return ch, ok
}

// ChannelByID looks up a channel by its id.
func (x *Index) ChannelByID(id uint64) (*model.Channel, bool) {
	ch, ok := x.byID[id]
	return ch, ok
}

// Channels returns every channel ordered by ChanID, for deterministic
// listing iteration.
func (x *Index) Channels() []*model.Channel {
	out := make([]*model.Channel, 0, len(x.byID))
	for _, ch := range x.byID {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChanID < out[j].ChanID })
	return out
}

// NextChanID reports the id the next InsertChannel call will assign.
func (x *Index) NextChanID() uint64 { return x.nextChanID }

// InsertChannel assigns ch.ChanID from the monotonically increasing
// counter and adds it to both channel tables. The caller must already have
// checked name uniqueness against ChannelByName.
func (x *Index) InsertChannel(ch *model.Channel) {
	ch.ChanID = x.nextChanID
	x.nextChanID++
	x.byName[ch.Name] = ch
	x.byID[ch.ChanID] = ch
}

// SuberByNode looks up the ActiveSuber registered for a connected peer.
func (x *Index) SuberByNode(nodeID string) (*model.ActiveSuber, bool) {
	s, ok := x.subersByNode[nodeID]
	return s, ok
}

// EnableNotification creates an ActiveSuber for nodeID and links it to
// every channel in chanIDs. Fails if nodeID already has an ActiveSuber.
func (x *Index) EnableNotification(nodeID string, chanIDs []uint64) (*model.ActiveSuber, error) {
	if _, exists := x.subersByNode[nodeID]; exists {
		return nil, ErrSuberAlreadyActive
	}
	suber := &model.ActiveSuber{
		SuberID: x.nextSuberID,
		NodeID:  nodeID,
		ChanIDs: make(map[uint64]struct{}),
	}
	x.nextSuberID++
	x.subersByNode[nodeID] = suber
	x.subersByID[suber.SuberID] = suber
	for _, chanID := range chanIDs {
		x.link(suber, chanID)
	}
	return suber, nil
}

// LinkChannel links nodeID's existing ActiveSuber to chanID. Reports false
// if nodeID has no ActiveSuber — callers use this to implement "if peer has
// an active suber, link it" on subscribe.
func (x *Index) LinkChannel(nodeID string, chanID uint64) bool {
	suber, ok := x.subersByNode[nodeID]
	if !ok {
		return false
	}
	x.link(suber, chanID)
	return true
}

// UnlinkChannel removes the link between nodeID's ActiveSuber (if any) and
// chanID, used on unsubscribe.
func (x *Index) UnlinkChannel(nodeID string, chanID uint64) {
	suber, ok := x.subersByNode[nodeID]
	if !ok {
		return
	}
	x.unlink(suber, chanID)
}

// DeactivateSuber releases every index entry owned by nodeID: its owner
// notification slot if it holds one, and its ActiveSuber (and every
// channel link it held) if it has one. Called on transport disconnect.
func (x *Index) DeactivateSuber(nodeID string) {
	if x.ownerNotifNodeID == nodeID {
		x.ownerNotifNodeID = ""
	}
	suber, ok := x.subersByNode[nodeID]
	if !ok {
		return
	}
	for chanID := range suber.ChanIDs {
		x.unlinkSet(chanID, suber.SuberID)
	}
	delete(x.subersByNode, nodeID)
	delete(x.subersByID, suber.SuberID)
}

// NotifyTargets returns the node ids of every ActiveSuber currently linked
// to chanID, for fan-out on publish/comment/like/subscribe.
func (x *Index) NotifyTargets(chanID uint64) []string {
	set, ok := x.chanSubers[chanID]
	if !ok || len(set) == 0 {
		return nil
	}
	nodes := make([]string, 0, len(set))
	for suberID := range set {
		if suber, ok := x.subersByID[suberID]; ok {
			nodes = append(nodes, suber.NodeID)
		}
	}
	return nodes
}

// ActiveSuberCount reports how many peers currently hold an ActiveSuber,
// used by get_statistics as the live connection count.
func (x *Index) ActiveSuberCount() int { return len(x.subersByNode) }

// OwnerNotifNodeID reports the node id currently holding the owner
// notification slot, or "" if unset.
func (x *Index) OwnerNotifNodeID() string { return x.ownerNotifNodeID }

// SetOwnerNotifNodeID occupies the owner notification slot. Fails if it is
// already occupied.
func (x *Index) SetOwnerNotifNodeID(nodeID string) error {
	if x.ownerNotifNodeID != "" {
		return ErrSuberAlreadyActive
	}
	x.ownerNotifNodeID = nodeID
	return nil
}

// ClearOwnerNotifNodeID vacates the owner notification slot.
func (x *Index) ClearOwnerNotifNodeID() { x.ownerNotifNodeID = "" }

func (x *Index) link(suber *model.ActiveSuber, chanID uint64) {
	suber.ChanIDs[chanID] = struct{}{}
	set, ok := x.chanSubers[chanID]
	if !ok {
		set = make(map[uint64]struct{})
		x.chanSubers[chanID] = set
	}
	set[suber.SuberID] = struct{}{}
}

func (x *Index) unlink(suber *model.ActiveSuber, chanID uint64) {
	delete(suber.ChanIDs, chanID)
	x.unlinkSet(chanID, suber.SuberID)
}

func (x *Index) unlinkSet(chanID, suberID uint64) {
	set, ok := x.chanSubers[chanID]
	if !ok {
		return
	}
	delete(set, suberID)
	if len(set) == 0 {
		delete(x.chanSubers, chanID)
	}
}
