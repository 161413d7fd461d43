package subsidx

import (
	"testing"

	"github.com/chenyukaola/feeds-service/internal/model"
)

func TestInsertChannel_AssignsMonotonicIDs(t *testing.T) {
	x := New(100)
	a := &model.Channel{Name: "news"}
	b := &model.Channel{Name: "sports"}
	x.InsertChannel(a)
	x.InsertChannel(b)

	if a.ChanID != 100 || b.ChanID != 101 {
		t.Fatalf("got ids %d, %d; want 100, 101", a.ChanID, b.ChanID)
	}
	if x.NextChanID() != 102 {
		t.Fatalf("NextChanID = %d, want 102", x.NextChanID())
	}
	if got, ok := x.ChannelByName("news"); !ok || got != a {
		t.Fatalf("ChannelByName lookup failed")
	}
	if got, ok := x.ChannelByID(101); !ok || got != b {
		t.Fatalf("ChannelByID lookup failed")
	}
}

func TestLoadChannels_AdvancesNextChanID(t *testing.T) {
	x := New(1)
	x.LoadChannels([]*model.Channel{
		{ChanID: 5, Name: "a"},
		{ChanID: 9, Name: "b"},
		{ChanID: 3, Name: "c"},
	})
	if x.NextChanID() != 10 {
		t.Fatalf("NextChanID = %d, want 10", x.NextChanID())
	}
	next := &model.Channel{Name: "d"}
	x.InsertChannel(next)
	if next.ChanID != 10 {
		t.Fatalf("next inserted id = %d, want 10", next.ChanID)
	}
}

func TestChannels_OrderedByID(t *testing.T) {
	x := New(1)
	x.LoadChannels([]*model.Channel{
		{ChanID: 5, Name: "a"},
		{ChanID: 1, Name: "b"},
		{ChanID: 3, Name: "c"},
	})
	got := x.Channels()
	if len(got) != 3 || got[0].ChanID != 1 || got[1].ChanID != 3 || got[2].ChanID != 5 {
		t.Fatalf("Channels() not ordered by id: %+v", got)
	}
}

func TestEnableNotification_LinksBidirectionally(t *testing.T) {
	x := New(1)
	suber, err := x.EnableNotification("node-a", []uint64{1, 2, 3})
	if err != nil {
		t.Fatalf("EnableNotification: %v", err)
	}
	for _, chanID := range []uint64{1, 2, 3} {
		if _, ok := suber.ChanIDs[chanID]; !ok {
			t.Fatalf("suber missing chan %d", chanID)
		}
		targets := x.NotifyTargets(chanID)
		if len(targets) != 1 || targets[0] != "node-a" {
			t.Fatalf("NotifyTargets(%d) = %v, want [node-a]", chanID, targets)
		}
	}
}

func TestEnableNotification_RejectsDuplicate(t *testing.T) {
	x := New(1)
	if _, err := x.EnableNotification("node-a", nil); err != nil {
		t.Fatalf("first EnableNotification: %v", err)
	}
	if _, err := x.EnableNotification("node-a", nil); err != ErrSuberAlreadyActive {
		t.Fatalf("got %v, want ErrSuberAlreadyActive", err)
	}
}

func TestLinkChannel_RequiresExistingSuber(t *testing.T) {
	x := New(1)
	if x.LinkChannel("node-a", 1) {
		t.Fatalf("LinkChannel should fail when node has no ActiveSuber")
	}
	if _, err := x.EnableNotification("node-a", nil); err != nil {
		t.Fatal(err)
	}
	if !x.LinkChannel("node-a", 1) {
		t.Fatalf("LinkChannel should succeed once node has an ActiveSuber")
	}
	targets := x.NotifyTargets(1)
	if len(targets) != 1 || targets[0] != "node-a" {
		t.Fatalf("NotifyTargets(1) = %v", targets)
	}
}

func TestUnlinkChannel_RemovesBothSides(t *testing.T) {
	x := New(1)
	suber, _ := x.EnableNotification("node-a", []uint64{1, 2})
	x.UnlinkChannel("node-a", 1)

	if _, ok := suber.ChanIDs[1]; ok {
		t.Fatalf("suber still linked to chan 1 after unlink")
	}
	if targets := x.NotifyTargets(1); len(targets) != 0 {
		t.Fatalf("NotifyTargets(1) = %v, want none", targets)
	}
	if targets := x.NotifyTargets(2); len(targets) != 1 {
		t.Fatalf("NotifyTargets(2) = %v, want [node-a]", targets)
	}
}

func TestDeactivateSuber_ReleasesAllLinks(t *testing.T) {
	x := New(1)
	x.EnableNotification("node-a", []uint64{1, 2, 3})
	x.DeactivateSuber("node-a")

	if _, ok := x.SuberByNode("node-a"); ok {
		t.Fatalf("node-a still has an ActiveSuber after DeactivateSuber")
	}
	for _, chanID := range []uint64{1, 2, 3} {
		if targets := x.NotifyTargets(chanID); len(targets) != 0 {
			t.Fatalf("NotifyTargets(%d) = %v, want none after deactivation", chanID, targets)
		}
	}
}

func TestDeactivateSuber_ClearsOwnerSlot(t *testing.T) {
	x := New(1)
	if err := x.SetOwnerNotifNodeID("owner-node"); err != nil {
		t.Fatal(err)
	}
	x.DeactivateSuber("owner-node")
	if x.OwnerNotifNodeID() != "" {
		t.Fatalf("owner notif slot not cleared")
	}
}

func TestSetOwnerNotifNodeID_RejectsDoubleEnable(t *testing.T) {
	x := New(1)
	if err := x.SetOwnerNotifNodeID("owner-node"); err != nil {
		t.Fatal(err)
	}
	if err := x.SetOwnerNotifNodeID("owner-node"); err != ErrSuberAlreadyActive {
		t.Fatalf("got %v, want ErrSuberAlreadyActive", err)
	}
	x.ClearOwnerNotifNodeID()
	if err := x.SetOwnerNotifNodeID("owner-node"); err != nil {
		t.Fatalf("re-enabling after clear failed: %v", err)
	}
}

// TestBidirectionalConsistency is a small property check: after a sequence
// of link/unlink operations, every ActiveSuber's ChanIDs set agrees exactly
// with the reverse index's view of which subers are linked to each channel.
func TestBidirectionalConsistency(t *testing.T) {
	x := New(1)
	x.EnableNotification("node-a", []uint64{1, 2})
	x.EnableNotification("node-b", []uint64{2, 3})
	x.LinkChannel("node-a", 3)
	x.UnlinkChannel("node-b", 2)

	wantByChan := map[uint64]map[string]bool{
		1: {"node-a": true},
		2: {"node-a": true},
		3: {"node-a": true, "node-b": true},
	}
	for chanID, want := range wantByChan {
		got := x.NotifyTargets(chanID)
		gotSet := map[string]bool{}
		for _, n := range got {
			gotSet[n] = true
		}
		if len(gotSet) != len(want) {
			t.Fatalf("chan %d: got %v, want %v", chanID, got, want)
		}
		for n := range want {
			if !gotSet[n] {
				t.Fatalf("chan %d: missing node %s in %v", chanID, n, got)
			}
		}
	}

	suberA, _ := x.SuberByNode("node-a")
	wantA := map[uint64]bool{1: true, 2: true, 3: true}
	if len(suberA.ChanIDs) != len(wantA) {
		t.Fatalf("node-a ChanIDs = %v, want %v", suberA.ChanIDs, wantA)
	}
	suberB, _ := x.SuberByNode("node-b")
	wantB := map[uint64]bool{3: true}
	if len(suberB.ChanIDs) != len(wantB) {
		t.Fatalf("node-b ChanIDs = %v, want %v", suberB.ChanIDs, wantB)
	}
}
