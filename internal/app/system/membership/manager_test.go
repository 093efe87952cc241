package membership_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dalemusser/huddle/internal/app/store/mongostore"
	"github.com/dalemusser/huddle/internal/app/system/membership"
	"github.com/dalemusser/huddle/internal/app/system/rooms"
	"github.com/dalemusser/huddle/internal/domain/models"
	"github.com/dalemusser/huddle/internal/testutil"
)

func newRoom(t *testing.T, backend *testutil.FakeBackend, creator models.Identity, max *int) string {
	t.Helper()
	ctx, cancel := testutil.TestContext()
	defer cancel()
	id, err := rooms.Create(ctx, backend, creator, "test room", "", time.Now().Add(time.Hour), max)
	if err != nil {
		t.Fatalf("room create failed: %v", err)
	}
	return id
}

func participants(t *testing.T, backend *testutil.FakeBackend, roomID string) models.ParticipantSet {
	t.Helper()
	ctx, cancel := testutil.TestContext()
	defer cancel()
	var a models.Activity
	if err := backend.GetOnce(ctx, mongostore.CollActivities, roomID, &a); err != nil {
		t.Fatalf("GetOnce failed: %v", err)
	}
	return a.Participants
}

func TestManager_JoinAndLeave(t *testing.T) {
	backend := testutil.NewFakeBackend()
	creator := testutil.Identity("creator", "Avery")
	roomID := newRoom(t, backend, creator, nil)

	mgr := membership.New(backend, zap.NewNop())
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := mgr.Join(ctx, roomID, "u2"); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	got := participants(t, backend, roomID)
	if !got.Contains("u2") || !got.Contains("creator") {
		t.Errorf("participants after join: %v", got)
	}

	if err := mgr.Leave(ctx, roomID, "u2"); err != nil {
		t.Fatalf("Leave failed: %v", err)
	}
	got = participants(t, backend, roomID)
	if got.Contains("u2") {
		t.Errorf("u2 still present after leave: %v", got)
	}
	if !got.Contains("creator") {
		t.Errorf("creator was lost: %v", got)
	}
}

// Joins and leaves are commutative merges, so an interleaving of
// operations on different users converges to the set of users whose
// last operation was a join, regardless of order.
func TestManager_InterleavedJoinsAndLeavesConverge(t *testing.T) {
	backend := testutil.NewFakeBackend()
	creator := testutil.Identity("creator", "Avery")
	roomID := newRoom(t, backend, creator, nil)

	mgr := membership.New(backend, zap.NewNop())
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := mgr.Join(ctx, roomID, "u1"); err != nil {
		t.Fatalf("Join u1: %v", err)
	}
	if err := mgr.Join(ctx, roomID, "u2"); err != nil {
		t.Fatalf("Join u2: %v", err)
	}
	if err := mgr.Leave(ctx, roomID, "u1"); err != nil {
		t.Fatalf("Leave u1: %v", err)
	}

	got := participants(t, backend, roomID)
	if got.Contains("u1") {
		t.Errorf("u1 present after leave: %v", got)
	}
	if !got.Contains("u2") {
		t.Errorf("u2 missing: %v", got)
	}
}

func TestManager_JoinIsIdempotent(t *testing.T) {
	backend := testutil.NewFakeBackend()
	roomID := newRoom(t, backend, testutil.Identity("creator", "Avery"), nil)

	mgr := membership.New(backend, zap.NewNop())
	ctx, cancel := testutil.TestContext()
	defer cancel()

	for i := 0; i < 3; i++ {
		if err := mgr.Join(ctx, roomID, "u1"); err != nil {
			t.Fatalf("Join #%d failed: %v", i+1, err)
		}
	}

	got := participants(t, backend, roomID)
	if got.Count() != 2 {
		t.Errorf("participants: got %v, want creator and u1 once each", got)
	}
}

func TestManager_LeaveWhenNotMemberIsNoop(t *testing.T) {
	backend := testutil.NewFakeBackend()
	roomID := newRoom(t, backend, testutil.Identity("creator", "Avery"), nil)

	mgr := membership.New(backend, zap.NewNop())
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := mgr.Leave(ctx, roomID, "stranger"); err != nil {
		t.Fatalf("Leave of non-member failed: %v", err)
	}
}

// The capacity cap is advisory: two racing joins on a room with one
// slot both land, and the set goes over the cap rather than blocking
// or corrupting. The condition is observable afterwards.
func TestManager_CapacityRaceAdmitsBoth(t *testing.T) {
	backend := testutil.NewFakeBackend()
	max := 2 // creator occupies one slot, one remains
	roomID := newRoom(t, backend, testutil.Identity("creator", "Avery"), &max)

	mgr := membership.New(backend, zap.NewNop())

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, uid := range []string{"u1", "u2"} {
		wg.Add(1)
		go func(i int, uid string) {
			defer wg.Done()
			ctx, cancel := testutil.TestContext()
			defer cancel()
			errs[i] = mgr.Join(ctx, roomID, uid)
		}(i, uid)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("join %d failed: %v", i, err)
		}
	}

	got := participants(t, backend, roomID)
	if !got.Contains("u1") || !got.Contains("u2") {
		t.Errorf("both racing joins should land: %v", got)
	}
	if got.Count() != 3 {
		t.Errorf("participants: got %d, want 3 (over the cap of 2)", got.Count())
	}
}

func TestManager_JoinAfterRoomSweptStillSucceeds(t *testing.T) {
	backend := testutil.NewFakeBackend()
	mgr := membership.New(backend, zap.NewNop())
	ctx, cancel := testutil.TestContext()
	defer cancel()

	// Room listed a moment ago, swept before the join lands.
	if err := mgr.Join(ctx, "gone-room", "u1"); err != nil {
		t.Fatalf("Join on swept room should be a quiet no-op, got: %v", err)
	}
}

func TestManager_MissingArguments(t *testing.T) {
	backend := testutil.NewFakeBackend()
	mgr := membership.New(backend, zap.NewNop())
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := mgr.Join(ctx, "", "u1"); !errors.Is(err, membership.ErrMissingArgument) {
		t.Errorf("Join with empty room: got %v, want ErrMissingArgument", err)
	}
	if err := mgr.Join(ctx, "room", ""); !errors.Is(err, membership.ErrMissingArgument) {
		t.Errorf("Join with empty user: got %v, want ErrMissingArgument", err)
	}
	if err := mgr.Leave(ctx, "", "u1"); !errors.Is(err, membership.ErrMissingArgument) {
		t.Errorf("Leave with empty room: got %v, want ErrMissingArgument", err)
	}
}
