package rooms_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dalemusser/huddle/internal/app/store/live"
	"github.com/dalemusser/huddle/internal/app/store/mongostore"
	"github.com/dalemusser/huddle/internal/app/system/rooms"
	"github.com/dalemusser/huddle/internal/domain/models"
	"github.com/dalemusser/huddle/internal/testutil"
)

var fastBackoff = live.Backoff{Base: time.Millisecond, Cap: 5 * time.Millisecond, Attempts: 3}

func startRegistry(t *testing.T, backend *testutil.FakeBackend) *rooms.Registry {
	t.Helper()
	broker := live.NewBroker(backend, fastBackoff, zap.NewNop())
	t.Cleanup(broker.Close)

	reg := rooms.NewRegistry(backend, broker, zap.NewNop())
	if err := reg.Start(); err != nil {
		t.Fatalf("registry Start failed: %v", err)
	}
	t.Cleanup(reg.Close)
	return reg
}

// waitRooms polls until cond is satisfied by the registry's view.
func waitRooms(t *testing.T, reg *rooms.Registry, cond func([]models.Activity) bool) []models.Activity {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		got := reg.Rooms()
		if cond(got) {
			return got
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for room view, last saw %d rooms", len(got))
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestRegistry_ListsRoomsNewestFirst(t *testing.T) {
	backend := testutil.NewFakeBackend()
	ctx, cancel := testutil.TestContext()
	defer cancel()

	creator := testutil.Identity("u1", "Avery")
	first, _ := backend.Append(ctx, mongostore.CollActivities,
		testutil.ActivityFields(t, creator, "first room", time.Hour))
	second, _ := backend.Append(ctx, mongostore.CollActivities,
		testutil.ActivityFields(t, creator, "second room", time.Hour))

	reg := startRegistry(t, backend)

	got := waitRooms(t, reg, func(rs []models.Activity) bool { return len(rs) == 2 })
	if got[0].ID != second || got[1].ID != first {
		t.Errorf("order: got [%s %s], want [%s %s]", got[0].ID, got[1].ID, second, first)
	}
	if got[0].Title != "second room" {
		t.Errorf("title: got %q, want %q", got[0].Title, "second room")
	}
}

func TestRegistry_PicksUpLiveCreationsAndDeletes(t *testing.T) {
	backend := testutil.NewFakeBackend()
	reg := startRegistry(t, backend)
	waitRooms(t, reg, func(rs []models.Activity) bool { return len(rs) == 0 })

	ctx, cancel := testutil.TestContext()
	defer cancel()
	id, _ := backend.Append(ctx, mongostore.CollActivities,
		testutil.ActivityFields(t, testutil.Identity("u1", "Avery"), "popup room", time.Hour))

	waitRooms(t, reg, func(rs []models.Activity) bool {
		return len(rs) == 1 && rs[0].ID == id
	})

	if err := backend.Delete(ctx, mongostore.CollActivities, id); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	waitRooms(t, reg, func(rs []models.Activity) bool { return len(rs) == 0 })
}

func TestRegistry_ExpiredRoomNeverListed(t *testing.T) {
	backend := testutil.NewFakeBackend()
	ctx, cancel := testutil.TestContext()
	defer cancel()

	creator := testutil.Identity("u1", "Avery")
	expired, _ := backend.Append(ctx, mongostore.CollActivities,
		testutil.ActivityFields(t, creator, "over already", -time.Minute))
	liveID, _ := backend.Append(ctx, mongostore.CollActivities,
		testutil.ActivityFields(t, creator, "still on", time.Hour))

	reg := startRegistry(t, backend)

	got := waitRooms(t, reg, func(rs []models.Activity) bool { return len(rs) == 1 })
	if got[0].ID != liveID {
		t.Errorf("listed room: got %s, want %s", got[0].ID, liveID)
	}
	for _, a := range got {
		if a.ID == expired {
			t.Error("expired room appeared in listing")
		}
	}

	// The sweep also deletes the expired document from the store.
	deadline := time.After(2 * time.Second)
	for {
		var a models.Activity
		err := backend.GetOnce(ctx, mongostore.CollActivities, expired, &a)
		if err == live.ErrNotFound {
			break
		}
		select {
		case <-deadline:
			t.Fatal("expired room was never deleted from the store")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestRegistry_SweepNowExpiresWithoutTraffic(t *testing.T) {
	backend := testutil.NewFakeBackend()
	ctx, cancel := testutil.TestContext()
	defer cancel()

	// Expires 150ms from now; no further writes will arrive.
	id, _ := backend.Append(ctx, mongostore.CollActivities,
		testutil.ActivityFields(t, testutil.Identity("u1", "Avery"), "short lived", 150*time.Millisecond))

	reg := startRegistry(t, backend)
	waitRooms(t, reg, func(rs []models.Activity) bool { return len(rs) == 1 })

	time.Sleep(200 * time.Millisecond)

	// Still cached: nothing has prompted a refresh.
	reg.SweepNow()
	got := reg.Rooms()
	for _, a := range got {
		if a.ID == id {
			t.Error("expired room still listed after SweepNow")
		}
	}
}

func TestRegistry_ListenFiresImmediatelyAndOnChange(t *testing.T) {
	backend := testutil.NewFakeBackend()
	reg := startRegistry(t, backend)
	waitRooms(t, reg, func(rs []models.Activity) bool { return len(rs) == 0 })

	views := make(chan []models.Activity, 16)
	cancelListen := reg.Listen(func(rs []models.Activity) { views <- rs })
	defer cancelListen()

	select {
	case first := <-views:
		if len(first) != 0 {
			t.Errorf("immediate view: got %d rooms, want 0", len(first))
		}
	case <-time.After(time.Second):
		t.Fatal("Listen did not fire immediately")
	}

	ctx, cancel := testutil.TestContext()
	defer cancel()
	id, _ := backend.Append(ctx, mongostore.CollActivities,
		testutil.ActivityFields(t, testutil.Identity("u1", "Avery"), "announced", time.Hour))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case v := <-views:
			if len(v) == 1 && v[0].ID == id {
				return
			}
		case <-deadline:
			t.Fatal("listener never saw the new room")
		}
	}
}

func TestRegistry_ListenerViewsNeverRegress(t *testing.T) {
	backend := testutil.NewFakeBackend()
	reg := startRegistry(t, backend)
	waitRooms(t, reg, func(rs []models.Activity) bool { return len(rs) == 0 })

	// With appends only, every refresh produces a view at least as large
	// as the one before it, so a listener must never see the room count
	// shrink. Sweeps racing the store-driven refreshes are how a stale
	// view could slip out after a newer one.
	var mu sync.Mutex
	var counts []int
	cancelListen := reg.Listen(func(rs []models.Activity) {
		mu.Lock()
		counts = append(counts, len(rs))
		mu.Unlock()
	})
	defer cancelListen()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				reg.SweepNow()
			}
		}
	}()

	ctx, cancel := testutil.TestContext()
	defer cancel()
	creator := testutil.Identity("u1", "Avery")
	const total = 25
	for i := 0; i < total; i++ {
		if _, err := backend.Append(ctx, mongostore.CollActivities,
			testutil.ActivityFields(t, creator, fmt.Sprintf("room %d", i), time.Hour)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	waitRooms(t, reg, func(rs []models.Activity) bool { return len(rs) == total })
	close(stop)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	prev := 0
	for i, n := range counts {
		if n < prev {
			t.Fatalf("view %d regressed: %d rooms after %d", i, n, prev)
		}
		prev = n
	}
}

func TestRegistry_GetReturnsCachedRoom(t *testing.T) {
	backend := testutil.NewFakeBackend()
	ctx, cancel := testutil.TestContext()
	defer cancel()

	id, _ := backend.Append(ctx, mongostore.CollActivities,
		testutil.ActivityFields(t, testutil.Identity("u1", "Avery"), "findable", time.Hour))

	reg := startRegistry(t, backend)
	waitRooms(t, reg, func(rs []models.Activity) bool { return len(rs) == 1 })

	a, ok := reg.Get(id)
	if !ok {
		t.Fatal("Get returned false for a cached room")
	}
	if a.Title != "findable" {
		t.Errorf("title: got %q, want %q", a.Title, "findable")
	}
	if _, ok := reg.Get("missing"); ok {
		t.Error("Get returned true for an unknown id")
	}
}

func TestRegistry_MembershipChangesReachTheView(t *testing.T) {
	backend := testutil.NewFakeBackend()
	ctx, cancel := testutil.TestContext()
	defer cancel()

	creator := testutil.Identity("u1", "Avery")
	id, _ := backend.Append(ctx, mongostore.CollActivities,
		testutil.ActivityFields(t, creator, "joinable", time.Hour))

	reg := startRegistry(t, backend)
	waitRooms(t, reg, func(rs []models.Activity) bool { return len(rs) == 1 })

	if err := backend.AddToSet(ctx, mongostore.CollActivities, id, "participants", "u2"); err != nil {
		t.Fatalf("AddToSet failed: %v", err)
	}

	waitRooms(t, reg, func(rs []models.Activity) bool {
		return len(rs) == 1 && rs[0].Participants.Contains("u2")
	})
}
