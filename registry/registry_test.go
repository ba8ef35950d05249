package registry_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"pokertable/dispatch"
	"pokertable/events"
	"pokertable/holdem"
	"pokertable/registry"
)

func discardLogger() *log.Logger {
	return log.New(io.Discard)
}

type noopSink struct{}

func (noopSink) Append(context.Context, string, []events.Event) error { return nil }
func (noopSink) Snapshot(context.Context, string, uint64, holdem.Snapshot) error {
	return nil
}

// fakeStore is an in-memory registry.SnapshotStore, standing in for
// *store.Store so Restore can be exercised without a real database.
type fakeStore struct {
	mu   sync.Mutex
	evs  map[string][]events.Event
	snap map[string]holdem.Snapshot
	seq  map[string]uint64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		evs:  make(map[string][]events.Event),
		snap: make(map[string]holdem.Snapshot),
		seq:  make(map[string]uint64),
	}
}

func (s *fakeStore) Append(_ context.Context, tableID string, evs []events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evs[tableID] = append(s.evs[tableID], evs...)
	return nil
}

func (s *fakeStore) Snapshot(_ context.Context, tableID string, seq uint64, snap holdem.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap[tableID] = snap
	s.seq[tableID] = seq
	return nil
}

func (s *fakeStore) TableIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.evs))
	for id := range s.evs {
		out = append(out, id)
	}
	return out, nil
}

func (s *fakeStore) EventsSince(_ context.Context, tableID string, since uint64) ([]events.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []events.Event
	for _, ev := range s.evs[tableID] {
		if ev.SequenceNumber > since {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *fakeStore) LoadSnapshot(_ context.Context, tableID string) (holdem.Snapshot, uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snap[tableID]
	return snap, s.seq[tableID], ok, nil
}

func testConfig() holdem.Config {
	return holdem.Config{
		MaxPlayers: 6,
		MinPlayers: 2,
		SmallBlind: 10,
		BigBlind:   20,
	}
}

func TestCreateLookupRemove(t *testing.T) {
	reg := registry.New(quartz.NewReal(), noopSink{}, discardLogger())

	_, id, err := reg.CreateTable(testConfig(), 1)
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	actor, err := reg.Lookup(id)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if err := actor.JoinTable(1, 0, 1000); err != nil {
		t.Fatalf("JoinTable via looked-up actor: %v", err)
	}

	reg.Remove(id, "test done")

	if _, err := reg.Lookup(id); !errors.Is(err, registry.ErrUnknownTable) {
		t.Fatalf("expected ErrUnknownTable after Remove, got %v", err)
	}
}

func TestIDsReflectsLiveTables(t *testing.T) {
	reg := registry.New(quartz.NewReal(), noopSink{}, discardLogger())

	if len(reg.IDs()) != 0 {
		t.Fatalf("expected an empty registry, got %v", reg.IDs())
	}

	_, id1, _ := reg.CreateTable(testConfig(), 1)
	_, id2, _ := reg.CreateTable(testConfig(), 2)

	ids := reg.IDs()
	if len(ids) != 2 {
		t.Fatalf("expected 2 registered tables, got %v", ids)
	}
	seen := map[string]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	if !seen[id1] || !seen[id2] {
		t.Fatalf("expected both created tables in IDs(), got %v", ids)
	}
}

// TestShutdownClosesEveryTable exercises S8: Shutdown closes every
// registered table and the registry is empty of lookups afterward.
func TestShutdownClosesEveryTable(t *testing.T) {
	reg := registry.New(quartz.NewReal(), noopSink{}, discardLogger())

	var ids []string
	for i := 0; i < 3; i++ {
		_, id, err := reg.CreateTable(testConfig(), uint64(i))
		if err != nil {
			t.Fatalf("CreateTable: %v", err)
		}
		ids = append(ids, id)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := reg.Shutdown(ctx, "shutting down"); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	for _, id := range ids {
		if _, err := reg.Lookup(id); !errors.Is(err, registry.ErrUnknownTable) {
			t.Fatalf("expected table %s to be gone after Shutdown, got err=%v", id, err)
		}
	}
}

// TestRestoreRehydratesCompletedTable exercises S7 end to end through the
// registry: a hand played to completion persists a snapshot via the sink,
// and a fresh registry pointed at the same store rebuilds the table in the
// state it was left in, without replaying or re-emitting any history.
func TestRestoreRehydratesCompletedTable(t *testing.T) {
	st := newFakeStore()
	reg := registry.New(quartz.NewReal(), st, discardLogger())

	actor, id, err := reg.CreateTable(testConfig(), 1)
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := actor.JoinTable(1, 0, 1000); err != nil {
		t.Fatalf("JoinTable seat0: %v", err)
	}
	if err := actor.JoinTable(2, 1, 1000); err != nil {
		t.Fatalf("JoinTable seat1: %v", err)
	}
	if err := actor.StartHand(1); err != nil {
		t.Fatalf("StartHand: %v", err)
	}

	view, err := actor.ProjectView(1)
	if err != nil {
		t.Fatalf("ProjectView: %v", err)
	}
	userID := uint64(view.CurrentChair) + 1
	if err := actor.Submit(userID, holdem.ActionFold, 0); err != nil {
		t.Fatalf("Fold: %v", err)
	}

	before, err := actor.ProjectView(1)
	if err != nil {
		t.Fatalf("ProjectView before restart: %v", err)
	}
	if before.Phase != holdem.PhaseComplete {
		t.Fatalf("expected the hand to have completed, got phase=%v", before.Phase)
	}

	reg.Remove(id, "simulating a process restart")

	restartedReg := registry.New(quartz.NewReal(), st, discardLogger())
	if err := restartedReg.Restore(context.Background(), st); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	t.Cleanup(func() {
		_ = restartedReg.Shutdown(context.Background(), "test teardown")
	})

	restored, err := restartedReg.Lookup(id)
	if err != nil {
		t.Fatalf("Lookup after Restore: %v", err)
	}

	after, err := restored.ProjectView(1)
	if err != nil {
		t.Fatalf("ProjectView after Restore: %v", err)
	}
	if after.Phase != before.Phase {
		t.Fatalf("phase mismatch after restore: got %v, want %v", after.Phase, before.Phase)
	}
	if len(after.Players) != len(before.Players) {
		t.Fatalf("player count mismatch after restore: got %d, want %d", len(after.Players), len(before.Players))
	}
	for _, bp := range before.Players {
		var ap *dispatch.PublicPlayer
		for i := range after.Players {
			if after.Players[i].Chair == bp.Chair {
				ap = &after.Players[i]
				break
			}
		}
		if ap == nil {
			t.Fatalf("seat %d missing after restore", bp.Chair)
		}
		if ap.Stack != bp.Stack {
			t.Fatalf("seat %d stack mismatch after restore: got %d, want %d", bp.Chair, ap.Stack, bp.Stack)
		}
	}
}
