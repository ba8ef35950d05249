// Package registry is the one shared map this engine needs: a coarse
// lookup/insert directory of live table actors. It holds no game logic and
// never blocks on command application inside a table.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"pokertable/dispatch"
	"pokertable/events"
	"pokertable/holdem"
)

var ErrUnknownTable = errors.New("registry: no table with that id")

// SnapshotStore is the durable side of a table's lifecycle: every EventSink
// also needs to answer "which tables existed" and "what were they last
// doing" for the registry to rehydrate them at startup. *store.Store
// implements this.
type SnapshotStore interface {
	dispatch.EventSink
	TableIDs(ctx context.Context) ([]string, error)
	EventsSince(ctx context.Context, tableID string, since uint64) ([]events.Event, error)
	LoadSnapshot(ctx context.Context, tableID string) (holdem.Snapshot, uint64, bool, error)
}

// Registry owns every live table actor in the process. Lookups and inserts
// take a short-lived lock; command application itself runs entirely inside
// each table's own actor goroutine, never under the registry's lock.
type Registry struct {
	mu     sync.RWMutex
	tables map[string]*dispatch.Actor

	clock quartz.Clock
	sink  dispatch.EventSink
	log   *log.Logger
}

// New constructs an empty registry. clock and sink are shared by every
// table it creates; pass quartz.NewReal() in production and a quartz.Mock
// in tests.
func New(clock quartz.Clock, sink dispatch.EventSink, logger *log.Logger) *Registry {
	return &Registry{
		tables: make(map[string]*dispatch.Actor),
		clock:  clock,
		sink:   sink,
		log:    logger,
	}
}

// CreateTable starts a new table actor with a fresh random id and registers
// it.
func (r *Registry) CreateTable(cfg holdem.Config, ownerUserID uint64) (*dispatch.Actor, string, error) {
	id := uuid.NewString()
	actor, err := dispatch.NewActor(id, cfg, ownerUserID, r.clock, r.sink, r.log)
	if err != nil {
		return nil, "", err
	}

	r.mu.Lock()
	r.tables[id] = actor
	r.mu.Unlock()

	return actor, id, nil
}

// Lookup returns the actor for id, or ErrUnknownTable.
func (r *Registry) Lookup(id string) (*dispatch.Actor, error) {
	r.mu.RLock()
	actor, ok := r.tables[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, id)
	}
	return actor, nil
}

// Remove closes and unregisters a table, e.g. once it has sat empty past a
// retention window.
func (r *Registry) Remove(id, reason string) {
	r.mu.Lock()
	actor, ok := r.tables[id]
	delete(r.tables, id)
	r.mu.Unlock()

	if ok {
		actor.Close(reason)
	}
}

// IDs returns every currently registered table id, in no particular order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tables))
	for id := range r.tables {
		out = append(out, id)
	}
	return out
}

// Restore rehydrates every table st knows about into a live Actor, reading
// each one's original Config back out of its TableCreated event and its
// last state out of its most recent Snapshot. It should be called once at
// startup, before the gateway starts accepting connections. A table with
// no saved snapshot yet (e.g. it closed before its first hand completed)
// is skipped rather than failing the whole restore.
func (r *Registry) Restore(ctx context.Context, st SnapshotStore) error {
	ids, err := st.TableIDs(ctx)
	if err != nil {
		return fmt.Errorf("registry: listing tables to restore: %w", err)
	}

	for _, id := range ids {
		if err := r.restoreOne(ctx, st, id); err != nil {
			return fmt.Errorf("registry: restoring table %s: %w", id, err)
		}
	}
	return nil
}

func (r *Registry) restoreOne(ctx context.Context, st SnapshotStore, id string) error {
	created, err := st.EventsSince(ctx, id, 0)
	if err != nil {
		return err
	}
	if len(created) == 0 {
		return nil
	}
	var tc events.TableCreated
	if err := events.Decode(created[0], &tc); err != nil {
		return err
	}

	snap, seq, ok, err := st.LoadSnapshot(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		r.log.Warn("skipping table with no snapshot to restore", "table", id)
		return nil
	}

	cfg := holdem.Config{
		MaxPlayers:    tc.MaxPlayers,
		MinPlayers:    tc.MinPlayers,
		SmallBlind:    tc.SmallBlind,
		BigBlind:      tc.BigBlind,
		ActionTimeout: tc.ActionTimeout,
	}
	actor, err := dispatch.RestoreActor(id, cfg, tc.OwnerUserID, r.clock, r.sink, r.log, seq, snap)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.tables[id] = actor
	r.mu.Unlock()
	r.log.Info("restored table", "table", id, "handNumber", snap.HandNumber)
	return nil
}

// Shutdown closes every table concurrently and waits for all of them,
// bounded by ctx.
func (r *Registry) Shutdown(ctx context.Context, reason string) error {
	r.mu.Lock()
	actors := make([]*dispatch.Actor, 0, len(r.tables))
	for id, actor := range r.tables {
		actors = append(actors, actor)
		delete(r.tables, id)
	}
	r.mu.Unlock()

	g, _ := errgroup.WithContext(ctx)
	for _, actor := range actors {
		actor := actor
		g.Go(func() error {
			actor.Close(reason)
			return nil
		})
	}
	done := make(chan error, 1)
	go func() { done <- g.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
