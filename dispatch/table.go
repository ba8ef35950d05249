// Package dispatch serializes external commands against one table,
// applies them through the holdem.Table state machine, persists the
// resulting events, and fans them out to subscribers. Each Actor owns
// exactly one table and runs its command loop on a single goroutine, so no
// locking is needed inside the loop itself.
package dispatch

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"pokertable/card"
	"pokertable/events"
	"pokertable/holdem"
	"pokertable/timer"
)

var (
	ErrTableClosed    = errors.New("dispatch: table closed")
	ErrNotYourTurn    = holdem.ErrOutOfTurn
	ErrUnknownUser    = errors.New("dispatch: user is not seated at this table")
	ErrSeatTaken      = errors.New("dispatch: user already seated")
)

// EventSink persists events durably; Actor calls it synchronously before
// acknowledging the command that produced them. An Append or Snapshot error
// is logged and the command is still acknowledged; the error is not
// returned to the caller.
type EventSink interface {
	Append(ctx context.Context, tableID string, evs []events.Event) error
	Snapshot(ctx context.Context, tableID string, seq uint64, snap holdem.Snapshot) error
}

// Actor owns one table's full lifecycle.
type Actor struct {
	id  string
	cfg holdem.Config

	table *holdem.Table
	timer *timer.TurnTimer
	clock quartz.Clock
	sink  EventSink
	log   *log.Logger

	cmds    chan command
	stopped chan struct{}
	done    chan struct{}
	closed  bool

	seq        uint64
	handLog    []events.Event
	subs       map[uint64]*subscription
	nextSubID  uint64
	chairOf    map[uint64]uint16
	ownerID    uint64
	autoStart  bool
}

// NewActor constructs an Actor for a brand-new table and starts its
// command loop. Callers must call Close when the table is retired.
func NewActor(id string, cfg holdem.Config, ownerID uint64, clock quartz.Clock, sink EventSink, logger *log.Logger) (*Actor, error) {
	a, err := newActor(id, cfg, ownerID, clock, sink, logger, 0)
	if err != nil {
		return nil, err
	}
	a.emit(events.KindTableCreated, events.TableCreated{
		OwnerUserID:   ownerID,
		MaxPlayers:    cfg.MaxPlayers,
		MinPlayers:    cfg.MinPlayers,
		SmallBlind:    cfg.SmallBlind,
		BigBlind:      cfg.BigBlind,
		ActionTimeout: cfg.ActionTimeout,
	}, events.Broadcast)
	return a, nil
}

// RestoreActor rebuilds an Actor for a table that already existed before a
// process restart, rehydrating it from a previously persisted Snapshot
// instead of starting fresh. seq is the sequence number the snapshot was
// taken at, so newly emitted events continue numbering from there rather
// than colliding with the durable log already on disk. It does not re-emit
// TableCreated or replay history: Subscribe replays only events this Actor
// emitted after the restore, so earlier events are not delivered through
// Subscribe.
func RestoreActor(id string, cfg holdem.Config, ownerID uint64, clock quartz.Clock, sink EventSink, logger *log.Logger, seq uint64, snap holdem.Snapshot) (*Actor, error) {
	a, err := newActor(id, cfg, ownerID, clock, sink, logger, seq)
	if err != nil {
		return nil, err
	}
	if err := a.Restore(snap); err != nil {
		return nil, err
	}
	return a, nil
}

func newActor(id string, cfg holdem.Config, ownerID uint64, clock quartz.Clock, sink EventSink, logger *log.Logger, seq uint64) (*Actor, error) {
	tbl, err := holdem.NewTable(cfg)
	if err != nil {
		return nil, err
	}
	a := &Actor{
		id:      id,
		cfg:     cfg,
		table:   tbl,
		timer:   timer.New(clock),
		clock:   clock,
		sink:    sink,
		log:     logger.With("table", id),
		cmds:    make(chan command, 64),
		stopped: make(chan struct{}),
		done:    make(chan struct{}),
		seq:     seq,
		subs:    make(map[uint64]*subscription),
		chairOf: make(map[uint64]uint16),
		ownerID: ownerID,
	}
	go a.run()
	return a, nil
}

func (a *Actor) run() {
	for {
		select {
		case cmd := <-a.cmds:
			cmd.apply(a)
			if a.closed {
				close(a.done)
				return
			}
		}
	}
}

// Close stops accepting new commands and notifies every subscriber with a
// TableClosed event before tearing down their channels. It is idempotent.
func (a *Actor) Close(reason string) {
	respCh := make(chan error, 1)
	if err := a.submit(closeCmd{reason: reason, resp: respCh}, respCh); err != nil {
		return
	}
	<-a.done
}

// submit sends cmd to the actor loop and blocks until it has been applied.
// It returns ErrTableClosed without blocking if the actor has already
// stopped its command loop.
func (a *Actor) submit(c command, resp <-chan error) error {
	select {
	case <-a.stopped:
		return ErrTableClosed
	default:
	}
	select {
	case a.cmds <- c:
		return <-resp
	case <-a.stopped:
		return ErrTableClosed
	}
}

func (a *Actor) nextSeq() uint64 {
	a.seq++
	return a.seq
}

func (a *Actor) emit(kind events.Kind, payload any, privateTo uint16) {
	ev, err := events.Encode(a.nextSeq(), a.id, a.handNumber(), kind, time.Now().UTC(), payload)
	if err != nil {
		a.log.Error("failed to encode event", "kind", kind, "err", err)
		return
	}
	a.handLog = append(a.handLog, ev)
	if err := a.sink.Append(context.Background(), a.id, []events.Event{ev}); err != nil {
		a.log.Error("failed to persist event", "kind", kind, "err", err)
	}
	a.fanOut(ev, privateTo)
}

func (a *Actor) handNumber() uint64 {
	return a.table.Snapshot().HandNumber
}

func (a *Actor) fanOut(ev events.Event, privateTo uint16) {
	for _, sub := range a.subs {
		if privateTo != events.Broadcast && sub.chair != privateTo {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			a.log.Warn("dropping event for slow subscriber", "userID", sub.userID, "seq", ev.SequenceNumber)
		}
	}
}

func (a *Actor) chairForUser(userID uint64) (uint16, bool) {
	chair, ok := a.chairOf[userID]
	return chair, ok
}

func (a *Actor) emitActionRejected(userID uint64, reason string) {
	ev, err := events.Encode(0, a.id, a.handNumber(), events.KindActionRejected, time.Now().UTC(),
		events.ActionRejected{UserID: userID, Reason: reason})
	if err != nil {
		return
	}
	chair, ok := a.chairForUser(userID)
	if !ok {
		return
	}
	for _, sub := range a.subs {
		if sub.chair != chair {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// armTurnTimer (re)arms the deadline for the table's current actor, if
// any, emitting TurnChanged.
func (a *Actor) armTurnTimer() {
	chair, ok := a.table.CurrentTurnChair()
	if !ok {
		a.timer.Cancel()
		return
	}
	d := a.cfg.ActionTimeout
	if d <= 0 {
		d = timer.DefaultActionDuration
	}
	deadline := a.timer.Arm(chair, d, a.onTimeout)
	a.emit(events.KindTurnChanged, events.TurnChanged{Chair: chair, DeadlineAtUTC: deadline}, events.Broadcast)
}

// fullSnapshot layers the pending turn-timer deadline onto the table's own
// snapshot, since the timer lives on the Actor rather than the Table.
func (a *Actor) fullSnapshot() holdem.Snapshot {
	snap := a.table.Snapshot()
	deadline, chair, armed := a.timer.Deadline()
	snap.TimerDeadline = deadline
	snap.TimerChair = chair
	snap.TimerArmed = armed
	return snap
}

func (a *Actor) onTimeout(chair uint16) {
	respCh := make(chan error, 1)
	_ = a.submit(timeoutCmd{chair: chair, resp: respCh}, respCh)
}

// seatOrderAscending returns every seated chair in ascending order, used
// for the HandStarted projection.
func (a *Actor) seatOrderAscending() []uint16 {
	snap := a.table.Snapshot()
	out := make([]uint16, 0, len(snap.Players))
	for _, p := range snap.Players {
		out = append(out, p.Chair)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (a *Actor) publicStateFor(userID uint64) PublicState {
	snap := a.table.Snapshot()
	viewerChair, isSeated := a.chairForUser(userID)

	players := make([]PublicPlayer, 0, len(snap.Players))
	var holeCards []card.Card
	for _, p := range snap.Players {
		players = append(players, PublicPlayer{
			Chair:              p.Chair,
			Stack:              p.Stack,
			CommittedThisRound: p.CommittedThisRound,
			CommittedThisHand:  p.CommittedThisHand,
			Status:             p.Status,
			Role:               p.Role,
		})
		if isSeated && p.Chair == viewerChair {
			holeCards = p.HoleCards
		}
	}
	sort.Slice(players, func(i, j int) bool { return players[i].Chair < players[j].Chair })

	return PublicState{
		TableID:      a.id,
		HandNumber:   snap.HandNumber,
		Phase:        snap.Phase,
		Players:      players,
		DealerChair:  snap.DealerChair,
		CurrentChair: snap.CurrentChair,
		HasCurrent:   snap.HasCurrent,
		CurrentBet:   snap.CurrentBet,
		Community:    snap.Community,
		YourHole:     holeCards,
	}
}

// PublicPlayer is the externally visible projection of one seat.
type PublicPlayer struct {
	Chair              uint16
	Stack              int64
	CommittedThisRound int64
	CommittedThisHand  int64
	Status             holdem.PlayerStatus
	Role               holdem.PlayerRole
}

// PublicState is the per-viewer projection returned by ProjectView: every
// seat's public fields, plus the viewer's own hole cards only.
type PublicState struct {
	TableID      string
	HandNumber   uint64
	Phase        holdem.Phase
	Players      []PublicPlayer
	DealerChair  uint16
	CurrentChair uint16
	HasCurrent   bool
	CurrentBet   int64
	Community    []card.Card
	YourHole     []card.Card
}

func (a *Actor) requireOpen() error {
	if a.closed {
		return ErrTableClosed
	}
	return nil
}

// subscription is the actor-side half of a live event feed.
type subscription struct {
	id     uint64
	userID uint64
	chair  uint16
	ch     chan events.Event
}

// Subscription is the caller-side handle returned by Subscribe. Events
// delivers the table's append-only log from the requested point onward;
// callers must keep draining it or later sends are dropped. Unsubscribe
// releases it.
type Subscription struct {
	id     uint64
	actor  *Actor
	Events <-chan events.Event
}

// Unsubscribe stops delivery and closes the Events channel. It is safe to
// call more than once.
func (s *Subscription) Unsubscribe() {
	s.actor.cmds <- unsubscribeCmd{id: s.id}
}

// JoinTable seats userID at chair with the given buy-in.
func (a *Actor) JoinTable(userID uint64, chair uint16, buyIn int64) error {
	resp := make(chan error, 1)
	return a.submit(joinCmd{userID: userID, chair: chair, buyIn: buyIn, resp: resp}, resp)
}

// LeaveTable removes userID from the table, auto-folding them if a hand is
// in progress.
func (a *Actor) LeaveTable(userID uint64) error {
	resp := make(chan error, 1)
	return a.submit(leaveCmd{userID: userID, resp: resp}, resp)
}

// StartHand begins a new hand if the table has enough seated players.
func (a *Actor) StartHand(byUserID uint64) error {
	resp := make(chan error, 1)
	return a.submit(startHandCmd{byUserID: byUserID, resp: resp}, resp)
}

// Submit applies a player's action. It returns ErrNotYourTurn if userID is
// not the table's current actor, ErrUnknownUser if they hold no seat, or an
// *holdem.IllegalActionError if the action itself is invalid.
func (a *Actor) Submit(userID uint64, kind holdem.ActionKind, amount int64) error {
	resp := make(chan error, 1)
	return a.submit(actionCmd{userID: userID, kind: kind, amount: amount, resp: resp}, resp)
}

// Subscribe opens a live event feed for userID, replaying any buffered
// events with SequenceNumber greater than since.
func (a *Actor) Subscribe(userID uint64, since uint64) (*Subscription, error) {
	resp := make(chan *Subscription, 1)
	select {
	case a.cmds <- subscribeCmd{userID: userID, since: since, resp: resp}:
		return <-resp, nil
	case <-a.stopped:
		return nil, ErrTableClosed
	}
}

// ProjectView returns the publicly visible table state for userID,
// including their own hole cards if they are seated.
func (a *Actor) ProjectView(userID uint64) (PublicState, error) {
	resp := make(chan PublicState, 1)
	select {
	case a.cmds <- projectCmd{userID: userID, resp: resp}:
		return <-resp, nil
	case <-a.stopped:
		return PublicState{}, ErrTableClosed
	}
}

// Snapshot returns a durable projection of the table's current state,
// suitable for persistence and later Restore.
func (a *Actor) Snapshot() (holdem.Snapshot, error) {
	resp := make(chan holdem.Snapshot, 1)
	select {
	case a.cmds <- snapshotCmd{resp: resp}:
		return <-resp, nil
	case <-a.stopped:
		return holdem.Snapshot{}, ErrTableClosed
	}
}

// Restore rehydrates a freshly constructed Actor's table from a
// previously captured Snapshot, seating any chairs it doesn't already
// know about. It does not replay or re-emit history, and Subscribe's since
// parameter reaches only events emitted after the restore.
func (a *Actor) Restore(snap holdem.Snapshot) error {
	resp := make(chan error, 1)
	return a.submit(restoreCmd{snap: snap, resp: resp}, resp)
}
