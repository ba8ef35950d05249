package dispatch

import (
	"context"

	"github.com/dustin/go-humanize"

	"pokertable/events"
	"pokertable/holdem"
)

// command is one entry in an Actor's mailbox. apply runs exclusively on
// the actor's single goroutine.
type command interface {
	apply(a *Actor)
}

type joinCmd struct {
	userID uint64
	chair  uint16
	buyIn  int64
	resp   chan error
}

func (c joinCmd) apply(a *Actor) {
	if err := a.requireOpen(); err != nil {
		c.resp <- err
		return
	}
	if _, already := a.chairForUser(c.userID); already {
		c.resp <- ErrSeatTaken
		return
	}
	if err := a.table.SitDown(c.chair, c.userID, c.buyIn); err != nil {
		c.resp <- err
		return
	}
	a.chairOf[c.userID] = c.chair
	a.emit(events.KindPlayerJoined, events.PlayerJoined{Chair: c.chair, UserID: c.userID, BuyIn: c.buyIn}, events.Broadcast)
	c.resp <- nil
}

type leaveCmd struct {
	userID uint64
	resp   chan error
}

func (c leaveCmd) apply(a *Actor) {
	if err := a.requireOpen(); err != nil {
		c.resp <- err
		return
	}
	chair, ok := a.chairForUser(c.userID)
	if !ok {
		c.resp <- ErrUnknownUser
		return
	}
	phase := a.table.Phase()
	if phase == holdem.PhaseLobby || phase == holdem.PhaseComplete {
		if err := a.table.StandUp(chair); err != nil {
			c.resp <- err
			return
		}
		delete(a.chairOf, c.userID)
	} else {
		result, err := a.table.LeaveDuringHand(chair)
		if err != nil {
			c.resp <- err
			return
		}
		a.afterActionSettled(result)
	}
	a.emit(events.KindPlayerLeft, events.PlayerLeft{Chair: chair, UserID: c.userID}, events.Broadcast)
	c.resp <- nil
}

type startHandCmd struct {
	byUserID uint64
	resp     chan error
}

func (c startHandCmd) apply(a *Actor) {
	if err := a.requireOpen(); err != nil {
		c.resp <- err
		return
	}
	if err := a.table.StartHand(); err != nil {
		c.resp <- err
		return
	}

	snap := a.table.Snapshot()
	a.emit(events.KindHandStarted, events.HandStarted{
		DealerChair: snap.DealerChair,
		SmallBlind:  a.cfg.SmallBlind,
		BigBlind:    a.cfg.BigBlind,
		SeatOrder:   a.seatOrderAscending(),
	}, events.Broadcast)

	for _, p := range snap.Players {
		switch p.Role {
		case holdem.RoleSmallBlind:
			a.emit(events.KindBlindPosted, events.BlindPosted{Chair: p.Chair, Amount: a.cfg.SmallBlind}, events.Broadcast)
		case holdem.RoleBigBlind:
			a.emit(events.KindBlindPosted, events.BlindPosted{Chair: p.Chair, Amount: a.cfg.BigBlind}, events.Broadcast)
		}
		a.emit(events.KindHoleCardsDealt, events.HoleCardsDealt{Chair: p.Chair, Cards: p.HoleCards}, p.Chair)
	}

	if snap.Phase == holdem.PhaseComplete {
		a.onHandComplete(a.table.LastShowdown())
	} else {
		a.armTurnTimer()
	}
	c.resp <- nil
}

type actionCmd struct {
	userID uint64
	kind   holdem.ActionKind
	amount int64
	resp   chan error
}

func (c actionCmd) apply(a *Actor) {
	if err := a.requireOpen(); err != nil {
		c.resp <- err
		return
	}
	chair, ok := a.chairForUser(c.userID)
	if !ok {
		c.resp <- ErrUnknownUser
		return
	}
	if cur, ok := a.table.CurrentTurnChair(); !ok || cur != chair {
		a.emitActionRejected(c.userID, "not your turn")
		c.resp <- ErrNotYourTurn
		return
	}

	potBefore := a.potTotal()
	result, err := a.table.PlayerAction(chair, c.kind, c.amount)
	if err != nil {
		a.emitActionRejected(c.userID, err.Error())
		c.resp <- err
		return
	}

	committed := a.table.Player(chair).CommittedThisRound()
	newPot := a.potTotal()
	a.emit(events.KindActionTaken, events.ActionTaken{
		Chair:         chair,
		Kind:          c.kind,
		Amount:        committed,
		NewPot:        newPot,
		NewCurrentBet: a.currentBet(),
	}, events.Broadcast)
	a.log.Debug("action applied", "chair", chair, "kind", c.kind,
		"pot", humanize.Comma(newPot), "potBefore", humanize.Comma(potBefore))

	a.afterActionSettled(result)
	c.resp <- nil
}

type timeoutCmd struct {
	chair uint16
	resp  chan error
}

func (c timeoutCmd) apply(a *Actor) {
	if err := a.requireOpen(); err != nil {
		c.resp <- err
		return
	}
	kind := holdem.ActionFold
	if p := a.table.Player(c.chair); p != nil && p.CommittedThisRound() == a.currentBet() {
		kind = holdem.ActionCheck
	}
	result, err := a.table.TimeoutExpired(c.chair)
	if err != nil {
		c.resp <- err
		return
	}
	a.emit(events.KindActionTaken, events.ActionTaken{
		Chair:  c.chair,
		Kind:   kind,
		Amount: 0,
		NewPot: a.potTotal(), NewCurrentBet: a.currentBet(),
	}, events.Broadcast)
	a.afterActionSettled(result)
	c.resp <- nil
}

type subscribeCmd struct {
	userID uint64
	since  uint64
	resp   chan *Subscription
}

func (c subscribeCmd) apply(a *Actor) {
	chair, _ := a.chairForUser(c.userID)
	sub := &subscription{
		id:     a.nextSubID,
		userID: c.userID,
		chair:  chair,
		ch:     make(chan events.Event, 256),
	}
	a.nextSubID++
	a.subs[sub.id] = sub

	for _, ev := range a.handLog {
		if ev.SequenceNumber <= c.since {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}

	c.resp <- &Subscription{id: sub.id, actor: a, Events: sub.ch}
}

type unsubscribeCmd struct {
	id uint64
}

func (c unsubscribeCmd) apply(a *Actor) {
	if sub, ok := a.subs[c.id]; ok {
		close(sub.ch)
		delete(a.subs, c.id)
	}
}

type projectCmd struct {
	userID uint64
	resp   chan PublicState
}

func (c projectCmd) apply(a *Actor) {
	c.resp <- a.publicStateFor(c.userID)
}

type snapshotCmd struct {
	resp chan holdem.Snapshot
}

func (c snapshotCmd) apply(a *Actor) {
	c.resp <- a.fullSnapshot()
}

type restoreCmd struct {
	snap holdem.Snapshot
	resp chan error
}

func (c restoreCmd) apply(a *Actor) {
	for _, ps := range c.snap.Players {
		if a.table.Player(ps.Chair) == nil {
			if err := a.table.SitDown(ps.Chair, ps.UserID, ps.Stack); err != nil {
				c.resp <- err
				return
			}
		}
		a.chairOf[ps.UserID] = ps.Chair
	}
	if err := a.table.Restore(c.snap); err != nil {
		c.resp <- err
		return
	}
	// Reconnect never extends a deadline already in flight: re-arm at the
	// exact persisted instant rather than granting a fresh ActionTimeout.
	if c.snap.TimerArmed {
		a.timer.ArmAt(c.snap.TimerChair, c.snap.TimerDeadline, a.onTimeout)
	}
	c.resp <- nil
}

type closeCmd struct {
	reason string
	resp   chan error
}

func (c closeCmd) apply(a *Actor) {
	if a.closed {
		c.resp <- nil
		return
	}
	a.closed = true
	a.emit(events.KindTableClosed, events.TableClosed{Reason: c.reason}, events.Broadcast)
	for _, sub := range a.subs {
		close(sub.ch)
	}
	a.subs = map[uint64]*subscription{}
	close(a.stopped)
	c.resp <- nil
}

// afterActionSettled emits the board-reveal events implied by the phase
// the controller landed in, arms the next turn timer, and closes out the
// hand when result is non-nil.
func (a *Actor) afterActionSettled(result *holdem.ShowdownResult) {
	if result != nil {
		a.onHandComplete(result)
		return
	}

	snap := a.table.Snapshot()
	switch snap.Phase {
	case holdem.PhaseFlop:
		if len(snap.Community) == 3 {
			a.emit(events.KindFlopRevealed, events.FlopRevealed{Cards: snap.Community}, events.Broadcast)
		}
	case holdem.PhaseTurn:
		if len(snap.Community) == 4 {
			a.emit(events.KindTurnRevealed, events.TurnRevealed{Card: snap.Community[3]}, events.Broadcast)
		}
	case holdem.PhaseRiver:
		if len(snap.Community) == 5 {
			a.emit(events.KindRiverRevealed, events.RiverRevealed{Card: snap.Community[4]}, events.Broadcast)
		}
	}
	a.armTurnTimer()
}

func (a *Actor) onHandComplete(result *holdem.ShowdownResult) {
	a.timer.Cancel()
	if result != nil {
		seatHands := make([]events.SeatHand, 0, len(result.Descriptions))
		snap := a.table.Snapshot()
		byChair := make(map[uint16]holdem.PlayerSnapshot, len(snap.Players))
		for _, p := range snap.Players {
			byChair[p.Chair] = p
		}
		for chair, desc := range result.Descriptions {
			seatHands = append(seatHands, events.SeatHand{
				Chair:       chair,
				HoleCards:   byChair[chair].HoleCards,
				Description: desc,
			})
		}
		potResults := make([]events.PotResult, 0, len(result.Layers))
		for _, layer := range result.Layers {
			potResults = append(potResults, events.PotResult{
				Amount:      layer.Layer.Amount,
				Winners:     layer.Winners,
				PerWinner:   layer.PerWinner,
				RemainderTo: layer.RemainderTo,
			})
		}
		a.emit(events.KindShowdown, events.Showdown{
			PerSeatHand:   seatHands,
			Payouts:       result.Payouts,
			WinnersPerPot: potResults,
		}, events.Broadcast)
	}
	a.emit(events.KindHandComplete, events.HandComplete{HandNumber: a.handNumber()}, events.Broadcast)

	if err := a.sink.Snapshot(context.Background(), a.id, a.seq, a.fullSnapshot()); err != nil {
		a.log.Error("failed to persist snapshot", "err", err)
	}
}

func (a *Actor) potTotal() int64 {
	var total int64
	for _, p := range a.table.Snapshot().Players {
		total += p.CommittedThisHand
	}
	return total
}

func (a *Actor) currentBet() int64 {
	return a.table.Snapshot().CurrentBet
}
