package holdem

import (
	"time"

	"pokertable/card"
)

// PlayerSnapshot is the durable projection of one seat.
type PlayerSnapshot struct {
	Chair               uint16
	UserID              uint64
	Stack               int64
	CommittedThisRound  int64
	CommittedThisHand   int64
	Status              PlayerStatus
	Role                PlayerRole
	HasActedThisRound   bool
	HoleCards           []card.Card
}

// Snapshot is the full durable projection of a Table, sufficient to
// rehydrate play after a process restart.
type Snapshot struct {
	HandNumber     uint64
	Phase          Phase
	Players        []PlayerSnapshot
	DealerChair    uint16
	CurrentChair   uint16
	HasCurrent     bool
	CurrentBet     int64
	LastRaiseIncr  int64
	RaiserChair    uint16
	Community      []card.Card
	Burned         []card.Card
	DeckRemaining  []card.Card
	Frozen         bool

	// TimerDeadline/TimerChair/TimerArmed capture the pending turn-timer
	// deadline alongside the table state itself, so a restored table
	// doesn't silently lose its clock. The Table type has no notion of a
	// timer; dispatch populates and consumes these three fields around
	// Table.Snapshot/Restore.
	TimerDeadline time.Time
	TimerChair    uint16
	TimerArmed    bool
}

// Snapshot captures the table's full state.
func (t *Table) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	players := make([]PlayerSnapshot, 0, len(t.playersByChair))
	for _, p := range t.playersByChair {
		players = append(players, PlayerSnapshot{
			Chair:              p.Chair,
			UserID:             p.UserID,
			Stack:              p.stack,
			CommittedThisRound: p.committedThisRound,
			CommittedThisHand:  p.committedThisHand,
			Status:             p.status,
			Role:               p.role,
			HasActedThisRound:  p.hasActedThisRound,
			HoleCards:          append([]card.Card{}, p.holeCards...),
		})
	}

	snap := Snapshot{
		HandNumber:    t.handNumber,
		Phase:         t.phase,
		Players:       players,
		CurrentBet:    t.currentBet,
		LastRaiseIncr: t.lastRaiseIncrement,
		RaiserChair:   t.raiserChair,
		Community:     append([]card.Card{}, t.community...),
		Burned:        append([]card.Card{}, t.burned...),
		Frozen:        t.frozen,
	}
	if t.dealerNode != nil {
		snap.DealerChair = t.dealerNode.ChairID
	}
	if t.curNode != nil {
		snap.CurrentChair = t.curNode.ChairID
		snap.HasCurrent = true
	}
	if t.deck != nil {
		snap.DeckRemaining = t.deck.RemainingCards()
	}
	return snap
}

// Restore rehydrates a table from a previously captured Snapshot. The
// table must have been freshly constructed with the same Config and have
// every chair in the snapshot already seated via SitDown.
func (t *Table) Restore(snap Snapshot) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.handNumber = snap.HandNumber
	t.phase = snap.Phase
	t.currentBet = snap.CurrentBet
	t.lastRaiseIncrement = snap.LastRaiseIncr
	t.raiserChair = snap.RaiserChair
	t.community = append(card.CardList{}, snap.Community...)
	t.burned = append(card.CardList{}, snap.Burned...)
	t.frozen = snap.Frozen
	t.ended = snap.Phase == PhaseComplete

	chairs := make([]uint16, 0, len(snap.Players))
	for _, ps := range snap.Players {
		p, ok := t.playersByChair[ps.Chair]
		if !ok {
			p = &Player{Chair: ps.Chair}
			t.playersByChair[ps.Chair] = p
		}
		p.UserID = ps.UserID
		p.stack = ps.Stack
		p.committedThisRound = ps.CommittedThisRound
		p.committedThisHand = ps.CommittedThisHand
		p.status = ps.Status
		p.role = ps.Role
		p.hasActedThisRound = ps.HasActedThisRound
		p.holeCards = append(card.CardList{}, ps.HoleCards...)
		chairs = append(chairs, ps.Chair)
	}
	t.buildRing(chairs)

	if node, ok := t.chairNodes[snap.DealerChair]; ok {
		t.dealerNode = node
	}
	if snap.HasCurrent {
		if node, ok := t.chairNodes[snap.CurrentChair]; ok {
			t.curNode = node
		}
	} else {
		t.curNode = nil
	}
	if snap.DeckRemaining != nil {
		t.deck = card.NewDeckFromOrder(snap.DeckRemaining)
	}
	return nil
}
