// Package events defines the typed, append-only record of everything that
// happens at a table. Every mutating command that the dispatch package
// accepts produces zero or more Events before it acknowledges the caller,
// and subscribers observe the same Events in strictly increasing sequence
// order.
package events

import (
	"encoding/json"
	"time"

	"pokertable/card"
	"pokertable/holdem"
)

// Broadcast marks an emit call as visible to every subscriber rather than
// unicast to one chair.
const Broadcast uint16 = 65535

// Kind discriminates the payload carried by an Event.
type Kind string

const (
	KindTableCreated    Kind = "table_created"
	KindPlayerJoined    Kind = "player_joined"
	KindPlayerLeft      Kind = "player_left"
	KindHandStarted     Kind = "hand_started"
	KindHoleCardsDealt  Kind = "hole_cards_dealt"
	KindBlindPosted     Kind = "blind_posted"
	KindActionTaken     Kind = "action_taken"
	KindTurnChanged     Kind = "turn_changed"
	KindFlopRevealed    Kind = "flop_revealed"
	KindTurnRevealed    Kind = "turn_revealed"
	KindRiverRevealed   Kind = "river_revealed"
	KindShowdown        Kind = "showdown"
	KindHandComplete    Kind = "hand_complete"
	KindTableClosed     Kind = "table_closed"
	KindActionRejected  Kind = "action_rejected"
)

// Event is one entry in a table's append-only log. Payload is one of the
// Kind-specific structs below, marshaled to JSON for storage and for the
// wire; consumers switch on Kind to unmarshal it back to the right type.
type Event struct {
	SequenceNumber uint64          `json:"sequenceNumber"`
	TableID        string          `json:"tableId"`
	HandNumber     uint64          `json:"handNumber"`
	Kind           Kind            `json:"kind"`
	Timestamp      time.Time       `json:"timestamp"`
	Payload        json.RawMessage `json:"payload"`
}

// Encode marshals a typed payload into an Event ready to append.
func Encode(seq uint64, tableID string, handNumber uint64, kind Kind, ts time.Time, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		SequenceNumber: seq,
		TableID:        tableID,
		HandNumber:     handNumber,
		Kind:           kind,
		Timestamp:      ts,
		Payload:        raw,
	}, nil
}

// Decode unmarshals e's payload into out, which must be a pointer to the
// struct matching e.Kind.
func Decode(e Event, out any) error {
	return json.Unmarshal(e.Payload, out)
}

// TableCreated is replayed at startup to rebuild the Config a restored
// table was originally created with.
type TableCreated struct {
	OwnerUserID   uint64        `json:"ownerUserId"`
	MaxPlayers    int           `json:"maxPlayers"`
	MinPlayers    int           `json:"minPlayers"`
	SmallBlind    int64         `json:"smallBlind"`
	BigBlind      int64         `json:"bigBlind"`
	ActionTimeout time.Duration `json:"actionTimeout"`
}

type PlayerJoined struct {
	Chair  uint16 `json:"chair"`
	UserID uint64 `json:"userId"`
	BuyIn  int64  `json:"buyIn"`
}

type PlayerLeft struct {
	Chair  uint16 `json:"chair"`
	UserID uint64 `json:"userId"`
}

type HandStarted struct {
	DealerChair uint16   `json:"dealerChair"`
	SmallBlind  int64    `json:"smallBlind"`
	BigBlind    int64    `json:"bigBlind"`
	SeatOrder   []uint16 `json:"seatOrder"`
}

// HoleCardsDealt is unicast by the dispatcher to the owning seat only; it
// never reaches another subscriber's stream.
type HoleCardsDealt struct {
	Chair uint16      `json:"chair"`
	Cards []card.Card `json:"cards"`
}

type BlindPosted struct {
	Chair  uint16 `json:"chair"`
	Amount int64  `json:"amount"`
}

type ActionTaken struct {
	Chair         uint16            `json:"chair"`
	Kind          holdem.ActionKind `json:"kind"`
	Amount        int64             `json:"amount"`
	NewPot        int64             `json:"newPot"`
	NewCurrentBet int64             `json:"newCurrentBet"`
}

type TurnChanged struct {
	Chair         uint16    `json:"chair"`
	DeadlineAtUTC time.Time `json:"deadlineAtUtc"`
}

type FlopRevealed struct {
	Cards []card.Card `json:"cards"`
}

type TurnRevealed struct {
	Card card.Card `json:"card"`
}

type RiverRevealed struct {
	Card card.Card `json:"card"`
}

type SeatHand struct {
	Chair       uint16      `json:"chair"`
	HoleCards   []card.Card `json:"holeCards"`
	Description string      `json:"description"`
}

type PotResult struct {
	Amount      int64    `json:"amount"`
	Winners     []uint16 `json:"winners"`
	PerWinner   int64    `json:"perWinner"`
	RemainderTo uint16   `json:"remainderTo"`
}

type Showdown struct {
	PerSeatHand   []SeatHand         `json:"perSeatHand"`
	Payouts       map[uint16]int64   `json:"payouts"`
	WinnersPerPot []PotResult        `json:"winnersPerPot"`
}

type HandComplete struct {
	HandNumber uint64 `json:"handNumber"`
}

type TableClosed struct {
	Reason string `json:"reason"`
}

// ActionRejected is unicast to the submitter and never appended to the
// shared table log.
type ActionRejected struct {
	UserID uint64 `json:"userId"`
	Reason string `json:"reason"`
}
