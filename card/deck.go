package card

import (
	"errors"
	"math/rand"
)

// ErrDeckExhausted is returned when a draw requests more cards than remain.
var ErrDeckExhausted = errors.New("card: deck exhausted")

// CardList is a mutable sequence of cards, used both as a Deck's backing
// store and as the hole-card/community-card/burn-pile slices held directly
// by a Table.
type CardList []Card

func (ds *CardList) Init(cards []Card) {
	*ds = make([]Card, len(cards))
	copy(*ds, cards)
}

// Count returns the number of cards remaining.
func (ds CardList) Count() int {
	return len(ds)
}

// PopCards removes and returns the first size cards, in order.
func (ds *CardList) PopCards(size int) ([]Card, bool) {
	if size > ds.Count() {
		return nil, false
	}
	cards := make([]Card, size)
	copy(cards, (*ds)[:size])
	*ds = (*ds)[size:]
	return cards, true
}

// Deck is an ordered, mutable sequence of cards with a draw cursor. A fresh
// Deck holds the entire 52-card universe permuted by NewShuffledDeck; Draw
// and Burn advance the cursor, never re-dealing a card already drawn.
type Deck struct {
	cards CardList
}

// NewShuffledDeck builds the 52-card universe and permutes it with a
// Fisher-Yates shuffle driven by rng. rng must be seeded by the caller for
// reproducible tests; the permutation it produces is uniformly distributed
// over all 52! orderings.
func NewShuffledDeck(rng *rand.Rand) *Deck {
	cards := Full52()
	rng.Shuffle(len(cards), func(i, j int) { cards[i], cards[j] = cards[j], cards[i] })
	d := &Deck{}
	d.cards.Init(cards)
	return d
}

// NewDeckFromOrder builds a deck whose draw order is exactly order. Used by
// tests that need a deterministic sequence of dealt cards; order must
// contain all 52 distinct cards or callers risk drawing duplicates.
func NewDeckFromOrder(order []Card) *Deck {
	d := &Deck{}
	d.cards.Init(order)
	return d
}

// Remaining reports how many undealt cards are left.
func (d *Deck) Remaining() int {
	return d.cards.Count()
}

// Draw removes and returns the next n cards in deck order, advancing the
// cursor. It fails with ErrDeckExhausted, leaving the deck unchanged, if
// fewer than n cards remain.
func (d *Deck) Draw(n int) ([]Card, error) {
	cards, ok := d.cards.PopCards(n)
	if !ok {
		return nil, ErrDeckExhausted
	}
	return cards, nil
}

// RemainingCards returns a copy of the undealt cards in draw order,
// without consuming them. Used to persist and restore deck state across
// snapshots.
func (d *Deck) RemainingCards() []Card {
	out := make([]Card, len(d.cards))
	copy(out, d.cards)
	return out
}

// Burn discards the next card without revealing it. The card is still
// accounted for by deck-conservation checks; callers that track burned
// cards separately should capture the returned value rather than discard it
// silently.
func (d *Deck) Burn() (Card, error) {
	cards, err := d.Draw(1)
	if err != nil {
		return CardInvalid, err
	}
	return cards[0], nil
}
