package eval_test

import (
	"testing"

	"pokertable/card"
	"pokertable/eval"
)

func mustCards(t *testing.T, specs ...string) []card.Card {
	t.Helper()
	out := make([]card.Card, len(specs))
	for i, s := range specs {
		c, err := card.ParseCard(s)
		if err != nil {
			t.Fatalf("ParseCard(%q): %v", s, err)
		}
		out[i] = c
	}
	return out
}

func TestEvaluateCategories(t *testing.T) {
	cases := []struct {
		name     string
		cards    []string
		category eval.Category
	}{
		{"high card", []string{"As", "Kh", "9c", "5d", "2s"}, eval.HighCard},
		{"pair", []string{"As", "Ah", "9c", "5d", "2s"}, eval.Pair},
		{"two pair", []string{"As", "Ah", "9c", "9d", "2s"}, eval.TwoPair},
		{"trips", []string{"As", "Ah", "Ac", "5d", "2s"}, eval.Trips},
		{"straight", []string{"4s", "5h", "6c", "7d", "8s"}, eval.Straight},
		{"wheel straight", []string{"As", "2h", "3c", "4d", "5s"}, eval.Straight},
		{"flush", []string{"2s", "5s", "9s", "Js", "Ks"}, eval.Flush},
		{"full house", []string{"As", "Ah", "Ac", "5d", "5s"}, eval.FullHouse},
		{"quads", []string{"As", "Ah", "Ac", "Ad", "5s"}, eval.Quads},
		{"straight flush", []string{"4s", "5s", "6s", "7s", "8s"}, eval.StraightFlush},
		{"wheel straight flush", []string{"As", "2s", "3s", "4s", "5s"}, eval.StraightFlush},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			k, err := eval.Evaluate(mustCards(t, tc.cards...))
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if k.Category != tc.category {
				t.Fatalf("got category %v, want %v", k.Category, tc.category)
			}
		})
	}
}

func TestEvaluateInsufficientCards(t *testing.T) {
	_, err := eval.Evaluate(mustCards(t, "As", "Kh", "9c", "5d"))
	if err != eval.ErrInsufficientCards {
		t.Fatalf("got err %v, want ErrInsufficientCards", err)
	}
}

func TestWheelRanksBelowSixHighStraight(t *testing.T) {
	wheel, err := eval.Evaluate(mustCards(t, "As", "2h", "3c", "4d", "5s"))
	if err != nil {
		t.Fatal(err)
	}
	sixHigh, err := eval.Evaluate(mustCards(t, "2s", "3h", "4c", "5d", "6s"))
	if err != nil {
		t.Fatal(err)
	}
	if !sixHigh.Beats(wheel) {
		t.Fatalf("expected six-high straight to beat the wheel")
	}
}

func TestBestOfSevenPicksStrongestFive(t *testing.T) {
	// Board: 2s 3s 4s 5s 6s ; hole: 7h 8h -- the board's own straight
	// flush beats using the hole cards at all.
	k, err := eval.Evaluate(mustCards(t, "2s", "3s", "4s", "5s", "6s", "7h", "8h"))
	if err != nil {
		t.Fatal(err)
	}
	if k.Category != eval.StraightFlush {
		t.Fatalf("got %v, want StraightFlush", k.Category)
	}
	if k.Tiebreakers[0] != 6 {
		t.Fatalf("got high card %d, want 6", k.Tiebreakers[0])
	}
}

func TestCompareDetectsGenuineTie(t *testing.T) {
	a, err := eval.Evaluate(mustCards(t, "Ks", "Kh", "9c", "5d", "2s"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := eval.Evaluate(mustCards(t, "Kc", "Kd", "9h", "5s", "2h"))
	if err != nil {
		t.Fatal(err)
	}
	if !a.Equal(b) {
		t.Fatalf("expected identical-rank hands to tie")
	}
}

func TestFullHouseOutranksFlush(t *testing.T) {
	fh, err := eval.Evaluate(mustCards(t, "As", "Ah", "Ac", "5d", "5s"))
	if err != nil {
		t.Fatal(err)
	}
	fl, err := eval.Evaluate(mustCards(t, "2s", "5s", "9s", "Js", "Ks"))
	if err != nil {
		t.Fatal(err)
	}
	if !fh.Beats(fl) {
		t.Fatalf("expected full house to beat flush")
	}
}

func TestDescribe(t *testing.T) {
	k, err := eval.Evaluate(mustCards(t, "As", "Ah", "Ac", "5d", "5s"))
	if err != nil {
		t.Fatal(err)
	}
	if got, want := eval.Describe(k), "Full House, Aces full of Fives"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
