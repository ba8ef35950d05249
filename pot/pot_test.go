package pot_test

import (
	"testing"

	"pokertable/eval"
	"pokertable/pot"
)

func TestBuildLayersSidePot(t *testing.T) {
	// Seat1 is all-in for 50; Seat2 and Seat3 end up committing 250 each.
	committed := map[uint16]int64{1: 50, 2: 250, 3: 250}
	folded := map[uint16]bool{}

	layers := pot.BuildLayers(committed, folded)
	if len(layers) != 2 {
		t.Fatalf("got %d layers, want 2", len(layers))
	}
	if layers[0].Amount != 150 {
		t.Fatalf("main pot amount got %d, want 150", layers[0].Amount)
	}
	if len(layers[0].EligibleSeats) != 3 {
		t.Fatalf("main pot eligible seats got %v, want all three", layers[0].EligibleSeats)
	}
	if layers[1].Amount != 400 {
		t.Fatalf("side pot amount got %d, want 400", layers[1].Amount)
	}
	if len(layers[1].EligibleSeats) != 2 {
		t.Fatalf("side pot eligible seats got %v, want seat2 and seat3 only", layers[1].EligibleSeats)
	}
}

func TestSettleSplitPotOddChipGoesToEarliestClockwiseFromDealer(t *testing.T) {
	// seat3 folded after putting in 1 chip, so seats 1 and 2 tie for a
	// 101-chip pot and the odd chip goes to seat1, first clockwise from
	// dealer seat3.
	committed := map[uint16]int64{1: 50, 2: 50, 3: 1}
	folded := map[uint16]bool{3: true}
	layers := pot.BuildLayers(committed, folded)

	strengths := map[uint16]eval.Key{
		1: {Category: eval.Pair, Tiebreakers: []int{10, 9, 8, 7}},
		2: {Category: eval.Pair, Tiebreakers: []int{10, 9, 8, 7}},
	}

	payouts, _, err := pot.Settle(layers, strengths, 3, []uint16{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	if payouts[1] != 51 {
		t.Fatalf("seat1 got %d, want 51", payouts[1])
	}
	if payouts[2] != 50 {
		t.Fatalf("seat2 got %d, want 50", payouts[2])
	}
}

func TestSettleConservesChips(t *testing.T) {
	committed := map[uint16]int64{1: 50, 2: 250, 3: 250}
	folded := map[uint16]bool{}
	layers := pot.BuildLayers(committed, folded)

	strengths := map[uint16]eval.Key{
		1: {Category: eval.Straight, Tiebreakers: []int{10}},
		2: {Category: eval.Pair, Tiebreakers: []int{5, 4, 3, 2}},
		3: {Category: eval.TwoPair, Tiebreakers: []int{9, 8, 7}},
	}

	payouts, results, err := pot.Settle(layers, strengths, 1, []uint16{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}

	var total int64
	for _, amt := range payouts {
		total += amt
	}
	if total != 550 {
		t.Fatalf("total payouts got %d, want 550", total)
	}

	// Seat1's straight wins the main pot outright.
	if payouts[1] != 150 {
		t.Fatalf("seat1 main pot share got %d, want 150", payouts[1])
	}
	// Seat3's two pair beats seat2's pair for the side pot.
	if payouts[3] != 400 {
		t.Fatalf("seat3 side pot share got %d, want 400", payouts[3])
	}
	if len(results) != 2 {
		t.Fatalf("got %d layer results, want 2", len(results))
	}
}

func TestSettleSingleEligibleSeatRefundsExcess(t *testing.T) {
	// Seat1 raised to 200 and everyone else folded at 50: seat1's layer
	// above 50 has no other eligible seat and is simply returned.
	committed := map[uint16]int64{1: 200, 2: 50}
	folded := map[uint16]bool{2: true}
	layers := pot.BuildLayers(committed, folded)

	strengths := map[uint16]eval.Key{}
	payouts, _, err := pot.Settle(layers, strengths, 1, []uint16{1, 2})
	if err != nil {
		t.Fatal(err)
	}
	if payouts[1] != 250 {
		t.Fatalf("seat1 got %d, want 250", payouts[1])
	}
}
