// Package pot builds main and side pots from a hand's contribution vector
// and distributes winnings once the hand evaluator has ranked the
// remaining hands.
package pot

import (
	"errors"
	"sort"

	"pokertable/eval"
)

// ErrNoEligibleSeats is returned when a layer has no eligible winner, which
// indicates a caller bug: every seat that contributed to a layer either
// folded with no other contributor or the eligibility set was built wrong.
var ErrNoEligibleSeats = errors.New("pot: layer has no eligible seats")

// Layer is one threshold slice of the pot: an amount and the seats that may
// win it.
type Layer struct {
	Amount        int64
	EligibleSeats []uint16
}

// BuildLayers partitions committed contributions into threshold layers per
// the classic side-pot construction: sort distinct non-zero contribution
// levels ascending, and for each level the layer amount is the sum, over
// all contributing seats, of how much of their contribution falls in that
// band. A seat is eligible for a layer only if it has not folded and its
// contribution reaches the layer's threshold.
//
// Layers with a single eligible seat are kept, not dropped: that seat is
// simply refunded its own uncalled excess.
func BuildLayers(committed map[uint16]int64, folded map[uint16]bool) []Layer {
	thresholds := make([]int64, 0, len(committed))
	seen := make(map[int64]bool, len(committed))
	for _, amt := range committed {
		if amt > 0 && !seen[amt] {
			seen[amt] = true
			thresholds = append(thresholds, amt)
		}
	}
	sort.Slice(thresholds, func(i, j int) bool { return thresholds[i] < thresholds[j] })

	seats := make([]uint16, 0, len(committed))
	for seat := range committed {
		seats = append(seats, seat)
	}
	sort.Slice(seats, func(i, j int) bool { return seats[i] < seats[j] })

	layers := make([]Layer, 0, len(thresholds))
	var prev int64
	for _, threshold := range thresholds {
		layer := Layer{}
		for _, seat := range seats {
			amt := committed[seat]
			band := amt - prev
			if band <= 0 {
				continue
			}
			if band > threshold-prev {
				band = threshold - prev
			}
			layer.Amount += band
			if amt >= threshold && !folded[seat] {
				layer.EligibleSeats = append(layer.EligibleSeats, seat)
			}
		}
		if layer.Amount > 0 {
			layers = append(layers, layer)
		}
		prev = threshold
	}
	return layers
}

// LayerResult records how one layer resolved at showdown.
type LayerResult struct {
	Layer       Layer
	WinningKey  eval.Key
	Winners     []uint16
	PerWinner   int64
	RemainderTo uint16
}

// Settle awards every layer to the seat(s) holding the strongest key among
// that layer's eligible seats, splitting equally and assigning any
// remainder chip to the earliest eligible winner clockwise from the dealer
// button. seatOrder must list every seat that appears in committed, in
// clockwise table order (any rotation); dealerSeat must be a member of it.
//
// Postcondition: the returned payouts sum to the sum of committed.
func Settle(layers []Layer, strengths map[uint16]eval.Key, dealerSeat uint16, seatOrder []uint16) (map[uint16]int64, []LayerResult, error) {
	clockwiseFromDealer := rotate(seatOrder, dealerSeat)
	rank := make(map[uint16]int, len(clockwiseFromDealer))
	for i, seat := range clockwiseFromDealer {
		rank[seat] = i
	}

	payouts := make(map[uint16]int64)
	results := make([]LayerResult, 0, len(layers))

	for _, layer := range layers {
		if len(layer.EligibleSeats) == 0 {
			return nil, nil, ErrNoEligibleSeats
		}
		if len(layer.EligibleSeats) == 1 {
			seat := layer.EligibleSeats[0]
			payouts[seat] += layer.Amount
			results = append(results, LayerResult{
				Layer:       layer,
				Winners:     []uint16{seat},
				PerWinner:   layer.Amount,
				RemainderTo: seat,
			})
			continue
		}

		best := strengths[layer.EligibleSeats[0]]
		winners := []uint16{layer.EligibleSeats[0]}
		for _, seat := range layer.EligibleSeats[1:] {
			key := strengths[seat]
			switch eval.Compare(key, best) {
			case 1:
				best = key
				winners = []uint16{seat}
			case 0:
				winners = append(winners, seat)
			}
		}

		sort.Slice(winners, func(i, j int) bool { return rank[winners[i]] < rank[winners[j]] })

		share := layer.Amount / int64(len(winners))
		remainder := layer.Amount % int64(len(winners))
		for _, seat := range winners {
			payouts[seat] += share
		}
		remainderTo := winners[0]
		if remainder > 0 {
			payouts[remainderTo] += remainder
		}

		results = append(results, LayerResult{
			Layer:       layer,
			WinningKey:  best,
			Winners:     winners,
			PerWinner:   share,
			RemainderTo: remainderTo,
		})
	}

	return payouts, results, nil
}

// rotate returns order starting just after dealerSeat, wrapping around --
// i.e. the clockwise acting order used for deterministic tie-breaks.
func rotate(order []uint16, dealerSeat uint16) []uint16 {
	idx := -1
	for i, seat := range order {
		if seat == dealerSeat {
			idx = i
			break
		}
	}
	if idx < 0 {
		return order
	}
	out := make([]uint16, 0, len(order))
	out = append(out, order[idx+1:]...)
	out = append(out, order[:idx+1]...)
	return out
}
