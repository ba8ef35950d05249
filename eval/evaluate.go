package eval

import (
	"sort"

	"pokertable/card"
)

// Evaluate returns the strength Key of the best 5-card hand selectable from
// cards (5 to 7 of them, as at showdown with 2 hole cards and up to 5
// community cards). It evaluates every 5-card selection and returns the
// highest key among them.
func Evaluate(cards []card.Card) (Key, error) {
	if len(cards) < 5 {
		return Key{}, ErrInsufficientCards
	}
	if len(cards) == 5 {
		var hand [5]card.Card
		copy(hand[:], cards)
		return evaluate5(hand), nil
	}

	best := Key{}
	first := true
	forEachCombination(len(cards), 5, func(idx []int) {
		var hand [5]card.Card
		for i, j := range idx {
			hand[i] = cards[j]
		}
		k := evaluate5(hand)
		if first || Compare(k, best) > 0 {
			best = k
			first = false
		}
	})
	return best, nil
}

// forEachCombination invokes fn once for every k-element subset of
// {0, ..., n-1}, expressed as ascending indices.
func forEachCombination(n, k int, fn func(idx []int)) {
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	for {
		fn(idx)

		i := k - 1
		for i >= 0 && idx[i] == n-k+i {
			i--
		}
		if i < 0 {
			return
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}

type rankGroup struct {
	value int
	count int
}

func evaluate5(hand [5]card.Card) Key {
	values := make([]int, 5)
	counts := make(map[int]int, 5)
	flush := true
	suit0 := hand[0].Suit()
	for i, c := range hand {
		v := c.RankValue()
		values[i] = v
		counts[v]++
		if c.Suit() != suit0 {
			flush = false
		}
	}

	groups := make([]rankGroup, 0, len(counts))
	for v, n := range counts {
		groups = append(groups, rankGroup{value: v, count: n})
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].count != groups[j].count {
			return groups[i].count > groups[j].count
		}
		return groups[i].value > groups[j].value
	})

	straight, straightHigh := detectStraight(values)

	if flush && straight {
		return Key{Category: StraightFlush, Tiebreakers: []int{straightHigh}}
	}
	if groups[0].count == 4 {
		return Key{Category: Quads, Tiebreakers: []int{groups[0].value, groups[1].value}}
	}
	if groups[0].count == 3 && groups[1].count == 2 {
		return Key{Category: FullHouse, Tiebreakers: []int{groups[0].value, groups[1].value}}
	}
	if flush {
		return Key{Category: Flush, Tiebreakers: descendingValues(values)}
	}
	if straight {
		return Key{Category: Straight, Tiebreakers: []int{straightHigh}}
	}
	if groups[0].count == 3 {
		kickers := remainingValues(groups, 1)
		return Key{Category: Trips, Tiebreakers: append([]int{groups[0].value}, kickers...)}
	}
	if groups[0].count == 2 && groups[1].count == 2 {
		hi, lo := groups[0].value, groups[1].value
		if lo > hi {
			hi, lo = lo, hi
		}
		return Key{Category: TwoPair, Tiebreakers: []int{hi, lo, groups[2].value}}
	}
	if groups[0].count == 2 {
		kickers := remainingValues(groups, 1)
		return Key{Category: Pair, Tiebreakers: append([]int{groups[0].value}, kickers...)}
	}
	return Key{Category: HighCard, Tiebreakers: descendingValues(values)}
}

// detectStraight reports whether values (5 card ranks, Ace=14) form a
// straight, and if so its high card -- with the wheel (A-2-3-4-5) ranking
// as high=5, below a 6-high straight.
func detectStraight(values []int) (bool, int) {
	seen := make(map[int]bool, 5)
	for _, v := range values {
		seen[v] = true
	}
	if len(seen) != 5 {
		return false, 0
	}
	if seen[14] {
		seen[1] = true
	}

	distinct := make([]int, 0, len(seen))
	for v := range seen {
		distinct = append(distinct, v)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(distinct)))

	for i := 0; i+4 < len(distinct); i++ {
		if distinct[i]-distinct[i+4] == 4 {
			return true, distinct[i]
		}
	}
	return false, 0
}

func descendingValues(values []int) []int {
	out := append([]int{}, values...)
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}

// remainingValues flattens the groups after the first skip groups into a
// descending list of individual rank values (one per card in each group).
func remainingValues(groups []rankGroup, skip int) []int {
	out := make([]int, 0, 4)
	for _, g := range groups[skip:] {
		for i := 0; i < g.count; i++ {
			out = append(out, g.value)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}
