package eval

import (
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"

	"pokertable/card"
)

// cacheSize is generous enough to cover every distinct 7-card combination a
// single hand's showdown can produce across all seats without ever
// thrashing under normal table sizes.
const cacheSize = 4096

var cache, _ = lru.New[uint64, Key](cacheSize)

// EvaluateCached behaves like Evaluate but memoizes by the exact card set,
// since a showdown calls Evaluate once per live seat and the 7-card
// combination scan is the most expensive part of settling a hand.
func EvaluateCached(cards []card.Card) (Key, error) {
	key := cacheKey(cards)
	if k, ok := cache.Get(key); ok {
		return k, nil
	}
	k, err := Evaluate(cards)
	if err != nil {
		return Key{}, err
	}
	cache.Add(key, k)
	return k, nil
}

// cacheKey packs up to 8 one-byte cards into a uint64, canonicalized by
// sorting so hole-card and community-card order never affects the hit rate.
func cacheKey(cards []card.Card) uint64 {
	sorted := make([]byte, len(cards))
	for i, c := range cards {
		sorted[i] = byte(c)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var key uint64
	for i, b := range sorted {
		if i >= 8 {
			break
		}
		key |= uint64(b) << (8 * i)
	}
	return key
}
