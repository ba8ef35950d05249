package eval

import "errors"

// ErrInsufficientCards is returned when fewer than 5 cards are supplied.
var ErrInsufficientCards = errors.New("eval: at least 5 cards required")

// Key is a totally-ordered hand-strength value: two Keys compare first by
// Category, then lexicographically by Tiebreakers (both descending by
// strength). Equal Keys represent a genuine tie, not an evaluator defect.
type Key struct {
	Category    Category
	Tiebreakers []int
}

// Compare returns -1 if a is weaker than b, 1 if a is stronger, 0 if tied.
func Compare(a, b Key) int {
	if a.Category != b.Category {
		if a.Category < b.Category {
			return -1
		}
		return 1
	}
	n := len(a.Tiebreakers)
	if len(b.Tiebreakers) < n {
		n = len(b.Tiebreakers)
	}
	for i := 0; i < n; i++ {
		if a.Tiebreakers[i] != b.Tiebreakers[i] {
			if a.Tiebreakers[i] < b.Tiebreakers[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Beats reports whether a strictly outranks b.
func (a Key) Beats(b Key) bool {
	return Compare(a, b) > 0
}

// Equal reports whether a and b are a genuine tie.
func (a Key) Equal(b Key) bool {
	return Compare(a, b) == 0
}
