package eval

var rankNames = map[int]string{
	2: "Twos", 3: "Threes", 4: "Fours", 5: "Fives", 6: "Sixes", 7: "Sevens",
	8: "Eights", 9: "Nines", 10: "Tens", 11: "Jacks", 12: "Queens", 13: "Kings", 14: "Aces",
}

var highCardNames = map[int]string{
	2: "2", 3: "3", 4: "4", 5: "5", 6: "6", 7: "7", 8: "8", 9: "9",
	10: "10", 11: "Jack", 12: "Queen", 13: "King", 14: "Ace",
}

// Describe renders a human-readable summary of a Key, e.g.
// "Full House, Queens full of Tens" or "Ace-high Straight".
func Describe(k Key) string {
	switch k.Category {
	case StraightFlush:
		if k.Tiebreakers[0] == 5 {
			return "Straight Flush, Five-high (the wheel)"
		}
		return highCardNames[k.Tiebreakers[0]] + "-high Straight Flush"
	case Quads:
		return "Four of a Kind, " + rankNames[k.Tiebreakers[0]]
	case FullHouse:
		return "Full House, " + rankNames[k.Tiebreakers[0]] + " full of " + rankNames[k.Tiebreakers[1]]
	case Flush:
		return highCardNames[k.Tiebreakers[0]] + "-high Flush"
	case Straight:
		if k.Tiebreakers[0] == 5 {
			return "Straight, Five-high (the wheel)"
		}
		return highCardNames[k.Tiebreakers[0]] + "-high Straight"
	case Trips:
		return "Three of a Kind, " + rankNames[k.Tiebreakers[0]]
	case TwoPair:
		return "Two Pair, " + rankNames[k.Tiebreakers[0]] + " and " + rankNames[k.Tiebreakers[1]]
	case Pair:
		return "Pair of " + rankNames[k.Tiebreakers[0]]
	default:
		return highCardNames[k.Tiebreakers[0]] + "-high"
	}
}
