package pairing

// Candidate is one reachable pool member as seen by the selector.
type Candidate struct {
	ID          string
	Preferences *Preferences
}

// Pair is a selected match. Fallback is set when no pair scored above zero
// and the first eligible pair was taken instead.
type Pair struct {
	A, B     string
	Score    int
	Fallback bool
}

// SelectBestPair picks the highest-scoring pair of pool members that both
// have preferences and are not banned from each other. Ties go to the first
// pair in scan order. When nothing scores above zero it returns the first
// pair that is not banned, preferences or not.
func SelectBestPair(pool []Candidate, banned func(a, b string) bool) (Pair, bool) {
	if len(pool) < 2 {
		return Pair{}, false
	}

	var best Pair
	bestScore := 0
	for i := 0; i < len(pool); i++ {
		a := pool[i]
		if a.Preferences == nil {
			continue
		}
		for j := i + 1; j < len(pool); j++ {
			b := pool[j]
			if b.Preferences == nil || banned(a.ID, b.ID) {
				continue
			}
			if s := Score(*a.Preferences, *b.Preferences); s > bestScore {
				best = Pair{A: a.ID, B: b.ID, Score: s}
				bestScore = s
			}
		}
	}
	if bestScore > 0 {
		return best, true
	}

	for i := 0; i < len(pool); i++ {
		for j := i + 1; j < len(pool); j++ {
			if !banned(pool[i].ID, pool[j].ID) {
				return Pair{A: pool[i].ID, B: pool[j].ID, Fallback: true}, true
			}
		}
	}
	return Pair{}, false
}
