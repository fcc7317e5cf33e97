package app

import "training-ledger-service/internal/domain"

// badgeInterval is the number of distinct quiz passes between badge grants.
const badgeInterval = 3

// NextBadge picks the badge due after the learner's distinct pass count
// reached passedCount. A badge is due on every badgeInterval-th pass; the
// first catalog badge not already held wins, catalog order being priority.
// Returns false when no badge is due or the catalog is exhausted.
func NextBadge(passedCount int, held []string, catalog []domain.Badge) (string, bool) {
	if passedCount <= 0 || passedCount%badgeInterval != 0 {
		return "", false
	}
	heldSet := make(map[string]struct{}, len(held))
	for _, id := range held {
		heldSet[id] = struct{}{}
	}
	for _, b := range catalog {
		if _, ok := heldSet[b.ID]; !ok {
			return b.ID, true
		}
	}
	return "", false
}
