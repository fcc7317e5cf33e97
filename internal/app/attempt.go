package app

import "training-ledger-service/internal/domain"

// ApplyAttempt returns the ledger after recording one graded attempt, plus
// the badge granted by it, if any. Update order:
//
//  1. attempt count increments;
//  2. the running mean folds the new score in, weighted by the pre-update
//     attempt count (every attempt counts, retakes and failures included);
//  3. the per-quiz score is overwritten, last write wins;
//  4. a passing score credits QuizzesPassed and CompletedQuizzes once per
//     quiz; retaking an already-passed quiz earns no second credit;
//  5. the badge policy runs only when step 4 advanced the pass count.
//
// Pure over its inputs, so a store that loses a write race can re-read the
// ledger and re-run the whole transition instead of re-applying a delta.
func ApplyAttempt(ledger domain.LearnerLedger, quizID string, score int, catalog []domain.Badge) (domain.LearnerLedger, string) {
	next := ledger.Clone()

	prevAttempts := next.QuizAttempts
	next.QuizAttempts = prevAttempts + 1
	next.AverageScore = (next.AverageScore*float64(prevAttempts) + float64(score)) / float64(next.QuizAttempts)

	if next.Scores == nil {
		next.Scores = make(map[string]int, 1)
	}
	next.Scores[quizID] = score

	granted := ""
	if score >= PassThreshold && !next.HasCompleted(quizID) {
		next.QuizzesPassed++
		next.CompletedQuizzes = append(next.CompletedQuizzes, quizID)
		if id, ok := NextBadge(next.QuizzesPassed, next.Badges, catalog); ok {
			next.Badges = append(next.Badges, id)
			granted = id
		}
	}
	return next, granted
}
