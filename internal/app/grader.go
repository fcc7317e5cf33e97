package app

import (
	"fmt"
	"math"

	"training-ledger-service/internal/domain"
)

// PassThreshold is the minimum percent score that counts as a pass.
const PassThreshold = 60

// Grade scores a submitted answer set against the quiz's answer key. A
// question is correct iff the submitted option-index set equals the
// configured correct set exactly, order-independent; an absent answer is an
// empty selection and matches only an empty correct set. The score is
// round(100*correct/total), or 0 for a quiz with no questions.
//
// Deterministic and side-effect free, so a submission retried after a write
// failure grades identically.
func Grade(quiz domain.Quiz, answers domain.AnswerSet) (int, error) {
	if err := validateAnswers(quiz, answers); err != nil {
		return 0, err
	}
	if len(quiz.Questions) == 0 {
		return 0, nil
	}
	correct := 0
	for i, q := range quiz.Questions {
		if sameIndexSet(answers[i], q.Correct) {
			correct++
		}
	}
	return int(math.Round(100 * float64(correct) / float64(len(quiz.Questions)))), nil
}

// validateAnswers rejects out-of-range and duplicated indices before any
// scoring happens; malformed input is never silently coerced.
func validateAnswers(quiz domain.Quiz, answers domain.AnswerSet) error {
	for qi, selected := range answers {
		if qi < 0 || qi >= len(quiz.Questions) {
			return &domain.ValidationError{Field: "question", Reason: fmt.Sprintf("index %d out of range", qi)}
		}
		seen := make(map[int]struct{}, len(selected))
		for _, oi := range selected {
			if oi < 0 || oi >= len(quiz.Questions[qi].Options) {
				return &domain.ValidationError{Field: "option", Reason: fmt.Sprintf("index %d out of range for question %d", oi, qi)}
			}
			if _, dup := seen[oi]; dup {
				return &domain.ValidationError{Field: "option", Reason: fmt.Sprintf("index %d selected twice for question %d", oi, qi)}
			}
			seen[oi] = struct{}{}
		}
	}
	return nil
}

func sameIndexSet(submitted, correct []int) bool {
	if len(submitted) != len(correct) {
		return false
	}
	set := make(map[int]struct{}, len(correct))
	for _, i := range correct {
		set[i] = struct{}{}
	}
	for _, i := range submitted {
		if _, ok := set[i]; !ok {
			return false
		}
	}
	return true
}
