package app_test

import (
	"testing"

	"training-ledger-service/internal/app"
	"training-ledger-service/internal/domain"
)

func threeQuestionQuiz() domain.Quiz {
	return domain.Quiz{
		ID: "quiz-1",
		Questions: []domain.Question{
			{Prompt: "a", Options: []string{"x", "y", "z"}, Correct: []int{2}},
			{Prompt: "b", Options: []string{"x", "y", "z"}, Correct: []int{0, 1}},
			{Prompt: "c", Options: []string{"x", "y"}, Correct: []int{1}},
		},
	}
}

func TestGradeAllCorrect(t *testing.T) {
	score, err := app.Grade(threeQuestionQuiz(), domain.AnswerSet{
		0: {2},
		1: {1, 0}, // order must not matter
		2: {1},
	})
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if score != 100 {
		t.Fatalf("expected 100, got %d", score)
	}
}

func TestGradeRoundsTwoOfThree(t *testing.T) {
	score, err := app.Grade(threeQuestionQuiz(), domain.AnswerSet{
		0: {2},
		1: {0, 1},
		2: {0},
	})
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if score != 67 {
		t.Fatalf("expected round(200/3)=67, got %d", score)
	}
	if score < app.PassThreshold {
		t.Fatalf("67 should clear the %d threshold", app.PassThreshold)
	}
}

func TestGradeSingleQuestionPassAndFail(t *testing.T) {
	quiz := domain.Quiz{
		ID:        "quiz-1",
		Questions: []domain.Question{{Prompt: "a", Options: []string{"x", "y", "z"}, Correct: []int{2}}},
	}

	score, err := app.Grade(quiz, domain.AnswerSet{0: {2}})
	if err != nil || score != 100 {
		t.Fatalf("expected 100, got %d (%v)", score, err)
	}
	score, err = app.Grade(quiz, domain.AnswerSet{0: {0}})
	if err != nil || score != 0 {
		t.Fatalf("expected 0, got %d (%v)", score, err)
	}
}

func TestGradePartialSelectionIsIncorrect(t *testing.T) {
	// Selecting a strict subset of the correct set earns nothing.
	score, err := app.Grade(threeQuestionQuiz(), domain.AnswerSet{1: {0}})
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if score != 0 {
		t.Fatalf("expected 0 for subset match, got %d", score)
	}
}

func TestGradeUnansweredMatchesEmptyCorrectSet(t *testing.T) {
	quiz := domain.Quiz{
		ID: "quiz-1",
		Questions: []domain.Question{
			{Prompt: "a", Options: []string{"x", "y"}, Correct: nil}, // unconfigured
			{Prompt: "b", Options: []string{"x", "y"}, Correct: []int{0}},
		},
	}
	// Unconfigured questions never score, even when left blank.
	score, err := app.Grade(quiz, domain.AnswerSet{1: {0}})
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if score != 100 {
		t.Fatalf("blank answer should match empty correct set, got %d", score)
	}
	score, _ = app.Grade(quiz, domain.AnswerSet{0: {0}, 1: {0}})
	if score != 50 {
		t.Fatalf("selecting anything on an unconfigured question must not score, got %d", score)
	}
}

func TestGradeEmptyQuizIsZero(t *testing.T) {
	score, err := app.Grade(domain.Quiz{ID: "empty"}, nil)
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if score != 0 {
		t.Fatalf("expected 0 for empty quiz, got %d", score)
	}
}

func TestGradeDeterministic(t *testing.T) {
	answers := domain.AnswerSet{0: {2}, 1: {1, 0}}
	first, err := app.Grade(threeQuestionQuiz(), answers)
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := app.Grade(threeQuestionQuiz(), answers)
		if err != nil || again != first {
			t.Fatalf("run %d: expected %d, got %d (%v)", i, first, again, err)
		}
	}
	if first < 0 || first > 100 {
		t.Fatalf("score out of range: %d", first)
	}
}

func TestGradeRejectsMalformedInput(t *testing.T) {
	quiz := threeQuestionQuiz()

	if _, err := app.Grade(quiz, domain.AnswerSet{5: {0}}); !domain.IsValidation(err) {
		t.Fatalf("expected validation error for question index, got %v", err)
	}
	if _, err := app.Grade(quiz, domain.AnswerSet{0: {9}}); !domain.IsValidation(err) {
		t.Fatalf("expected validation error for option index, got %v", err)
	}
	if _, err := app.Grade(quiz, domain.AnswerSet{0: {-1}}); !domain.IsValidation(err) {
		t.Fatalf("expected validation error for negative option, got %v", err)
	}
	if _, err := app.Grade(quiz, domain.AnswerSet{1: {0, 0}}); !domain.IsValidation(err) {
		t.Fatalf("expected validation error for duplicate option, got %v", err)
	}
}
