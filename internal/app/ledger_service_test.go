package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"training-ledger-service/internal/app"
	"training-ledger-service/internal/domain"
	"training-ledger-service/internal/infra/memory"
)

type recordingNotifier struct {
	mu     sync.Mutex
	badges []string
}

func (n *recordingNotifier) BadgeGranted(_ context.Context, _, badgeID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.badges = append(n.badges, badgeID)
}

func (n *recordingNotifier) CourseUpdated(context.Context, string, []string) {}

func (n *recordingNotifier) granted() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.badges...)
}

func testQuiz(id string) domain.Quiz {
	return domain.Quiz{
		ID: id,
		Questions: []domain.Question{
			{Prompt: "pick both", Options: []string{"a", "b", "c"}, Correct: []int{0, 2}},
			{Prompt: "pick one", Options: []string{"a", "b"}, Correct: []int{1}},
		},
	}
}

func newTestService(t *testing.T) (*app.LedgerService, *memory.LedgerStore, *recordingNotifier) {
	t.Helper()
	quizzes := map[string]domain.Quiz{}
	courses := map[string]domain.Course{}
	for _, id := range []string{"1", "2", "3", "4"} {
		quizzes["quiz-"+id] = testQuiz("quiz-" + id)
		courses["course-"+id] = domain.Course{ID: "course-" + id, Title: "Course " + id, QuizID: "quiz-" + id}
	}
	// course-1 carries reviewable content and therefore gates its quiz.
	gated := courses["course-1"]
	gated.VideoURL = "https://example.com/v.mp4"
	courses["course-1"] = gated

	store := memory.NewLedgerStore()
	notifier := &recordingNotifier{}
	service := app.NewLedgerService(
		store,
		memory.NewCourseRepository(courses),
		memory.NewQuizRepository(memory.NewStaticQuizLoader(quizzes), 5*time.Minute),
		testCatalog,
		notifier,
		zap.NewNop(),
	)
	return service, store, notifier
}

func passingAnswers() domain.AnswerSet {
	return domain.AnswerSet{0: {2, 0}, 1: {1}}
}

func TestSubmitAttemptGateBlocksUnreviewed(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := service.SubmitAttempt(ctx, app.AttemptSubmission{
		UserID:   "u1",
		CourseID: "course-1",
		Answers:  passingAnswers(),
	})
	if !errors.Is(err, domain.ErrQuizLocked) {
		t.Fatalf("expected quiz locked, got %v", err)
	}

	// Confirmed review unlocks.
	result, err := service.SubmitAttempt(ctx, app.AttemptSubmission{
		UserID:          "u1",
		CourseID:        "course-1",
		Answers:         passingAnswers(),
		ContentReviewed: true,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Score != 100 || !result.Passed {
		t.Fatalf("expected passing 100, got %+v", result)
	}

	// Privileged callers bypass the gate.
	if _, err := service.SubmitAttempt(ctx, app.AttemptSubmission{
		UserID:     "admin",
		CourseID:   "course-1",
		Answers:    passingAnswers(),
		Privileged: true,
	}); err != nil {
		t.Fatalf("privileged submit: %v", err)
	}
}

func TestSubmitAttemptUpdatesLedger(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	result, err := service.SubmitAttempt(ctx, app.AttemptSubmission{
		UserID: "u1", Department: "legal", CourseID: "course-2", Answers: passingAnswers(),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !result.Passed || result.Score != 100 {
		t.Fatalf("unexpected result %+v", result)
	}

	// Failing retake of the same quiz.
	result, err = service.SubmitAttempt(ctx, app.AttemptSubmission{
		UserID: "u1", CourseID: "course-2", Answers: domain.AnswerSet{0: {1}},
	})
	if err != nil {
		t.Fatalf("retake: %v", err)
	}
	if result.Passed || result.Score != 0 {
		t.Fatalf("expected failing 0, got %+v", result)
	}

	ledger, err := service.Ledger(ctx, "u1")
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if ledger.QuizAttempts != 2 || ledger.QuizzesPassed != 1 {
		t.Fatalf("expected 2 attempts / 1 pass, got %d/%d", ledger.QuizAttempts, ledger.QuizzesPassed)
	}
	if ledger.AverageScore != 50 {
		t.Fatalf("expected average 50, got %f", ledger.AverageScore)
	}
	if ledger.Department != "legal" {
		t.Fatalf("department not stamped: %+v", ledger)
	}
	if ledger.Scores["quiz-2"] != 0 {
		t.Fatalf("latest score must win, got %d", ledger.Scores["quiz-2"])
	}
}

func TestSubmitAttemptIdenticalResubmissionScoresIdentically(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()
	sub := app.AttemptSubmission{UserID: "u1", CourseID: "course-2", Answers: passingAnswers()}

	first, err := service.SubmitAttempt(ctx, sub)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	second, err := service.SubmitAttempt(ctx, sub)
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if first.Score != second.Score {
		t.Fatalf("same answers scored %d then %d", first.Score, second.Score)
	}

	ledger, _ := service.Ledger(ctx, "u1")
	if ledger.QuizAttempts != 2 {
		t.Fatalf("both submissions count as attempts, got %d", ledger.QuizAttempts)
	}
	if ledger.QuizzesPassed != 1 {
		t.Fatalf("pass credited at most once, got %d", ledger.QuizzesPassed)
	}
}

func TestSubmitAttemptBadgeOnThirdDistinctPass(t *testing.T) {
	service, _, notifier := newTestService(t)
	ctx := context.Background()

	var last domain.AttemptResult
	for _, course := range []string{"course-2", "course-3", "course-4"} {
		var err error
		last, err = service.SubmitAttempt(ctx, app.AttemptSubmission{
			UserID: "u1", CourseID: course, Answers: passingAnswers(),
		})
		if err != nil {
			t.Fatalf("submit %s: %v", course, err)
		}
	}
	if last.BadgeGranted != "bronze" {
		t.Fatalf("expected bronze on third pass, got %q", last.BadgeGranted)
	}
	if granted := notifier.granted(); len(granted) != 1 || granted[0] != "bronze" {
		t.Fatalf("expected one badge event, got %v", granted)
	}
}

func TestSubmitAttemptConcurrentQuizzesNoLostUpdate(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, course := range []string{"course-2", "course-3"} {
		wg.Add(1)
		go func(course string) {
			defer wg.Done()
			if _, err := service.SubmitAttempt(ctx, app.AttemptSubmission{
				UserID: "u1", CourseID: course, Answers: passingAnswers(),
			}); err != nil {
				t.Errorf("submit %s: %v", course, err)
			}
		}(course)
	}
	wg.Wait()

	ledger, err := service.Ledger(ctx, "u1")
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if ledger.QuizAttempts != 2 || ledger.QuizzesPassed != 2 {
		t.Fatalf("lost update: attempts=%d passes=%d", ledger.QuizAttempts, ledger.QuizzesPassed)
	}
	if ledger.AverageScore != 100 {
		t.Fatalf("expected average 100, got %f", ledger.AverageScore)
	}
	if len(ledger.CompletedQuizzes) != ledger.QuizzesPassed {
		t.Fatalf("invariant broken: %v vs %d", ledger.CompletedQuizzes, ledger.QuizzesPassed)
	}
}

func TestWatchLedgerReceivesUpdates(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	ch, cancel, err := service.WatchLedger(ctx, "u1")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer cancel()

	<-ch // initial snapshot

	if _, err := service.SubmitAttempt(ctx, app.AttemptSubmission{
		UserID: "u1", CourseID: "course-2", Answers: passingAnswers(),
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	select {
	case update := <-ch:
		if update.QuizAttempts != 1 {
			t.Fatalf("expected 1 attempt in update, got %+v", update)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no ledger update received")
	}
}

func TestSubmitAttemptUnknownCourse(t *testing.T) {
	service, _, _ := newTestService(t)
	_, err := service.SubmitAttempt(context.Background(), app.AttemptSubmission{
		UserID: "u1", CourseID: "course-missing", Answers: passingAnswers(),
	})
	if !errors.Is(err, domain.ErrCourseNotFound) {
		t.Fatalf("expected course not found, got %v", err)
	}
}
