package app

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"training-ledger-service/internal/domain"
)

// LedgerStore is the single mutation surface for learner ledgers.
// Implementations must make Update linearizable per learner; no ordering is
// required across learners.
type LedgerStore interface {
	// Get returns the learner's ledger, or a zero-valued one for unknown
	// users (ledgers materialize on first write).
	Get(ctx context.Context, userID string) (domain.LearnerLedger, error)
	// Update runs fn inside an atomic read-modify-write of the learner's
	// document. When a concurrent write wins the race the store re-reads
	// and re-runs fn; once the retry budget is spent it returns
	// domain.ErrConflict. Partial application is never observable.
	Update(ctx context.Context, userID string, fn func(domain.LearnerLedger) (domain.LearnerLedger, error)) (domain.LearnerLedger, error)
	// AddTime issues an additive increment to totalTimeSpent. Commutative,
	// so concurrent flushes from several sessions need no CAS loop.
	AddTime(ctx context.Context, userID string, seconds int64) error
	// Watch streams ledger snapshots after every change. The cancel func
	// must be called to release the subscription.
	Watch(ctx context.Context, userID string) (<-chan domain.LearnerLedger, func(), error)
	// List returns all ledgers for reporting reads.
	List(ctx context.Context) ([]domain.LearnerLedger, error)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// CourseRepository loads and edits the course catalog.
type CourseRepository interface {
	GetCourse(ctx context.Context, courseID string) (domain.Course, error)
	UpdateContent(ctx context.Context, courseID string, content domain.CourseContent) (domain.Course, error)
	CourseCount(ctx context.Context) (int, error)
}

// Notifier publishes ledger side effects. Delivery is an external concern;
// publishing is fire-and-forget.
type Notifier interface {
	BadgeGranted(ctx context.Context, userID, badgeID string)
	CourseUpdated(ctx context.Context, courseID string, fields []string)
}

// WriteFailure is the async report for a persist that failed after the
// result was already shown to the learner.
type WriteFailure struct {
	UserID string
	Op     string
	Err    error
}

// AttemptSubmission carries one graded-quiz submission from a session.
type AttemptSubmission struct {
	UserID          string
	Department      string
	CourseID        string
	Answers         domain.AnswerSet
	ContentReviewed bool
	Privileged      bool
}

// LedgerService wires the content gate, grader, badge policy and ledger
// store into the submit use case.
type LedgerService struct {
	ledgers  LedgerStore
	courses  CourseRepository
	quizzes  QuizRepository
	catalog  []domain.Badge
	notifier Notifier
	log      *zap.Logger
	failures chan WriteFailure
}

func NewLedgerService(ledgers LedgerStore, courses CourseRepository, quizzes QuizRepository, catalog []domain.Badge, notifier Notifier, log *zap.Logger) *LedgerService {
	return &LedgerService{
		ledgers:  ledgers,
		courses:  courses,
		quizzes:  quizzes,
		catalog:  catalog,
		notifier: notifier,
		log:      log,
		failures: make(chan WriteFailure, 64),
	}
}

// SubmitAttempt gates, grades and records one submission. Gate refusals and
// malformed answers fail fast. Once a score exists it is returned even when
// the ledger write fails: the client has already seen the result, and the
// failure travels the async channel instead of unwinding it.
func (s *LedgerService) SubmitAttempt(ctx context.Context, sub AttemptSubmission) (domain.AttemptResult, error) {
	course, err := s.courses.GetCourse(ctx, sub.CourseID)
	if err != nil {
		return domain.AttemptResult{}, err
	}
	if course.QuizID == "" {
		return domain.AttemptResult{}, domain.ErrQuizNotFound
	}
	if !QuizUnlocked(course.HasReviewableContent(), sub.ContentReviewed, sub.Privileged) {
		return domain.AttemptResult{}, domain.ErrQuizLocked
	}

	quiz, err := s.quizzes.GetQuiz(ctx, course.QuizID)
	if err != nil {
		return domain.AttemptResult{}, err
	}
	score, err := Grade(quiz, sub.Answers)
	if err != nil {
		return domain.AttemptResult{}, err
	}

	result := domain.AttemptResult{QuizID: quiz.ID, Score: score, Passed: score >= PassThreshold}

	granted := ""
	_, err = s.ledgers.Update(ctx, sub.UserID, func(l domain.LearnerLedger) (domain.LearnerLedger, error) {
		if l.UserID == "" {
			l.UserID = sub.UserID
		}
		if l.Department == "" {
			l.Department = sub.Department
		}
		next, g := ApplyAttempt(l, quiz.ID, score, s.catalog)
		granted = g
		return next, nil
	})
	if err != nil {
		s.reportFailure(sub.UserID, "applyAttempt", err)
		return result, nil
	}

	if granted != "" {
		result.BadgeGranted = granted
		s.notifier.BadgeGranted(ctx, sub.UserID, granted)
	}
	return result, nil
}

// Ledger returns the current ledger snapshot for a learner.
func (s *LedgerService) Ledger(ctx context.Context, userID string) (domain.LearnerLedger, error) {
	return s.ledgers.Get(ctx, userID)
}

// WatchLedger streams ledger snapshots after every change.
func (s *LedgerService) WatchLedger(ctx context.Context, userID string) (<-chan domain.LearnerLedger, func(), error) {
	return s.ledgers.Watch(ctx, userID)
}

// Course resolves a course for session setup (gate inputs, quiz id).
func (s *LedgerService) Course(ctx context.Context, courseID string) (domain.Course, error) {
	return s.courses.GetCourse(ctx, courseID)
}

// Failures exposes the async write-failure channel. The transport layer
// drains it and decides whether to surface, log, or retry.
func (s *LedgerService) Failures() <-chan WriteFailure {
	return s.failures
}

// FailuresSink is handed to per-session time accountants so their write
// failures land on the same channel.
func (s *LedgerService) FailuresSink() chan<- WriteFailure {
	return s.failures
}

func (s *LedgerService) reportFailure(userID, op string, err error) {
	if errors.Is(err, domain.ErrPermissionDenied) {
		s.log.Error("ledger write refused", zap.String("user", userID), zap.String("op", op), zap.Error(err))
	} else {
		s.log.Warn("ledger write failed", zap.String("user", userID), zap.String("op", op), zap.Error(err))
	}
	select {
	case s.failures <- WriteFailure{UserID: userID, Op: op, Err: err}:
	default:
		// Channel full: the failure is already logged, drop the report.
	}
}
