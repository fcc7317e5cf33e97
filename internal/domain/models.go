package domain

// Course is a unit of training content. At most one of the content
// references is authoritative for review gating; video wins over pdf,
// pdf over markdown.
type Course struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Category string `json:"category"`
	VideoURL string `json:"videoUrl,omitempty"`
	PDFURL   string `json:"pdfUrl,omitempty"`
	Markdown string `json:"markdown,omitempty"`
	QuizID   string `json:"quizId,omitempty"`
}

// HasReviewableContent reports whether the course carries content that gates
// its quiz behind a review confirmation.
func (c Course) HasReviewableContent() bool {
	return c.VideoURL != "" || c.PDFURL != "" || c.Markdown != ""
}

// CourseContent is the admin-editable slice of a course. Content fields stay
// mutable even after attempts exist; everything else is frozen then.
type CourseContent struct {
	VideoURL string `json:"videoUrl"`
	PDFURL   string `json:"pdfUrl"`
	Markdown string `json:"markdown"`
}

// Question is a single- or multi-select prompt. Correct holds zero-based
// option indices and must be a subset of the valid indices; an empty set
// means no correct answer is configured and the question never scores.
type Question struct {
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
	Correct []int    `json:"correct"`
}

// Quiz is an ordered question sequence owned by exactly one course.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// AnswerSet maps question index to the selected option indices. A missing
// key is an empty selection.
type AnswerSet map[int][]int

// Badge is a static catalog entry; catalog order defines grant priority.
type Badge struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
}

// LearnerLedger is the per-learner aggregate of quiz performance and
// engagement, created implicitly on first write. Invariants:
// len(CompletedQuizzes) == QuizzesPassed; Badges and TotalTimeSpent only
// ever grow. All mutation goes through the ledger store.
type LearnerLedger struct {
	UserID           string         `json:"userId"`
	Department       string         `json:"department,omitempty"`
	QuizAttempts     int            `json:"quizAttempts"`
	QuizzesPassed    int            `json:"quizzesPassed"`
	CompletedQuizzes []string       `json:"completedQuizzes,omitempty"`
	Scores           map[string]int `json:"scores,omitempty"`
	AverageScore     float64        `json:"averageScore"`
	Badges           []string       `json:"badges,omitempty"`
	TotalTimeSpent   int64          `json:"totalTimeSpent"`
}

// HasCompleted reports whether the learner has ever passed the quiz.
func (l LearnerLedger) HasCompleted(quizID string) bool {
	for _, id := range l.CompletedQuizzes {
		if id == quizID {
			return true
		}
	}
	return false
}

// HasBadge reports whether the learner already holds the badge.
func (l LearnerLedger) HasBadge(badgeID string) bool {
	for _, id := range l.Badges {
		if id == badgeID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so snapshots can be handed to subscribers
// without sharing the maps and slices.
func (l LearnerLedger) Clone() LearnerLedger {
	out := l
	if l.CompletedQuizzes != nil {
		out.CompletedQuizzes = append([]string(nil), l.CompletedQuizzes...)
	}
	if l.Badges != nil {
		out.Badges = append([]string(nil), l.Badges...)
	}
	if l.Scores != nil {
		out.Scores = make(map[string]int, len(l.Scores))
		for k, v := range l.Scores {
			out.Scores[k] = v
		}
	}
	return out
}

// AttemptResult is the per-submission view returned to the client. It is
// shown optimistically; a failed persist never retracts it.
type AttemptResult struct {
	QuizID       string `json:"quizId"`
	Score        int    `json:"score"`
	Passed       bool   `json:"passed"`
	BadgeGranted string `json:"badgeGranted,omitempty"`
}

// DepartmentStat is a rollup row: arithmetic means over the department's
// learners.
type DepartmentStat struct {
	Department     string  `json:"department"`
	Learners       int     `json:"learners"`
	AvgCompletion  float64 `json:"avgCompletion"`
	AvgScore       float64 `json:"avgScore"`
	AvgPerformance float64 `json:"avgPerformance"`
}

// TutorReply is the fixed three-field contract of the text-generation
// service.
type TutorReply struct {
	Summary        string `json:"summary"`
	Recommendation string `json:"recommendation"`
	References     string `json:"references"`
}
