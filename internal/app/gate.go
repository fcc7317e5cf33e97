package app

// QuizUnlocked decides whether a learner may open a course's quiz. Access is
// granted when there is nothing to review, when the learner has confirmed
// reviewing the content, or when the caller holds an elevated role.
func QuizUnlocked(hasReviewableContent, contentReviewed, privileged bool) bool {
	if privileged {
		return true
	}
	if !hasReviewableContent {
		return true
	}
	return contentReviewed
}
