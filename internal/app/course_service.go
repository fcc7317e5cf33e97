package app

import (
	"context"

	"training-ledger-service/internal/domain"
)

// CourseService covers the admin content-edit use case. Content fields are
// the only mutable part of a course once attempts exist against its quiz.
type CourseService struct {
	courses  CourseRepository
	notifier Notifier
}

func NewCourseService(courses CourseRepository, notifier Notifier) *CourseService {
	return &CourseService{courses: courses, notifier: notifier}
}

// UpdateContent replaces the course's content references and emits the
// course-updated event so enrolled learners get notified.
func (s *CourseService) UpdateContent(ctx context.Context, courseID string, content domain.CourseContent) (domain.Course, error) {
	course, err := s.courses.UpdateContent(ctx, courseID, content)
	if err != nil {
		return domain.Course{}, err
	}
	s.notifier.CourseUpdated(ctx, courseID, changedFields(content))
	return course, nil
}

func changedFields(c domain.CourseContent) []string {
	var fields []string
	if c.VideoURL != "" {
		fields = append(fields, "video")
	}
	if c.PDFURL != "" {
		fields = append(fields, "pdf")
	}
	if c.Markdown != "" {
		fields = append(fields, "markdown")
	}
	return fields
}
