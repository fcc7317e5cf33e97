package memory

import (
	"context"
	"sync"

	"training-ledger-service/internal/domain"
)

// CourseRepository is an in-memory implementation of app.CourseRepository.
type CourseRepository struct {
	mu      sync.RWMutex
	courses map[string]domain.Course
}

func NewCourseRepository(courses map[string]domain.Course) *CourseRepository {
	if courses == nil {
		courses = make(map[string]domain.Course)
	}
	return &CourseRepository{courses: courses}
}

func (r *CourseRepository) GetCourse(_ context.Context, courseID string) (domain.Course, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if course, ok := r.courses[courseID]; ok {
		return course, nil
	}
	return domain.Course{}, domain.ErrCourseNotFound
}

func (r *CourseRepository) UpdateContent(_ context.Context, courseID string, content domain.CourseContent) (domain.Course, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	course, ok := r.courses[courseID]
	if !ok {
		return domain.Course{}, domain.ErrCourseNotFound
	}
	course.VideoURL = content.VideoURL
	course.PDFURL = content.PDFURL
	course.Markdown = content.Markdown
	r.courses[courseID] = course
	return course, nil
}

func (r *CourseRepository) CourseCount(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.courses), nil
}
