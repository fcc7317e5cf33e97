package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"training-ledger-service/internal/domain"
)

// Catalog serves course, quiz and badge content from Postgres JSONB tables.
// Courses and quizzes are stored as whole documents; badges carry a
// position column because catalog order is grant priority.
type Catalog struct {
	pool *pgxpool.Pool
}

func NewCatalog(pool *pgxpool.Pool) *Catalog {
	return &Catalog{pool: pool}
}

func (c *Catalog) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var raw []byte
	err := c.pool.QueryRow(ctx, `SELECT data FROM quizzes WHERE id=$1`, quizID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal quiz: %w", err)
	}
	return quiz, nil
}

func (c *Catalog) GetCourse(ctx context.Context, courseID string) (domain.Course, error) {
	var raw []byte
	err := c.pool.QueryRow(ctx, `SELECT data FROM courses WHERE id=$1`, courseID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Course{}, domain.ErrCourseNotFound
	}
	if err != nil {
		return domain.Course{}, fmt.Errorf("load course: %w", err)
	}
	var course domain.Course
	if err := json.Unmarshal(raw, &course); err != nil {
		return domain.Course{}, fmt.Errorf("unmarshal course: %w", err)
	}
	return course, nil
}

func (c *Catalog) UpdateContent(ctx context.Context, courseID string, content domain.CourseContent) (domain.Course, error) {
	course, err := c.GetCourse(ctx, courseID)
	if err != nil {
		return domain.Course{}, err
	}
	course.VideoURL = content.VideoURL
	course.PDFURL = content.PDFURL
	course.Markdown = content.Markdown

	raw, err := json.Marshal(course)
	if err != nil {
		return domain.Course{}, err
	}
	if _, err := c.pool.Exec(ctx, `UPDATE courses SET data=$2 WHERE id=$1`, courseID, raw); err != nil {
		return domain.Course{}, fmt.Errorf("update course: %w", err)
	}
	return course, nil
}

func (c *Catalog) CourseCount(ctx context.Context) (int, error) {
	var count int
	if err := c.pool.QueryRow(ctx, `SELECT count(*) FROM courses`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count courses: %w", err)
	}
	return count, nil
}

// LoadBadges returns the full badge catalog in priority order. Called once
// at process start; the catalog is immutable afterwards.
func (c *Catalog) LoadBadges(ctx context.Context) ([]domain.Badge, error) {
	rows, err := c.pool.Query(ctx, `SELECT id, name, description, icon FROM badges ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("load badges: %w", err)
	}
	defer rows.Close()

	var catalog []domain.Badge
	for rows.Next() {
		var b domain.Badge
		if err := rows.Scan(&b.ID, &b.Name, &b.Description, &b.Icon); err != nil {
			return nil, fmt.Errorf("scan badge: %w", err)
		}
		catalog = append(catalog, b)
	}
	return catalog, rows.Err()
}
