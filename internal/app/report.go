package app

import (
	"context"
	"sort"

	"training-ledger-service/internal/domain"
)

// Weights of the composite performance score. Engagement dominates by
// design of the training program; completion and raw scores follow.
const (
	weightCompletion = 0.30
	weightScore      = 0.25
	weightEngagement = 0.45
)

// unassignedDepartment groups learners whose profile carries no department.
const unassignedDepartment = "unassigned"

// Rollup aggregates per-learner ledgers into department statistics.
// Per learner: completion percent over the course catalog (0 when the
// catalog is empty), and a weighted performance score whose engagement term
// is time spent capped at the target budget. Department rows are arithmetic
// means over members; departments without members are omitted, not zeroed.
// Output is ordered by department name.
func Rollup(ledgers []domain.LearnerLedger, totalCourseCount int, targetTimeSeconds int64) []domain.DepartmentStat {
	type acc struct {
		learners    int
		completion  float64
		score       float64
		performance float64
	}
	byDept := make(map[string]*acc)

	for _, l := range ledgers {
		completion := 0.0
		if totalCourseCount > 0 {
			completion = 100 * float64(l.QuizzesPassed) / float64(totalCourseCount)
		}
		engagement := 0.0
		if targetTimeSeconds > 0 {
			engagement = 100 * float64(l.TotalTimeSpent) / float64(targetTimeSeconds)
			if engagement > 100 {
				engagement = 100
			}
		}
		performance := weightCompletion*completion + weightScore*l.AverageScore + weightEngagement*engagement

		dept := l.Department
		if dept == "" {
			dept = unassignedDepartment
		}
		a, ok := byDept[dept]
		if !ok {
			a = &acc{}
			byDept[dept] = a
		}
		a.learners++
		a.completion += completion
		a.score += l.AverageScore
		a.performance += performance
	}

	stats := make([]domain.DepartmentStat, 0, len(byDept))
	for dept, a := range byDept {
		n := float64(a.learners)
		stats = append(stats, domain.DepartmentStat{
			Department:     dept,
			Learners:       a.learners,
			AvgCompletion:  a.completion / n,
			AvgScore:       a.score / n,
			AvgPerformance: a.performance / n,
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Department < stats[j].Department })
	return stats
}

// Report is the admin dashboard payload: per-department rows plus the
// organization-wide mean.
type Report struct {
	Departments  []domain.DepartmentStat `json:"departments"`
	Organization domain.DepartmentStat   `json:"organization"`
}

// Reporter builds rollups from the live ledger and course stores.
type Reporter struct {
	ledgers           LedgerStore
	courses           CourseRepository
	targetTimeSeconds int64
}

func NewReporter(ledgers LedgerStore, courses CourseRepository, targetTimeSeconds int64) *Reporter {
	return &Reporter{ledgers: ledgers, courses: courses, targetTimeSeconds: targetTimeSeconds}
}

// Report reads every ledger and rolls it up. Read-only; it never writes
// through the mutation surface.
func (r *Reporter) Report(ctx context.Context) (Report, error) {
	ledgers, err := r.ledgers.List(ctx)
	if err != nil {
		return Report{}, err
	}
	total, err := r.courses.CourseCount(ctx)
	if err != nil {
		return Report{}, err
	}

	stats := Rollup(ledgers, total, r.targetTimeSeconds)

	org := domain.DepartmentStat{Department: "organization"}
	for _, s := range stats {
		org.Learners += s.Learners
		org.AvgCompletion += s.AvgCompletion * float64(s.Learners)
		org.AvgScore += s.AvgScore * float64(s.Learners)
		org.AvgPerformance += s.AvgPerformance * float64(s.Learners)
	}
	if org.Learners > 0 {
		n := float64(org.Learners)
		org.AvgCompletion /= n
		org.AvgScore /= n
		org.AvgPerformance /= n
	}
	return Report{Departments: stats, Organization: org}, nil
}
