package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"

	"training-ledger-service/internal/app"
	"training-ledger-service/internal/domain"
	pgcatalog "training-ledger-service/internal/infra/postgres"
	pgmigrations "training-ledger-service/internal/infra/postgres/migrations"
	infraredis "training-ledger-service/internal/infra/redis"
)

func TestSubmitAttemptEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedCatalog(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()
	catalog := pgcatalog.NewCatalog(pool)

	badges, err := catalog.LoadBadges(ctx)
	if err != nil {
		t.Fatalf("load badges: %v", err)
	}
	if len(badges) != 2 || badges[0].ID != "bronze" {
		t.Fatalf("unexpected badge catalog: %+v", badges)
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	quizzes := infraredis.NewQuizRepository(redisClient, catalog, 5*time.Minute)
	ledgers := infraredis.NewLedgerStore(redisClient)
	service := app.NewLedgerService(ledgers, catalog, quizzes, badges, app.NewLogNotifier(zap.NewNop()), zap.NewNop())

	// Submitting without the review is refused: the course carries a video.
	sub := app.AttemptSubmission{
		UserID:     "u1",
		Department: "legal",
		CourseID:   "course-1",
		Answers:    domain.AnswerSet{0: {1}},
	}
	if _, err := service.SubmitAttempt(ctx, sub); !errors.Is(err, domain.ErrQuizLocked) {
		t.Fatalf("expected ErrQuizLocked, got %v", err)
	}

	sub.ContentReviewed = true
	result, err := service.SubmitAttempt(ctx, sub)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !result.Passed || result.Score != 100 {
		t.Fatalf("expected passing attempt, got %+v", result)
	}

	if err := ledgers.AddTime(ctx, "u1", 120); err != nil {
		t.Fatalf("addtime: %v", err)
	}

	ledger, err := service.Ledger(ctx, "u1")
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if ledger.QuizzesPassed != 1 || !ledger.HasCompleted("quiz-1") {
		t.Fatalf("pass not recorded: %+v", ledger)
	}
	if ledger.Department != "legal" || ledger.TotalTimeSpent != 120 {
		t.Fatalf("ledger fields wrong: %+v", ledger)
	}

	// Second submit of the same quiz counts the attempt but not the pass.
	if _, err := service.SubmitAttempt(ctx, sub); err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	ledger, _ = service.Ledger(ctx, "u1")
	if ledger.QuizAttempts != 2 || ledger.QuizzesPassed != 1 {
		t.Fatalf("resubmit must not double count: %+v", ledger)
	}

	report, err := app.NewReporter(ledgers, catalog, 3600).Report(ctx)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if len(report.Departments) != 1 || report.Departments[0].Department != "legal" {
		t.Fatalf("unexpected report: %+v", report.Departments)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "training", "POSTGRES_PASSWORD": "trainingpass", "POSTGRES_DB": "trainingdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://training:trainingpass@%s:%s/trainingdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func seedCatalog(t *testing.T, ctx context.Context, dsn string) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	course := domain.Course{
		ID:       "course-1",
		Title:    "Data Handling",
		Category: "security",
		VideoURL: "https://cdn.example.com/data-handling.mp4",
		QuizID:   "quiz-1",
	}
	quiz := domain.Quiz{
		ID:    "quiz-1",
		Title: "Data Handling Basics",
		Questions: []domain.Question{
			{
				Prompt:  "Which channel is approved for customer data?",
				Options: []string{"personal email", "managed share", "chat"},
				Correct: []int{1},
			},
		},
	}

	courseData, err := json.Marshal(course)
	if err != nil {
		t.Fatalf("marshal course: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO courses (id, data) VALUES (?, ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`, course.ID, string(courseData)); err != nil {
		t.Fatalf("insert course: %v", err)
	}

	quizData, err := json.Marshal(quiz)
	if err != nil {
		t.Fatalf("marshal quiz: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO quizzes (id, data) VALUES (?, ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`, quiz.ID, string(quizData)); err != nil {
		t.Fatalf("insert quiz: %v", err)
	}

	for i, b := range []domain.Badge{
		{ID: "bronze", Name: "Bronze"},
		{ID: "silver", Name: "Silver"},
	} {
		if _, err := db.ExecContext(ctx, `INSERT INTO badges (id, name, position) VALUES (?, ?, ?) ON CONFLICT (id) DO NOTHING`, b.ID, b.Name, i); err != nil {
			t.Fatalf("insert badge: %v", err)
		}
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
