package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"training-ledger-service/internal/app"
	"training-ledger-service/internal/config"
	"training-ledger-service/internal/domain"
	"training-ledger-service/internal/infra/memory"
	pgcatalog "training-ledger-service/internal/infra/postgres"
	"training-ledger-service/internal/infra/rabbit"
	redisinfra "training-ledger-service/internal/infra/redis"
	"training-ledger-service/internal/logging"
	transport "training-ledger-service/internal/transport/http"
	"training-ledger-service/internal/tutor"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the training ledger server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := logging.New(cfg.Server.Mode, cfg.Log.File)
	defer log.Sync()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	// Catalog: postgres when configured, built-in sample data otherwise.
	var (
		courses    app.CourseRepository
		quizLoader interface {
			LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
		}
		catalog []domain.Badge
	)
	if pool != nil {
		pg := pgcatalog.NewCatalog(pool)
		courses = pg
		quizLoader = pg
		catalog, err = pg.LoadBadges(ctx)
		if err != nil {
			return err
		}
	} else {
		courses = memory.NewCourseRepository(sampleCourses())
		quizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	}
	if len(catalog) == 0 {
		catalog = defaultBadges()
	}

	quizTTL := config.Duration(cfg.Quiz.TTL, 10*time.Minute)
	var quizzes app.QuizRepository
	if redisClient != nil {
		quizzes = redisinfra.NewQuizRepository(redisClient, quizLoader, quizTTL)
	} else {
		quizzes = memory.NewQuizRepository(quizLoader, quizTTL)
	}

	var ledgers app.LedgerStore
	if redisClient != nil {
		ledgers = redisinfra.NewLedgerStore(redisClient)
	} else {
		ledgers = memory.NewLedgerStore()
	}

	var notifier app.Notifier = app.NewLogNotifier(log)
	if cfg.Rabbit.URL != "" {
		queue := cfg.Rabbit.Queue
		if queue == "" {
			queue = "training.events"
		}
		publisher, err := rabbit.NewPublisher(cfg.Rabbit.URL, queue, log)
		if err != nil {
			return err
		}
		defer publisher.Close()
		notifier = publisher
	}

	var tutorSvc tutor.Service = tutor.Disabled{}
	if cfg.Tutor.APIKey != "" {
		tutorSvc, err = tutor.NewOpenAI(cfg.Tutor.APIKey, cfg.Tutor.BaseURL, cfg.Tutor.Model)
		if err != nil {
			return err
		}
	}

	service := app.NewLedgerService(ledgers, courses, quizzes, catalog, notifier, log)
	reporter := app.NewReporter(ledgers, courses, int64(config.Duration(cfg.Report.TargetTime, 10*time.Hour)/time.Second))
	courseService := app.NewCourseService(courses, notifier)

	// Async write failures: already logged at the source, drained here so
	// an operator sees a heartbeat of persistence trouble in one place.
	go func() {
		for failure := range service.Failures() {
			log.Warn("async write failure",
				zap.String("user", failure.UserID),
				zap.String("op", failure.Op),
				zap.Error(failure.Err))
		}
	}()

	flushInterval := config.Duration(cfg.Accountant.Interval, time.Minute)
	wsHandler := transport.NewSessionHandler(service, ledgers, tutorSvc, flushInterval, log)
	adminHandler := transport.NewAdminHandler(reporter, courseService, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	adminHandler.Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting training ledger service", zap.String("port", finalPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleCourses and sampleQuizzes seed the in-memory catalog for demos and
// local development; production runs off postgres.
func sampleCourses() map[string]domain.Course {
	return map[string]domain.Course{
		"course-1": {
			ID:       "course-1",
			Title:    "Data Privacy Basics",
			Category: "privacy",
			VideoURL: "https://training.example.com/privacy-basics.mp4",
			QuizID:   "quiz-1",
		},
		"course-2": {
			ID:       "course-2",
			Title:    "Code of Conduct",
			Category: "conduct",
			Markdown: "# Code of Conduct\nRead carefully before taking the quiz.",
			QuizID:   "quiz-2",
		},
	}
}

func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Data Privacy Basics",
			Questions: []domain.Question{
				{
					Prompt:  "Which of these count as personal data?",
					Options: []string{"Email address", "Weather report", "IP address"},
					Correct: []int{0, 2},
				},
				{
					Prompt:  "When may customer data be shared externally?",
					Options: []string{"Whenever asked", "With a signed agreement", "Never"},
					Correct: []int{1},
				},
			},
		},
		"quiz-2": {
			ID:    "quiz-2",
			Title: "Code of Conduct",
			Questions: []domain.Question{
				{
					Prompt:  "Gifts from vendors must be reported above which value?",
					Options: []string{"$10", "$50", "$500"},
					Correct: []int{1},
				},
			},
		},
	}
}

func defaultBadges() []domain.Badge {
	return []domain.Badge{
		{ID: "bronze", Name: "Bronze Learner", Description: "First badge milestone"},
		{ID: "silver", Name: "Silver Learner", Description: "Second badge milestone"},
		{ID: "gold", Name: "Gold Learner", Description: "Third badge milestone"},
		{ID: "platinum", Name: "Platinum Learner", Description: "Fourth badge milestone"},
	}
}
