package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"samaquiz-service/internal/app"
	"samaquiz-service/internal/auth"
	"samaquiz-service/internal/config"
	"samaquiz-service/internal/domain"
	"samaquiz-service/internal/infra/amqp"
	"samaquiz-service/internal/infra/memory"
	"samaquiz-service/internal/infra/postgres"
	redisinfra "samaquiz-service/internal/infra/redis"
	"samaquiz-service/internal/realtime"
	transport "samaquiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz session server",
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
	setupLogger(cfg.Log.Level)
	if cfg.Auth.JWTSecret == "" {
		return errors.New("jwt secret not configured")
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var store app.SessionRepository = memory.NewSessionStore()
	var loader memory.QuizLoader
	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg); err != nil {
			return err
		}
		db := postgres.Open(cfg.Postgres.URL)
		defer db.Close()
		store = postgres.NewSessionStore(db)

		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		loader = postgres.NewQuizLoader(pool)
	} else {
		slog.Warn("postgres url not configured, sessions are kept in memory")
		loader, err = staticLoader(cfg.Quiz.SeedPath)
		if err != nil {
			return err
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return err
		}
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisinfra.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	hub := realtime.NewHub()
	lifecycle, err := amqp.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
	if err != nil {
		return err
	}
	defer lifecycle.Close()

	var broker *redisinfra.Broker
	events := app.Publishers{hub, lifecycle}
	if redisClient != nil {
		// Sockets are fed from the Redis channel so every instance sees every event.
		broker = redisinfra.NewBroker(redisClient)
		events = app.Publishers{broker, lifecycle}
	}

	service := app.NewQuizService(store, quizRepo, events, hub)
	verifier := auth.NewVerifier(cfg.Auth.JWTSecret)

	gin.SetMode(gin.ReleaseMode)
	router := transport.NewRouter(service, hub, verifier, transport.RouterOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		WS: transport.WSOptions{
			Conn: realtime.ConnOptions{
				WriteWait: config.TTLDuration(cfg.WS.WriteWait, 10*time.Second),
				PongWait:  config.TTLDuration(cfg.WS.PongWait, 60*time.Second),
			},
			AuthTimeout: config.TTLDuration(cfg.WS.AuthTimeout, 10*time.Second),
			SendBuffer:  cfg.WS.SendBuffer,
		},
	})

	server := newHTTPServer(cfg, finalPort, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting quiz session service", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if broker != nil {
		g.Go(func() error {
			return broker.Run(gctx, hub)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newHTTPServer(cfg config.Config, port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      handler,
		ReadTimeout:  config.TTLDuration(cfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout: config.TTLDuration(cfg.Server.WriteTimeout, 15*time.Second),
	}
}

func staticLoader(seedPath string) (*memory.StaticQuizLoader, error) {
	if seedPath == "" {
		return memory.NewStaticQuizLoader(sampleQuizzes()), nil
	}
	loader, err := memory.LoadStaticQuizzes(seedPath)
	if err != nil {
		return nil, err
	}
	slog.Info("loaded seed quizzes", "path", seedPath)
	return loader, nil
}

// sampleQuizzes is used when neither postgres nor a seed file is configured.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:             "quiz-1",
			UserID:         "host-1",
			Title:          "Warm up",
			QuestionsOrder: []string{"q1"},
			Questions: []domain.Question{
				{
					ID:   "q1",
					Text: "What is 2 + 2?",
					Answers: []domain.Answer{
						{ID: "o1", Text: "3"},
						{ID: "o2", Text: "4", IsCorrect: true, Points: 1},
						{ID: "o3", Text: "5"},
					},
				},
			},
		},
	}
}
