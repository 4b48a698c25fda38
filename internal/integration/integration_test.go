package integration

import (
	"context"
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
	"samaquiz-service/internal/app"
	"samaquiz-service/internal/domain"
	"samaquiz-service/internal/infra/postgres"
	infraredis "samaquiz-service/internal/infra/redis"
	"samaquiz-service/internal/realtime"
)

func TestQuizSessionEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := postgres.Open(pgURL)
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	seedQuiz(t, ctx, db, sampleQuiz())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	hub := realtime.NewHub()
	broker := infraredis.NewBroker(redisClient)
	sub, err := broker.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	consumeCtx, stopConsume := context.WithCancel(ctx)
	defer stopConsume()
	go broker.Consume(consumeCtx, sub, hub)
	defer sub.Close()

	quizRepo := infraredis.NewQuizRepository(redisClient, postgres.NewQuizLoader(pool), 5*time.Minute)
	service := app.NewQuizService(postgres.NewSessionStore(db), quizRepo, broker, hub)
	owner := domain.Requester{UserID: "host-1", Role: domain.RoleUser}

	session, err := service.CreateSession(ctx, "quiz-1", app.CreateSessionInput{Code: "E2E", HostName: "Host"}, owner)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := service.CreateSession(ctx, "quiz-1", app.CreateSessionInput{Code: "e2e"}, owner); !domain.IsCode(err, domain.CodeQuizSessionCode) {
		t.Fatalf("expected code conflict from postgres, got %v", err)
	}

	host := realtime.NewClient(session.ID, 32)
	hub.Attach(host, realtime.RoleHost, "", session)
	defer hub.Unregister(host)
	expectMessage(t, host, "Ready")

	alice, err := service.Join(ctx, session.ID, app.JoinInput{Name: "Alice"}, domain.Requester{})
	if err != nil {
		t.Fatalf("join alice: %v", err)
	}
	bob, err := service.Join(ctx, session.ID, app.JoinInput{Name: "Bob"}, domain.Requester{})
	if err != nil {
		t.Fatalf("join bob: %v", err)
	}
	expectMessage(t, host, "Joined")
	expectMessage(t, host, "Joined")

	active := domain.StatusActive
	if _, err := service.UpdateSession(ctx, session.ID, app.SessionPatch{Status: &active}, owner); err != nil {
		t.Fatalf("activate: %v", err)
	}
	expectMessage(t, host, "QuizStart")

	if _, err := service.SubmitResponse(ctx, app.ResponseInput{ParticipantID: alice.ID, QuestionID: "q1", AnswerID: "o1"}); err != nil {
		t.Fatalf("alice answer: %v", err)
	}
	result, err := service.SubmitResponse(ctx, app.ResponseInput{ParticipantID: bob.ID, QuestionID: "q1", AnswerID: "o2"})
	if err != nil {
		t.Fatalf("bob answer: %v", err)
	}
	if !result.IsCorrect || result.QuestionResponseCount != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if _, err := service.SubmitResponse(ctx, app.ResponseInput{ParticipantID: bob.ID, QuestionID: "q1", AnswerID: "o1"}); !domain.IsCode(err, domain.CodeDuplicateResponse) {
		t.Fatalf("expected duplicate response from postgres, got %v", err)
	}
	expectMessage(t, host, "QuizResponse")
	expectMessage(t, host, "QuizResponse")

	leaders, err := service.Leaders(ctx, session.ID, owner)
	if err != nil {
		t.Fatalf("leaders: %v", err)
	}
	if len(leaders) != 2 || leaders[0].ParticipantID != bob.ID || leaders[0].Points != 2 || leaders[1].Points != 0 {
		t.Fatalf("expected bob leading with 2 points, got %+v", leaders)
	}

	complete := domain.StatusComplete
	final, err := service.UpdateSession(ctx, session.ID, app.SessionPatch{Status: &complete}, owner)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	expectMessage(t, host, "QuizEnd")

	stored, err := service.Session(ctx, session.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.Status != domain.StatusComplete || stored.Version != final.Version || stored.EndTime == nil {
		t.Fatalf("unexpected stored session: %+v", stored)
	}

	store := postgres.NewSessionStore(db)
	stale := stored
	stale.HostName = "Someone"
	if err := store.UpdateSession(ctx, stale, stored.Version-1); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
}

func expectMessage(t *testing.T, c *realtime.Client, want string) {
	t.Helper()
	select {
	case payload := <-c.Messages():
		var msg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(payload, &msg); err != nil {
			t.Fatalf("decode %s: %v", payload, err)
		}
		if msg.Type != want {
			t.Fatalf("expected %s, got %s", want, payload)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", want)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
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
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
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

func seedQuiz(t *testing.T, ctx context.Context, db *bun.DB, quiz domain.Quiz) {
	t.Helper()
	data, err := json.Marshal(quiz)
	if err != nil {
		t.Fatalf("marshal quiz: %v", err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO quizzes (id, user_id, data) VALUES (?, ?, ?::jsonb) ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data`,
		quiz.ID, quiz.UserID, string(data)); err != nil {
		t.Fatalf("insert quiz: %v", err)
	}
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:             "quiz-1",
		UserID:         "host-1",
		Title:          "Arithmetic",
		QuestionsOrder: []string{"q1"},
		Questions: []domain.Question{
			{
				ID:   "q1",
				Text: "What is 2 + 2?",
				Answers: []domain.Answer{
					{ID: "o1", Text: "3"},
					{ID: "o2", Text: "4", IsCorrect: true, Points: 2},
					{ID: "o3", Text: "5"},
				},
			},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
