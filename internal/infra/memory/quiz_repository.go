package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"samaquiz-service/internal/domain"
)

// QuizLoader fetches quiz content from the store owned by the quiz CRUD service.
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizRepository keeps loaded quizzes in process memory for a jittered TTL.
// Concurrent misses for the same quiz share one loader call.
type QuizRepository struct {
	loader QuizLoader
	ttl    time.Duration
	clock  func() time.Time
	group  singleflight.Group

	mu      sync.Mutex
	rnd     *rand.Rand
	entries map[string]quizEntry
}

type quizEntry struct {
	quiz      domain.Quiz
	expiresAt time.Time
}

func NewQuizRepository(loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		loader:  loader,
		ttl:     ttl,
		clock:   time.Now,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		entries: make(map[string]quizEntry),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := r.cached(quizID); ok {
		return quiz, nil
	}

	result, err, _ := r.group.Do(quizID, func() (interface{}, error) {
		if quiz, ok := r.cached(quizID); ok {
			return quiz, nil
		}
		quiz, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}
		r.mu.Lock()
		r.entries[quizID] = quizEntry{quiz: quiz, expiresAt: r.clock().Add(r.jitteredTTL())}
		r.mu.Unlock()
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (r *QuizRepository) cached(quizID string) (domain.Quiz, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[quizID]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return domain.Quiz{}, false
	}
	return entry.quiz, true
}

// jitteredTTL adds up to 10% to the TTL so entries loaded together do not
// expire together. Callers must hold r.mu.
func (r *QuizRepository) jitteredTTL() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	return r.ttl + time.Duration(r.rnd.Int63n(int64(r.ttl)/10+1))
}

// StaticQuizLoader serves quizzes from a fixed map. It backs the service when
// no Postgres is configured.
type StaticQuizLoader struct {
	quizzes map[string]domain.Quiz
}

func NewStaticQuizLoader(quizzes map[string]domain.Quiz) *StaticQuizLoader {
	return &StaticQuizLoader{quizzes: quizzes}
}

// LoadStaticQuizzes reads a JSON array of quizzes from path.
func LoadStaticQuizzes(path string) (*StaticQuizLoader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var list []domain.Quiz
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode quizzes %s: %w", path, err)
	}
	quizzes := make(map[string]domain.Quiz, len(list))
	for _, quiz := range list {
		quizzes[quiz.ID] = quiz
	}
	return NewStaticQuizLoader(quizzes), nil
}

func (l *StaticQuizLoader) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := l.quizzes[quizID]; ok {
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}
