package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"samaquiz-service/internal/domain"
)

// QuizLoader reads quiz content written by the quiz CRUD service. The quiz
// body is a JSONB document; ownership lives in its own column.
type QuizLoader struct {
	pool *pgxpool.Pool
}

func NewQuizLoader(pool *pgxpool.Pool) *QuizLoader {
	return &QuizLoader{pool: pool}
}

func (l *QuizLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var (
		userID string
		raw    []byte
	)
	err := l.pool.QueryRow(ctx, `SELECT user_id, data FROM quizzes WHERE id=$1`, quizID).Scan(&userID, &raw)
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
	quiz.ID = quizID
	quiz.UserID = userID
	if len(quiz.QuestionsOrder) == 0 {
		for _, question := range quiz.Questions {
			quiz.QuestionsOrder = append(quiz.QuestionsOrder, question.ID)
		}
	}
	return quiz, nil
}
