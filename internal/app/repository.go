package app

import (
	"context"
	"errors"

	"samaquiz-service/internal/domain"
)

// SessionRepository abstracts durable storage of sessions, participants and responses.
type SessionRepository interface {
	CreateSession(ctx context.Context, session domain.QuizSession) error
	GetSession(ctx context.Context, id string) (domain.QuizSession, error)
	GetSessionByCode(ctx context.Context, code string) (domain.QuizSession, error)
	// UpdateSession stores session if the stored version still equals
	// expectedVersion, otherwise it returns domain.ErrVersionConflict.
	UpdateSession(ctx context.Context, session domain.QuizSession, expectedVersion int64) error

	CreateParticipant(ctx context.Context, participant domain.Participant) error
	GetParticipant(ctx context.Context, id string) (domain.Participant, error)
	ListParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error)
	CountParticipants(ctx context.Context, sessionID string) (int, error)

	// CreateResponse returns domain.ErrDuplicateResponse when the participant
	// already answered the question.
	CreateResponse(ctx context.Context, response domain.QuizResponse) error
	CountResponses(ctx context.Context, sessionID, questionID string) (int, error)
	Leaders(ctx context.Context, sessionID string) ([]domain.LeaderEntry, error)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// EventPublisher receives session events after they were persisted.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.SessionEvent) error
}

// Presence reports live websocket participants for a session.
type Presence interface {
	CountParticipants(sessionID string) int
}

// Publishers fans an event out to several publishers. A failing publisher
// does not stop the others.
type Publishers []EventPublisher

func (p Publishers) Publish(ctx context.Context, event domain.SessionEvent) error {
	var errs []error
	for _, publisher := range p {
		if publisher == nil {
			continue
		}
		if err := publisher.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
