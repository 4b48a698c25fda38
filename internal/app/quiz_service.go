package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"samaquiz-service/internal/domain"
)

// QuizService contains the quiz session use cases.
type QuizService struct {
	store    SessionRepository
	quizzes  QuizRepository
	events   EventPublisher
	presence Presence
	locks    *sessionLocks
	now      func() time.Time
}

func NewQuizService(store SessionRepository, quizzes QuizRepository, events EventPublisher, presence Presence) *QuizService {
	return NewQuizServiceWithClock(store, quizzes, events, presence, time.Now)
}

// NewQuizServiceWithClock allows deterministic timestamps in tests.
func NewQuizServiceWithClock(store SessionRepository, quizzes QuizRepository, events EventPublisher, presence Presence, now func() time.Time) *QuizService {
	return &QuizService{
		store:    store,
		quizzes:  quizzes,
		events:   events,
		presence: presence,
		locks:    newSessionLocks(),
		now:      now,
	}
}

// CreateSessionInput is the body of a session creation request.
type CreateSessionInput struct {
	Code             string  `json:"code"`
	HostName         string  `json:"host_name"`
	HostAvatar       *string `json:"host_avatar"`
	QuestionDuration *int64  `json:"question_duration"`
}

// SessionView is a session as returned to API callers. Participants are only
// listed for the owner or an admin.
type SessionView struct {
	domain.QuizSession
	Participants []domain.Participant `json:"participants,omitempty"`
}

// JoinInput is the body of a join request.
type JoinInput struct {
	Name   string  `json:"name"`
	Avatar *string `json:"avatar"`
}

// JoinResult identifies the created participant and the new participant count.
type JoinResult struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

// ParticipantCount reports joined participants and live participant sockets.
type ParticipantCount struct {
	Count     int `json:"count"`
	Connected int `json:"connected"`
}

// CreateSession starts a new Ready session for a quiz owned by the requester.
func (s *QuizService) CreateSession(ctx context.Context, quizID string, in CreateSessionInput, requester domain.Requester) (domain.QuizSession, error) {
	if requester.Anonymous() {
		return domain.QuizSession{}, domain.Unauthorized()
	}
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.QuizSession{}, err
	}
	if !requester.CanManage(quiz.UserID) {
		return domain.QuizSession{}, domain.Forbidden()
	}

	code, err := NormalizeCode(in.Code)
	if err != nil {
		return domain.QuizSession{}, err
	}
	if in.HostName != "" {
		if err := validateHostName(in.HostName); err != nil {
			return domain.QuizSession{}, err
		}
	}
	var avatar *string
	if in.HostAvatar != nil {
		if err := validateAvatar(*in.HostAvatar); err != nil {
			return domain.QuizSession{}, err
		}
		avatar = optionalString(*in.HostAvatar)
	}
	duration := domain.DefaultQuestionDuration
	if in.QuestionDuration != nil {
		if err := validateQuestionDuration(*in.QuestionDuration); err != nil {
			return domain.QuizSession{}, err
		}
		duration = *in.QuestionDuration
	}

	now := s.now().UTC()
	session := domain.QuizSession{
		ID:               uuid.NewString(),
		UserID:           requester.UserID,
		QuizID:           quiz.ID,
		Code:             code,
		HostName:         in.HostName,
		HostAvatar:       avatar,
		Status:           domain.StatusReady,
		QuestionDuration: duration,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return domain.QuizSession{}, mapStoreError(err)
	}
	return session, nil
}

// Session returns the stored session without authorization checks.
func (s *QuizService) Session(ctx context.Context, id string) (domain.QuizSession, error) {
	return s.store.GetSession(ctx, id)
}

// GetSession resolves a session by id or join code.
func (s *QuizService) GetSession(ctx context.Context, idOrCode string, requester domain.Requester) (SessionView, error) {
	var (
		session domain.QuizSession
		err     error
	)
	if _, parseErr := uuid.Parse(idOrCode); parseErr == nil {
		session, err = s.store.GetSession(ctx, idOrCode)
	} else {
		session, err = s.store.GetSessionByCode(ctx, strings.ToLower(idOrCode))
	}
	if err != nil {
		return SessionView{}, err
	}
	view := SessionView{QuizSession: session}
	if requester.CanManage(session.UserID) {
		view.Participants, err = s.store.ListParticipants(ctx, session.ID)
		if err != nil {
			return SessionView{}, err
		}
	}
	return view, nil
}

// UpdateSession applies a host patch and broadcasts the resulting events.
func (s *QuizService) UpdateSession(ctx context.Context, id string, patch SessionPatch, requester domain.Requester) (domain.QuizSession, error) {
	if requester.Anonymous() {
		return domain.QuizSession{}, domain.Unauthorized()
	}

	next, events, err := s.updateLocked(ctx, id, patch, requester)
	if err != nil {
		return domain.QuizSession{}, err
	}
	s.publish(ctx, events...)
	return next, nil
}

func (s *QuizService) updateLocked(ctx context.Context, id string, patch SessionPatch, requester domain.Requester) (domain.QuizSession, []domain.SessionEvent, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	current, err := s.store.GetSession(ctx, id)
	if err != nil {
		return domain.QuizSession{}, nil, err
	}
	if !requester.CanManage(current.UserID) {
		return domain.QuizSession{}, nil, domain.Forbidden()
	}

	lookup := func() (domain.Quiz, error) {
		return s.quizzes.GetQuiz(ctx, current.QuizID)
	}
	next, events, err := ApplyUpdate(current, patch, s.now().UnixMilli(), lookup)
	if err != nil {
		return domain.QuizSession{}, nil, err
	}
	if err := s.store.UpdateSession(ctx, next, current.Version); err != nil {
		return domain.QuizSession{}, nil, mapStoreError(err)
	}
	return next, events, nil
}

// Join adds a participant to a session that has not ended.
func (s *QuizService) Join(ctx context.Context, sessionID string, in JoinInput, requester domain.Requester) (JoinResult, error) {
	if err := validateParticipantName(in.Name); err != nil {
		return JoinResult{}, err
	}
	var avatar *string
	if in.Avatar != nil {
		if err := validateAvatar(*in.Avatar); err != nil {
			return JoinResult{}, err
		}
		avatar = optionalString(*in.Avatar)
	}

	result, event, err := s.joinLocked(ctx, sessionID, strings.TrimSpace(in.Name), avatar, requester)
	if err != nil {
		return JoinResult{}, err
	}
	s.publish(ctx, event)
	return result, nil
}

func (s *QuizService) joinLocked(ctx context.Context, sessionID, name string, avatar *string, requester domain.Requester) (JoinResult, domain.SessionEvent, error) {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return JoinResult{}, domain.SessionEvent{}, err
	}
	switch session.Status {
	case domain.StatusComplete:
		return JoinResult{}, domain.SessionEvent{}, domain.Invalid(domain.CodeQuizSessionComplete, "Quiz session is complete")
	case domain.StatusCanceled:
		return JoinResult{}, domain.SessionEvent{}, domain.Invalid(domain.CodeQuizSessionCanceled, "Quiz session was canceled")
	}

	participant := domain.Participant{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		Name:      name,
		Avatar:    avatar,
		CreatedAt: s.now().UTC(),
	}
	if !requester.Anonymous() {
		userID := requester.UserID
		participant.UserID = &userID
	}
	if err := s.store.CreateParticipant(ctx, participant); err != nil {
		return JoinResult{}, domain.SessionEvent{}, mapStoreError(err)
	}
	count, err := s.store.CountParticipants(ctx, session.ID)
	if err != nil {
		return JoinResult{}, domain.SessionEvent{}, err
	}
	event := domain.SessionEvent{
		Kind:      domain.EventJoined,
		SessionID: session.ID,
		Version:   session.Version,
		Count:     count,
	}
	return JoinResult{ID: participant.ID, Count: count}, event, nil
}

// Participant returns a participant by id.
func (s *QuizService) Participant(ctx context.Context, id string) (domain.Participant, error) {
	return s.store.GetParticipant(ctx, id)
}

// ParticipantCount reports how many participants joined a session.
func (s *QuizService) ParticipantCount(ctx context.Context, sessionID string, requester domain.Requester) (ParticipantCount, error) {
	if _, err := s.authorizeOwner(ctx, sessionID, requester); err != nil {
		return ParticipantCount{}, err
	}
	count, err := s.store.CountParticipants(ctx, sessionID)
	if err != nil {
		return ParticipantCount{}, err
	}
	result := ParticipantCount{Count: count}
	if s.presence != nil {
		result.Connected = s.presence.CountParticipants(sessionID)
	}
	return result, nil
}

func (s *QuizService) authorizeOwner(ctx context.Context, sessionID string, requester domain.Requester) (domain.QuizSession, error) {
	if requester.Anonymous() {
		return domain.QuizSession{}, domain.Unauthorized()
	}
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.QuizSession{}, err
	}
	if !requester.CanManage(session.UserID) {
		return domain.QuizSession{}, domain.Forbidden()
	}
	return session, nil
}

// publish hands events to the broadcast layer. Delivery is best effort and
// never fails the request that produced the events.
func (s *QuizService) publish(ctx context.Context, events ...domain.SessionEvent) {
	if s.events == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	now := s.now().UTC()
	for _, event := range events {
		if event.OccurredAt.IsZero() {
			event.OccurredAt = now
		}
		if err := s.events.Publish(ctx, event); err != nil {
			slog.Warn("publish session event failed", "kind", event.Kind, "session_id", event.SessionID, "error", err)
		}
	}
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, domain.ErrCodeTaken):
		return domain.Invalid(domain.CodeQuizSessionCode, "Quiz session code is already in use")
	case errors.Is(err, domain.ErrDuplicateResponse):
		return domain.Invalid(domain.CodeDuplicateResponse, "Question was already answered")
	case errors.Is(err, domain.ErrVersionConflict):
		return &domain.Error{Kind: domain.KindConflict, Code: domain.CodeNone, Message: "Quiz session was modified, retry"}
	}
	return err
}
