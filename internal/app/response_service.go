package app

import (
	"context"

	"github.com/google/uuid"
	"samaquiz-service/internal/domain"
)

// ResponseInput is a participant's answer submission.
type ResponseInput struct {
	ParticipantID string `json:"participant_id"`
	QuestionID    string `json:"question_id"`
	AnswerID      string `json:"answer_id"`
	SessionID     string `json:"quiz_session_id,omitempty"`
}

// ResponseResult is returned to the answering participant.
type ResponseResult struct {
	ID                    string `json:"id"`
	IsCorrect             bool   `json:"is_correct"`
	QuestionResponseCount int    `json:"question_response_count"`
}

// SubmitResponse scores one answer against the session's current question.
func (s *QuizService) SubmitResponse(ctx context.Context, in ResponseInput) (ResponseResult, error) {
	if in.ParticipantID == "" || in.QuestionID == "" || in.AnswerID == "" {
		return ResponseResult{}, domain.InvalidForm("participant_id, question_id and answer_id are required")
	}
	participant, err := s.store.GetParticipant(ctx, in.ParticipantID)
	if err != nil {
		return ResponseResult{}, err
	}

	result, event, err := s.submitLocked(ctx, participant, in)
	if err != nil {
		return ResponseResult{}, err
	}
	s.publish(ctx, event)
	return result, nil
}

func (s *QuizService) submitLocked(ctx context.Context, participant domain.Participant, in ResponseInput) (ResponseResult, domain.SessionEvent, error) {
	unlock := s.locks.lock(participant.SessionID)
	defer unlock()

	session, err := s.store.GetSession(ctx, participant.SessionID)
	if err != nil {
		return ResponseResult{}, domain.SessionEvent{}, err
	}
	invalidQuestion := domain.Invalid(domain.CodeInvalidQuestion, "Question is not active")
	if session.Status != domain.StatusActive || session.QuestionIndex == nil {
		return ResponseResult{}, domain.SessionEvent{}, invalidQuestion
	}
	quiz, err := s.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return ResponseResult{}, domain.SessionEvent{}, err
	}
	question, ok := quiz.QuestionAt(*session.QuestionIndex)
	if !ok || question.ID != in.QuestionID {
		return ResponseResult{}, domain.SessionEvent{}, invalidQuestion
	}

	now := s.now()
	if session.QuestionEndTime == nil || now.UnixMilli() >= *session.QuestionEndTime {
		return ResponseResult{}, domain.SessionEvent{}, domain.Invalid(domain.CodeQuestionOver, "Question is over")
	}
	answer, ok := question.Answer(in.AnswerID)
	if !ok {
		return ResponseResult{}, domain.SessionEvent{}, domain.Invalid(domain.CodeInvalidAnswer, "Answer does not belong to question")
	}
	if in.SessionID != "" && in.SessionID != session.ID {
		return ResponseResult{}, domain.SessionEvent{}, invalidQuestion
	}

	points := 0
	if answer.IsCorrect {
		points = answer.Points
	}
	response := domain.QuizResponse{
		ID:            uuid.NewString(),
		SessionID:     session.ID,
		ParticipantID: participant.ID,
		QuestionID:    question.ID,
		AnswerID:      answer.ID,
		IsCorrect:     answer.IsCorrect,
		Points:        points,
		CreatedAt:     now.UTC(),
	}
	if err := s.store.CreateResponse(ctx, response); err != nil {
		return ResponseResult{}, domain.SessionEvent{}, mapStoreError(err)
	}
	count, err := s.store.CountResponses(ctx, session.ID, question.ID)
	if err != nil {
		return ResponseResult{}, domain.SessionEvent{}, err
	}

	event := domain.SessionEvent{
		Kind:       domain.EventResponse,
		SessionID:  session.ID,
		Version:    session.Version,
		Count:      count,
		QuestionID: question.ID,
	}
	result := ResponseResult{ID: response.ID, IsCorrect: response.IsCorrect, QuestionResponseCount: count}
	return result, event, nil
}

// Leaders returns the session leaderboard, highest points first.
func (s *QuizService) Leaders(ctx context.Context, sessionID string, requester domain.Requester) ([]domain.LeaderEntry, error) {
	if _, err := s.authorizeOwner(ctx, sessionID, requester); err != nil {
		return nil, err
	}
	return s.store.Leaders(ctx, sessionID)
}
