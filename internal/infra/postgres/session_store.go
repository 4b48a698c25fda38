package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
	"samaquiz-service/internal/domain"
)

const (
	uniqueViolation        = "23505"
	foreignKeyViolation    = "23503"
	sessionCodeConstraint  = "quiz_sessions_code_key"
	responseOnceConstraint = "quiz_responses_participant_question_key"
)

type sessionRow struct {
	bun.BaseModel `bun:"table:quiz_sessions,alias:qs"`

	ID               string    `bun:"id,pk"`
	UserID           string    `bun:"user_id"`
	QuizID           string    `bun:"quiz_id"`
	Code             string    `bun:"code"`
	HostName         string    `bun:"host_name"`
	HostAvatar       *string   `bun:"host_avatar"`
	Status           string    `bun:"status"`
	StartTime        *int64    `bun:"start_time"`
	EndTime          *int64    `bun:"end_time"`
	QuestionIndex    *int      `bun:"question_index"`
	QuestionEndTime  *int64    `bun:"question_end_time"`
	QuestionDuration int64     `bun:"question_duration"`
	Version          int64     `bun:"version"`
	CreatedAt        time.Time `bun:"created_at"`
	UpdatedAt        time.Time `bun:"updated_at"`
}

type participantRow struct {
	bun.BaseModel `bun:"table:participants,alias:p"`

	ID        string    `bun:"id,pk"`
	SessionID string    `bun:"quiz_session_id"`
	UserID    *string   `bun:"user_id"`
	Name      string    `bun:"name"`
	Avatar    *string   `bun:"avatar"`
	CreatedAt time.Time `bun:"created_at"`
}

type responseRow struct {
	bun.BaseModel `bun:"table:quiz_responses,alias:r"`

	ID            string    `bun:"id,pk"`
	SessionID     string    `bun:"quiz_session_id"`
	ParticipantID string    `bun:"participant_id"`
	QuestionID    string    `bun:"question_id"`
	AnswerID      string    `bun:"answer_id"`
	IsCorrect     bool      `bun:"is_correct"`
	Points        int       `bun:"points"`
	CreatedAt     time.Time `bun:"created_at"`
}

type leaderRow struct {
	ParticipantID string  `bun:"participant_id"`
	Name          string  `bun:"name"`
	Avatar        *string `bun:"avatar"`
	Points        int     `bun:"points"`
}

// SessionStore persists sessions, participants and responses in Postgres.
type SessionStore struct {
	db *bun.DB
}

func NewSessionStore(db *bun.DB) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) CreateSession(ctx context.Context, session domain.QuizSession) error {
	row := toSessionRow(session)
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		if violates(err, uniqueViolation, sessionCodeConstraint) {
			return domain.ErrCodeTaken
		}
		return fmt.Errorf("insert quiz session: %w", err)
	}
	return nil
}

func (s *SessionStore) GetSession(ctx context.Context, id string) (domain.QuizSession, error) {
	var row sessionRow
	err := s.db.NewSelect().Model(&row).Where("qs.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.QuizSession{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.QuizSession{}, fmt.Errorf("select quiz session: %w", err)
	}
	return row.toDomain(), nil
}

func (s *SessionStore) GetSessionByCode(ctx context.Context, code string) (domain.QuizSession, error) {
	var row sessionRow
	err := s.db.NewSelect().Model(&row).Where("qs.code = ?", code).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.QuizSession{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.QuizSession{}, fmt.Errorf("select quiz session by code: %w", err)
	}
	return row.toDomain(), nil
}

// UpdateSession writes the whole row guarded by the version column, so two
// writers that read the same version cannot both succeed.
func (s *SessionStore) UpdateSession(ctx context.Context, session domain.QuizSession, expectedVersion int64) error {
	row := toSessionRow(session)
	res, err := s.db.NewUpdate().
		Model(&row).
		ExcludeColumn("created_at").
		WherePK().
		Where("version = ?", expectedVersion).
		Exec(ctx)
	if err != nil {
		if violates(err, uniqueViolation, sessionCodeConstraint) {
			return domain.ErrCodeTaken
		}
		return fmt.Errorf("update quiz session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update quiz session: %w", err)
	}
	if affected == 0 {
		if _, err := s.GetSession(ctx, session.ID); err != nil {
			return err
		}
		return domain.ErrVersionConflict
	}
	return nil
}

func (s *SessionStore) CreateParticipant(ctx context.Context, participant domain.Participant) error {
	row := participantRow{
		ID:        participant.ID,
		SessionID: participant.SessionID,
		UserID:    participant.UserID,
		Name:      participant.Name,
		Avatar:    participant.Avatar,
		CreatedAt: participant.CreatedAt,
	}
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		if violates(err, foreignKeyViolation, "") {
			return domain.ErrSessionNotFound
		}
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}

func (s *SessionStore) GetParticipant(ctx context.Context, id string) (domain.Participant, error) {
	var row participantRow
	err := s.db.NewSelect().Model(&row).Where("p.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, fmt.Errorf("select participant: %w", err)
	}
	return row.toDomain(), nil
}

func (s *SessionStore) ListParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error) {
	var rows []participantRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("p.quiz_session_id = ?", sessionID).
		OrderExpr("p.created_at ASC, p.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	participants := make([]domain.Participant, 0, len(rows))
	for _, row := range rows {
		participants = append(participants, row.toDomain())
	}
	return participants, nil
}

func (s *SessionStore) CountParticipants(ctx context.Context, sessionID string) (int, error) {
	count, err := s.db.NewSelect().
		Model((*participantRow)(nil)).
		Where("p.quiz_session_id = ?", sessionID).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count participants: %w", err)
	}
	return count, nil
}

func (s *SessionStore) CreateResponse(ctx context.Context, response domain.QuizResponse) error {
	row := responseRow{
		ID:            response.ID,
		SessionID:     response.SessionID,
		ParticipantID: response.ParticipantID,
		QuestionID:    response.QuestionID,
		AnswerID:      response.AnswerID,
		IsCorrect:     response.IsCorrect,
		Points:        response.Points,
		CreatedAt:     response.CreatedAt,
	}
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		if violates(err, uniqueViolation, responseOnceConstraint) {
			return domain.ErrDuplicateResponse
		}
		if violates(err, foreignKeyViolation, "") {
			return domain.ErrParticipantNotFound
		}
		return fmt.Errorf("insert quiz response: %w", err)
	}
	return nil
}

func (s *SessionStore) CountResponses(ctx context.Context, sessionID, questionID string) (int, error) {
	count, err := s.db.NewSelect().
		Model((*responseRow)(nil)).
		Where("r.quiz_session_id = ?", sessionID).
		Where("r.question_id = ?", questionID).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count quiz responses: %w", err)
	}
	return count, nil
}

// Leaders sums correct-answer points per participant. Participants without a
// correct answer are listed with zero points; ties keep join order.
func (s *SessionStore) Leaders(ctx context.Context, sessionID string) ([]domain.LeaderEntry, error) {
	var rows []leaderRow
	err := s.db.NewSelect().
		TableExpr("participants AS p").
		ColumnExpr("p.id AS participant_id").
		ColumnExpr("p.name").
		ColumnExpr("p.avatar").
		ColumnExpr("COALESCE(SUM(r.points) FILTER (WHERE r.is_correct), 0) AS points").
		Join("LEFT JOIN quiz_responses AS r ON r.participant_id = p.id").
		Where("p.quiz_session_id = ?", sessionID).
		GroupExpr("p.id, p.name, p.avatar, p.created_at").
		OrderExpr("points DESC, p.created_at ASC, p.id ASC").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("select leaders: %w", err)
	}
	leaders := make([]domain.LeaderEntry, 0, len(rows))
	for _, row := range rows {
		leaders = append(leaders, domain.LeaderEntry{
			ParticipantID: row.ParticipantID,
			Name:          row.Name,
			Avatar:        row.Avatar,
			Points:        row.Points,
		})
	}
	return leaders, nil
}

// violates reports whether err is a Postgres error with the given SQLSTATE
// and, when constraint is not empty, on the named constraint.
func violates(err error, sqlState, constraint string) bool {
	var pgErr pgdriver.Error
	if !errors.As(err, &pgErr) {
		return false
	}
	if pgErr.Field('C') != sqlState {
		return false
	}
	return constraint == "" || pgErr.Field('n') == constraint
}

func toSessionRow(session domain.QuizSession) sessionRow {
	return sessionRow{
		ID:               session.ID,
		UserID:           session.UserID,
		QuizID:           session.QuizID,
		Code:             session.Code,
		HostName:         session.HostName,
		HostAvatar:       session.HostAvatar,
		Status:           string(session.Status),
		StartTime:        session.StartTime,
		EndTime:          session.EndTime,
		QuestionIndex:    session.QuestionIndex,
		QuestionEndTime:  session.QuestionEndTime,
		QuestionDuration: session.QuestionDuration,
		Version:          session.Version,
		CreatedAt:        session.CreatedAt,
		UpdatedAt:        session.UpdatedAt,
	}
}

func (r sessionRow) toDomain() domain.QuizSession {
	return domain.QuizSession{
		ID:               r.ID,
		UserID:           r.UserID,
		QuizID:           r.QuizID,
		Code:             r.Code,
		HostName:         r.HostName,
		HostAvatar:       r.HostAvatar,
		Status:           domain.SessionStatus(r.Status),
		StartTime:        r.StartTime,
		EndTime:          r.EndTime,
		QuestionIndex:    r.QuestionIndex,
		QuestionEndTime:  r.QuestionEndTime,
		QuestionDuration: r.QuestionDuration,
		Version:          r.Version,
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
}

func (r participantRow) toDomain() domain.Participant {
	return domain.Participant{
		ID:        r.ID,
		SessionID: r.SessionID,
		UserID:    r.UserID,
		Name:      r.Name,
		Avatar:    r.Avatar,
		CreatedAt: r.CreatedAt.UTC(),
	}
}
