package domain

import "time"

// SessionStatus is the lifecycle state of a quiz session.
type SessionStatus string

const (
	StatusReady    SessionStatus = "Ready"
	StatusActive   SessionStatus = "Active"
	StatusComplete SessionStatus = "Complete"
	StatusCanceled SessionStatus = "Canceled"
)

// Valid reports whether s is one of the known statuses.
func (s SessionStatus) Valid() bool {
	switch s {
	case StatusReady, StatusActive, StatusComplete, StatusCanceled:
		return true
	}
	return false
}

// DefaultQuestionDuration is the per-question answer window in milliseconds.
const DefaultQuestionDuration int64 = 30000

// QuizSession is one hosted run of a quiz.
type QuizSession struct {
	ID               string        `json:"id"`
	UserID           string        `json:"user_id"`
	QuizID           string        `json:"quiz_id"`
	Code             string        `json:"code"`
	HostName         string        `json:"host_name"`
	HostAvatar       *string       `json:"host_avatar"`
	Status           SessionStatus `json:"status"`
	StartTime        *int64        `json:"start_time"`
	EndTime          *int64        `json:"end_time"`
	QuestionIndex    *int          `json:"question_index"`
	QuestionEndTime  *int64        `json:"question_end_time"`
	QuestionDuration int64         `json:"question_duration"`
	Version          int64         `json:"version"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// Participant joined a session. Participants are never mutated or deleted.
type Participant struct {
	ID        string    `json:"id"`
	SessionID string    `json:"quiz_session_id"`
	UserID    *string   `json:"user_id"`
	Name      string    `json:"name"`
	Avatar    *string   `json:"avatar"`
	CreatedAt time.Time `json:"created_at"`
}

// QuizResponse is a participant's answer to one question.
type QuizResponse struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"quiz_session_id"`
	ParticipantID string    `json:"participant_id"`
	QuestionID    string    `json:"question_id"`
	AnswerID      string    `json:"answer_id"`
	IsCorrect     bool      `json:"is_correct"`
	Points        int       `json:"points"`
	CreatedAt     time.Time `json:"created_at"`
}

// LeaderEntry is one row of the leaderboard.
type LeaderEntry struct {
	ParticipantID string  `json:"participant_id"`
	Name          string  `json:"name"`
	Avatar        *string `json:"avatar"`
	Points        int     `json:"points"`
}

// Answer is a possible answer for a question.
type Answer struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
	Points    int    `json:"points"`
}

// Question models a multiple choice question.
type Question struct {
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Answers []Answer `json:"answers"`
}

// Quiz is the externally owned quiz content a session is hosted from.
type Quiz struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	Title          string     `json:"title"`
	QuestionsOrder []string   `json:"questions_order"`
	Questions      []Question `json:"questions"`
}

// QuestionAt returns the question in position index of the quiz order.
func (q Quiz) QuestionAt(index int) (Question, bool) {
	if index < 0 || index >= len(q.QuestionsOrder) {
		return Question{}, false
	}
	return q.Question(q.QuestionsOrder[index])
}

// Question looks up a question by id.
func (q Quiz) Question(id string) (Question, bool) {
	for _, question := range q.Questions {
		if question.ID == id {
			return question, true
		}
	}
	return Question{}, false
}

// Answer looks up an answer belonging to the question.
func (q Question) Answer(id string) (Answer, bool) {
	for _, answer := range q.Answers {
		if answer.ID == id {
			return answer, true
		}
	}
	return Answer{}, false
}

// Role is the kind of account carried by a bearer token.
type Role string

const (
	RoleUser  Role = "User"
	RoleAdmin Role = "Admin"
)

// Requester is the request-scoped caller identity. The zero value is anonymous.
type Requester struct {
	UserID string
	Role   Role
}

// Anonymous reports whether no credential was presented.
func (r Requester) Anonymous() bool {
	return r.UserID == ""
}

// CanManage reports whether the requester owns ownerID's resources or is an admin.
func (r Requester) CanManage(ownerID string) bool {
	if r.Anonymous() {
		return false
	}
	return r.Role == RoleAdmin || r.UserID == ownerID
}
