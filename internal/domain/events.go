package domain

import "time"

// EventKind names a session event. Values match the websocket message types.
type EventKind string

const (
	EventJoined            EventKind = "Joined"
	EventCountdown         EventKind = "QuizCountdown"
	EventQuizStart         EventKind = "QuizStart"
	EventQuestionStart     EventKind = "QuestionStart"
	EventQuestionEndUpdate EventKind = "QuestionEndUpdate"
	EventResponse          EventKind = "QuizResponse"
	EventQuizEnd           EventKind = "QuizEnd"
	EventQuizCancel        EventKind = "QuizCancel"
)

// IsState reports whether the event reflects a change of the session record.
func (k EventKind) IsState() bool {
	switch k {
	case EventJoined, EventResponse:
		return false
	}
	return true
}

// SessionEvent is emitted after a session change has been persisted.
//
// Version is the session version the event was derived from. Session holds
// the persisted snapshot for state events so late joiners can be replayed
// the current phase.
type SessionEvent struct {
	Kind       EventKind    `json:"kind"`
	SessionID  string       `json:"session_id"`
	Version    int64        `json:"version"`
	Count      int          `json:"count,omitempty"`
	QuestionID string       `json:"question_id,omitempty"`
	Session    *QuizSession `json:"session,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
}
