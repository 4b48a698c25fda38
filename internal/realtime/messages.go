package realtime

import (
	"encoding/json"

	"samaquiz-service/internal/domain"
)

// Role is the access level granted to a socket.
type Role string

const (
	RoleHost        Role = "Host"
	RoleParticipant Role = "Participant"
)

// MessageType tags server and client websocket messages.
type MessageType string

const (
	MessageAuth  MessageType = "Auth"
	MessageReady MessageType = "Ready"
)

// ClientMessage is sent by sockets. Only Auth is understood.
type ClientMessage struct {
	Type          MessageType `json:"type"`
	Value         *string     `json:"value,omitempty"`
	ParticipantID string      `json:"participant_id,omitempty"`
}

// ServerMessage is a flat JSON object tagged by type.
type ServerMessage struct {
	Type            MessageType `json:"type"`
	Value           any         `json:"value,omitempty"`
	QuestionIndex   *int        `json:"question_index,omitempty"`
	QuestionEndTime *int64      `json:"question_end_time,omitempty"`
}

func readyMessage(role Role) ServerMessage {
	return ServerMessage{Type: MessageReady, Value: role}
}

// MessageForEvent converts a session event to its wire message.
func MessageForEvent(event domain.SessionEvent) (ServerMessage, bool) {
	msg := ServerMessage{Type: MessageType(event.Kind)}
	switch event.Kind {
	case domain.EventJoined, domain.EventResponse:
		msg.Value = event.Count
	case domain.EventQuizEnd, domain.EventQuizCancel:
		msg.Value = 0
	case domain.EventCountdown:
		if event.Session == nil || event.Session.StartTime == nil {
			return ServerMessage{}, false
		}
		msg.Value = *event.Session.StartTime
	case domain.EventQuizStart, domain.EventQuestionStart:
		if event.Session == nil || event.Session.QuestionIndex == nil || event.Session.QuestionEndTime == nil {
			return ServerMessage{}, false
		}
		msg.QuestionIndex = event.Session.QuestionIndex
		msg.QuestionEndTime = event.Session.QuestionEndTime
	case domain.EventQuestionEndUpdate:
		if event.Session == nil || event.Session.QuestionEndTime == nil {
			return ServerMessage{}, false
		}
		msg.Value = *event.Session.QuestionEndTime
	default:
		return ServerMessage{}, false
	}
	return msg, true
}

// PhaseMessage is the single message that describes where a session is now.
// It is replayed to sockets that connect mid-session.
func PhaseMessage(session domain.QuizSession) (ServerMessage, bool) {
	event := domain.SessionEvent{SessionID: session.ID, Version: session.Version, Session: &session}
	switch session.Status {
	case domain.StatusReady:
		if session.StartTime == nil {
			return ServerMessage{}, false
		}
		event.Kind = domain.EventCountdown
	case domain.StatusActive:
		event.Kind = domain.EventQuestionStart
		if session.QuestionIndex != nil && *session.QuestionIndex == 0 {
			event.Kind = domain.EventQuizStart
		}
	case domain.StatusComplete:
		event.Kind = domain.EventQuizEnd
	case domain.StatusCanceled:
		event.Kind = domain.EventQuizCancel
	default:
		return ServerMessage{}, false
	}
	return MessageForEvent(event)
}

func encode(msg ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}
