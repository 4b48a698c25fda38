package app

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"samaquiz-service/internal/domain"
)

const (
	maxHostNameLen        = 20
	minHostNameLen        = 2
	maxAvatarLen          = 100
	minParticipantNameLen = 2
	maxParticipantNameLen = 16
	minQuestionDuration   = int64(1000)
	maxQuestionDuration   = int64(60 * 60 * 1000)
)

var codePattern = regexp.MustCompile(`^[0-9a-zA-Z_-]{1,12}$`)

var transitions = map[domain.SessionStatus][]domain.SessionStatus{
	domain.StatusReady:  {domain.StatusActive, domain.StatusCanceled},
	domain.StatusActive: {domain.StatusComplete, domain.StatusCanceled},
}

// CanTransition reports whether a session may move from one status to another.
func CanTransition(from, to domain.SessionStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// SessionPatch is a partial session update. Nil fields are left unchanged.
type SessionPatch struct {
	Code             *string               `json:"code"`
	HostName         *string               `json:"host_name"`
	HostAvatar       *string               `json:"host_avatar"`
	StartTime        *int64                `json:"start_time"`
	EndTime          *int64                `json:"end_time"`
	QuestionEndTime  *int64                `json:"question_end_time"`
	QuestionIndex    *int                  `json:"question_index"`
	QuestionDuration *int64                `json:"question_duration"`
	Status           *domain.SessionStatus `json:"status"`
}

func (p SessionPatch) empty() bool {
	return p.Code == nil && p.HostName == nil && p.HostAvatar == nil &&
		p.StartTime == nil && p.EndTime == nil && p.QuestionEndTime == nil &&
		p.QuestionIndex == nil && p.QuestionDuration == nil && p.Status == nil
}

// QuizLookup loads the quiz a session is hosted from. ApplyUpdate only calls
// it when the patch needs quiz content.
type QuizLookup func() (domain.Quiz, error)

// ApplyUpdate validates patch against the current session and returns the
// next session state along with the events it produces, in broadcast order.
// now is wall-clock time in epoch milliseconds.
func ApplyUpdate(current domain.QuizSession, patch SessionPatch, now int64, lookup QuizLookup) (domain.QuizSession, []domain.SessionEvent, error) {
	if patch.empty() {
		return current, nil, domain.InvalidForm("No fields to update")
	}
	next := current

	if patch.Code != nil {
		code, err := NormalizeCode(*patch.Code)
		if err != nil {
			return current, nil, err
		}
		next.Code = code
	}
	if patch.HostName != nil {
		if err := validateHostName(*patch.HostName); err != nil {
			return current, nil, err
		}
		next.HostName = *patch.HostName
	}
	if patch.HostAvatar != nil {
		if err := validateAvatar(*patch.HostAvatar); err != nil {
			return current, nil, err
		}
		next.HostAvatar = optionalString(*patch.HostAvatar)
	}
	if patch.QuestionDuration != nil {
		if err := validateQuestionDuration(*patch.QuestionDuration); err != nil {
			return current, nil, err
		}
		next.QuestionDuration = *patch.QuestionDuration
	}

	target := current.Status
	transition := false
	if patch.Status != nil {
		status := *patch.Status
		if !status.Valid() {
			return current, nil, domain.InvalidForm("Unknown status")
		}
		// Re-sending Active while active is a question update, not a transition.
		if !(status == domain.StatusActive && current.Status == domain.StatusActive) {
			if !CanTransition(current.Status, status) {
				return current, nil, domain.Invalid(domain.CodeInvalidStatus, "Invalid status transition")
			}
			transition = true
			target = status
		}
	}
	entering := transition && target == domain.StatusActive

	var quiz *domain.Quiz
	loadQuiz := func() (domain.Quiz, error) {
		if quiz == nil {
			q, err := lookup()
			if err != nil {
				return domain.Quiz{}, err
			}
			quiz = &q
		}
		return *quiz, nil
	}

	if entering {
		q, err := loadQuiz()
		if err != nil {
			return current, nil, err
		}
		if len(q.QuestionsOrder) == 0 {
			return current, nil, domain.Invalid(domain.CodeNoQuestions, "Quiz has no questions")
		}
	}

	if patch.StartTime != nil {
		if current.Status != domain.StatusReady {
			return current, nil, domain.InvalidForm("start_time can only be set before the quiz starts")
		}
		if *patch.StartTime < 0 {
			return current, nil, domain.InvalidForm("start_time must not be negative")
		}
		next.StartTime = int64Ptr(*patch.StartTime)
	}

	completing := transition && target == domain.StatusComplete
	if patch.EndTime != nil && !completing {
		return current, nil, domain.InvalidForm("end_time can only be set when completing the quiz")
	}
	if completing {
		end := now
		if patch.EndTime != nil {
			end = *patch.EndTime
		}
		next.EndTime = int64Ptr(end)
	}

	if (patch.QuestionIndex != nil || patch.QuestionEndTime != nil) && target != domain.StatusActive {
		return current, nil, domain.InvalidForm("Question fields require an active quiz")
	}

	indexChanged := false
	if entering {
		if patch.QuestionIndex != nil && *patch.QuestionIndex != 0 {
			return current, nil, domain.InvalidForm("Quiz must start at question_index 0")
		}
		next.QuestionIndex = intPtr(0)
		indexChanged = true
	} else if patch.QuestionIndex != nil {
		index := *patch.QuestionIndex
		q, err := loadQuiz()
		if err != nil {
			return current, nil, err
		}
		if index < 0 || index >= len(q.QuestionsOrder) {
			return current, nil, domain.InvalidForm("question_index out of range")
		}
		indexChanged = current.QuestionIndex == nil || *current.QuestionIndex != index
		next.QuestionIndex = intPtr(index)
	}

	endChanged := false
	if patch.QuestionEndTime != nil {
		if *patch.QuestionEndTime <= now {
			return current, nil, domain.InvalidForm("question_end_time must be in the future")
		}
		endChanged = current.QuestionEndTime == nil || *current.QuestionEndTime != *patch.QuestionEndTime
		next.QuestionEndTime = int64Ptr(*patch.QuestionEndTime)
	} else if indexChanged {
		next.QuestionEndTime = int64Ptr(now + next.QuestionDuration)
	}

	next.Status = target
	next.Version = current.Version + 1
	next.UpdatedAt = time.UnixMilli(now).UTC()

	snapshot := next
	emit := func(kind domain.EventKind) domain.SessionEvent {
		return domain.SessionEvent{
			Kind:       kind,
			SessionID:  next.ID,
			Version:    next.Version,
			Session:    &snapshot,
			OccurredAt: next.UpdatedAt,
		}
	}

	var events []domain.SessionEvent
	if patch.StartTime != nil && (current.StartTime == nil || *current.StartTime != *patch.StartTime) {
		events = append(events, emit(domain.EventCountdown))
	}
	switch {
	case entering:
		events = append(events, emit(domain.EventQuizStart))
	case indexChanged:
		events = append(events, emit(domain.EventQuestionStart))
	case endChanged:
		events = append(events, emit(domain.EventQuestionEndUpdate))
	}
	if transition {
		switch target {
		case domain.StatusComplete:
			events = append(events, emit(domain.EventQuizEnd))
		case domain.StatusCanceled:
			events = append(events, emit(domain.EventQuizCancel))
		}
	}
	return next, events, nil
}

// NormalizeCode validates a join code and lowercases it.
func NormalizeCode(code string) (string, error) {
	if !codePattern.MatchString(code) {
		return "", domain.InvalidForm("code must be 1-12 letters, digits, '-' or '_'")
	}
	return strings.ToLower(code), nil
}

func validateHostName(name string) error {
	n := utf8.RuneCountInString(name)
	if n < minHostNameLen || n > maxHostNameLen {
		return domain.InvalidForm("host_name must be 2-20 characters")
	}
	return nil
}

func validateParticipantName(name string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	if n < minParticipantNameLen || n > maxParticipantNameLen {
		return domain.InvalidForm("name must be 2-16 characters")
	}
	return nil
}

func validateAvatar(avatar string) error {
	if utf8.RuneCountInString(avatar) > maxAvatarLen {
		return domain.InvalidForm("avatar must be at most 100 characters")
	}
	return nil
}

func validateQuestionDuration(ms int64) error {
	if ms < minQuestionDuration || ms > maxQuestionDuration {
		return domain.InvalidForm("question_duration must be between 1000 and 3600000 ms")
	}
	return nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func intPtr(v int) *int { return &v }

func int64Ptr(v int64) *int64 { return &v }
