package memory

import (
	"context"
	"sort"
	"sync"

	"samaquiz-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
type SessionStore struct {
	mu           sync.RWMutex
	sessions     map[string]domain.QuizSession
	codes        map[string]string
	participants map[string]domain.Participant
	bySession    map[string][]string
	responses    map[string][]domain.QuizResponse
	answered     map[string]struct{}
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions:     make(map[string]domain.QuizSession),
		codes:        make(map[string]string),
		participants: make(map[string]domain.Participant),
		bySession:    make(map[string][]string),
		responses:    make(map[string][]domain.QuizResponse),
		answered:     make(map[string]struct{}),
	}
}

func (s *SessionStore) CreateSession(_ context.Context, session domain.QuizSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.codes[session.Code]; taken {
		return domain.ErrCodeTaken
	}
	s.sessions[session.ID] = session
	s.codes[session.Code] = session.ID
	return nil
}

func (s *SessionStore) GetSession(_ context.Context, id string) (domain.QuizSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return domain.QuizSession{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *SessionStore) GetSessionByCode(_ context.Context, code string) (domain.QuizSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.codes[code]
	if !ok {
		return domain.QuizSession{}, domain.ErrSessionNotFound
	}
	return s.sessions[id], nil
}

func (s *SessionStore) UpdateSession(_ context.Context, session domain.QuizSession, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.sessions[session.ID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if current.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	if session.Code != current.Code {
		if _, taken := s.codes[session.Code]; taken {
			return domain.ErrCodeTaken
		}
		delete(s.codes, current.Code)
		s.codes[session.Code] = session.ID
	}
	s.sessions[session.ID] = session
	return nil
}

func (s *SessionStore) CreateParticipant(_ context.Context, participant domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[participant.SessionID]; !ok {
		return domain.ErrSessionNotFound
	}
	s.participants[participant.ID] = participant
	s.bySession[participant.SessionID] = append(s.bySession[participant.SessionID], participant.ID)
	return nil
}

func (s *SessionStore) GetParticipant(_ context.Context, id string) (domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	participant, ok := s.participants[id]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return participant, nil
}

func (s *SessionStore) ListParticipants(_ context.Context, sessionID string) ([]domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.bySession[sessionID]
	participants := make([]domain.Participant, 0, len(ids))
	for _, id := range ids {
		participants = append(participants, s.participants[id])
	}
	return participants, nil
}

func (s *SessionStore) CountParticipants(_ context.Context, sessionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bySession[sessionID]), nil
}

func (s *SessionStore) CreateResponse(_ context.Context, response domain.QuizResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.participants[response.ParticipantID]; !ok {
		return domain.ErrParticipantNotFound
	}
	key := response.ParticipantID + "/" + response.QuestionID
	if _, dup := s.answered[key]; dup {
		return domain.ErrDuplicateResponse
	}
	s.answered[key] = struct{}{}
	s.responses[response.SessionID] = append(s.responses[response.SessionID], response)
	return nil
}

func (s *SessionStore) CountResponses(_ context.Context, sessionID, questionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, response := range s.responses[sessionID] {
		if response.QuestionID == questionID {
			count++
		}
	}
	return count, nil
}

func (s *SessionStore) Leaders(_ context.Context, sessionID string) ([]domain.LeaderEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := make(map[string]int)
	for _, response := range s.responses[sessionID] {
		if response.IsCorrect {
			totals[response.ParticipantID] += response.Points
		}
	}

	ids := s.bySession[sessionID]
	leaders := make([]domain.LeaderEntry, 0, len(ids))
	for _, id := range ids {
		participant := s.participants[id]
		leaders = append(leaders, domain.LeaderEntry{
			ParticipantID: participant.ID,
			Name:          participant.Name,
			Avatar:        participant.Avatar,
			Points:        totals[participant.ID],
		})
	}
	// bySession is in join order, so a stable sort breaks ties by join time.
	sort.SliceStable(leaders, func(i, j int) bool {
		return leaders[i].Points > leaders[j].Points
	})
	return leaders, nil
}
