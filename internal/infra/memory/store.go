package memory

import (
	"context"
	"sync"

	"scilab-live-service/internal/domain"
)

// Store is an in-process implementation of app.Store, useful for tests and
// single-node deployments. A single mutex makes every operation atomic,
// including the score increments.
type Store struct {
	mu           sync.RWMutex
	sessions     map[string]domain.Session
	questions    map[string][]domain.Question
	participants map[string]map[string]domain.Participant
	answers      map[string]map[string]map[string]domain.Answer
	codes        map[string]string
	assignments  map[string]domain.Assignment
}

func NewStore() *Store {
	return &Store{
		sessions:     make(map[string]domain.Session),
		questions:    make(map[string][]domain.Question),
		participants: make(map[string]map[string]domain.Participant),
		answers:      make(map[string]map[string]map[string]domain.Answer),
		codes:        make(map[string]string),
		assignments:  make(map[string]domain.Assignment),
	}
}

func (s *Store) CreateSession(_ context.Context, session domain.Session, questions []domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if holder, ok := s.codes[session.GameCode]; ok {
		existing := s.sessions[holder]
		if existing.Status != domain.StatusFinished {
			return domain.ErrCodeTaken
		}
	}
	s.codes[session.GameCode] = session.ID
	s.sessions[session.ID] = session
	s.questions[session.ID] = append([]domain.Question(nil), questions...)
	return nil
}

func (s *Store) GetSession(_ context.Context, sessionID string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *Store) GetLiveSessionByCode(_ context.Context, code string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessionID, ok := s.codes[code]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	session, ok := s.sessions[sessionID]
	if !ok || session.Status == domain.StatusFinished {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *Store) UpdateSession(_ context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; !ok {
		return domain.ErrSessionNotFound
	}
	s.sessions[session.ID] = session
	if session.Status == domain.StatusFinished {
		// Finished sessions release their code for reuse.
		if s.codes[session.GameCode] == session.ID {
			delete(s.codes, session.GameCode)
		}
	}
	return nil
}

// LoadQuestions makes the store usable as a question source behind a cache.
func (s *Store) LoadQuestions(_ context.Context, sessionID string) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	questions, ok := s.questions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return append([]domain.Question(nil), questions...), nil
}

func (s *Store) UpsertParticipant(_ context.Context, p domain.Participant) (domain.Participant, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byUser, ok := s.participants[p.SessionID]
	if !ok {
		byUser = make(map[string]domain.Participant)
		s.participants[p.SessionID] = byUser
	}

	if existing, ok := byUser[p.UserID]; ok {
		existing.DisplayName = p.DisplayName
		existing.LastUpdated = p.LastUpdated
		byUser[p.UserID] = existing
		return existing, false, nil
	}
	p.Score = 0
	byUser[p.UserID] = p
	return p, true, nil
}

func (s *Store) GetParticipant(_ context.Context, sessionID, userID string) (domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[sessionID][userID]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return p, nil
}

func (s *Store) Participants(_ context.Context, sessionID string) ([]domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byUser := s.participants[sessionID]
	out := make([]domain.Participant, 0, len(byUser))
	for _, p := range byUser {
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) IncrementScore(_ context.Context, sessionID, userID string, points int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[sessionID][userID]
	if !ok {
		return 0, domain.ErrParticipantNotFound
	}
	p.Score += points
	s.participants[sessionID][userID] = p
	return p.Score, nil
}

func (s *Store) InsertAnswer(_ context.Context, a domain.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byQuestion, ok := s.answers[a.SessionID]
	if !ok {
		byQuestion = make(map[string]map[string]domain.Answer)
		s.answers[a.SessionID] = byQuestion
	}
	byUser, ok := byQuestion[a.QuestionID]
	if !ok {
		byUser = make(map[string]domain.Answer)
		byQuestion[a.QuestionID] = byUser
	}
	if _, ok := byUser[a.UserID]; ok {
		return domain.ErrAlreadyAnswered
	}
	byUser[a.UserID] = a
	return nil
}

func (s *Store) AnswerCount(_ context.Context, sessionID, questionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.answers[sessionID][questionID]), nil
}

func (s *Store) GetActiveAssignmentByCode(_ context.Context, code string) (domain.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	assignment, ok := s.assignments[code]
	if !ok || !assignment.Active {
		return domain.Assignment{}, domain.ErrCodeNotFound
	}
	return assignment, nil
}

// PutAssignment seeds the assignment namespace; the assignment flow itself
// lives outside this service.
func (s *Store) PutAssignment(a domain.Assignment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments[a.Code] = a
}
