package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"scilab-live-service/internal/domain"
)

// LiveService contains the live-quiz use cases: session lifecycle, joining,
// answering, scoring, and the change feed. Session-level mutations require
// the caller's identity to match the session host; participants only ever
// write their own participant and answer rows.
type LiveService struct {
	store     Store
	questions QuestionRepository
	feed      *feed
	codes     *codeGenerator
	now       func() time.Time
}

func NewLiveService(store Store, questions QuestionRepository, codeLength int) *LiveService {
	return NewLiveServiceWithClock(store, questions, codeLength, time.Now)
}

// NewLiveServiceWithClock is test-only for deterministic timestamps.
func NewLiveServiceWithClock(store Store, questions QuestionRepository, codeLength int, now func() time.Time) *LiveService {
	return &LiveService{
		store:     store,
		questions: questions,
		feed:      newFeed(),
		codes:     newCodeGenerator(codeLength),
		now:       now,
	}
}

// createAttempts bounds the game-code retry loop; with a 32-char alphabet and
// 4+ chars the space is large enough that exhausting this means the store is
// broken, not unlucky.
const createAttempts = 10

// CreateSession persists a new waiting session with its question list and a
// freshly claimed game code. The question duration is fixed here and
// immutable afterward.
func (s *LiveService) CreateSession(ctx context.Context, hostID string, durationSeconds int, questions []domain.Question) (domain.Session, error) {
	if durationSeconds <= 0 {
		return domain.Session{}, fmt.Errorf("question duration must be positive, got %d", durationSeconds)
	}
	if len(questions) == 0 {
		return domain.Session{}, errors.New("session needs at least one question")
	}
	for i, q := range questions {
		if len(q.Options) < 2 {
			return domain.Session{}, fmt.Errorf("question %d needs at least two options", i)
		}
		if q.CorrectAnswer < 0 || q.CorrectAnswer >= len(q.Options) {
			return domain.Session{}, fmt.Errorf("question %d correct answer out of range", i)
		}
	}

	sessionID := uuid.NewString()
	owned := make([]domain.Question, len(questions))
	for i, q := range questions {
		q.ID = uuid.NewString()
		q.SessionID = sessionID
		q.OrderIndex = i
		owned[i] = q
	}

	for attempt := 0; attempt < createAttempts; attempt++ {
		code := s.codes.next()
		// Codes are shared with the assignment namespace; skip codes an
		// active assignment already holds.
		if _, err := s.store.GetActiveAssignmentByCode(ctx, code); err == nil {
			continue
		}

		session := domain.Session{
			ID:                      sessionID,
			GameCode:                code,
			HostID:                  hostID,
			Status:                  domain.StatusWaiting,
			CurrentQuestionIndex:    0,
			QuestionDurationSeconds: durationSeconds,
			CreatedAt:               s.now(),
		}
		err := s.store.CreateSession(ctx, session, owned)
		if errors.Is(err, domain.ErrCodeTaken) {
			continue
		}
		if err != nil {
			return domain.Session{}, err
		}
		return session, nil
	}
	return domain.Session{}, domain.ErrCodeTaken
}

// LookupCode resolves a human-typed join code. Live sessions win over
// assignments when both namespaces match.
func (s *LiveService) LookupCode(ctx context.Context, code string) (domain.CodeTarget, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	session, err := s.store.GetLiveSessionByCode(ctx, code)
	if err == nil {
		return domain.CodeTarget{Session: &session}, nil
	}
	if !errors.Is(err, domain.ErrSessionNotFound) {
		return domain.CodeTarget{}, err
	}
	assignment, err := s.store.GetActiveAssignmentByCode(ctx, code)
	if err == nil {
		return domain.CodeTarget{Assignment: &assignment}, nil
	}
	if errors.Is(err, domain.ErrSessionNotFound) || errors.Is(err, domain.ErrCodeNotFound) {
		return domain.CodeTarget{}, domain.ErrCodeNotFound
	}
	return domain.CodeTarget{}, err
}

// Join registers or refreshes a participant. Calling it again for the same
// (session, user) refreshes the display name and never resets the score.
func (s *LiveService) Join(ctx context.Context, sessionID, userID, displayName string) (domain.Leaderboard, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	if session.Status == domain.StatusFinished {
		return domain.Leaderboard{}, domain.ErrSessionFinished
	}

	now := s.now()
	participant, created, err := s.store.UpsertParticipant(ctx, domain.Participant{
		SessionID:   sessionID,
		UserID:      userID,
		DisplayName: displayName,
		JoinedAt:    now,
		LastUpdated: now,
	})
	if err != nil {
		return domain.Leaderboard{}, err
	}

	eventType := domain.EventUpdate
	if created {
		eventType = domain.EventInsert
	}
	s.feed.publish(domain.Event{
		Table:       domain.TableParticipants,
		Type:        eventType,
		SessionID:   sessionID,
		Participant: &participant,
	})
	return s.Leaderboard(ctx, sessionID)
}

// StartSession enacts waiting -> active. It refuses to start an empty
// session; that is a lobby guard, not a correctness requirement.
func (s *LiveService) StartSession(ctx context.Context, sessionID, hostID string) (domain.Session, error) {
	session, err := s.hostSession(ctx, sessionID, hostID)
	if err != nil {
		return domain.Session{}, err
	}
	if session.Status != domain.StatusWaiting {
		return domain.Session{}, domain.ErrSessionNotWaiting
	}

	participants, err := s.store.Participants(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if len(participants) == 0 {
		return domain.Session{}, domain.ErrNoParticipants
	}

	now := s.now()
	session.Status = domain.StatusActive
	session.CurrentQuestionIndex = 0
	session.StartedAt = &now
	if err := s.saveSession(ctx, session); err != nil {
		return domain.Session{}, err
	}
	return session, nil
}

// Advance moves to the next question, or finishes the session when no
// questions remain.
func (s *LiveService) Advance(ctx context.Context, sessionID, hostID string) (domain.Session, error) {
	session, err := s.hostSession(ctx, sessionID, hostID)
	if err != nil {
		return domain.Session{}, err
	}
	if session.Status != domain.StatusActive {
		return domain.Session{}, domain.ErrSessionNotActive
	}

	questions, err := s.questions.Questions(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}

	if session.CurrentQuestionIndex+1 >= len(questions) {
		now := s.now()
		session.Status = domain.StatusFinished
		session.FinishedAt = &now
	} else {
		session.CurrentQuestionIndex++
	}
	if err := s.saveSession(ctx, session); err != nil {
		return domain.Session{}, err
	}
	return session, nil
}

// EndSession finishes an active session early.
func (s *LiveService) EndSession(ctx context.Context, sessionID, hostID string) (domain.Session, error) {
	session, err := s.hostSession(ctx, sessionID, hostID)
	if err != nil {
		return domain.Session{}, err
	}
	if session.Status != domain.StatusActive {
		return domain.Session{}, domain.ErrSessionNotActive
	}

	now := s.now()
	session.Status = domain.StatusFinished
	session.FinishedAt = &now
	if err := s.saveSession(ctx, session); err != nil {
		return domain.Session{}, err
	}
	return session, nil
}

// SubmitAnswer records one participant's answer to the current question,
// scores it, and folds the points into the cumulative score atomically.
// Stale submissions (a question the host already advanced past) and second
// submissions for the same question are rejected.
func (s *LiveService) SubmitAnswer(ctx context.Context, sessionID, userID, questionID string, selectedIndex, timeTakenMs int) (domain.AnswerResult, domain.Leaderboard, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.AnswerResult{}, domain.Leaderboard{}, err
	}
	if session.Status != domain.StatusActive {
		return domain.AnswerResult{}, domain.Leaderboard{}, domain.ErrSessionNotActive
	}

	questions, err := s.questions.Questions(ctx, sessionID)
	if err != nil {
		return domain.AnswerResult{}, domain.Leaderboard{}, err
	}
	var question *domain.Question
	for i := range questions {
		if questions[i].ID == questionID {
			question = &questions[i]
			break
		}
	}
	if question == nil {
		return domain.AnswerResult{}, domain.Leaderboard{}, domain.ErrQuestionNotFound
	}
	if question.OrderIndex != session.CurrentQuestionIndex {
		return domain.AnswerResult{}, domain.Leaderboard{}, domain.ErrQuestionClosed
	}
	if selectedIndex < 0 || selectedIndex >= len(question.Options) {
		return domain.AnswerResult{}, domain.Leaderboard{}, domain.ErrInvalidOption
	}

	participant, err := s.store.GetParticipant(ctx, sessionID, userID)
	if err != nil {
		return domain.AnswerResult{}, domain.Leaderboard{}, err
	}

	limitMs := session.QuestionDurationSeconds * 1000
	if timeTakenMs < 0 {
		timeTakenMs = 0
	}
	if timeTakenMs > limitMs {
		timeTakenMs = limitMs
	}

	correct := selectedIndex == question.CorrectAnswer
	points := Score(correct, timeTakenMs, session.QuestionDurationSeconds)

	answer := domain.Answer{
		SessionID:      sessionID,
		QuestionID:     questionID,
		UserID:         userID,
		SelectedAnswer: selectedIndex,
		IsCorrect:      correct,
		TimeTakenMs:    timeTakenMs,
		PointsEarned:   points,
		AnsweredAt:     s.now(),
	}
	if err := s.store.InsertAnswer(ctx, answer); err != nil {
		return domain.AnswerResult{}, domain.Leaderboard{}, err
	}

	total := participant.Score
	if points > 0 {
		total, err = s.store.IncrementScore(ctx, sessionID, userID, points)
		if err != nil {
			return domain.AnswerResult{}, domain.Leaderboard{}, err
		}
	}

	s.feed.publish(domain.Event{
		Table:     domain.TableAnswers,
		Type:      domain.EventInsert,
		SessionID: sessionID,
		Answer:    &answer,
	})
	if points > 0 {
		participant.Score = total
		participant.LastUpdated = answer.AnsweredAt
		s.feed.publish(domain.Event{
			Table:       domain.TableParticipants,
			Type:        domain.EventUpdate,
			SessionID:   sessionID,
			Participant: &participant,
		})
	}

	lb, err := s.Leaderboard(ctx, sessionID)
	if err != nil {
		return domain.AnswerResult{}, domain.Leaderboard{}, err
	}
	return domain.AnswerResult{
		QuestionID:   questionID,
		Correct:      correct,
		PointsEarned: points,
		TotalScore:   total,
	}, lb, nil
}

// CurrentQuestion returns the question the session is on. Callers rendering
// for participants must strip CorrectAnswer before sending it out.
func (s *LiveService) CurrentQuestion(ctx context.Context, sessionID string) (domain.Question, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Question{}, err
	}
	if session.Status != domain.StatusActive {
		return domain.Question{}, domain.ErrSessionNotActive
	}
	questions, err := s.questions.Questions(ctx, sessionID)
	if err != nil {
		return domain.Question{}, err
	}
	if session.CurrentQuestionIndex < 0 || session.CurrentQuestionIndex >= len(questions) {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return questions[session.CurrentQuestionIndex], nil
}

// Leaderboard builds the ordered scoreboard: score descending, ties broken
// by who reached their score first, then by name.
func (s *LiveService) Leaderboard(ctx context.Context, sessionID string) (domain.Leaderboard, error) {
	participants, err := s.store.Participants(ctx, sessionID)
	if err != nil {
		return domain.Leaderboard{}, err
	}

	sort.Slice(participants, func(i, j int) bool {
		if participants[i].Score != participants[j].Score {
			return participants[i].Score > participants[j].Score
		}
		if !participants[i].LastUpdated.Equal(participants[j].LastUpdated) {
			return participants[i].LastUpdated.Before(participants[j].LastUpdated)
		}
		return participants[i].DisplayName < participants[j].DisplayName
	})

	entries := make([]domain.LeaderboardEntry, len(participants))
	for i, p := range participants {
		entries[i] = domain.LeaderboardEntry{
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			Score:       p.Score,
		}
	}
	return domain.Leaderboard{
		SessionID: sessionID,
		Entries:   entries,
		UpdatedAt: s.now(),
	}, nil
}

// AnsweredCount reports how many of the session's participants have answered
// the current question. Scoped strictly by question id, so late answers to
// earlier questions never inflate the count.
func (s *LiveService) AnsweredCount(ctx context.Context, sessionID string) (answered, total int, err error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return 0, 0, err
	}
	participants, err := s.store.Participants(ctx, sessionID)
	if err != nil {
		return 0, 0, err
	}
	total = len(participants)
	if session.Status != domain.StatusActive {
		return 0, total, nil
	}

	questions, err := s.questions.Questions(ctx, sessionID)
	if err != nil {
		return 0, 0, err
	}
	if session.CurrentQuestionIndex < 0 || session.CurrentQuestionIndex >= len(questions) {
		return 0, total, nil
	}
	answered, err = s.store.AnswerCount(ctx, sessionID, questions[session.CurrentQuestionIndex].ID)
	if err != nil {
		return 0, 0, err
	}
	return answered, total, nil
}

// Subscribe returns a channel of change events for a session. The caller
// must invoke the returned cancel function to avoid leaks. An empty table
// list subscribes to everything.
func (s *LiveService) Subscribe(ctx context.Context, sessionID string, tables ...domain.Table) (<-chan domain.Event, func(), error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, nil, err
	}
	ch, cancel := s.feed.subscribe(sessionID, tables...)
	return ch, cancel, nil
}

func (s *LiveService) hostSession(ctx context.Context, sessionID, hostID string) (domain.Session, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if session.HostID != hostID {
		return domain.Session{}, domain.ErrNotHost
	}
	return session, nil
}

func (s *LiveService) saveSession(ctx context.Context, session domain.Session) error {
	if err := s.store.UpdateSession(ctx, session); err != nil {
		return err
	}
	s.feed.publish(domain.Event{
		Table:     domain.TableSessions,
		Type:      domain.EventUpdate,
		SessionID: session.ID,
		Session:   &session,
	})
	return nil
}
