package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"scilab-live-service/internal/domain"
)

// Store implements app.Store on Redis so multiple service instances can share
// live session state. Key points:
//   - scores live in their own hash and move only via HIncrBy, so the
//     cumulative score is an atomic server-side increment, never a
//     read-modify-write;
//   - answers are claimed with HSetNX, which enforces at most one answer per
//     (session, question, user) even under concurrent submissions;
//   - game codes are claimed with SetNX at creation and released when the
//     session finishes.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func (s *Store) CreateSession(ctx context.Context, session domain.Session, questions []domain.Question) error {
	claimed, err := s.client.SetNX(ctx, s.codeKey(session.GameCode), session.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("claim code: %w", err)
	}
	if !claimed {
		return domain.ErrCodeTaken
	}

	if err := s.putSession(ctx, session); err != nil {
		return err
	}
	raw, err := json.Marshal(questions)
	if err != nil {
		return fmt.Errorf("marshal questions: %w", err)
	}
	if err := s.client.Set(ctx, s.questionsKey(session.ID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("store questions: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	raw, err := s.client.Get(ctx, s.sessionKey(sessionID)).Bytes()
	if err == redis.Nil {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("get session: %w", err)
	}
	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return domain.Session{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return session, nil
}

func (s *Store) GetLiveSessionByCode(ctx context.Context, code string) (domain.Session, error) {
	sessionID, err := s.client.Get(ctx, s.codeKey(code)).Result()
	if err == redis.Nil {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("resolve code: %w", err)
	}
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if session.Status == domain.StatusFinished {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *Store) UpdateSession(ctx context.Context, session domain.Session) error {
	if _, err := s.GetSession(ctx, session.ID); err != nil {
		return err
	}
	if err := s.putSession(ctx, session); err != nil {
		return err
	}
	if session.Status == domain.StatusFinished {
		_ = s.client.Del(ctx, s.codeKey(session.GameCode)).Err()
	}
	return nil
}

// LoadQuestions makes the store usable as a question source behind a cache.
func (s *Store) LoadQuestions(ctx context.Context, sessionID string) ([]domain.Question, error) {
	raw, err := s.client.Get(ctx, s.questionsKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	var questions []domain.Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, fmt.Errorf("unmarshal questions: %w", err)
	}
	return questions, nil
}

// participantMeta is the participant row without its score; the score lives
// in a separate hash so it can be incremented atomically.
type participantMeta struct {
	DisplayName string    `json:"displayName"`
	JoinedAt    time.Time `json:"joinedAt"`
	LastUpdated time.Time `json:"lastUpdated"`
}

func (s *Store) UpsertParticipant(ctx context.Context, p domain.Participant) (domain.Participant, bool, error) {
	meta := participantMeta{DisplayName: p.DisplayName, JoinedAt: p.JoinedAt, LastUpdated: p.LastUpdated}
	raw, err := json.Marshal(meta)
	if err != nil {
		return domain.Participant{}, false, fmt.Errorf("marshal participant: %w", err)
	}

	created, err := s.client.HSetNX(ctx, s.participantsKey(p.SessionID), p.UserID, raw).Result()
	if err != nil {
		return domain.Participant{}, false, fmt.Errorf("upsert participant: %w", err)
	}
	if created {
		p.Score = 0
		return p, true, nil
	}

	// Rejoin: refresh name and timestamp, keep the original JoinedAt and score.
	existingRaw, err := s.client.HGet(ctx, s.participantsKey(p.SessionID), p.UserID).Bytes()
	if err != nil {
		return domain.Participant{}, false, fmt.Errorf("read participant: %w", err)
	}
	var existing participantMeta
	if err := json.Unmarshal(existingRaw, &existing); err != nil {
		return domain.Participant{}, false, fmt.Errorf("unmarshal participant: %w", err)
	}
	existing.DisplayName = p.DisplayName
	existing.LastUpdated = p.LastUpdated
	updatedRaw, err := json.Marshal(existing)
	if err != nil {
		return domain.Participant{}, false, fmt.Errorf("marshal participant: %w", err)
	}
	if err := s.client.HSet(ctx, s.participantsKey(p.SessionID), p.UserID, updatedRaw).Err(); err != nil {
		return domain.Participant{}, false, fmt.Errorf("update participant: %w", err)
	}

	score, err := s.score(ctx, p.SessionID, p.UserID)
	if err != nil {
		return domain.Participant{}, false, err
	}
	return domain.Participant{
		SessionID:   p.SessionID,
		UserID:      p.UserID,
		DisplayName: existing.DisplayName,
		Score:       score,
		JoinedAt:    existing.JoinedAt,
		LastUpdated: existing.LastUpdated,
	}, false, nil
}

func (s *Store) GetParticipant(ctx context.Context, sessionID, userID string) (domain.Participant, error) {
	raw, err := s.client.HGet(ctx, s.participantsKey(sessionID), userID).Bytes()
	if err == redis.Nil {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, fmt.Errorf("get participant: %w", err)
	}
	var meta participantMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return domain.Participant{}, fmt.Errorf("unmarshal participant: %w", err)
	}
	score, err := s.score(ctx, sessionID, userID)
	if err != nil {
		return domain.Participant{}, err
	}
	return domain.Participant{
		SessionID:   sessionID,
		UserID:      userID,
		DisplayName: meta.DisplayName,
		Score:       score,
		JoinedAt:    meta.JoinedAt,
		LastUpdated: meta.LastUpdated,
	}, nil
}

func (s *Store) Participants(ctx context.Context, sessionID string) ([]domain.Participant, error) {
	metas, err := s.client.HGetAll(ctx, s.participantsKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	scores, err := s.client.HGetAll(ctx, s.scoresKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list scores: %w", err)
	}

	out := make([]domain.Participant, 0, len(metas))
	for userID, rawMeta := range metas {
		var meta participantMeta
		if err := json.Unmarshal([]byte(rawMeta), &meta); err != nil {
			return nil, fmt.Errorf("unmarshal participant %s: %w", userID, err)
		}
		score := 0
		if rawScore, ok := scores[userID]; ok {
			if v, err := strconv.Atoi(rawScore); err == nil {
				score = v
			}
		}
		out = append(out, domain.Participant{
			SessionID:   sessionID,
			UserID:      userID,
			DisplayName: meta.DisplayName,
			Score:       score,
			JoinedAt:    meta.JoinedAt,
			LastUpdated: meta.LastUpdated,
		})
	}
	return out, nil
}

func (s *Store) IncrementScore(ctx context.Context, sessionID, userID string, points int) (int, error) {
	exists, err := s.client.HExists(ctx, s.participantsKey(sessionID), userID).Result()
	if err != nil {
		return 0, fmt.Errorf("check participant: %w", err)
	}
	if !exists {
		return 0, domain.ErrParticipantNotFound
	}
	total, err := s.client.HIncrBy(ctx, s.scoresKey(sessionID), userID, int64(points)).Result()
	if err != nil {
		return 0, fmt.Errorf("increment score: %w", err)
	}
	return int(total), nil
}

func (s *Store) InsertAnswer(ctx context.Context, a domain.Answer) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal answer: %w", err)
	}
	inserted, err := s.client.HSetNX(ctx, s.answersKey(a.SessionID, a.QuestionID), a.UserID, raw).Result()
	if err != nil {
		return fmt.Errorf("insert answer: %w", err)
	}
	if !inserted {
		return domain.ErrAlreadyAnswered
	}
	return nil
}

func (s *Store) AnswerCount(ctx context.Context, sessionID, questionID string) (int, error) {
	n, err := s.client.HLen(ctx, s.answersKey(sessionID, questionID)).Result()
	if err != nil {
		return 0, fmt.Errorf("count answers: %w", err)
	}
	return int(n), nil
}

func (s *Store) GetActiveAssignmentByCode(ctx context.Context, code string) (domain.Assignment, error) {
	raw, err := s.client.Get(ctx, s.assignmentKey(code)).Bytes()
	if err == redis.Nil {
		return domain.Assignment{}, domain.ErrCodeNotFound
	}
	if err != nil {
		return domain.Assignment{}, fmt.Errorf("get assignment: %w", err)
	}
	var assignment domain.Assignment
	if err := json.Unmarshal(raw, &assignment); err != nil {
		return domain.Assignment{}, fmt.Errorf("unmarshal assignment: %w", err)
	}
	if !assignment.Active {
		return domain.Assignment{}, domain.ErrCodeNotFound
	}
	return assignment, nil
}

// PutAssignment seeds the assignment namespace; the assignment flow itself
// lives outside this service.
func (s *Store) PutAssignment(ctx context.Context, a domain.Assignment) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal assignment: %w", err)
	}
	return s.client.Set(ctx, s.assignmentKey(a.Code), raw, 0).Err()
}

func (s *Store) putSession(ctx context.Context, session domain.Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, s.sessionKey(session.ID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

func (s *Store) score(ctx context.Context, sessionID, userID string) (int, error) {
	raw, err := s.client.HGet(ctx, s.scoresKey(sessionID), userID).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get score: %w", err)
	}
	score, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse score: %w", err)
	}
	return score, nil
}

func (s *Store) sessionKey(sessionID string) string {
	return "live:session:" + sessionID
}

func (s *Store) questionsKey(sessionID string) string {
	return "live:session:" + sessionID + ":questions"
}

func (s *Store) participantsKey(sessionID string) string {
	return "live:session:" + sessionID + ":participants"
}

func (s *Store) scoresKey(sessionID string) string {
	return "live:session:" + sessionID + ":scores"
}

func (s *Store) answersKey(sessionID, questionID string) string {
	return "live:session:" + sessionID + ":answers:" + questionID
}

func (s *Store) codeKey(code string) string {
	return "live:code:" + code
}

func (s *Store) assignmentKey(code string) string {
	return "live:assignment:" + code
}
