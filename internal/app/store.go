package app

import (
	"context"

	"scilab-live-service/internal/domain"
)

// Store abstracts the persistence collaborator holding live session state
// (in-memory, Redis, etc). All methods are safe for concurrent use.
type Store interface {
	// CreateSession persists a new session and its questions, claiming the
	// game code atomically. Returns domain.ErrCodeTaken when another live
	// session already holds the code.
	CreateSession(ctx context.Context, session domain.Session, questions []domain.Question) error

	GetSession(ctx context.Context, sessionID string) (domain.Session, error)

	// GetLiveSessionByCode resolves a game code against sessions that are
	// still joinable (waiting or active).
	GetLiveSessionByCode(ctx context.Context, code string) (domain.Session, error)

	// UpdateSession overwrites session-level fields. Only the host controller
	// path calls this; participants never touch the session row.
	UpdateSession(ctx context.Context, session domain.Session) error

	// UpsertParticipant inserts or refreshes the (session, user) row without
	// resetting its score. Reports whether a new row was created.
	UpsertParticipant(ctx context.Context, p domain.Participant) (domain.Participant, bool, error)

	GetParticipant(ctx context.Context, sessionID, userID string) (domain.Participant, error)

	Participants(ctx context.Context, sessionID string) ([]domain.Participant, error)

	// IncrementScore adds points to a participant's cumulative score as a
	// single atomic operation and returns the new total.
	IncrementScore(ctx context.Context, sessionID, userID string, points int) (int, error)

	// InsertAnswer records an answer exactly once; a second insert for the
	// same (session, question, user) returns domain.ErrAlreadyAnswered.
	InsertAnswer(ctx context.Context, a domain.Answer) error

	AnswerCount(ctx context.Context, sessionID, questionID string) (int, error)

	// GetActiveAssignmentByCode resolves the sibling assignment namespace for
	// the join-code fallback path.
	GetActiveAssignmentByCode(ctx context.Context, code string) (domain.Assignment, error)
}

// QuestionRepository loads the ordered question list for a session
// (from cache or a backing store).
type QuestionRepository interface {
	Questions(ctx context.Context, sessionID string) ([]domain.Question, error)
}
