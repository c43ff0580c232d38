package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"scilab-live-service/internal/domain"
)

// QuestionSource loads the durable question rows authored by the content
// side of the app. Options are stored as a JSONB array of strings and
// validated into a typed slice here, at the persistence boundary.
type QuestionSource struct {
	pool *pgxpool.Pool
}

func NewQuestionSource(pool *pgxpool.Pool) *QuestionSource {
	return &QuestionSource{pool: pool}
}

func (s *QuestionSource) LoadQuestions(ctx context.Context, sessionID string) ([]domain.Question, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, order_index, text, options, correct_answer
		 FROM questions WHERE session_id=$1 ORDER BY order_index ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		var q domain.Question
		var rawOptions []byte
		if err := rows.Scan(&q.ID, &q.SessionID, &q.OrderIndex, &q.Text, &rawOptions, &q.CorrectAnswer); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if err := json.Unmarshal(rawOptions, &q.Options); err != nil {
			return nil, fmt.Errorf("unmarshal options for question %s: %w", q.ID, err)
		}
		if len(q.Options) < 2 || q.CorrectAnswer < 0 || q.CorrectAnswer >= len(q.Options) {
			return nil, fmt.Errorf("question %s has malformed options", q.ID)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, domain.ErrSessionNotFound
	}
	return questions, nil
}
