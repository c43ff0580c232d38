package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"scilab-live-service/internal/domain"
)

// QuestionSource fetches a session's question list from a backing store
// (e.g. the durable content tables in Postgres).
type QuestionSource interface {
	LoadQuestions(ctx context.Context, sessionID string) ([]domain.Question, error)
}

// QuestionCache caches question lists in Redis (one JSON value per session)
// and falls back to a source on cache miss. Stored as:
// SET live:session:{sessionID}:questioncache {json}
type QuestionCache struct {
	client *redis.Client
	source QuestionSource
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuestionCache(client *redis.Client, source QuestionSource, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		client: client,
		source: source,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) Questions(ctx context.Context, sessionID string) ([]domain.Question, error) {
	key := c.key(sessionID)

	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return decodeQuestions(raw)
	}
	if err != redis.Nil {
		return nil, fmt.Errorf("question cache get: %w", err)
	}

	result, err, _ := c.sf.Do(sessionID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		raw, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			return decodeQuestions(raw)
		}

		questions, err := c.source.LoadQuestions(ctx, sessionID)
		if err != nil {
			return nil, err
		}

		encoded, err := json.Marshal(questions)
		if err != nil {
			return nil, fmt.Errorf("question cache marshal: %w", err)
		}
		_ = c.client.Set(ctx, key, encoded, c.ttlWithJitter()).Err()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (c *QuestionCache) key(sessionID string) string {
	return "live:session:" + sessionID + ":questioncache"
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func decodeQuestions(raw []byte) ([]domain.Question, error) {
	var questions []domain.Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, fmt.Errorf("question cache unmarshal: %w", err)
	}
	return questions, nil
}
