package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"guild-quiz-service/internal/domain"
)

const bankKey = "quiz:bank"

// QuizSource is the durable store the bank is filled from.
type QuizSource interface {
	ListQuizzes(ctx context.Context) ([]domain.Quiz, error)
	CreateQuiz(ctx context.Context, quiz domain.Quiz) (domain.Quiz, error)
}

// QuizBank caches the quiz pool in Redis as a set of JSON documents and
// draws with SRANDMEMBER. On a miss the pool is reloaded from the source.
//
//	SADD quiz:bank {quiz json} ...
type QuizBank struct {
	client *redis.Client
	source QuizSource
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuizBank(client *redis.Client, source QuizSource, ttl time.Duration) *QuizBank {
	return &QuizBank{
		client: client,
		source: source,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (b *QuizBank) RandomQuiz(ctx context.Context) (domain.Quiz, error) {
	raw, err := b.client.SRandMember(ctx, bankKey).Result()
	if err == nil {
		return decodeQuiz(raw)
	}
	if !errors.Is(err, redis.Nil) {
		return domain.Quiz{}, fmt.Errorf("draw quiz: %w", err)
	}

	quizzes, err := b.fill(ctx)
	if err != nil {
		return domain.Quiz{}, err
	}
	if len(quizzes) == 0 {
		return domain.Quiz{}, domain.ErrNoQuizAvailable
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return quizzes[b.rnd.Intn(len(quizzes))], nil
}

func (b *QuizBank) ListQuizzes(ctx context.Context) ([]domain.Quiz, error) {
	members, err := b.client.SMembers(ctx, bankKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	if len(members) == 0 {
		return b.fill(ctx)
	}
	quizzes := make([]domain.Quiz, 0, len(members))
	for _, raw := range members {
		quiz, err := decodeQuiz(raw)
		if err != nil {
			return nil, err
		}
		quizzes = append(quizzes, quiz)
	}
	return quizzes, nil
}

// CreateQuiz writes through to the source and drops the cached pool.
func (b *QuizBank) CreateQuiz(ctx context.Context, quiz domain.Quiz) (domain.Quiz, error) {
	created, err := b.source.CreateQuiz(ctx, quiz)
	if err != nil {
		return domain.Quiz{}, err
	}
	if err := b.client.Del(ctx, bankKey).Err(); err != nil {
		return domain.Quiz{}, fmt.Errorf("invalidate quiz bank: %w", err)
	}
	return created, nil
}

func (b *QuizBank) fill(ctx context.Context) ([]domain.Quiz, error) {
	result, err, _ := b.sf.Do(bankKey, func() (interface{}, error) {
		quizzes, err := b.source.ListQuizzes(ctx)
		if err != nil {
			return nil, err
		}
		if len(quizzes) == 0 {
			return []domain.Quiz{}, nil
		}

		members := make([]interface{}, 0, len(quizzes))
		for _, quiz := range quizzes {
			raw, err := json.Marshal(quiz)
			if err != nil {
				return nil, fmt.Errorf("marshal quiz %s: %w", quiz.ID, err)
			}
			members = append(members, string(raw))
		}

		pipe := b.client.TxPipeline()
		pipe.Del(ctx, bankKey)
		pipe.SAdd(ctx, bankKey, members...)
		if ttl := b.ttlWithJitter(); ttl > 0 {
			pipe.Expire(ctx, bankKey, ttl)
		}
		// a failed fill only costs the next caller another source read
		_, _ = pipe.Exec(ctx)
		return quizzes, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Quiz), nil
}

func (b *QuizBank) ttlWithJitter() time.Duration {
	if b.ttl <= 0 {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	jitterMax := int64(b.ttl) / 10
	return b.ttl + time.Duration(b.rnd.Int63n(jitterMax+1))
}

func decodeQuiz(raw string) (domain.Quiz, error) {
	var quiz domain.Quiz
	if err := json.Unmarshal([]byte(raw), &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal quiz: %w", err)
	}
	return quiz, nil
}
