package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"guild-quiz-service/internal/domain"
)

// QuizSource is the backing store a QuizBank caches.
type QuizSource interface {
	ListQuizzes(ctx context.Context) ([]domain.Quiz, error)
	CreateQuiz(ctx context.Context, quiz domain.Quiz) (domain.Quiz, error)
}

// QuizBank caches the full quiz list with a TTL to avoid a DB hit per dispatch.
type QuizBank struct {
	source QuizSource
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu        sync.Mutex
	rnd       *rand.Rand
	quizzes   []domain.Quiz
	expiresAt time.Time
}

func NewQuizBank(source QuizSource, ttl time.Duration) *QuizBank {
	return &QuizBank{
		source: source,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (b *QuizBank) RandomQuiz(ctx context.Context) (domain.Quiz, error) {
	quizzes, err := b.load(ctx)
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
	quizzes, err := b.load(ctx)
	if err != nil {
		return nil, err
	}
	return append([]domain.Quiz(nil), quizzes...), nil
}

// CreateQuiz writes through to the source and drops the cached list.
func (b *QuizBank) CreateQuiz(ctx context.Context, quiz domain.Quiz) (domain.Quiz, error) {
	created, err := b.source.CreateQuiz(ctx, quiz)
	if err != nil {
		return domain.Quiz{}, err
	}
	b.mu.Lock()
	b.quizzes = nil
	b.expiresAt = time.Time{}
	b.mu.Unlock()
	return created, nil
}

func (b *QuizBank) load(ctx context.Context) ([]domain.Quiz, error) {
	if quizzes, ok := b.cached(); ok {
		return quizzes, nil
	}

	result, err, _ := b.sf.Do("bank", func() (interface{}, error) {
		// Re-check in case another goroutine filled the cache.
		if quizzes, ok := b.cached(); ok {
			return quizzes, nil
		}
		quizzes, err := b.source.ListQuizzes(ctx)
		if err != nil {
			return nil, err
		}
		if quizzes == nil {
			quizzes = []domain.Quiz{}
		}

		b.mu.Lock()
		b.quizzes = quizzes
		b.expiresAt = b.clock().Add(b.ttlWithJitter())
		b.mu.Unlock()
		return quizzes, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Quiz), nil
}

func (b *QuizBank) cached() ([]domain.Quiz, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.quizzes != nil && b.expiresAt.After(b.clock()) {
		return b.quizzes, true
	}
	return nil, false
}

func (b *QuizBank) ttlWithJitter() time.Duration {
	if b.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(b.ttl) / 10
	return b.ttl + time.Duration(b.rnd.Int63n(jitterMax+1))
}
