package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"guild-quiz-service/internal/app"
	"guild-quiz-service/internal/app/apptest"
	"guild-quiz-service/internal/domain"
	"guild-quiz-service/internal/infra/memory"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestSessionRegistryContract(t *testing.T) {
	apptest.RunRegistryContract(t, func(t *testing.T) app.SessionRegistry {
		_, client := newClient(t)
		return NewSessionRegistry(client, time.Minute)
	})
}

func TestSessionRegistrySetsTTL(t *testing.T) {
	mr, client := newClient(t)
	reg := NewSessionRegistry(client, time.Minute)
	key := domain.SessionKey{ScopeID: "g1", MessageID: "m1"}

	if _, err := reg.Open(context.Background(), key, domain.Target{GuildID: "g1", ChannelID: "c1"}, apptest.SampleQuiz(), time.Now().Add(5*time.Minute)); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, _, err := reg.RecordParticipant(context.Background(), key, "u1"); err != nil {
		t.Fatalf("record: %v", err)
	}

	hashTTL := mr.TTL("quiz:session:{g1-m1}")
	if hashTTL < 5*time.Minute || hashTTL > 6*time.Minute+time.Second {
		t.Fatalf("unexpected session ttl %v", hashTTL)
	}
	if mr.TTL("quiz:session:{g1-m1}:participants") <= 0 {
		t.Fatalf("expected participant set to expire with the session")
	}
}

func TestSessionRegistrySnapshotRoundTrip(t *testing.T) {
	_, client := newClient(t)
	reg := NewSessionRegistry(client, time.Minute)
	key := domain.SessionKey{ScopeID: "g1", MessageID: "m1"}
	target := domain.Target{GuildID: "g1", ChannelID: "c1"}

	if _, err := reg.Open(context.Background(), key, target, apptest.SampleQuiz(), time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("open: %v", err)
	}
	for _, user := range []string{"u2", "u1"} {
		if _, _, err := reg.RecordParticipant(context.Background(), key, user); err != nil {
			t.Fatalf("record %s: %v", user, err)
		}
	}

	closed, err := reg.Close(context.Background(), key)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.Status != domain.SessionClosed {
		t.Fatalf("expected closed status, got %s", closed.Status)
	}
	if closed.Target != target || closed.Quiz.ID != "quiz-1" {
		t.Fatalf("snapshot lost payload: %+v", closed)
	}
	if len(closed.Participants) != 2 || closed.Participants[0] != "u1" {
		t.Fatalf("unexpected participants %v", closed.Participants)
	}
}

func TestFireMarkerOncePerSlot(t *testing.T) {
	mr, client := newClient(t)
	marker := NewFireMarker(client, time.Hour)
	ctx := context.Background()

	first, err := marker.MarkFired(ctx, "g1", "2026-10-17T09:00")
	if err != nil || !first {
		t.Fatalf("expected first mark to win, got %v %v", first, err)
	}
	again, err := marker.MarkFired(ctx, "g1", "2026-10-17T09:00")
	if err != nil || again {
		t.Fatalf("expected second mark to lose, got %v %v", again, err)
	}
	other, err := marker.MarkFired(ctx, "g2", "2026-10-17T09:00")
	if err != nil || !other {
		t.Fatalf("expected other guild to fire, got %v %v", other, err)
	}

	mr.FastForward(2 * time.Hour)
	expired, err := marker.MarkFired(ctx, "g1", "2026-10-17T09:00")
	if err != nil || !expired {
		t.Fatalf("expected mark to expire, got %v %v", expired, err)
	}
}

func TestQuizBankCachesInRedis(t *testing.T) {
	mr, client := newClient(t)
	source := &countingSource{Store: memory.NewStore(apptest.SampleQuiz())}
	bank := NewQuizBank(client, source, time.Minute)

	quiz, err := bank.RandomQuiz(context.Background())
	if err != nil {
		t.Fatalf("random quiz: %v", err)
	}
	if quiz.ID != "quiz-1" {
		t.Fatalf("unexpected quiz %s", quiz.ID)
	}
	if source.listCalls() != 1 {
		t.Fatalf("expected source called once, got %d", source.listCalls())
	}

	// Second call should hit cache, source not incremented.
	quiz, err = bank.RandomQuiz(context.Background())
	if err != nil {
		t.Fatalf("random quiz: %v", err)
	}
	if source.listCalls() != 1 {
		t.Fatalf("expected cache hit, source calls=%d", source.listCalls())
	}
	if len(quiz.Options) != 3 || quiz.CorrectAnswer != "A" {
		t.Fatalf("cached quiz lost fields: %+v", quiz)
	}
	if ttl := mr.TTL(bankKey); ttl < time.Minute || ttl > time.Minute+6*time.Second {
		t.Fatalf("unexpected bank ttl %v", ttl)
	}
}

func TestQuizBankCreateInvalidates(t *testing.T) {
	mr, client := newClient(t)
	source := &countingSource{Store: memory.NewStore(apptest.SampleQuiz())}
	bank := NewQuizBank(client, source, time.Minute)

	if _, err := bank.RandomQuiz(context.Background()); err != nil {
		t.Fatalf("random quiz: %v", err)
	}
	if _, err := bank.CreateQuiz(context.Background(), domain.Quiz{ID: "quiz-2", Question: "Sky is blue?", Type: domain.QuizTypeYesNo, CorrectAnswer: "yes"}); err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	if mr.Exists(bankKey) {
		t.Fatalf("expected bank to be dropped after create")
	}

	quizzes, err := bank.ListQuizzes(context.Background())
	if err != nil {
		t.Fatalf("list quizzes: %v", err)
	}
	if len(quizzes) != 2 {
		t.Fatalf("expected 2 quizzes, got %d", len(quizzes))
	}
}

func TestQuizBankEmpty(t *testing.T) {
	_, client := newClient(t)
	bank := NewQuizBank(client, memory.NewStore(), time.Minute)

	_, err := bank.RandomQuiz(context.Background())
	if !errors.Is(err, domain.ErrNoQuizAvailable) {
		t.Fatalf("expected ErrNoQuizAvailable, got %v", err)
	}
}

type countingSource struct {
	*memory.Store
	mu    sync.Mutex
	calls int
}

func (s *countingSource) ListQuizzes(ctx context.Context) ([]domain.Quiz, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.Store.ListQuizzes(ctx)
}

func (s *countingSource) listCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
