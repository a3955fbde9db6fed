package memory

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"guild-quiz-service/internal/domain"
)

type scoreKey struct {
	userID  string
	guildID string
}

// Store is an in-memory implementation of app.Store (useful for tests/demos).
type Store struct {
	mu        sync.RWMutex
	quizzes   []domain.Quiz
	responses []domain.QuizResponse
	scores    map[scoreKey]domain.ScoreRecord
	scoreSeq  []scoreKey // insertion order; the leaderboard's natural tie order
	guilds    map[string]domain.GuildScheduleConfig
	rnd       *rand.Rand
	clock     func() time.Time
}

func NewStore(quizzes ...domain.Quiz) *Store {
	return &Store{
		quizzes: append([]domain.Quiz(nil), quizzes...),
		scores:  make(map[scoreKey]domain.ScoreRecord),
		guilds:  make(map[string]domain.GuildScheduleConfig),
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		clock:   time.Now,
	}
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

func (s *Store) RandomQuiz(_ context.Context) (domain.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.quizzes) == 0 {
		return domain.Quiz{}, domain.ErrNoQuizAvailable
	}
	return s.quizzes[s.rnd.Intn(len(s.quizzes))], nil
}

func (s *Store) ListQuizzes(_ context.Context) ([]domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Quiz(nil), s.quizzes...), nil
}

func (s *Store) CreateQuiz(_ context.Context, quiz domain.Quiz) (domain.Quiz, error) {
	if quiz.ID == "" {
		quiz.ID = uuid.NewString()
	}
	if quiz.CreatedAt.IsZero() {
		quiz.CreatedAt = s.clock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.quizzes {
		if s.quizzes[i].ID == quiz.ID {
			s.quizzes[i] = quiz
			return quiz, nil
		}
	}
	s.quizzes = append(s.quizzes, quiz)
	return quiz, nil
}

func (s *Store) RecordResponse(_ context.Context, resp domain.QuizResponse) (domain.QuizResponse, error) {
	if resp.ID == "" {
		resp.ID = uuid.NewString()
	}
	if resp.CreatedAt.IsZero() {
		resp.CreatedAt = s.clock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, resp)
	return resp, nil
}

func (s *Store) QuizResponses(_ context.Context, quizID, guildID string) ([]domain.QuizResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.QuizResponse
	for _, r := range s.responses {
		if r.QuizID == quizID && r.GuildID == guildID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) UserScore(_ context.Context, userID, guildID string) (domain.ScoreRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.scores[scoreKey{userID: userID, guildID: guildID}]
	return rec, ok, nil
}

func (s *Store) UpsertScore(_ context.Context, rec domain.ScoreRecord) error {
	key := scoreKey{userID: rec.UserID, guildID: rec.GuildID}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.scores[key]; !ok {
		s.scoreSeq = append(s.scoreSeq, key)
	}
	s.scores[key] = rec
	return nil
}

func (s *Store) Leaderboard(_ context.Context, guildID string, limit int) ([]domain.ScoreRecord, error) {
	s.mu.RLock()
	entries := make([]domain.ScoreRecord, 0)
	for _, key := range s.scoreSeq {
		if key.guildID == guildID {
			entries = append(entries, s.scores[key])
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].TotalScore > entries[j].TotalScore
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *Store) GuildConfig(_ context.Context, guildID string) (domain.GuildScheduleConfig, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.guilds[guildID]
	return cfg, ok, nil
}

func (s *Store) UpsertGuildConfig(_ context.Context, cfg domain.GuildScheduleConfig) (domain.GuildScheduleConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.guilds[cfg.GuildID]; ok && cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = existing.CreatedAt
	}
	s.guilds[cfg.GuildID] = cfg
	return cfg, nil
}

func (s *Store) ActiveGuildConfigs(_ context.Context) ([]domain.GuildScheduleConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.GuildScheduleConfig
	for _, cfg := range s.guilds {
		if cfg.Schedulable() {
			out = append(out, cfg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GuildID < out[j].GuildID })
	return out, nil
}
