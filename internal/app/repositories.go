package app

import (
	"context"
	"time"

	"guild-quiz-service/internal/domain"
)

// SessionRegistry owns open sessions and their per-user answer sets.
// Implementations must make RecordParticipant an atomic check-and-set and
// Close an atomic OPEN->CLOSED transition.
type SessionRegistry interface {
	Open(ctx context.Context, key domain.SessionKey, target domain.Target, quiz domain.Quiz, deadline time.Time) (domain.Session, error)
	Get(ctx context.Context, key domain.SessionKey) (domain.Session, bool, error)
	// RecordParticipant returns alreadyAnswered=true without mutating state
	// for a repeat user, and the participant count after the call.
	RecordParticipant(ctx context.Context, key domain.SessionKey, userID string) (alreadyAnswered bool, count int, err error)
	Close(ctx context.Context, key domain.SessionKey) (domain.Session, error)
	Evict(ctx context.Context, key domain.SessionKey) error
}

// QuizBank serves quiz content.
type QuizBank interface {
	RandomQuiz(ctx context.Context) (domain.Quiz, error)
	CreateQuiz(ctx context.Context, quiz domain.Quiz) (domain.Quiz, error)
}

// QuizLister loads the whole quiz bank; caching banks are filled from it.
type QuizLister interface {
	ListQuizzes(ctx context.Context) ([]domain.Quiz, error)
}

// ResponseStore persists the answer log.
type ResponseStore interface {
	RecordResponse(ctx context.Context, resp domain.QuizResponse) (domain.QuizResponse, error)
	QuizResponses(ctx context.Context, quizID, guildID string) ([]domain.QuizResponse, error)
}

// ScoreStore persists per-user aggregates.
type ScoreStore interface {
	UserScore(ctx context.Context, userID, guildID string) (domain.ScoreRecord, bool, error)
	UpsertScore(ctx context.Context, rec domain.ScoreRecord) error
	// Leaderboard returns at most limit records ordered by total score descending.
	Leaderboard(ctx context.Context, guildID string, limit int) ([]domain.ScoreRecord, error)
}

// GuildConfigStore persists schedule configuration.
type GuildConfigStore interface {
	GuildConfig(ctx context.Context, guildID string) (domain.GuildScheduleConfig, bool, error)
	UpsertGuildConfig(ctx context.Context, cfg domain.GuildScheduleConfig) (domain.GuildScheduleConfig, error)
	// ActiveGuildConfigs returns active configs with a target channel.
	ActiveGuildConfigs(ctx context.Context) ([]domain.GuildScheduleConfig, error)
}

// Store is the full persistence capability; memory, postgres, sqlite and mysql variants implement it.
type Store interface {
	QuizBank
	QuizLister
	ResponseStore
	ScoreStore
	GuildConfigStore
	Ping(ctx context.Context) error
	Close() error
}

// Messenger posts content into chat channels.
type Messenger interface {
	PostPresentation(ctx context.Context, target domain.Target, p domain.Presentation) (domain.MessageHandle, error)
	PostNotice(ctx context.Context, target domain.Target, text string) error
}

// FireMarker records that a guild's schedule slot has fired.
// MarkFired returns false when the slot was already marked.
type FireMarker interface {
	MarkFired(ctx context.Context, guildID, slot string) (bool, error)
}
