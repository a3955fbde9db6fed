package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"guild-quiz-service/internal/domain"
)

// Store is an app.Store on database/sql. Timestamps are stored as unix
// milliseconds so both engines round-trip them without driver options.
type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// Connect opens dsn with the dialect's driver and creates the schema.
func Connect(ctx context.Context, dialect Dialect, dsn string) (*Store, error) {
	db, err := Open(dialect, dsn)
	if err != nil {
		return nil, err
	}
	store := NewStore(db, dialect)
	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect.Name, err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func NewStore(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect, now: time.Now}
}

// EnsureSchema creates missing tables; it is safe to run on every start.
func (s *Store) EnsureSchema(ctx context.Context) error {
	schema, err := s.dialect.schema()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply %s schema: %w", s.dialect.Name, err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *Store) Close() error                   { return s.db.Close() }

const quizColumns = `id, question, type, options, correct_answer, explanation, difficulty, category, created_at`

func (s *Store) RandomQuiz(ctx context.Context) (domain.Quiz, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+quizColumns+` FROM quizzes ORDER BY `+s.dialect.Random+` LIMIT 1`)
	quiz, err := scanQuiz(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Quiz{}, domain.ErrNoQuizAvailable
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("random quiz: %w", err)
	}
	return quiz, nil
}

func (s *Store) ListQuizzes(ctx context.Context) ([]domain.Quiz, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+quizColumns+` FROM quizzes ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	defer rows.Close()

	var quizzes []domain.Quiz
	for rows.Next() {
		quiz, err := scanQuiz(rows)
		if err != nil {
			return nil, fmt.Errorf("scan quiz: %w", err)
		}
		quizzes = append(quizzes, quiz)
	}
	return quizzes, rows.Err()
}

func (s *Store) CreateQuiz(ctx context.Context, quiz domain.Quiz) (domain.Quiz, error) {
	if quiz.ID == "" {
		quiz.ID = uuid.NewString()
	}
	if quiz.CreatedAt.IsZero() {
		quiz.CreatedAt = s.now().UTC()
	}
	options := quiz.Options
	if options == nil {
		options = []string{}
	}
	raw, err := json.Marshal(options)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("marshal options: %w", err)
	}

	cols := []string{"question", "type", "options", "correct_answer", "explanation", "difficulty", "category"}
	query := insert("quizzes", append([]string{"id"}, append(cols, "created_at")...)) +
		s.dialect.Upsert([]string{"id"}, cols)
	_, err = s.db.ExecContext(ctx, query,
		quiz.ID, quiz.Question, string(quiz.Type), string(raw), quiz.CorrectAnswer,
		quiz.Explanation, quiz.Difficulty, quiz.Category, millis(quiz.CreatedAt),
	)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("create quiz: %w", err)
	}
	return quiz, nil
}

func (s *Store) RecordResponse(ctx context.Context, resp domain.QuizResponse) (domain.QuizResponse, error) {
	if resp.ID == "" {
		resp.ID = uuid.NewString()
	}
	if resp.CreatedAt.IsZero() {
		resp.CreatedAt = s.now().UTC()
	}
	query := insert("quiz_responses", []string{"id", "quiz_id", "user_id", "guild_id", "answer", "is_correct", "response_time_ms", "created_at"})
	_, err := s.db.ExecContext(ctx, query,
		resp.ID, resp.QuizID, resp.UserID, resp.GuildID, resp.Answer, resp.IsCorrect,
		resp.ResponseTime.Milliseconds(), millis(resp.CreatedAt),
	)
	if err != nil {
		return domain.QuizResponse{}, fmt.Errorf("record response: %w", err)
	}
	return resp, nil
}

func (s *Store) QuizResponses(ctx context.Context, quizID, guildID string) ([]domain.QuizResponse, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, quiz_id, user_id, guild_id, answer, is_correct, response_time_ms, created_at
		FROM quiz_responses
		WHERE quiz_id = ? AND guild_id = ?
		ORDER BY created_at`, quizID, guildID)
	if err != nil {
		return nil, fmt.Errorf("quiz responses: %w", err)
	}
	defer rows.Close()

	var out []domain.QuizResponse
	for rows.Next() {
		var (
			resp        domain.QuizResponse
			elapsed, at int64
		)
		if err := rows.Scan(&resp.ID, &resp.QuizID, &resp.UserID, &resp.GuildID, &resp.Answer, &resp.IsCorrect, &elapsed, &at); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		resp.ResponseTime = time.Duration(elapsed) * time.Millisecond
		resp.CreatedAt = fromMillis(at)
		out = append(out, resp)
	}
	return out, rows.Err()
}

const scoreColumns = `user_id, guild_id, total_score, correct_answers, total_answers, current_streak, best_streak, updated_at`

func (s *Store) UserScore(ctx context.Context, userID, guildID string) (domain.ScoreRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scoreColumns+` FROM user_scores WHERE user_id = ? AND guild_id = ?`, userID, guildID)
	rec, err := scanScore(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ScoreRecord{}, false, nil
	}
	if err != nil {
		return domain.ScoreRecord{}, false, fmt.Errorf("user score: %w", err)
	}
	return rec, true, nil
}

func (s *Store) UpsertScore(ctx context.Context, rec domain.ScoreRecord) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = s.now().UTC()
	}
	cols := []string{"total_score", "correct_answers", "total_answers", "current_streak", "best_streak", "updated_at"}
	query := insert("user_scores", append([]string{"user_id", "guild_id"}, cols...)) +
		s.dialect.Upsert([]string{"user_id", "guild_id"}, cols)
	_, err := s.db.ExecContext(ctx, query,
		rec.UserID, rec.GuildID, rec.TotalScore, rec.CorrectAnswers, rec.TotalAnswers,
		rec.CurrentStreak, rec.BestStreak, millis(rec.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert score: %w", err)
	}
	return nil
}

func (s *Store) Leaderboard(ctx context.Context, guildID string, limit int) ([]domain.ScoreRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+scoreColumns+` FROM user_scores
		WHERE guild_id = ?
		ORDER BY total_score DESC, updated_at
		LIMIT ?`, guildID, limit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.ScoreRecord, 0, limit)
	for rows.Next() {
		rec, err := scanScore(rows)
		if err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		entries = append(entries, rec)
	}
	return entries, rows.Err()
}

const guildColumns = `guild_id, channel_id, timezone, fire_hour, fire_minute, active, created_at, updated_at`

func (s *Store) GuildConfig(ctx context.Context, guildID string) (domain.GuildScheduleConfig, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+guildColumns+` FROM guild_configs WHERE guild_id = ?`, guildID)
	cfg, err := scanGuild(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.GuildScheduleConfig{}, false, nil
	}
	if err != nil {
		return domain.GuildScheduleConfig{}, false, fmt.Errorf("guild config: %w", err)
	}
	return cfg, true, nil
}

// UpsertGuildConfig keeps the original created_at of an existing row.
func (s *Store) UpsertGuildConfig(ctx context.Context, cfg domain.GuildScheduleConfig) (domain.GuildScheduleConfig, error) {
	now := s.now().UTC()
	if cfg.UpdatedAt.IsZero() {
		cfg.UpdatedAt = now
	}
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cols := []string{"channel_id", "timezone", "fire_hour", "fire_minute", "active", "updated_at"}
	query := insert("guild_configs", append([]string{"guild_id"}, append(cols, "created_at")...)) +
		s.dialect.Upsert([]string{"guild_id"}, cols)
	_, err := s.db.ExecContext(ctx, query,
		cfg.GuildID, cfg.ChannelID, cfg.Timezone, cfg.FireHour, cfg.FireMinute, cfg.Active,
		millis(cfg.UpdatedAt), millis(cfg.CreatedAt),
	)
	if err != nil {
		return domain.GuildScheduleConfig{}, fmt.Errorf("upsert guild config: %w", err)
	}

	saved, ok, err := s.GuildConfig(ctx, cfg.GuildID)
	if err != nil {
		return domain.GuildScheduleConfig{}, err
	}
	if !ok {
		return domain.GuildScheduleConfig{}, fmt.Errorf("upsert guild config %s: row missing after write", cfg.GuildID)
	}
	return saved, nil
}

func (s *Store) ActiveGuildConfigs(ctx context.Context) ([]domain.GuildScheduleConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+guildColumns+` FROM guild_configs
		WHERE active = 1 AND channel_id <> ''
		ORDER BY guild_id`)
	if err != nil {
		return nil, fmt.Errorf("active guild configs: %w", err)
	}
	defer rows.Close()

	var out []domain.GuildScheduleConfig
	for rows.Next() {
		cfg, err := scanGuild(rows)
		if err != nil {
			return nil, fmt.Errorf("scan guild config: %w", err)
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanQuiz(row scanner) (domain.Quiz, error) {
	var (
		quiz    domain.Quiz
		quizTyp string
		raw     string
		at      int64
	)
	if err := row.Scan(&quiz.ID, &quiz.Question, &quizTyp, &raw, &quiz.CorrectAnswer,
		&quiz.Explanation, &quiz.Difficulty, &quiz.Category, &at); err != nil {
		return domain.Quiz{}, err
	}
	quiz.Type = domain.QuizType(quizTyp)
	quiz.CreatedAt = fromMillis(at)
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &quiz.Options); err != nil {
			return domain.Quiz{}, fmt.Errorf("unmarshal options: %w", err)
		}
	}
	if len(quiz.Options) == 0 {
		quiz.Options = nil
	}
	return quiz, nil
}

func scanScore(row scanner) (domain.ScoreRecord, error) {
	var (
		rec domain.ScoreRecord
		at  int64
	)
	err := row.Scan(&rec.UserID, &rec.GuildID, &rec.TotalScore, &rec.CorrectAnswers, &rec.TotalAnswers,
		&rec.CurrentStreak, &rec.BestStreak, &at)
	rec.UpdatedAt = fromMillis(at)
	return rec, err
}

func scanGuild(row scanner) (domain.GuildScheduleConfig, error) {
	var (
		cfg                  domain.GuildScheduleConfig
		createdAt, updatedAt int64
	)
	err := row.Scan(&cfg.GuildID, &cfg.ChannelID, &cfg.Timezone, &cfg.FireHour, &cfg.FireMinute,
		&cfg.Active, &createdAt, &updatedAt)
	cfg.CreatedAt = fromMillis(createdAt)
	cfg.UpdatedAt = fromMillis(updatedAt)
	return cfg, err
}

func insert(table string, cols []string) string {
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	return "INSERT INTO " + table + " (" + strings.Join(cols, ", ") + ") VALUES (" + marks + ")"
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
