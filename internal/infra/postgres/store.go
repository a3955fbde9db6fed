package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"guild-quiz-service/internal/domain"
)

// Store is the pgx-backed app.Store.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pool and verifies the database is reachable.
func Connect(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.Connect(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewStore(pool), nil
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

const quizColumns = `id, question, type, options, correct_answer, explanation, difficulty, category, created_at`

func (s *Store) RandomQuiz(ctx context.Context) (domain.Quiz, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+quizColumns+` FROM quizzes ORDER BY random() LIMIT 1`)
	quiz, err := scanQuiz(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrNoQuizAvailable
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("random quiz: %w", err)
	}
	return quiz, nil
}

func (s *Store) ListQuizzes(ctx context.Context) ([]domain.Quiz, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+quizColumns+` FROM quizzes ORDER BY created_at, id`)
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
	options := quiz.Options
	if options == nil {
		options = []string{}
	}
	raw, err := json.Marshal(options)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("marshal options: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		INSERT INTO quizzes (id, question, type, options, correct_answer, explanation, difficulty, category)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			question = EXCLUDED.question,
			type = EXCLUDED.type,
			options = EXCLUDED.options,
			correct_answer = EXCLUDED.correct_answer,
			explanation = EXCLUDED.explanation,
			difficulty = EXCLUDED.difficulty,
			category = EXCLUDED.category
		RETURNING created_at`,
		quiz.ID, quiz.Question, string(quiz.Type), string(raw), quiz.CorrectAnswer,
		quiz.Explanation, quiz.Difficulty, quiz.Category,
	).Scan(&quiz.CreatedAt)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("create quiz: %w", err)
	}
	return quiz, nil
}

func (s *Store) RecordResponse(ctx context.Context, resp domain.QuizResponse) (domain.QuizResponse, error) {
	if resp.ID == "" {
		resp.ID = uuid.NewString()
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO quiz_responses (id, quiz_id, user_id, guild_id, answer, is_correct, response_time_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		resp.ID, resp.QuizID, resp.UserID, resp.GuildID, resp.Answer, resp.IsCorrect, resp.ResponseTime.Milliseconds(),
	).Scan(&resp.CreatedAt)
	if err != nil {
		return domain.QuizResponse{}, fmt.Errorf("record response: %w", err)
	}
	return resp, nil
}

func (s *Store) QuizResponses(ctx context.Context, quizID, guildID string) ([]domain.QuizResponse, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, quiz_id, user_id, guild_id, answer, is_correct, response_time_ms, created_at
		FROM quiz_responses
		WHERE quiz_id = $1 AND guild_id = $2
		ORDER BY created_at`, quizID, guildID)
	if err != nil {
		return nil, fmt.Errorf("quiz responses: %w", err)
	}
	defer rows.Close()

	var out []domain.QuizResponse
	for rows.Next() {
		var (
			resp domain.QuizResponse
			ms   int64
		)
		if err := rows.Scan(&resp.ID, &resp.QuizID, &resp.UserID, &resp.GuildID, &resp.Answer, &resp.IsCorrect, &ms, &resp.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		resp.ResponseTime = time.Duration(ms) * time.Millisecond
		out = append(out, resp)
	}
	return out, rows.Err()
}

const scoreColumns = `user_id, guild_id, total_score, correct_answers, total_answers, current_streak, best_streak, updated_at`

func (s *Store) UserScore(ctx context.Context, userID, guildID string) (domain.ScoreRecord, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+scoreColumns+` FROM user_scores WHERE user_id = $1 AND guild_id = $2`, userID, guildID)
	rec, err := scanScore(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ScoreRecord{}, false, nil
	}
	if err != nil {
		return domain.ScoreRecord{}, false, fmt.Errorf("user score: %w", err)
	}
	return rec, true, nil
}

func (s *Store) UpsertScore(ctx context.Context, rec domain.ScoreRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_scores (user_id, guild_id, total_score, correct_answers, total_answers, current_streak, best_streak, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, guild_id) DO UPDATE SET
			total_score = EXCLUDED.total_score,
			correct_answers = EXCLUDED.correct_answers,
			total_answers = EXCLUDED.total_answers,
			current_streak = EXCLUDED.current_streak,
			best_streak = EXCLUDED.best_streak,
			updated_at = EXCLUDED.updated_at`,
		rec.UserID, rec.GuildID, rec.TotalScore, rec.CorrectAnswers, rec.TotalAnswers,
		rec.CurrentStreak, rec.BestStreak, updatedAt(rec.UpdatedAt),
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
	rows, err := s.pool.Query(ctx, `
		SELECT `+scoreColumns+` FROM user_scores
		WHERE guild_id = $1
		ORDER BY total_score DESC, updated_at
		LIMIT $2`, guildID, limit)
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
	row := s.pool.QueryRow(ctx, `SELECT `+guildColumns+` FROM guild_configs WHERE guild_id = $1`, guildID)
	cfg, err := scanGuild(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.GuildScheduleConfig{}, false, nil
	}
	if err != nil {
		return domain.GuildScheduleConfig{}, false, fmt.Errorf("guild config: %w", err)
	}
	return cfg, true, nil
}

func (s *Store) UpsertGuildConfig(ctx context.Context, cfg domain.GuildScheduleConfig) (domain.GuildScheduleConfig, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO guild_configs (guild_id, channel_id, timezone, fire_hour, fire_minute, active, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (guild_id) DO UPDATE SET
			channel_id = EXCLUDED.channel_id,
			timezone = EXCLUDED.timezone,
			fire_hour = EXCLUDED.fire_hour,
			fire_minute = EXCLUDED.fire_minute,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
		RETURNING `+guildColumns,
		cfg.GuildID, cfg.ChannelID, cfg.Timezone, cfg.FireHour, cfg.FireMinute, cfg.Active, updatedAt(cfg.UpdatedAt),
	)
	saved, err := scanGuild(row)
	if err != nil {
		return domain.GuildScheduleConfig{}, fmt.Errorf("upsert guild config: %w", err)
	}
	return saved, nil
}

func (s *Store) ActiveGuildConfigs(ctx context.Context) ([]domain.GuildScheduleConfig, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+guildColumns+` FROM guild_configs
		WHERE active AND channel_id <> ''
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

func scanQuiz(row pgx.Row) (domain.Quiz, error) {
	var (
		quiz    domain.Quiz
		quizTyp string
		raw     []byte
	)
	if err := row.Scan(&quiz.ID, &quiz.Question, &quizTyp, &raw, &quiz.CorrectAnswer,
		&quiz.Explanation, &quiz.Difficulty, &quiz.Category, &quiz.CreatedAt); err != nil {
		return domain.Quiz{}, err
	}
	quiz.Type = domain.QuizType(quizTyp)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &quiz.Options); err != nil {
			return domain.Quiz{}, fmt.Errorf("unmarshal options: %w", err)
		}
	}
	if len(quiz.Options) == 0 {
		quiz.Options = nil
	}
	return quiz, nil
}

func scanScore(row pgx.Row) (domain.ScoreRecord, error) {
	var rec domain.ScoreRecord
	err := row.Scan(&rec.UserID, &rec.GuildID, &rec.TotalScore, &rec.CorrectAnswers, &rec.TotalAnswers,
		&rec.CurrentStreak, &rec.BestStreak, &rec.UpdatedAt)
	return rec, err
}

func scanGuild(row pgx.Row) (domain.GuildScheduleConfig, error) {
	var cfg domain.GuildScheduleConfig
	err := row.Scan(&cfg.GuildID, &cfg.ChannelID, &cfg.Timezone, &cfg.FireHour, &cfg.FireMinute,
		&cfg.Active, &cfg.CreatedAt, &cfg.UpdatedAt)
	return cfg, err
}

func updatedAt(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
