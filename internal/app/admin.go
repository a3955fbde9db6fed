package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"guild-quiz-service/internal/domain"
	"guild-quiz-service/internal/metrics"
)

// ScheduleDefaults fill registration fields the caller leaves empty.
type ScheduleDefaults struct {
	Hour     int
	Minute   int
	Timezone string
}

// DefaultSchedule is 09:00 UTC.
var DefaultSchedule = ScheduleDefaults{Hour: 9, Minute: 0, Timezone: "UTC"}

// DefaultLeaderboardLimit is used when a leaderboard request has no limit.
const DefaultLeaderboardLimit = 10

// SessionControl starts and ends sessions on behalf of administrators.
type SessionControl interface {
	SessionStarter
	EndActive(ctx context.Context, key domain.SessionKey) error
}

// AdminStore is the persistence the administrative surface needs.
type AdminStore interface {
	GuildConfigStore
	ScoreStore
}

// AdminOptions tunes an Admin.
type AdminOptions struct {
	Defaults         ScheduleDefaults
	LeaderboardLimit int
	Now              func() time.Time
	Logger           *slog.Logger
	Metrics          *metrics.Metrics
}

// Admin implements registration, manual sessions, stats and leaderboards.
type Admin struct {
	store    AdminStore
	sessions SessionControl
	validate *validator.Validate
	defaults ScheduleDefaults
	limit    int
	now      func() time.Time
	log      *slog.Logger
	metrics  *metrics.Metrics
}

func NewAdmin(store AdminStore, sessions SessionControl, opts AdminOptions) *Admin {
	if opts.Defaults.Timezone == "" {
		opts.Defaults = DefaultSchedule
	}
	if opts.LeaderboardLimit <= 0 {
		opts.LeaderboardLimit = DefaultLeaderboardLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	v := validator.New()
	_ = v.RegisterValidation("iana_tz", validateTimezone)

	return &Admin{
		store:    store,
		sessions: sessions,
		validate: v,
		defaults: opts.Defaults,
		limit:    opts.LeaderboardLimit,
		now:      opts.Now,
		log:      opts.Logger.With("component", "admin"),
		metrics:  opts.Metrics,
	}
}

func validateTimezone(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	if name == "" {
		return false
	}
	_, err := time.LoadLocation(name)
	return err == nil
}

// RegisterRequest registers a channel for daily quizzes.
// Nil or empty Timezone, Hour and Minute take the configured defaults.
type RegisterRequest struct {
	GuildID   string
	ChannelID string
	Timezone  string
	Hour      *int
	Minute    *int
	Elevated  bool
}

type schedule struct {
	GuildID   string `validate:"required"`
	ChannelID string `validate:"required"`
	Timezone  string `validate:"iana_tz"`
	Hour      int    `validate:"min=0,max=23"`
	Minute    int    `validate:"min=0,max=59"`
}

// Register creates or replaces the guild's schedule and activates it.
func (a *Admin) Register(ctx context.Context, req RegisterRequest) (domain.GuildScheduleConfig, error) {
	if !req.Elevated {
		return domain.GuildScheduleConfig{}, domain.ErrNotElevated
	}
	sched := schedule{
		GuildID:   req.GuildID,
		ChannelID: req.ChannelID,
		Timezone:  strings.TrimSpace(req.Timezone),
		Hour:      a.defaults.Hour,
		Minute:    a.defaults.Minute,
	}
	if sched.Timezone == "" {
		sched.Timezone = a.defaults.Timezone
	}
	if req.Hour != nil {
		sched.Hour = *req.Hour
	}
	if req.Minute != nil {
		sched.Minute = *req.Minute
	}
	if err := a.validate.Struct(sched); err != nil {
		return domain.GuildScheduleConfig{}, registrationError(err)
	}

	now := a.now()
	cfg := domain.GuildScheduleConfig{
		GuildID:    sched.GuildID,
		ChannelID:  sched.ChannelID,
		Timezone:   sched.Timezone,
		FireHour:   sched.Hour,
		FireMinute: sched.Minute,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if existing, ok, err := a.store.GuildConfig(ctx, req.GuildID); err != nil {
		return domain.GuildScheduleConfig{}, fmt.Errorf("load guild config: %w: %w", domain.ErrStoreUnavailable, err)
	} else if ok {
		cfg.CreatedAt = existing.CreatedAt
	}

	saved, err := a.store.UpsertGuildConfig(ctx, cfg)
	if err != nil {
		return domain.GuildScheduleConfig{}, fmt.Errorf("save guild config: %w: %w", domain.ErrStoreUnavailable, err)
	}
	a.log.Info("channel registered",
		"guild", saved.GuildID,
		"channel", saved.ChannelID,
		"schedule", fmt.Sprintf("%02d:%02d %s", saved.FireHour, saved.FireMinute, saved.Timezone),
	)
	return saved, nil
}

func registrationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %w", domain.ErrInvalidSchedule, err)
	}
	for _, fe := range verrs {
		if fe.Field() == "Timezone" {
			return fmt.Errorf("%w: %q", domain.ErrInvalidTimezone, fe.Value())
		}
	}
	return fmt.Errorf("%w: %s", domain.ErrInvalidSchedule, verrs[0].Field())
}

// Unregister deactivates the guild's schedule without deleting its history.
func (a *Admin) Unregister(ctx context.Context, guildID string, elevated bool) (domain.GuildScheduleConfig, error) {
	if !elevated {
		return domain.GuildScheduleConfig{}, domain.ErrNotElevated
	}
	cfg, ok, err := a.store.GuildConfig(ctx, guildID)
	if err != nil {
		return domain.GuildScheduleConfig{}, fmt.Errorf("load guild config: %w: %w", domain.ErrStoreUnavailable, err)
	}
	if !ok || !cfg.Active {
		return domain.GuildScheduleConfig{}, domain.ErrGuildNotRegistered
	}

	cfg.Active = false
	cfg.UpdatedAt = a.now()
	saved, err := a.store.UpsertGuildConfig(ctx, cfg)
	if err != nil {
		return domain.GuildScheduleConfig{}, fmt.Errorf("save guild config: %w: %w", domain.ErrStoreUnavailable, err)
	}
	a.log.Info("channel unregistered", "guild", guildID)
	return saved, nil
}

// StartNow dispatches a quiz into target immediately.
func (a *Admin) StartNow(ctx context.Context, target domain.Target) (domain.Session, error) {
	session, err := a.sessions.StartSession(ctx, target)
	if err != nil {
		a.metrics.Dispatch(TriggerManual, "error")
		return domain.Session{}, err
	}
	a.metrics.Dispatch(TriggerManual, "ok")
	return session, nil
}

// EndNow closes an open session before its deadline. It fails with
// ErrAlreadyClosed or ErrSessionNotFound when there is nothing left to end.
func (a *Admin) EndNow(ctx context.Context, key domain.SessionKey, elevated bool) error {
	if !elevated {
		return domain.ErrNotElevated
	}
	return a.sessions.EndActive(ctx, key)
}

// Stats returns the user's score record; ok is false when the user never answered.
func (a *Admin) Stats(ctx context.Context, userID, guildID string) (domain.ScoreRecord, bool, error) {
	rec, ok, err := a.store.UserScore(ctx, userID, guildID)
	if err != nil {
		return domain.ScoreRecord{}, false, fmt.Errorf("load score: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return rec, ok, nil
}

// Leaderboard returns the guild's top scores; limit <= 0 uses the configured default.
// Ties keep the store's natural order.
func (a *Admin) Leaderboard(ctx context.Context, guildID string, limit int) ([]domain.ScoreRecord, error) {
	if limit <= 0 {
		limit = a.limit
	}
	entries, err := a.store.Leaderboard(ctx, guildID, limit)
	if err != nil {
		return nil, fmt.Errorf("load leaderboard: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return entries, nil
}

// WelcomeNotice is posted when the service joins a new guild.
func WelcomeNotice(guildName string) string {
	return fmt.Sprintf("🎉 Thanks for adding Quiz Bot to **%s**!\n\n"+
		"To get started:\n"+
		"1. Use `/registerchannel` to set up daily quizzes\n"+
		"2. Use `/startquiz` to try a quiz right now\n"+
		"3. Use `/leaderboard` to see the top players\n\n"+
		"Need help? Contact the bot administrator!", guildName)
}

// RegistrationNotice confirms a successful registration.
func RegistrationNotice(cfg domain.GuildScheduleConfig) string {
	return fmt.Sprintf("✅ Successfully registered <#%s> for daily quizzes!\n\n"+
		"**Schedule:** %02d:%02d %s\n"+
		"**Status:** Active\n\n"+
		"Daily quizzes will be automatically sent to this channel. Use `/unregisterchannel` to disable.",
		cfg.ChannelID, cfg.FireHour, cfg.FireMinute, cfg.Timezone)
}
