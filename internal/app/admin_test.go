package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guild-quiz-service/internal/app"
	"guild-quiz-service/internal/domain"
	"guild-quiz-service/internal/infra/memory"
)

func intPtr(v int) *int { return &v }

func newAdmin(h *harness) *app.Admin {
	return app.NewAdmin(h.store, h.dispatcher, app.AdminOptions{})
}

func TestRegisterAppliesDefaults(t *testing.T) {
	h := newHarness(time.Minute, 0)
	admin := newAdmin(h)

	cfg, err := admin.Register(context.Background(), app.RegisterRequest{GuildID: "g1", ChannelID: "c1", Elevated: true})
	require.NoError(t, err)
	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, 9, cfg.FireHour)
	assert.Equal(t, 0, cfg.FireMinute)
	assert.True(t, cfg.Active)
	assert.Contains(t, app.RegistrationNotice(cfg), "09:00 UTC")
}

func TestRegisterKeepsExplicitMidnight(t *testing.T) {
	h := newHarness(time.Minute, 0)
	admin := newAdmin(h)

	cfg, err := admin.Register(context.Background(), app.RegisterRequest{
		GuildID: "g1", ChannelID: "c1", Timezone: "Asia/Tokyo",
		Hour: intPtr(0), Minute: intPtr(30), Elevated: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.FireHour)
	assert.Equal(t, 30, cfg.FireMinute)
	assert.Equal(t, "Asia/Tokyo", cfg.Timezone)
}

func TestRegisterValidation(t *testing.T) {
	h := newHarness(time.Minute, 0)
	admin := newAdmin(h)
	ctx := context.Background()

	_, err := admin.Register(ctx, app.RegisterRequest{GuildID: "g1", ChannelID: "c1", Timezone: "Nowhere/Special", Elevated: true})
	assert.ErrorIs(t, err, domain.ErrInvalidTimezone)

	_, err = admin.Register(ctx, app.RegisterRequest{GuildID: "g1", ChannelID: "c1", Hour: intPtr(24), Elevated: true})
	assert.ErrorIs(t, err, domain.ErrInvalidSchedule)

	_, err = admin.Register(ctx, app.RegisterRequest{GuildID: "g1", ChannelID: "c1", Minute: intPtr(-1), Elevated: true})
	assert.ErrorIs(t, err, domain.ErrInvalidSchedule)

	_, err = admin.Register(ctx, app.RegisterRequest{GuildID: "g1", ChannelID: "c1"})
	assert.ErrorIs(t, err, domain.ErrNotElevated)
}

func TestUnregisterDeactivatesWithoutDeleting(t *testing.T) {
	h := newHarness(time.Minute, 0)
	admin := newAdmin(h)
	ctx := context.Background()

	_, err := admin.Unregister(ctx, "g1", true)
	assert.ErrorIs(t, err, domain.ErrGuildNotRegistered)

	_, err = admin.Register(ctx, app.RegisterRequest{GuildID: "g1", ChannelID: "c1", Elevated: true})
	require.NoError(t, err)

	cfg, err := admin.Unregister(ctx, "g1", true)
	require.NoError(t, err)
	assert.False(t, cfg.Active)

	stored, ok, err := h.store.GuildConfig(ctx, "g1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "c1", stored.ChannelID)

	active, err := h.store.ActiveGuildConfigs(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = admin.Unregister(ctx, "g1", true)
	assert.ErrorIs(t, err, domain.ErrGuildNotRegistered)
}

func TestStartNowAndEndNow(t *testing.T) {
	h := newHarness(time.Hour, 0)
	admin := newAdmin(h)
	ctx := context.Background()

	session, err := admin.StartNow(ctx, testTarget)
	require.NoError(t, err)

	assert.ErrorIs(t, admin.EndNow(ctx, session.Key, false), domain.ErrNotElevated)
	require.NoError(t, admin.EndNow(ctx, session.Key, true))
	assert.ErrorIs(t, admin.EndNow(ctx, session.Key, true), domain.ErrSessionNotFound, "evicted session")
	assert.Len(t, h.messenger.titled(resultsTitle), 1)

	unknown := domain.SessionKey{ScopeID: "g1", MessageID: "never-posted"}
	assert.ErrorIs(t, admin.EndNow(ctx, unknown, true), domain.ErrSessionNotFound)
}

func TestEndNowReportsSessionClosedButNotEvicted(t *testing.T) {
	h := newHarness(time.Hour, 0)
	admin := newAdmin(h)
	ctx := context.Background()

	session, err := admin.StartNow(ctx, testTarget)
	require.NoError(t, err)
	_, err = h.registry.Close(ctx, session.Key)
	require.NoError(t, err)

	assert.ErrorIs(t, admin.EndNow(ctx, session.Key, true), domain.ErrAlreadyClosed)
	assert.Empty(t, h.messenger.titled(resultsTitle))
	assert.Zero(t, h.dispatcher.Pending())
}

func TestStatsAndLeaderboard(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	for _, rec := range []domain.ScoreRecord{
		{UserID: "u1", GuildID: "g1", TotalScore: 3, CorrectAnswers: 3, TotalAnswers: 4},
		{UserID: "u2", GuildID: "g1", TotalScore: 7, CorrectAnswers: 7, TotalAnswers: 7},
	} {
		require.NoError(t, store.UpsertScore(ctx, rec))
	}
	admin := app.NewAdmin(store, nil, app.AdminOptions{LeaderboardLimit: 1})

	rec, ok, err := admin.Stats(ctx, "u1", "g1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "75.0", rec.Accuracy().StringFixed(1))

	_, ok, err = admin.Stats(ctx, "ghost", "g1")
	require.NoError(t, err)
	assert.False(t, ok)

	board, err := admin.Leaderboard(ctx, "g1", 0)
	require.NoError(t, err)
	require.Len(t, board, 1)
	assert.Equal(t, "u2", board[0].UserID)
}
