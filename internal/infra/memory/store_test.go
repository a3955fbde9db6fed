package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guild-quiz-service/internal/app"
	"guild-quiz-service/internal/domain"
)

var _ app.Store = (*Store)(nil)

func TestRandomQuizOnEmptyBank(t *testing.T) {
	_, err := NewStore().RandomQuiz(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoQuizAvailable)
}

func TestCreateQuizAssignsID(t *testing.T) {
	store := NewStore()
	created, err := store.CreateQuiz(context.Background(), domain.Quiz{Question: "2+2?", Type: domain.QuizTypeYesNo, CorrectAnswer: "no"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := store.RandomQuiz(context.Background())
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
}

func TestQuizResponsesFilterByQuizAndGuild(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	for _, r := range []domain.QuizResponse{
		{QuizID: "q1", GuildID: "g1", UserID: "u1", IsCorrect: true},
		{QuizID: "q1", GuildID: "g1", UserID: "u2"},
		{QuizID: "q1", GuildID: "g2", UserID: "u3"},
		{QuizID: "q2", GuildID: "g1", UserID: "u4"},
	} {
		_, err := store.RecordResponse(ctx, r)
		require.NoError(t, err)
	}

	got, err := store.QuizResponses(ctx, "q1", "g1")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestLeaderboardOrdersByScoreKeepingInsertionForTies(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	for _, rec := range []domain.ScoreRecord{
		{UserID: "u1", GuildID: "g1", TotalScore: 2},
		{UserID: "u2", GuildID: "g1", TotalScore: 5},
		{UserID: "u3", GuildID: "g1", TotalScore: 2},
		{UserID: "u4", GuildID: "g2", TotalScore: 9},
	} {
		require.NoError(t, store.UpsertScore(ctx, rec))
	}

	board, err := store.Leaderboard(ctx, "g1", 10)
	require.NoError(t, err)
	require.Len(t, board, 3)
	assert.Equal(t, []string{"u2", "u1", "u3"}, []string{board[0].UserID, board[1].UserID, board[2].UserID})

	top, err := store.Leaderboard(ctx, "g1", 1)
	require.NoError(t, err)
	assert.Len(t, top, 1)
}

func TestActiveGuildConfigsSkipsInactiveAndChannelless(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	for _, cfg := range []domain.GuildScheduleConfig{
		{GuildID: "g1", ChannelID: "c1", Timezone: "UTC", Active: true},
		{GuildID: "g2", ChannelID: "c2", Timezone: "UTC", Active: false},
		{GuildID: "g3", Timezone: "UTC", Active: true},
	} {
		_, err := store.UpsertGuildConfig(ctx, cfg)
		require.NoError(t, err)
	}

	active, err := store.ActiveGuildConfigs(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "g1", active[0].GuildID)
}
