package app_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guild-quiz-service/internal/app"
	"guild-quiz-service/internal/app/apptest"
	"guild-quiz-service/internal/domain"
	"guild-quiz-service/internal/infra/memory"
)

func TestHandleAnswerScoresAndDedups(t *testing.T) {
	ctx := context.Background()
	h := newHarness(time.Minute, 0)
	defer h.dispatcher.Shutdown(ctx)

	session, err := h.dispatcher.StartSession(ctx, testTarget)
	require.NoError(t, err)

	first, err := h.handler.HandleAnswer(ctx, answer(session, "u1", "quiz_a"))
	require.NoError(t, err)
	assert.Equal(t, app.AnswerRecorded, first.Status)
	assert.True(t, first.Correct)
	assert.Equal(t, 1, first.Score.TotalScore)
	assert.Equal(t, "✅ Correct!", first.Notice())

	again, err := h.handler.HandleAnswer(ctx, answer(session, "u1", "quiz_b"))
	require.NoError(t, err)
	assert.Equal(t, app.AnswerAlreadyGiven, again.Status)
	assert.Equal(t, "❌ You have already answered this quiz!", again.Notice())

	wrong, err := h.handler.HandleAnswer(ctx, answer(session, "u2", "quiz_c"))
	require.NoError(t, err)
	assert.False(t, wrong.Correct)

	rec, ok, err := h.store.UserScore(ctx, "u1", "g1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, rec.TotalAnswers, "duplicate answers are not scored")

	responses, err := h.store.QuizResponses(ctx, "quiz-1", "g1")
	require.NoError(t, err)
	require.Len(t, responses, 2)
	assert.Equal(t, "a", responses[0].Answer)
}

func TestHandleAnswerUnknownSession(t *testing.T) {
	h := newHarness(time.Minute, 0)

	outcome, err := h.handler.HandleAnswer(context.Background(), app.AnswerEvent{
		ScopeID: "g1", MessageID: "nope", UserID: "u1", ControlToken: "quiz_a",
	})
	require.NoError(t, err)
	assert.Equal(t, app.AnswerSessionInactive, outcome.Status)
	assert.Equal(t, "❌ This quiz is no longer active.", outcome.Notice())
}

func TestConcurrentDuplicateAnswersScoreOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(time.Minute, 0)
	defer h.dispatcher.Shutdown(ctx)

	session, err := h.dispatcher.StartSession(ctx, testTarget)
	require.NoError(t, err)

	var recorded atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := h.handler.HandleAnswer(ctx, answer(session, "u1", "quiz_a"))
			if err == nil && outcome.Status == app.AnswerRecorded {
				recorded.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), recorded.Load())
	rec, _, err := h.store.UserScore(ctx, "u1", "g1")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.TotalAnswers)
}

func TestStoreFailureKeepsParticipantMark(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(apptest.SampleQuiz())
	registry := memory.NewSessionRegistry()
	dispatcher := app.NewDispatcher(registry, store, store, &fakeMessenger{}, app.DispatcherOptions{})
	defer dispatcher.Shutdown(ctx)
	handler := app.NewResponseHandler(registry, failingStore{Store: store}, app.ResponseHandlerOptions{})

	session, err := dispatcher.StartSession(ctx, testTarget)
	require.NoError(t, err)

	_, err = handler.HandleAnswer(ctx, answer(session, "u1", "quiz_a"))
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)

	retry, err := handler.HandleAnswer(ctx, answer(session, "u1", "quiz_a"))
	require.NoError(t, err)
	assert.Equal(t, app.AnswerAlreadyGiven, retry.Status)
}

func TestMaxResponsesClosesSessionEarly(t *testing.T) {
	ctx := context.Background()
	h := newHarness(time.Hour, 2)

	session, err := h.dispatcher.StartSession(ctx, testTarget)
	require.NoError(t, err)

	_, err = h.handler.HandleAnswer(ctx, answer(session, "u1", "quiz_a"))
	require.NoError(t, err)
	assert.Empty(t, h.messenger.titled(resultsTitle))

	_, err = h.handler.HandleAnswer(ctx, answer(session, "u2", "quiz_b"))
	require.NoError(t, err)
	assert.Len(t, h.messenger.titled(resultsTitle), 1)
	assert.Zero(t, h.dispatcher.Pending())

	late, err := h.handler.HandleAnswer(ctx, answer(session, "u3", "quiz_a"))
	require.NoError(t, err)
	assert.Equal(t, app.AnswerSessionInactive, late.Status)
}

func TestStreaksAcrossSessions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(time.Minute, 0)
	defer h.dispatcher.Shutdown(ctx)

	for _, control := range []string{"quiz_a", "quiz_a", "quiz_a", "quiz_b"} {
		session, err := h.dispatcher.StartSession(ctx, testTarget)
		require.NoError(t, err)
		_, err = h.handler.HandleAnswer(ctx, answer(session, "u1", control))
		require.NoError(t, err)
	}

	rec, ok, err := h.store.UserScore(ctx, "u1", "g1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.ScoreRecord{
		UserID: "u1", GuildID: "g1",
		TotalScore: 3, CorrectAnswers: 3, TotalAnswers: 4,
		CurrentStreak: 0, BestStreak: 3,
		UpdatedAt: rec.UpdatedAt,
	}, rec)
}
