package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guild-quiz-service/internal/app"
	"guild-quiz-service/internal/app/apptest"
	"guild-quiz-service/internal/domain"
	"guild-quiz-service/internal/infra/memory"
	"guild-quiz-service/internal/metrics"
)

func TestStartSessionPostsQuizAndOpensSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(time.Minute, 0)
	defer h.dispatcher.Shutdown(ctx)

	session, err := h.dispatcher.StartSession(ctx, testTarget)
	require.NoError(t, err)

	posts := h.messenger.titled(quizTitle)
	require.Len(t, posts, 1)
	assert.Equal(t, domain.SessionKey{ScopeID: "g1", MessageID: posts[0].MessageID}, session.Key)
	assert.Equal(t, domain.SessionOpen, session.Status)
	assert.WithinDuration(t, time.Now().Add(time.Minute), session.Deadline, 5*time.Second)
	assert.Equal(t, 1, h.dispatcher.Pending())

	got, ok, err := h.registry.Get(ctx, session.Key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "quiz-1", got.Quiz.ID)
}

func TestStartSessionWithoutQuizNotifiesChannel(t *testing.T) {
	ctx := context.Background()
	messenger := &fakeMessenger{}
	d := app.NewDispatcher(memory.NewSessionRegistry(), memory.NewStore(), memory.NewStore(), messenger, app.DispatcherOptions{})

	_, err := d.StartSession(ctx, testTarget)
	require.ErrorIs(t, err, domain.ErrNoQuizAvailable)
	assert.Equal(t, 1, messenger.noticeCount())
	assert.Empty(t, messenger.titled(quizTitle))
	assert.Zero(t, d.Pending())
}

func TestDeadlineRacingManualEndPostsResultsOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(150*time.Millisecond, 0)

	session, err := h.dispatcher.StartSession(ctx, testTarget)
	require.NoError(t, err)

	// Answer just before the deadline is accepted.
	outcome, err := h.handler.HandleAnswer(ctx, answer(session, "u1", "quiz_a"))
	require.NoError(t, err)
	assert.Equal(t, app.AnswerRecorded, outcome.Status)
	assert.True(t, outcome.Correct)

	require.Eventually(t, func() bool {
		return len(h.messenger.titled(resultsTitle)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// A manual end after the timer fired is a no-op.
	require.NoError(t, h.dispatcher.EndSession(ctx, session.Key))
	assert.Len(t, h.messenger.titled(resultsTitle), 1)

	results := h.messenger.titled(resultsTitle)[0].Presentation
	assert.Equal(t, "1", results.Fields[1].Value)
	assert.Equal(t, "1", results.Fields[2].Value)

	require.Eventually(t, func() bool {
		_, ok, err := h.registry.Get(ctx, session.Key)
		return err == nil && !ok
	}, time.Second, 10*time.Millisecond, "session evicted after results")
	assert.Zero(t, h.dispatcher.Pending())
}

func TestConcurrentEndSessionProducesOneResult(t *testing.T) {
	ctx := context.Background()
	h := newHarness(time.Minute, 0)

	session, err := h.dispatcher.StartSession(ctx, testTarget)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, h.dispatcher.EndSession(ctx, session.Key))
		}()
	}
	wg.Wait()

	assert.Len(t, h.messenger.titled(resultsTitle), 1)
	assert.Zero(t, h.dispatcher.Pending(), "manual end disarms the timer")
	assert.Zero(t, h.registry.Len())
}

func TestAnswerAfterEndIsInactive(t *testing.T) {
	ctx := context.Background()
	h := newHarness(time.Minute, 0)

	session, err := h.dispatcher.StartSession(ctx, testTarget)
	require.NoError(t, err)
	require.NoError(t, h.dispatcher.EndSession(ctx, session.Key))

	outcome, err := h.handler.HandleAnswer(ctx, answer(session, "u1", "quiz_a"))
	require.NoError(t, err)
	assert.Equal(t, app.AnswerSessionInactive, outcome.Status)
}

func TestShutdownEndsPendingSessions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(time.Hour, 0)

	_, err := h.dispatcher.StartSession(ctx, testTarget)
	require.NoError(t, err)
	_, err = h.dispatcher.StartSession(ctx, domain.Target{GuildID: "g2", ChannelID: "c9"})
	require.NoError(t, err)

	h.dispatcher.Shutdown(ctx)

	assert.Len(t, h.messenger.titled(resultsTitle), 2)
	assert.Zero(t, h.dispatcher.Pending())
}

func TestTimerReleasedWhenPeerEndsSharedSession(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(apptest.SampleQuiz())
	registry := memory.NewSessionRegistry()
	messenger := &fakeMessenger{}
	metricsA := metrics.New(prometheus.NewRegistry())
	metricsB := metrics.New(prometheus.NewRegistry())
	a := app.NewDispatcher(registry, store, store, messenger, app.DispatcherOptions{Timeout: 100 * time.Millisecond, Metrics: metricsA})
	b := app.NewDispatcher(registry, store, store, messenger, app.DispatcherOptions{Timeout: 100 * time.Millisecond, Metrics: metricsB})

	session, err := a.StartSession(ctx, testTarget)
	require.NoError(t, err)
	require.Equal(t, 1, a.Pending())

	require.NoError(t, b.EndSession(ctx, session.Key))
	assert.Len(t, messenger.titled(resultsTitle), 1)

	require.Eventually(t, func() bool { return a.Pending() == 0 }, 2*time.Second, 10*time.Millisecond,
		"deadline timer entry dropped after the peer closed the session")
	assert.Len(t, messenger.titled(resultsTitle), 1)
	assert.Equal(t, 0.0, testutil.ToFloat64(metricsA.SessionsActive))
	assert.Equal(t, 0.0, testutil.ToFloat64(metricsB.SessionsActive), "peer never owned the session")
	assert.Equal(t, 1.0, testutil.ToFloat64(metricsB.SessionsClosed.WithLabelValues("manual")))
}

func TestManualEndOfPeerClosedSessionDisarms(t *testing.T) {
	ctx := context.Background()
	h := newHarness(time.Hour, 0)

	session, err := h.dispatcher.StartSession(ctx, testTarget)
	require.NoError(t, err)
	_, err = h.registry.Close(ctx, session.Key)
	require.NoError(t, err)

	require.NoError(t, h.dispatcher.EndSession(ctx, session.Key))
	assert.Zero(t, h.dispatcher.Pending())
	assert.Empty(t, h.messenger.titled(resultsTitle))
}
