// Package apptest holds contract suites shared by app port implementations.
package apptest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guild-quiz-service/internal/app"
	"guild-quiz-service/internal/domain"
)

// SampleQuiz is a multiple choice quiz whose correct answer is "A".
func SampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:            "quiz-1",
		Question:      "What is the capital of France?",
		Type:          domain.QuizTypeMultipleChoice,
		Options:       []string{"Paris", "Lyon", "Nice"},
		CorrectAnswer: "A",
		Explanation:   "Paris has been the capital since 987.",
		Difficulty:    "easy",
		Category:      "Geography",
	}
}

// RunRegistryContract exercises the SessionRegistry guarantees against newRegistry.
func RunRegistryContract(t *testing.T, newRegistry func(t *testing.T) app.SessionRegistry) {
	ctx := context.Background()
	target := domain.Target{GuildID: "g1", ChannelID: "c1"}
	deadline := time.Now().Add(time.Minute)

	t.Run("OpenRejectsDuplicate", func(t *testing.T) {
		reg := newRegistry(t)
		key := domain.SessionKey{ScopeID: "g1", MessageID: "m1"}

		s, err := reg.Open(ctx, key, target, SampleQuiz(), deadline)
		require.NoError(t, err)
		assert.Equal(t, domain.SessionOpen, s.Status)
		assert.Equal(t, "quiz-1", s.Quiz.ID)

		_, err = reg.Open(ctx, key, target, SampleQuiz(), deadline)
		assert.ErrorIs(t, err, domain.ErrDuplicateSession)
	})

	t.Run("GetAbsent", func(t *testing.T) {
		reg := newRegistry(t)
		_, ok, err := reg.Get(ctx, domain.SessionKey{ScopeID: "g1", MessageID: "missing"})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("RecordParticipantDedups", func(t *testing.T) {
		reg := newRegistry(t)
		key := domain.SessionKey{ScopeID: "g1", MessageID: "m2"}
		_, err := reg.Open(ctx, key, target, SampleQuiz(), deadline)
		require.NoError(t, err)

		already, count, err := reg.RecordParticipant(ctx, key, "u1")
		require.NoError(t, err)
		assert.False(t, already)
		assert.Equal(t, 1, count)

		for i := 0; i < 3; i++ {
			already, count, err = reg.RecordParticipant(ctx, key, "u1")
			require.NoError(t, err)
			assert.True(t, already)
			assert.Equal(t, 1, count)
		}

		s, ok, err := reg.Get(ctx, key)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []string{"u1"}, s.Participants)
	})

	t.Run("ConcurrentAnswersExactlyOneWins", func(t *testing.T) {
		reg := newRegistry(t)
		key := domain.SessionKey{ScopeID: "g1", MessageID: "m3"}
		_, err := reg.Open(ctx, key, target, SampleQuiz(), deadline)
		require.NoError(t, err)

		const users, attempts = 5, 20
		var wins [users]atomic.Int32
		var wg sync.WaitGroup
		for u := 0; u < users; u++ {
			for i := 0; i < attempts; i++ {
				wg.Add(1)
				go func(u int) {
					defer wg.Done()
					already, _, err := reg.RecordParticipant(ctx, key, fmt.Sprintf("u%d", u))
					if err == nil && !already {
						wins[u].Add(1)
					}
				}(u)
			}
		}
		wg.Wait()

		for u := range wins {
			assert.Equal(t, int32(1), wins[u].Load(), "user u%d", u)
		}
		s, _, err := reg.Get(ctx, key)
		require.NoError(t, err)
		assert.Len(t, s.Participants, users)
	})

	t.Run("CloseExactlyOnce", func(t *testing.T) {
		reg := newRegistry(t)
		key := domain.SessionKey{ScopeID: "g1", MessageID: "m4"}
		_, err := reg.Open(ctx, key, target, SampleQuiz(), deadline)
		require.NoError(t, err)
		_, _, err = reg.RecordParticipant(ctx, key, "u1")
		require.NoError(t, err)

		closed, err := reg.Close(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, domain.SessionClosed, closed.Status)
		assert.Equal(t, []string{"u1"}, closed.Participants)

		for i := 0; i < 3; i++ {
			_, err = reg.Close(ctx, key)
			assert.ErrorIs(t, err, domain.ErrAlreadyClosed)
		}

		_, _, err = reg.RecordParticipant(ctx, key, "u2")
		assert.ErrorIs(t, err, domain.ErrSessionNotOpen, "closed sessions accept no participants")
	})

	t.Run("ConcurrentCloseOneWinner", func(t *testing.T) {
		reg := newRegistry(t)
		key := domain.SessionKey{ScopeID: "g1", MessageID: "m5"}
		_, err := reg.Open(ctx, key, target, SampleQuiz(), deadline)
		require.NoError(t, err)

		var winners atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := reg.Close(ctx, key); err == nil {
					winners.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), winners.Load())
	})

	t.Run("EvictOnlyAfterClose", func(t *testing.T) {
		reg := newRegistry(t)
		key := domain.SessionKey{ScopeID: "g1", MessageID: "m6"}
		_, err := reg.Open(ctx, key, target, SampleQuiz(), deadline)
		require.NoError(t, err)

		assert.ErrorIs(t, reg.Evict(ctx, key), domain.ErrSessionStillOpen)

		_, err = reg.Close(ctx, key)
		require.NoError(t, err)
		require.NoError(t, reg.Evict(ctx, key))

		_, ok, err := reg.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok)

		_, _, err = reg.RecordParticipant(ctx, key, "u1")
		assert.ErrorIs(t, err, domain.ErrSessionNotOpen)

		// No tombstone survives eviction.
		_, err = reg.Close(ctx, key)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("ReopenAfterEvict", func(t *testing.T) {
		reg := newRegistry(t)
		key := domain.SessionKey{ScopeID: "g1", MessageID: "m7"}
		_, err := reg.Open(ctx, key, target, SampleQuiz(), deadline)
		require.NoError(t, err)
		_, _, err = reg.RecordParticipant(ctx, key, "u1")
		require.NoError(t, err)
		_, err = reg.Close(ctx, key)
		require.NoError(t, err)
		require.NoError(t, reg.Evict(ctx, key))

		_, err = reg.Open(ctx, key, target, SampleQuiz(), deadline)
		require.NoError(t, err)
		already, _, err := reg.RecordParticipant(ctx, key, "u1")
		require.NoError(t, err)
		assert.False(t, already, "a fresh session starts with no participants")
	})
}
