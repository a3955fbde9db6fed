package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 5*time.Minute, cfg.QuizTimeout())
	assert.Equal(t, 9, cfg.Schedule.DefaultHour)
	assert.Equal(t, "UTC", cfg.Schedule.DefaultTimezone)
	assert.True(t, cfg.Schedule.Dedupe)
	assert.Equal(t, 10, cfg.Leaderboard.Limit)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server:
  port: "9090"
store:
  driver: sqlite
  dsn: /tmp/quiz.db
quiz:
  timeout: 3
schedule:
  dedupe: false
`)
	t.Setenv("QUIZ_TIMEOUT_MINUTES", "7")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 7*time.Minute, cfg.QuizTimeout())
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.False(t, cfg.Schedule.Dedupe)
	// untouched keys keep their defaults
	assert.Equal(t, 9, cfg.Schedule.DefaultHour)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown driver":  "store:\n  driver: mongo\n",
		"sqlite no dsn":   "store:\n  driver: sqlite\n",
		"postgres no url": "store:\n  driver: postgres\n",
		"zero timeout":    "quiz:\n  timeout: 0\n",
		"negative max":    "quiz:\n  max_responses: -1\n",
		"malformed yaml":  "server: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, "config.yaml", body))
			assert.Error(t, err)
		})
	}
}

func TestPostgresURLFallsBackToDSN(t *testing.T) {
	cfg, err := Load(writeFile(t, "config.yaml", "store:\n  driver: postgres\n  dsn: postgres://quiz@db/quiz\n"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://quiz@db/quiz", cfg.PostgresURL())
}

func TestLoadDotEnv(t *testing.T) {
	path := writeFile(t, ".env", "QUIZ_DOTENV_PROBE=loaded\n")
	t.Setenv("QUIZ_DOTENV_PROBE", "")
	require.NoError(t, os.Unsetenv("QUIZ_DOTENV_PROBE"))

	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "absent.env"), path))
	assert.Equal(t, "loaded", os.Getenv("QUIZ_DOTENV_PROBE"))
}

func TestTTLDuration(t *testing.T) {
	assert.Equal(t, time.Minute, TTLDuration("", time.Minute))
	assert.Equal(t, 30*time.Second, TTLDuration("30s", time.Minute))
	assert.Equal(t, time.Minute, TTLDuration("soon", time.Minute))
}

func TestLoadQuizBank(t *testing.T) {
	quizzes, err := LoadQuizBank(filepath.Join("..", "..", "config", "quizzes.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, quizzes)
	assert.Equal(t, "capital-france", quizzes[0].ID)
	assert.True(t, quizzes[0].IsCorrect("a"))

	_, err = LoadQuizBank(writeFile(t, "bad.yaml", `
quizzes:
  - question: Pick one
    type: multiple_choice
    options: [A, B]
    correct_answer: D
`))
	assert.ErrorContains(t, err, "outside")
}
