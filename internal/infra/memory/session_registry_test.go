package memory

import (
	"testing"

	"guild-quiz-service/internal/app"
	"guild-quiz-service/internal/app/apptest"
)

var _ app.SessionRegistry = (*SessionRegistry)(nil)

func TestSessionRegistryContract(t *testing.T) {
	apptest.RunRegistryContract(t, func(t *testing.T) app.SessionRegistry {
		return NewSessionRegistry()
	})
}
