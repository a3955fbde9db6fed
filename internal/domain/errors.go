package domain

import "errors"

var (
	// ErrNoQuizAvailable is returned when the quiz bank has nothing to offer.
	ErrNoQuizAvailable = errors.New("no quiz available")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrSessionNotFound is returned when no session exists for a key.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrSessionNotOpen is returned when a session is absent or already closed.
	ErrSessionNotOpen = errors.New("quiz session not open")
	// ErrDuplicateSession is returned when a key already maps to an open session.
	ErrDuplicateSession = errors.New("quiz session already open")
	// ErrAlreadyClosed is returned by a second close of the same session.
	ErrAlreadyClosed = errors.New("quiz session already closed")
	// ErrSessionStillOpen is returned when evicting a session that was never closed.
	ErrSessionStillOpen = errors.New("quiz session still open")
	// ErrInvalidTimezone is returned for an unknown IANA zone name.
	ErrInvalidTimezone = errors.New("invalid timezone")
	// ErrInvalidSchedule is returned for out-of-range schedule fields.
	ErrInvalidSchedule = errors.New("invalid schedule")
	// ErrGuildNotRegistered is returned when a guild has no active schedule.
	ErrGuildNotRegistered = errors.New("guild not registered")
	// ErrStoreUnavailable wraps persistence failures during a single operation.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrNotElevated is returned when an administrative action lacks the elevated flag.
	ErrNotElevated = errors.New("elevated permissions required")
)

// Notice translates an error into a short message safe to show to chat users.
func Notice(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoQuizAvailable):
		return "❌ No quizzes available at the moment!"
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrSessionNotOpen), errors.Is(err, ErrAlreadyClosed):
		return "❌ This quiz is no longer active."
	case errors.Is(err, ErrInvalidTimezone):
		return "❌ Invalid timezone! Please use a valid timezone (e.g., America/New_York, Europe/London)"
	case errors.Is(err, ErrInvalidSchedule):
		return "❌ Invalid schedule! Hour must be 0-23 and minute 0-59."
	case errors.Is(err, ErrGuildNotRegistered):
		return "❌ No active quiz channel is registered for this server!"
	case errors.Is(err, ErrNotElevated):
		return "❌ You need administrator permissions to use this command!"
	default:
		return "❌ An error occurred while processing your request."
	}
}
