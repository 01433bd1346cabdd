package domain

import "errors"

var (
	// ErrAttemptNotFound is returned when the attempt id does not exist.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrForbidden is returned when the caller does not own the attempt.
	ErrForbidden = errors.New("caller does not own attempt")
	// ErrValidation is returned for malformed input, rejected before any mutation.
	ErrValidation = errors.New("invalid request")
	// ErrEntryNotFound is returned when no leaderboard entry exists yet.
	ErrEntryNotFound = errors.New("leaderboard entry not found")
	// ErrProgressNotFound is returned when a user has no progress row yet.
	ErrProgressNotFound = errors.New("user progress not found")
)
