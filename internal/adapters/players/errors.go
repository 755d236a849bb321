package players

import "errors"

// Sentinel kinds for player store errors.
var (
	ErrNotFound      = errors.New("player not found")
	ErrInvalidPlayer = errors.New("invalid player")
	ErrPublish       = errors.New("publish change notification")
)
