package recommend

import "errors"

// Sentinel kinds for recommendation errors.
var (
	// ErrValidation marks a malformed request.
	ErrValidation = errors.New("invalid recommendation request")
	// ErrNotFound marks an unknown source player or one without a skill vector.
	ErrNotFound = errors.New("source player not found")
	// ErrServiceUnavailable is returned when neither the index nor the
	// fallback scan could serve the request.
	ErrServiceUnavailable = errors.New("recommendations unavailable")
	// ErrTimeout is returned when the request deadline passed mid-search.
	ErrTimeout = errors.New("recommendation timed out")
)
