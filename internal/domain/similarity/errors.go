package similarity

import "errors"

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrIndexUnavailable  = errors.New("similarity index unavailable")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrInvalidQuery      = errors.New("invalid similarity query")
	ErrDuplicateID       = errors.New("duplicate entry id")
)
