package repository

import "errors"

// Sentinel kinds for analytics store errors.
var (
	ErrNotFound        = errors.New("snapshot not found")
	ErrInvalidLimit    = errors.New("invalid limit")
	ErrInvalidSnapshot = errors.New("invalid snapshot")
	ErrStoreClosed     = errors.New("analytics store closed")
)
