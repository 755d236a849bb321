package scoring

import "errors"

// ErrInvalidInput marks scoring input outside its documented domain.
var ErrInvalidInput = errors.New("invalid scoring input")
