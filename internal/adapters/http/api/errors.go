package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/okian/gameradar/internal/adapters/players"
	"github.com/okian/gameradar/internal/adapters/repository"
	"github.com/okian/gameradar/internal/domain/scoring"
	"github.com/okian/gameradar/internal/pipeline"
	"github.com/okian/gameradar/internal/recommend"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest  = errors.New("bad request")
	ErrNotFound    = errors.New("not found")
	ErrUnavailable = errors.New("service unavailable")
)

// Error is an API failure tagged with the operation that produced it. Kind
// selects the status code; Err carries the cause.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil:
		return e.Err.Error()
	case e.Kind != nil:
		return e.Kind.Error()
	default:
		return e.Op
	}
}

// Unwrap exposes both the kind and the cause to errors.Is.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// NewKind returns an error of the given kind with no further cause.
func NewKind(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// Wrap tags err with op. The status is derived from err itself.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// WrapKind tags err with op and an explicit kind.
func WrapKind(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// classify maps an error onto a status code and a stable error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, recommend.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, recommend.ErrValidation),
		errors.Is(err, scoring.ErrInvalidInput),
		errors.Is(err, players.ErrInvalidPlayer),
		errors.Is(err, repository.ErrInvalidLimit):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, ErrNotFound),
		errors.Is(err, recommend.ErrNotFound),
		errors.Is(err, repository.ErrNotFound),
		errors.Is(err, players.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrUnavailable),
		errors.Is(err, recommend.ErrServiceUnavailable),
		errors.Is(err, repository.ErrStoreClosed),
		errors.Is(err, pipeline.ErrRebuild):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
