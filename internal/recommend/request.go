package recommend

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/okian/gameradar/internal/domain/model"
)

// Request asks for players similar to SourceID. Zero Limit and a nil
// SimilarityThreshold take the service defaults.
type Request struct {
	SourceID            string   `validate:"required,max=128"`
	Limit               int      `validate:"gte=0"`
	Regions             []string `validate:"max=32,dive,required,max=16"`
	Game                string   `validate:"max=64"`
	MinActivity         int      `validate:"gte=0"`
	SimilarityThreshold *float64 `validate:"omitempty,gte=-1,lte=1"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// validateRequest checks struct rules, then the configured result cap.
func validateRequest(req *Request, maxLimit int) error {
	if err := getValidator().Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("%w: %w", ErrValidation, err)
		}
		msgs := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			msgs = append(msgs, describe(fe))
		}
		return fmt.Errorf("%w: %s", ErrValidation, strings.Join(msgs, "; "))
	}
	if req.Limit > maxLimit {
		return fmt.Errorf("%w: limit must be at most %d", ErrValidation, maxLimit)
	}
	return nil
}

func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

func normalizeRegions(regions []string) []string {
	if len(regions) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(regions))
	out := make([]string, 0, len(regions))
	for _, r := range regions {
		r = model.NormalizeRegion(r)
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}
