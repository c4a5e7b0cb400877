package core

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"hrdpswx/internal/types"
)

// Validator wraps go-playground/validator for request-scoped struct
// validation (e.g., threshold parameters). Config validation uses the
// library directly at startup; this wrapper adds AppError mapping for the
// request path.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a new Validator.
func NewValidator(logger *slog.Logger) *Validator {
	return &Validator{
		validate: validator.New(),
		logger:   logger,
	}
}

// ValidateStruct validates the given struct against its `validate` tags.
// On failure it returns a *types.AppError with one detail entry per failed
// field, suitable for direct use with core.Error.
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		// InvalidValidationError: the caller passed a non-struct.
		return types.NewAppError(types.ErrCodeInternalUnexpected, "validation failed", err)
	}

	details := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		details[strings.ToLower(fe.Field())] = "failed constraint: " + fe.Tag()
	}

	return types.NewAppErrorWithDetails(
		types.ErrCodeValidationThresholdRange,
		"one or more parameters are out of range",
		err,
		details,
	)
}
