package core

import (
	"errors"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"listwright/internal/types"
)

// Validator wraps go-playground/validator so handlers get structured
// AppErrors instead of raw validation errors. Field names in error details
// use the json tag, matching what the client actually sent.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a Validator with json-tag field naming.
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	return &Validator{
		validate: v,
		logger:   logger,
	}
}

// ValidateStruct validates dst against its struct tags. It returns nil on
// success, or a *types.AppError describing the first failing field:
// "required" failures map to validation_missing_required_field, everything
// else to validation_invalid_field. All failing fields are listed in the
// error details.
func (v *Validator) ValidateStruct(dst interface{}) error {
	err := v.validate.Struct(dst)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		// InvalidValidationError: the caller passed a non-struct.
		return types.NewAppError(types.ErrCodeInternalUnexpected, "validation failed", err)
	}

	fields := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = failureReason(fe)
	}

	first := verrs[0]
	code := types.ErrCodeValidationInvalidField
	message := "invalid value for field: " + first.Field()
	if first.Tag() == "required" {
		code = types.ErrCodeValidationMissingField
		message = "missing required field: " + first.Field()
	}

	return types.NewAppErrorWithDetails(code, message, nil, fields)
}

// failureReason renders a short human-readable reason for a field failure.
func failureReason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "url":
		return "must be a valid URL"
	default:
		return "failed validation: " + fe.Tag()
	}
}
