package core

import (
	"errors"
	"net/http"
	"testing"

	"listwright/internal/types"
)

type validatorFixture struct {
	PropertyType string `json:"property_type" validate:"required"`
	Price        int64  `json:"price" validate:"required,gt=0"`
	Mode         string `json:"mode" validate:"omitempty,oneof=subscription payment"`
}

func TestValidateStruct_Valid(t *testing.T) {
	v := NewValidator(nil)
	err := v.ValidateStruct(validatorFixture{PropertyType: "condo", Price: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateStruct_MissingRequired(t *testing.T) {
	v := NewValidator(nil)
	err := v.ValidateStruct(validatorFixture{Price: 100})
	if err == nil {
		t.Fatal("expected validation error")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeValidationMissingField {
		t.Errorf("code = %q, want %q", appErr.Code, types.ErrCodeValidationMissingField)
	}
	if appErr.HTTPStatus() != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", appErr.HTTPStatus())
	}
	// Field names in details use the json tag.
	if _, ok := appErr.Details["property_type"]; !ok {
		t.Errorf("details should name property_type, got %v", appErr.Details)
	}
}

func TestValidateStruct_InvalidValue(t *testing.T) {
	v := NewValidator(nil)
	err := v.ValidateStruct(validatorFixture{PropertyType: "condo", Price: 100, Mode: "donation"})
	if err == nil {
		t.Fatal("expected validation error")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeValidationInvalidField {
		t.Errorf("code = %q, want %q", appErr.Code, types.ErrCodeValidationInvalidField)
	}
}
