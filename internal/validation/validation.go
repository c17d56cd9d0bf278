// Package validation wraps go-playground/validator so failures come back as
// models.FieldErrors keyed by JSON field name.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"storefront/internal/models"
)

// New returns a validator that understands decimal.Decimal and reports JSON names.
func New() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	return v
}

// Struct validates s and converts failures to models.FieldErrors.
func Struct(v *validator.Validate, s interface{}) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("%w: %v", models.ErrValidation, err)
	}

	fieldErrs := models.FieldErrors{}
	for _, e := range validationErrors {
		fieldErrs[e.Field()] = message(e)
	}
	return fieldErrs
}

func message(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "gte":
		return "must be greater than or equal to " + e.Param()
	case "gt":
		return "must be greater than " + e.Param()
	case "lte":
		return "must be less than or equal to " + e.Param()
	case "min":
		return "must be at least " + e.Param() + " characters"
	case "max":
		return "must be at most " + e.Param() + " characters"
	case "email":
		return "must be a valid email address"
	}
	return fmt.Sprintf("failed on the '%s' tag", e.Tag())
}
