package http

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/example/workorder-scheduler/internal/application"
)

// newValidator returns a validator that reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// validateRequest runs struct validation and converts failures into an
// application.ValidationError keyed by JSON path, e.g.
// "overlapping_work_orders[0].id".
func validateRequest(v *validator.Validate, req any) error {
	err := v.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	vErr := &application.ValidationError{FieldErrors: make(map[string]string, len(fieldErrs))}
	for _, fe := range fieldErrs {
		vErr.FieldErrors[fieldPath(fe)] = fieldMessage(fe)
	}
	return vErr
}

func fieldPath(fe validator.FieldError) string {
	namespace := fe.Namespace()
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at least %s item(s)", fe.Param())
		}
		return "must be at least " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	}
	return fmt.Sprintf("failed the %q rule", fe.Tag())
}
