// Package validate wraps go-playground/validator with the custom tags used
// by export requests and import options.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// Export formats accepted by the export_format tag.
var exportFormats = []string{"xlsx", "zip"}

var (
	once     sync.Once
	instance *validator.Validate
)

// New returns a validator with the custom tags registered.
func New() *validator.Validate {
	v := validator.New()
	registerCustomValidators(v)
	return v
}

func shared() *validator.Validate {
	once.Do(func() { instance = New() })
	return instance
}

// Struct validates s against its struct tags and flattens the result into
// a single readable error.
func Struct(s any) error {
	err := shared().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("invalid %s: %s", reflect.TypeOf(s).String(), strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Namespace() + " is required"
	case "required_if":
		return fmt.Sprintf("%s is required when %s", fe.Namespace(), fe.Param())
	case "date_not_before":
		return fmt.Sprintf("%s must not be before %s", fe.Namespace(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Namespace(), fe.Param())
	}
	return fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
}

func registerCustomValidators(v *validator.Validate) {
	v.RegisterValidation("selection_mode", validateSelectionMode)
	v.RegisterValidation("export_format", validateExportFormat)
	v.RegisterValidation("date_not_before", validateDateNotBefore)
}

func validateSelectionMode(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "all", "specific":
		return true
	}
	return false
}

func validateExportFormat(fl validator.FieldLevel) bool {
	value := strings.ToLower(fl.Field().String())
	for _, f := range exportFormats {
		if f == value {
			return true
		}
	}
	return false
}

// validateDateNotBefore compares the field with the sibling named by the
// tag parameter. A missing sibling always passes.
func validateDateNotBefore(fl validator.FieldLevel) bool {
	end, ok := asTime(fl.Field())
	if !ok {
		return true
	}
	parent := fl.Parent()
	for parent.Kind() == reflect.Pointer {
		parent = parent.Elem()
	}
	if parent.Kind() != reflect.Struct {
		return false
	}
	start, ok := asTime(parent.FieldByName(fl.Param()))
	if !ok {
		return true
	}
	return !end.Before(start)
}

func asTime(v reflect.Value) (time.Time, bool) {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return time.Time{}, false
		}
		v = v.Elem()
	}
	if !v.IsValid() || !v.CanInterface() {
		return time.Time{}, false
	}
	t, ok := v.Interface().(time.Time)
	return t, ok
}
