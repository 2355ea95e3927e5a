// Package validator checks request payloads: struct tags through gin's binding
// validator, and whole requests against the OpenAPI document.
package validator

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"

	"homework-helper/backend/pkg/errors"

	"github.com/gin-gonic/gin/binding"
	playground "github.com/go-playground/validator/v10"
)

// Field names are reported by their json tag, for gin's binding as well as Struct
func init() {
	engine, ok := binding.Validator.Engine().(*playground.Validate)
	if !ok {
		return
	}
	engine.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// Struct validates v's binding tags
func Struct(v any) error {
	return binding.Validator.ValidateStruct(v)
}

// FieldErrors converts validation failures into field errors, or nil when err
// is not one
func FieldErrors(err error) []errors.FieldError {
	var verrs playground.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return nil
	}

	out := make([]errors.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, errors.FieldError{Field: fe.Field(), Message: describe(fe)})
	}
	return out
}

func describe(fe playground.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s failed the %s check", fe.Field(), fe.Tag())
}
