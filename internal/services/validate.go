package services

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var userNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ValidationError lists the failing field/tag pairs of a request.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, tag := range e.Fields {
		parts = append(parts, field+" "+tag)
	}
	return "invalid request: " + strings.Join(parts, ", ")
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// usernames must survive the @mention tokenizer
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return userNamePattern.MatchString(fl.Field().String())
	})
	return v
}

// check runs struct validation and converts the result into a ValidationError.
func check(v *validator.Validate, req any) error {
	err := v.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[strings.ToLower(fe.Field())] = fe.Tag()
		}
		return &ValidationError{Fields: fields}
	}
	return fmt.Errorf("validate: %w", err)
}
