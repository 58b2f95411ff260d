package scheduling

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ukydev/fleet-scheduler/internal/conflict"
)

// ValidationError lists the request fields that failed validation, keyed by
// their JSON name.
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + ": " + e.Fields[name]
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

func invalidField(field, reason string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: reason}}
}

// NewValidator returns a validator reporting fields by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateStruct runs v on s and converts failures into a *ValidationError.
func ValidateStruct(v *validator.Validate, s interface{}) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		reason := "failed on " + fe.Tag()
		if fe.Param() != "" {
			reason += "=" + fe.Param()
		}
		fields[fe.Field()] = reason
	}
	return &ValidationError{Fields: fields}
}

// ParseDay accepts "2006-01-02" or RFC 3339 and returns the UTC calendar day.
func ParseDay(s string) (time.Time, error) {
	if t, err := time.Parse(conflict.DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: expected YYYY-MM-DD or RFC 3339", s)
	}
	return conflict.Day(t), nil
}

// parsePeriod parses a required start and optional end for the named fields.
func parsePeriod(startField, start, endField, end string) (conflict.Period, error) {
	s, err := ParseDay(start)
	if err != nil {
		return conflict.Period{}, invalidField(startField, "invalid date")
	}
	var e *time.Time
	if end != "" {
		d, err := ParseDay(end)
		if err != nil {
			return conflict.Period{}, invalidField(endField, "invalid date")
		}
		e = &d
	}
	p, err := conflict.NewPeriod(s, e)
	if err != nil {
		return conflict.Period{}, invalidField(endField, err.Error())
	}
	return p, nil
}
