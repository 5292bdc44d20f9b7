// Package validation wraps go-playground/validator with the rules and error
// messages shared by the service layers.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// HashtagPattern is the accepted form of a suggested hashtag.
var HashtagPattern = regexp.MustCompile(`^#[a-z0-9_]{2,30}$`)

// New returns a validator that reports fields by their JSON name and knows
// the custom "hashtag" rule.
func New() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})

	// Registration only fails for an empty tag or nil func.
	_ = v.RegisterValidation("hashtag", func(fl validator.FieldLevel) bool {
		return HashtagPattern.MatchString(fl.Field().String())
	})

	return v
}

// Fields maps each failing field path to a human-readable message.
// Non-validator errors are reported under the "body" key.
func Fields(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"body": err.Error()}
	}

	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		path := fieldPath(fe)
		if _, exists := out[path]; !exists {
			out[path] = Message(fe)
		}
	}
	return out
}

// Describe flattens a validation error into a single deterministic line.
func Describe(err error) string {
	fields := Fields(err)
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fields[k])
	}
	return strings.Join(parts, "; ")
}

// FirstTag returns the rule that failed first for the given field path, or
// the empty string if that field passed.
func FirstTag(err error, path string) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return ""
	}
	for _, fe := range verrs {
		if fieldPath(fe) == path {
			return fe.Tag()
		}
	}
	return ""
}

// Message renders one field error.
func Message(fe validator.FieldError) string {
	name := fieldPath(fe)
	unit := "characters"
	if k := fe.Kind(); k == reflect.Slice || k == reflect.Array || k == reflect.Map {
		unit = "items"
	}

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", name)
	case "min":
		if isNumber(fe.Kind()) {
			return fmt.Sprintf("%s must be at least %s", name, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s %s", name, fe.Param(), unit)
	case "max":
		if isNumber(fe.Kind()) {
			return fmt.Sprintf("%s must be at most %s", name, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s %s", name, fe.Param(), unit)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", name, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", name, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", name, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "url":
		return fmt.Sprintf("%s must be a valid URL", name)
	case "uuid", "uuid4":
		return fmt.Sprintf("%s must be a valid UUID", name)
	case "hashtag":
		return fmt.Sprintf("%s must match %s", name, HashtagPattern.String())
	default:
		return fmt.Sprintf("%s failed on the '%s' rule", name, fe.Tag())
	}
}

// fieldPath drops the top-level struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
