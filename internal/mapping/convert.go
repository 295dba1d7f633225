package mapping

import (
	"fmt"
	"time"

	"crudgate/internal/metadata"
)

// Preferences supplies the per-user formats used to parse inbound date and
// datetime strings.
type Preferences interface {
	DateFormat() string
	DateTimeFormat() string
}

// DefaultPreferences uses ISO-style layouts.
type DefaultPreferences struct{}

func (DefaultPreferences) DateFormat() string     { return "2006-01-02" }
func (DefaultPreferences) DateTimeFormat() string { return "2006-01-02 15:04:05" }

// Truthy implements the boolean coercion table: true, 1, "1", "on" and
// "true" are true, everything else is false.
func Truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case int:
		return b == 1
	case int64:
		return b == 1
	case float64:
		return b == 1
	case string:
		return b == "1" || b == "on" || b == "true"
	}
	return false
}

// ConvertScalar coerces a payload value to the representation a field
// stores. Empty date strings become nil; a string that does not match the
// user's format is a descriptive error.
func ConvertScalar(field *metadata.Field, v any, prefs Preferences) (any, error) {
	switch field.Type {
	case "boolean":
		return Truthy(v), nil
	case "date":
		return parseTemporal(field, v, prefs.DateFormat())
	case "datetime", "timestamp":
		return parseTemporal(field, v, prefs.DateTimeFormat())
	}
	return v, nil
}

func parseTemporal(field *metadata.Field, v any, layout string) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return t, nil
	case *time.Time:
		return t, nil
	case string:
		if t == "" {
			return nil, nil
		}
		parsed, err := time.Parse(layout, t)
		if err != nil {
			return nil, fmt.Errorf("value %q of field %q does not match format %q", t, field.Name, layout)
		}
		return parsed, nil
	}
	return nil, fmt.Errorf("field %q: cannot interpret %T as a date", field.Name, v)
}

// IsEmptyString reports whether v is the empty string, which numeric
// fields treat as "not provided".
func IsEmptyString(v any) bool {
	s, ok := v.(string)
	return ok && s == ""
}
