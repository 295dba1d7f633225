package metadata

import "fmt"

type Field struct {
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Required  bool     `json:"required,omitempty"`
	Unique    bool     `json:"unique,omitempty"`
	Default   any      `json:"default,omitempty"`
	Nullable  bool     `json:"nullable,omitempty"`
	Enum      []string `json:"enum,omitempty"`
	Precision int      `json:"precision,omitempty"`
}

// PostgresType returns the Postgres DDL type for this field.
func (f Field) PostgresType() string {
	switch f.Type {
	case "string", "text":
		return "TEXT"
	case "int":
		return "INTEGER"
	case "bigint":
		return "BIGINT"
	case "decimal":
		if f.Precision > 0 {
			return fmt.Sprintf("NUMERIC(18,%d)", f.Precision)
		}
		return "NUMERIC"
	case "float":
		return "DOUBLE PRECISION"
	case "boolean":
		return "BOOLEAN"
	case "uuid":
		return "UUID"
	case "timestamp", "datetime":
		return "TIMESTAMPTZ"
	case "date":
		return "DATE"
	case "json":
		return "JSONB"
	default:
		return "TEXT"
	}
}

// IsNumeric reports whether values of this field carry a numeric SQL type.
func (f Field) IsNumeric() bool {
	switch f.Type {
	case "int", "bigint", "decimal", "float":
		return true
	}
	return false
}

// IsTemporal reports whether values of this field carry a date or time type.
func (f Field) IsTemporal() bool {
	switch f.Type {
	case "date", "datetime", "timestamp":
		return true
	}
	return false
}
