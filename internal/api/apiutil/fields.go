package apiutil

import (
	"strconv"
	"strings"
)

func ParseNonNegativeInt64Field(raw string, field string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, FieldError{Field: field, Reason: "is required"}
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value < 0 {
		return 0, FieldError{Field: field, Reason: "must be 0 or greater"}
	}
	return value, nil
}

func ParsePositiveInt64Field(raw string, field string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, FieldError{Field: field, Reason: "is required"}
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value <= 0 {
		return 0, FieldError{Field: field, Reason: "must be greater than 0"}
	}
	return value, nil
}
