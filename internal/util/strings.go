// Package util provides shared utility functions used across the codebase.
package util

import (
	"fmt"
	"strings"
)

// SplitCSV splits a comma-separated string into a slice, trimming whitespace.
// Returns nil for empty strings.
func SplitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var result []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}

// ParsePairs parses a comma-separated list of key=value pairs,
// e.g. "VendorID=int64, extra=float64". Keys keep their case.
// Returns nil for empty input.
func ParsePairs(s string) (map[string]string, error) {
	parts := SplitCSV(s)
	if len(parts) == 0 {
		return nil, nil
	}
	result := make(map[string]string, len(parts))
	for _, part := range parts {
		key, value, ok := strings.Cut(part, "=")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if !ok || key == "" || value == "" {
			return nil, fmt.Errorf("invalid pair %q (want key=value)", part)
		}
		result[key] = value
	}
	return result, nil
}
