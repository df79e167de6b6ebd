package service

import (
	"regexp"
	"strings"

	"github.com/paulpriyanshu/coryfi-main2-sub003/internal/domain"
)

var (
	whitespaceRegex   = regexp.MustCompile(`\s+`)
	attributeKeyRegex = regexp.MustCompile(`[^a-z0-9_]+`)
)

// sanitizeString collapses whitespace and trims the result.
func sanitizeString(value string) string {
	value = whitespaceRegex.ReplaceAllString(value, " ")
	return strings.TrimSpace(value)
}

// normalizeAttributes lowercases keys into snake_case and drops empty entries.
func normalizeAttributes(attrs map[string]string) map[string]string {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		key := strings.ToLower(sanitizeString(k))
		key = strings.Trim(attributeKeyRegex.ReplaceAllString(key, "_"), "_")
		value := sanitizeString(v)
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	return out
}

// normalizeConnectionType maps free-form input onto the known connection types.
func normalizeConnectionType(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", domain.ConnectionDirect:
		return domain.ConnectionDirect
	case domain.ConnectionInferred:
		return domain.ConnectionInferred
	default:
		return ""
	}
}

func clampFloat(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
