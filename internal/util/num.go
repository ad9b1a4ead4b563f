package util

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	reThousandDot   = regexp.MustCompile(`^\d{1,3}(?:\.\d{3})+$`)
	reThousandComma = regexp.MustCompile(`^\d{1,3}(?:,\d{3})+$`)
)

// ParseFloat coerces a loosely typed OCR value into a float. Accepts
// numbers, and strings with thousand separators or a decimal comma.
// Anything unusable yields (0, false).
func ParseFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case nil:
		return 0, false
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		norm := NormalizeNumericToken(v)
		if norm == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(norm, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

// NormalizeNumericToken strips spaces and resolves "1.000" / "1,000" /
// "1,5" ambiguity the way a human reading an invoice would.
func NormalizeNumericToken(token string) string {
	compact := strings.ReplaceAll(token, " ", "")
	compact = strings.ReplaceAll(compact, " ", "")
	if reThousandDot.MatchString(compact) {
		return strings.ReplaceAll(compact, ".", "")
	}
	if reThousandComma.MatchString(compact) {
		return strings.ReplaceAll(compact, ",", "")
	}
	if strings.Contains(compact, ",") && !strings.Contains(compact, ".") {
		return strings.ReplaceAll(compact, ",", ".")
	}
	return compact
}
