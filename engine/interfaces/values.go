package interfaces

import (
	"fmt"
	"strings"
)

// IsBlankValue reports whether a dynamically typed cell value carries no
// content: nil, or a string form that is empty or all whitespace.
func IsBlankValue(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

// ValueString renders a cell value for key building and comparisons.
// Numeric values print without a trailing ".0" so 3 and 3.0 compare equal.
func ValueString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	case bool:
		return fmt.Sprintf("%t", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
