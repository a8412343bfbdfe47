package rules

import (
	"fmt"
	"strings"

	"gridline/engine/interfaces"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// ParseColumnExpr splits a column expression that may carry a JSON path.
// Example: "requestParameters{$.durationSeconds}" -> "requestParameters",
// "$.durationSeconds", true.
func ParseColumnExpr(expr string) (string, string, bool) {
	openBrace := strings.Index(expr, "{")
	if openBrace == -1 {
		return expr, "", false
	}

	closeBrace := strings.LastIndex(expr, "}")
	if closeBrace == -1 || closeBrace <= openBrace {
		return expr, "", false
	}

	column := strings.TrimSpace(expr[:openBrace])
	pathExpr := strings.TrimSpace(expr[openBrace+1 : closeBrace])

	if column == "" || pathExpr == "" {
		return expr, "", false
	}

	return column, pathExpr, true
}

// CellValue resolves a column expression against a row. Plain expressions
// return the raw cell value; path expressions parse the cell as JSON and
// apply the path. The second return is false when the column is absent or
// the path yields nothing.
func CellValue(row *Row, expr string) (any, bool) {
	column, pathExpr, hasPath := ParseColumnExpr(expr)
	value, ok := lookupField(row, column)
	if !ok {
		return nil, false
	}
	if !hasPath {
		return value, true
	}
	extracted, ok := evaluatePath(value, pathExpr)
	if !ok {
		return nil, false
	}
	return extracted, true
}

// lookupField finds a field case-insensitively, preferring an exact match
func lookupField(row *Row, column string) (any, bool) {
	if row == nil || row.Data == nil {
		return nil, false
	}
	if v, ok := row.Data[column]; ok {
		return v, true
	}
	want := strings.ToLower(strings.TrimSpace(column))
	for k, v := range row.Data {
		if strings.ToLower(strings.TrimSpace(k)) == want {
			return v, true
		}
	}
	return nil, false
}

// evaluatePath extracts a value from JSON cell content using a path
// expression. String cells are parsed as JSON documents; structured cell
// values (maps, slices) are addressed directly.
func evaluatePath(cell any, pathExpr string) (string, bool) {
	if cell == nil || pathExpr == "" {
		return "", false
	}

	var data any
	switch v := cell.(type) {
	case string:
		if v == "" {
			return "", false
		}
		parsed, err := oj.ParseString(v)
		if err != nil {
			return "", false
		}
		data = parsed
	default:
		data = v
	}

	path, err := jp.ParseString(pathExpr)
	if err != nil {
		return "", false
	}

	results := path.Get(data)
	if len(results) == 0 {
		return "", false
	}

	switch v := results[0].(type) {
	case string:
		return v, true
	case nil:
		return "", true
	case map[string]interface{}, []interface{}:
		encoded, err := oj.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v), true
		}
		return string(encoded), true
	default:
		return interfaces.ValueString(v), true
	}
}

// normalizeKeyValue renders a cell value for key comparisons
func normalizeKeyValue(v any, caseSensitive bool) string {
	s := strings.TrimSpace(interfaces.ValueString(v))
	if !caseSensitive {
		s = strings.ToLower(s)
	}
	return s
}

func equalFoldTrim(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
