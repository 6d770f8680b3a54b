package schema

import "strings"

// integerPrefixes covers the MySQL integer family. tinyint(1) is carved out
// first because MySQL uses it as its single-bit boolean encoding.
var integerPrefixes = []string{"tinyint", "smallint", "mediumint", "bigint", "int"}

var floatPrefixes = []string{"decimal", "numeric", "float", "double"}

// MapDeclaredType classifies a declared column type string into a semantic
// field type. Rules are evaluated in priority order because several
// substrings overlap: tinyint(1) before the integer family, datetime and
// timestamp before the bare date/time substring checks.
func MapDeclaredType(declared string) FieldType {
	t := strings.ToLower(strings.TrimSpace(declared))

	if strings.HasPrefix(t, "tinyint(1)") {
		return FieldTypeBoolean
	}
	for _, prefix := range integerPrefixes {
		if strings.HasPrefix(t, prefix) {
			return FieldTypeInteger
		}
	}
	for _, prefix := range floatPrefixes {
		if strings.HasPrefix(t, prefix) {
			return FieldTypeFloat
		}
	}
	if strings.HasPrefix(t, "datetime") || strings.HasPrefix(t, "timestamp") {
		return FieldTypeDateTime
	}
	if strings.Contains(t, "date") {
		return FieldTypeDate
	}
	if strings.Contains(t, "time") {
		return FieldTypeTime
	}
	if strings.Contains(t, "json") {
		return FieldTypeJSON
	}
	return FieldTypeString
}
