// Package schema defines table metadata descriptors for external databases
// and the mapping from declared column types to semantic field types.
package schema

import "time"

// FieldType is the semantic type a column maps to in a derived collection.
type FieldType string

const (
	FieldTypeInteger  FieldType = "integer"
	FieldTypeFloat    FieldType = "float"
	FieldTypeBoolean  FieldType = "boolean"
	FieldTypeDateTime FieldType = "datetime"
	FieldTypeDate     FieldType = "date"
	FieldTypeTime     FieldType = "time"
	FieldTypeJSON     FieldType = "json"
	FieldTypeString   FieldType = "string"
)

// Column describes one column of an external table as reported by the
// database's metadata catalog.
type Column struct {
	Name         string  `json:"name"`
	DeclaredType string  `json:"declared_type"`
	Nullable     bool    `json:"nullable"`
	Key          string  `json:"key"` // PRI, UNI, MUL or empty
	Default      *string `json:"default,omitempty"`
}

// IsPrimaryKey reports whether the column participates in the primary key.
func (c Column) IsPrimaryKey() bool {
	return c.Key == "PRI"
}

// Index describes one index of an external table.
type Index struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique"`
}

// TableSchema is the full derived metadata for one table.
type TableSchema struct {
	Table      string    `json:"table"`
	Columns    []Column  `json:"columns"`
	Indexes    []Index   `json:"indexes"`
	CapturedAt time.Time `json:"captured_at"`
}

// Field is one mapped field of a derived collection.
type Field struct {
	Name       string    `json:"name"`
	Type       FieldType `json:"type"`
	Nullable   bool      `json:"nullable"`
	Default    *string   `json:"default,omitempty"`
	PrimaryKey bool      `json:"primary_key"`
}

// DerivedCollection is the mapped field set produced from a table's schema.
type DerivedCollection struct {
	Name        string  `json:"name"`
	SourceTable string  `json:"source_table"`
	Fields      []Field `json:"fields"`
}

// MapColumns converts table columns into derived collection fields using
// the declared-type mapping rules.
func MapColumns(columns []Column) []Field {
	fields := make([]Field, 0, len(columns))
	for _, col := range columns {
		fields = append(fields, Field{
			Name:       col.Name,
			Type:       MapDeclaredType(col.DeclaredType),
			Nullable:   col.Nullable,
			Default:    col.Default,
			PrimaryKey: col.IsPrimaryKey(),
		})
	}
	return fields
}
