package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapDeclaredType(t *testing.T) {
	tests := []struct {
		declared string
		want     FieldType
	}{
		{"int(11)", FieldTypeInteger},
		{"INT(11) unsigned", FieldTypeInteger},
		{"bigint(20)", FieldTypeInteger},
		{"smallint(6)", FieldTypeInteger},
		{"mediumint(9)", FieldTypeInteger},
		{"tinyint(4)", FieldTypeInteger},
		{"tinyint(1)", FieldTypeBoolean},
		{"TINYINT(1)", FieldTypeBoolean},
		{"decimal(10,2)", FieldTypeFloat},
		{"numeric(8,3)", FieldTypeFloat},
		{"float", FieldTypeFloat},
		{"double", FieldTypeFloat},
		{"datetime", FieldTypeDateTime},
		{"datetime(6)", FieldTypeDateTime},
		{"timestamp", FieldTypeDateTime},
		{"date", FieldTypeDate},
		{"time", FieldTypeTime},
		{"time(3)", FieldTypeTime},
		{"json", FieldTypeJSON},
		{"varchar(255)", FieldTypeString},
		{"text", FieldTypeString},
		{"blob", FieldTypeString},
		{"enum('a','b')", FieldTypeString},
		{"char(36)", FieldTypeString},
	}

	for _, tt := range tests {
		t.Run(tt.declared, func(t *testing.T) {
			assert.Equal(t, tt.want, MapDeclaredType(tt.declared))
		})
	}
}

func TestMapColumns(t *testing.T) {
	def := "0"
	columns := []Column{
		{Name: "id", DeclaredType: "int(11)", Nullable: false, Key: "PRI"},
		{Name: "active", DeclaredType: "tinyint(1)", Nullable: false, Default: &def},
		{Name: "note", DeclaredType: "varchar(255)", Nullable: true},
	}

	fields := MapColumns(columns)

	assert.Len(t, fields, 3)

	assert.Equal(t, "id", fields[0].Name)
	assert.Equal(t, FieldTypeInteger, fields[0].Type)
	assert.True(t, fields[0].PrimaryKey)
	assert.False(t, fields[0].Nullable)

	assert.Equal(t, FieldTypeBoolean, fields[1].Type)
	assert.False(t, fields[1].PrimaryKey)
	if assert.NotNil(t, fields[1].Default) {
		assert.Equal(t, "0", *fields[1].Default)
	}

	assert.Equal(t, FieldTypeString, fields[2].Type)
	assert.True(t, fields[2].Nullable)
	assert.Nil(t, fields[2].Default)
}
