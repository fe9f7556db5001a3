// Package schema extracts table metadata from tagged Go structs.
package schema

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

const (
	// StructTagKey is the key used in struct tags (e.g., `co:"..."`).
	StructTagKey = "co"
)

// TableNamer lets a model override the derived table name.
type TableNamer interface {
	TableName() string
}

// Parser parses struct definitions to extract table metadata.
type Parser struct {
	cache map[reflect.Type]*TableMetadata
}

// NewParser creates a new Parser instance.
func NewParser() *Parser {
	return &Parser{
		cache: make(map[reflect.Type]*TableMetadata),
	}
}

// Parse extracts TableMetadata from a Go struct type.
func (p *Parser) Parse(modelType reflect.Type) (*TableMetadata, error) {
	for modelType.Kind() == reflect.Pointer {
		modelType = modelType.Elem()
	}
	if modelType.Kind() != reflect.Struct {
		return nil, fmt.Errorf("model must be a struct, got %s", modelType.Kind())
	}
	if cached, ok := p.cache[modelType]; ok {
		return cached, nil
	}
	table := &TableMetadata{
		Name:        extractTableName(modelType),
		GoType:      modelType,
		Columns:     make([]ColumnMetadata, 0),
		ForeignKeys: make([]ForeignKeyMetadata, 0),
		Constraints: make([]ConstraintMetadata, 0),
	}
	position := 0
	for i := 0; i < modelType.NumField(); i++ {
		field := modelType.Field(i)
		if !field.IsExported() {
			continue
		}
		tagValue := field.Tag.Get(StructTagKey)
		if tagValue == "" || tagValue == "-" {
			continue
		}
		tagOpts, err := parseTag(tagValue)
		if err != nil {
			return nil, fmt.Errorf("failed to parse tag for field %s: %w", field.Name, err)
		}
		// Relationship fields carry no column.
		if isRelationshipTag(tagOpts) {
			continue
		}
		column := createColumnMetadata(field, tagOpts, position)
		position++
		if tagOpts.Has("primaryKey") {
			if table.PrimaryKey == nil {
				table.PrimaryKey = &PrimaryKeyMetadata{
					Columns: []string{column.Name},
					Name:    table.Name + "_pkey",
				}
			} else {
				table.PrimaryKey.Columns = append(table.PrimaryKey.Columns, column.Name)
			}
		}
		table.Columns = append(table.Columns, column)
	}

	// UNIQUE columns become named constraints so DDL generation and
	// error reporting can refer to them.
	for _, col := range table.Columns {
		if col.Unique {
			table.Constraints = append(table.Constraints, ConstraintMetadata{
				Name:    fmt.Sprintf("%s_%s_key", table.Name, col.Name),
				Type:    UniqueConstraint,
				Columns: []string{col.Name},
			})
		}
	}

	if err := p.parseForeignKeys(modelType, table); err != nil {
		return nil, fmt.Errorf("failed to parse foreign keys: %w", err)
	}
	if err := p.ParseRelationships(modelType, table); err != nil {
		return nil, err
	}
	p.cache[modelType] = table
	return table, nil
}

// extractTableName returns the model's table name: an explicit
// TableName() method wins, otherwise the struct name in snake_case.
func extractTableName(modelType reflect.Type) string {
	if namer, ok := reflect.New(modelType).Interface().(TableNamer); ok {
		if name := namer.TableName(); name != "" {
			return name
		}
	}
	return toSnakeCase(modelType.Name())
}

// createColumnMetadata creates a ColumnMetadata from a struct field.
func createColumnMetadata(field reflect.StructField, opts *TagOptions, position int) ColumnMetadata {
	column := ColumnMetadata{
		Name:     opts.Name,
		GoField:  field.Name,
		GoType:   field.Type,
		Position: position,
	}
	if sqlType := opts.GetSQLType(); sqlType != "" {
		column.SQLType = sqlType
	} else {
		column.SQLType = goTypeToPostgreSQL(field.Type)
	}
	column.Nullable = !opts.Has("notNull") && !opts.Has("primaryKey")
	if field.Type.Kind() == reflect.Pointer {
		column.Nullable = true
	}
	if defaultVal := opts.Get("default"); defaultVal != "" {
		column.Default = &defaultVal
	}
	column.Unique = opts.Has("unique")
	column.AutoIncrement = opts.Has("serial") || opts.Has("bigserial") || opts.Has("autoIncrement")
	return column
}

// parseForeignKeys extracts fk(table.column) declarations.
func (p *Parser) parseForeignKeys(modelType reflect.Type, table *TableMetadata) error {
	for i := 0; i < modelType.NumField(); i++ {
		field := modelType.Field(i)
		if !field.IsExported() {
			continue
		}
		tagValue := field.Tag.Get(StructTagKey)
		if tagValue == "" || tagValue == "-" {
			continue
		}
		opts, err := parseTag(tagValue)
		if err != nil || isRelationshipTag(opts) {
			continue
		}
		fkStr := opts.Get("fk")
		if fkStr == "" {
			continue
		}
		refTable, refColumn := splitReference(fkStr)
		if refTable == "" || refColumn == "" {
			return fmt.Errorf("invalid fk reference %q on field %s", fkStr, field.Name)
		}
		table.ForeignKeys = append(table.ForeignKeys, ForeignKeyMetadata{
			Name:              fmt.Sprintf("fk_%s_%s_%s", table.Name, opts.Name, refTable),
			Columns:           []string{opts.Name},
			ReferencedTable:   refTable,
			ReferencedColumns: []string{refColumn},
		})
	}
	return nil
}

// splitReference parses "table.column" or "table(column)".
func splitReference(ref string) (string, string) {
	if idx := strings.Index(ref, "("); idx > 0 && strings.HasSuffix(ref, ")") {
		return ref[:idx], ref[idx+1 : len(ref)-1]
	}
	if parts := strings.SplitN(ref, ".", 2); len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", ""
}

// isRelationshipTag checks if tag options indicate a relationship field.
func isRelationshipTag(opts *TagOptions) bool {
	return opts.Has("belongsTo") || opts.Has("hasOne") ||
		opts.Has("hasMany") || opts.Has("manyToMany")
}

// TagOptions represents parsed tag options.
type TagOptions struct {
	Name    string            // Column name (first element), "-" for relationship fields
	Options map[string]string // option -> parenthesized value ("" for flags)
	order   []string
}

// Has reports whether the option is present.
func (o *TagOptions) Has(option string) bool {
	_, ok := o.Options[option]
	return ok
}

// Get returns the option's parenthesized value, or "".
func (o *TagOptions) Get(option string) string {
	return o.Options[option]
}

// sqlTypeNames are the tag options recognized as explicit SQL types.
var sqlTypeNames = []string{
	"varchar", "text", "char",
	"smallint", "integer", "bigint", "bigserial", "serial",
	"numeric", "real", "double precision",
	"boolean", "bool",
	"timestamptz", "timestamp", "date", "interval",
	"bytea",
}

// GetSQLType returns an explicit SQL type from the tag, if any,
// preserving a sized form like varchar(255).
func (o *TagOptions) GetSQLType() string {
	for _, opt := range o.order {
		name := opt
		if idx := strings.Index(opt, "("); idx > 0 {
			name = opt[:idx]
		}
		for _, sqlType := range sqlTypeNames {
			if name == sqlType {
				if v := o.Options[name]; v != "" {
					return fmt.Sprintf("%s(%s)", name, v)
				}
				return name
			}
		}
	}
	return ""
}

// parseTag parses a struct tag value into TagOptions.
// Format: "column_name,option1,option2(value),option3"
func parseTag(tag string) (*TagOptions, error) {
	parts := splitTag(tag)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty tag value")
	}
	opts := &TagOptions{
		Name:    strings.TrimSpace(parts[0]),
		Options: make(map[string]string),
	}
	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		opts.order = append(opts.order, part)
		if idx := strings.Index(part, "("); idx > 0 && strings.HasSuffix(part, ")") {
			opts.Options[part[:idx]] = part[idx+1 : len(part)-1]
		} else {
			opts.Options[part] = ""
		}
	}
	return opts, nil
}

// splitTag splits on commas that are not inside parentheses, so that
// sized types like numeric(10,2) stay intact.
func splitTag(tag string) []string {
	var parts []string
	var buffer strings.Builder
	depth := 0
	for _, r := range tag {
		switch r {
		case '(':
			depth++
			buffer.WriteRune(r)
		case ')':
			depth--
			buffer.WriteRune(r)
		case ',':
			if depth == 0 {
				parts = append(parts, buffer.String())
				buffer.Reset()
			} else {
				buffer.WriteRune(r)
			}
		default:
			buffer.WriteRune(r)
		}
	}
	if buffer.Len() > 0 {
		parts = append(parts, buffer.String())
	}
	return parts
}

// goTypeToPostgreSQL maps a Go type to its PostgreSQL equivalent.
func goTypeToPostgreSQL(t reflect.Type) string {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == reflect.TypeOf(time.Time{}) {
		return "timestamptz"
	}
	switch t.Kind() {
	case reflect.Bool:
		return "boolean"
	case reflect.Int8, reflect.Int16:
		return "smallint"
	case reflect.Int32, reflect.Int:
		return "integer"
	case reflect.Int64:
		return "bigint"
	case reflect.Float32:
		return "real"
	case reflect.Float64:
		return "double precision"
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return "bytea"
		}
	}
	return "text"
}

// toSnakeCase converts PascalCase to snake_case.
func toSnakeCase(s string) string {
	var result strings.Builder
	for i, ch := range s {
		if i > 0 && ch >= 'A' && ch <= 'Z' {
			result.WriteRune('_')
		}
		result.WriteRune(ch)
	}
	return strings.ToLower(result.String())
}
