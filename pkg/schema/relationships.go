package schema

import (
	"fmt"
	"reflect"
)

// ParseRelationships extracts relationship metadata from struct fields.
func (p *Parser) ParseRelationships(modelType reflect.Type, table *TableMetadata) error {
	for modelType.Kind() == reflect.Pointer {
		modelType = modelType.Elem()
	}
	if modelType.Kind() != reflect.Struct {
		return fmt.Errorf("model must be a struct")
	}

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
		if err != nil || !isRelationshipTag(tagOpts) {
			continue
		}
		rel, err := parseRelationship(field, tagOpts, table)
		if err != nil {
			return fmt.Errorf("failed to parse relationship for field %s: %w", field.Name, err)
		}
		table.Relationships = append(table.Relationships, *rel)
	}
	return nil
}

// parseRelationship parses a relationship from a struct field.
func parseRelationship(field reflect.StructField, opts *TagOptions, sourceTable *TableMetadata) (*RelationshipMetadata, error) {
	rel := &RelationshipMetadata{
		SourceTable: sourceTable.Name,
		SourceField: field.Name,
	}

	switch {
	case opts.Has("belongsTo"):
		rel.Type = BelongsTo
	case opts.Has("hasOne"):
		rel.Type = HasOne
	case opts.Has("hasMany"):
		rel.Type = HasMany
	case opts.Has("manyToMany"):
		rel.Type = ManyToMany
	default:
		return nil, fmt.Errorf("unknown relationship type")
	}

	rel.ForeignKey = opts.Get("foreignKey")
	rel.References = opts.Get("references")

	// Target type comes from the field type itself.
	fieldType := field.Type
	if fieldType.Kind() == reflect.Slice {
		if rel.ToOne() {
			return nil, fmt.Errorf("%s relationship cannot use a slice field", rel.Type)
		}
		fieldType = fieldType.Elem()
	} else if !rel.ToOne() {
		return nil, fmt.Errorf("%s relationship requires a slice field", rel.Type)
	}
	for fieldType.Kind() == reflect.Pointer {
		fieldType = fieldType.Elem()
	}
	if fieldType.Kind() != reflect.Struct {
		return nil, fmt.Errorf("relationship target must be a struct, got %s", fieldType.Kind())
	}
	rel.TargetType = fieldType
	rel.TargetTable = extractTableName(fieldType)

	if rel.Type == ManyToMany {
		rel.JoinTable = opts.Get("joinTable")
		if rel.JoinTable == "" {
			rel.JoinTable = generateJoinTableName(sourceTable.Name, rel.TargetTable)
		}
		rel.TargetKey = opts.Get("targetKey")
		if rel.TargetKey == "" {
			rel.TargetKey = toSnakeCase(fieldType.Name()) + "_id"
		}
	}

	// Default foreign key: on the source for belongsTo, on the target
	// (or join table) otherwise.
	if rel.ForeignKey == "" {
		switch rel.Type {
		case BelongsTo:
			rel.ForeignKey = toSnakeCase(fieldType.Name()) + "_id"
		default:
			rel.ForeignKey = toSnakeCase(sourceTable.GoType.Name()) + "_id"
		}
	}
	if rel.References == "" {
		rel.References = "id"
	}
	return rel, nil
}

// generateJoinTableName derives a join table name from the two sides,
// sorted alphabetically for consistency.
func generateJoinTableName(table1, table2 string) string {
	if table1 > table2 {
		table1, table2 = table2, table1
	}
	return table1 + "_" + table2
}
