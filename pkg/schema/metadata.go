package schema

import "reflect"

// TableMetadata describes a mapped entity: its table, columns, keys
// and declared relationships. Relationship entries are metadata only;
// they perform no I/O on their own.
type TableMetadata struct {
	Name          string
	GoType        reflect.Type
	Columns       []ColumnMetadata
	PrimaryKey    *PrimaryKeyMetadata
	ForeignKeys   []ForeignKeyMetadata
	Constraints   []ConstraintMetadata
	Relationships []RelationshipMetadata
}

// ColumnMetadata describes a single mapped column.
type ColumnMetadata struct {
	Name          string
	GoField       string
	GoType        reflect.Type
	SQLType       string
	Position      int
	Nullable      bool
	Unique        bool
	AutoIncrement bool
	Default       *string
}

// PrimaryKeyMetadata describes the primary key constraint.
type PrimaryKeyMetadata struct {
	Name    string
	Columns []string
}

// ForeignKeyMetadata describes a foreign key constraint.
type ForeignKeyMetadata struct {
	Name              string
	Columns           []string
	ReferencedTable   string
	ReferencedColumns []string
}

// ConstraintType identifies a table constraint kind.
type ConstraintType string

const (
	// UniqueConstraint is a UNIQUE constraint.
	UniqueConstraint ConstraintType = "UNIQUE"
	// CheckConstraint is a CHECK constraint.
	CheckConstraint ConstraintType = "CHECK"
)

// ConstraintMetadata describes a table constraint.
type ConstraintMetadata struct {
	Name    string
	Type    ConstraintType
	Columns []string
}

// RelationType identifies a relationship kind.
type RelationType string

const (
	// BelongsTo is a to-one relationship owned by the source table
	// (post.user_id -> users.id).
	BelongsTo RelationType = "belongsTo"
	// HasOne is a to-one relationship owned by the target table
	// (profiles.user_id -> users.id, user_id unique).
	HasOne RelationType = "hasOne"
	// HasMany is a to-many relationship owned by the target table.
	HasMany RelationType = "hasMany"
	// ManyToMany is a to-many relationship through a join table.
	ManyToMany RelationType = "manyToMany"
)

// RelationshipMetadata describes a declared relationship between two
// mapped types. ForeignKey lives on the source table for belongsTo,
// on the target table for hasOne/hasMany, and on the join table for
// manyToMany (TargetKey being the join-table column that references
// the target side).
type RelationshipMetadata struct {
	Type        RelationType
	SourceTable string
	SourceField string
	TargetType  reflect.Type
	TargetTable string
	ForeignKey  string
	References  string
	JoinTable   string
	TargetKey   string
}

// ToOne reports whether the relationship resolves to a single entity.
func (r *RelationshipMetadata) ToOne() bool {
	return r.Type == BelongsTo || r.Type == HasOne
}

// Column returns the column with the given name, or nil.
func (t *TableMetadata) Column(name string) *ColumnMetadata {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// IsPrimaryKey reports whether the named column is part of the
// primary key.
func (t *TableMetadata) IsPrimaryKey(name string) bool {
	if t.PrimaryKey == nil {
		return false
	}
	for _, col := range t.PrimaryKey.Columns {
		if col == name {
			return true
		}
	}
	return false
}

// PrimaryKeyColumn returns the single primary key column, or nil when
// the table has no primary key or a composite one.
func (t *TableMetadata) PrimaryKeyColumn() *ColumnMetadata {
	if t.PrimaryKey == nil || len(t.PrimaryKey.Columns) != 1 {
		return nil
	}
	return t.Column(t.PrimaryKey.Columns[0])
}

// GetRelationship returns a relationship by source field name.
func (t *TableMetadata) GetRelationship(fieldName string) *RelationshipMetadata {
	for i := range t.Relationships {
		if t.Relationships[i].SourceField == fieldName {
			return &t.Relationships[i]
		}
	}
	return nil
}

// HasRelationships checks if the table has any relationships.
func (t *TableMetadata) HasRelationships() bool {
	return len(t.Relationships) > 0
}
