package builder

import (
	"fmt"
	"strings"

	"github.com/stoneacre/cobble/pkg/schema"
)

// SelectStatement describes a SELECT over a mapped table. Columns are
// fully-qualified expressions in scan order; when empty, all of the
// table's columns are selected (qualified when joins are present).
type SelectStatement struct {
	Table   *schema.TableMetadata
	Columns []string
	Joins   []JoinClause
	Where   []Condition
	OrderBy []OrderBy
	Limit   *int
	Offset  *int
}

// QualifiedColumns returns the table's column expressions qualified
// with the table name, in declaration order.
func QualifiedColumns(table *schema.TableMetadata) []string {
	cols := make([]string, len(table.Columns))
	for i, col := range table.Columns {
		cols[i] = table.Name + "." + col.Name
	}
	return cols
}

// Qualify prefixes a bare column reference with the table name.
// References that already carry a qualifier are left alone.
func Qualify(table *schema.TableMetadata, column string) string {
	if strings.Contains(column, ".") {
		return column
	}
	return table.Name + "." + column
}

// ToSQL generates the SQL query and arguments.
func (s *SelectStatement) ToSQL() (string, []any, error) {
	if s.Table == nil {
		return "", nil, fmt.Errorf("table metadata not available")
	}

	var sql strings.Builder
	var args []any

	sql.WriteString("SELECT ")
	columns := s.Columns
	if len(columns) == 0 {
		if len(s.Joins) > 0 {
			columns = QualifiedColumns(s.Table)
		} else {
			for _, col := range s.Table.Columns {
				columns = append(columns, col.Name)
			}
		}
	}
	sql.WriteString(strings.Join(columns, ", "))

	sql.WriteString(" FROM ")
	sql.WriteString(s.Table.Name)

	for _, join := range s.Joins {
		sql.WriteString(" ")
		sql.WriteString(string(join.Type))
		sql.WriteString(" ")
		sql.WriteString(join.Table)
		sql.WriteString(" ON ")
		sql.WriteString(join.Condition)
	}

	if len(s.Where) > 0 {
		whereSQL, whereArgs, err := NewWhereBuilder(s.Where).Build()
		if err != nil {
			return "", nil, fmt.Errorf("failed to build WHERE clause: %w", err)
		}
		if whereSQL != "" {
			sql.WriteString(" ")
			sql.WriteString(whereSQL)
			args = append(args, whereArgs...)
		}
	}

	if len(s.OrderBy) > 0 {
		sql.WriteString(" ORDER BY ")
		orderParts := make([]string, len(s.OrderBy))
		for i, order := range s.OrderBy {
			orderParts[i] = order.Column + " " + string(order.Direction)
		}
		sql.WriteString(strings.Join(orderParts, ", "))
	}

	if s.Limit != nil {
		sql.WriteString(fmt.Sprintf(" LIMIT %d", *s.Limit))
	}
	if s.Offset != nil {
		sql.WriteString(fmt.Sprintf(" OFFSET %d", *s.Offset))
	}

	return sql.String(), args, nil
}
