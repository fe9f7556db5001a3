package builder

import (
	"fmt"
	"strings"

	"github.com/stoneacre/cobble/pkg/schema"
)

// BuildInsert generates an INSERT for the model's non-generated
// columns, returning the generated primary key when the table has an
// auto-increment key.
func BuildInsert(table *schema.TableMetadata, model any) (string, []any, error) {
	columns, values, err := StructToValues(model, table, true)
	if err != nil {
		return "", nil, err
	}
	if len(columns) == 0 {
		return "", nil, fmt.Errorf("no values to insert into %s", table.Name)
	}

	var sql strings.Builder
	sql.WriteString("INSERT INTO ")
	sql.WriteString(table.Name)
	sql.WriteString(" (")
	sql.WriteString(strings.Join(columns, ", "))
	sql.WriteString(") VALUES (")

	placeholders := make([]string, len(values))
	for i := range values {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	sql.WriteString(strings.Join(placeholders, ", "))
	sql.WriteString(")")

	if pk := table.PrimaryKeyColumn(); pk != nil && pk.AutoIncrement {
		sql.WriteString(" RETURNING ")
		sql.WriteString(pk.Name)
	}

	return sql.String(), values, nil
}

// BuildUpdate generates an UPDATE of the given columns for the row
// identified by the primary key value. Column order is preserved so
// generated SQL is deterministic.
func BuildUpdate(table *schema.TableMetadata, columns []string, values []any, pkValue any) (string, []any, error) {
	if len(columns) == 0 {
		return "", nil, fmt.Errorf("no columns to update on %s", table.Name)
	}
	if len(columns) != len(values) {
		return "", nil, fmt.Errorf("column/value count mismatch on %s", table.Name)
	}
	pk := table.PrimaryKeyColumn()
	if pk == nil {
		return "", nil, fmt.Errorf("table %s has no single-column primary key", table.Name)
	}

	var sql strings.Builder
	sql.WriteString("UPDATE ")
	sql.WriteString(table.Name)
	sql.WriteString(" SET ")

	sets := make([]string, len(columns))
	for i, col := range columns {
		sets[i] = fmt.Sprintf("%s = $%d", col, i+1)
	}
	sql.WriteString(strings.Join(sets, ", "))
	sql.WriteString(fmt.Sprintf(" WHERE %s = $%d", pk.Name, len(columns)+1))

	args := append(append([]any{}, values...), pkValue)
	return sql.String(), args, nil
}

// BuildDelete generates a DELETE for the row identified by the
// primary key value.
func BuildDelete(table *schema.TableMetadata, pkValue any) (string, []any, error) {
	pk := table.PrimaryKeyColumn()
	if pk == nil {
		return "", nil, fmt.Errorf("table %s has no single-column primary key", table.Name)
	}
	return fmt.Sprintf("DELETE FROM %s WHERE %s = $1", table.Name, pk.Name), []any{pkValue}, nil
}
