package builder

import (
	"fmt"
	"reflect"

	"github.com/stoneacre/cobble/pkg/schema"
)

// StructToValues converts a struct to column names and values in
// declaration order. Auto-increment primary keys are omitted when
// skipPrimaryKey is set, as are zero-valued columns with a database
// default.
func StructToValues(model any, table *schema.TableMetadata, skipPrimaryKey bool) ([]string, []any, error) {
	modelValue := reflect.ValueOf(model)
	for modelValue.Kind() == reflect.Pointer {
		modelValue = modelValue.Elem()
	}
	if modelValue.Kind() != reflect.Struct {
		return nil, nil, fmt.Errorf("model must be a struct")
	}

	var columns []string
	var values []any

	for _, col := range table.Columns {
		if skipPrimaryKey && table.IsPrimaryKey(col.Name) && col.AutoIncrement {
			continue
		}
		field := modelValue.FieldByName(col.GoField)
		if !field.IsValid() {
			continue
		}
		if col.Default != nil && field.IsZero() {
			continue
		}
		columns = append(columns, col.Name)
		values = append(values, field.Interface())
	}

	return columns, values, nil
}

// ScanTargets returns positional scan destinations for the struct's
// columns, in declaration order. dest must address a struct.
func ScanTargets(dest reflect.Value, table *schema.TableMetadata) ([]any, error) {
	for dest.Kind() == reflect.Pointer {
		dest = dest.Elem()
	}
	if dest.Kind() != reflect.Struct {
		return nil, fmt.Errorf("dest must be a struct")
	}
	targets := make([]any, 0, len(table.Columns))
	for _, col := range table.Columns {
		field := dest.FieldByName(col.GoField)
		if !field.IsValid() || !field.CanAddr() {
			return nil, fmt.Errorf("field %s not addressable on %s", col.GoField, table.Name)
		}
		targets = append(targets, field.Addr().Interface())
	}
	return targets, nil
}

// HolderTargets returns n generic scan destinations. Holders tolerate
// NULLs from the empty side of an outer join; AssignHolders moves the
// values into a struct afterwards.
func HolderTargets(n int) []any {
	targets := make([]any, n)
	for i := range targets {
		targets[i] = new(any)
	}
	return targets
}

// HolderValue unwraps a holder produced by HolderTargets.
func HolderValue(holder any) any {
	if p, ok := holder.(*any); ok {
		return *p
	}
	return holder
}

// AssignHolders copies scanned holder values into the struct's mapped
// fields, in column declaration order.
func AssignHolders(dest reflect.Value, table *schema.TableMetadata, holders []any) error {
	for dest.Kind() == reflect.Pointer {
		dest = dest.Elem()
	}
	if len(holders) < len(table.Columns) {
		return fmt.Errorf("expected %d values for %s, got %d", len(table.Columns), table.Name, len(holders))
	}
	for i, col := range table.Columns {
		field := dest.FieldByName(col.GoField)
		if !field.IsValid() || !field.CanSet() {
			return fmt.Errorf("field %s not settable on %s", col.GoField, table.Name)
		}
		if err := assignValue(field, HolderValue(holders[i])); err != nil {
			return fmt.Errorf("column %s.%s: %w", table.Name, col.Name, err)
		}
	}
	return nil
}

// ColumnValues snapshots the model's mapped column values in
// declaration order.
func ColumnValues(model any, table *schema.TableMetadata) []any {
	modelValue := reflect.ValueOf(model)
	for modelValue.Kind() == reflect.Pointer {
		modelValue = modelValue.Elem()
	}
	values := make([]any, len(table.Columns))
	for i, col := range table.Columns {
		field := modelValue.FieldByName(col.GoField)
		if field.IsValid() {
			values[i] = field.Interface()
		}
	}
	return values
}

// assignValue sets a struct field from a driver value, allocating
// through pointers and converting compatible kinds (e.g. the int64
// pgx reports for integer columns into an int field).
func assignValue(field reflect.Value, v any) error {
	if v == nil {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}
	if field.Kind() == reflect.Pointer {
		elem := reflect.New(field.Type().Elem())
		if err := assignValue(elem.Elem(), v); err != nil {
			return err
		}
		field.Set(elem)
		return nil
	}
	val := reflect.ValueOf(v)
	for val.Kind() == reflect.Pointer {
		if val.IsNil() {
			field.Set(reflect.Zero(field.Type()))
			return nil
		}
		val = val.Elem()
	}
	switch {
	case val.Type().AssignableTo(field.Type()):
		field.Set(val)
	case val.Type().ConvertibleTo(field.Type()):
		field.Set(val.Convert(field.Type()))
	default:
		return fmt.Errorf("cannot assign %s to %s", val.Type(), field.Type())
	}
	return nil
}
