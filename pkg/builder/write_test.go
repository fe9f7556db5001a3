package builder

import (
	"reflect"
	"testing"

	"github.com/stoneacre/cobble/pkg/schema"
)

type Invoice struct {
	ID         int64  `co:"id,bigserial,primaryKey"`
	CustomerID int64  `co:"customer_id,bigint,notNull"`
	Memo       string `co:"memo,text,default('')"`
	Total      int64  `co:"total,bigint,notNull"`
}

type Ledger struct {
	Code string `co:"code,varchar(10),primaryKey"`
	Name string `co:"name,varchar(50),notNull"`
}

func invoiceTable(t *testing.T) *schema.TableMetadata {
	t.Helper()
	table, err := schema.NewParser().Parse(reflect.TypeOf(Invoice{}))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return table
}

func TestBuildInsert(t *testing.T) {
	table := invoiceTable(t)

	t.Run("auto-increment key returns id", func(t *testing.T) {
		sql, args, err := BuildInsert(table, &Invoice{CustomerID: 7, Memo: "rush", Total: 1200})
		if err != nil {
			t.Fatalf("BuildInsert failed: %v", err)
		}
		want := "INSERT INTO invoice (customer_id, memo, total) VALUES ($1, $2, $3) RETURNING id"
		if sql != want {
			t.Errorf("expected %q, got %q", want, sql)
		}
		if !reflect.DeepEqual(args, []any{int64(7), "rush", int64(1200)}) {
			t.Errorf("unexpected args %v", args)
		}
	})

	t.Run("zero-valued defaulted column is omitted", func(t *testing.T) {
		sql, args, err := BuildInsert(table, &Invoice{CustomerID: 7, Total: 1200})
		if err != nil {
			t.Fatalf("BuildInsert failed: %v", err)
		}
		want := "INSERT INTO invoice (customer_id, total) VALUES ($1, $2) RETURNING id"
		if sql != want {
			t.Errorf("expected %q, got %q", want, sql)
		}
		if len(args) != 2 {
			t.Errorf("expected 2 args, got %v", args)
		}
	})

	t.Run("natural key has no returning clause", func(t *testing.T) {
		ledger, err := schema.NewParser().Parse(reflect.TypeOf(Ledger{}))
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}
		sql, _, err := BuildInsert(ledger, &Ledger{Code: "AR", Name: "receivable"})
		if err != nil {
			t.Fatalf("BuildInsert failed: %v", err)
		}
		want := "INSERT INTO ledger (code, name) VALUES ($1, $2)"
		if sql != want {
			t.Errorf("expected %q, got %q", want, sql)
		}
	})
}

func TestBuildUpdate(t *testing.T) {
	table := invoiceTable(t)

	t.Run("updates named columns by primary key", func(t *testing.T) {
		sql, args, err := BuildUpdate(table, []string{"memo", "total"}, []any{"late", int64(1300)}, int64(9))
		if err != nil {
			t.Fatalf("BuildUpdate failed: %v", err)
		}
		want := "UPDATE invoice SET memo = $1, total = $2 WHERE id = $3"
		if sql != want {
			t.Errorf("expected %q, got %q", want, sql)
		}
		if !reflect.DeepEqual(args, []any{"late", int64(1300), int64(9)}) {
			t.Errorf("unexpected args %v", args)
		}
	})

	t.Run("no columns is rejected", func(t *testing.T) {
		if _, _, err := BuildUpdate(table, nil, nil, int64(9)); err == nil {
			t.Error("expected error for empty column set")
		}
	})

	t.Run("mismatched values are rejected", func(t *testing.T) {
		if _, _, err := BuildUpdate(table, []string{"memo"}, []any{"a", "b"}, int64(9)); err == nil {
			t.Error("expected error for column/value mismatch")
		}
	})
}

func TestBuildDelete(t *testing.T) {
	table := invoiceTable(t)
	sql, args, err := BuildDelete(table, int64(3))
	if err != nil {
		t.Fatalf("BuildDelete failed: %v", err)
	}
	if sql != "DELETE FROM invoice WHERE id = $1" {
		t.Errorf("unexpected sql %q", sql)
	}
	if !reflect.DeepEqual(args, []any{int64(3)}) {
		t.Errorf("unexpected args %v", args)
	}
}
