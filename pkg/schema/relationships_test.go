package schema

import (
	"reflect"
	"testing"
)

type Account struct {
	ID       int64  `co:"id,bigserial,primaryKey"`
	Username string `co:"username,varchar(30),notNull,unique"`

	Card    *Card    `co:"-,hasOne"`
	Entries []*Entry `co:"-,hasMany"`
	Groups  []*Group `co:"-,manyToMany"`
	Badges  []*Badge `co:"-,manyToMany,joinTable(account_badge_links),foreignKey(acct_id),targetKey(badge_ref)"`
}

type Card struct {
	ID        int64 `co:"id,bigserial,primaryKey"`
	AccountID int64 `co:"account_id,bigint,notNull,unique,fk(account.id)"`

	Account *Account `co:"-,belongsTo"`
}

type Entry struct {
	ID        int64 `co:"id,bigserial,primaryKey"`
	AccountID int64 `co:"account_id,bigint,notNull,fk(account.id)"`
}

type Group struct {
	ID int64 `co:"id,bigserial,primaryKey"`
}

type Badge struct {
	ID int64 `co:"id,bigserial,primaryKey"`
}

type BadToOne struct {
	ID    int64   `co:"id,bigserial,primaryKey"`
	Cards []*Card `co:"-,hasOne"`
}

type BadToMany struct {
	ID   int64 `co:"id,bigserial,primaryKey"`
	Card *Card `co:"-,hasMany"`
}

func TestParseRelationships(t *testing.T) {
	parser := NewParser()
	table, err := parser.Parse(reflect.TypeOf(Account{}))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(table.Relationships) != 4 {
		t.Fatalf("expected 4 relationships, got %d", len(table.Relationships))
	}

	t.Run("hasOne defaults", func(t *testing.T) {
		rel := table.GetRelationship("Card")
		if rel == nil {
			t.Fatal("Card relationship not found")
		}
		if rel.Type != HasOne {
			t.Errorf("expected hasOne, got %s", rel.Type)
		}
		if rel.ForeignKey != "account_id" {
			t.Errorf("expected foreign key 'account_id', got '%s'", rel.ForeignKey)
		}
		if rel.References != "id" {
			t.Errorf("expected references 'id', got '%s'", rel.References)
		}
		if rel.TargetTable != "card" {
			t.Errorf("expected target table 'card', got '%s'", rel.TargetTable)
		}
		if !rel.ToOne() {
			t.Error("hasOne should be to-one")
		}
	})

	t.Run("hasMany defaults", func(t *testing.T) {
		rel := table.GetRelationship("Entries")
		if rel == nil {
			t.Fatal("Entries relationship not found")
		}
		if rel.Type != HasMany {
			t.Errorf("expected hasMany, got %s", rel.Type)
		}
		if rel.ForeignKey != "account_id" {
			t.Errorf("expected foreign key 'account_id', got '%s'", rel.ForeignKey)
		}
		if rel.ToOne() {
			t.Error("hasMany should not be to-one")
		}
	})

	t.Run("belongsTo defaults", func(t *testing.T) {
		cardTable, err := parser.Parse(reflect.TypeOf(Card{}))
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}
		rel := cardTable.GetRelationship("Account")
		if rel == nil {
			t.Fatal("Account relationship not found")
		}
		if rel.Type != BelongsTo {
			t.Errorf("expected belongsTo, got %s", rel.Type)
		}
		if rel.ForeignKey != "account_id" {
			t.Errorf("expected foreign key 'account_id', got '%s'", rel.ForeignKey)
		}
	})

	t.Run("manyToMany defaults", func(t *testing.T) {
		rel := table.GetRelationship("Groups")
		if rel == nil {
			t.Fatal("Groups relationship not found")
		}
		if rel.Type != ManyToMany {
			t.Errorf("expected manyToMany, got %s", rel.Type)
		}
		// Join table name is the two sides sorted alphabetically.
		if rel.JoinTable != "account_group" {
			t.Errorf("expected join table 'account_group', got '%s'", rel.JoinTable)
		}
		if rel.ForeignKey != "account_id" {
			t.Errorf("expected foreign key 'account_id', got '%s'", rel.ForeignKey)
		}
		if rel.TargetKey != "group_id" {
			t.Errorf("expected target key 'group_id', got '%s'", rel.TargetKey)
		}
	})

	t.Run("manyToMany overrides", func(t *testing.T) {
		rel := table.GetRelationship("Badges")
		if rel == nil {
			t.Fatal("Badges relationship not found")
		}
		if rel.JoinTable != "account_badge_links" {
			t.Errorf("expected join table 'account_badge_links', got '%s'", rel.JoinTable)
		}
		if rel.ForeignKey != "acct_id" {
			t.Errorf("expected foreign key 'acct_id', got '%s'", rel.ForeignKey)
		}
		if rel.TargetKey != "badge_ref" {
			t.Errorf("expected target key 'badge_ref', got '%s'", rel.TargetKey)
		}
	})

	t.Run("to-one with slice field is rejected", func(t *testing.T) {
		if _, err := parser.Parse(reflect.TypeOf(BadToOne{})); err == nil {
			t.Error("expected error for hasOne on a slice field")
		}
	})

	t.Run("to-many without slice field is rejected", func(t *testing.T) {
		if _, err := parser.Parse(reflect.TypeOf(BadToMany{})); err == nil {
			t.Error("expected error for hasMany on a non-slice field")
		}
	})
}
