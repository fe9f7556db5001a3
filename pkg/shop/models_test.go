package shop

import (
	"reflect"
	"testing"

	"github.com/stoneacre/cobble/pkg/registry"
	"github.com/stoneacre/cobble/pkg/schema"
)

func metadataFor(t *testing.T, model any) *schema.TableMetadata {
	t.Helper()
	if err := RegisterModels(); err != nil {
		t.Fatalf("RegisterModels failed: %v", err)
	}
	table, err := registry.Get(reflect.TypeOf(model))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	return table
}

func TestModelTableNames(t *testing.T) {
	tests := []struct {
		model any
		want  string
	}{
		{&User{}, "users"},
		{&Profile{}, "profiles"},
		{&Post{}, "posts"},
		{&Order{}, "orders"},
		{&Product{}, "products"},
		{&OrderProductAssociation{}, "order_product_associations"},
	}
	for _, tt := range tests {
		table := metadataFor(t, tt.model)
		if table.Name != tt.want {
			t.Errorf("expected table %q, got %q", tt.want, table.Name)
		}
		if table.PrimaryKeyColumn() == nil {
			t.Errorf("table %q has no primary key", tt.want)
		}
	}
}

func TestUserRelationships(t *testing.T) {
	table := metadataFor(t, &User{})

	profile := table.GetRelationship("Profile")
	if profile == nil || profile.Type != schema.HasOne {
		t.Fatalf("expected hasOne Profile, got %v", profile)
	}
	if profile.ForeignKey != "user_id" || profile.TargetTable != "profiles" {
		t.Errorf("unexpected Profile relationship %+v", profile)
	}

	posts := table.GetRelationship("Posts")
	if posts == nil || posts.Type != schema.HasMany {
		t.Fatalf("expected hasMany Posts, got %v", posts)
	}
	if posts.ForeignKey != "user_id" || posts.TargetTable != "posts" {
		t.Errorf("unexpected Posts relationship %+v", posts)
	}
}

func TestOrderRelationships(t *testing.T) {
	table := metadataFor(t, &Order{})

	products := table.GetRelationship("Products")
	if products == nil || products.Type != schema.ManyToMany {
		t.Fatalf("expected manyToMany Products, got %v", products)
	}
	if products.JoinTable != "order_product_associations" {
		t.Errorf("expected join table 'order_product_associations', got %q", products.JoinTable)
	}
	if products.ForeignKey != "order_id" || products.TargetKey != "product_id" {
		t.Errorf("unexpected link keys %+v", products)
	}

	details := table.GetRelationship("ProductDetails")
	if details == nil || details.Type != schema.HasMany {
		t.Fatalf("expected hasMany ProductDetails, got %v", details)
	}
	if details.ForeignKey != "order_id" {
		t.Errorf("expected foreign key 'order_id', got %q", details.ForeignKey)
	}
}

func TestProfileUniqueUserConstraint(t *testing.T) {
	table := metadataFor(t, &Profile{})

	col := table.Column("user_id")
	if col == nil {
		t.Fatal("user_id column not found")
	}
	if !col.Unique {
		t.Error("expected user_id to be unique")
	}
	if len(table.ForeignKeys) != 1 || table.ForeignKeys[0].ReferencedTable != "users" {
		t.Errorf("unexpected foreign keys %+v", table.ForeignKeys)
	}
}

func TestProfileFullName(t *testing.T) {
	first, last := "Adi", "Oz"
	tests := []struct {
		name    string
		profile Profile
		want    string
	}{
		{"both parts", Profile{FirstName: &first, LastName: &last}, "Adi Oz"},
		{"first only", Profile{FirstName: &first}, "Adi"},
		{"last only", Profile{LastName: &last}, "Oz"},
		{"empty", Profile{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.profile.FullName(); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestStringDiagnostics(t *testing.T) {
	promo := "WELCOME"
	tests := []struct {
		entity interface{ String() string }
		want   string
	}{
		{&User{ID: 1, Username: "adi"}, `User(id=1, username="adi")`},
		{&Profile{ID: 2, UserID: 1}, "Profile(id=2, user_id=1)"},
		{&Post{ID: 3, Title: "hi", UserID: 1}, `Post(id=3, title="hi", user_id=1)`},
		{&Order{ID: 4}, "Order(id=4)"},
		{&Order{ID: 5, PromoCode: &promo}, `Order(id=5, promo_code="WELCOME")`},
		{&Product{ID: 6, Name: "Mouse", Price: 123}, `Product(id=6, name="Mouse", price=123)`},
		{
			&OrderProductAssociation{ID: 7, OrderID: 4, ProductID: 6, Count: 2, UnitPrice: 123},
			"OrderProductAssociation(id=7, order_id=4, product_id=6, count=2, unit_price=123)",
		},
	}
	for _, tt := range tests {
		if got := tt.entity.String(); got != tt.want {
			t.Errorf("expected %q, got %q", tt.want, got)
		}
	}
}
