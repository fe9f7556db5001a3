// Package shop defines the store's entity model and the high-level
// operations built on top of the session layer: users with profiles
// and posts, orders linked to products through priced association
// rows.
package shop

import (
	"fmt"
	"time"
)

// User is an account holder. Profile is its optional one-to-one side;
// Posts the authored entries.
type User struct {
	ID       int64  `co:"id,bigserial,primaryKey"`
	Username string `co:"username,varchar(30),notNull,unique"`

	Profile *Profile `co:"-,hasOne"`
	Posts   []*Post  `co:"-,hasMany"`
}

// TableName implements schema.TableNamer.
func (User) TableName() string { return "users" }

func (u *User) String() string {
	return fmt.Sprintf("User(id=%d, username=%q)", u.ID, u.Username)
}

// Profile holds a user's optional personal details. Each user has at
// most one; user_id is unique.
type Profile struct {
	ID        int64   `co:"id,bigserial,primaryKey"`
	FirstName *string `co:"first_name,varchar(50)"`
	LastName  *string `co:"last_name,varchar(50)"`
	Bio       *string `co:"bio,text"`
	UserID    int64   `co:"user_id,bigint,notNull,unique,fk(users.id)"`

	User *User `co:"-,belongsTo"`
}

// TableName implements schema.TableNamer.
func (Profile) TableName() string { return "profiles" }

func (p *Profile) String() string {
	return fmt.Sprintf("Profile(id=%d, user_id=%d)", p.ID, p.UserID)
}

// FullName joins the optional name parts for display.
func (p *Profile) FullName() string {
	var parts []string
	if p.FirstName != nil {
		parts = append(parts, *p.FirstName)
	}
	if p.LastName != nil {
		parts = append(parts, *p.LastName)
	}
	if len(parts) == 0 {
		return ""
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return parts[0] + " " + parts[1]
}

// Post is an entry authored by a user.
type Post struct {
	ID     int64  `co:"id,bigserial,primaryKey"`
	Title  string `co:"title,varchar(120),notNull"`
	Body   string `co:"body,text,notNull,default('')"`
	UserID int64  `co:"user_id,bigint,notNull,fk(users.id)"`

	User *User `co:"-,belongsTo"`
}

// TableName implements schema.TableNamer.
func (Post) TableName() string { return "posts" }

func (p *Post) String() string {
	return fmt.Sprintf("Post(id=%d, title=%q, user_id=%d)", p.ID, p.Title, p.UserID)
}

// Order groups purchased products. Products is the plain view over
// the association rows; ProductDetails exposes the rows themselves
// with their count and captured unit price.
type Order struct {
	ID        int64     `co:"id,bigserial,primaryKey"`
	PromoCode *string   `co:"promo_code,varchar(20)"`
	CreatedAt time.Time `co:"created_at,timestamptz,notNull,default(now())"`

	Products       []*Product                 `co:"-,manyToMany,joinTable(order_product_associations),foreignKey(order_id),targetKey(product_id)"`
	ProductDetails []*OrderProductAssociation `co:"-,hasMany,foreignKey(order_id)"`
}

// TableName implements schema.TableNamer.
func (Order) TableName() string { return "orders" }

func (o *Order) String() string {
	if o.PromoCode != nil {
		return fmt.Sprintf("Order(id=%d, promo_code=%q)", o.ID, *o.PromoCode)
	}
	return fmt.Sprintf("Order(id=%d)", o.ID)
}

// Product is a catalog item. Price is in the smallest currency unit.
type Product struct {
	ID          int64  `co:"id,bigserial,primaryKey"`
	Name        string `co:"name,varchar(60),notNull"`
	Description string `co:"description,text,notNull,default('')"`
	Price       int64  `co:"price,bigint,notNull"`
}

// TableName implements schema.TableNamer.
func (Product) TableName() string { return "products" }

func (p *Product) String() string {
	return fmt.Sprintf("Product(id=%d, name=%q, price=%d)", p.ID, p.Name, p.Price)
}

// OrderProductAssociation is one line of an order: a product, how
// many, and the unit price captured when the line was created. The
// same product may appear on an order more than once, each occurrence
// its own row.
type OrderProductAssociation struct {
	ID        int64 `co:"id,bigserial,primaryKey"`
	OrderID   int64 `co:"order_id,bigint,notNull,fk(orders.id)"`
	ProductID int64 `co:"product_id,bigint,notNull,fk(products.id)"`
	Count     int   `co:"count,integer,notNull,default(1)"`
	UnitPrice int64 `co:"unit_price,bigint,notNull"`

	Order   *Order   `co:"-,belongsTo"`
	Product *Product `co:"-,belongsTo"`
}

// TableName implements schema.TableNamer.
func (OrderProductAssociation) TableName() string { return "order_product_associations" }

func (a *OrderProductAssociation) String() string {
	return fmt.Sprintf("OrderProductAssociation(id=%d, order_id=%d, product_id=%d, count=%d, unit_price=%d)",
		a.ID, a.OrderID, a.ProductID, a.Count, a.UnitPrice)
}
