package shop

import (
	"context"

	"github.com/stoneacre/cobble/pkg/registry"
	"github.com/stoneacre/cobble/pkg/runtime"
)

// Schema is the store's DDL. Kept as a constant so the demo CLI and
// tests provision identical databases.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id BIGSERIAL PRIMARY KEY,
	username VARCHAR(30) NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS profiles (
	id BIGSERIAL PRIMARY KEY,
	first_name VARCHAR(50),
	last_name VARCHAR(50),
	bio TEXT,
	user_id BIGINT NOT NULL UNIQUE REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS posts (
	id BIGSERIAL PRIMARY KEY,
	title VARCHAR(120) NOT NULL,
	body TEXT NOT NULL DEFAULT '',
	user_id BIGINT NOT NULL REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS orders (
	id BIGSERIAL PRIMARY KEY,
	promo_code VARCHAR(20),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS products (
	id BIGSERIAL PRIMARY KEY,
	name VARCHAR(60) NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	price BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS order_product_associations (
	id BIGSERIAL PRIMARY KEY,
	order_id BIGINT NOT NULL REFERENCES orders(id),
	product_id BIGINT NOT NULL REFERENCES products(id),
	count INTEGER NOT NULL DEFAULT 1 CHECK (count > 0),
	unit_price BIGINT NOT NULL
);
`

// EnsureSchema creates the store's tables when they do not exist yet.
func EnsureSchema(ctx context.Context, db *runtime.DB) error {
	_, err := db.Exec(ctx, Schema)
	return err
}

// RegisterModels registers every store entity with the global
// registry. Queries register types lazily, so calling this up front
// is only needed when metadata must exist before the first query.
func RegisterModels() error {
	models := []any{
		&User{},
		&Profile{},
		&Post{},
		&Order{},
		&Product{},
		&OrderProductAssociation{},
	}
	for _, model := range models {
		if err := registry.Register(model); err != nil {
			return err
		}
	}
	return nil
}
