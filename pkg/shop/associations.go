package shop

import (
	"github.com/stoneacre/cobble/pkg/session"
)

// AppendProduct stages a product on an order through the plain view:
// one new association row with count 1 and the product's current
// price captured as the line's unit price. Appending the same product
// again creates a second independent row. Both in-memory views are
// kept in step before anything is flushed.
func AppendProduct(s *session.Session, order *Order, product *Product) *OrderProductAssociation {
	assoc := &OrderProductAssociation{
		Order:     order,
		Product:   product,
		OrderID:   order.ID,
		ProductID: product.ID,
		Count:     1,
		UnitPrice: product.Price,
	}
	order.Products = append(order.Products, product)
	order.ProductDetails = append(order.ProductDetails, assoc)
	s.Add(assoc)
	return assoc
}

// AppendProductDetail stages an explicit association row on an order
// through the detailed view, mirroring its product into the plain
// view. The row's foreign keys are resolved from its relationship
// pointers at flush time, so the order and product may themselves
// still be pending.
func AppendProductDetail(s *session.Session, order *Order, assoc *OrderProductAssociation) {
	assoc.Order = order
	if assoc.OrderID == 0 {
		assoc.OrderID = order.ID
	}
	if assoc.ProductID == 0 && assoc.Product != nil {
		assoc.ProductID = assoc.Product.ID
	}
	order.ProductDetails = append(order.ProductDetails, assoc)
	if assoc.Product != nil {
		order.Products = append(order.Products, assoc.Product)
	}
	s.Add(assoc)
}
