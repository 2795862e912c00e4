// Package catalog is the read-only Catalog boundary spec.md §1 places out
// of scope for storage ("the product catalog storage, consulted through a
// read interface"). internal/checkout's fulfillment resolution receives a
// Reader but does not call it: session item names and prices come from the
// caller, not from the catalog. The package owns no write path.
package catalog

import "context"

// Item is the subset of catalog data the checkout engine needs: enough to
// show a buyer a line item name and confirm the price they were quoted
// still matches what the catalog has on file.
type Item struct {
	ProductID string
	SKU       string
	Name      string
	Currency  string
	UnitPrice int64
	Active    bool
}

// Reader is the outbound port. Mongo is one concrete implementation
// (MongoReader); a caller in tests can supply an in-memory map instead.
type Reader interface {
	GetByProductID(ctx context.Context, productID string) (Item, error)
}
