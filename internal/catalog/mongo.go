package catalog

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/timour/stateset-core/internal/core"
)

// MongoReader adapts a products collection owned by an external catalog
// service, decoding into bson.M first and mapping fields by hand rather
// than a struct tag, the way Tim275-oms's orders/store.go avoids coupling
// to whatever field-naming convention the writer side happens to use.
type MongoReader struct {
	collection *mongo.Collection
}

// NewMongoReader wraps the products collection in database dbName.
func NewMongoReader(client *mongo.Client, dbName string) *MongoReader {
	return &MongoReader{collection: client.Database(dbName).Collection("products")}
}

// GetByProductID implements Reader.
func (r *MongoReader) GetByProductID(ctx context.Context, productID string) (Item, error) {
	var doc bson.M
	err := r.collection.FindOne(ctx, bson.M{"productId": productID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Item{}, core.NotFound("catalog_item", productID)
	}
	if err != nil {
		return Item{}, fmt.Errorf("catalog: failed to look up product %s: %w", productID, err)
	}

	return Item{
		ProductID: productID,
		SKU:       getString(doc, "sku"),
		Name:      getString(doc, "name"),
		Currency:  getString(doc, "currency"),
		UnitPrice: getInt64(doc, "unitPrice"),
		Active:    getBool(doc, "active"),
	}, nil
}

func getString(doc bson.M, key string) string {
	if v, ok := doc[key].(string); ok {
		return v
	}
	return ""
}

func getInt64(doc bson.M, key string) int64 {
	switch v := doc[key].(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func getBool(doc bson.M, key string) bool {
	if v, ok := doc[key].(bool); ok {
		return v
	}
	return false
}
