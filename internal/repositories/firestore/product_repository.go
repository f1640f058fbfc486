package firestore

import (
	"context"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/storefront-orders/api/internal/domain"
	pfirestore "github.com/storefront-orders/api/internal/platform/firestore"
)

const productsCollection = "products"

// products are shared with the storefront catalog, so documents are read as raw maps and
// written back with merge semantics
type productRepository struct {
	base *pfirestore.BaseRepository[domain.Product]
}

func newProductRepository(provider *pfirestore.Provider) *productRepository {
	return &productRepository{
		base: pfirestore.NewBaseRepository[domain.Product](provider, productsCollection, nil, decodeProduct),
	}
}

func decodeProduct(_ context.Context, snap *firestore.DocumentSnapshot) (domain.Product, error) {
	data := snap.Data()
	price, _ := domain.NormalizePrice(data)
	product := domain.Product{
		ID:               snap.Ref.ID,
		Name:             stringField(data, "name", "productName", "title"),
		Category:         stringField(data, "category"),
		Price:            price,
		StockQuantity:    intField(data, "stockQuantity", "stock", "quantity"),
		ReservedQuantity: intField(data, "reservedQuantity"),
		IsActive:         true,
	}
	if active, ok := data["isActive"].(bool); ok {
		product.IsActive = active
	}
	if updated, ok := data["updatedAt"].(time.Time); ok {
		product.UpdatedAt = updated.UTC()
	}
	return product, nil
}

func (r *productRepository) Get(ctx context.Context, productID string) (domain.Product, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(productID))
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data, nil
}

func (r *productRepository) GetMany(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	docs, err := r.base.GetAll(ctx, productIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.Product, len(docs))
	for _, doc := range docs {
		out[doc.ID] = doc.Data
	}
	return out, nil
}

func (r *productRepository) Save(ctx context.Context, product domain.Product) error {
	return r.base.Merge(ctx, product.ID, map[string]any{
		"name":             product.Name,
		"category":         product.Category,
		"price":            product.Price,
		"stockQuantity":    product.StockQuantity,
		"reservedQuantity": product.ReservedQuantity,
		"isActive":         product.IsActive,
		"updatedAt":        product.UpdatedAt.UTC(),
	})
}

func stringField(data map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := data[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func intField(data map[string]any, keys ...string) int {
	for _, key := range keys {
		switch v := data[key].(type) {
		case int64:
			return int(v)
		case int:
			return v
		case float64:
			return int(v)
		}
	}
	return 0
}
