package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/Qzief/arufkuy-store/internal/docstore"
)

// GetProduct wraps docstore.ErrNotFound when the product does not exist.
func (r *Repo) GetProduct(ctx context.Context, token, productID string) (Product, error) {
	d, err := r.Store.Get(ctx, CollectionProducts, productID, token)
	if err != nil {
		return Product{}, fmt.Errorf("get product %s: %w", productID, err)
	}
	return ProductFromDocument(d), nil
}

// WriteStock stores the residual stock of a plan. It is a no-op when the
// plan picked nothing. A non-zero ifUpdatedAt makes the write fail if the
// product changed since it was read.
func (r *Repo) WriteStock(ctx context.Context, token, productID string, plan Plan, ifUpdatedAt time.Time) error {
	if len(plan.ProductMask) == 0 {
		return nil
	}
	fields := make(map[string]docstore.Value, len(plan.ProductFields))
	for k, v := range plan.ProductFields {
		fields[k] = docstore.Encode(v)
	}
	var opts []docstore.UpdateOption
	if !ifUpdatedAt.IsZero() {
		opts = append(opts, docstore.WithUpdateTime(ifUpdatedAt))
	}
	if _, err := r.Store.Update(ctx, CollectionProducts, productID, fields, token, plan.ProductMask, opts...); err != nil {
		return fmt.Errorf("write stock for product %s: %w", productID, err)
	}
	return nil
}
