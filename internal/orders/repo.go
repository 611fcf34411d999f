package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/Qzief/arufkuy-store/internal/docstore"
)

const (
	CollectionOrders   = "orders"
	CollectionProducts = "products"

	DefaultPendingLimit = 100
)

// Repo reads and writes orders and products in the document store. Every
// call takes the bearer token of the current call chain.
type Repo struct {
	Store        *docstore.Client
	PendingLimit int
}

// ListPending returns pending orders in store order. The query has no
// orderBy so it never needs a composite index; callers sort in memory.
func (r *Repo) ListPending(ctx context.Context, token string) ([]Order, error) {
	limit := r.PendingLimit
	if limit <= 0 {
		limit = DefaultPendingLimit
	}
	q := docstore.From(CollectionOrders).
		WhereEqual("status", docstore.StringValue(string(StatusPending))).
		WithLimit(limit)
	docs, err := r.Store.Query(ctx, q, token)
	if err != nil {
		return nil, fmt.Errorf("list pending orders: %w", err)
	}
	out := make([]Order, 0, len(docs))
	for _, d := range docs {
		out = append(out, OrderFromDocument(d))
	}
	return out, nil
}

// GetOrder reads one order; it wraps docstore.ErrNotFound.
func (r *Repo) GetOrder(ctx context.Context, token, orderID string) (Order, error) {
	d, err := r.Store.Get(ctx, CollectionOrders, orderID, token)
	if err != nil {
		return Order{}, fmt.Errorf("get order %s: %w", orderID, err)
	}
	return OrderFromDocument(d), nil
}

// MarkPaid flips the order to paid with the invoice reference. Delivered
// items are only written when there are any.
func (r *Repo) MarkPaid(ctx context.Context, token, orderID, invoiceID string, paidAt time.Time, delivered []StockUnit) error {
	fields := map[string]docstore.Value{
		"status":    docstore.StringValue(string(StatusPaid)),
		"invoiceId": docstore.StringValue(invoiceID),
		"paidAt":    docstore.TimestampValue(paidAt),
	}
	mask := []string{"status", "invoiceId", "paidAt"}
	if len(delivered) > 0 {
		items := make([]docstore.Value, len(delivered))
		for i, u := range delivered {
			items[i] = docstore.MapValue(map[string]docstore.Value{
				"content": docstore.StringValue(u.Content),
				"note":    docstore.StringValue(u.Note),
			})
		}
		fields["deliveredItems"] = docstore.ArrayValue(items...)
		mask = append(mask, "deliveredItems")
	}
	if _, err := r.Store.Update(ctx, CollectionOrders, orderID, fields, token, mask); err != nil {
		return fmt.Errorf("mark order %s paid: %w", orderID, err)
	}
	return nil
}
