package orders

import (
	"fmt"
	"time"

	"github.com/Qzief/arufkuy-store/internal/docstore"
	"github.com/Qzief/arufkuy-store/internal/payment"
)

// Order is a purchase awaiting payment. Orders are created by the storefront;
// this service only moves them from pending to paid.
type Order struct {
	ID            string
	CustomerEmail string
	CustomerPhone string
	TotalPrice    int64 // minor units
	ProductID     string
	ProductName   string
	VariantID     string
	Quantity      int
	Status        Status
	InvoiceID     string
	CreatedAt     time.Time // createdAt field written by the storefront
	CreateTime    time.Time // document create time
}

// Recency is the later of the document create time and the createdAt field.
func (o Order) Recency() time.Time {
	if o.CreatedAt.After(o.CreateTime) {
		return o.CreatedAt
	}
	return o.CreateTime
}

// Product holds either top-level stock (simple) or per-variant stock.
// Stock sequences are kept in their stored form so writes preserve unit shape.
type Product struct {
	ID          string
	Name        string
	HasVariants bool
	StockItems  []any
	// Variants is nil when the stored variants field is absent or not a list.
	Variants   []any
	UpdateTime time.Time
}

type StockUnit struct {
	Content string `json:"content"`
	Note    string `json:"note"`
}

func OrderFromDocument(d docstore.Document) Order {
	m := d.Data()
	o := Order{
		ID:            d.ID(),
		CustomerEmail: str(m["customerEmail"]),
		CustomerPhone: str(m["customerPhone"]),
		TotalPrice:    payment.Amount(m["totalPrice"]),
		ProductID:     str(m["productId"]),
		ProductName:   str(m["productName"]),
		VariantID:     str(m["variantId"]),
		Quantity:      int(payment.Amount(m["quantity"])),
		Status:        Status(str(m["status"])),
		InvoiceID:     str(m["invoiceId"]),
		CreateTime:    d.CreateTime,
	}
	if t, ok := m["createdAt"].(time.Time); ok {
		o.CreatedAt = t
	}
	return o
}

func ProductFromDocument(d docstore.Document) Product {
	m := d.Data()
	p := Product{
		ID:         d.ID(),
		Name:       str(m["name"]),
		UpdateTime: d.UpdateTime,
	}
	p.HasVariants, _ = m["hasVariants"].(bool)
	p.StockItems, _ = m["stockItems"].([]any)
	if v, ok := m["variants"].([]any); ok {
		if v == nil {
			v = []any{}
		}
		p.Variants = v
	}
	return p
}

// UnitFromStock reads one stored stock entry. Plain strings are content
// without a note.
func UnitFromStock(v any) StockUnit {
	switch t := v.(type) {
	case string:
		return StockUnit{Content: t}
	case map[string]any:
		return StockUnit{Content: str(t["content"]), Note: str(t["note"])}
	}
	return StockUnit{}
}

func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int64, float64:
		return fmt.Sprint(t)
	}
	return ""
}
