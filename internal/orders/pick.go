package orders

import "fmt"

// EmptyStockWarning explains why a paid order got no units. It is carried in
// the Plan and never stops the order from being marked paid.
type EmptyStockWarning struct {
	ProductID string
	VariantID string
	Reason    string
}

func (w *EmptyStockWarning) Error() string {
	if w.VariantID != "" {
		return fmt.Sprintf("product %s variant %s: %s", w.ProductID, w.VariantID, w.Reason)
	}
	return fmt.Sprintf("product %s: %s", w.ProductID, w.Reason)
}

const (
	WarnStockEmpty      = "stock empty"
	WarnVariantNotFound = "variant not found"
)

// Plan is the outcome of picking stock for one order. ProductMask is empty
// when nothing was picked, in which case the product must not be written.
type Plan struct {
	Quantity      int
	Delivered     []StockUnit
	Remaining     int
	ProductFields map[string]any
	ProductMask   []string
	Warning       *EmptyStockWarning
}

// PickFIFO takes the first n units of stock. Both returned slices are fresh
// copies; stock is not modified.
func PickFIFO(stock []any, n int) (picked, remaining []any) {
	if n < 0 {
		n = 0
	}
	if n > len(stock) {
		n = len(stock)
	}
	picked = append([]any{}, stock[:n]...)
	remaining = append([]any{}, stock[n:]...)
	return picked, remaining
}

// PlanFulfillment picks min(quantity, available) units for o from p.
// A variant order only touches its own variant's stock; every other variant
// and every other field of the chosen variant is carried over unchanged.
func PlanFulfillment(o Order, p Product) Plan {
	qty := o.Quantity
	if qty <= 0 {
		qty = 1
	}
	plan := Plan{Quantity: qty}

	if o.VariantID != "" && p.HasVariants && p.Variants != nil {
		idx := -1
		for i, v := range p.Variants {
			if vm, ok := v.(map[string]any); ok && str(vm["id"]) == o.VariantID {
				idx = i
				break
			}
		}
		if idx < 0 {
			plan.Warning = &EmptyStockWarning{ProductID: p.ID, VariantID: o.VariantID, Reason: WarnVariantNotFound}
			return plan
		}
		variant := p.Variants[idx].(map[string]any)
		stock, _ := variant["stockItems"].([]any)
		if len(stock) == 0 {
			plan.Warning = &EmptyStockWarning{ProductID: p.ID, VariantID: o.VariantID, Reason: WarnStockEmpty}
			return plan
		}
		picked, remaining := PickFIFO(stock, qty)

		updated := make(map[string]any, len(variant))
		for k, v := range variant {
			updated[k] = v
		}
		updated["stockItems"] = remaining
		variants := append([]any{}, p.Variants...)
		variants[idx] = updated

		plan.Delivered = units(picked)
		plan.Remaining = len(remaining)
		plan.ProductFields = map[string]any{"variants": variants}
		plan.ProductMask = []string{"variants"}
		return plan
	}

	if len(p.StockItems) == 0 {
		plan.Warning = &EmptyStockWarning{ProductID: p.ID, Reason: WarnStockEmpty}
		return plan
	}
	picked, remaining := PickFIFO(p.StockItems, qty)
	plan.Delivered = units(picked)
	plan.Remaining = len(remaining)
	plan.ProductFields = map[string]any{"stockItems": remaining}
	plan.ProductMask = []string{"stockItems"}
	return plan
}

func units(raw []any) []StockUnit {
	out := make([]StockUnit, len(raw))
	for i, v := range raw {
		out[i] = UnitFromStock(v)
	}
	return out
}
