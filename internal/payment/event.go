// Package payment turns provider webhook bodies into a canonical payment event.
// The provider has shipped several payload shapes, so every logical field is
// looked up through an ordered alias list and the first present value wins.
package payment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindPaymentCompleted Kind = "payment.completed"
	KindIgnored          Kind = "ignored"
)

var (
	eventTypeKeys   = []string{"event", "type", "event.received"}
	invoiceKeys     = []string{"id", "invoiceId", "invoice_id", "transactionId", "transaction_id"}
	emailKeys       = []string{"customerEmail", "customer_email", "email", "buyerEmail", "buyer_email"}
	amountKeys      = []string{"amount", "total", "subtotal", "grandTotal", "grand_total"}
	phoneKeys       = []string{"mobile", "customerMobile", "customer_mobile", "phone"}
	descriptionKeys = []string{"description", "productName", "product_name"}
	redirectKeys    = []string{"redirectUrl", "redirect_url"}

	paymentTypes = map[string]bool{
		"payment.received":  true,
		"payment.success":   true,
		"payment.completed": true,
	}

	descOrderID     = regexp.MustCompile(`(?i)Order ID:\s*([a-zA-Z0-9]+)`)
	redirectOrderID = regexp.MustCompile(`[?&]orderId=([^&]+)`)
)

// Event is the normalized webhook. Data keeps the payload object the fields
// were read from, for the audit copy.
type Event struct {
	Kind        Kind
	Type        string
	InvoiceID   string
	Email       string
	Amount      int64
	Phone       string
	Description string
	RedirectURL string
	// OrderID is the explicit order reference found in Description or RedirectURL, if any.
	OrderID string
	Data    map[string]any
}

func (e Event) IsPayment() bool { return e.Kind == KindPaymentCompleted }

// Parse decodes a webhook body. Numbers are kept as json.Number so amounts
// are never routed through float64.
func Parse(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode webhook: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("decode webhook: trailing data")
	}
	return v, nil
}

// Normalize never fails: shapes it does not understand come back as KindIgnored.
func Normalize(body any) Event {
	root, ok := body.(map[string]any)
	if !ok {
		return Event{Kind: KindIgnored}
	}
	data := root
	if d, ok := root["data"].(map[string]any); ok {
		data = d
	}

	ev := Event{
		Type:        firstString(root, eventTypeKeys...),
		InvoiceID:   firstString(data, invoiceKeys...),
		Email:       firstString(data, emailKeys...),
		Amount:      firstAmount(data, amountKeys...),
		Phone:       firstString(data, phoneKeys...),
		Description: firstString(data, descriptionKeys...),
		RedirectURL: firstString(data, redirectKeys...),
		Data:        data,
	}
	ev.OrderID = ExtractOrderID(ev.Description, ev.RedirectURL)

	switch {
	case paymentTypes[ev.Type]:
		ev.Kind = KindPaymentCompleted
	case ev.Type == "" && statusSuccess(data["status"]):
		ev.Kind = KindPaymentCompleted
	default:
		ev.Kind = KindIgnored
	}
	return ev
}

func statusSuccess(v any) bool {
	switch s := v.(type) {
	case bool:
		return s
	case string:
		return s == "SUCCESS" || s == "paid"
	}
	return false
}

// ExtractOrderID reads "Order ID: <alnum>" from the description, then the
// orderId query parameter of the redirect URL.
func ExtractOrderID(description, redirectURL string) string {
	if m := descOrderID.FindStringSubmatch(description); len(m) == 2 {
		return m[1]
	}
	if redirectURL == "" {
		return ""
	}
	if m := redirectOrderID.FindStringSubmatch(redirectURL); len(m) == 2 {
		return m[1]
	}
	return ""
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := asString(m[k]); s != "" {
			return s
		}
	}
	return ""
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return ""
	case map[string]any, []any:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func firstAmount(m map[string]any, keys ...string) int64 {
	for _, k := range keys {
		if a := Amount(m[k]); a != 0 {
			return a
		}
	}
	return 0
}

// Amount coerces a JSON amount to integer minor units, rounding half away
// from zero. Unparseable values count as zero.
func Amount(v any) int64 {
	var d decimal.Decimal
	var err error
	switch t := v.(type) {
	case json.Number:
		d, err = decimal.NewFromString(t.String())
	case string:
		d, err = decimal.NewFromString(strings.TrimSpace(t))
	case float64:
		d = decimal.NewFromFloat(t)
	case int64:
		d = decimal.NewFromInt(t)
	case int:
		d = decimal.NewFromInt(int64(t))
	default:
		return 0
	}
	if err != nil {
		return 0
	}
	return d.Round(0).IntPart()
}
