package payment

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func normalize(t *testing.T, body string) Event {
	t.Helper()
	v, err := Parse([]byte(body))
	require.NoError(t, err)
	return Normalize(v)
}

func TestParse_Invalid(t *testing.T) {
	for _, body := range []string{"", "{", "not json", `{"a":1}{"b":2}`, `{"a":1}}`, `{"a":1}]`, `{"a":1}{}`, `[1]]`} {
		_, err := Parse([]byte(body))
		assert.Error(t, err, "body %q", body)
	}
}

func TestNormalize_Classification(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Kind
	}{
		{"payment.received", `{"event":"payment.received","data":{}}`, KindPaymentCompleted},
		{"payment.success via type", `{"type":"payment.success"}`, KindPaymentCompleted},
		{"payment.completed via event.received", `{"event.received":"payment.completed"}`, KindPaymentCompleted},
		{"status SUCCESS without event type", `{"data":{"status":"SUCCESS"}}`, KindPaymentCompleted},
		{"status true without event type", `{"status":true}`, KindPaymentCompleted},
		{"status paid without event type", `{"status":"paid"}`, KindPaymentCompleted},
		{"status lowercase success is not a literal", `{"status":"success"}`, KindIgnored},
		{"status false", `{"status":false}`, KindIgnored},
		{"other event with success status", `{"event":"membership.changed","data":{"status":"SUCCESS"}}`, KindIgnored},
		{"unknown event", `{"event":"testing"}`, KindIgnored},
		{"empty object", `{}`, KindIgnored},
		{"array body", `[1,2]`, KindIgnored},
		{"scalar body", `42`, KindIgnored},
		{"null body", `null`, KindIgnored},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalize(t, tt.body).Kind)
		})
	}
}

func TestNormalize_Aliases(t *testing.T) {
	t.Run("camelCase under data", func(t *testing.T) {
		ev := normalize(t, `{"event":"payment.received","data":{
			"id":"inv-1","customerEmail":"a@x.com","amount":50000,
			"mobile":"0812-3456-7890","productName":"Netflix","redirectUrl":"https://s/o?orderId=ORD1"}}`)
		assert.Equal(t, "payment.received", ev.Type)
		assert.Equal(t, "inv-1", ev.InvoiceID)
		assert.Equal(t, "a@x.com", ev.Email)
		assert.Equal(t, int64(50000), ev.Amount)
		assert.Equal(t, "0812-3456-7890", ev.Phone)
		assert.Equal(t, "Netflix", ev.Description)
		assert.Equal(t, "https://s/o?orderId=ORD1", ev.RedirectURL)
		assert.Equal(t, "ORD1", ev.OrderID)
		assert.Equal(t, "inv-1", ev.Data["id"])
	})

	t.Run("snake_case at top level", func(t *testing.T) {
		ev := normalize(t, `{"status":"SUCCESS","transaction_id":"tx-9","buyer_email":"b@x.com",
			"grand_total":"75000","customer_mobile":6281234567,"product_name":"Spotify","redirect_url":""}`)
		assert.Equal(t, KindPaymentCompleted, ev.Kind)
		assert.Equal(t, "tx-9", ev.InvoiceID)
		assert.Equal(t, "b@x.com", ev.Email)
		assert.Equal(t, int64(75000), ev.Amount)
		assert.Equal(t, "6281234567", ev.Phone)
		assert.Equal(t, "Spotify", ev.Description)
		assert.Empty(t, ev.OrderID)
	})

	t.Run("first non-empty alias wins", func(t *testing.T) {
		ev := normalize(t, `{"data":{"id":"","invoiceId":"inv-2","invoice_id":"inv-3",
			"amount":0,"total":1200,"subtotal":999,"customerEmail":"","email":"c@x.com"}}`)
		assert.Equal(t, "inv-2", ev.InvoiceID)
		assert.Equal(t, int64(1200), ev.Amount)
		assert.Equal(t, "c@x.com", ev.Email)
	})

	t.Run("data that is not an object is ignored", func(t *testing.T) {
		ev := normalize(t, `{"event":"payment.received","data":"x","email":"d@x.com"}`)
		assert.Equal(t, "d@x.com", ev.Email)
	})
}

func TestExtractOrderID(t *testing.T) {
	tests := []struct {
		desc, redirect, want string
	}{
		{"Order ID: ORD42 - Netflix Premium", "", "ORD42"},
		{"order id:abc123", "", "abc123"},
		{"Order ID:   Zz9-rest", "", "Zz9"},
		{"Order ID: ORD42", "https://s/detail-order.html?orderId=OTHER", "ORD42"},
		{"Netflix", "https://s/detail-order.html?orderId=XYZ&x=1", "XYZ"},
		{"Netflix", "https://s/detail-order.html?x=1&orderId=Q1", "Q1"},
		{"Netflix", "https://s/detail-order.html?order=Q1", ""},
		{"", "", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractOrderID(tt.desc, tt.redirect), "desc=%q redirect=%q", tt.desc, tt.redirect)
	}
}

func TestAmount(t *testing.T) {
	tests := []struct {
		in   any
		want int64
	}{
		{json.Number("50000"), 50000},
		{json.Number("49999.5"), 50000},
		{json.Number("1e3"), 1000},
		{"  75000 ", 75000},
		{"Rp 75.000", 0},
		{float64(120.4), 120},
		{int64(7), 7},
		{3, 3},
		{true, 0},
		{nil, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Amount(tt.in), "in=%#v", tt.in)
	}
}
