package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Qzief/arufkuy-store/internal/config"
)

type captured struct {
	path string
	auth string
	body map[string]any
}

func newProvider(t *testing.T, status int, reply string) (*Client, *captured) {
	t.Helper()
	got := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.path = r.URL.Path
		got.auth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(b, &got.body))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)

	c, err := New(config.Config{MayarBaseURL: srv.URL + "/", MayarAPIKey: "secret"}, srv.Client(), zap.NewNop())
	require.NoError(t, err)
	c.now = func() time.Time { return time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC) }
	return c, got
}

func TestNew_RequiresConfig(t *testing.T) {
	_, err := New(config.Config{MayarBaseURL: "http://x"}, nil, zap.NewNop())
	var cerr *config.ConfigError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "MAYAR_API_KEY", cerr.Field)

	_, err = New(config.Config{MayarAPIKey: "k"}, nil, zap.NewNop())
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "MAYAR_BASE_URL", cerr.Field)
}

func TestCreateInvoice_MapsItemsAndDefaults(t *testing.T) {
	c, got := newProvider(t, http.StatusOK, `{"statusCode":200,"data":{"id":"inv-1","link":"https://pay/inv-1"}}`)

	res, err := c.CreateInvoice(context.Background(), InvoiceRequest{
		Email: "budi@example.com",
		Items: []InvoiceItem{
			{Name: "Netflix 1 Month", Quantity: json.Number("2"), Price: json.Number("25000")},
			{Description: "Spotify", Quantity: json.Number("1"), Price: json.Number("0"), Rate: json.Number("15000")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.JSONEq(t, `{"statusCode":200,"data":{"id":"inv-1","link":"https://pay/inv-1"}}`, string(res.Body))

	assert.Equal(t, "/invoice/create", got.path)
	assert.Equal(t, "Bearer secret", got.auth)
	assert.Equal(t, "budi", got.body["name"])
	assert.Equal(t, "", got.body["mobile"])
	assert.Equal(t, DefaultDescription, got.body["description"])
	assert.Equal(t, DefaultRedirectURL, got.body["redirectUrl"])
	assert.Equal(t, "2025-04-02T10:00:00.000Z", got.body["expiredAt"])
	assert.Equal(t, []any{
		map[string]any{"description": "Netflix 1 Month", "quantity": 2.0, "rate": 25000.0},
		map[string]any{"description": "Spotify", "quantity": 1.0, "rate": 15000.0},
	}, got.body["items"])
}

func TestCreateInvoice_KeepsCallerValues(t *testing.T) {
	c, got := newProvider(t, http.StatusOK, `{}`)
	_, err := c.CreateInvoice(context.Background(), InvoiceRequest{
		Name: "Budi", Email: "budi@example.com", Mobile: "0812", Description: "Order ID: ORD42",
		RedirectURL: "https://store/x?orderId=ORD42", ExpiredAt: "2030-01-01T00:00:00.000Z",
		Items: []InvoiceItem{{Name: "A", Quantity: 1, Price: 1000}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Budi", got.body["name"])
	assert.Equal(t, "Order ID: ORD42", got.body["description"])
	assert.Equal(t, "https://store/x?orderId=ORD42", got.body["redirectUrl"])
	assert.Equal(t, "2030-01-01T00:00:00.000Z", got.body["expiredAt"])
}

func TestCreateInvoice_Validation(t *testing.T) {
	c, got := newProvider(t, http.StatusOK, `{}`)
	tests := []struct {
		name string
		req  InvoiceRequest
	}{
		{"missing email", InvoiceRequest{Items: []InvoiceItem{{Name: "A"}}}},
		{"no items", InvoiceRequest{Email: "a@x.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.CreateInvoice(context.Background(), tt.req)
			var verr *ValidationError
			assert.True(t, errors.As(err, &verr))
		})
	}
	assert.Empty(t, got.path, "nothing forwarded")
}

func TestCreateInvoice_RelaysProviderErrors(t *testing.T) {
	c, _ := newProvider(t, http.StatusUnprocessableEntity, `{"statusCode":422,"messages":"invalid mobile"}`)
	res, err := c.CreateInvoice(context.Background(), InvoiceRequest{Email: "a@x.com", Items: []InvoiceItem{{Name: "A"}}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, res.Status)
	assert.Contains(t, string(res.Body), "invalid mobile")
}

func TestCreateInvoice_NonJSONReply(t *testing.T) {
	c, _ := newProvider(t, http.StatusBadGateway, `<html>bad gateway</html>`)
	_, err := c.CreateInvoice(context.Background(), InvoiceRequest{Email: "a@x.com", Items: []InvoiceItem{{Name: "A"}}})
	require.Error(t, err)
}

func TestCreateCoupon(t *testing.T) {
	c, got := newProvider(t, http.StatusOK, `{"statusCode":200}`)

	_, err := c.CreateCoupon(context.Background(), map[string]any{"name": "PROMO"})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))

	body := map[string]any{"name": "PROMO", "discount": map[string]any{"discountType": "percentage", "value": 10.0}}
	res, err := c.CreateCoupon(context.Background(), body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, "/coupon/create", got.path)
	assert.Equal(t, body, got.body)
}
