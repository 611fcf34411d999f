// Package provider is a thin client for the payment provider's invoice and
// coupon endpoints. Responses are relayed to the storefront unchanged.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Qzief/arufkuy-store/internal/config"
)

const (
	DefaultDescription = "Digital Product Purchase"
	DefaultRedirectURL = "https://store.arufkuy.me/detail-order.html"
	InvoiceTTL         = 24 * time.Hour
)

// ValidationError is a bad storefront request; it maps to 400.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

type InvoiceItem struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Quantity    any    `json:"quantity"`
	Price       any    `json:"price"`
	Rate        any    `json:"rate"`
}

// InvoiceRequest is what the storefront posts to /create-invoice.
type InvoiceRequest struct {
	Name        string        `json:"name"`
	Email       string        `json:"email"`
	Mobile      string        `json:"mobile"`
	Description string        `json:"description"`
	RedirectURL string        `json:"redirectUrl"`
	ExpiredAt   string        `json:"expiredAt"`
	Items       []InvoiceItem `json:"items"`
}

type invoiceItem struct {
	Description string `json:"description"`
	Quantity    any    `json:"quantity"`
	Rate        any    `json:"rate"`
}

type invoice struct {
	Name        string        `json:"name"`
	Email       string        `json:"email"`
	Mobile      string        `json:"mobile"`
	Description string        `json:"description"`
	RedirectURL string        `json:"redirectUrl"`
	ExpiredAt   string        `json:"expiredAt"`
	Items       []invoiceItem `json:"items"`
}

// Response is the provider's status and JSON body.
type Response struct {
	Status int
	Body   json.RawMessage
}

type Client struct {
	baseURL string
	apiKey  string
	hc      *http.Client
	log     *zap.Logger
	now     func() time.Time
}

// New returns a ConfigError when the provider is not configured.
func New(cfg config.Config, hc *http.Client, log *zap.Logger) (*Client, error) {
	if err := cfg.ProviderConfigured(); err != nil {
		return nil, err
	}
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.MayarBaseURL, "/"),
		apiKey:  cfg.MayarAPIKey,
		hc:      hc,
		log:     log,
		now:     time.Now,
	}, nil
}

func buildInvoice(req InvoiceRequest, now time.Time) (invoice, error) {
	if req.Email == "" {
		return invoice{}, &ValidationError{Message: "Invalid payload. Required: email, mobile, description, items"}
	}
	if len(req.Items) == 0 {
		return invoice{}, &ValidationError{Message: "Items array is required with at least one item"}
	}
	inv := invoice{
		Name:        req.Name,
		Email:       req.Email,
		Mobile:      req.Mobile,
		Description: req.Description,
		RedirectURL: req.RedirectURL,
		ExpiredAt:   req.ExpiredAt,
		Items:       make([]invoiceItem, len(req.Items)),
	}
	if inv.Name == "" {
		inv.Name, _, _ = strings.Cut(req.Email, "@")
	}
	if inv.Description == "" {
		inv.Description = DefaultDescription
	}
	if inv.RedirectURL == "" {
		inv.RedirectURL = DefaultRedirectURL
	}
	if inv.ExpiredAt == "" {
		inv.ExpiredAt = now.Add(InvoiceTTL).UTC().Format("2006-01-02T15:04:05.000Z")
	}
	for i, it := range req.Items {
		desc := it.Name
		if desc == "" {
			desc = it.Description
		}
		rate := it.Price
		if !truthy(rate) {
			rate = it.Rate
		}
		inv.Items[i] = invoiceItem{Description: desc, Quantity: it.Quantity, Rate: rate}
	}
	return inv, nil
}

// CreateInvoice maps storefront items {name, quantity, price} to the
// provider's {description, quantity, rate} and fills defaults.
func (c *Client) CreateInvoice(ctx context.Context, req InvoiceRequest) (Response, error) {
	inv, err := buildInvoice(req, c.now())
	if err != nil {
		return Response{}, err
	}
	return c.post(ctx, "/invoice/create", inv)
}

// CreateCoupon forwards body as is once it carries a discount.
func (c *Client) CreateCoupon(ctx context.Context, body map[string]any) (Response, error) {
	if !truthy(body["discount"]) {
		return Response{}, &ValidationError{Message: "Invalid payload. Required: discount array"}
	}
	return c.post(ctx, "/coupon/create", body)
}

func (c *Client) post(ctx context.Context, path string, body any) (Response, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("provider %s: encode: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return Response{}, fmt.Errorf("provider %s: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.hc.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("provider %s: %w", path, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return Response{}, fmt.Errorf("provider %s: read: %w", path, err)
	}
	c.log.Info("provider call", zap.String("path", path), zap.Int("status", res.StatusCode))
	if !json.Valid(raw) {
		return Response{}, fmt.Errorf("provider %s: status %d: response is not json", path, res.StatusCode)
	}
	return Response{Status: res.StatusCode, Body: raw}, nil
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case bool:
		return x
	case json.Number:
		f, err := x.Float64()
		return err != nil || f != 0
	case float64:
		return x != 0
	case int:
		return x != 0
	}
	return true
}
