package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Qzief/arufkuy-store/internal/logging"
	"github.com/Qzief/arufkuy-store/internal/provider"
)

type PaymentProvider interface {
	CreateInvoice(ctx context.Context, req provider.InvoiceRequest) (provider.Response, error)
	CreateCoupon(ctx context.Context, body map[string]any) (provider.Response, error)
}

// ProviderHandler proxies storefront checkout calls to the payment provider.
// When the provider is not configured Provider is nil and ConfigErr says why.
type ProviderHandler struct {
	Provider  PaymentProvider
	ConfigErr error
	Log       *zap.Logger
}

func (h *ProviderHandler) Register(r chi.Router) {
	r.Post("/create-invoice", h.createInvoice)
	r.Post("/create-coupon", h.createCoupon)
}

func (h *ProviderHandler) configured(w http.ResponseWriter) bool {
	if h.Provider != nil {
		return true
	}
	details := "payment provider is not configured"
	if h.ConfigErr != nil {
		details = h.ConfigErr.Error()
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error":   "Server configuration error",
		"details": details,
	})
	return false
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	dec.UseNumber()
	return dec.Decode(out)
}

func (h *ProviderHandler) createInvoice(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	var req provider.InvoiceRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid payload. Required: email, mobile, description, items"})
		return
	}
	res, err := h.Provider.CreateInvoice(r.Context(), req)
	h.relay(w, r, res, err, "Failed to create invoice")
}

func (h *ProviderHandler) createCoupon(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	var body map[string]any
	if err := decodeBody(w, r, &body); err != nil || body == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid payload. Required: discount array"})
		return
	}
	res, err := h.Provider.CreateCoupon(r.Context(), body)
	h.relay(w, r, res, err, "Failed to create coupon")
}

func (h *ProviderHandler) relay(w http.ResponseWriter, r *http.Request, res provider.Response, err error, failure string) {
	var verr *provider.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": verr.Message})
	case err != nil:
		logging.L(r.Context(), h.Log).Error(failure, zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": failure, "details": err.Error()})
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(res.Status)
		_, _ = w.Write(res.Body)
	}
}
