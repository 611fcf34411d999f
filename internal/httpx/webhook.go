package httpx

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Qzief/arufkuy-store/internal/logging"
	"github.com/Qzief/arufkuy-store/internal/metrics"
	"github.com/Qzief/arufkuy-store/internal/payment"
	"github.com/Qzief/arufkuy-store/internal/tasks"
)

const maxWebhookBody = 1 << 20

// WebhookHandler acknowledges provider deliveries and hands payments to the
// scheduler. Reconciliation outcomes never reach the response.
type WebhookHandler struct {
	Scheduler tasks.Scheduler
	Log       *zap.Logger
	Now       func() time.Time
}

func (h *WebhookHandler) Register(r chi.Router) {
	r.Post("/webhook", h.receive)
}

func (h *WebhookHandler) receive(w http.ResponseWriter, r *http.Request) {
	log := logging.L(r.Context(), h.Log)
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeText(w, http.StatusRequestEntityTooLarge, "Payload Too Large")
			return
		}
		writeText(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	raw, err := payment.Parse(body)
	if err != nil {
		metrics.Webhooks.WithLabelValues("invalid").Inc()
		log.Warn("webhook body is not json", zap.Error(err))
		writeText(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	ev := payment.Normalize(raw)
	metrics.Webhooks.WithLabelValues(string(ev.Kind)).Inc()
	if !ev.IsPayment() {
		log.Info("non-payment webhook ignored", zap.String("event_type", ev.Type))
		writeText(w, http.StatusOK, "OK - Ignored")
		return
	}

	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	job := tasks.NewJob(ev.InvoiceID, body, now())
	if err := h.Scheduler.Schedule(r.Context(), job); err != nil {
		// only happens while shutting down; a non-2xx makes the provider retry
		log.Error("schedule reconciliation", zap.String("job_id", job.ID), zap.Error(err))
		writeText(w, http.StatusServiceUnavailable, "Service Unavailable")
		return
	}
	log.Info("payment webhook scheduled",
		zap.String("job_id", job.ID),
		zap.String("invoice_id", ev.InvoiceID),
		zap.String("event_type", ev.Type))
	writeText(w, http.StatusOK, "OK")
}
