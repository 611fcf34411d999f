package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Qzief/arufkuy-store/internal/audit"
	"github.com/Qzief/arufkuy-store/internal/docstore"
	"github.com/Qzief/arufkuy-store/internal/logging"
	"github.com/Qzief/arufkuy-store/internal/orders"
)

type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type Querier interface {
	Query(ctx context.Context, q docstore.StructuredQuery, token string) ([]docstore.Document, error)
}

// DiagnosticsHandler serves /webhook-test and /check-logs.
type DiagnosticsHandler struct {
	Tokens TokenSource
	Store  Querier
	Audit  audit.Recorder
	// Env maps setting names to whether they are present.
	Env     map[string]bool
	Limiter *IPLimiter
	Log     *zap.Logger
	Now     func() time.Time
}

func (h *DiagnosticsHandler) Register(r chi.Router) {
	var mws []func(http.Handler) http.Handler
	if h.Limiter != nil {
		mws = append(mws, h.Limiter.Middleware)
	}
	rr := r.With(mws...)
	rr.Get("/webhook-test", h.selfTest)
	rr.Get("/check-logs", h.checkLogs)
}

func (h *DiagnosticsHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *DiagnosticsHandler) selfTest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checks := map[string]any{}
	diag := map[string]any{"timestamp": h.now().UTC().Format(time.RFC3339), "checks": checks}

	env := map[string]string{}
	for k, ok := range h.Env {
		env[k] = "MISSING"
		if ok {
			env[k] = "OK"
		}
	}
	checks["env"] = env

	fail := func(err error) {
		logging.L(ctx, h.Log).Warn("diagnostics failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"ok":          false,
			"message":     "System diagnostics FAILED",
			"error":       err.Error(),
			"diagnostics": diag,
		})
	}

	t0 := time.Now()
	token, err := h.Tokens.Token(ctx)
	if err != nil {
		fail(err)
		return
	}
	checks["auth"] = map[string]any{
		"status":      "OK",
		"latencyMs":   time.Since(t0).Milliseconds(),
		"tokenPrefix": prefix(token, 10) + "...",
	}

	t1 := time.Now()
	docs, err := h.Store.Query(ctx, docstore.From(orders.CollectionOrders).WithLimit(1), token)
	if err != nil {
		fail(err)
		return
	}
	checks["firestore"] = map[string]any{
		"status":      "OK",
		"latencyMs":   time.Since(t1).Milliseconds(),
		"foundOrders": len(docs),
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":          true,
		"message":     "System diagnostics passed",
		"diagnostics": diag,
	})
}

type logView struct {
	ID             string    `json:"id"`
	ReceivedAt     time.Time `json:"receivedAt"`
	Status         string    `json:"status"`
	MatchedOrderID string    `json:"matchedOrderId"`
	MatchScore     int       `json:"matchScore"`
	MatchReason    string    `json:"matchReason,omitempty"`
	InvoiceID      string    `json:"invoiceId,omitempty"`
	Payload        any       `json:"payload"`
}

func (h *DiagnosticsHandler) checkLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token, err := h.Tokens.Token(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	recs, err := h.Audit.Recent(ctx, token, audit.DefaultRecent)
	if err != nil {
		logging.L(ctx, h.Log).Warn("read audit log", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	out := make([]logView, len(recs))
	for i, rec := range recs {
		out[i] = logView{
			ID:             rec.ID,
			ReceivedAt:     rec.ReceivedAt,
			Status:         rec.Status,
			MatchedOrderID: rec.MatchedOrderID,
			MatchScore:     rec.MatchScore,
			MatchReason:    rec.MatchReason,
			InvoiceID:      rec.InvoiceID,
			Payload:        rec.DecodedPayload(),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "count": len(out), "logs": out})
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
