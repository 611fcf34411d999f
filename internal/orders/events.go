package orders

import (
	"encoding/json"
	"time"
)

const (
	EventPaymentReceived   = "PaymentReceived"
	EventPaymentReconciled = "PaymentReconciled"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // one of the consts above
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "arufkuy-store"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // invoice id, or order id once matched
	Payload       json.RawMessage `json:"payload"`
}

// ---- Payloads ----

// PaymentReceivedPayload carries a raw webhook body to the reconciler.
type PaymentReceivedPayload struct {
	JobID      string          `json:"job_id"`
	InvoiceID  string          `json:"invoice_id,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
	Body       json.RawMessage `json:"body"`
}

type PaymentReconciledPayload struct {
	OrderID     string `json:"order_id"`
	InvoiceID   string `json:"invoice_id"`
	ProductID   string `json:"product_id,omitempty"`
	VariantID   string `json:"variant_id,omitempty"`
	Delivered   int    `json:"delivered"`
	Remaining   int    `json:"remaining"`
	MatchReason string `json:"match_reason"`
	MatchScore  int    `json:"match_score"`
	Warning     string `json:"warning,omitempty"`
}
