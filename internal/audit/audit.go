// Package audit keeps a copy of every payment webhook together with the
// match outcome, so low-confidence matches can be reviewed by an operator.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Qzief/arufkuy-store/internal/orders"
	"github.com/Qzief/arufkuy-store/internal/payment"
)

const (
	StatusProcessed = "processed"
	StatusNoMatch   = "no_match"

	// NoOrder is stored as matchedOrderId when nothing matched.
	NoOrder = "NONE"

	DefaultRecent = 10
)

type Record struct {
	ID             string    `json:"id"`
	ReceivedAt     time.Time `json:"receivedAt"`
	Payload        string    `json:"-"`
	MatchedOrderID string    `json:"matchedOrderId"`
	Status         string    `json:"status"`
	MatchScore     int       `json:"matchScore"`
	MatchReason    string    `json:"matchReason,omitempty"`
	InvoiceID      string    `json:"invoiceId,omitempty"`
}

// Recorder persists audit records. token is the store credential of the
// current call chain; backends that do not need it ignore it.
type Recorder interface {
	Record(ctx context.Context, token string, r Record) error
	Recent(ctx context.Context, token string, n int) ([]Record, error)
}

// NewID returns webhook_<unix millis>_<random suffix>.
func NewID(now time.Time) string {
	return fmt.Sprintf("webhook_%d_%s", now.UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// FromMatch builds the record for one reconciliation attempt. A nil match
// means no pending order was found.
func FromMatch(ev payment.Event, m *orders.Match, now time.Time) Record {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		payload = []byte("{}")
	}
	r := Record{
		ID:             NewID(now),
		ReceivedAt:     now.UTC(),
		Payload:        string(payload),
		MatchedOrderID: NoOrder,
		Status:         StatusNoMatch,
		InvoiceID:      ev.InvoiceID,
	}
	if m != nil {
		r.MatchedOrderID = m.Order.ID
		r.Status = StatusProcessed
		r.MatchScore = m.Score
		r.MatchReason = string(m.Reason)
	}
	return r
}

// DecodedPayload returns the stored payload as JSON, or the raw string when
// it does not parse.
func (r Record) DecodedPayload() any {
	var v any
	if err := json.Unmarshal([]byte(r.Payload), &v); err != nil {
		return r.Payload
	}
	return v
}

// BestEffort never lets an audit failure reach the caller.
type BestEffort struct {
	Recorder Recorder
	Log      *zap.Logger
}

func (b BestEffort) Record(ctx context.Context, token string, r Record) {
	if b.Recorder == nil {
		return
	}
	if err := b.Recorder.Record(ctx, token, r); err != nil {
		b.Log.Warn("audit record failed", zap.String("audit_id", r.ID), zap.Error(err))
		return
	}
	b.Log.Debug("audit recorded", zap.String("audit_id", r.ID), zap.String("order_id", r.MatchedOrderID))
}
