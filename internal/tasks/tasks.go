// Package tasks runs reconciliation work after the webhook has been
// acknowledged. Outcomes surface in logs and metrics only.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrStopped = errors.New("tasks: scheduler stopped")

// Job is one webhook delivery waiting to be reconciled.
type Job struct {
	ID         string          `json:"id"`
	InvoiceID  string          `json:"invoice_id,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
	Body       json.RawMessage `json:"body"`
}

func NewJob(invoiceID string, body []byte, now time.Time) Job {
	return Job{
		ID:         uuid.NewString(),
		InvoiceID:  invoiceID,
		ReceivedAt: now.UTC(),
		Body:       append(json.RawMessage(nil), body...),
	}
}

type Handler func(ctx context.Context, job Job) error

// Scheduler accepts a job for background execution. A nil error means the
// job was handed off, not that it succeeded.
type Scheduler interface {
	Schedule(ctx context.Context, job Job) error
}
