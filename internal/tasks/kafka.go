package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	kafkax "github.com/Qzief/arufkuy-store/internal/kafka"
	"github.com/Qzief/arufkuy-store/internal/metrics"
	"github.com/Qzief/arufkuy-store/internal/orders"
)

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// KafkaScheduler hands jobs to the reconciler process through the
// payment.webhook.received topic.
type KafkaScheduler struct {
	Producer    Publisher
	ServiceName string
}

func (k *KafkaScheduler) Schedule(ctx context.Context, job Job) error {
	payload, err := json.Marshal(orders.PaymentReceivedPayload{
		JobID:      job.ID,
		InvoiceID:  job.InvoiceID,
		ReceivedAt: job.ReceivedAt,
		Body:       job.Body,
	})
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	correlation := job.InvoiceID
	if correlation == "" {
		correlation = job.ID
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventPaymentReceived,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      k.ServiceName,
		CorrelationID: correlation,
		Payload:       payload,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		ev.TraceID = sc.TraceID().String()
	}
	k.Producer.Publish(orders.PartitionKey(correlation), kafkax.MustMarshal(ev), kafkax.EventHeaders(orders.EventPaymentReceived)...)
	return nil
}

// ConsumerHandler adapts a job Handler to the kafka consumer. Envelopes of
// other types are acknowledged and skipped. Handler errors are returned so
// the consumer skips the commit, but a later commit on the same partition
// moves the group offset past the message; only a restart before that
// redelivers it.
func ConsumerHandler(h Handler, timeout time.Duration, log *zap.Logger) kafkax.Handler {
	return func(ctx context.Context, m kafkago.Message) error {
		var env orders.Envelope
		if err := kafkax.UnmarshalEnvelope(m.Value, &env); err != nil {
			log.Error("drop undecodable envelope", zap.Int64("offset", m.Offset), zap.Error(err))
			return nil
		}
		if env.EventType != orders.EventPaymentReceived {
			return nil
		}
		p, err := kafkax.UnwrapPayload[orders.PaymentReceivedPayload](env.Payload)
		if err != nil {
			log.Error("drop undecodable job", zap.String("event_id", env.EventID), zap.Error(err))
			return nil
		}
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		job := Job{ID: p.JobID, InvoiceID: p.InvoiceID, ReceivedAt: p.ReceivedAt, Body: p.Body}
		if err := h(ctx, job); err != nil {
			metrics.TaskFailures.WithLabelValues("kafka").Inc()
			return fmt.Errorf("job %s: %w", job.ID, err)
		}
		return nil
	}
}
