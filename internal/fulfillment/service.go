// Package fulfillment reconciles one payment event with a pending order and
// hands the paid order its stock units.
package fulfillment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Qzief/arufkuy-store/internal/audit"
	"github.com/Qzief/arufkuy-store/internal/docstore"
	kafkax "github.com/Qzief/arufkuy-store/internal/kafka"
	"github.com/Qzief/arufkuy-store/internal/logging"
	"github.com/Qzief/arufkuy-store/internal/metrics"
	"github.com/Qzief/arufkuy-store/internal/orders"
	"github.com/Qzief/arufkuy-store/internal/payment"
	"github.com/Qzief/arufkuy-store/internal/redisx"
	"github.com/Qzief/arufkuy-store/internal/tasks"
)

const tracerName = "github.com/Qzief/arufkuy-store/internal/fulfillment"

type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Store is the slice of orders.Repo the chain needs.
type Store interface {
	ListPending(ctx context.Context, token string) ([]orders.Order, error)
	GetOrder(ctx context.Context, token, orderID string) (orders.Order, error)
	GetProduct(ctx context.Context, token, productID string) (orders.Product, error)
	WriteStock(ctx context.Context, token, productID string, plan orders.Plan, ifUpdatedAt time.Time) error
	MarkPaid(ctx context.Context, token, orderID, invoiceID string, paidAt time.Time, delivered []orders.StockUnit) error
}

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type Outcome string

const (
	OutcomeFulfilled   Outcome = "fulfilled"
	OutcomeNoMatch     Outcome = "no_match"
	OutcomeDuplicate   Outcome = "duplicate"
	OutcomeAlreadyPaid Outcome = "already_paid"
)

type Result struct {
	Outcome Outcome
	Match   *orders.Match
	Plan    orders.Plan
	AuditID string
}

// Service runs token -> query -> match -> audit -> get -> update -> update.
// Dedup, Locker and Outcomes are optional.
type Service struct {
	Tokens TokenSource
	Orders Store
	Audit  audit.BestEffort

	Dedup    redisx.Deduper
	DedupTTL time.Duration
	// Locker serializes fulfillment per order id when set.
	Locker redisx.Locker
	// ConditionalWrites makes the stock write fail when the product changed
	// after it was read.
	ConditionalWrites bool

	Outcomes    Publisher
	ServiceName string

	Log *zap.Logger
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// HandleJob is the tasks.Handler for webhook jobs. Bodies that do not parse
// or are not payments are dropped without error so queue mode never
// redelivers them.
func (s *Service) HandleJob(ctx context.Context, job tasks.Job) error {
	log := logging.L(ctx, s.Log).With(zap.String("job_id", job.ID))
	raw, err := payment.Parse(job.Body)
	if err != nil {
		log.Error("job body is not json", zap.Error(err))
		return nil
	}
	ev := payment.Normalize(raw)
	if !ev.IsPayment() {
		log.Debug("job is not a payment", zap.String("event_type", ev.Type))
		return nil
	}
	_, err = s.Reconcile(ctx, ev)
	return err
}

// Reconcile matches ev to a pending order, picks its stock and marks it
// paid. A missing pending order is reported in Result, not as an error.
// Any store failure aborts the chain; the provider's retry re-runs it.
//
// The stock decrement and the status flip are two plain writes with no
// compare-and-swap. Two deliveries that read the same pending order or the
// same stock list before either writes will both succeed and can hand out
// the same unit. Locker and ConditionalWrites close that window; with both
// off it stays open.
func (s *Service) Reconcile(ctx context.Context, ev payment.Event) (res Result, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "fulfillment.Reconcile",
		trace.WithAttributes(attribute.String("payment.invoice_id", ev.InvoiceID)))
	defer func() {
		span.SetAttributes(attribute.String("reconcile.outcome", string(res.Outcome)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	log := logging.L(ctx, s.Log).With(zap.String("invoice_id", ev.InvoiceID))
	log.Info("reconcile payment",
		zap.String("email", ev.Email),
		zap.Int64("amount", ev.Amount),
		zap.String("order_hint", ev.OrderID))

	if key := s.dedupKey(ev); key != "" {
		ok, derr := s.Dedup.Claim(ctx, key, s.dedupTTL())
		switch {
		case derr != nil:
			// fail open: a dedup outage must not block payments
			log.Warn("dedup claim failed", zap.String("key", key), zap.Error(derr))
		case !ok:
			metrics.Duplicates.Inc()
			log.Info("duplicate delivery skipped", zap.String("key", key))
			return Result{Outcome: OutcomeDuplicate}, nil
		default:
			defer func() {
				if err != nil || res.Outcome == OutcomeNoMatch {
					if rerr := s.Dedup.Release(context.WithoutCancel(ctx), key); rerr != nil {
						log.Warn("dedup release failed", zap.String("key", key), zap.Error(rerr))
					}
				}
			}()
		}
	}

	token, err := s.Tokens.Token(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("access token: %w", err)
	}

	pending, err := s.Orders.ListPending(ctx, token)
	if err != nil {
		return Result{}, err
	}
	log.Info("pending candidates", zap.Int("count", len(pending)))

	m, err := orders.MatchOrder(ev, pending)
	if errors.Is(err, orders.ErrNoMatch) {
		rec := audit.FromMatch(ev, nil, s.now())
		s.Audit.Record(ctx, token, rec)
		log.Warn("no pending order for payment", zap.String("audit_id", rec.ID))
		return Result{Outcome: OutcomeNoMatch, AuditID: rec.ID}, nil
	}
	if err != nil {
		return Result{}, err
	}

	metrics.Matches.WithLabelValues(string(m.Reason)).Inc()
	span.SetAttributes(
		attribute.String("order.id", m.Order.ID),
		attribute.Int("match.score", m.Score),
		attribute.String("match.reason", string(m.Reason)))
	mlog := log.With(zap.String("order_id", m.Order.ID))
	fields := []zap.Field{
		zap.Int("score", m.Score),
		zap.String("reason", string(m.Reason)),
		zap.Bool("email_match", m.EmailMatch),
		zap.Bool("amount_match", m.AmountMatch),
		zap.Bool("phone_match", m.PhoneMatch),
	}
	if m.Reason == orders.ReasonFallback {
		mlog.Warn("no candidate scored, using most recent pending order", fields...)
	} else {
		mlog.Info("matched order", fields...)
	}

	rec := audit.FromMatch(ev, &m, s.now())
	s.Audit.Record(ctx, token, rec)
	res = Result{Match: &m, AuditID: rec.ID}

	order := m.Order
	if s.Locker != nil {
		unlock, lerr := s.Locker.Lock(ctx, redisx.OrderLockKey(order.ID), redisx.TTLLock)
		if lerr != nil {
			return res, fmt.Errorf("lock order %s: %w", order.ID, lerr)
		}
		defer func() {
			if uerr := unlock(context.WithoutCancel(ctx)); uerr != nil {
				mlog.Warn("unlock order failed", zap.Error(uerr))
			}
		}()
		order, err = s.Orders.GetOrder(ctx, token, order.ID)
		if err != nil {
			return res, err
		}
		if !orders.CanTransition(order.Status, orders.StatusPaid) {
			mlog.Info("order no longer pending", zap.String("status", string(order.Status)))
			res.Outcome = OutcomeAlreadyPaid
			return res, nil
		}
	}

	plan, err := s.fulfill(ctx, token, order, mlog)
	if err != nil {
		return res, err
	}
	res.Plan = plan

	if err := s.Orders.MarkPaid(ctx, token, order.ID, ev.InvoiceID, s.now().UTC(), plan.Delivered); err != nil {
		return res, err
	}
	metrics.DeliveredUnits.Add(float64(len(plan.Delivered)))
	mlog.Info("order marked paid", zap.Int("delivered", len(plan.Delivered)))

	s.publishOutcome(ctx, ev, m, order, plan)
	res.Outcome = OutcomeFulfilled
	return res, nil
}

// fulfill picks and writes stock. Orders without a product, or whose product
// is gone, get an empty plan and are still marked paid.
func (s *Service) fulfill(ctx context.Context, token string, order orders.Order, log *zap.Logger) (orders.Plan, error) {
	if order.ProductID == "" {
		log.Warn("order has no product, marking paid without delivery")
		return orders.Plan{}, nil
	}
	product, err := s.Orders.GetProduct(ctx, token, order.ProductID)
	if errors.Is(err, docstore.ErrNotFound) {
		log.Warn("product not found, marking paid without delivery", zap.String("product_id", order.ProductID))
		return orders.Plan{}, nil
	}
	if err != nil {
		return orders.Plan{}, err
	}

	plan := orders.PlanFulfillment(order, product)
	if plan.Warning != nil {
		metrics.EmptyStock.WithLabelValues(plan.Warning.Reason).Inc()
		log.Warn("nothing to deliver", zap.String("product_id", product.ID), zap.Error(plan.Warning))
		return plan, nil
	}
	log.Info("picked stock",
		zap.String("product_id", product.ID),
		zap.String("variant_id", order.VariantID),
		zap.Int("picked", len(plan.Delivered)),
		zap.Int("remaining", plan.Remaining))

	var ifUpdated time.Time
	if s.ConditionalWrites {
		ifUpdated = product.UpdateTime
	}
	if err := s.Orders.WriteStock(ctx, token, product.ID, plan, ifUpdated); err != nil {
		return plan, err
	}
	return plan, nil
}

func (s *Service) publishOutcome(ctx context.Context, ev payment.Event, m orders.Match, order orders.Order, plan orders.Plan) {
	if s.Outcomes == nil {
		return
	}
	p := orders.PaymentReconciledPayload{
		OrderID:     order.ID,
		InvoiceID:   ev.InvoiceID,
		ProductID:   order.ProductID,
		VariantID:   order.VariantID,
		Delivered:   len(plan.Delivered),
		Remaining:   plan.Remaining,
		MatchReason: string(m.Reason),
		MatchScore:  m.Score,
	}
	if plan.Warning != nil {
		p.Warning = plan.Warning.Reason
	}
	env := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventPaymentReconciled,
		EventVersion:  1,
		OccurredAt:    s.now().UTC(),
		Producer:      s.ServiceName,
		CorrelationID: order.ID,
		Payload:       kafkax.MustMarshal(p),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		env.TraceID = sc.TraceID().String()
	}
	s.Outcomes.Publish(orders.PartitionKey(order.ID), kafkax.MustMarshal(env), kafkax.EventHeaders(orders.EventPaymentReconciled)...)
}

// dedupKey keys on the invoice id, or on a digest of the payload when the
// provider sent none. encoding/json sorts map keys, so equal payloads hash
// equally.
func (s *Service) dedupKey(ev payment.Event) string {
	if s.Dedup == nil {
		return ""
	}
	if ev.InvoiceID != "" {
		return redisx.DedupKey(redisx.ScopeReconcile, ev.InvoiceID)
	}
	b, err := json.Marshal(ev.Data)
	if err != nil || len(ev.Data) == 0 {
		return ""
	}
	sum := sha256.Sum256(b)
	return redisx.DedupKey(redisx.ScopeReconcilePayload, hex.EncodeToString(sum[:]))
}

func (s *Service) dedupTTL() time.Duration {
	if s.DedupTTL > 0 {
		return s.DedupTTL
	}
	return redisx.TTLDedup
}
