package audit

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Qzief/arufkuy-store/internal/docstore/docstoretest"
	"github.com/Qzief/arufkuy-store/internal/orders"
	"github.com/Qzief/arufkuy-store/internal/payment"
)

func TestNewID(t *testing.T) {
	now := time.UnixMilli(1_714_000_000_123)
	assert.Regexp(t, regexp.MustCompile(`^webhook_1714000000123_[0-9a-f]{8}$`), NewID(now))
	assert.NotEqual(t, NewID(now), NewID(now))
}

func TestFromMatch(t *testing.T) {
	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	ev := payment.Event{InvoiceID: "inv-1", Data: map[string]any{"email": "a@x.com"}}

	r := FromMatch(ev, nil, now)
	assert.Equal(t, NoOrder, r.MatchedOrderID)
	assert.Equal(t, StatusNoMatch, r.Status)
	assert.Equal(t, `{"email":"a@x.com"}`, r.Payload)
	assert.Equal(t, map[string]any{"email": "a@x.com"}, r.DecodedPayload())

	m := &orders.Match{Order: orders.Order{ID: "o1"}, Score: 3, Reason: orders.ReasonEmailAmount}
	r = FromMatch(ev, m, now)
	assert.Equal(t, "o1", r.MatchedOrderID)
	assert.Equal(t, StatusProcessed, r.Status)
	assert.Equal(t, 3, r.MatchScore)
	assert.Equal(t, "email+amount", r.MatchReason)
	assert.Equal(t, "inv-1", r.InvoiceID)
}

func TestDocstoreRecorder(t *testing.T) {
	ctx := context.Background()
	srv := docstoretest.New()
	defer srv.Close()
	rec := &DocstoreRecorder{Store: srv.Client()}

	base := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		r := Record{
			ID:             NewID(base),
			ReceivedAt:     base.Add(time.Duration(i) * time.Minute),
			Payload:        `{"n":1}`,
			MatchedOrderID: NoOrder,
			Status:         StatusNoMatch,
		}
		require.NoError(t, rec.Record(ctx, "tok", r))
	}
	for _, w := range srv.Writes() {
		assert.Empty(t, w.Mask, "audit records are full writes")
	}

	t.Run("ordered query", func(t *testing.T) {
		got, err := rec.Recent(ctx, "tok", 10)
		require.NoError(t, err)
		require.Len(t, got, 10)
		assert.True(t, got[0].ReceivedAt.Equal(base.Add(11*time.Minute)))
		assert.True(t, got[9].ReceivedAt.Equal(base.Add(2*time.Minute)))
		assert.Equal(t, NoOrder, got[0].MatchedOrderID)
	})

	t.Run("falls back to unordered fetch", func(t *testing.T) {
		srv.RejectOrderBy = true
		defer func() { srv.RejectOrderBy = false }()

		got, err := rec.Recent(ctx, "tok", 10)
		require.NoError(t, err)
		require.Len(t, got, 10)
		for i := 1; i < len(got); i++ {
			assert.False(t, got[i].ReceivedAt.After(got[i-1].ReceivedAt))
		}
	})

	t.Run("both queries fail", func(t *testing.T) {
		srv.Fail = func(op, path string) int { return 503 }
		defer func() { srv.Fail = nil }()

		_, err := rec.Recent(ctx, "tok", 10)
		assert.Error(t, err)
	})
}

type failingRecorder struct{ calls int }

func (f *failingRecorder) Record(context.Context, string, Record) error {
	f.calls++
	return errors.New("store down")
}

func (f *failingRecorder) Recent(context.Context, string, int) ([]Record, error) { return nil, nil }

func TestBestEffort_SwallowsErrors(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	rec := &failingRecorder{}
	b := BestEffort{Recorder: rec, Log: zap.New(core)}

	b.Record(context.Background(), "tok", Record{ID: "webhook_1_x"})
	assert.Equal(t, 1, rec.calls)
	entries := logs.FilterMessage("audit record failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "webhook_1_x", entries[0].ContextMap()["audit_id"])

	BestEffort{Log: zap.NewNop()}.Record(context.Background(), "tok", Record{})
}
