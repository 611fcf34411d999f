package orders

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Qzief/arufkuy-store/internal/payment"
)

var t0 = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

func pendingOrder(id, email string, total int64, age time.Duration) Order {
	return Order{ID: id, CustomerEmail: email, TotalPrice: total, Status: StatusPending, CreateTime: t0.Add(-age)}
}

func TestMatchOrder_NoPending(t *testing.T) {
	_, err := MatchOrder(payment.Event{Email: "a@x.com"}, nil)
	assert.True(t, errors.Is(err, ErrNoMatch))
}

func TestMatchOrder_ExplicitOrderIDWins(t *testing.T) {
	pending := []Order{
		pendingOrder("A1", "a@x.com", 50000, time.Minute),
		pendingOrder("ORD42", "other@x.com", 10, time.Hour),
	}
	ev := payment.Event{Email: "a@x.com", Amount: 50000, OrderID: "ORD42"}

	m, err := MatchOrder(ev, pending)
	require.NoError(t, err)
	assert.Equal(t, "ORD42", m.Order.ID)
	assert.Equal(t, ReasonOrderID, m.Reason)
	assert.Equal(t, ScoreExact, m.Score)
}

func TestMatchOrder_UnknownOrderIDFallsBackToScoring(t *testing.T) {
	pending := []Order{pendingOrder("A1", "a@x.com", 50000, time.Minute)}
	m, err := MatchOrder(payment.Event{Email: "a@x.com", Amount: 50000, OrderID: "GONE"}, pending)
	require.NoError(t, err)
	assert.Equal(t, "A1", m.Order.ID)
	assert.Equal(t, ReasonEmailAmount, m.Reason)
}

func TestMatchOrder_EmailBeatsAmount(t *testing.T) {
	pending := []Order{
		pendingOrder("amount-only", "z@x.com", 50000, time.Minute),
		pendingOrder("email-only", "a@x.com", 99999, time.Hour),
	}
	m, err := MatchOrder(payment.Event{Email: "A@X.com", Amount: 50000}, pending)
	require.NoError(t, err)
	assert.Equal(t, "email-only", m.Order.ID)
	assert.Equal(t, 2, m.Score)
	assert.Equal(t, ReasonEmail, m.Reason)
}

func TestMatchOrder_Score3PreferredAndStops(t *testing.T) {
	pending := []Order{
		pendingOrder("email-only-newest", "a@x.com", 1, time.Second),
		pendingOrder("perfect", "a@x.com", 50050, time.Minute),
		pendingOrder("perfect-older", "a@x.com", 50000, time.Hour),
	}
	m, err := MatchOrder(payment.Event{Email: "a@x.com", Amount: 50000}, pending)
	require.NoError(t, err)
	assert.Equal(t, "perfect", m.Order.ID)
	assert.Equal(t, 3, m.Score)
	assert.True(t, m.EmailMatch)
	assert.True(t, m.AmountMatch)
}

func TestMatchOrder_TiesGoToNewest(t *testing.T) {
	pending := []Order{
		pendingOrder("old", "", 50000, 2*time.Hour),
		pendingOrder("new", "", 50000, time.Minute),
	}
	m, err := MatchOrder(payment.Event{Amount: 50000}, pending)
	require.NoError(t, err)
	assert.Equal(t, "new", m.Order.ID)
	assert.Equal(t, ReasonAmount, m.Reason)
}

func TestMatchOrder_FallbackToMostRecent(t *testing.T) {
	older := pendingOrder("older", "b@x.com", 10, 0)
	older.CreateTime = t0.Add(-time.Hour)
	older.CreatedAt = t0.Add(time.Hour) // field timestamp is newer than the doc
	pending := []Order{
		pendingOrder("recent-doc", "c@x.com", 20, time.Minute),
		older,
	}
	m, err := MatchOrder(payment.Event{Email: "nobody@x.com", Amount: 999999}, pending)
	require.NoError(t, err)
	assert.Equal(t, "older", m.Order.ID)
	assert.Equal(t, ReasonFallback, m.Reason)
	assert.Zero(t, m.Score)
}

func TestScore(t *testing.T) {
	base := Order{CustomerEmail: "a@x.com", CustomerPhone: "+62 812-3456-7890", TotalPrice: 50000}
	tests := []struct {
		name   string
		ev     payment.Event
		score  int
		reason Reason
	}{
		{"email and amount", payment.Event{Email: "a@x.com", Amount: 50099}, 3, ReasonEmailAmount},
		{"amount just outside tolerance", payment.Event{Email: "a@x.com", Amount: 50100}, 2, ReasonEmail},
		{"phone and amount", payment.Event{Phone: "081234567890", Amount: 49901}, 2, ReasonPhoneAmount},
		{"amount only", payment.Event{Amount: 50000}, 1, ReasonAmount},
		{"phone only", payment.Event{Phone: "34567890"}, 1, ReasonPhone},
		{"short phone suffix of stored", payment.Event{Phone: "7890"}, 1, ReasonPhone},
		{"phone without digits", payment.Event{Phone: "n/a"}, 0, ""},
		{"zero amount never matches", payment.Event{Amount: 0}, 0, ""},
		{"nothing", payment.Event{Email: "b@x.com", Phone: "0899", Amount: 1}, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Score(tt.ev, base)
			assert.Equal(t, tt.score, m.Score)
			assert.Equal(t, tt.reason, m.Reason)
		})
	}
}

func TestSortNewestFirst(t *testing.T) {
	a := Order{ID: "a", CreateTime: t0}
	b := Order{ID: "b", CreateTime: t0.Add(-time.Hour), CreatedAt: t0.Add(time.Minute)}
	c := Order{ID: "c"}
	list := []Order{c, a, b}
	SortNewestFirst(list)
	assert.Equal(t, []string{"b", "a", "c"}, []string{list[0].ID, list[1].ID, list[2].ID})
}
