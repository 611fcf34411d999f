package orders

import (
	"errors"
	"sort"
	"strings"

	"github.com/Qzief/arufkuy-store/internal/payment"
)

const (
	// AmountTolerance absorbs rounding and fee differences, in minor units.
	AmountTolerance = 100
	// PhoneSuffixDigits is how many trailing digits must agree for a phone match.
	PhoneSuffixDigits = 8

	ScoreExact = 4
)

var ErrNoMatch = errors.New("orders: no pending order to match")

type Reason string

const (
	ReasonOrderID     Reason = "order_id"
	ReasonEmailAmount Reason = "email+amount"
	ReasonEmail       Reason = "email"
	ReasonPhoneAmount Reason = "phone+amount"
	ReasonAmount      Reason = "amount"
	ReasonPhone       Reason = "phone"
	ReasonFallback    Reason = "fallback"
)

type Match struct {
	Order  Order
	Score  int
	Reason Reason

	EmailMatch  bool
	AmountMatch bool
	PhoneMatch  bool
}

// SortNewestFirst orders candidates by Recency, newest first. Ties keep
// their incoming order.
func SortNewestFirst(pending []Order) {
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].Recency().After(pending[j].Recency())
	})
}

// MatchOrder picks the pending order a payment belongs to. pending is sorted
// in place. An explicit order id wins outright; otherwise the highest score
// wins with ties going to the newer order, and the newest order is the
// fallback when nothing scores.
func MatchOrder(ev payment.Event, pending []Order) (Match, error) {
	if len(pending) == 0 {
		return Match{}, ErrNoMatch
	}
	SortNewestFirst(pending)

	if ev.OrderID != "" {
		for _, o := range pending {
			if o.ID == ev.OrderID {
				return Match{Order: o, Score: ScoreExact, Reason: ReasonOrderID}, nil
			}
		}
	}

	var best Match
	for _, o := range pending {
		m := Score(ev, o)
		if m.Score > best.Score {
			best = m
			if m.Score >= 3 {
				break
			}
		}
	}
	if best.Score > 0 {
		return best, nil
	}
	return Match{Order: pending[0], Reason: ReasonFallback}, nil
}

// Score rates one candidate without looking at the explicit order id.
func Score(ev payment.Event, o Order) Match {
	m := Match{
		Order:       o,
		EmailMatch:  emailMatch(ev.Email, o.CustomerEmail),
		AmountMatch: amountMatch(ev.Amount, o.TotalPrice),
		PhoneMatch:  phoneMatch(ev.Phone, o.CustomerPhone),
	}
	switch {
	case m.EmailMatch && m.AmountMatch:
		m.Score, m.Reason = 3, ReasonEmailAmount
	case m.EmailMatch:
		m.Score, m.Reason = 2, ReasonEmail
	case m.PhoneMatch && m.AmountMatch:
		m.Score, m.Reason = 2, ReasonPhoneAmount
	case m.AmountMatch:
		m.Score, m.Reason = 1, ReasonAmount
	case m.PhoneMatch:
		m.Score, m.Reason = 1, ReasonPhone
	}
	return m
}

func emailMatch(a, b string) bool {
	return a != "" && b != "" && strings.EqualFold(a, b)
}

func amountMatch(paid, total int64) bool {
	if paid == 0 || total == 0 {
		return false
	}
	d := paid - total
	if d < 0 {
		d = -d
	}
	return d < AmountTolerance
}

func phoneMatch(a, b string) bool {
	da, db := digits(a), digits(b)
	if da == "" || db == "" {
		return false
	}
	return strings.HasSuffix(da, suffix(db)) || strings.HasSuffix(db, suffix(da))
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func suffix(d string) string {
	if len(d) > PhoneSuffixDigits {
		return d[len(d)-PhoneSuffixDigits:]
	}
	return d
}
