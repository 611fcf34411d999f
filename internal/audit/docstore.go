package audit

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Qzief/arufkuy-store/internal/docstore"
)

const Collection = "webhook_logs"

// DocstoreRecorder writes one document per webhook with a full (unmasked)
// write, which creates it.
type DocstoreRecorder struct {
	Store *docstore.Client
}

func (d *DocstoreRecorder) Record(ctx context.Context, token string, r Record) error {
	fields := map[string]docstore.Value{
		"receivedAt":     docstore.TimestampValue(r.ReceivedAt),
		"payload":        docstore.StringValue(r.Payload),
		"matchedOrderId": docstore.StringValue(r.MatchedOrderID),
		"status":         docstore.StringValue(r.Status),
		"matchScore":     docstore.IntegerValue(int64(r.MatchScore)),
		"matchReason":    docstore.StringValue(r.MatchReason),
		"invoiceId":      docstore.StringValue(r.InvoiceID),
	}
	if _, err := d.Store.Update(ctx, Collection, r.ID, fields, token, nil); err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	return nil
}

// Recent returns the n newest records. Without an index on receivedAt the
// ordered query fails; a few extra unordered documents are then fetched and
// sorted here.
func (d *DocstoreRecorder) Recent(ctx context.Context, token string, n int) ([]Record, error) {
	if n <= 0 {
		n = DefaultRecent
	}
	q := docstore.From(Collection).OrderByField("receivedAt", docstore.Descending).WithLimit(n)
	docs, err := d.Store.Query(ctx, q, token)
	if err != nil {
		docs, err = d.Store.Query(ctx, q.Unordered().WithLimit(n+5), token)
		if err != nil {
			return nil, fmt.Errorf("read audit records: %w", err)
		}
	}
	out := make([]Record, 0, len(docs))
	for _, doc := range docs {
		out = append(out, recordFromDocument(doc))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ReceivedAt.After(out[j].ReceivedAt) })
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func recordFromDocument(doc docstore.Document) Record {
	m := doc.Data()
	r := Record{ID: doc.ID()}
	r.ReceivedAt, _ = m["receivedAt"].(time.Time)
	r.Payload, _ = m["payload"].(string)
	r.MatchedOrderID, _ = m["matchedOrderId"].(string)
	r.Status, _ = m["status"].(string)
	r.MatchReason, _ = m["matchReason"].(string)
	r.InvoiceID, _ = m["invoiceId"].(string)
	if s, ok := m["matchScore"].(int64); ok {
		r.MatchScore = int(s)
	}
	return r
}
