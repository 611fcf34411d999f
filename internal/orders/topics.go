package orders

const (
	TopicPaymentReceived   = "payment.webhook.received"
	TopicPaymentReconciled = "order.payment.reconciled"
)

// Partition key = invoice id or order id, so redeliveries of one payment stay ordered.
func PartitionKey(id string) []byte { return []byte(id) }
