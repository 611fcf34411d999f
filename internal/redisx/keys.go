package redisx

import (
	"fmt"
	"time"
)

const (
	// Dedup event processing: dedup:{scope}:{id} (id = invoice id, or payload sha256)
	KeyDedup = "dedup:%s:%s"

	// Advisory lock per order: lock:order:{order_id} -> owner token
	KeyOrderLock = "lock:order:%s"

	ScopeReconcile        = "reconcile"
	ScopeReconcilePayload = "reconcile-payload"
)

var (
	TTLDedup = 48 * time.Hour
	TTLLock  = 30 * time.Second
)

func DedupKey(scope, id string) string { return fmt.Sprintf(KeyDedup, scope, id) }

func OrderLockKey(orderID string) string { return fmt.Sprintf(KeyOrderLock, orderID) }
