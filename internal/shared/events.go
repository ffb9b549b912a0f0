package shared

import (
	"context"
	"time"
)

// EventType names a committed mutation broadcast to subscribers.
type EventType string

const (
	EventPurchaseOrderCreated   EventType = "purchase_order.created"
	EventPurchaseOrderUpdated   EventType = "purchase_order.updated"
	EventPurchaseOrderSubmitted EventType = "purchase_order.submitted"
	EventPurchaseOrderApproved  EventType = "purchase_order.approved"
	EventPurchaseOrderCancelled EventType = "purchase_order.cancelled"
	EventPurchaseOrderDeleted   EventType = "purchase_order.deleted"
	EventGRNCreated             EventType = "grn.created"
	EventGRNApproved            EventType = "grn.approved"
	EventGRNRejected            EventType = "grn.rejected"
	EventGRNInspected           EventType = "grn.inspected"
	EventSaleCreated            EventType = "sale.created"
	EventSaleDeleted            EventType = "sale.deleted"
	EventSalesImported          EventType = "sale.imported"
	EventDebitCreated           EventType = "debit.created"
	EventDebitUpdated           EventType = "debit.updated"
	EventDebitPaymentRecorded   EventType = "debit.payment_recorded"
	EventDebitCancelled         EventType = "debit.cancelled"
	EventDebitDeleted           EventType = "debit.deleted"
	EventSupplierCreated        EventType = "supplier.created"
	EventSupplierUpdated        EventType = "supplier.updated"
	EventSupplierDeleted        EventType = "supplier.deleted"
)

// Event describes a mutation after its transaction committed.
type Event struct {
	Type       EventType      `json:"type"`
	EntityID   string         `json:"entity_id"`
	ActorID    int64          `json:"actor_id"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Notifier informs the external pub/sub layer. Implementations are fire and
// forget; a failure must never undo the committed write.
type Notifier interface {
	Notify(ctx context.Context, evt Event) error
}

// NopNotifier discards every event.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(context.Context, Event) error { return nil }
