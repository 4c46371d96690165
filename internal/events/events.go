// Package events publishes order lifecycle events to Kafka so downstream
// systems (ERP, analytics) can follow what the bridge did with an order.
package events

import (
	"context"
	"strconv"
	"sync"
	"time"

	"garan24-bridge/internal/model"
)

// Event types.
const (
	TypeOrderConfirmed = "order.confirmed"
	TypeOrderActivated = "order.activated"
	TypeOrderCancelled = "order.cancelled"
	TypeOrderUpdated   = "order.updated"
	TypeOrderRefunded  = "order.refunded"
	TypeOrderStatus    = "order.status_changed"
	TypeOrderPurged    = "order.purged"
)

// OrderEvent is the payload published for every order lifecycle change.
type OrderEvent struct {
	Type      string       `json:"type"`
	OrderID   int64        `json:"order_id"`
	Status    model.Status `json:"status,omitempty"`
	Previous  model.Status `json:"previous_status,omitempty"`
	API       string       `json:"api,omitempty"`
	Reference string       `json:"reference,omitempty"`
	Amount    int64        `json:"amount,omitempty"`
	Currency  string       `json:"currency,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// Key is the partition key: events of one order stay ordered.
func (e OrderEvent) Key() string {
	return strconv.FormatInt(e.OrderID, 10)
}

// NewOrderEvent fills the order fields of an event.
func NewOrderEvent(typ string, o *model.Order) OrderEvent {
	return OrderEvent{
		Type:      typ,
		OrderID:   o.ID,
		Status:    o.Status,
		API:       o.MetaValue(model.MetaAPI),
		Currency:  o.Currency,
		Timestamp: time.Now().UTC(),
	}
}

// Publisher sends order events.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Nop drops every event. Used when no brokers are configured.
type Nop struct{}

// Publish does nothing.
func (Nop) Publish(context.Context, string, any) error { return nil }

// Recorder keeps published events in memory for tests.
type Recorder struct {
	mu     sync.Mutex
	events []OrderEvent
}

// Publish records OrderEvent values and ignores anything else.
func (r *Recorder) Publish(_ context.Context, _ string, event any) error {
	e, ok := event.(OrderEvent)
	if !ok {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []OrderEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]OrderEvent(nil), r.events...)
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, len(r.events))
	for i, e := range r.events {
		types[i] = e.Type
	}
	return types
}

var (
	_ Publisher = Nop{}
	_ Publisher = (*Recorder)(nil)
	_ Publisher = (*Producer)(nil)
)
