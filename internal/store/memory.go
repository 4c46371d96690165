package store

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"garan24-bridge/internal/model"
)

// Memory is an in-process OrderStore for development and tests.
type Memory struct {
	mu      sync.Mutex
	orders  map[int64]*model.Order
	pending map[int64]time.Time
	nextID  int64
	noteID  int64

	// Now is the clock used for timestamps. Defaults to time.Now.
	Now func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		orders:  make(map[int64]*model.Order),
		pending: make(map[int64]time.Time),
		Now:     time.Now,
	}
}

func (m *Memory) now() time.Time {
	if m.Now == nil {
		return time.Now()
	}
	return m.Now()
}

// Create stores a new order and assigns its id. A preset CreatedAt is kept.
func (m *Memory) Create(_ context.Context, o *model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	o.ID = m.nextID
	now := m.now()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	if o.Status == "" {
		o.Status = model.StatusPending
	}
	m.orders[o.ID] = clone(o)
	return nil
}

// Get returns a copy of the order.
func (m *Memory) Get(_ context.Context, id int64) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, orderNotFound()
	}
	return clone(o), nil
}

// Save replaces the stored order. Meta keys are merged; notes are kept.
func (m *Memory) Save(_ context.Context, o *model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.orders[o.ID]
	if !ok {
		return orderNotFound()
	}
	o.UpdatedAt = m.now()
	next := clone(o)
	next.CreatedAt = cur.CreatedAt
	next.Notes = cur.Notes
	next.Meta = maps.Clone(cur.Meta)
	if next.Meta == nil {
		next.Meta = make(map[string]string)
	}
	maps.Copy(next.Meta, o.Meta)
	m.orders[o.ID] = next
	return nil
}

// Delete removes an order and its pending check.
func (m *Memory) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orders[id]; !ok {
		return orderNotFound()
	}
	delete(m.orders, id)
	delete(m.pending, id)
	return nil
}

// GetMeta returns a meta value, "" when unset.
func (m *Memory) GetMeta(_ context.Context, id int64, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return "", orderNotFound()
	}
	return o.Meta[key], nil
}

// SetMeta sets a meta value.
func (m *Memory) SetMeta(_ context.Context, id int64, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return orderNotFound()
	}
	if o.Meta == nil {
		o.Meta = make(map[string]string)
	}
	o.Meta[key] = value
	return nil
}

// AddMeta sets key only when it is absent and reports whether it did.
func (m *Memory) AddMeta(_ context.Context, id int64, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return false, orderNotFound()
	}
	if _, exists := o.Meta[key]; exists {
		return false, nil
	}
	if o.Meta == nil {
		o.Meta = make(map[string]string)
	}
	o.Meta[key] = value
	return true, nil
}

// DeleteMeta removes a meta key.
func (m *Memory) DeleteMeta(_ context.Context, id int64, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return orderNotFound()
	}
	delete(o.Meta, key)
	return nil
}

// AddNote appends an order note.
func (m *Memory) AddNote(_ context.Context, id int64, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return orderNotFound()
	}
	m.noteID++
	o.Notes = append(o.Notes, model.Note{ID: m.noteID, Content: content, CreatedAt: m.now()})
	return nil
}

// ListByStatus returns orders in status created before createdBefore.
func (m *Memory) ListByStatus(_ context.Context, status model.Status, createdBefore time.Time) ([]*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*model.Order
	for _, o := range m.orders {
		if o.Status == status && o.CreatedAt.Before(createdBefore) {
			out = append(out, clone(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// SchedulePendingCheck sets or moves the order's next status check.
func (m *Memory) SchedulePendingCheck(_ context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orders[id]; !ok {
		return orderNotFound()
	}
	m.pending[id] = at
	return nil
}

// DuePendingChecks returns the orders whose check is due at now.
func (m *Memory) DuePendingChecks(_ context.Context, now time.Time) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []int64
	for id, at := range m.pending {
		if !at.After(now) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return m.pending[ids[i]].Before(m.pending[ids[j]]) })
	return ids, nil
}

// ClearPendingCheck removes the order's scheduled check.
func (m *Memory) ClearPendingCheck(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.pending, id)
	return nil
}

func clone(o *model.Order) *model.Order {
	c := *o
	c.Items = append([]model.LineItem(nil), o.Items...)
	c.Fees = append([]model.Fee(nil), o.Fees...)
	c.ShippingLines = append([]model.ShippingLine(nil), o.ShippingLines...)
	c.Coupons = append([]model.Coupon(nil), o.Coupons...)
	c.Notes = append([]model.Note(nil), o.Notes...)
	c.Meta = maps.Clone(o.Meta)
	if o.PaidAt != nil {
		t := *o.PaidAt
		c.PaidAt = &t
	}
	return &c
}

var _ OrderStore = (*Memory)(nil)
