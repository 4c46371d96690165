// Package store persists local orders, their metadata and notes, and the
// schedule of pending reservation checks.
package store

import (
	"context"
	"time"

	"garan24-bridge/internal/model"
)

// OrderStore is the local order persistence used by the bridge.
//
// Save writes the order and upserts every key in Order.Meta; keys are only
// removed through DeleteMeta. AddMeta is an atomic insert-if-absent and is
// what the activation and cancellation guards rely on.
type OrderStore interface {
	Create(ctx context.Context, o *model.Order) error
	Get(ctx context.Context, id int64) (*model.Order, error)
	Save(ctx context.Context, o *model.Order) error
	Delete(ctx context.Context, id int64) error

	GetMeta(ctx context.Context, id int64, key string) (string, error)
	SetMeta(ctx context.Context, id int64, key, value string) error
	AddMeta(ctx context.Context, id int64, key, value string) (bool, error)
	DeleteMeta(ctx context.Context, id int64, key string) error

	AddNote(ctx context.Context, id int64, content string) error

	// ListByStatus returns orders in status created before the given time,
	// oldest first.
	ListByStatus(ctx context.Context, status model.Status, createdBefore time.Time) ([]*model.Order, error)

	SchedulePendingCheck(ctx context.Context, id int64, at time.Time) error
	DuePendingChecks(ctx context.Context, now time.Time) ([]int64, error)
	ClearPendingCheck(ctx context.Context, id int64) error
}

func orderNotFound() error {
	return model.NewNotFoundError("order")
}
