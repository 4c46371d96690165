package bridge

import (
	"context"
	"log/slog"
	"time"

	"garan24-bridge/internal/garan24"
	"garan24-bridge/internal/model"
)

// PendingRecheck is the delay between status checks of a pending
// reservation.
const PendingRecheck = 2 * time.Hour

// SchedulePendingCheck queues a status check of a pending KPM reservation.
func (b *Bridge) SchedulePendingCheck(ctx context.Context, id int64) error {
	return b.store.SchedulePendingCheck(ctx, id, b.now().Add(PendingRecheck))
}

// CheckPending asks Garan24 for the outcome of a pending reservation.
// Accepted orders are marked paid, denied orders are cancelled, anything
// else is checked again later.
func (b *Bridge) CheckPending(ctx context.Context, id int64) error {
	o, err := b.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if o.Status != model.StatusOnHold && o.Status != model.StatusPending {
		b.metrics.PendingCheck(ctx, "settled")
		return b.store.ClearPendingCheck(ctx, id)
	}

	ms, creds, err := b.provider(o)
	if ms == nil {
		return b.store.ClearPendingCheck(ctx, id)
	}
	if err != nil {
		return err
	}

	rno := o.MetaValue(model.MetaReservation)
	status, err := b.legacy(ms, creds).CheckOrderStatus(ctx, rno)
	if err != nil {
		b.metrics.PendingCheck(ctx, "error")
		if rerr := b.SchedulePendingCheck(ctx, id); rerr != nil {
			return rerr
		}
		return err
	}
	b.metrics.PendingCheck(ctx, status.String())

	switch status {
	case garan24.StatusAccepted:
		if err := b.store.ClearPendingCheck(ctx, id); err != nil {
			return err
		}
		b.note(ctx, id, "Garan24 payment completed. You can now activate Garan24 order.")
		return b.PaymentComplete(ctx, o, rno)
	case garan24.StatusDenied:
		if err := b.store.ClearPendingCheck(ctx, id); err != nil {
			return err
		}
		b.note(ctx, id, "Garan24 payment denied.")
		return b.setStatus(ctx, o, model.StatusCancelled)
	default:
		return b.SchedulePendingCheck(ctx, id)
	}
}

// RunPendingChecks runs every check that is due and returns how many ran.
// A failing check is logged and does not stop the others.
func (b *Bridge) RunPendingChecks(ctx context.Context) (int, error) {
	ids, err := b.store.DuePendingChecks(ctx, b.now())
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := b.CheckPending(ctx, id); err != nil {
			b.logger.WarnContext(ctx, "pending check failed",
				slog.Int64("order_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	return len(ids), nil
}
