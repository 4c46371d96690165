package bridge

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"garan24-bridge/internal/events"
	"garan24-bridge/internal/model"
	"garan24-bridge/internal/session"
)

const (
	// GuestOrderMaxAge is how long an incomplete order without a real
	// customer email is kept.
	GuestOrderMaxAge = 24 * time.Hour
	// IncompleteOrderMaxAge is how long any incomplete order is kept.
	IncompleteOrderMaxAge = 14 * 24 * time.Hour
)

// PrepareLocalOrder creates or refreshes the visitor's incomplete order
// from the cart, so the provider checkout can reference a local order id.
// The order id is stored on the session; the caller saves the session.
func (b *Bridge) PrepareLocalOrder(ctx context.Context, sess *session.Session, cart *model.Cart, email, api string) (*model.Order, error) {
	if cart.HasErrors() {
		return nil, model.NewValidationError("cart", cart.Errors[0].Message)
	}
	if cart.IsEmpty() {
		return nil, model.NewValidationError("cart", "cart is empty")
	}
	if email == "" {
		email = model.GuestEmail
	}

	var o *model.Order
	if sess.OngoingOrderID != 0 {
		cur, err := b.store.Get(ctx, sess.OngoingOrderID)
		switch {
		case err == nil && cur.Status == model.StatusIncomplete:
			o = cur
		case err != nil && !errors.Is(err, model.ErrNotFound):
			return nil, err
		}
	}

	created := o == nil
	if created {
		o = &model.Order{
			Status: model.StatusIncomplete,
			Meta:   make(map[string]string),
		}
	}
	o.SetFromCart(cart)
	o.PaymentMethod = model.MethodCheckout
	o.PaymentMethodTitle = b.settings.Checkout.Title
	o.CustomerEmail = email
	o.Billing.Email = email
	if sess.OrderNote != "" {
		o.CustomerNote = sess.OrderNote
	}
	if o.Meta == nil {
		o.Meta = make(map[string]string)
	}
	o.Meta[model.MetaIncompleteEmail] = email
	if api != "" {
		o.Meta[model.MetaAPI] = api
	}

	var err error
	if created {
		err = b.store.Create(ctx, o)
	} else {
		err = b.store.Save(ctx, o)
	}
	if err != nil {
		return nil, err
	}
	sess.OngoingOrderID = o.ID
	return o, nil
}

// PurgeIncomplete deletes abandoned incomplete orders: guest orders after
// a day, every other one after two weeks. It returns how many were removed.
func (b *Bridge) PurgeIncomplete(ctx context.Context) (int, error) {
	now := b.now()
	orders, err := b.store.ListByStatus(ctx, model.StatusIncomplete, now.Add(-GuestOrderMaxAge))
	if err != nil {
		return 0, err
	}

	purged := 0
	for _, o := range orders {
		guest := o.MetaValue(model.MetaIncompleteEmail) == model.GuestEmail
		if !guest && o.CreatedAt.After(now.Add(-IncompleteOrderMaxAge)) {
			continue
		}
		if err := b.store.Delete(ctx, o.ID); err != nil {
			if errors.Is(err, model.ErrNotFound) {
				continue
			}
			return purged, err
		}
		purged++
		b.publish(ctx, events.NewOrderEvent(events.TypeOrderPurged, o))
	}

	b.metrics.Purged(ctx, purged)
	if purged > 0 {
		b.logger.InfoContext(ctx, "purged incomplete orders", slog.Int("count", purged))
	}
	return purged, nil
}
