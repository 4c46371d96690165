package bridge

import (
	"context"
	"fmt"

	"garan24-bridge/internal/model"
)

// Checkout is what the shop's checkout form submits for a KPM payment.
type Checkout struct {
	Cart          *model.Cart
	Billing       model.Address
	Shipping      model.Address
	PaymentMethod string
	CustomerNote  string
}

// CreateOrder places a pending order from a checkout submission. The
// gateway then reserves the amount against it.
func (b *Bridge) CreateOrder(ctx context.Context, c Checkout) (*model.Order, error) {
	if c.Cart.HasErrors() {
		return nil, model.NewValidationError("cart", c.Cart.Errors[0].Message)
	}
	if c.Cart.IsEmpty() {
		return nil, model.NewValidationError("cart", "cart is empty")
	}
	ms := b.settings.Method(c.PaymentMethod)
	if ms == nil {
		return nil, model.NewValidationError("payment_method", fmt.Sprintf("unknown payment method %q", c.PaymentMethod))
	}

	o := &model.Order{
		Status:             model.StatusPending,
		PaymentMethod:      c.PaymentMethod,
		PaymentMethodTitle: ms.Title,
		CustomerEmail:      c.Billing.Email,
		CustomerNote:       c.CustomerNote,
		Billing:            c.Billing,
		Shipping:           c.Shipping,
		Meta:               map[string]string{model.MetaAPI: model.APILegacy},
	}
	o.SetFromCart(c.Cart)
	if err := b.store.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("creating order: %w", err)
	}
	return o, nil
}
