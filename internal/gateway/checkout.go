package gateway

import (
	"context"

	"garan24-bridge/internal/model"
)

// Checkout is the embedded Garan24 checkout. Payment happens inside the
// provider iframe and is confirmed by the push notification, so
// ProcessPayment only sends the customer to the checkout page.
type Checkout struct {
	deps Deps
}

// NewCheckout creates the checkout gateway.
func NewCheckout(d Deps) *Checkout {
	return &Checkout{deps: d}
}

func (g *Checkout) ID() string { return model.MethodCheckout }

func (g *Checkout) Title() string { return g.deps.Bridge.Settings().Checkout.Title }

// IsAvailable hides the gateway on the checkout page it renders itself.
func (g *Checkout) IsAvailable(_ context.Context, a Availability) bool {
	return g.deps.Bridge.Settings().Checkout.Enabled && !a.CheckoutPage
}

func (g *Checkout) ProcessPayment(_ context.Context, _ int64, _ PaymentForm) (*Result, error) {
	return &Result{Success: true, Redirect: g.deps.CheckoutURL}, nil
}

func (g *Checkout) ProcessRefund(ctx context.Context, orderID, amount int64, reason string) error {
	return g.deps.Bridge.Refund(ctx, orderID, amount, reason)
}

var _ Gateway = (*Checkout)(nil)
