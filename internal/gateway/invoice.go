package gateway

import (
	"context"

	"garan24-bridge/internal/config"
	"garan24-bridge/internal/model"
)

// Invoice is the Garan24 invoice gateway.
type Invoice struct {
	kpm
}

// NewInvoice creates the invoice gateway.
func NewInvoice(d Deps) *Invoice {
	g := &Invoice{}
	g.kpm = kpm{
		id:      model.MethodInvoice,
		method:  func() *config.MethodSettings { return &d.Bridge.Settings().Invoice },
		deps:    d,
		logger:  d.logger(),
		prepare: g.ApplyFee,
	}
	return g
}

// IsAvailable reports whether invoice can be offered.
func (g *Invoice) IsAvailable(_ context.Context, a Availability) bool {
	return g.available(a)
}

// Fee returns the invoice fee for a cart, or nil when no fee is
// configured or the cart has no subtotal.
func (g *Invoice) Fee(cart *model.Cart) *model.Fee {
	fs := g.method().InvoiceFee
	if fs == nil || fs.Amount <= 0 || cart == nil || cart.Subtotal <= 0 {
		return nil
	}
	return &model.Fee{ID: "invoice-fee", Name: fs.Name, Total: fs.Amount, Tax: fs.Tax}
}

// ApplyFee adds the invoice fee to an order that does not carry it yet
// and reports whether the order changed.
func (g *Invoice) ApplyFee(o *model.Order) bool {
	fee := g.Fee(o.Cart())
	if fee == nil {
		return false
	}
	for _, f := range o.Fees {
		if f.Name == fee.Name {
			return false
		}
	}
	o.Fees = append(o.Fees, *fee)
	o.Total += fee.Total + fee.Tax
	o.TotalTax += fee.Tax
	return true
}

var _ Gateway = (*Invoice)(nil)
