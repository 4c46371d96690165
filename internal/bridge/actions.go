package bridge

import (
	"context"
	"log/slog"
	"strconv"

	"garan24-bridge/internal/events"
	"garan24-bridge/internal/garan24"
	"garan24-bridge/internal/model"
	"garan24-bridge/internal/telemetry"
	"garan24-bridge/internal/translator"
)

// Activate captures (REST) or activates (legacy) the provider order of a
// completed local order. It runs at most once per order: the activated
// flag is claimed atomically before the provider is called and released
// again when the call fails.
func (b *Bridge) Activate(ctx context.Context, id int64) error {
	o, err := b.store.Get(ctx, id)
	if err != nil {
		return err
	}
	api := o.MetaValue(model.MetaAPI)

	ms, creds, err := b.provider(o)
	if ms == nil || !ms.PushCompletion || o.HasMeta(model.MetaInvoiceNumber) {
		b.metrics.Action(ctx, "activate", api, telemetry.OutcomeSkipped)
		return nil
	}
	if err != nil {
		return err
	}

	claimed, err := b.store.AddMeta(ctx, id, model.MetaActivated, strconv.FormatInt(b.now().Unix(), 10))
	if err != nil {
		return err
	}
	if !claimed {
		b.metrics.Action(ctx, "activate", api, telemetry.OutcomeSkipped)
		return nil
	}

	var invoice string
	if api == model.APIRest {
		invoice, err = b.captureRest(ctx, o, b.rest(ms, creds, o))
	} else {
		invoice, err = b.activateLegacy(ctx, o, b.legacy(ms, creds))
	}
	if err != nil {
		if derr := b.store.DeleteMeta(ctx, id, model.MetaActivated); derr != nil {
			b.logger.ErrorContext(ctx, "failed to release activation guard", slog.Int64("order_id", id), slog.String("error", derr.Error()))
		}
		return b.fail(ctx, o, "activate", "Garan24 order activation failed.", err)
	}

	if err := b.store.SetMeta(ctx, id, model.MetaInvoiceNumber, invoice); err != nil {
		return err
	}
	if err := b.store.SetMeta(ctx, id, model.MetaTransactionID, invoice); err != nil {
		return err
	}

	b.metrics.Action(ctx, "activate", api, telemetry.OutcomeOK)
	e := events.NewOrderEvent(events.TypeOrderActivated, o)
	e.Reference = invoice
	e.Amount = o.Total
	b.publish(ctx, e)
	return nil
}

func (b *Bridge) captureRest(ctx context.Context, o *model.Order, rest garan24.RestAPI) (string, error) {
	providerID := o.MetaValue(model.MetaProviderOrderID)
	if providerID == "" {
		return "", model.NewValidationError(model.MetaProviderOrderID, "missing")
	}

	req := &garan24.CaptureRequest{Description: "WooCommerce order marked complete"}
	mo, err := rest.FetchOrder(ctx, providerID)
	if err == nil && mo.OrderAmount > 0 {
		req.CapturedAmount = mo.OrderAmount
		req.OrderLines = mo.OrderLines
	} else {
		req.OrderLines = translator.Translate(o.Cart(), b.translation(model.APIRest))
		req.CapturedAmount, _ = translator.Amounts(req.OrderLines)
	}

	capture, err := rest.CreateCapture(ctx, providerID, req)
	if err != nil {
		return "", err
	}
	b.note(ctx, o.ID, "Garan24 order captured. Invoice number %s.", capture.CaptureID)
	return capture.CaptureID, nil
}

func (b *Bridge) activateLegacy(ctx context.Context, o *model.Order, legacy garan24.LegacyAPI) (string, error) {
	rno := o.MetaValue(model.MetaReservation)
	if rno == "" {
		return "", model.NewValidationError(model.MetaReservation, "missing")
	}
	act, err := legacy.Activate(ctx, rno)
	if err != nil {
		return "", err
	}
	b.note(ctx, o.ID, "Garan24 order activated. Invoice number %s - risk status %s.", act.InvoiceNumber, act.Risk)
	return act.InvoiceNumber, nil
}

// Cancel cancels the provider order of a cancelled local order, at most
// once per order.
func (b *Bridge) Cancel(ctx context.Context, id int64) error {
	o, err := b.store.Get(ctx, id)
	if err != nil {
		return err
	}
	api := o.MetaValue(model.MetaAPI)

	ms, creds, err := b.provider(o)
	if ms == nil || !ms.PushCancellation {
		b.metrics.Action(ctx, "cancel", api, telemetry.OutcomeSkipped)
		return nil
	}
	if err != nil {
		return err
	}

	claimed, err := b.store.AddMeta(ctx, id, model.MetaCancelled, strconv.FormatInt(b.now().Unix(), 10))
	if err != nil {
		return err
	}
	if !claimed {
		b.metrics.Action(ctx, "cancel", api, telemetry.OutcomeSkipped)
		return nil
	}

	if api == model.APIRest {
		providerID := o.MetaValue(model.MetaProviderOrderID)
		err = b.rest(ms, creds, o).Cancel(ctx, providerID)
		if err == nil {
			b.note(ctx, id, "Garan24 order cancelled.")
		}
	} else {
		rno := o.MetaValue(model.MetaReservation)
		err = b.legacy(ms, creds).CancelReservation(ctx, rno)
		if err == nil {
			b.note(ctx, id, "Garan24 order cancellation completed.")
		}
	}
	if err != nil {
		if derr := b.store.DeleteMeta(ctx, id, model.MetaCancelled); derr != nil {
			b.logger.ErrorContext(ctx, "failed to release cancellation guard", slog.Int64("order_id", id), slog.String("error", derr.Error()))
		}
		return b.fail(ctx, o, "cancel", "Garan24 order cancellation failed.", err)
	}

	b.metrics.Action(ctx, "cancel", api, telemetry.OutcomeOK)
	b.publish(ctx, events.NewOrderEvent(events.TypeOrderCancelled, o))
	return nil
}

// UpdateProviderOrder re-sends an edited on-hold order to Garan24.
// skipItem excludes the line that is being removed (0 for none).
func (b *Bridge) UpdateProviderOrder(ctx context.Context, id, skipItem int64) error {
	o, err := b.store.Get(ctx, id)
	if err != nil {
		return err
	}
	return b.updateProvider(ctx, o, skipItem)
}

func (b *Bridge) updateProvider(ctx context.Context, o *model.Order, skipItem int64) error {
	api := o.MetaValue(model.MetaAPI)

	ms, creds, err := b.provider(o)
	if ms == nil || !ms.PushUpdate || o.Status != model.StatusOnHold ||
		o.HasMeta(model.MetaCancelled) || o.HasMeta(model.MetaActivated) {
		b.metrics.Action(ctx, "update", api, telemetry.OutcomeSkipped)
		return nil
	}
	if err != nil {
		return err
	}

	cart := o.Cart()
	opts := b.translation(api)
	for i, it := range o.Items {
		if it.ID == skipItem {
			opts.SkipKey = cart.Items[i].Key
		}
	}

	if api == model.APIRest {
		lines := translator.Translate(cart, opts)
		amount, _ := translator.Amounts(lines)
		err = b.rest(ms, creds, o).UpdateAuthorization(ctx, o.MetaValue(model.MetaProviderOrderID), &garan24.AuthorizationUpdate{
			OrderAmount: amount,
			Description: "Updating WooCommerce order",
			OrderLines:  lines,
		})
	} else {
		err = b.legacy(ms, creds).Update(ctx, &garan24.UpdateRequest{
			Reservation: o.MetaValue(model.MetaReservation),
			OrderID1:    strconv.FormatInt(o.ID, 10),
			Articles:    translator.Articles(cart, opts),
			Billing:     translator.KPMAddress(o.Billing, o.Billing),
			Shipping:    translator.KPMAddress(o.ShippingAddress(), o.Billing),
		})
	}
	if err != nil {
		return b.fail(ctx, o, "update", "Garan24 order update failed.", err)
	}

	b.note(ctx, o.ID, "Garan24 order updated.")
	b.metrics.Action(ctx, "update", api, telemetry.OutcomeOK)
	b.publish(ctx, events.NewOrderEvent(events.TypeOrderUpdated, o))
	return nil
}

// RemoveItem deletes a line from an order. On-hold Garan24 orders are
// updated at the provider first, without the line.
func (b *Bridge) RemoveItem(ctx context.Context, id, itemID int64) (*model.Order, error) {
	o, err := b.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	found := false
	for _, it := range o.Items {
		if it.ID == itemID {
			found = true
		}
	}
	if !found {
		return nil, model.NewNotFoundError("order item")
	}

	if err := b.updateProvider(ctx, o, itemID); err != nil {
		b.logger.WarnContext(ctx, "provider update on item removal failed", slog.Int64("order_id", id), slog.String("error", err.Error()))
	}

	o.RemoveItem(itemID)
	if err := b.store.Save(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// Refund returns money on an activated order. A refund of the full order
// total moves the order to refunded.
func (b *Bridge) Refund(ctx context.Context, id, amount int64, reason string) error {
	o, err := b.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if amount <= 0 {
		return model.NewValidationError("amount", "must be positive")
	}
	if amount > o.Total-o.RefundedTotal {
		return model.NewValidationError("amount", "exceeds the remaining order total")
	}

	api := o.MetaValue(model.MetaAPI)
	ms, creds, err := b.provider(o)
	if ms == nil {
		return model.NewValidationError("payment_method", "order was not paid with Garan24")
	}
	if err != nil {
		return err
	}

	invoice := o.MetaValue(model.MetaInvoiceNumber)
	if invoice == "" {
		b.note(ctx, id, "Garan24 order refund failed. The order has no invoice number; activate it first.")
		return model.NewValidationError(model.MetaInvoiceNumber, "order has not been activated")
	}

	amountText := model.FormatMoney(amount, o.Currency)
	if api == model.APIRest {
		err = b.rest(ms, creds, o).Refund(ctx, o.MetaValue(model.MetaProviderOrderID), &garan24.RefundRequest{
			RefundedAmount: amount,
			Description:    reason,
		})
		if err != nil {
			return b.fail(ctx, o, "refund", "Garan24 order refund failed.", err)
		}
		b.note(ctx, id, "Garan24 order refunded. Refund amount: %s.", amountText)
	} else {
		if err := b.refundLegacy(ctx, o, b.legacy(ms, creds), invoice, amount, reason); err != nil {
			return err
		}
	}

	o.RefundedTotal += amount
	if err := b.store.Save(ctx, o); err != nil {
		return err
	}
	if o.RefundedTotal >= o.Total && model.CanTransition(o.Status, model.StatusRefunded) {
		if err := b.setStatus(ctx, o, model.StatusRefunded); err != nil {
			return err
		}
	}

	b.metrics.Action(ctx, "refund", api, telemetry.OutcomeOK)
	e := events.NewOrderEvent(events.TypeOrderRefunded, o)
	e.Amount = amount
	b.publish(ctx, e)
	return nil
}

// refundLegacy credits the whole invoice, or returns a goodwill amount
// when the order has a single tax rate.
func (b *Bridge) refundLegacy(ctx context.Context, o *model.Order, legacy garan24.LegacyAPI, invoice string, amount int64, reason string) error {
	if amount == o.Total {
		if err := legacy.CreditInvoice(ctx, invoice); err != nil {
			return b.fail(ctx, o, "refund", "Garan24 order refund failed.", err)
		}
		b.note(ctx, o.ID, "Garan24 order fully refunded.")
		return nil
	}

	if len(o.Cart().TaxRates()) != 1 {
		b.note(ctx, o.ID, "Refund failed. WooCommerce Garan24 partial refund not possible for orders containing items with different tax rates.")
		b.metrics.Action(ctx, "refund", o.MetaValue(model.MetaAPI), telemetry.OutcomeError)
		return model.NewPaymentError("partial refund not possible for orders with different tax rates")
	}

	cartTax := o.CartTax()
	var vat float64
	if net := o.Total - cartTax; net > 0 {
		vat = float64(cartTax) / float64(net) * 100
	}
	err := legacy.ReturnAmount(ctx, &garan24.ReturnAmountRequest{
		InvoiceNumber: invoice,
		Amount:        amount,
		VAT:           vat,
		Description:   reason,
	})
	if err != nil {
		return b.fail(ctx, o, "refund", "Garan24 order refund failed.", err)
	}
	b.note(ctx, o.ID, "Garan24 order partially refunded. Refund amount: %s.", model.FormatMoney(amount, o.Currency))
	return nil
}
