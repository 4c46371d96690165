package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"garan24-bridge/internal/country"
	"garan24-bridge/internal/garan24"
	"garan24-bridge/internal/model"
	"garan24-bridge/internal/session"
	"garan24-bridge/internal/telemetry"
	"garan24-bridge/internal/translator"
)

// PushClaimTTL is how long a push for one provider order is held before a
// retry may be processed again.
const PushClaimTTL = 30 * time.Second

// Push is a provider push notification. SID is the local order id the
// checkout was created for.
type Push struct {
	SID     string
	Country string
	OrderID string
	API     string
}

// pushedOrder is the part of a legacy checkout or REST managed order the
// push flow needs.
type pushedOrder struct {
	ID             string
	Reservation    string
	Reference      string
	Currency       string
	Locale         string
	RecurringToken string
	Billing        *garan24.Address
	Shipping       *garan24.Address
	Amount         int64
	Lines          []garan24.OrderLine
	ExpiresAt      *time.Time
}

// HandlePush confirms a finished checkout: it fetches the provider order,
// copies it onto the local order and marks the order paid. Pushes for
// orders that are not complete yet are ignored.
func (b *Bridge) HandlePush(ctx context.Context, p Push) error {
	if p.OrderID == "" {
		return model.NewValidationError("garan24_order", "missing")
	}
	api := model.APILegacy
	if strings.EqualFold(p.API, model.APIRest) {
		api = model.APIRest
	}

	claimed, err := b.claims.Claim(ctx, fmt.Sprintf(session.KeyPushClaim, p.OrderID), PushClaimTTL)
	if err != nil {
		return err
	}
	if !claimed {
		b.logger.InfoContext(ctx, "duplicate push ignored", slog.String("garan24_order", p.OrderID))
		b.metrics.Push(ctx, api, telemetry.OutcomeSkipped)
		return nil
	}

	purchaseCountry := country.Normalize(p.Country)
	ms := &b.settings.Checkout.MethodSettings
	eid, secret, ok := ms.Credentials(purchaseCountry)
	if !ok {
		b.metrics.Push(ctx, api, telemetry.OutcomeError)
		return model.NewValidationError("scountry", fmt.Sprintf("no Garan24 credentials for %q", purchaseCountry))
	}
	creds := garan24.Credentials{EID: eid, Secret: secret}

	var po *pushedOrder
	if api == model.APIRest {
		po, err = b.fetchRest(ctx, b.garan24.Rest(creds, purchaseCountry, ms.TestMode), p.OrderID)
	} else {
		po, err = b.fetchLegacy(ctx, b.garan24.Legacy(creds, ms.TestMode), p.OrderID)
	}
	if err != nil {
		b.metrics.Push(ctx, api, telemetry.OutcomeError)
		return garan24.ToAPIError(err)
	}
	if po == nil {
		b.metrics.Push(ctx, api, telemetry.OutcomeSkipped)
		return nil
	}

	o, err := b.pushTarget(ctx, p.SID, po)
	if err != nil {
		b.metrics.Push(ctx, api, telemetry.OutcomeError)
		return err
	}

	b.applyPushedOrder(ctx, o, po, api, purchaseCountry)
	if err := b.store.Save(ctx, o); err != nil {
		b.metrics.Push(ctx, api, telemetry.OutcomeError)
		return fmt.Errorf("saving pushed order: %w", err)
	}

	if api == model.APIRest {
		err = b.confirmRest(ctx, o, po, b.garan24.Rest(creds, purchaseCountry, ms.TestMode))
	} else {
		err = b.confirmLegacy(ctx, o, po, b.garan24.Legacy(creds, ms.TestMode))
	}
	if err != nil {
		b.metrics.Push(ctx, api, telemetry.OutcomeError)
		return err
	}

	b.logger.InfoContext(ctx, "push notification processed",
		slog.Int64("order_id", o.ID),
		slog.String("garan24_order", p.OrderID),
		slog.String("api", api),
	)
	b.metrics.Push(ctx, api, telemetry.OutcomeOK)
	return nil
}

func (b *Bridge) fetchRest(ctx context.Context, rest garan24.RestAPI, id string) (*pushedOrder, error) {
	mo, err := rest.FetchOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if mo.Status != garan24.OrderAuthorized {
		b.logger.InfoContext(ctx, "push for order not authorized yet",
			slog.String("garan24_order", id),
			slog.String("status", mo.Status),
		)
		return nil, nil
	}
	return &pushedOrder{
		ID:             mo.OrderID,
		Reference:      mo.Garan24Reference,
		Currency:       mo.PurchaseCurrency,
		Locale:         mo.Locale,
		RecurringToken: mo.RecurringToken,
		Billing:        mo.BillingAddress,
		Shipping:       mo.ShippingAddress,
		Amount:         mo.OrderAmount,
		Lines:          mo.OrderLines,
		ExpiresAt:      mo.ExpiresAt,
	}, nil
}

func (b *Bridge) fetchLegacy(ctx context.Context, legacy garan24.LegacyAPI, id string) (*pushedOrder, error) {
	co, err := legacy.FetchCheckout(ctx, id)
	if err != nil {
		return nil, err
	}
	if co.Status != garan24.CheckoutComplete {
		b.logger.InfoContext(ctx, "push for checkout not complete yet",
			slog.String("garan24_order", id),
			slog.String("status", co.Status),
		)
		return nil, nil
	}
	return &pushedOrder{
		ID:             co.ID,
		Reservation:    co.Reservation,
		Currency:       co.PurchaseCurrency,
		Locale:         co.Locale,
		RecurringToken: co.RecurringToken,
		Billing:        co.BillingAddress,
		Shipping:       co.ShippingAddress,
		Amount:         co.OrderAmount,
		Lines:          co.OrderLines,
		ExpiresAt:      co.ExpiresAt,
	}, nil
}

// pushTarget loads the local order named by sid, or creates one from the
// provider lines when the shop never created it.
func (b *Bridge) pushTarget(ctx context.Context, sid string, po *pushedOrder) (*model.Order, error) {
	if id, err := strconv.ParseInt(sid, 10, 64); err == nil && id > 0 {
		o, err := b.store.Get(ctx, id)
		if err == nil {
			return o, nil
		}
		if !errors.Is(err, model.ErrNotFound) {
			return nil, err
		}
	}

	o := orderFromLines(po.Lines, po.Amount)
	o.Status = model.StatusIncomplete
	o.Currency = strings.ToUpper(po.Currency)
	if err := b.store.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("creating order from push: %w", err)
	}
	b.note(ctx, o.ID, "Order created from Garan24 push notification.")
	return o, nil
}

// applyPushedOrder copies identifiers, addresses and customer data from
// the provider order. Provider ids already on the order are kept.
func (b *Bridge) applyPushedOrder(ctx context.Context, o *model.Order, po *pushedOrder, api, purchaseCountry string) {
	if o.Meta == nil {
		o.Meta = make(map[string]string)
	}
	setOnce := func(key, value string) {
		if value != "" && !o.HasMeta(key) {
			o.Meta[key] = value
		}
	}

	setOnce(model.MetaRecurringToken, po.RecurringToken)
	if api == model.APIRest {
		if !o.HasMeta(model.MetaProviderOrderID) {
			b.note(ctx, o.ID, "Garan24 order ID: %s.", po.ID)
		}
		setOnce(model.MetaProviderOrderID, po.ID)
	} else {
		setOnce(model.MetaReservation, po.Reservation)
	}

	if po.Currency != "" {
		o.Currency = strings.ToUpper(po.Currency)
	}
	if po.Billing != nil {
		o.Billing = translator.FromProviderAddress(po.Billing, purchaseCountry)
		o.CustomerEmail = o.Billing.Email
	}
	if po.Shipping != nil {
		o.Shipping = translator.FromProviderAddress(po.Shipping, purchaseCountry)
		o.Shipping.Email = ""
		o.Shipping.Phone = ""
	}
	o.Meta[model.MetaLocale] = po.Locale
	o.Meta[model.MetaAPI] = api
	o.Meta[model.MetaProviderCountry] = purchaseCountry
	o.PaymentMethod = model.MethodCheckout
	o.PaymentMethodTitle = b.settings.Checkout.Title
}

func (b *Bridge) confirmRest(ctx context.Context, o *model.Order, po *pushedOrder, rest garan24.RestAPI) error {
	claimed, err := b.store.AddMeta(ctx, o.ID, model.MetaPaymentCreated, strconv.FormatInt(b.now().Unix(), 10))
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}
	release := func(err error) error {
		if derr := b.store.DeleteMeta(ctx, o.ID, model.MetaPaymentCreated); derr != nil {
			b.logger.ErrorContext(ctx, "failed to release payment guard", slog.Int64("order_id", o.ID), slog.String("error", derr.Error()))
		}
		return b.fail(ctx, o, "confirm", "Garan24 order confirmation failed.", err)
	}

	b.note(ctx, o.ID, "Garan24 Checkout payment created. Garan24 reference number: %s.", po.Reference)
	if err := rest.Acknowledge(ctx, po.ID); err != nil {
		return release(err)
	}
	refs := garan24.MerchantReferences{MerchantReference1: strconv.FormatInt(o.ID, 10)}
	if err := rest.UpdateMerchantReferences(ctx, po.ID, refs); err != nil {
		return release(err)
	}

	delete(o.Meta, model.MetaIncompleteEmail)
	if err := b.PaymentComplete(ctx, o, po.Reference); err != nil {
		return err
	}
	return b.store.DeleteMeta(ctx, o.ID, model.MetaIncompleteEmail)
}

func (b *Bridge) confirmLegacy(ctx context.Context, o *model.Order, po *pushedOrder, legacy garan24.LegacyAPI) error {
	if o.Status.Paid() {
		return nil
	}

	b.note(ctx, o.ID, "Garan24 Checkout payment created. Reservation number: %s.  Garan24 order number: %s", po.Reservation, po.ID)
	if po.ExpiresAt != nil {
		b.note(ctx, o.ID, "Garan24 authorization expires at %s.", po.ExpiresAt.Format("2006-01-02 - 15:04"))
	}

	update := &garan24.CheckoutOrder{
		Status:            garan24.CheckoutCreated,
		MerchantReference: &garan24.MerchantReference{OrderID1: strconv.FormatInt(o.ID, 10)},
	}
	if _, err := legacy.UpdateCheckout(ctx, po.ID, update); err != nil {
		return b.fail(ctx, o, "confirm", "Garan24 order confirmation failed.", err)
	}

	delete(o.Meta, model.MetaIncompleteEmail)
	if err := b.PaymentComplete(ctx, o, po.Reservation); err != nil {
		return err
	}
	return b.store.DeleteMeta(ctx, o.ID, model.MetaIncompleteEmail)
}

// orderFromLines rebuilds order lines from provider order lines. Legacy
// lines only carry unit price and tax rate, so their tax is derived.
func orderFromLines(lines []garan24.OrderLine, amount int64) *model.Order {
	o := &model.Order{PaymentMethod: model.MethodCheckout, Meta: make(map[string]string)}
	var sum int64
	for _, l := range lines {
		gross := l.TotalAmount
		if gross == 0 {
			gross = l.UnitPrice * int64(l.Quantity)
			if l.DiscountRate > 0 {
				gross -= gross * l.DiscountRate / 10000
			}
		}
		tax := l.TotalTaxAmount
		if tax == 0 && l.TaxRate > 0 {
			tax = gross - gross*10000/(10000+l.TaxRate)
		}
		sum += gross

		switch l.Type {
		case garan24.LineTypeShippingFee:
			o.ShippingLines = append(o.ShippingLines, model.ShippingLine{Label: l.Name, Total: gross - tax, Tax: tax})
			o.ShippingTotal += gross - tax
			o.ShippingTax += tax
		case garan24.LineTypeSurcharge:
			o.Fees = append(o.Fees, model.Fee{ID: l.Reference, Name: l.Name, Total: gross - tax, Tax: tax})
		case garan24.LineTypeDiscount:
			o.DiscountTotal += -gross
		default:
			subtotal := l.UnitPrice * int64(l.Quantity)
			subtotalTax := tax
			if subtotal != gross && gross != 0 {
				subtotalTax = tax * subtotal / gross
			}
			o.Items = append(o.Items, model.LineItem{
				ID:          int64(len(o.Items) + 1),
				SKU:         l.Reference,
				Name:        l.Name,
				Quantity:    l.Quantity,
				Subtotal:    subtotal - subtotalTax,
				SubtotalTax: subtotalTax,
				Total:       gross - tax,
				TotalTax:    tax,
			})
		}
		o.TotalTax += tax
	}
	o.Total = sum
	if amount > 0 {
		o.Total = amount
	}
	return o
}
