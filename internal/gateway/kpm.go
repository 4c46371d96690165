package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"garan24-bridge/internal/config"
	"garan24-bridge/internal/country"
	"garan24-bridge/internal/garan24"
	"garan24-bridge/internal/model"
	"garan24-bridge/internal/translator"
)

// kpm is the reservation flow shared by invoice and part payment.
type kpm struct {
	id      string
	method  func() *config.MethodSettings
	deps    Deps
	logger  *slog.Logger
	prepare func(o *model.Order) bool
	// offered reports whether a posted pclass may be reserved for an
	// order total. nil reserves every order as an invoice.
	offered func(ctx context.Context, c string, total int64, pclass int) bool
}

func (k *kpm) ID() string { return k.id }

func (k *kpm) Title() string { return k.method().Title }

// available runs the checks shared by the KPM gateways.
func (k *kpm) available(a Availability) bool {
	m := k.method()
	if !m.Enabled {
		return false
	}
	c := country.Normalize(a.Country)
	if _, _, ok := m.Credentials(c); !ok {
		return false
	}
	if a.Cart == nil {
		return false
	}
	if total := a.Cart.Total; total > 0 {
		if m.LowerThreshold > 0 && total < m.LowerThreshold {
			return false
		}
		if m.UpperThreshold > 0 && total > m.UpperThreshold {
			return false
		}
	}
	if !m.Authorized(c) {
		return false
	}
	if cur := country.Currency(c); cur != "" && cur != strings.ToUpper(a.Cart.Currency) {
		return false
	}
	return true
}

func (k *kpm) legacy(c string) (garan24.LegacyAPI, bool) {
	m := k.method()
	eid, secret, ok := m.Credentials(c)
	if !ok {
		return nil, false
	}
	return k.deps.Garan24.Legacy(garan24.Credentials{EID: eid, Secret: secret}, m.TestMode), true
}

func (k *kpm) note(ctx context.Context, id int64, format string, args ...any) {
	if err := k.deps.Bridge.Store().AddNote(ctx, id, fmt.Sprintf(format, args...)); err != nil {
		k.logger.ErrorContext(ctx, "failed to add order note", slog.Int64("order_id", id), slog.String("error", err.Error()))
	}
}

// ProcessPayment reserves the order total with Garan24. Accepted
// reservations complete the payment, pending ones put the order on hold
// until the scheduled status check settles it.
func (k *kpm) ProcessPayment(ctx context.Context, orderID int64, form PaymentForm) (*Result, error) {
	b := k.deps.Bridge
	st := b.Store()
	m := k.method()

	o, err := st.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if notices := Validate(o, form, m.DEConsentTerms); len(notices) > 0 {
		return failure(notices...), nil
	}

	c := country.Normalize(o.Billing.Country)
	info, ok := country.Lookup(c, "")
	legacy, hasCreds := k.legacy(c)
	if !ok || !hasCreds {
		return failure(fmt.Sprintf("Garan24 is not available in %s.", c)), nil
	}

	pclass := garan24.NoPClass
	if k.offered != nil {
		n, err := strconv.Atoi(form.PClass)
		if err != nil || !k.offered(ctx, c, o.Total, n) {
			return nil, model.NewValidationError("pclass", fmt.Sprintf("payment plan %q is not offered for this order", form.PClass))
		}
		pclass = n
	}

	pno := PNO(c, form)
	if err := st.SetMeta(ctx, orderID, model.MetaPNO, pno); err != nil {
		return nil, err
	}

	if k.prepare != nil && k.prepare(o) {
		if err := st.Save(ctx, o); err != nil {
			return nil, err
		}
	}

	opts := translator.Options{API: translator.Legacy, ExactRates: b.Settings().ExactRates}
	if fee := b.Settings().Invoice.InvoiceFee; fee != nil {
		opts.InvoiceFeeName = fee.Name
	}
	shipping := o.ShippingAddress()
	if m.ShipToBillingAddress {
		shipping = o.Billing
	}
	id := strconv.FormatInt(orderID, 10)
	req := &garan24.ReserveRequest{
		PNO:      pno,
		Gender:   gender(form.Gender),
		Amount:   -1,
		PClass:   pclass,
		Country:  c,
		Language: info.KPMLang,
		Currency: o.Currency,
		OrderID1: id,
		OrderID2: id,
		Articles: translator.Articles(o.Cart(), opts),
		Billing:  translator.KPMAddress(o.Billing, o.Billing),
		Shipping: translator.KPMAddress(shipping, o.Billing),
	}

	res, err := legacy.ReserveAmount(ctx, req)
	if err != nil {
		k.logger.WarnContext(ctx, "garan24 reservation failed",
			slog.Int64("order_id", orderID),
			slog.String("gateway", k.id),
			slog.String("error", err.Error()),
		)
		return failure(reserveNotice(err)), nil
	}

	if err := st.SetMeta(ctx, orderID, model.MetaPClass, strconv.Itoa(pclass)); err != nil {
		return nil, err
	}

	switch res.Status {
	case garan24.StatusAccepted:
		k.note(ctx, orderID, "Garan24 payment completed. Garan24 Invoice number: %s", res.Number)
		if err := st.SetMeta(ctx, orderID, model.MetaReservation, res.Number); err != nil {
			return nil, err
		}
		o, err = st.Get(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if err := b.PaymentComplete(ctx, o, res.Number); err != nil {
			return nil, err
		}
	case garan24.StatusPending:
		if err := st.SetMeta(ctx, orderID, model.MetaReservation, res.Number); err != nil {
			return nil, err
		}
		if err := b.SchedulePendingCheck(ctx, orderID); err != nil {
			return nil, err
		}
		k.note(ctx, orderID, "Order is PENDING APPROVAL by Garan24. Please visit Garan24 Online for the latest status on this order. Garan24 reservation number: %s", res.Number)
		if _, err := b.SetStatus(ctx, orderID, model.StatusOnHold); err != nil {
			return nil, err
		}
	case garan24.StatusDenied:
		k.note(ctx, orderID, "Garan24 payment denied.")
		return failure("Garan24 payment denied."), nil
	default:
		k.note(ctx, orderID, "Unknown response from Garan24.")
		return failure("Unknown response from Garan24."), nil
	}

	k.logger.InfoContext(ctx, "garan24 reservation created",
		slog.Int64("order_id", orderID),
		slog.String("gateway", k.id),
		slog.String("status", res.Status.String()),
	)
	return &Result{Success: true, Redirect: k.deps.confirmation(orderID), ClearCart: true}, nil
}

// ProcessRefund refunds an activated order.
func (k *kpm) ProcessRefund(ctx context.Context, orderID, amount int64, reason string) error {
	return k.deps.Bridge.Refund(ctx, orderID, amount, reason)
}

// gender maps the posted gender to the KPM value: 1 male, 0 female, -1
// not given.
func gender(s string) int {
	switch strings.ToLower(s) {
	case "1", "m", "male":
		return 1
	case "0", "f", "female":
		return 0
	}
	return -1
}

func reserveNotice(err error) string {
	var gErr *garan24.Error
	if errors.As(err, &gErr) {
		return fmt.Sprintf("%s (Error code: %s)", strings.Join(gErr.Messages, " "), gErr.Code)
	}
	return fmt.Sprintf("%s (Error code: %s)", err.Error(), "0")
}
