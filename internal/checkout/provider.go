package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"garan24-bridge/internal/country"
	"garan24-bridge/internal/garan24"
	"garan24-bridge/internal/model"
	"garan24-bridge/internal/session"
	"garan24-bridge/internal/translator"
)

// OrderIDPlaceholder is replaced by Garan24 with the checkout order id in
// the push and confirmation URLs.
const OrderIDPlaceholder = "{checkout.order.id}"

// checkoutAPI is the part of the legacy and REST clients shared by the
// embedded checkout.
type checkoutAPI interface {
	CreateCheckout(ctx context.Context, order *garan24.CheckoutOrder) (*garan24.CheckoutOrder, error)
	FetchCheckout(ctx context.Context, id string) (*garan24.CheckoutOrder, error)
	UpdateCheckout(ctx context.Context, id string, order *garan24.CheckoutOrder) (*garan24.CheckoutOrder, error)
}

// client returns the checkout API for a purchase country.
func (c *Controller) client(purchaseCountry string) (checkoutAPI, error) {
	ms := &c.settings.Checkout.MethodSettings
	eid, secret, ok := ms.Credentials(purchaseCountry)
	if !ok {
		return nil, model.NewValidationError("country", fmt.Sprintf("no Garan24 credentials for %q", purchaseCountry))
	}
	creds := garan24.Credentials{EID: eid, Secret: secret}
	if apiFor(purchaseCountry) == model.APIRest {
		return c.garan24.Rest(creds, purchaseCountry, ms.TestMode), nil
	}
	return c.garan24.Legacy(creds, ms.TestMode), nil
}

// merchantURLs builds the shop callbacks for a checkout. orderID is the
// local order the checkout pays for; zero leaves the sid off until the
// customer has entered an email and the order exists.
func (c *Controller) merchantURLs(purchaseCountry, currency string, orderID int64) *garan24.MerchantURLs {
	push := url.Values{}
	push.Set("scountry", purchaseCountry)
	push.Set("garan24-api", apiFor(purchaseCountry))

	confirm := url.Values{}
	confirm.Set("scountry", purchaseCountry)

	if orderID != 0 {
		sid := strconv.FormatInt(orderID, 10)
		push.Set("sid", sid)
		confirm.Set("sid", sid)
		confirm.Set("order-received", sid)
	}

	// The placeholder must reach Garan24 unescaped.
	return &garan24.MerchantURLs{
		Terms:        c.settings.Checkout.TermsURL,
		Checkout:     c.settings.Checkout.CheckoutURL(purchaseCountry, currency),
		Confirmation: c.publicURL + "/checkout/confirmation?" + confirm.Encode() + "&garan24_order=" + OrderIDPlaceholder,
		Push:         c.publicURL + "/wc-api/garan24_checkout?" + push.Encode() + "&garan24_order=" + OrderIDPlaceholder,
	}
}

// lines translates the cart for a purchase country.
func (c *Controller) lines(purchaseCountry string, cart *model.Cart) []garan24.OrderLine {
	opts := translator.Options{API: translator.Legacy, ExactRates: c.settings.ExactRates}
	if apiFor(purchaseCountry) == model.APIRest {
		opts.API = translator.Rest
	}
	return translator.Translate(cart, opts)
}

// cartUpdate is the checkout body carrying the current cart.
func (c *Controller) cartUpdate(purchaseCountry string, cart *model.Cart) *garan24.CheckoutOrder {
	lines := c.lines(purchaseCountry, cart)
	update := &garan24.CheckoutOrder{OrderLines: lines}
	if apiFor(purchaseCountry) == model.APIRest {
		update.OrderAmount, update.OrderTaxAmount = translator.Amounts(lines)
	}
	return update
}

// EnsureCheckout returns the visitor's provider checkout, creating one
// when the session has none, it belongs to another country, or it can no
// longer be changed. An existing checkout is brought up to date with the
// cart. The checkout id is stored on the session; the caller saves it.
func (c *Controller) EnsureCheckout(ctx context.Context, sess *session.Session, cart *model.Cart) (*garan24.CheckoutOrder, error) {
	purchaseCountry := c.purchaseCountry(sess, cart)
	if sess.CheckoutCountry != "" && sess.CheckoutCountry != purchaseCountry {
		sess.ClearCheckout()
	}
	api, err := c.client(purchaseCountry)
	if err != nil {
		return nil, err
	}

	if sess.CheckoutID != "" {
		existing, err := api.UpdateCheckout(ctx, sess.CheckoutID, c.cartUpdate(purchaseCountry, cart))
		if err == nil && existing.Status == garan24.CheckoutIncomplete {
			if existing.HTMLSnippet == "" {
				existing, err = api.FetchCheckout(ctx, sess.CheckoutID)
			}
			if err == nil {
				return existing, nil
			}
		}
		if err != nil {
			c.logger.WarnContext(ctx, "existing garan24 checkout unusable, creating a new one",
				slog.String("garan24_checkout", sess.CheckoutID),
				slog.String("error", err.Error()),
			)
		}
		sess.ClearCheckout()
	}

	info, _ := country.Lookup(purchaseCountry, sess.Locale)
	locale := country.Locale(sess.Locale)
	if locale == "" {
		locale = info.Language
	}

	order := c.cartUpdate(purchaseCountry, cart)
	order.PurchaseCountry = purchaseCountry
	order.PurchaseCurrency = cart.Currency
	order.Locale = locale
	order.MerchantURLs = c.merchantURLs(purchaseCountry, cart.Currency, sess.OngoingOrderID)
	order.Options = &garan24.Options{
		ColorButton:                  c.settings.Checkout.ColorButton,
		AllowSeparateShippingAddress: c.settings.Checkout.AllowSeparateShipping,
	}
	if sess.OngoingOrderID != 0 {
		ref := strconv.FormatInt(sess.OngoingOrderID, 10)
		if apiFor(purchaseCountry) == model.APIRest {
			order.MerchantReference1 = ref
		} else {
			order.MerchantReference = &garan24.MerchantReference{OrderID1: ref}
		}
	}

	created, err := api.CreateCheckout(ctx, order)
	if err != nil {
		return nil, garan24.ToAPIError(err)
	}
	if created.HTMLSnippet == "" {
		if created, err = api.FetchCheckout(ctx, created.ID); err != nil {
			return nil, garan24.ToAPIError(err)
		}
	}

	sess.CheckoutID = created.ID
	sess.CheckoutCountry = purchaseCountry
	c.logger.InfoContext(ctx, "garan24 checkout created",
		slog.String("garan24_checkout", created.ID),
		slog.String("country", purchaseCountry),
		slog.Int64("order_id", sess.OngoingOrderID),
	)
	return created, nil
}

// syncProvider pushes the cart to the visitor's provider checkout, if
// there is one. Errors are logged, never returned: the widget keeps
// working and the next change retries.
func (c *Controller) syncProvider(ctx context.Context, sess *session.Session, cart *model.Cart) {
	if sess.CheckoutID == "" || cart.IsEmpty() {
		return
	}
	purchaseCountry := c.purchaseCountry(sess, cart)
	api, err := c.client(purchaseCountry)
	if err == nil {
		_, err = api.UpdateCheckout(ctx, sess.CheckoutID, c.cartUpdate(purchaseCountry, cart))
	}
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to update garan24 checkout",
			slog.String("garan24_checkout", sess.CheckoutID),
			slog.String("error", garan24.NoteFor(err)),
		)
	}
}

// attachOrder points the provider checkout's push and confirmation URLs at
// a local order.
func (c *Controller) attachOrder(ctx context.Context, sess *session.Session, cart *model.Cart, orderID int64) {
	if sess.CheckoutID == "" {
		return
	}
	purchaseCountry := c.purchaseCountry(sess, cart)
	api, err := c.client(purchaseCountry)
	if err == nil {
		_, err = api.UpdateCheckout(ctx, sess.CheckoutID, &garan24.CheckoutOrder{
			MerchantURLs: c.merchantURLs(purchaseCountry, cart.Currency, orderID),
		})
	}
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to attach order to garan24 checkout",
			slog.String("garan24_checkout", sess.CheckoutID),
			slog.Int64("order_id", orderID),
			slog.String("error", garan24.NoteFor(err)),
		)
	}
}
