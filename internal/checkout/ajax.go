package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"garan24-bridge/internal/country"
	"garan24-bridge/internal/garan24"
	"garan24-bridge/internal/model"
	"garan24-bridge/internal/session"
	"garan24-bridge/internal/woocommerce"
)

// maxFormSize limits AJAX form bodies.
const maxFormSize = 64 << 10

// ajaxResponse is the {success, data} envelope the checkout script expects.
type ajaxResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

type ajaxRequest struct {
	sess *session.Session
	form url.Values
}

type action func(c *Controller, ctx context.Context, req *ajaxRequest) (map[string]any, error)

var actions = map[string]action{
	"garan24_checkout_cart_callback_update":   (*Controller).updateQuantity,
	"garan24_checkout_cart_callback_remove":   (*Controller).removeItem,
	"garan24_checkout_coupons_callback":       (*Controller).applyCoupon,
	"garan24_checkout_remove_coupon_callback": (*Controller).removeCoupon,
	"garan24_checkout_shipping_callback":      (*Controller).selectShipping,
	"garan24_checkout_order_note_callback":    (*Controller).orderNote,
	"garan24_checkout_country_callback":       (*Controller).changeCountry,
	"kco_iframe_change_cb":                    (*Controller).iframeChange,
	"kco_iframe_shipping_address_change_cb":   (*Controller).shippingAddressChange,
	"kco_iframe_shipping_option_change_cb":    (*Controller).shippingOptionChange,
	"garan24_get_address":                     (*Controller).getAddress,
}

func (c *Controller) handleAJAX(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)
	if err := r.ParseForm(); err != nil {
		c.writeJSON(w, http.StatusBadRequest, ajaxResponse{Data: map[string]string{"message": "invalid form"}})
		return
	}

	sess, err := c.sessions.FromRequest(w, r)
	if err != nil {
		status, apiErr := c.errorStatus(ctx, err)
		c.writeJSON(w, status, ajaxResponse{Data: map[string]string{"code": apiErr.Code, "message": apiErr.Message}})
		return
	}
	if !c.nonces.Verify(r.PostFormValue("nonce"), NonceAction, sess.ID) {
		c.writeTextError(ctx, w, model.NewForbiddenError("Nonce can not be verified."))
		return
	}

	name := r.PathValue("action")
	act, ok := actions[name]
	if !ok {
		c.writeJSON(w, http.StatusNotFound, ajaxResponse{Data: map[string]string{"message": "unknown action " + name}})
		return
	}

	data, err := act(c, ctx, &ajaxRequest{sess: sess, form: r.PostForm})
	c.saveSession(ctx, sess)
	if err != nil {
		status, apiErr := c.errorStatus(ctx, err)
		c.logger.InfoContext(ctx, "checkout action failed",
			slog.String("action", name),
			slog.String("session_id", sess.ID),
			slog.String("error", err.Error()),
		)
		c.writeJSON(w, status, ajaxResponse{Data: map[string]string{"code": apiErr.Code, "message": apiErr.Message}})
		return
	}
	c.writeJSON(w, http.StatusOK, ajaxResponse{Success: true, Data: data})
}

// cartChanged records the new cart token, refreshes the local order and
// the provider checkout, and returns the re-rendered widget.
func (c *Controller) cartChanged(ctx context.Context, sess *session.Session, st *woocommerce.CartState) (map[string]any, error) {
	sess.CartToken = st.Token
	c.prepareOrder(ctx, sess, st.Cart, "")
	html, err := WidgetHTML(st.Cart, sess)
	if err != nil {
		return nil, fmt.Errorf("rendering widget: %w", err)
	}
	c.syncProvider(ctx, sess, st.Cart)
	return map[string]any{"widget_html": html}, nil
}

func (c *Controller) updateQuantity(ctx context.Context, req *ajaxRequest) (map[string]any, error) {
	qty, err := strconv.Atoi(req.form.Get("new_quantity"))
	if err != nil {
		return nil, model.NewValidationError("new_quantity", "must be a number")
	}
	st, err := c.carts.SetQuantity(ctx, req.sess.CartToken, req.form.Get("cart_item_key"), qty)
	if err != nil {
		return nil, err
	}
	return c.cartChanged(ctx, req.sess, st)
}

func (c *Controller) removeItem(ctx context.Context, req *ajaxRequest) (map[string]any, error) {
	st, err := c.carts.RemoveItem(ctx, req.sess.CartToken, req.form.Get("cart_item_key_remove"))
	if err != nil {
		return nil, err
	}

	if st.Cart.IsEmpty() && req.sess.OngoingOrderID != 0 {
		id := req.sess.OngoingOrderID
		if err := c.bridge.Store().Delete(ctx, id); err != nil && !errors.Is(err, model.ErrNotFound) {
			c.logger.WarnContext(ctx, "failed to delete ongoing order",
				slog.Int64("order_id", id),
				slog.String("error", err.Error()),
			)
		}
		req.sess.OngoingOrderID = 0
	}

	data, err := c.cartChanged(ctx, req.sess, st)
	if err != nil {
		return nil, err
	}
	data["item_count"] = st.Cart.ItemCount()
	data["cart_url"] = c.settings.Checkout.CartURL
	return data, nil
}

// applyCoupon reports a rejected coupon as coupon_success false and
// returns the unchanged cart.
func (c *Controller) applyCoupon(ctx context.Context, req *ajaxRequest) (map[string]any, error) {
	code := strings.TrimSpace(req.form.Get("coupon"))
	success := true
	st, err := c.carts.ApplyCoupon(ctx, req.sess.CartToken, code)
	if errors.Is(err, model.ErrInvalidRequest) {
		success = false
		st, err = c.carts.Get(ctx, req.sess.CartToken)
	}
	if err != nil {
		return nil, err
	}

	data, err := c.cartChanged(ctx, req.sess, st)
	if err != nil {
		return nil, err
	}
	var amount int64
	for _, cp := range st.Cart.Coupons {
		if strings.EqualFold(cp.Code, code) {
			amount = cp.Discount + cp.DiscountTax
		}
	}
	data["coupon_success"] = success
	data["coupon"] = code
	data["amount"] = model.FormatMoney(amount, st.Cart.Currency)
	return data, nil
}

func (c *Controller) removeCoupon(ctx context.Context, req *ajaxRequest) (map[string]any, error) {
	st, err := c.carts.RemoveCoupon(ctx, req.sess.CartToken, req.form.Get("remove_coupon"))
	if err != nil {
		return nil, err
	}
	return c.cartChanged(ctx, req.sess, st)
}

func (c *Controller) selectShipping(ctx context.Context, req *ajaxRequest) (map[string]any, error) {
	method := req.form.Get("new_method")
	st, err := c.carts.SelectShippingRate(ctx, req.sess.CartToken, method)
	if err != nil {
		return nil, err
	}
	data, err := c.cartChanged(ctx, req.sess, st)
	if err != nil {
		return nil, err
	}
	data["new_method"] = method
	return data, nil
}

func (c *Controller) shippingOptionChange(ctx context.Context, req *ajaxRequest) (map[string]any, error) {
	st, err := c.carts.SelectShippingRate(ctx, req.sess.CartToken, req.form.Get("new_method"))
	if err != nil {
		return nil, err
	}
	return c.cartChanged(ctx, req.sess, st)
}

// orderNote keeps the note on the session and copies it to the ongoing
// order.
func (c *Controller) orderNote(ctx context.Context, req *ajaxRequest) (map[string]any, error) {
	note := strings.TrimSpace(req.form.Get("order_note"))
	req.sess.OrderNote = note
	if req.sess.OngoingOrderID == 0 {
		return map[string]any{}, nil
	}

	st := c.bridge.Store()
	o, err := st.Get(ctx, req.sess.OngoingOrderID)
	if errors.Is(err, model.ErrNotFound) {
		req.sess.OngoingOrderID = 0
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, err
	}
	o.CustomerNote = note
	if err := st.Save(ctx, o); err != nil {
		return nil, err
	}
	return map[string]any{}, nil
}

// changeCountry switches the euro checkout to another country. The
// provider checkout is dropped so the next page load creates one for the
// new country.
func (c *Controller) changeCountry(_ context.Context, req *ajaxRequest) (map[string]any, error) {
	code := country.Normalize(req.form.Get("new_country"))
	euro := false
	for _, e := range country.EuroCountries() {
		if e == code {
			euro = true
		}
	}
	if !euro {
		return nil, model.NewValidationError("new_country", fmt.Sprintf("%q is not a euro checkout country", code))
	}

	req.sess.ClearCheckout()
	req.sess.EuroCountry = code
	return map[string]any{
		"new_url":              c.settings.Checkout.CheckoutURL(code, "EUR"),
		"garan24_euro_country": code,
	}, nil
}

var postcodePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 -]{1,9}$`)

// iframeChange handles the customer typing into the iframe. An email
// creates the local order and points the checkout's callbacks at it; a
// postcode recalculates shipping.
func (c *Controller) iframeChange(ctx context.Context, req *ajaxRequest) (map[string]any, error) {
	st, err := c.carts.Get(ctx, req.sess.CartToken)
	if err != nil {
		return nil, err
	}
	req.sess.CartToken = st.Token
	if st.Cart.HasErrors() {
		return nil, model.NewValidationError("cart", st.Cart.Errors[0].Message)
	}

	data := map[string]any{}
	if email := strings.TrimSpace(req.form.Get("email")); email != "" {
		req.sess.CustomerEmail = email
		if o := c.prepareOrder(ctx, req.sess, st.Cart, email); o != nil {
			data["orderid"] = o.ID
			c.attachOrder(ctx, req.sess, st.Cart, o.ID)
		}
	}

	if pc := strings.TrimSpace(req.form.Get("postal_code")); postcodePattern.MatchString(pc) {
		shipping := st.Shipping
		shipping.Postcode = pc
		if shipping.Country == "" {
			shipping.Country = c.purchaseCountry(req.sess, st.Cart)
		}
		st, err = c.carts.UpdateCustomer(ctx, req.sess.CartToken, nil, &shipping)
		if err != nil {
			return nil, err
		}
		changed, err := c.cartChanged(ctx, req.sess, st)
		if err != nil {
			return nil, err
		}
		for k, v := range changed {
			data[k] = v
		}
	}
	return data, nil
}

func (c *Controller) shippingAddressChange(ctx context.Context, req *ajaxRequest) (map[string]any, error) {
	st, err := c.carts.Get(ctx, req.sess.CartToken)
	if err != nil {
		return nil, err
	}
	billing, shipping := st.Billing, st.Shipping
	if pc := strings.TrimSpace(req.form.Get("postal_code")); pc != "" {
		billing.Postcode, shipping.Postcode = pc, pc
	}
	if region := strings.TrimSpace(req.form.Get("region")); region != "" {
		billing.State, shipping.State = region, region
	}
	if code := country.Normalize(req.form.Get("country")); code != "" {
		billing.Country, shipping.Country = code, code
	}

	st, err = c.carts.UpdateCustomer(ctx, st.Token, &billing, &shipping)
	if err != nil {
		return nil, err
	}
	return c.cartChanged(ctx, req.sess, st)
}

// NoAddressFound is returned when an address lookup has no result.
const NoAddressFound = "No address found"

// getAddress looks up the registered addresses of a Swedish personal
// number with the invoice gateway's credentials.
func (c *Controller) getAddress(ctx context.Context, req *ajaxRequest) (map[string]any, error) {
	pno := strings.TrimSpace(req.form.Get("pno"))
	if pno == "" {
		pno = strings.TrimSpace(req.form.Get("pno_getadress"))
	}
	if pno == "" {
		return nil, model.NewValidationError("pno", "is required")
	}

	ms := &c.settings.Invoice
	eid, secret, ok := ms.Credentials("SE")
	if !ok {
		ms = &c.settings.PartPayment
		eid, secret, ok = ms.Credentials("SE")
	}
	if !ok {
		return nil, model.NewValidationError("pno", "address lookup is not configured")
	}

	legacy := c.garan24.Legacy(garan24.Credentials{EID: eid, Secret: secret}, ms.TestMode)
	addrs, err := legacy.GetAddresses(ctx, pno)
	if err != nil || len(addrs) == 0 {
		if err != nil {
			c.logger.InfoContext(ctx, "address lookup failed", slog.String("error", garan24.NoteFor(err)))
		}
		return map[string]any{"get_address_message": NoAddressFound}, nil
	}
	return map[string]any{"addresses": addrs}, nil
}
