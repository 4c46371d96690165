package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"garan24-bridge/internal/bridge"
	"garan24-bridge/internal/country"
	"garan24-bridge/internal/gateway"
	"garan24-bridge/internal/model"
)

// handlePush confirms a finished checkout. Garan24 keeps retrying until it
// gets a 2xx, so only failures worth a retry are reported as errors.
// POST /wc-api/garan24_checkout?sid=...&scountry=...&garan24_order=...
func (h *Handler) handlePush(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	if err := r.ParseForm(); err != nil {
		h.writeError(w, model.NewValidationError("body", "invalid form"))
		return
	}

	p := bridge.Push{
		SID:     r.Form.Get("sid"),
		Country: r.Form.Get("scountry"),
		OrderID: r.Form.Get("garan24_order"),
		API:     r.Form.Get("garan24-api"),
	}
	h.logger.InfoContext(ctx, "garan24 push",
		slog.String("sid", p.SID),
		slog.String("country", p.Country),
		slog.String("garan24_order", p.OrderID),
		slog.String("api", p.API),
	)

	if err := h.bridge.HandlePush(ctx, p); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

type gatewayResponse struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	PClasses []gateway.Plan `json:"pclasses,omitempty"`
}

// planLister is implemented by gateways that sell payment plans.
type planLister interface {
	Plans(ctx context.Context, country string, total int64) []gateway.Plan
}

// handleGateways lists the payment methods offered for the visitor's cart,
// with the payment plans the cart total qualifies for.
// GET /gateways?country=SE
func (h *Handler) handleGateways(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, err := h.sessions.FromRequest(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	st, err := h.carts.Get(ctx, sess.CartToken)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if st.Token != sess.CartToken {
		sess.CartToken = st.Token
		if err := h.sessions.Save(ctx, sess); err != nil {
			h.writeError(w, err)
			return
		}
	}

	avail := gateway.Availability{
		Country: country.Normalize(r.URL.Query().Get("country")),
		Cart:    st.Cart,
	}
	out := []gatewayResponse{}
	for _, g := range h.gateways.Available(ctx, avail) {
		resp := gatewayResponse{ID: g.ID(), Title: g.Title()}
		if pl, ok := g.(planLister); ok {
			resp.PClasses = pl.Plans(ctx, avail.Country, st.Cart.Total)
		}
		out = append(out, resp)
	}
	h.writeJSON(w, http.StatusOK, out)
}

// handlePay places an order from the shop checkout form and runs the
// chosen gateway's payment. A declined payment is still a 200 with
// success false and the notices to show.
// POST /checkout/pay/{gateway}
func (h *Handler) handlePay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	g, ok := h.gateways.Get(r.PathValue("gateway"))
	if !ok {
		h.writeError(w, model.NewNotFoundError("payment method"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	if err := r.ParseForm(); err != nil {
		h.writeError(w, model.NewValidationError("body", "invalid form"))
		return
	}

	sess, err := h.sessions.FromRequest(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	st, err := h.carts.Get(ctx, sess.CartToken)
	if err != nil {
		h.writeError(w, err)
		return
	}

	billing := addressFromForm(r.PostForm, "billing_")
	shipping := billing
	shipping.Email, shipping.Phone = "", ""
	if r.PostForm.Get("ship_to_different_address") != "" {
		shipping = addressFromForm(r.PostForm, "shipping_")
	}

	if !g.IsAvailable(ctx, gateway.Availability{Country: billing.Country, Cart: st.Cart}) {
		h.writeError(w, model.NewValidationError("payment_method", g.Title()+" is not available for this order"))
		return
	}

	o, err := h.bridge.CreateOrder(ctx, bridge.Checkout{
		Cart:          st.Cart,
		Billing:       billing,
		Shipping:      shipping,
		PaymentMethod: g.ID(),
		CustomerNote:  r.PostForm.Get("order_comments"),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	res, err := g.ProcessPayment(ctx, o.ID, gateway.ParseForm(g.ID(), r.PostForm))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if res.ClearCart {
		if _, err := h.carts.Empty(ctx, st.Token); err != nil {
			h.logger.WarnContext(ctx, "failed to empty cart",
				slog.Int64("order_id", o.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	h.logger.InfoContext(ctx, "payment processed",
		slog.Int64("order_id", o.ID),
		slog.String("gateway", g.ID()),
		slog.Bool("success", res.Success),
	)
	h.writeJSON(w, http.StatusOK, payResponse{OrderID: o.ID, Result: res})
}

type payResponse struct {
	OrderID int64 `json:"order_id"`
	*gateway.Result
}

// addressFromForm reads the WooCommerce checkout address fields with the
// given prefix.
func addressFromForm(v url.Values, prefix string) model.Address {
	field := func(name string) string {
		return strings.TrimSpace(v.Get(prefix + name))
	}
	return model.Address{
		FirstName: field("first_name"),
		LastName:  field("last_name"),
		Company:   field("company"),
		Address1:  field("address_1"),
		Address2:  field("address_2"),
		City:      field("city"),
		State:     field("state"),
		Postcode:  field("postcode"),
		Country:   country.Normalize(field("country")),
		Email:     field("email"),
		Phone:     field("phone"),
	}
}
