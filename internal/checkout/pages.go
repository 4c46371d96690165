package checkout

import (
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"garan24-bridge/internal/country"
	"garan24-bridge/internal/session"
)

func (c *Controller) writeHTML(w http.ResponseWriter, status int, name string, data any) {
	html, err := render(name, data)
	if err != nil {
		c.logger.Error("failed to render template", slog.String("template", name), slog.String("error", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(html))
}

// handleCheckoutPage renders the provider iframe next to the cart widget.
// The local order and the provider checkout are created on first visit
// and refreshed on every later one.
func (c *Controller) handleCheckoutPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !c.settings.Checkout.Enabled {
		http.NotFound(w, r)
		return
	}

	sess, err := c.sessions.FromRequest(w, r)
	if err != nil {
		status, apiErr := c.errorStatus(ctx, err)
		http.Error(w, apiErr.Message, status)
		return
	}
	if l := r.URL.Query().Get("locale"); l != "" {
		sess.Locale = l
	}

	view := pageView{
		Lang:    "en",
		Nonce:   c.nonces.Create(NonceAction, sess.ID),
		CartURL: c.settings.Checkout.CartURL,
	}
	if sess.Locale != "" {
		view.Lang = strings.ReplaceAll(sess.Locale, "_", "-")
	}

	st, err := c.carts.Get(ctx, sess.CartToken)
	if err != nil {
		status, apiErr := c.errorStatus(ctx, err)
		http.Error(w, apiErr.Message, status)
		return
	}
	sess.CartToken = st.Token
	defer c.saveSession(ctx, sess)

	if st.Cart.IsEmpty() {
		view.Empty = true
		c.writeHTML(w, http.StatusOK, "page", view)
		return
	}

	for _, e := range st.Cart.Errors {
		view.Errors = append(view.Errors, e.Message)
	}
	view.EuroCheckout = strings.EqualFold(st.Cart.Currency, "EUR")
	view.Country = newCountryView(c.purchaseCountry(sess, st.Cart))
	view.Widget = newWidgetView(st.Cart, sess.OrderNote)

	if !st.Cart.HasErrors() {
		c.prepareOrder(ctx, sess, st.Cart, "")
		co, err := c.EnsureCheckout(ctx, sess, st.Cart)
		if err != nil {
			c.logger.ErrorContext(ctx, "failed to load garan24 checkout",
				slog.String("session_id", sess.ID),
				slog.String("error", err.Error()),
			)
			_, apiErr := c.errorStatus(ctx, err)
			view.Errors = append(view.Errors, apiErr.Message)
		} else {
			view.Snippet = template.HTML(co.Snippet())
		}
	}
	c.writeHTML(w, http.StatusOK, "page", view)
}

// handleConfirmation shows the provider's thank-you snippet and ends the
// visitor's checkout. The order itself is confirmed by the push.
func (c *Controller) handleConfirmation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	id := q.Get("garan24_order")
	if id == "" {
		http.Error(w, "missing garan24_order", http.StatusBadRequest)
		return
	}

	sess, err := c.sessions.FromRequest(w, r)
	if err != nil {
		status, apiErr := c.errorStatus(ctx, err)
		http.Error(w, apiErr.Message, status)
		return
	}

	purchaseCountry := country.Normalize(q.Get("scountry"))
	if purchaseCountry == "" {
		purchaseCountry = sess.CheckoutCountry
	}
	view := confirmationView{OrderID: q.Get("order-received")}

	api, err := c.client(purchaseCountry)
	if err == nil {
		co, ferr := api.FetchCheckout(ctx, id)
		if ferr == nil {
			view.Snippet = template.HTML(co.Snippet())
		}
		err = ferr
	}
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to fetch garan24 confirmation",
			slog.String("garan24_checkout", id),
			slog.String("error", err.Error()),
		)
		view.Errors = append(view.Errors, "We could not load your order confirmation. Your order has been received.")
	}

	c.finishSession(r, sess)
	c.writeHTML(w, http.StatusOK, "confirmation", view)
}

// finishSession empties the cart and forgets the checkout and the ongoing
// order, so the next visit starts over.
func (c *Controller) finishSession(r *http.Request, sess *session.Session) {
	ctx := r.Context()
	if sess.CartToken != "" {
		if _, err := c.carts.Empty(ctx, sess.CartToken); err != nil {
			c.logger.WarnContext(ctx, "failed to empty cart",
				slog.String("session_id", sess.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	sess.ClearCheckout()
	sess.OngoingOrderID = 0
	sess.OrderNote = ""
	c.saveSession(ctx, sess)
}

// handleFragment renders one part of the checkout page on its own, for
// shops that place the widget, order note and country selector themselves.
func (c *Controller) handleFragment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, err := c.sessions.FromRequest(w, r)
	if err != nil {
		status, apiErr := c.errorStatus(ctx, err)
		http.Error(w, apiErr.Message, status)
		return
	}

	switch r.PathValue("name") {
	case "widget":
		st, err := c.carts.Get(ctx, sess.CartToken)
		if err != nil {
			status, apiErr := c.errorStatus(ctx, err)
			http.Error(w, apiErr.Message, status)
			return
		}
		sess.CartToken = st.Token
		c.saveSession(ctx, sess)
		c.writeHTML(w, http.StatusOK, "widget", newWidgetView(st.Cart, sess.OrderNote))
	case "order-note":
		c.writeHTML(w, http.StatusOK, "order-note", sess.OrderNote)
	case "country":
		selected := sess.EuroCountry
		if selected == "" {
			selected = sess.CheckoutCountry
		}
		c.writeHTML(w, http.StatusOK, "country", newCountryView(selected))
	default:
		http.NotFound(w, r)
	}
}
