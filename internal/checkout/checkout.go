// Package checkout serves the embedded Garan24 checkout page: the provider
// iframe, the cart widget next to it and the AJAX callbacks the page uses
// to edit the cart while the customer fills in the iframe.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"garan24-bridge/internal/bridge"
	"garan24-bridge/internal/config"
	"garan24-bridge/internal/country"
	"garan24-bridge/internal/garan24"
	"garan24-bridge/internal/model"
	"garan24-bridge/internal/session"
	"garan24-bridge/internal/woocommerce"
)

// NonceAction is the action every AJAX nonce is bound to.
const NonceAction = "garan24_checkout_nonce"

// Carts is the part of the WooCommerce Store API client the checkout needs.
// *woocommerce.Client implements it.
type Carts interface {
	Get(ctx context.Context, token string) (*woocommerce.CartState, error)
	SetQuantity(ctx context.Context, token, key string, quantity int) (*woocommerce.CartState, error)
	RemoveItem(ctx context.Context, token, key string) (*woocommerce.CartState, error)
	ApplyCoupon(ctx context.Context, token, code string) (*woocommerce.CartState, error)
	RemoveCoupon(ctx context.Context, token, code string) (*woocommerce.CartState, error)
	SelectShippingRate(ctx context.Context, token, rateID string) (*woocommerce.CartState, error)
	UpdateCustomer(ctx context.Context, token string, billing, shipping *model.Address) (*woocommerce.CartState, error)
	Empty(ctx context.Context, token string) (*woocommerce.CartState, error)
}

var _ Carts = (*woocommerce.Client)(nil)

// Deps are the collaborators of a Controller.
type Deps struct {
	Carts    Carts
	Sessions *session.Manager
	Nonces   *session.Nonces
	Bridge   *bridge.Bridge
	Garan24  garan24.Factory
	Settings *config.GatewaySettings
	// PublicURL is the base URL Garan24 uses for push and confirmation.
	PublicURL string
	// ShopCountry is the purchase country when the cart currency does not
	// name one.
	ShopCountry string
	Logger      *slog.Logger
}

// Controller handles the checkout page, its fragments and AJAX callbacks.
type Controller struct {
	carts       Carts
	sessions    *session.Manager
	nonces      *session.Nonces
	bridge      *bridge.Bridge
	garan24     garan24.Factory
	settings    *config.GatewaySettings
	publicURL   string
	shopCountry string
	logger      *slog.Logger
}

// New creates a Controller.
func New(d Deps) *Controller {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		carts:       d.Carts,
		sessions:    d.Sessions,
		nonces:      d.Nonces,
		bridge:      d.Bridge,
		garan24:     d.Garan24,
		settings:    d.Settings,
		publicURL:   strings.TrimSuffix(d.PublicURL, "/"),
		shopCountry: country.Normalize(d.ShopCountry),
		logger:      logger,
	}
}

// RegisterRoutes registers the checkout page, fragments and AJAX routes.
func (c *Controller) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /checkout", c.handleCheckoutPage)
	mux.HandleFunc("GET /checkout/confirmation", c.handleConfirmation)
	mux.HandleFunc("GET /fragments/{name}", c.handleFragment)
	mux.HandleFunc("POST /ajax/{action}", c.handleAJAX)
}

// purchaseCountry is the country the visitor's checkout is created for:
// the country of an existing checkout, then the chosen euro country for
// EUR carts, then the country of the cart currency, then the shop country.
func (c *Controller) purchaseCountry(sess *session.Session, cart *model.Cart) string {
	if sess.CheckoutCountry != "" {
		return sess.CheckoutCountry
	}
	currency := ""
	if cart != nil {
		currency = cart.Currency
	}
	if strings.EqualFold(currency, "EUR") && sess.EuroCountry != "" {
		return country.Normalize(sess.EuroCountry)
	}
	if code := country.ForCurrency(currency); code != "" {
		return code
	}
	return c.shopCountry
}

// apiFor returns the provider API serving a purchase country.
func apiFor(purchaseCountry string) string {
	if country.IsRest(purchaseCountry) {
		return model.APIRest
	}
	return model.APILegacy
}

// prepareOrder refreshes the visitor's incomplete order from the cart.
// Failures are logged; the checkout keeps working without a local order.
func (c *Controller) prepareOrder(ctx context.Context, sess *session.Session, cart *model.Cart, email string) *model.Order {
	if cart.IsEmpty() {
		return nil
	}
	if email == "" {
		email = sess.CustomerEmail
	}
	o, err := c.bridge.PrepareLocalOrder(ctx, sess, cart, email, apiFor(c.purchaseCountry(sess, cart)))
	if err != nil {
		c.logger.WarnContext(ctx, "failed to prepare local order",
			slog.String("session_id", sess.ID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return o
}

// saveSession stores the session. A failure loses the visitor's progress
// but not the response, so it is only logged.
func (c *Controller) saveSession(ctx context.Context, sess *session.Session) {
	if err := c.sessions.Save(ctx, sess); err != nil {
		c.logger.ErrorContext(ctx, "failed to save session",
			slog.String("session_id", sess.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (c *Controller) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		c.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeTextError answers with the error message as plain text, the way
// the shop answers requests it refuses outright.
func (c *Controller) writeTextError(ctx context.Context, w http.ResponseWriter, err error) {
	status, apiErr := c.errorStatus(ctx, err)
	http.Error(w, apiErr.Message, status)
}

// errorStatus maps an error to its HTTP status, logging unexpected errors.
func (c *Controller) errorStatus(ctx context.Context, err error) (int, *model.APIError) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode, apiErr
	}
	c.logger.ErrorContext(ctx, "internal error", slog.String("error", err.Error()))
	return http.StatusInternalServerError, &model.APIError{
		Code:       "INTERNAL_ERROR",
		Message:    "an internal error occurred",
		StatusCode: http.StatusInternalServerError,
	}
}
