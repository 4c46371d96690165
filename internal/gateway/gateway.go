// Package gateway implements the Garan24 payment methods offered on the
// shop checkout: invoice and part payment (KPM reservations) and the
// embedded Garan24 checkout.
package gateway

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"garan24-bridge/internal/bridge"
	"garan24-bridge/internal/country"
	"garan24-bridge/internal/garan24"
	"garan24-bridge/internal/model"
)

// Gateway is a payment method the shop checkout can offer.
type Gateway interface {
	ID() string
	Title() string
	IsAvailable(ctx context.Context, a Availability) bool
	ProcessPayment(ctx context.Context, orderID int64, form PaymentForm) (*Result, error)
	ProcessRefund(ctx context.Context, orderID, amount int64, reason string) error
}

// Availability is the checkout state a gateway is offered for.
type Availability struct {
	// Country is the customer's billing country, "" when not known yet.
	Country string
	Cart    *model.Cart
	// CheckoutPage is set while the embedded Garan24 checkout itself is
	// rendered.
	CheckoutPage bool
}

// PaymentForm holds the gateway fields posted with the shop checkout.
type PaymentForm struct {
	PNO                    string
	DOBDay                 string
	DOBMonth               string
	DOBYear                string
	Gender                 string
	PClass                 string
	ConsentTerms           bool
	ShipToDifferentAddress bool
}

// ParseForm reads the fields of gateway id from a posted checkout form.
// Fields are prefixed with the gateway id, e.g. garan24_invoice_pno.
func ParseForm(id string, v url.Values) PaymentForm {
	field := func(name string) string {
		return strings.TrimSpace(v.Get(id + "_" + name))
	}
	return PaymentForm{
		PNO:                    field("pno"),
		DOBDay:                 field("date_of_birth_day"),
		DOBMonth:               field("date_of_birth_month"),
		DOBYear:                field("date_of_birth_year"),
		Gender:                 field("gender"),
		PClass:                 field("pclass"),
		ConsentTerms:           field("de_consent_terms") != "",
		ShipToDifferentAddress: v.Get("ship_to_different_address") != "",
	}
}

// Result is the outcome of ProcessPayment. Notices are shown to the
// customer when the payment did not go through. ClearCart asks the caller
// to empty the shop cart.
type Result struct {
	Success   bool     `json:"success"`
	Redirect  string   `json:"redirect,omitempty"`
	Notices   []string `json:"notices,omitempty"`
	ClearCart bool     `json:"-"`
}

func failure(notices ...string) *Result {
	return &Result{Notices: notices}
}

// Deps are the collaborators shared by the gateways.
type Deps struct {
	Bridge  *bridge.Bridge
	Garan24 garan24.Factory
	// ConfirmationURL is the order received page; the order id is added
	// as the "order" query parameter.
	ConfirmationURL string
	// CheckoutURL is the page hosting the embedded checkout.
	CheckoutURL string
	Logger      *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

func (d Deps) confirmation(orderID int64) string {
	u, err := url.Parse(d.ConfirmationURL)
	if err != nil {
		return d.ConfirmationURL
	}
	q := u.Query()
	q.Set("order", strconv.FormatInt(orderID, 10))
	u.RawQuery = q.Encode()
	return u.String()
}

// Registry looks gateways up by id.
type Registry struct {
	gateways []Gateway
}

// NewRegistry returns the invoice, part payment and checkout gateways.
func NewRegistry(d Deps) *Registry {
	return &Registry{gateways: []Gateway{NewInvoice(d), NewPartPayment(d), NewCheckout(d)}}
}

// Get returns the gateway with the given id.
func (r *Registry) Get(id string) (Gateway, bool) {
	for _, g := range r.gateways {
		if g.ID() == id {
			return g, true
		}
	}
	return nil, false
}

// Available returns the gateways that can be offered for a.
func (r *Registry) Available(ctx context.Context, a Availability) []Gateway {
	var out []Gateway
	for _, g := range r.gateways {
		if g.IsAvailable(ctx, a) {
			out = append(out, g)
		}
	}
	return out
}

// Validation notices.
const (
	NoticePNORequired     = "Date of birth is a required field."
	NoticeGenderRequired  = "Gender is a required field."
	NoticeAddressMismatch = "Shipping and billing address must be the same when paying via Garan24."
	NoticeConsentTerms    = "You must accept the Garan24 consent terms."
)

func pnoCountry(c string) bool {
	switch c {
	case "SE", "NO", "DK", "FI":
		return true
	}
	return false
}

func dobCountry(c string) bool {
	switch c {
	case "NL", "DE", "AT":
		return true
	}
	return false
}

// Validate returns the notices that block a KPM payment for an order.
// consentTerms is the gateway's DE/AT consent setting.
func Validate(o *model.Order, f PaymentForm, consentTerms bool) []string {
	var notices []string
	c := country.Normalize(o.Billing.Country)

	if pnoCountry(c) && f.PNO == "" {
		notices = append(notices, NoticePNORequired)
	}
	if dobCountry(c) {
		if f.Gender == "" {
			notices = append(notices, NoticeGenderRequired)
		}
		if f.DOBDay == "" || f.DOBMonth == "" || f.DOBYear == "" {
			notices = append(notices, NoticePNORequired)
		}
	}

	if f.ShipToDifferentAddress {
		b, s := o.Billing, o.Shipping
		if s.FirstName != b.FirstName || s.LastName != b.LastName || s.Address1 != b.Address1 ||
			s.Postcode != b.Postcode || s.City != b.City {
			notices = append(notices, NoticeAddressMismatch)
		}
	}

	if consentTerms && (c == "DE" || c == "AT") && !f.ConsentTerms {
		notices = append(notices, NoticeConsentTerms)
	}
	return notices
}

// PNO returns the personal number sent to Garan24: the posted number, or
// the date of birth as ddmmyyyy for NL, DE and AT.
func PNO(billingCountry string, f PaymentForm) string {
	if dobCountry(country.Normalize(billingCountry)) {
		return pad2(f.DOBDay) + pad2(f.DOBMonth) + f.DOBYear
	}
	return f.PNO
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}
