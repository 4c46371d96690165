package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// GatewaySettings is the per-gateway settings document. It is kept as YAML
// (SETTINGS_FILE) in development and inside the merchant secret in
// production.
type GatewaySettings struct {
	Invoice     MethodSettings   `json:"invoice" yaml:"invoice"`
	PartPayment MethodSettings   `json:"part_payment" yaml:"part_payment"`
	Checkout    CheckoutSettings `json:"checkout" yaml:"checkout"`
	Debug       bool             `json:"debug" yaml:"debug"`
	// ExactRates sends exact tax basis points instead of the rounded
	// percentages older stores rely on.
	ExactRates bool `json:"exact_rates" yaml:"exact_rates"`
}

// MethodSettings holds the settings shared by every Garan24 gateway.
// EID and Secret are keyed by upper-case country code. Amounts are minor
// units.
type MethodSettings struct {
	Enabled              bool              `json:"enabled" yaml:"enabled"`
	TestMode             bool              `json:"testmode" yaml:"testmode"`
	Title                string            `json:"title" yaml:"title"`
	Description          string            `json:"description" yaml:"description"`
	EID                  map[string]string `json:"eid" yaml:"eid"`
	Secret               map[string]string `json:"secret" yaml:"secret"`
	LowerThreshold       int64             `json:"lower_threshold" yaml:"lower_threshold"`
	UpperThreshold       int64             `json:"upper_threshold" yaml:"upper_threshold"`
	AuthorizedCountries  []string          `json:"authorized_countries" yaml:"authorized_countries"`
	PushCompletion       bool              `json:"push_completion" yaml:"push_completion"`
	PushCancellation     bool              `json:"push_cancellation" yaml:"push_cancellation"`
	PushUpdate           bool              `json:"push_update" yaml:"push_update"`
	DEConsentTerms       bool              `json:"de_consent_terms" yaml:"de_consent_terms"`
	ShipToBillingAddress bool              `json:"ship_to_billing_address" yaml:"ship_to_billing_address"`
	InvoiceFee           *FeeSettings      `json:"invoice_fee,omitempty" yaml:"invoice_fee,omitempty"`
}

// FeeSettings describes the invoice fee added when the invoice gateway is
// chosen.
type FeeSettings struct {
	Name   string `json:"name" yaml:"name"`
	Amount int64  `json:"amount" yaml:"amount"`
	Tax    int64  `json:"tax" yaml:"tax"`
}

// CheckoutSettings extends MethodSettings with the embedded checkout pages.
// CheckoutURLs maps a country code (or "EUR" for the shared euro checkout)
// to the shop page hosting that checkout.
type CheckoutSettings struct {
	MethodSettings `json:",inline" yaml:",inline"`

	CheckoutURLs          map[string]string `json:"checkout_urls" yaml:"checkout_urls"`
	TermsURL              string            `json:"terms_url" yaml:"terms_url"`
	CartURL               string            `json:"cart_url" yaml:"cart_url"`
	ColorButton           string            `json:"color_button,omitempty" yaml:"color_button,omitempty"`
	AllowSeparateShipping bool              `json:"allow_separate_shipping" yaml:"allow_separate_shipping"`
}

// LoadSettings reads a YAML gateway settings file.
func LoadSettings(path string) (*GatewaySettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading settings file: %w", err)
	}
	return ParseSettings(data)
}

// ParseSettings parses a YAML (or JSON) gateway settings document and
// normalizes the country keys.
func ParseSettings(data []byte) (*GatewaySettings, error) {
	var s GatewaySettings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing settings: %w", err)
	}
	s.normalize()
	return &s, nil
}

func (s *GatewaySettings) normalize() {
	s.Invoice.normalize()
	s.PartPayment.normalize()
	s.Checkout.MethodSettings.normalize()
	s.Checkout.CheckoutURLs = upperKeys(s.Checkout.CheckoutURLs)
}

func (s *GatewaySettings) validate() error {
	for name, m := range map[string]*MethodSettings{
		"invoice":      &s.Invoice,
		"part_payment": &s.PartPayment,
		"checkout":     &s.Checkout.MethodSettings,
	} {
		if !m.Enabled {
			continue
		}
		if len(m.EID) == 0 {
			return fmt.Errorf("gateways.%s: at least one eid is required", name)
		}
		for c := range m.EID {
			if m.Secret[c] == "" {
				return fmt.Errorf("gateways.%s: secret missing for %s", name, c)
			}
		}
		if m.UpperThreshold > 0 && m.LowerThreshold > m.UpperThreshold {
			return fmt.Errorf("gateways.%s: lower_threshold exceeds upper_threshold", name)
		}
	}
	return nil
}

// Method returns the settings for a payment method id, or nil.
func (s *GatewaySettings) Method(id string) *MethodSettings {
	switch id {
	case "garan24_invoice":
		return &s.Invoice
	case "garan24_part_payment":
		return &s.PartPayment
	case "garan24_checkout":
		return &s.Checkout.MethodSettings
	}
	return nil
}

func (m *MethodSettings) normalize() {
	m.EID = upperKeys(m.EID)
	m.Secret = upperKeys(m.Secret)
	for i, c := range m.AuthorizedCountries {
		m.AuthorizedCountries[i] = strings.ToUpper(strings.TrimSpace(c))
	}
}

// Credentials returns the merchant id and shared secret for a country.
func (m *MethodSettings) Credentials(country string) (eid, secret string, ok bool) {
	country = strings.ToUpper(country)
	eid, secret = m.EID[country], m.Secret[country]
	return eid, secret, eid != "" && secret != ""
}

// Authorized reports whether customers from country may use the method.
// An empty list authorizes every country that has credentials.
func (m *MethodSettings) Authorized(country string) bool {
	country = strings.ToUpper(country)
	if len(m.AuthorizedCountries) == 0 {
		_, _, ok := m.Credentials(country)
		return ok
	}
	for _, c := range m.AuthorizedCountries {
		if c == country {
			return true
		}
	}
	return false
}

// CheckoutURL returns the checkout page for a country, falling back to the
// euro checkout for EUR countries and then to the default entry.
func (c *CheckoutSettings) CheckoutURL(country, currency string) string {
	if u := c.CheckoutURLs[strings.ToUpper(country)]; u != "" {
		return u
	}
	if strings.EqualFold(currency, "EUR") {
		if u := c.CheckoutURLs["EUR"]; u != "" {
			return u
		}
	}
	return c.CheckoutURLs["DEFAULT"]
}

func upperKeys(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[strings.ToUpper(strings.TrimSpace(k))] = v
	}
	return out
}
