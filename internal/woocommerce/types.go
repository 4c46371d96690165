// Package woocommerce is the bridge's client for the WooCommerce Store API
// cart. WooCommerce owns the cart; the bridge reads it on every checkout
// round trip and mutates it through the cart endpoints.
package woocommerce

import "encoding/json"

// === Store API Response Types ===

// WooCartResponse represents the Store API cart response. Every cart
// mutation returns it as well.
type WooCartResponse struct {
	Items           []WooCartItem    `json:"items"`
	Totals          WooTotals        `json:"totals"`
	ShippingRates   []WooShippingPkg `json:"shipping_rates,omitempty"`
	Coupons         []WooCoupon      `json:"coupons,omitempty"`
	Fees            []WooFee         `json:"fees,omitempty"`
	NeedsShipping   bool             `json:"needs_shipping"`
	NeedsPayment    bool             `json:"needs_payment"`
	BillingAddress  WooAddress       `json:"billing_address"`
	ShippingAddress WooAddress       `json:"shipping_address"`
	Errors          []WooCartError   `json:"errors,omitempty"`
}

// WooCartError represents an error in cart state, e.g. an item that went
// out of stock.
type WooCartError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WooCartItem represents an item in the cart response. For variations ID is
// the variation id.
type WooCartItem struct {
	Key      string            `json:"key"`
	ID       int               `json:"id"`
	Type     string            `json:"type,omitempty"`
	SKU      string            `json:"sku,omitempty"`
	Name     string            `json:"name"`
	Quantity int               `json:"quantity"`
	Prices   WooCartItemPrices `json:"prices"`
	Totals   WooCartItemTotals `json:"totals"`
}

// WooCartItemPrices contains price info for a cart item.
type WooCartItemPrices struct {
	Price        string `json:"price"`
	RegularPrice string `json:"regular_price"`
	SalePrice    string `json:"sale_price"`
}

// WooCartItemTotals contains totals for a cart item, in minor units.
type WooCartItemTotals struct {
	LineSubtotal    string `json:"line_subtotal"` // before coupons
	LineSubtotalTax string `json:"line_subtotal_tax"`
	LineTotal       string `json:"line_total"`
	LineTotalTax    string `json:"line_total_tax"`
}

// WooTotals contains the cart totals. Amounts are minor units as strings.
type WooTotals struct {
	CurrencyCode      string `json:"currency_code"`
	CurrencyMinorUnit int    `json:"currency_minor_unit"`
	TotalItems        string `json:"total_items"`
	TotalItemsTax     string `json:"total_items_tax"`
	TotalFees         string `json:"total_fees"`
	TotalFeesTax      string `json:"total_fees_tax"`
	TotalDiscount     string `json:"total_discount"`
	TotalDiscountTax  string `json:"total_discount_tax"`
	TotalShipping     string `json:"total_shipping"`
	TotalShippingTax  string `json:"total_shipping_tax"`
	TotalPrice        string `json:"total_price"`
	TotalTax          string `json:"total_tax"`
}

// WooAddress represents a WooCommerce address.
type WooAddress struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`
	Address1  string `json:"address_1"`
	Address2  string `json:"address_2"`
	City      string `json:"city"`
	State     string `json:"state"`
	Postcode  string `json:"postcode"`
	Country   string `json:"country"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// WooShippingPkg represents a shipping package with available rates.
type WooShippingPkg struct {
	PackageID     int               `json:"package_id"`
	Name          string            `json:"name"`
	ShippingRates []WooShippingRate `json:"shipping_rates"`
}

// WooShippingRate represents a single shipping option.
type WooShippingRate struct {
	RateID   string `json:"rate_id"`
	Name     string `json:"name"`
	Price    string `json:"price"`
	Taxes    string `json:"taxes"`
	MethodID string `json:"method_id"`
	Selected bool   `json:"selected"`
}

// WooCoupon represents an applied coupon. Smart coupons carry
// discount_type "smart_coupon" and act as store credit.
type WooCoupon struct {
	Code         string          `json:"code"`
	DiscountType string          `json:"discount_type"`
	Totals       WooCouponTotals `json:"totals"`
}

// WooCouponTotals contains the calculated discount amounts for a coupon.
type WooCouponTotals struct {
	TotalDiscount    string `json:"total_discount"`
	TotalDiscountTax string `json:"total_discount_tax"`
}

// WooFee represents an additional cart fee.
type WooFee struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	Totals WooFeeTotals `json:"totals"`
}

// WooFeeTotals contains the fee amounts.
type WooFeeTotals struct {
	Total    string `json:"total"`
	TotalTax string `json:"total_tax"`
}

// WooErrorResponse represents a Store API error.
type WooErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Status int `json:"status"`
	} `json:"data"`
}

// === Batch API Types ===

// WooBatchRequest is the payload for POST /batch.
type WooBatchRequest struct {
	Requests []WooBatchOperation `json:"requests"`
}

// WooBatchOperation is a single operation within a batch. Headers carries
// per-operation Cart-Token and Nonce.
type WooBatchOperation struct {
	Path    string            `json:"path"`
	Method  string            `json:"method"`
	Body    json.RawMessage   `json:"body,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// WooBatchResponse is the response from POST /batch.
type WooBatchResponse struct {
	Responses []WooBatchResult `json:"responses"`
}

// WooBatchResult is a single result within a batch response.
type WooBatchResult struct {
	Status  int             `json:"status"`
	Body    json.RawMessage `json:"body"`
	Headers WooBatchHeaders `json:"headers"`
}

// WooBatchHeaders contains headers from a batch response.
type WooBatchHeaders struct {
	Nonce     string `json:"Nonce"`
	CartToken string `json:"Cart-Token"`
}
