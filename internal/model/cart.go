package model

// CartItem is one line of a WooCommerce cart. Amounts are minor units.
type CartItem struct {
	Key             string `json:"key"`
	ProductID       int    `json:"product_id"`
	VariationID     int    `json:"variation_id,omitempty"`
	SKU             string `json:"sku,omitempty"`
	Name            string `json:"name"`
	Quantity        int    `json:"quantity"`
	LineSubtotal    int64  `json:"line_subtotal"`
	LineSubtotalTax int64  `json:"line_subtotal_tax"`
	LineTotal       int64  `json:"line_total"`
	LineTax         int64  `json:"line_tax"`
}

// ShippingRate is a selectable shipping option.
type ShippingRate struct {
	RateID    string `json:"rate_id"`
	Label     string `json:"label"`
	Price     int64  `json:"price"`
	Tax       int64  `json:"tax"`
	PackageID int    `json:"package_id"`
	Selected  bool   `json:"selected"`
}

// CartError is a problem WooCommerce reports on the cart, usually stock.
type CartError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Cart is a snapshot of the WooCommerce cart. It is never persisted by the
// bridge; WooCommerce owns it.
type Cart struct {
	Currency       string         `json:"currency"`
	Items          []CartItem     `json:"items"`
	Fees           []Fee          `json:"fees,omitempty"`
	ShippingRates  []ShippingRate `json:"shipping_rates,omitempty"`
	ChosenShipping string         `json:"chosen_shipping,omitempty"`
	ShippingLabel  string         `json:"shipping_label,omitempty"`
	ShippingTotal  int64          `json:"shipping_total"`
	ShippingTax    int64          `json:"shipping_tax"`
	Coupons        []Coupon       `json:"coupons,omitempty"`
	Subtotal       int64          `json:"subtotal"`
	SubtotalTax    int64          `json:"subtotal_tax"`
	DiscountTotal  int64          `json:"discount_total"`
	DiscountTax    int64          `json:"discount_tax"`
	StoreCredit    int64          `json:"store_credit,omitempty"`
	Total          int64          `json:"total"`
	TotalTax       int64          `json:"total_tax"`
	NeedsShipping  bool           `json:"needs_shipping"`
	Errors         []CartError    `json:"errors,omitempty"`
}

// ItemCount is the sum of item quantities.
func (c *Cart) ItemCount() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

// IsEmpty reports whether the cart has no items.
func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}

// HasErrors reports whether WooCommerce flagged the cart, e.g. an item
// that is out of stock.
func (c *Cart) HasErrors() bool {
	return len(c.Errors) > 0
}

// TaxRates returns the distinct whole tax percentages of the cart's items.
func (c *Cart) TaxRates() []int64 {
	seen := make(map[int64]bool)
	var rates []int64
	for _, it := range c.Items {
		r := TaxPercent(it.LineTotal, it.LineTax)
		if !seen[r] {
			seen[r] = true
			rates = append(rates, r)
		}
	}
	return rates
}
