package model

import (
	"strconv"
	"strings"
	"time"
)

// Address is a billing or shipping address on a local order.
type Address struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company,omitempty"`
	Address1  string `json:"address_1"`
	Address2  string `json:"address_2,omitempty"`
	City      string `json:"city"`
	State     string `json:"state,omitempty"`
	Postcode  string `json:"postcode"`
	Country   string `json:"country"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// IsZero reports whether no address field is set.
func (a Address) IsZero() bool {
	return a == Address{}
}

// LineItem is a product line. Amounts are minor units; Subtotal is before
// coupon discounts, Total after.
type LineItem struct {
	ID          int64  `json:"id"`
	CartKey     string `json:"cart_key,omitempty"`
	ProductID   int    `json:"product_id"`
	VariationID int    `json:"variation_id,omitempty"`
	SKU         string `json:"sku,omitempty"`
	Name        string `json:"name"`
	Quantity    int    `json:"quantity"`
	Subtotal    int64  `json:"subtotal"`
	SubtotalTax int64  `json:"subtotal_tax"`
	Total       int64  `json:"total"`
	TotalTax    int64  `json:"total_tax"`
}

// Fee is an extra charge such as the invoice fee.
type Fee struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Total int64  `json:"total"`
	Tax   int64  `json:"tax"`
}

// ShippingLine is the chosen shipping method on an order.
type ShippingLine struct {
	MethodID string `json:"method_id"`
	Label    string `json:"label"`
	Total    int64  `json:"total"`
	Tax      int64  `json:"tax"`
}

// Coupon is an applied discount code.
type Coupon struct {
	Code        string `json:"code"`
	Discount    int64  `json:"discount"`
	DiscountTax int64  `json:"discount_tax"`
}

// Note is an order note written by the bridge.
type Note struct {
	ID        int64     `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Order is the local order. It mirrors the provider order through the meta
// keys in meta.go.
type Order struct {
	ID                 int64             `json:"id"`
	Status             Status            `json:"status"`
	Currency           string            `json:"currency"`
	PaymentMethod      string            `json:"payment_method"`
	PaymentMethodTitle string            `json:"payment_method_title,omitempty"`
	CustomerID         int               `json:"customer_id,omitempty"`
	CustomerEmail      string            `json:"customer_email,omitempty"`
	CustomerNote       string            `json:"customer_note,omitempty"`
	Billing            Address           `json:"billing"`
	Shipping           Address           `json:"shipping"`
	Items              []LineItem        `json:"items"`
	Fees               []Fee             `json:"fees,omitempty"`
	ShippingLines      []ShippingLine    `json:"shipping_lines,omitempty"`
	Coupons            []Coupon          `json:"coupons,omitempty"`
	Total              int64             `json:"total"`
	TotalTax           int64             `json:"total_tax"`
	ShippingTotal      int64             `json:"shipping_total"`
	ShippingTax        int64             `json:"shipping_tax"`
	DiscountTotal      int64             `json:"discount_total"`
	DiscountTax        int64             `json:"discount_tax"`
	StoreCredit        int64             `json:"store_credit,omitempty"`
	RefundedTotal      int64             `json:"refunded_total"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
	PaidAt             *time.Time        `json:"paid_at,omitempty"`
	Meta               map[string]string `json:"meta,omitempty"`
	Notes              []Note            `json:"notes,omitempty"`
}

// MetaValue returns the meta value for key, or "".
func (o *Order) MetaValue(key string) string {
	if o.Meta == nil {
		return ""
	}
	return o.Meta[key]
}

// HasMeta reports whether key is set to a non-empty value.
func (o *Order) HasMeta(key string) bool {
	return o.MetaValue(key) != ""
}

// CartTax is the order's tax excluding shipping tax.
func (o *Order) CartTax() int64 {
	return o.TotalTax - o.ShippingTax
}

// ShippingAddress returns the shipping address, falling back to billing
// when no shipping address was captured.
func (o *Order) ShippingAddress() Address {
	if o.Shipping.Address1 == "" && o.Shipping.Postcode == "" {
		return o.Billing
	}
	return o.Shipping
}

// Cart rebuilds a cart snapshot from the order's lines so the translator
// can run against orders and carts alike.
func (o *Order) Cart() *Cart {
	c := &Cart{
		Currency:      o.Currency,
		Items:         make([]CartItem, 0, len(o.Items)),
		Fees:          o.Fees,
		ShippingTotal: o.ShippingTotal,
		ShippingTax:   o.ShippingTax,
		Coupons:       o.Coupons,
		DiscountTotal: o.DiscountTotal,
		DiscountTax:   o.DiscountTax,
		StoreCredit:   o.StoreCredit,
		Total:         o.Total,
		TotalTax:      o.TotalTax,
	}
	for _, it := range o.Items {
		key := it.CartKey
		if key == "" {
			key = strconv.FormatInt(it.ID, 10)
		}
		c.Items = append(c.Items, CartItem{
			Key:             key,
			ProductID:       it.ProductID,
			VariationID:     it.VariationID,
			SKU:             it.SKU,
			Name:            it.Name,
			Quantity:        it.Quantity,
			LineSubtotal:    it.Subtotal,
			LineSubtotalTax: it.SubtotalTax,
			LineTotal:       it.Total,
			LineTax:         it.TotalTax,
		})
		c.Subtotal += it.Subtotal
		c.SubtotalTax += it.SubtotalTax
	}
	if len(o.ShippingLines) > 0 {
		c.ShippingLabel = o.ShippingLines[0].Label
		c.ChosenShipping = o.ShippingLines[0].MethodID
	}
	return c
}

// SetFromCart replaces the order's lines and totals with the cart's.
func (o *Order) SetFromCart(c *Cart) {
	o.Items = make([]LineItem, 0, len(c.Items))
	for i, it := range c.Items {
		o.Items = append(o.Items, LineItem{
			ID:          int64(i + 1),
			CartKey:     it.Key,
			ProductID:   it.ProductID,
			VariationID: it.VariationID,
			SKU:         it.SKU,
			Name:        it.Name,
			Quantity:    it.Quantity,
			Subtotal:    it.LineSubtotal,
			SubtotalTax: it.LineSubtotalTax,
			Total:       it.LineTotal,
			TotalTax:    it.LineTax,
		})
	}
	o.Fees = append([]Fee(nil), c.Fees...)
	o.Coupons = append([]Coupon(nil), c.Coupons...)
	o.ShippingLines = nil
	if c.ShippingTotal > 0 || c.ChosenShipping != "" {
		o.ShippingLines = []ShippingLine{{
			MethodID: c.ChosenShipping,
			Label:    c.ShippingLabel,
			Total:    c.ShippingTotal,
			Tax:      c.ShippingTax,
		}}
	}
	if c.Currency != "" {
		o.Currency = strings.ToUpper(c.Currency)
	}
	o.ShippingTotal = c.ShippingTotal
	o.ShippingTax = c.ShippingTax
	o.DiscountTotal = c.DiscountTotal
	o.DiscountTax = c.DiscountTax
	o.StoreCredit = c.StoreCredit
	o.Total = c.Total
	o.TotalTax = c.TotalTax
}

// RemoveItem drops the line with the given id and takes its amounts off the
// order totals. Reports whether a line was removed.
func (o *Order) RemoveItem(id int64) bool {
	for i, it := range o.Items {
		if it.ID != id {
			continue
		}
		o.Items = append(o.Items[:i], o.Items[i+1:]...)
		o.Total -= it.Total + it.TotalTax
		o.TotalTax -= it.TotalTax
		return true
	}
	return false
}
