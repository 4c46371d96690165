// Package translator converts a WooCommerce cart snapshot into Garan24 order
// lines (checkout and REST) and KPM articles.
//
// Tax rates are back-calculated from WooCommerce's pre-computed totals. By
// default the ratio is rounded to two decimals before scaling, which keeps
// the amounts identical to what stores already send; Options.ExactRates
// switches to exact basis points.
package translator

import (
	"html"
	"math"
	"regexp"
	"strconv"
	"strings"

	"garan24-bridge/internal/garan24"
	"garan24-bridge/internal/model"
)

// API selects the order line shape.
type API string

const (
	Legacy API = "legacy"
	Rest   API = "rest"
)

// ShippingReference is the reference used for the shipping line.
const ShippingReference = "SHIPPING"

// Options controls a translation.
type Options struct {
	API API
	// SkipKey excludes one cart item, used while that item is being removed.
	SkipKey string
	// ExactRates computes tax and discount rates without the intermediate
	// two-decimal rounding.
	ExactRates bool
	// InvoiceFeeName marks the fee that is flagged as handling on KPM
	// articles.
	InvoiceFeeName string
}

// Translate returns the order lines for a cart. Items, fees, shipping and
// store credit are emitted in that order. A nil cart yields no lines.
func Translate(cart *model.Cart, opts Options) []garan24.OrderLine {
	if cart == nil {
		return nil
	}

	lines := make([]garan24.OrderLine, 0, len(cart.Items)+len(cart.Fees)+2)
	for _, it := range cart.Items {
		if it.Quantity <= 0 || (opts.SkipKey != "" && it.Key == opts.SkipKey) {
			continue
		}
		lines = append(lines, itemLine(it, opts))
	}

	for _, fee := range cart.Fees {
		lines = append(lines, feeLine(fee, opts))
	}

	if cart.ShippingTotal > 0 {
		lines = append(lines, shippingLine(cart, opts))
	}

	if cart.StoreCredit > 0 {
		l := garan24.OrderLine{
			Type:      garan24.LineTypeDiscount,
			Reference: "DISCOUNT",
			Name:      "Discount",
			Quantity:  1,
			UnitPrice: -cart.StoreCredit,
		}
		if opts.API == Rest {
			l.TotalAmount = -cart.StoreCredit
		}
		lines = append(lines, l)
	}

	return lines
}

func itemLine(it model.CartItem, opts Options) garan24.OrderLine {
	unit := unitPrice(it.LineSubtotal+it.LineSubtotalTax, it.Quantity)

	l := garan24.OrderLine{
		Type:      garan24.LineTypePhysical,
		Reference: Reference(it),
		Name:      StripTags(it.Name),
		Quantity:  it.Quantity,
		UnitPrice: unit,
		TaxRate:   taxRate(it.LineSubtotal, it.LineSubtotalTax, opts.ExactRates),
	}

	discounted := it.LineSubtotal > it.LineTotal
	switch opts.API {
	case Rest:
		l.TotalAmount = it.LineTotal + it.LineTax
		l.TotalTaxAmount = it.LineTax
		if discounted {
			l.TotalDiscountAmount = unit*int64(it.Quantity) - l.TotalAmount
		}
	default:
		if discounted {
			l.DiscountRate = discountRate(it.LineSubtotal, it.LineTotal, opts.ExactRates)
		}
	}
	return l
}

func feeLine(fee model.Fee, opts Options) garan24.OrderLine {
	ref := fee.ID
	if ref == "" {
		ref = slug(fee.Name)
	}
	l := garan24.OrderLine{
		Type:      garan24.LineTypeSurcharge,
		Reference: ref,
		Name:      StripTags(fee.Name),
		Quantity:  1,
		UnitPrice: fee.Total + fee.Tax,
		TaxRate:   taxRate(fee.Total, fee.Tax, opts.ExactRates),
	}
	if opts.API == Rest {
		l.TotalAmount = fee.Total + fee.Tax
		l.TotalTaxAmount = fee.Tax
	}
	return l
}

func shippingLine(cart *model.Cart, opts Options) garan24.OrderLine {
	name := cart.ShippingLabel
	if name == "" {
		name = "Shipping"
	}
	l := garan24.OrderLine{
		Type:      garan24.LineTypeShippingFee,
		Reference: ShippingReference,
		Name:      StripTags(name),
		Quantity:  1,
		UnitPrice: cart.ShippingTotal + cart.ShippingTax,
		TaxRate:   taxRate(cart.ShippingTotal, cart.ShippingTax, opts.ExactRates),
	}
	if opts.API == Rest {
		l.TotalAmount = cart.ShippingTotal + cart.ShippingTax
		l.TotalTaxAmount = cart.ShippingTax
	}
	return l
}

// Articles returns the KPM articles for a cart.
func Articles(cart *model.Cart, opts Options) []garan24.Article {
	if cart == nil {
		return nil
	}

	arts := make([]garan24.Article, 0, len(cart.Items)+len(cart.Fees)+2)
	for _, it := range cart.Items {
		if it.Quantity <= 0 || (opts.SkipKey != "" && it.Key == opts.SkipKey) {
			continue
		}
		a := garan24.Article{
			ArtNo:    Reference(it),
			Title:    StripTags(it.Name),
			Quantity: it.Quantity,
			Price:    unitPrice(it.LineSubtotal+it.LineSubtotalTax, it.Quantity),
			VAT:      vat(it.LineSubtotal, it.LineSubtotalTax, opts.ExactRates),
			Flags:    garan24.FlagIncVAT,
		}
		if it.LineSubtotal > it.LineTotal {
			a.Discount = float64(discountRate(it.LineSubtotal, it.LineTotal, opts.ExactRates)) / 100
		}
		arts = append(arts, a)
	}

	for _, fee := range cart.Fees {
		flags := garan24.FlagIncVAT
		if opts.InvoiceFeeName != "" && fee.Name == opts.InvoiceFeeName {
			flags |= garan24.FlagIsHandling
		}
		ref := fee.ID
		if ref == "" {
			ref = slug(fee.Name)
		}
		arts = append(arts, garan24.Article{
			ArtNo:    ref,
			Title:    StripTags(fee.Name),
			Quantity: 1,
			Price:    fee.Total + fee.Tax,
			VAT:      vat(fee.Total, fee.Tax, opts.ExactRates),
			Flags:    flags,
		})
	}

	if cart.ShippingTotal > 0 {
		title := cart.ShippingLabel
		if title == "" {
			title = "Shipping"
		}
		arts = append(arts, garan24.Article{
			ArtNo:    ShippingReference,
			Title:    StripTags(title),
			Quantity: 1,
			Price:    cart.ShippingTotal + cart.ShippingTax,
			VAT:      vat(cart.ShippingTotal, cart.ShippingTax, opts.ExactRates),
			Flags:    garan24.FlagIncVAT | garan24.FlagIsShipment,
		})
	}

	if cart.StoreCredit > 0 {
		arts = append(arts, garan24.Article{
			ArtNo:    "DISCOUNT",
			Title:    "Discount",
			Quantity: 1,
			Price:    -cart.StoreCredit,
			Flags:    garan24.FlagIncVAT,
		})
	}

	return arts
}

// Amounts sums REST order lines into order_amount and order_tax_amount.
// A sales_tax line carries its tax in total_amount.
func Amounts(lines []garan24.OrderLine) (amount, tax int64) {
	for _, l := range lines {
		amount += l.TotalAmount
		if l.Type == garan24.LineTypeSalesTax {
			tax += l.TotalAmount
		} else {
			tax += l.TotalTaxAmount
		}
	}
	return amount, tax
}

// Reference picks the line reference: SKU, else variation id, else
// product id.
func Reference(it model.CartItem) string {
	switch {
	case it.SKU != "":
		return it.SKU
	case it.VariationID > 0:
		return strconv.Itoa(it.VariationID)
	default:
		return strconv.Itoa(it.ProductID)
	}
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// StripTags removes HTML markup and decodes entities in a product name.
func StripTags(s string) string {
	return strings.TrimSpace(html.UnescapeString(tagPattern.ReplaceAllString(s, "")))
}

// taxRate returns the line tax rate in basis points.
func taxRate(net, tax int64, exact bool) int64 {
	if exact {
		return model.TaxBasisPoints(net, tax)
	}
	return model.TaxPercent(net, tax) * 100
}

// vat returns the KPM VAT percentage.
func vat(net, tax int64, exact bool) float64 {
	return float64(taxRate(net, tax, exact)) / 100
}

// discountRate returns the share of subtotal removed by coupons, in basis
// points: round(1 - total/subtotal, 2) * 10000.
func discountRate(subtotal, total int64, exact bool) int64 {
	if subtotal <= 0 || total >= subtotal {
		return 0
	}
	ratio := 1 - float64(total)/float64(subtotal)
	if exact {
		return int64(math.Round(ratio * 10000))
	}
	return int64(math.Round(math.Round(ratio*100) / 100 * 10000))
}

// unitPrice divides a line amount by its quantity, rounding half away from
// zero.
func unitPrice(amount int64, qty int) int64 {
	if qty <= 0 {
		return 0
	}
	return int64(math.Round(float64(amount) / float64(qty)))
}

func slug(name string) string {
	s := strings.ToLower(StripTags(name))
	var b strings.Builder
	dash := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
		} else if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
