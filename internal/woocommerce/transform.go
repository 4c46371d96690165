package woocommerce

import (
	"strings"

	"garan24-bridge/internal/model"
)

// smartCoupon is the discount type of store credit coupons.
const smartCoupon = "smart_coupon"

// CartFromWoo converts a Store API cart into the bridge's cart snapshot.
// The Store API returns every amount in minor units.
func CartFromWoo(wc *WooCartResponse) *model.Cart {
	if wc == nil {
		return &model.Cart{}
	}

	cart := &model.Cart{
		Currency:      strings.ToUpper(wc.Totals.CurrencyCode),
		Items:         cartItems(wc.Items),
		ShippingTotal: model.ParseMinorUnits(wc.Totals.TotalShipping),
		ShippingTax:   model.ParseMinorUnits(wc.Totals.TotalShippingTax),
		Subtotal:      model.ParseMinorUnits(wc.Totals.TotalItems),
		SubtotalTax:   model.ParseMinorUnits(wc.Totals.TotalItemsTax),
		DiscountTotal: model.ParseMinorUnits(wc.Totals.TotalDiscount),
		DiscountTax:   model.ParseMinorUnits(wc.Totals.TotalDiscountTax),
		Total:         model.ParseMinorUnits(wc.Totals.TotalPrice),
		TotalTax:      model.ParseMinorUnits(wc.Totals.TotalTax),
		NeedsShipping: wc.NeedsShipping,
	}

	for _, f := range wc.Fees {
		cart.Fees = append(cart.Fees, model.Fee{
			ID:    f.ID,
			Name:  f.Name,
			Total: model.ParseMinorUnits(f.Totals.Total),
			Tax:   model.ParseMinorUnits(f.Totals.TotalTax),
		})
	}

	for _, c := range wc.Coupons {
		discount := model.ParseMinorUnits(c.Totals.TotalDiscount)
		tax := model.ParseMinorUnits(c.Totals.TotalDiscountTax)
		if c.DiscountType == smartCoupon {
			cart.StoreCredit += discount + tax
			continue
		}
		cart.Coupons = append(cart.Coupons, model.Coupon{
			Code:        c.Code,
			Discount:    discount,
			DiscountTax: tax,
		})
	}

	for _, pkg := range wc.ShippingRates {
		for _, rate := range pkg.ShippingRates {
			r := model.ShippingRate{
				RateID:    rate.RateID,
				Label:     rate.Name,
				Price:     model.ParseMinorUnits(rate.Price),
				Tax:       model.ParseMinorUnits(rate.Taxes),
				PackageID: pkg.PackageID,
				Selected:  rate.Selected,
			}
			cart.ShippingRates = append(cart.ShippingRates, r)
			if r.Selected && cart.ChosenShipping == "" {
				cart.ChosenShipping = r.RateID
				cart.ShippingLabel = r.Label
			}
		}
	}

	for _, e := range wc.Errors {
		cart.Errors = append(cart.Errors, model.CartError{Code: e.Code, Message: e.Message})
	}

	return cart
}

func cartItems(items []WooCartItem) []model.CartItem {
	result := make([]model.CartItem, 0, len(items))
	for _, item := range items {
		ci := model.CartItem{
			Key:             item.Key,
			ProductID:       item.ID,
			SKU:             item.SKU,
			Name:            item.Name,
			Quantity:        item.Quantity,
			LineSubtotal:    model.ParseMinorUnits(item.Totals.LineSubtotal),
			LineSubtotalTax: model.ParseMinorUnits(item.Totals.LineSubtotalTax),
			LineTotal:       model.ParseMinorUnits(item.Totals.LineTotal),
			LineTax:         model.ParseMinorUnits(item.Totals.LineTotalTax),
		}
		if item.Type == "variation" {
			ci.VariationID = item.ID
		}
		result = append(result, ci)
	}
	return result
}

// AddressToWoo converts a local address to the Store API shape.
func AddressToWoo(addr *model.Address) *WooAddress {
	if addr == nil {
		return nil
	}
	return &WooAddress{
		FirstName: addr.FirstName,
		LastName:  addr.LastName,
		Company:   addr.Company,
		Address1:  addr.Address1,
		Address2:  addr.Address2,
		City:      addr.City,
		State:     addr.State,
		Postcode:  addr.Postcode,
		Country:   strings.ToUpper(addr.Country),
		Email:     addr.Email,
		Phone:     addr.Phone,
	}
}

// AddressFromWoo converts a Store API address to a local address.
func AddressFromWoo(addr *WooAddress) model.Address {
	if addr == nil {
		return model.Address{}
	}
	return model.Address{
		FirstName: addr.FirstName,
		LastName:  addr.LastName,
		Company:   addr.Company,
		Address1:  addr.Address1,
		Address2:  addr.Address2,
		City:      addr.City,
		State:     addr.State,
		Postcode:  addr.Postcode,
		Country:   addr.Country,
		Email:     addr.Email,
		Phone:     addr.Phone,
	}
}

// findRate returns the package id that offers rateID.
func findRate(wc *WooCartResponse, rateID string) (int, bool) {
	if wc == nil {
		return 0, false
	}
	for _, pkg := range wc.ShippingRates {
		for _, rate := range pkg.ShippingRates {
			if rate.RateID == rateID {
				return pkg.PackageID, true
			}
		}
	}
	return 0, false
}
