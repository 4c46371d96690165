package woocommerce

import (
	"encoding/json"

	"garan24-bridge/internal/model"
)

// BatchBuilder collects cart operations for one POST /wc/store/v1/batch
// call. Operations execute in order.
//
//	{
//	  "requests": [
//	    {"path": "/wc/store/v1/cart/update-item", "method": "POST", "body": {"key": "a1", "quantity": 2}},
//	    {"path": "/wc/store/v1/cart/apply-coupon", "method": "POST", "body": {"code": "SAVE10"}}
//	  ]
//	}
type BatchBuilder struct {
	operations []WooBatchOperation
}

// NewBatch creates a new batch builder.
func NewBatch() *BatchBuilder {
	return &BatchBuilder{
		operations: make([]WooBatchOperation, 0),
	}
}

func (b *BatchBuilder) add(path string, body any) *BatchBuilder {
	bodyJSON, _ := json.Marshal(body)
	b.operations = append(b.operations, WooBatchOperation{
		Path:   "/wc/store/v1/cart/" + path,
		Method: "POST",
		Body:   bodyJSON,
	})
	return b
}

// UpdateCustomer sets the billing and/or shipping address. Nil or empty
// addresses are left untouched.
func (b *BatchBuilder) UpdateCustomer(billing, shipping *model.Address) *BatchBuilder {
	body := make(map[string]*WooAddress)
	if billing != nil && !billing.IsZero() {
		body["billing_address"] = AddressToWoo(billing)
	}
	if shipping != nil && !shipping.IsZero() {
		body["shipping_address"] = AddressToWoo(shipping)
	}
	if len(body) == 0 {
		return b
	}
	return b.add("update-customer", body)
}

// ApplyCoupon applies a discount code.
func (b *BatchBuilder) ApplyCoupon(code string) *BatchBuilder {
	if code == "" {
		return b
	}
	return b.add("apply-coupon", map[string]string{"code": code})
}

// RemoveCoupon removes a discount code.
func (b *BatchBuilder) RemoveCoupon(code string) *BatchBuilder {
	if code == "" {
		return b
	}
	return b.add("remove-coupon", map[string]string{"code": code})
}

// SelectShippingRate selects a shipping method for a package.
func (b *BatchBuilder) SelectShippingRate(rateID string, packageID int) *BatchBuilder {
	if rateID == "" {
		return b
	}
	return b.add("select-shipping-rate", map[string]any{
		"rate_id":    rateID,
		"package_id": packageID,
	})
}

// RemoveItem removes an item by its cart item key.
func (b *BatchBuilder) RemoveItem(cartItemKey string) *BatchBuilder {
	if cartItemKey == "" {
		return b
	}
	return b.add("remove-item", map[string]string{"key": cartItemKey})
}

// UpdateItemQuantity updates the quantity of an existing cart item.
// WooCommerce removes the item when quantity is zero.
func (b *BatchBuilder) UpdateItemQuantity(cartItemKey string, quantity int) *BatchBuilder {
	if cartItemKey == "" {
		return b
	}
	return b.add("update-item", map[string]any{
		"key":      cartItemKey,
		"quantity": quantity,
	})
}

// Build returns the batch request ready for execution.
// Returns nil if no operations were added.
func (b *BatchBuilder) Build() *WooBatchRequest {
	if len(b.operations) == 0 {
		return nil
	}
	return &WooBatchRequest{
		Requests: b.operations,
	}
}

// BuildEmptyCartBatch removes every item of the cart.
func BuildEmptyCartBatch(cart *WooCartResponse) *WooBatchRequest {
	b := NewBatch()
	if cart != nil {
		for _, it := range cart.Items {
			b.RemoveItem(it.Key)
		}
	}
	return b.Build()
}

// InjectHeaders adds the given headers to all operations in the batch.
// The batch endpoint does not propagate the parent request's Cart-Token
// and Nonce to sub-operations.
func (b *WooBatchRequest) InjectHeaders(headers map[string]string) {
	for i := range b.Requests {
		if b.Requests[i].Headers == nil {
			b.Requests[i].Headers = make(map[string]string)
		}
		for k, v := range headers {
			b.Requests[i].Headers[k] = v
		}
	}
}
