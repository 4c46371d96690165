package woocommerce

import (
	"encoding/json"
	"testing"

	"garan24-bridge/internal/model"
)

func TestBatchBuilder_UpdateItemQuantity(t *testing.T) {
	req := NewBatch().UpdateItemQuantity("a1", 2).Build()
	if req == nil || len(req.Requests) != 1 {
		t.Fatalf("expected one operation, got %+v", req)
	}

	op := req.Requests[0]
	if op.Path != "/wc/store/v1/cart/update-item" {
		t.Errorf("path = %s, want /wc/store/v1/cart/update-item", op.Path)
	}
	if op.Method != "POST" {
		t.Errorf("method = %s, want POST", op.Method)
	}

	var body map[string]any
	if err := json.Unmarshal(op.Body, &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body["key"] != "a1" || body["quantity"] != float64(2) {
		t.Errorf("body = %v, want key a1 quantity 2", body)
	}
}

func TestBatchBuilder_SkipsEmptyInput(t *testing.T) {
	tests := []struct {
		name  string
		build func(*BatchBuilder) *BatchBuilder
	}{
		{"apply empty coupon", func(b *BatchBuilder) *BatchBuilder { return b.ApplyCoupon("") }},
		{"remove empty coupon", func(b *BatchBuilder) *BatchBuilder { return b.RemoveCoupon("") }},
		{"empty rate", func(b *BatchBuilder) *BatchBuilder { return b.SelectShippingRate("", 0) }},
		{"remove without key", func(b *BatchBuilder) *BatchBuilder { return b.RemoveItem("") }},
		{"quantity without key", func(b *BatchBuilder) *BatchBuilder { return b.UpdateItemQuantity("", 3) }},
		{"nil addresses", func(b *BatchBuilder) *BatchBuilder { return b.UpdateCustomer(nil, nil) }},
		{"zero addresses", func(b *BatchBuilder) *BatchBuilder { return b.UpdateCustomer(&model.Address{}, &model.Address{}) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.build(NewBatch()).Build() != nil {
				t.Error("Build() should return nil for an empty batch")
			}
		})
	}
}

func TestBatchBuilder_UpdateCustomer(t *testing.T) {
	billing := &model.Address{
		FirstName: "Anna",
		LastName:  "Svensson",
		Address1:  "Storgatan 1",
		City:      "Stockholm",
		Postcode:  "11122",
		Country:   "se",
		Email:     "anna@example.com",
	}

	req := NewBatch().UpdateCustomer(billing, nil).Build()
	if req == nil || len(req.Requests) != 1 {
		t.Fatal("expected one operation")
	}

	op := req.Requests[0]
	if op.Path != "/wc/store/v1/cart/update-customer" {
		t.Errorf("path = %s, want /wc/store/v1/cart/update-customer", op.Path)
	}

	var body map[string]WooAddress
	if err := json.Unmarshal(op.Body, &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	got, ok := body["billing_address"]
	if !ok {
		t.Fatal("billing_address missing")
	}
	if got.Country != "SE" {
		t.Errorf("country = %s, want SE", got.Country)
	}
	if got.Email != "anna@example.com" {
		t.Errorf("email = %s, want anna@example.com", got.Email)
	}
	if _, ok := body["shipping_address"]; ok {
		t.Error("shipping_address should be omitted")
	}
}

func TestBatchBuilder_SelectShippingRate(t *testing.T) {
	req := NewBatch().SelectShippingRate("flat_rate:1", 2).Build()

	var body map[string]any
	json.Unmarshal(req.Requests[0].Body, &body)
	if body["rate_id"] != "flat_rate:1" {
		t.Errorf("rate_id = %v, want flat_rate:1", body["rate_id"])
	}
	if body["package_id"] != float64(2) {
		t.Errorf("package_id = %v, want 2", body["package_id"])
	}
}

func TestBatchBuilder_FluentChaining(t *testing.T) {
	req := NewBatch().
		UpdateItemQuantity("a1", 3).
		RemoveItem("b2").
		ApplyCoupon("SAVE10").
		RemoveCoupon("OLD").
		Build()

	wantPaths := []string{
		"/wc/store/v1/cart/update-item",
		"/wc/store/v1/cart/remove-item",
		"/wc/store/v1/cart/apply-coupon",
		"/wc/store/v1/cart/remove-coupon",
	}
	if len(req.Requests) != len(wantPaths) {
		t.Fatalf("requests = %d, want %d", len(req.Requests), len(wantPaths))
	}
	for i, want := range wantPaths {
		if req.Requests[i].Path != want {
			t.Errorf("op %d path = %s, want %s", i, req.Requests[i].Path, want)
		}
	}
}

func TestBuildEmptyCartBatch(t *testing.T) {
	cart := &WooCartResponse{Items: []WooCartItem{{Key: "a1"}, {Key: "b2"}}}
	req := BuildEmptyCartBatch(cart)
	if req == nil || len(req.Requests) != 2 {
		t.Fatalf("expected two remove operations, got %+v", req)
	}

	if BuildEmptyCartBatch(&WooCartResponse{}) != nil {
		t.Error("empty cart should build no batch")
	}
	if BuildEmptyCartBatch(nil) != nil {
		t.Error("nil cart should build no batch")
	}
}

func TestInjectHeaders(t *testing.T) {
	req := NewBatch().ApplyCoupon("A").ApplyCoupon("B").Build()
	req.InjectHeaders(map[string]string{"Nonce": "n1", "Cart-Token": "tok"})

	for i, op := range req.Requests {
		if op.Headers["Nonce"] != "n1" || op.Headers["Cart-Token"] != "tok" {
			t.Errorf("op %d headers = %v", i, op.Headers)
		}
	}
}
