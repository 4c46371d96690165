package bridge

import (
	"context"
	"strconv"
	"testing"

	"garan24-bridge/internal/garan24"
	"garan24-bridge/internal/model"
)

func incompleteOrder() *model.Order {
	return &model.Order{
		Status:   model.StatusIncomplete,
		Currency: "SEK",
		Items: []model.LineItem{
			{ID: 1, ProductID: 10, Name: "Shirt", Quantity: 1, Subtotal: 20000, SubtotalTax: 5000, Total: 20000, TotalTax: 5000},
		},
		Total:    25000,
		TotalTax: 5000,
		Meta:     map[string]string{model.MetaIncompleteEmail: model.GuestEmail},
	}
}

var pushedBilling = &garan24.Address{
	GivenName:     "Anna",
	FamilyName:    "Andersson",
	Email:         "anna@example.com",
	StreetAddress: "Storgatan 1",
	PostalCode:    "11122",
	City:          "Stockholm",
	Country:       "se",
}

func TestHandlePushRest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.create(t, incompleteOrder())

	f.mock.FetchOrderFunc = func(_ context.Context, id string) (*garan24.ManagedOrder, error) {
		return &garan24.ManagedOrder{
			OrderID:          id,
			Status:           garan24.OrderAuthorized,
			Garan24Reference: "REF-1",
			PurchaseCurrency: "sek",
			Locale:           "sv-se",
			OrderAmount:      25000,
			BillingAddress:   pushedBilling,
		}, nil
	}
	var refs garan24.MerchantReferences
	f.mock.UpdateMerchantReferencesFunc = func(_ context.Context, _ string, r garan24.MerchantReferences) error {
		refs = r
		return nil
	}

	push := Push{SID: strconv.FormatInt(o.ID, 10), Country: "se", OrderID: "kco-7", API: "rest"}
	if err := f.bridge.HandlePush(ctx, push); err != nil {
		t.Fatalf("HandlePush() error: %v", err)
	}
	if err := f.bridge.HandlePush(ctx, push); err != nil {
		t.Fatalf("duplicate HandlePush() error: %v", err)
	}

	if n := f.mock.Calls("FetchOrder"); n != 1 {
		t.Errorf("FetchOrder calls = %d, want 1", n)
	}
	if n := f.mock.Calls("Acknowledge"); n != 1 {
		t.Errorf("Acknowledge calls = %d, want 1", n)
	}
	if refs.MerchantReference1 != push.SID {
		t.Errorf("merchant_reference1 = %q, want %q", refs.MerchantReference1, push.SID)
	}

	got := f.get(t, o.ID)
	if got.Status != model.StatusProcessing || got.PaidAt == nil {
		t.Errorf("Status = %s, PaidAt = %v; want processing and paid", got.Status, got.PaidAt)
	}
	for key, want := range map[string]string{
		model.MetaProviderOrderID: "kco-7",
		model.MetaTransactionID:   "REF-1",
		model.MetaAPI:             model.APIRest,
		model.MetaLocale:          "sv-se",
		model.MetaIncompleteEmail: "",
	} {
		if v := got.MetaValue(key); v != want {
			t.Errorf("meta %s = %q, want %q", key, v, want)
		}
	}
	if got.Billing.Address1 != "Storgatan 1" || got.CustomerEmail != "anna@example.com" {
		t.Errorf("billing = %+v", got.Billing)
	}
	if got.PaymentMethod != model.MethodCheckout {
		t.Errorf("PaymentMethod = %q", got.PaymentMethod)
	}
	if !hasNote(got, "Garan24 order ID: kco-7.") {
		t.Errorf("notes = %+v", got.Notes)
	}
}

func TestHandlePushLegacy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.create(t, incompleteOrder())

	f.mock.FetchCheckoutFunc = func(_ context.Context, id string) (*garan24.CheckoutOrder, error) {
		return &garan24.CheckoutOrder{
			ID:               id,
			Status:           garan24.CheckoutComplete,
			Reservation:      "RES-1",
			PurchaseCurrency: "SEK",
			BillingAddress:   pushedBilling,
		}, nil
	}
	var update *garan24.CheckoutOrder
	f.mock.UpdateCheckoutFunc = func(_ context.Context, _ string, order *garan24.CheckoutOrder) (*garan24.CheckoutOrder, error) {
		update = order
		return order, nil
	}

	push := Push{SID: strconv.FormatInt(o.ID, 10), Country: "SE", OrderID: "co-1"}
	if err := f.bridge.HandlePush(ctx, push); err != nil {
		t.Fatalf("HandlePush() error: %v", err)
	}

	if update == nil || update.Status != garan24.CheckoutCreated {
		t.Fatalf("checkout update = %+v, want status created", update)
	}
	if update.MerchantReference == nil || update.MerchantReference.OrderID1 != push.SID {
		t.Errorf("merchant reference = %+v", update.MerchantReference)
	}
	got := f.get(t, o.ID)
	if got.Status != model.StatusProcessing {
		t.Errorf("Status = %s, want processing", got.Status)
	}
	if v := got.MetaValue(model.MetaReservation); v != "RES-1" {
		t.Errorf("reservation = %q, want RES-1", v)
	}
	if v := got.MetaValue(model.MetaAPI); v != model.APILegacy {
		t.Errorf("api = %q, want %q", v, model.APILegacy)
	}
}

func TestHandlePushIgnoresUnfinishedCheckout(t *testing.T) {
	f := newFixture(t)
	o := f.create(t, incompleteOrder())

	f.mock.FetchCheckoutFunc = func(_ context.Context, id string) (*garan24.CheckoutOrder, error) {
		return &garan24.CheckoutOrder{ID: id, Status: garan24.CheckoutIncomplete}, nil
	}
	push := Push{SID: strconv.FormatInt(o.ID, 10), Country: "SE", OrderID: "co-2"}
	if err := f.bridge.HandlePush(context.Background(), push); err != nil {
		t.Fatalf("HandlePush() error: %v", err)
	}
	if got := f.get(t, o.ID); got.Status != model.StatusIncomplete {
		t.Errorf("Status = %s, want unchanged", got.Status)
	}
	if n := f.mock.Calls("UpdateCheckout"); n != 0 {
		t.Errorf("UpdateCheckout calls = %d, want 0", n)
	}
}

func TestHandlePushCreatesMissingOrder(t *testing.T) {
	f := newFixture(t)

	f.mock.FetchOrderFunc = func(_ context.Context, id string) (*garan24.ManagedOrder, error) {
		return &garan24.ManagedOrder{
			OrderID:          id,
			Status:           garan24.OrderAuthorized,
			PurchaseCurrency: "sek",
			OrderAmount:      25000,
			OrderLines: []garan24.OrderLine{
				{Type: garan24.LineTypePhysical, Reference: "SHIRT", Name: "Shirt", Quantity: 1, UnitPrice: 25000, TaxRate: 2500, TotalAmount: 25000, TotalTaxAmount: 5000},
			},
		}, nil
	}
	if err := f.bridge.HandlePush(context.Background(), Push{SID: "999", Country: "SE", OrderID: "kco-9", API: "rest"}); err != nil {
		t.Fatalf("HandlePush() error: %v", err)
	}

	got := f.get(t, 1)
	if got.MetaValue(model.MetaProviderOrderID) != "kco-9" || got.Total != 25000 {
		t.Errorf("created order = total %d, meta %v", got.Total, got.Meta)
	}
	if !hasNote(got, "Order created from Garan24 push notification.") {
		t.Errorf("notes = %+v", got.Notes)
	}
}

func TestHandlePushRequiresOrderID(t *testing.T) {
	f := newFixture(t)
	if err := f.bridge.HandlePush(context.Background(), Push{SID: "1"}); err == nil {
		t.Error("HandlePush() without order id should fail")
	}
}
