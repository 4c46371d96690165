package bridge

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"garan24-bridge/internal/config"
	"garan24-bridge/internal/events"
	"garan24-bridge/internal/garan24"
	"garan24-bridge/internal/model"
	"garan24-bridge/internal/session"
	"garan24-bridge/internal/store"
)

type fixture struct {
	bridge *Bridge
	mock   *garan24.Mock
	store  *store.Memory
	events *events.Recorder
}

func testSettings() *config.GatewaySettings {
	method := config.MethodSettings{
		Enabled:          true,
		TestMode:         true,
		Title:            "Garan24",
		EID:              map[string]string{"SE": "eid-se"},
		Secret:           map[string]string{"SE": "secret-se"},
		PushCompletion:   true,
		PushCancellation: true,
		PushUpdate:       true,
	}
	return &config.GatewaySettings{
		Invoice:     method,
		PartPayment: method,
		Checkout:    config.CheckoutSettings{MethodSettings: method},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		mock:   &garan24.Mock{},
		store:  store.NewMemory(),
		events: &events.Recorder{},
	}
	f.bridge = New(Deps{
		Store:    f.store,
		Claims:   session.NewMemory(),
		Garan24:  &garan24.MockFactory{Mock: f.mock},
		Settings: testSettings(),
		Events:   f.events,
	})
	return f
}

// legacyOrder is a paid SEK invoice order: one item at 200.00 + 25% VAT.
func legacyOrder() *model.Order {
	return &model.Order{
		Status:        model.StatusProcessing,
		Currency:      "SEK",
		PaymentMethod: model.MethodInvoice,
		Billing:       model.Address{FirstName: "Anna", Country: "SE", Email: "anna@example.com"},
		Items: []model.LineItem{
			{ID: 1, ProductID: 10, SKU: "SHIRT", Name: "Shirt", Quantity: 1, Subtotal: 20000, SubtotalTax: 5000, Total: 20000, TotalTax: 5000},
		},
		Total:    25000,
		TotalTax: 5000,
		Meta: map[string]string{
			model.MetaAPI:         model.APILegacy,
			model.MetaReservation: "R1",
		},
	}
}

func restOrder() *model.Order {
	o := legacyOrder()
	o.PaymentMethod = model.MethodCheckout
	o.Meta = map[string]string{
		model.MetaAPI:             model.APIRest,
		model.MetaProviderOrderID: "kco-1",
		model.MetaProviderCountry: "SE",
	}
	return o
}

func (f *fixture) create(t *testing.T, o *model.Order) *model.Order {
	t.Helper()
	if err := f.store.Create(context.Background(), o); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	return o
}

func (f *fixture) get(t *testing.T, id int64) *model.Order {
	t.Helper()
	o, err := f.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	return o
}

func hasNote(o *model.Order, prefix string) bool {
	for _, n := range o.Notes {
		if strings.HasPrefix(n.Content, prefix) {
			return true
		}
	}
	return false
}

func TestSetStatusCompletedActivatesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.create(t, legacyOrder())

	got, err := f.bridge.SetStatus(ctx, o.ID, model.StatusCompleted)
	if err != nil {
		t.Fatalf("SetStatus() error: %v", err)
	}
	if got.Status != model.StatusCompleted {
		t.Errorf("Status = %s, want completed", got.Status)
	}
	if err := f.bridge.Activate(ctx, o.ID); err != nil {
		t.Fatalf("second Activate() error: %v", err)
	}

	if n := f.mock.Calls("Activate"); n != 1 {
		t.Errorf("Activate calls = %d, want 1", n)
	}
	got = f.get(t, o.ID)
	if v := got.MetaValue(model.MetaInvoiceNumber); v != "INV-R1" {
		t.Errorf("invoice number = %q, want INV-R1", v)
	}
	if v := got.MetaValue(model.MetaTransactionID); v != "INV-R1" {
		t.Errorf("transaction id = %q, want INV-R1", v)
	}
	if !hasNote(got, "Garan24 order activated. Invoice number INV-R1 - risk status ok.") {
		t.Errorf("notes = %+v", got.Notes)
	}
	if !hasNote(got, "Order status changed from Processing to Completed.") {
		t.Errorf("status note missing: %+v", got.Notes)
	}
}

func TestActivateConcurrentCallsProviderOnce(t *testing.T) {
	f := newFixture(t)
	o := f.create(t, legacyOrder())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.bridge.Activate(context.Background(), o.ID)
		}()
	}
	wg.Wait()

	if n := f.mock.Calls("Activate"); n != 1 {
		t.Errorf("Activate calls = %d, want 1", n)
	}
}

func TestActivateFailureReleasesGuard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.create(t, legacyOrder())

	f.mock.ActivateFunc = func(context.Context, string) (*garan24.Activation, error) {
		return nil, &garan24.Error{Status: 400, Code: "invalid_reservation", Messages: []string{"unknown reservation"}}
	}
	if err := f.bridge.Activate(ctx, o.ID); err == nil {
		t.Fatal("Activate() should fail")
	}
	got := f.get(t, o.ID)
	if got.HasMeta(model.MetaActivated) {
		t.Error("activation guard not released")
	}
	if !hasNote(got, "Garan24 order activation failed.") {
		t.Errorf("notes = %+v", got.Notes)
	}

	f.mock.ActivateFunc = nil
	if err := f.bridge.Activate(ctx, o.ID); err != nil {
		t.Fatalf("retry Activate() error: %v", err)
	}
	if n := f.mock.Calls("Activate"); n != 2 {
		t.Errorf("Activate calls = %d, want 2", n)
	}
}

func TestActivateRestCapturesOrderAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.create(t, restOrder())

	f.mock.FetchOrderFunc = func(_ context.Context, id string) (*garan24.ManagedOrder, error) {
		return &garan24.ManagedOrder{OrderID: id, Status: garan24.OrderAuthorized, OrderAmount: 25000}, nil
	}
	var captured *garan24.CaptureRequest
	f.mock.CreateCaptureFunc = func(_ context.Context, id string, req *garan24.CaptureRequest) (*garan24.Capture, error) {
		if id != "kco-1" {
			t.Errorf("capture order id = %q, want kco-1", id)
		}
		captured = req
		return &garan24.Capture{CaptureID: "cap-9"}, nil
	}

	if err := f.bridge.Activate(ctx, o.ID); err != nil {
		t.Fatalf("Activate() error: %v", err)
	}
	if captured == nil || captured.CapturedAmount != 25000 {
		t.Fatalf("capture request = %+v, want amount 25000", captured)
	}
	got := f.get(t, o.ID)
	if v := got.MetaValue(model.MetaInvoiceNumber); v != "cap-9" {
		t.Errorf("invoice number = %q, want cap-9", v)
	}
	if !hasNote(got, "Garan24 order captured. Invoice number cap-9.") {
		t.Errorf("notes = %+v", got.Notes)
	}
	if types := f.events.Types(); len(types) != 1 || types[0] != events.TypeOrderActivated {
		t.Errorf("events = %v, want [%s]", types, events.TypeOrderActivated)
	}
}

func TestActivateSkipped(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture, o *model.Order)
	}{
		{"push completion off", func(f *fixture, _ *model.Order) { f.bridge.settings.Invoice.PushCompletion = false }},
		{"already invoiced", func(_ *fixture, o *model.Order) { o.Meta[model.MetaInvoiceNumber] = "INV-0" }},
		{"not a garan24 order", func(_ *fixture, o *model.Order) { o.PaymentMethod = "cod" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			o := legacyOrder()
			tt.setup(f, o)
			f.create(t, o)

			if err := f.bridge.Activate(context.Background(), o.ID); err != nil {
				t.Fatalf("Activate() error: %v", err)
			}
			if n := f.mock.Calls("Activate"); n != 0 {
				t.Errorf("Activate calls = %d, want 0", n)
			}
		})
	}
}

func TestSetStatusCancelledCancelsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := legacyOrder()
	o.Status = model.StatusOnHold
	f.create(t, o)

	if _, err := f.bridge.SetStatus(ctx, o.ID, model.StatusCancelled); err != nil {
		t.Fatalf("SetStatus() error: %v", err)
	}
	if err := f.bridge.Cancel(ctx, o.ID); err != nil {
		t.Fatalf("second Cancel() error: %v", err)
	}
	if n := f.mock.Calls("CancelReservation"); n != 1 {
		t.Errorf("CancelReservation calls = %d, want 1", n)
	}
	if !hasNote(f.get(t, o.ID), "Garan24 order cancellation completed.") {
		t.Error("cancellation note missing")
	}
}

func TestSetStatusRejectsInvalidTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.create(t, legacyOrder())

	_, err := f.bridge.SetStatus(ctx, o.ID, model.StatusPending)
	if !errors.Is(err, model.ErrConflict) {
		t.Errorf("processing -> pending err = %v, want ErrConflict", err)
	}
	_, err = f.bridge.SetStatus(ctx, o.ID, model.StatusIncomplete)
	if !errors.Is(err, model.ErrInvalidRequest) {
		t.Errorf("manual kco-incomplete err = %v, want ErrInvalidRequest", err)
	}
}

func TestRefund(t *testing.T) {
	multiRate := func(o *model.Order) {
		o.Items = append(o.Items, model.LineItem{ID: 2, ProductID: 11, Name: "Book", Quantity: 1, Subtotal: 10000, SubtotalTax: 600, Total: 10000, TotalTax: 600})
		o.Total += 10600
		o.TotalTax += 600
	}

	tests := []struct {
		name       string
		order      func() *model.Order
		amount     int64
		wantErr    bool
		wantCall   string
		wantNote   string
		wantStatus model.Status
	}{
		{
			name:       "legacy full",
			order:      legacyOrder,
			amount:     25000,
			wantCall:   "CreditInvoice",
			wantNote:   "Garan24 order fully refunded.",
			wantStatus: model.StatusRefunded,
		},
		{
			name:       "legacy partial single rate",
			order:      legacyOrder,
			amount:     5000,
			wantCall:   "ReturnAmount",
			wantNote:   "Garan24 order partially refunded. Refund amount: 50.00 SEK.",
			wantStatus: model.StatusCompleted,
		},
		{
			name: "legacy partial mixed rates",
			order: func() *model.Order {
				o := legacyOrder()
				multiRate(o)
				return o
			},
			amount:     5000,
			wantErr:    true,
			wantNote:   "Refund failed. WooCommerce Garan24 partial refund not possible",
			wantStatus: model.StatusCompleted,
		},
		{
			name:       "rest",
			order:      restOrder,
			amount:     10000,
			wantCall:   "Refund",
			wantNote:   "Garan24 order refunded. Refund amount: 100.00 SEK.",
			wantStatus: model.StatusCompleted,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			o := tt.order()
			o.Status = model.StatusCompleted
			o.Meta[model.MetaInvoiceNumber] = "INV-1"
			f.create(t, o)

			err := f.bridge.Refund(context.Background(), o.ID, tt.amount, "damaged")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Refund() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantCall != "" && f.mock.Calls(tt.wantCall) != 1 {
				t.Errorf("%s calls = %d, want 1", tt.wantCall, f.mock.Calls(tt.wantCall))
			}
			got := f.get(t, o.ID)
			if !hasNote(got, tt.wantNote) {
				t.Errorf("notes = %+v, want %q", got.Notes, tt.wantNote)
			}
			if got.Status != tt.wantStatus {
				t.Errorf("Status = %s, want %s", got.Status, tt.wantStatus)
			}
		})
	}
}

func TestRefundReturnAmountVAT(t *testing.T) {
	f := newFixture(t)
	o := legacyOrder()
	o.Status = model.StatusCompleted
	o.Meta[model.MetaInvoiceNumber] = "INV-1"
	f.create(t, o)

	var req *garan24.ReturnAmountRequest
	f.mock.ReturnAmountFunc = func(_ context.Context, r *garan24.ReturnAmountRequest) error {
		req = r
		return nil
	}
	if err := f.bridge.Refund(context.Background(), o.ID, 5000, "goodwill"); err != nil {
		t.Fatalf("Refund() error: %v", err)
	}
	if req.VAT != 25 || req.InvoiceNumber != "INV-1" || req.Amount != 5000 {
		t.Errorf("ReturnAmount request = %+v", req)
	}
	if got := f.get(t, o.ID); got.RefundedTotal != 5000 {
		t.Errorf("RefundedTotal = %d, want 5000", got.RefundedTotal)
	}
}

func TestRefundRequiresInvoiceNumber(t *testing.T) {
	f := newFixture(t)
	o := f.create(t, legacyOrder())

	err := f.bridge.Refund(context.Background(), o.ID, 1000, "")
	if !errors.Is(err, model.ErrInvalidRequest) {
		t.Errorf("Refund() err = %v, want ErrInvalidRequest", err)
	}
	if f.mock.Calls("ReturnAmount")+f.mock.Calls("CreditInvoice") != 0 {
		t.Error("provider called without invoice number")
	}
	if !hasNote(f.get(t, o.ID), "Garan24 order refund failed.") {
		t.Error("failure note missing")
	}
}

func TestRemoveItemUpdatesOnHoldRestOrder(t *testing.T) {
	f := newFixture(t)
	o := restOrder()
	o.Status = model.StatusOnHold
	o.Items = append(o.Items, model.LineItem{ID: 2, ProductID: 11, SKU: "CAP", Name: "Cap", Quantity: 1, Subtotal: 8000, SubtotalTax: 2000, Total: 8000, TotalTax: 2000})
	o.Total += 10000
	o.TotalTax += 2000
	f.create(t, o)

	var update *garan24.AuthorizationUpdate
	f.mock.UpdateAuthorizationFunc = func(_ context.Context, _ string, req *garan24.AuthorizationUpdate) error {
		update = req
		return nil
	}

	got, err := f.bridge.RemoveItem(context.Background(), o.ID, 2)
	if err != nil {
		t.Fatalf("RemoveItem() error: %v", err)
	}
	if update == nil {
		t.Fatal("UpdateAuthorization not called")
	}
	for _, l := range update.OrderLines {
		if l.Reference == "CAP" {
			t.Errorf("removed item still sent: %+v", l)
		}
	}
	if update.OrderAmount != 25000 {
		t.Errorf("OrderAmount = %d, want 25000", update.OrderAmount)
	}
	if len(got.Items) != 1 || got.Total != 25000 {
		t.Errorf("order after removal = %d items, total %d", len(got.Items), got.Total)
	}
	if !hasNote(f.get(t, o.ID), "Garan24 order updated.") {
		t.Error("update note missing")
	}
}

func TestUpdateProviderOrderSkipsUnlessOnHold(t *testing.T) {
	f := newFixture(t)
	o := f.create(t, restOrder())

	if err := f.bridge.UpdateProviderOrder(context.Background(), o.ID, 0); err != nil {
		t.Fatalf("UpdateProviderOrder() error: %v", err)
	}
	if n := f.mock.Calls("UpdateAuthorization"); n != 0 {
		t.Errorf("UpdateAuthorization calls = %d, want 0", n)
	}
}

func TestCheckPending(t *testing.T) {
	now := time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name       string
		status     garan24.InvoiceStatus
		wantStatus model.Status
		wantNote   string
		wantDue    bool
	}{
		{"accepted", garan24.StatusAccepted, model.StatusProcessing, "Garan24 payment completed.", false},
		{"denied", garan24.StatusDenied, model.StatusCancelled, "Garan24 payment denied.", false},
		{"still pending", garan24.StatusPending, model.StatusOnHold, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.bridge.Now = func() time.Time { return now }
			ctx := context.Background()
			o := legacyOrder()
			o.Status = model.StatusOnHold
			f.create(t, o)
			if err := f.bridge.SchedulePendingCheck(ctx, o.ID); err != nil {
				t.Fatalf("SchedulePendingCheck() error: %v", err)
			}

			f.mock.CheckOrderStatusFunc = func(_ context.Context, id string) (garan24.InvoiceStatus, error) {
				if id != "R1" {
					t.Errorf("checked %q, want R1", id)
				}
				return tt.status, nil
			}
			f.bridge.Now = func() time.Time { return now.Add(PendingRecheck) }
			n, err := f.bridge.RunPendingChecks(ctx)
			if err != nil || n != 1 {
				t.Fatalf("RunPendingChecks() = %d, %v; want 1, nil", n, err)
			}

			got := f.get(t, o.ID)
			if got.Status != tt.wantStatus {
				t.Errorf("Status = %s, want %s", got.Status, tt.wantStatus)
			}
			if tt.wantNote != "" && !hasNote(got, tt.wantNote) {
				t.Errorf("notes = %+v, want %q", got.Notes, tt.wantNote)
			}

			ids, _ := f.store.DuePendingChecks(ctx, now.Add(2*PendingRecheck))
			if due := len(ids) == 1; due != tt.wantDue {
				t.Errorf("rescheduled = %v, want %v", due, tt.wantDue)
			}
			ids, _ = f.store.DuePendingChecks(ctx, now.Add(PendingRecheck+time.Hour))
			if len(ids) != 0 {
				t.Errorf("check due again before the recheck interval: %v", ids)
			}
		})
	}
}

func TestPrepareLocalOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := &session.Session{ID: "s1", OrderNote: "Leave at door"}
	cart := &model.Cart{
		Currency: "sek",
		Items:    []model.CartItem{{Key: "k1", ProductID: 10, Name: "Shirt", Quantity: 1, LineSubtotal: 20000, LineSubtotalTax: 5000, LineTotal: 20000, LineTax: 5000}},
		Total:    25000,
		TotalTax: 5000,
	}

	o, err := f.bridge.PrepareLocalOrder(ctx, sess, cart, "", model.APIRest)
	if err != nil {
		t.Fatalf("PrepareLocalOrder() error: %v", err)
	}
	if sess.OngoingOrderID != o.ID {
		t.Errorf("session order = %d, want %d", sess.OngoingOrderID, o.ID)
	}
	if o.Status != model.StatusIncomplete || o.Currency != "SEK" || o.CustomerNote != "Leave at door" {
		t.Errorf("order = %s %s %q", o.Status, o.Currency, o.CustomerNote)
	}
	if v := o.MetaValue(model.MetaIncompleteEmail); v != model.GuestEmail {
		t.Errorf("incomplete email = %q, want guest", v)
	}

	cart.Items[0].Quantity = 2
	cart.Total = 50000
	again, err := f.bridge.PrepareLocalOrder(ctx, sess, cart, "anna@example.com", model.APIRest)
	if err != nil {
		t.Fatalf("second PrepareLocalOrder() error: %v", err)
	}
	if again.ID != o.ID {
		t.Errorf("ongoing order not reused: %d != %d", again.ID, o.ID)
	}
	got := f.get(t, o.ID)
	if got.Total != 50000 || got.MetaValue(model.MetaIncompleteEmail) != "anna@example.com" {
		t.Errorf("order not refreshed: total %d, email %q", got.Total, got.MetaValue(model.MetaIncompleteEmail))
	}

	got.Status = model.StatusProcessing
	f.store.Save(ctx, got)
	fresh, err := f.bridge.PrepareLocalOrder(ctx, sess, cart, "", model.APIRest)
	if err != nil {
		t.Fatalf("PrepareLocalOrder() after payment error: %v", err)
	}
	if fresh.ID == o.ID {
		t.Error("paid order reused for a new checkout")
	}
}

func TestPrepareLocalOrderRejectsBadCarts(t *testing.T) {
	tests := []struct {
		name string
		cart *model.Cart
	}{
		{"empty", &model.Cart{}},
		{"stock error", &model.Cart{
			Items:  []model.CartItem{{Key: "k1", Quantity: 3}},
			Errors: []model.CartError{{Code: "woocommerce_rest_cart_product_no_stock", Message: "Shirt is out of stock"}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.bridge.PrepareLocalOrder(context.Background(), &session.Session{}, tt.cart, "", model.APIRest)
			if !errors.Is(err, model.ErrInvalidRequest) {
				t.Errorf("PrepareLocalOrder() err = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestPurgeIncomplete(t *testing.T) {
	now := time.Date(2024, 6, 15, 3, 0, 0, 0, time.UTC)
	f := newFixture(t)
	f.bridge.Now = func() time.Time { return now }

	incomplete := func(age time.Duration, email string) *model.Order {
		return f.create(t, &model.Order{
			Status:    model.StatusIncomplete,
			CreatedAt: now.Add(-age),
			Meta:      map[string]string{model.MetaIncompleteEmail: email},
		})
	}
	oldGuest := incomplete(25*time.Hour, model.GuestEmail)
	freshGuest := incomplete(time.Hour, model.GuestEmail)
	oldCustomer := incomplete(25*time.Hour, "anna@example.com")
	abandoned := incomplete(15*24*time.Hour, "anna@example.com")
	paid := f.create(t, &model.Order{Status: model.StatusProcessing, CreatedAt: now.Add(-30 * 24 * time.Hour)})

	n, err := f.bridge.PurgeIncomplete(context.Background())
	if err != nil {
		t.Fatalf("PurgeIncomplete() error: %v", err)
	}
	if n != 2 {
		t.Errorf("purged = %d, want 2", n)
	}

	for _, tc := range []struct {
		o    *model.Order
		kept bool
	}{
		{oldGuest, false},
		{freshGuest, true},
		{oldCustomer, true},
		{abandoned, false},
		{paid, true},
	} {
		_, err := f.store.Get(context.Background(), tc.o.ID)
		if kept := err == nil; kept != tc.kept {
			t.Errorf("order %d kept = %v, want %v", tc.o.ID, kept, tc.kept)
		}
	}
	if types := f.events.Types(); len(types) != 2 || types[0] != events.TypeOrderPurged {
		t.Errorf("events = %v", types)
	}
}
