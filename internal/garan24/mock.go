package garan24

import (
	"context"
	"sync"

	"garan24-bridge/internal/model"
)

// Mock implements LegacyAPI and RestAPI for testing.
// Each method can be configured via function fields; Calls counts every
// invocation by method name.
type Mock struct {
	CreateCheckoutFunc func(ctx context.Context, order *CheckoutOrder) (*CheckoutOrder, error)
	FetchCheckoutFunc  func(ctx context.Context, id string) (*CheckoutOrder, error)
	UpdateCheckoutFunc func(ctx context.Context, id string, order *CheckoutOrder) (*CheckoutOrder, error)

	ReserveAmountFunc     func(ctx context.Context, req *ReserveRequest) (*Reservation, error)
	ActivateFunc          func(ctx context.Context, reservation string) (*Activation, error)
	CancelReservationFunc func(ctx context.Context, reservation string) error
	CreditInvoiceFunc     func(ctx context.Context, invoiceNumber string) error
	ReturnAmountFunc      func(ctx context.Context, req *ReturnAmountRequest) error
	UpdateFunc            func(ctx context.Context, req *UpdateRequest) error
	CheckOrderStatusFunc  func(ctx context.Context, id string) (InvoiceStatus, error)
	GetAddressesFunc      func(ctx context.Context, pno string) ([]LookupAddress, error)
	FetchPClassesFunc     func(ctx context.Context, country, language, currency string) ([]PClass, error)

	FetchOrderFunc               func(ctx context.Context, id string) (*ManagedOrder, error)
	AcknowledgeFunc              func(ctx context.Context, id string) error
	UpdateMerchantReferencesFunc func(ctx context.Context, id string, refs MerchantReferences) error
	CreateCaptureFunc            func(ctx context.Context, id string, req *CaptureRequest) (*Capture, error)
	CancelFunc                   func(ctx context.Context, id string) error
	RefundFunc                   func(ctx context.Context, id string, req *RefundRequest) error
	UpdateAuthorizationFunc      func(ctx context.Context, id string, req *AuthorizationUpdate) error

	mu    sync.Mutex
	calls map[string]int
}

func (m *Mock) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[name]++
}

// Calls returns how often a method was invoked.
func (m *Mock) Calls(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

// CreateCheckout calls the configured CreateCheckoutFunc or echoes the order
// with a fixed id.
func (m *Mock) CreateCheckout(ctx context.Context, order *CheckoutOrder) (*CheckoutOrder, error) {
	m.record("CreateCheckout")
	if m.CreateCheckoutFunc != nil {
		return m.CreateCheckoutFunc(ctx, order)
	}
	created := *order
	created.ID = "mock-checkout"
	created.Status = CheckoutIncomplete
	created.HTMLSnippet = `<div id="garan24-checkout-container"></div>`
	return &created, nil
}

// FetchCheckout calls the configured FetchCheckoutFunc or returns not found.
func (m *Mock) FetchCheckout(ctx context.Context, id string) (*CheckoutOrder, error) {
	m.record("FetchCheckout")
	if m.FetchCheckoutFunc != nil {
		return m.FetchCheckoutFunc(ctx, id)
	}
	return nil, model.NewNotFoundError("garan24 order")
}

// UpdateCheckout calls the configured UpdateCheckoutFunc or echoes the order.
func (m *Mock) UpdateCheckout(ctx context.Context, id string, order *CheckoutOrder) (*CheckoutOrder, error) {
	m.record("UpdateCheckout")
	if m.UpdateCheckoutFunc != nil {
		return m.UpdateCheckoutFunc(ctx, id, order)
	}
	updated := *order
	updated.ID = id
	return &updated, nil
}

// ReserveAmount calls the configured ReserveAmountFunc or accepts.
func (m *Mock) ReserveAmount(ctx context.Context, req *ReserveRequest) (*Reservation, error) {
	m.record("ReserveAmount")
	if m.ReserveAmountFunc != nil {
		return m.ReserveAmountFunc(ctx, req)
	}
	return &Reservation{Number: "123456", Status: StatusAccepted}, nil
}

// Activate calls the configured ActivateFunc or returns a fixed invoice.
func (m *Mock) Activate(ctx context.Context, reservation string) (*Activation, error) {
	m.record("Activate")
	if m.ActivateFunc != nil {
		return m.ActivateFunc(ctx, reservation)
	}
	return &Activation{Risk: "ok", InvoiceNumber: "INV-" + reservation}, nil
}

// CancelReservation calls the configured CancelReservationFunc.
func (m *Mock) CancelReservation(ctx context.Context, reservation string) error {
	m.record("CancelReservation")
	if m.CancelReservationFunc != nil {
		return m.CancelReservationFunc(ctx, reservation)
	}
	return nil
}

// CreditInvoice calls the configured CreditInvoiceFunc.
func (m *Mock) CreditInvoice(ctx context.Context, invoiceNumber string) error {
	m.record("CreditInvoice")
	if m.CreditInvoiceFunc != nil {
		return m.CreditInvoiceFunc(ctx, invoiceNumber)
	}
	return nil
}

// ReturnAmount calls the configured ReturnAmountFunc.
func (m *Mock) ReturnAmount(ctx context.Context, req *ReturnAmountRequest) error {
	m.record("ReturnAmount")
	if m.ReturnAmountFunc != nil {
		return m.ReturnAmountFunc(ctx, req)
	}
	return nil
}

// Update calls the configured UpdateFunc.
func (m *Mock) Update(ctx context.Context, req *UpdateRequest) error {
	m.record("Update")
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, req)
	}
	return nil
}

// CheckOrderStatus calls the configured CheckOrderStatusFunc or reports
// pending.
func (m *Mock) CheckOrderStatus(ctx context.Context, id string) (InvoiceStatus, error) {
	m.record("CheckOrderStatus")
	if m.CheckOrderStatusFunc != nil {
		return m.CheckOrderStatusFunc(ctx, id)
	}
	return StatusPending, nil
}

// GetAddresses calls the configured GetAddressesFunc.
func (m *Mock) GetAddresses(ctx context.Context, pno string) ([]LookupAddress, error) {
	m.record("GetAddresses")
	if m.GetAddressesFunc != nil {
		return m.GetAddressesFunc(ctx, pno)
	}
	return nil, nil
}

// FetchPClasses calls the configured FetchPClassesFunc.
func (m *Mock) FetchPClasses(ctx context.Context, country, language, currency string) ([]PClass, error) {
	m.record("FetchPClasses")
	if m.FetchPClassesFunc != nil {
		return m.FetchPClassesFunc(ctx, country, language, currency)
	}
	return nil, nil
}

// FetchOrder calls the configured FetchOrderFunc or returns not found.
func (m *Mock) FetchOrder(ctx context.Context, id string) (*ManagedOrder, error) {
	m.record("FetchOrder")
	if m.FetchOrderFunc != nil {
		return m.FetchOrderFunc(ctx, id)
	}
	return nil, model.NewNotFoundError("garan24 order")
}

// Acknowledge calls the configured AcknowledgeFunc.
func (m *Mock) Acknowledge(ctx context.Context, id string) error {
	m.record("Acknowledge")
	if m.AcknowledgeFunc != nil {
		return m.AcknowledgeFunc(ctx, id)
	}
	return nil
}

// UpdateMerchantReferences calls the configured UpdateMerchantReferencesFunc.
func (m *Mock) UpdateMerchantReferences(ctx context.Context, id string, refs MerchantReferences) error {
	m.record("UpdateMerchantReferences")
	if m.UpdateMerchantReferencesFunc != nil {
		return m.UpdateMerchantReferencesFunc(ctx, id, refs)
	}
	return nil
}

// CreateCapture calls the configured CreateCaptureFunc or returns a fixed
// capture.
func (m *Mock) CreateCapture(ctx context.Context, id string, req *CaptureRequest) (*Capture, error) {
	m.record("CreateCapture")
	if m.CreateCaptureFunc != nil {
		return m.CreateCaptureFunc(ctx, id, req)
	}
	return &Capture{CaptureID: "capture-1", CapturedAmount: req.CapturedAmount}, nil
}

// Cancel calls the configured CancelFunc.
func (m *Mock) Cancel(ctx context.Context, id string) error {
	m.record("Cancel")
	if m.CancelFunc != nil {
		return m.CancelFunc(ctx, id)
	}
	return nil
}

// Refund calls the configured RefundFunc.
func (m *Mock) Refund(ctx context.Context, id string, req *RefundRequest) error {
	m.record("Refund")
	if m.RefundFunc != nil {
		return m.RefundFunc(ctx, id, req)
	}
	return nil
}

// UpdateAuthorization calls the configured UpdateAuthorizationFunc.
func (m *Mock) UpdateAuthorization(ctx context.Context, id string, req *AuthorizationUpdate) error {
	m.record("UpdateAuthorization")
	if m.UpdateAuthorizationFunc != nil {
		return m.UpdateAuthorizationFunc(ctx, id, req)
	}
	return nil
}

// MockFactory hands out the same Mock for every credential set and records
// the last credentials requested.
type MockFactory struct {
	Mock *Mock

	mu          sync.Mutex
	LastCreds   Credentials
	LastCountry string
	LastTest    bool
}

func (f *MockFactory) remember(creds Credentials, country string, testMode bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.LastCreds, f.LastCountry, f.LastTest = creds, country, testMode
}

// Legacy returns the shared mock.
func (f *MockFactory) Legacy(creds Credentials, testMode bool) LegacyAPI {
	f.remember(creds, "", testMode)
	return f.Mock
}

// Rest returns the shared mock.
func (f *MockFactory) Rest(creds Credentials, country string, testMode bool) RestAPI {
	f.remember(creds, country, testMode)
	return f.Mock
}

// Verify Mock implements both APIs at compile time.
var (
	_ LegacyAPI = (*Mock)(nil)
	_ RestAPI   = (*Mock)(nil)
	_ Factory   = (*MockFactory)(nil)
)
