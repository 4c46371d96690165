package garan24

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// LegacyAPI is the v2 checkout plus the KPM RPC methods used by the
// invoice and part payment gateways.
type LegacyAPI interface {
	CreateCheckout(ctx context.Context, order *CheckoutOrder) (*CheckoutOrder, error)
	FetchCheckout(ctx context.Context, id string) (*CheckoutOrder, error)
	UpdateCheckout(ctx context.Context, id string, order *CheckoutOrder) (*CheckoutOrder, error)

	ReserveAmount(ctx context.Context, req *ReserveRequest) (*Reservation, error)
	Activate(ctx context.Context, reservation string) (*Activation, error)
	CancelReservation(ctx context.Context, reservation string) error
	CreditInvoice(ctx context.Context, invoiceNumber string) error
	ReturnAmount(ctx context.Context, req *ReturnAmountRequest) error
	Update(ctx context.Context, req *UpdateRequest) error
	CheckOrderStatus(ctx context.Context, id string) (InvoiceStatus, error)
	GetAddresses(ctx context.Context, pno string) ([]LookupAddress, error)
	FetchPClasses(ctx context.Context, country, language, currency string) ([]PClass, error)
}

// Legacy talks to the legacy checkout and KPM endpoints. Every request is
// signed with the shared secret digest.
type Legacy struct {
	client
}

// NewLegacy creates a legacy API client.
func NewLegacy(cfg Config) *Legacy {
	c := newClient(cfg)
	creds := cfg.Credentials
	c.authorize = func(req *http.Request, body []byte) {
		req.Header.Set("Authorization", "Garan24 "+digest(body, creds.Secret))
		req.Header.Set("Garan24-Merchant-Id", creds.EID)
	}
	return &Legacy{client: c}
}

// CreateCheckout creates a checkout order. The provider answers 201 with
// a Location; the created order is fetched from it when the body is empty.
func (l *Legacy) CreateCheckout(ctx context.Context, order *CheckoutOrder) (*CheckoutOrder, error) {
	var created CheckoutOrder
	h, err := l.do(ctx, http.MethodPost, "/checkout/orders", order, &created)
	if err != nil {
		return nil, err
	}
	if created.ID != "" {
		return &created, nil
	}
	id := idFromLocation(h)
	if id == "" {
		return nil, fmt.Errorf("garan24: checkout created without id")
	}
	return l.FetchCheckout(ctx, id)
}

// FetchCheckout returns a checkout order by id.
func (l *Legacy) FetchCheckout(ctx context.Context, id string) (*CheckoutOrder, error) {
	var order CheckoutOrder
	if _, err := l.do(ctx, http.MethodGet, "/checkout/orders/"+url.PathEscape(id), nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateCheckout posts a partial checkout order and returns the result.
func (l *Legacy) UpdateCheckout(ctx context.Context, id string, order *CheckoutOrder) (*CheckoutOrder, error) {
	var updated CheckoutOrder
	if _, err := l.do(ctx, http.MethodPost, "/checkout/orders/"+url.PathEscape(id), order, &updated); err != nil {
		return nil, err
	}
	if updated.ID == "" {
		updated.ID = id
	}
	return &updated, nil
}

// rpc calls a KPM method.
func (l *Legacy) rpc(ctx context.Context, method string, params, out any) error {
	_, err := l.do(ctx, http.MethodPost, "/kpm/"+method, params, out)
	return err
}

// ReserveAmount reserves the purchase amount for a KPM order.
func (l *Legacy) ReserveAmount(ctx context.Context, req *ReserveRequest) (*Reservation, error) {
	var res Reservation
	if err := l.rpc(ctx, "reserve_amount", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Activate turns a reservation into an invoice.
func (l *Legacy) Activate(ctx context.Context, reservation string) (*Activation, error) {
	var res Activation
	if err := l.rpc(ctx, "activate", map[string]string{"rno": reservation}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CancelReservation releases a reservation.
func (l *Legacy) CancelReservation(ctx context.Context, reservation string) error {
	return l.rpc(ctx, "cancel_reservation", map[string]string{"rno": reservation}, nil)
}

// CreditInvoice credits an invoice in full.
func (l *Legacy) CreditInvoice(ctx context.Context, invoiceNumber string) error {
	return l.rpc(ctx, "credit_invoice", map[string]string{"invoice_number": invoiceNumber}, nil)
}

// ReturnAmount credits part of an invoice at a single VAT rate.
func (l *Legacy) ReturnAmount(ctx context.Context, req *ReturnAmountRequest) error {
	return l.rpc(ctx, "return_amount", req, nil)
}

// Update replaces the contents of a reservation.
func (l *Legacy) Update(ctx context.Context, req *UpdateRequest) error {
	return l.rpc(ctx, "update", req, nil)
}

// CheckOrderStatus polls a pending reservation.
func (l *Legacy) CheckOrderStatus(ctx context.Context, id string) (InvoiceStatus, error) {
	var res struct {
		Status InvoiceStatus `json:"status"`
	}
	if err := l.rpc(ctx, "check_order_status", map[string]string{"id": id}, &res); err != nil {
		return 0, err
	}
	return res.Status, nil
}

// GetAddresses looks up the registered addresses for a Swedish personal
// number.
func (l *Legacy) GetAddresses(ctx context.Context, pno string) ([]LookupAddress, error) {
	var res struct {
		Addresses []LookupAddress `json:"addresses"`
	}
	if err := l.rpc(ctx, "get_addresses", map[string]string{"pno": pno}, &res); err != nil {
		return nil, err
	}
	return res.Addresses, nil
}

// FetchPClasses returns the part payment campaigns for a country.
func (l *Legacy) FetchPClasses(ctx context.Context, country, language, currency string) ([]PClass, error) {
	var res struct {
		PClasses []PClass `json:"pclasses"`
	}
	params := map[string]string{"country": country, "language": language, "currency": currency}
	if err := l.rpc(ctx, "fetch_pclasses", params, &res); err != nil {
		return nil, err
	}
	return res.PClasses, nil
}

var _ LegacyAPI = (*Legacy)(nil)
