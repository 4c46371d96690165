package garan24

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// RestAPI is the REST checkout and order management API.
type RestAPI interface {
	CreateCheckout(ctx context.Context, order *CheckoutOrder) (*CheckoutOrder, error)
	FetchCheckout(ctx context.Context, id string) (*CheckoutOrder, error)
	UpdateCheckout(ctx context.Context, id string, order *CheckoutOrder) (*CheckoutOrder, error)

	FetchOrder(ctx context.Context, id string) (*ManagedOrder, error)
	Acknowledge(ctx context.Context, id string) error
	UpdateMerchantReferences(ctx context.Context, id string, refs MerchantReferences) error
	CreateCapture(ctx context.Context, id string, req *CaptureRequest) (*Capture, error)
	Cancel(ctx context.Context, id string) error
	Refund(ctx context.Context, id string, req *RefundRequest) error
	UpdateAuthorization(ctx context.Context, id string, req *AuthorizationUpdate) error
}

const (
	checkoutPath   = "/checkout/v3/orders"
	managementPath = "/ordermanagement/v1/orders"
)

// Rest talks to the REST API using HTTP basic auth (eid:secret).
type Rest struct {
	client
}

// NewRest creates a REST API client.
func NewRest(cfg Config) *Rest {
	c := newClient(cfg)
	creds := cfg.Credentials
	c.authorize = func(req *http.Request, _ []byte) {
		req.SetBasicAuth(creds.EID, creds.Secret)
	}
	return &Rest{client: c}
}

// CreateCheckout creates a REST checkout order.
func (r *Rest) CreateCheckout(ctx context.Context, order *CheckoutOrder) (*CheckoutOrder, error) {
	var created CheckoutOrder
	if _, err := r.do(ctx, http.MethodPost, checkoutPath, order, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// FetchCheckout returns a REST checkout order.
func (r *Rest) FetchCheckout(ctx context.Context, id string) (*CheckoutOrder, error) {
	var order CheckoutOrder
	if _, err := r.do(ctx, http.MethodGet, checkoutPath+"/"+url.PathEscape(id), nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateCheckout replaces lines and amounts of an incomplete checkout.
func (r *Rest) UpdateCheckout(ctx context.Context, id string, order *CheckoutOrder) (*CheckoutOrder, error) {
	var updated CheckoutOrder
	if _, err := r.do(ctx, http.MethodPost, checkoutPath+"/"+url.PathEscape(id), order, &updated); err != nil {
		return nil, err
	}
	if updated.ID == "" {
		updated.ID = id
	}
	return &updated, nil
}

func orderPath(id string, parts ...string) string {
	p := managementPath + "/" + url.PathEscape(id)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

// FetchOrder returns a managed order.
func (r *Rest) FetchOrder(ctx context.Context, id string) (*ManagedOrder, error) {
	var order ManagedOrder
	if _, err := r.do(ctx, http.MethodGet, orderPath(id), nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// Acknowledge tells Garan24 the shop has created its order.
func (r *Rest) Acknowledge(ctx context.Context, id string) error {
	_, err := r.do(ctx, http.MethodPost, orderPath(id, "acknowledge"), nil, nil)
	return err
}

// UpdateMerchantReferences stores the shop order number on the order.
func (r *Rest) UpdateMerchantReferences(ctx context.Context, id string, refs MerchantReferences) error {
	_, err := r.do(ctx, http.MethodPatch, orderPath(id, "merchant-references"), refs, nil)
	return err
}

// CreateCapture captures money. The capture id comes from the Capture-Id
// header, or the Location when the header is absent.
func (r *Rest) CreateCapture(ctx context.Context, id string, req *CaptureRequest) (*Capture, error) {
	var capture Capture
	h, err := r.do(ctx, http.MethodPost, orderPath(id, "captures"), req, &capture)
	if err != nil {
		return nil, err
	}
	if capture.CaptureID == "" {
		capture.CaptureID = h.Get("Capture-Id")
	}
	if capture.CaptureID == "" {
		capture.CaptureID = idFromLocation(h)
	}
	if capture.CaptureID == "" {
		return nil, fmt.Errorf("garan24: capture created without id")
	}
	if capture.CapturedAmount == 0 {
		capture.CapturedAmount = req.CapturedAmount
	}
	return &capture, nil
}

// Cancel cancels an uncaptured authorization.
func (r *Rest) Cancel(ctx context.Context, id string) error {
	_, err := r.do(ctx, http.MethodPost, orderPath(id, "cancel"), nil, nil)
	return err
}

// Refund refunds captured money.
func (r *Rest) Refund(ctx context.Context, id string, req *RefundRequest) error {
	_, err := r.do(ctx, http.MethodPost, orderPath(id, "refunds"), req, nil)
	return err
}

// UpdateAuthorization changes the authorized amount and lines.
func (r *Rest) UpdateAuthorization(ctx context.Context, id string, req *AuthorizationUpdate) error {
	_, err := r.do(ctx, http.MethodPatch, orderPath(id, "authorization"), req, nil)
	return err
}

var _ RestAPI = (*Rest)(nil)
