package garan24

import (
	"math"
	"time"
)

// Order line types.
const (
	LineTypePhysical    = "physical"
	LineTypeDiscount    = "discount"
	LineTypeShippingFee = "shipping_fee"
	LineTypeSalesTax    = "sales_tax"
	LineTypeSurcharge   = "surcharge"
)

// Checkout order statuses.
const (
	CheckoutIncomplete = "checkout_incomplete"
	CheckoutComplete   = "checkout_complete"
	CheckoutCreated    = "created"
)

// Managed order statuses (REST order management).
const (
	OrderAuthorized   = "AUTHORIZED"
	OrderPartCaptured = "PART_CAPTURED"
	OrderCaptured     = "CAPTURED"
	OrderCancelled    = "CANCELLED"
	OrderExpired      = "EXPIRED"
	OrderClosed       = "CLOSED"
)

// OrderLine is one line of a checkout or managed order. Amounts are minor
// units. TaxRate and DiscountRate are basis points (2500 = 25%).
// DiscountRate is only sent to the legacy checkout; the Total* fields only
// to the REST API.
type OrderLine struct {
	Type                string `json:"type,omitempty"`
	Reference           string `json:"reference"`
	Name                string `json:"name"`
	Quantity            int    `json:"quantity"`
	UnitPrice           int64  `json:"unit_price"`
	TaxRate             int64  `json:"tax_rate"`
	DiscountRate        int64  `json:"discount_rate,omitempty"`
	TotalAmount         int64  `json:"total_amount,omitempty"`
	TotalTaxAmount      int64  `json:"total_tax_amount,omitempty"`
	TotalDiscountAmount int64  `json:"total_discount_amount,omitempty"`
}

// KPM article flags.
const (
	FlagIsShipment = 8
	FlagIsHandling = 16
	FlagIncVAT     = 32
)

// Article is a KPM (invoice / part payment) order row. Price includes VAT
// and VAT is a percentage.
type Article struct {
	ArtNo    string  `json:"artno"`
	Title    string  `json:"title"`
	Quantity int     `json:"qty"`
	Price    int64   `json:"price"`
	VAT      float64 `json:"vat"`
	Discount float64 `json:"discount"`
	Flags    int     `json:"flags"`
}

// Address is a checkout / order management address.
type Address struct {
	GivenName      string `json:"given_name,omitempty"`
	FamilyName     string `json:"family_name,omitempty"`
	Organization   string `json:"organization_name,omitempty"`
	Email          string `json:"email,omitempty"`
	Title          string `json:"title,omitempty"`
	StreetAddress  string `json:"street_address,omitempty"`
	StreetAddress2 string `json:"street_address2,omitempty"`
	StreetName     string `json:"street_name,omitempty"`
	StreetNumber   string `json:"street_number,omitempty"`
	CareOf         string `json:"care_of,omitempty"`
	PostalCode     string `json:"postal_code,omitempty"`
	City           string `json:"city,omitempty"`
	Region         string `json:"region,omitempty"`
	Phone          string `json:"phone,omitempty"`
	Country        string `json:"country,omitempty"`
}

// KPMAddress is the address shape used by the KPM RPC methods.
type KPMAddress struct {
	Email          string `json:"email"`
	Telno          string `json:"telno,omitempty"`
	Cellno         string `json:"cellno,omitempty"`
	FirstName      string `json:"fname"`
	LastName       string `json:"lname"`
	Company        string `json:"company,omitempty"`
	CareOf         string `json:"careof,omitempty"`
	Street         string `json:"street"`
	HouseNumber    string `json:"house_number,omitempty"`
	HouseExtension string `json:"house_extension,omitempty"`
	Zip            string `json:"zip"`
	City           string `json:"city"`
	Country        string `json:"country"`
}

// MerchantURLs are the shop callbacks registered on a checkout order.
type MerchantURLs struct {
	Terms        string `json:"terms"`
	Checkout     string `json:"checkout"`
	Confirmation string `json:"confirmation"`
	Push         string `json:"push"`
}

// MerchantReference carries the shop order ids on a legacy checkout order.
type MerchantReference struct {
	OrderID1 string `json:"orderid1,omitempty"`
	OrderID2 string `json:"orderid2,omitempty"`
}

// Customer holds optional customer data for a checkout order.
type Customer struct {
	Type        string `json:"type,omitempty"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
	Gender      string `json:"gender,omitempty"`
}

// Options tweaks the rendered checkout.
type Options struct {
	ColorButton                  string `json:"color_button,omitempty"`
	AllowSeparateShippingAddress bool   `json:"allow_separate_shipping_address,omitempty"`
}

// GUI options. Layout "mobile" selects the compact checkout.
type GUI struct {
	Layout  string   `json:"layout,omitempty"`
	Options []string `json:"options,omitempty"`
}

// CheckoutOrder is an order in the embedded checkout, legacy or REST.
type CheckoutOrder struct {
	ID                 string             `json:"order_id,omitempty"`
	Status             string             `json:"status,omitempty"`
	PurchaseCountry    string             `json:"purchase_country,omitempty"`
	PurchaseCurrency   string             `json:"purchase_currency,omitempty"`
	Locale             string             `json:"locale,omitempty"`
	BillingAddress     *Address           `json:"billing_address,omitempty"`
	ShippingAddress    *Address           `json:"shipping_address,omitempty"`
	OrderAmount        int64              `json:"order_amount,omitempty"`
	OrderTaxAmount     int64              `json:"order_tax_amount,omitempty"`
	OrderLines         []OrderLine        `json:"order_lines,omitempty"`
	MerchantURLs       *MerchantURLs      `json:"merchant_urls,omitempty"`
	MerchantReference  *MerchantReference `json:"merchant_reference,omitempty"`
	MerchantReference1 string             `json:"merchant_reference1,omitempty"`
	Reservation        string             `json:"reservation,omitempty"`
	RecurringToken     string             `json:"recurring_token,omitempty"`
	Customer           *Customer          `json:"customer,omitempty"`
	GUI                *GUI               `json:"gui,omitempty"`
	Options            *Options           `json:"options,omitempty"`
	HTMLSnippet        string             `json:"html_snippet,omitempty"`
	CompletedAt        *time.Time         `json:"completed_at,omitempty"`
	ExpiresAt          *time.Time         `json:"expires_at,omitempty"`
}

// Snippet returns the checkout HTML for embedding.
func (o *CheckoutOrder) Snippet() string {
	if o == nil {
		return ""
	}
	return o.HTMLSnippet
}

// ManagedOrder is an authorized order in the REST order management API.
type ManagedOrder struct {
	OrderID                   string      `json:"order_id"`
	Status                    string      `json:"status"`
	FraudStatus               string      `json:"fraud_status,omitempty"`
	Garan24Reference          string      `json:"garan24_reference,omitempty"`
	PurchaseCountry           string      `json:"purchase_country,omitempty"`
	PurchaseCurrency          string      `json:"purchase_currency,omitempty"`
	Locale                    string      `json:"locale,omitempty"`
	OrderAmount               int64       `json:"order_amount"`
	OriginalOrderAmount       int64       `json:"original_order_amount,omitempty"`
	CapturedAmount            int64       `json:"captured_amount"`
	RefundedAmount            int64       `json:"refunded_amount"`
	RemainingAuthorizedAmount int64       `json:"remaining_authorized_amount"`
	OrderLines                []OrderLine `json:"order_lines,omitempty"`
	MerchantReference1        string      `json:"merchant_reference1,omitempty"`
	MerchantReference2        string      `json:"merchant_reference2,omitempty"`
	BillingAddress            *Address    `json:"billing_address,omitempty"`
	ShippingAddress           *Address    `json:"shipping_address,omitempty"`
	RecurringToken            string      `json:"recurring_token,omitempty"`
	ExpiresAt                 *time.Time  `json:"expires_at,omitempty"`
	Captures                  []Capture   `json:"captures,omitempty"`
}

// Capture is a (partial) capture of a managed order.
type Capture struct {
	CaptureID      string      `json:"capture_id"`
	Description    string      `json:"description,omitempty"`
	CapturedAmount int64       `json:"captured_amount"`
	OrderLines     []OrderLine `json:"order_lines,omitempty"`
	CapturedAt     *time.Time  `json:"captured_at,omitempty"`
}

// CaptureRequest captures part or all of an authorization.
type CaptureRequest struct {
	CapturedAmount int64       `json:"captured_amount"`
	Description    string      `json:"description,omitempty"`
	OrderLines     []OrderLine `json:"order_lines,omitempty"`
}

// RefundRequest refunds captured money.
type RefundRequest struct {
	RefundedAmount int64       `json:"refunded_amount"`
	Description    string      `json:"description,omitempty"`
	OrderLines     []OrderLine `json:"order_lines,omitempty"`
}

// AuthorizationUpdate replaces the lines and amount of an authorization.
type AuthorizationUpdate struct {
	OrderAmount int64       `json:"order_amount"`
	Description string      `json:"description,omitempty"`
	OrderLines  []OrderLine `json:"order_lines"`
}

// MerchantReferences updates the shop ids on a managed order.
type MerchantReferences struct {
	MerchantReference1 string `json:"merchant_reference1"`
	MerchantReference2 string `json:"merchant_reference2,omitempty"`
}

// InvoiceStatus is the KPM reservation outcome.
type InvoiceStatus int

const (
	StatusAccepted InvoiceStatus = 1
	StatusPending  InvoiceStatus = 2
	StatusDenied   InvoiceStatus = 3
)

func (s InvoiceStatus) String() string {
	switch s {
	case StatusAccepted:
		return "ACCEPTED"
	case StatusPending:
		return "PENDING"
	case StatusDenied:
		return "DENIED"
	}
	return "UNKNOWN"
}

// NoPClass reserves an invoice rather than a part payment.
const NoPClass = -1

// ReserveRequest reserves an amount for a KPM purchase. Amount -1 lets
// Garan24 sum the articles.
type ReserveRequest struct {
	PNO      string     `json:"pno"`
	Gender   int        `json:"gender"`
	Amount   int64      `json:"amount"`
	PClass   int        `json:"pclass"`
	Country  string     `json:"country"`
	Language string     `json:"language"`
	Currency string     `json:"currency"`
	OrderID1 string     `json:"orderid1,omitempty"`
	OrderID2 string     `json:"orderid2,omitempty"`
	Articles []Article  `json:"articles"`
	Billing  KPMAddress `json:"billing"`
	Shipping KPMAddress `json:"shipping"`
}

// Reservation is the outcome of ReserveAmount.
type Reservation struct {
	Number string        `json:"reservation"`
	Status InvoiceStatus `json:"status"`
}

// Activation is the outcome of activating a reservation.
type Activation struct {
	Risk          string `json:"risk"`
	InvoiceNumber string `json:"invoice_number"`
}

// ReturnAmountRequest returns a fixed amount on an invoice. VAT is a
// percentage.
type ReturnAmountRequest struct {
	InvoiceNumber string  `json:"invoice_number"`
	Amount        int64   `json:"amount"`
	VAT           float64 `json:"vat"`
	Description   string  `json:"description,omitempty"`
}

// UpdateRequest replaces the articles and addresses of a reservation.
type UpdateRequest struct {
	Reservation string     `json:"rno"`
	OrderID1    string     `json:"orderid1,omitempty"`
	Articles    []Article  `json:"articles"`
	Billing     KPMAddress `json:"billing"`
	Shipping    KPMAddress `json:"shipping"`
}

// PClass is a part payment campaign.
type PClass struct {
	ID           int     `json:"id"`
	Description  string  `json:"description"`
	Months       int     `json:"months"`
	StartFee     int64   `json:"start_fee"`
	InvoiceFee   int64   `json:"invoice_fee"`
	InterestRate float64 `json:"interest_rate"`
	MinAmount    int64   `json:"min_amount"`
	Country      string  `json:"country"`
	Type         int     `json:"type"`
}

// Eligible reports whether the campaign can be offered for a total.
func (p PClass) Eligible(total int64) bool {
	return total >= p.MinAmount
}

// MonthlyCost is the monthly payment for a total: the annuity over Months
// on the total plus the start fee, plus the invoice fee. Rounded up to the
// minor unit. Campaigns without a term cost nothing per month.
func (p PClass) MonthlyCost(total int64) int64 {
	if p.Months <= 0 {
		return 0
	}
	principal := float64(total + p.StartFee)
	n := float64(p.Months)
	r := p.InterestRate / 100 / 12

	pay := principal / n
	if r > 0 {
		pay = principal * r / (1 - math.Pow(1+r, -n))
	}
	return int64(math.Ceil(pay-1e-9)) + p.InvoiceFee
}

// LookupAddress is an address returned by GetAddresses.
type LookupAddress struct {
	FirstName string `json:"fname,omitempty"`
	LastName  string `json:"lname,omitempty"`
	Company   string `json:"company,omitempty"`
	Street    string `json:"street"`
	Zip       string `json:"zip"`
	City      string `json:"city"`
	Country   string `json:"country"`
}

// Name returns the person or company name on the address.
func (a LookupAddress) Name() string {
	if a.Company != "" {
		return a.Company
	}
	return a.FirstName + " " + a.LastName
}
