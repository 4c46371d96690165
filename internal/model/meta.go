package model

// Order meta keys. The names match the ones the store plugin has always
// written, so existing orders keep working.
const (
	MetaReservation           = "_garan24_order_reservation"
	MetaProviderOrderID       = "_garan24_order_id"
	MetaInvoiceNumber         = "_garan24_invoice_number"
	MetaActivated             = "_garan24_order_activated"
	MetaCancelled             = "_garan24_order_cancelled"
	MetaRecurringToken        = "_garan24_recurring_token"
	MetaLocale                = "_garan24_locale"
	MetaAPI                   = "_garan24_api"
	MetaPClass                = "_garan24_order_pclass"
	MetaPNO                   = "garan24_pno"
	MetaTransactionID         = "_transaction_id"
	MetaPaymentCreated        = "_kco_payment_created"
	MetaIncompleteEmail       = "_kco_incomplete_customer_email"
	MetaProviderCountry       = "_garan24_country"
	MetaProviderReference     = "_garan24_reference"
	MetaReservationExpiration = "_garan24_reservation_expiration"
)

// API variants stored in MetaAPI.
const (
	APIRest   = "rest"
	APILegacy = "v2"
)

// Payment method ids.
const (
	MethodInvoice     = "garan24_invoice"
	MethodPartPayment = "garan24_part_payment"
	MethodCheckout    = "garan24_checkout"
)

// GuestEmail is stored on incomplete orders before the customer has typed
// an email into the checkout.
const GuestEmail = "guest_checkout@garan24.com"
