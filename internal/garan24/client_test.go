package garan24

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"garan24-bridge/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestLegacy(t *testing.T, h http.HandlerFunc) *Legacy {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewLegacy(Config{
		BaseURL:     srv.URL,
		Credentials: Credentials{EID: "1001", Secret: "s3cret"},
		Logger:      discardLogger(),
	})
}

func newTestRest(t *testing.T, h http.HandlerFunc) *Rest {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewRest(Config{
		BaseURL:     srv.URL,
		Credentials: Credentials{EID: "K100", Secret: "rest-secret"},
		Logger:      discardLogger(),
	})
}

func TestDigest(t *testing.T) {
	a := digest([]byte("{}"), "secret")
	b := digest([]byte("{}"), "secret")
	if a != b {
		t.Error("digest should be deterministic")
	}
	if a == digest([]byte("{}"), "other") {
		t.Error("digest should depend on the secret")
	}
	if len(a) != 44 {
		t.Errorf("len(digest) = %d, want 44 (base64 of 32 bytes)", len(a))
	}
}

func TestLegacyCreateCheckoutFollowsLocation(t *testing.T) {
	var sawAuth, sawEID string
	l := newTestLegacy(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/checkout/orders":
			body, _ := io.ReadAll(r.Body)
			sawAuth = r.Header.Get("Authorization")
			sawEID = r.Header.Get("Garan24-Merchant-Id")
			if want := "Garan24 " + digest(body, "s3cret"); sawAuth != want {
				t.Errorf("Authorization = %q, want %q", sawAuth, want)
			}
			w.Header().Set("Location", "https://payment.testdrive.garan24.com/checkout/orders/ABC123")
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodGet && r.URL.Path == "/checkout/orders/ABC123":
			json.NewEncoder(w).Encode(CheckoutOrder{
				ID:          "ABC123",
				Status:      CheckoutIncomplete,
				HTMLSnippet: "<div>snippet</div>",
			})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	order, err := l.CreateCheckout(context.Background(), &CheckoutOrder{
		PurchaseCountry:  "SE",
		PurchaseCurrency: "SEK",
		OrderLines:       []OrderLine{{Reference: "SKU1", Name: "Shirt", Quantity: 1, UnitPrice: 12500, TaxRate: 2500}},
	})
	if err != nil {
		t.Fatalf("CreateCheckout() error: %v", err)
	}
	if order.ID != "ABC123" {
		t.Errorf("ID = %q, want ABC123", order.ID)
	}
	if order.Snippet() != "<div>snippet</div>" {
		t.Errorf("Snippet() = %q", order.Snippet())
	}
	if !strings.HasPrefix(sawAuth, "Garan24 ") {
		t.Errorf("Authorization = %q, want Garan24 scheme", sawAuth)
	}
	if sawEID != "1001" {
		t.Errorf("merchant id header = %q, want 1001", sawEID)
	}
}

func TestLegacyReserveAmount(t *testing.T) {
	l := newTestLegacy(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/kpm/reserve_amount" {
			t.Errorf("path = %s, want /kpm/reserve_amount", r.URL.Path)
		}
		var req ReserveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.PNO != "4103219202" || req.PClass != NoPClass || len(req.Articles) != 1 {
			t.Errorf("request = %+v", req)
		}
		json.NewEncoder(w).Encode(Reservation{Number: "98765", Status: StatusPending})
	})

	res, err := l.ReserveAmount(context.Background(), &ReserveRequest{
		PNO:      "4103219202",
		Amount:   -1,
		PClass:   NoPClass,
		Country:  "SE",
		Currency: "SEK",
		Articles: []Article{{ArtNo: "SKU1", Title: "Shirt", Quantity: 1, Price: 12500, VAT: 25, Flags: FlagIncVAT}},
	})
	if err != nil {
		t.Fatalf("ReserveAmount() error: %v", err)
	}
	if res.Number != "98765" || res.Status != StatusPending {
		t.Errorf("Reservation = %+v, want 98765/PENDING", res)
	}
	if res.Status.String() != "PENDING" {
		t.Errorf("Status.String() = %q", res.Status.String())
	}
}

func TestRequestLogRedactsPNO(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Reservation{Number: "98765", Status: StatusAccepted})
	}))
	t.Cleanup(srv.Close)

	var logs strings.Builder
	l := NewLegacy(Config{
		BaseURL:     srv.URL,
		Credentials: Credentials{EID: "1001", Secret: "s3cret"},
		Logger:      slog.New(slog.NewTextHandler(&logs, nil)),
		Debug:       true,
	})

	_, err := l.ReserveAmount(context.Background(), &ReserveRequest{PNO: "4103219202", Country: "SE", Currency: "SEK"})
	if err != nil {
		t.Fatalf("ReserveAmount() error: %v", err)
	}
	if strings.Contains(logs.String(), "4103219202") {
		t.Errorf("log contains the personal number:\n%s", logs.String())
	}
	if !strings.Contains(logs.String(), "[REDACTED]") {
		t.Errorf("log = %q, want redacted pno", logs.String())
	}
}

func TestRedact(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"pno":"4103219202","country":"SE"}`, `{"pno":"[REDACTED]","country":"SE"}`},
		{`{"customer":{"national_identification_number": "19410321-9202"}}`, `{"customer":{"national_identification_number": "[REDACTED]"}}`},
		{`{"pno":""}`, `{"pno":"[REDACTED]"}`},
		{`{"rno":"123"}`, `{"rno":"123"}`},
		{``, ``},
	}
	for _, tt := range tests {
		if got := redact([]byte(tt.in)); got != tt.want {
			t.Errorf("redact(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestLegacyActivate(t *testing.T) {
	l := newTestLegacy(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["rno"] != "98765" {
			t.Errorf("rno = %q, want 98765", body["rno"])
		}
		w.Write([]byte(`{"risk":"ok","invoice_number":"INV-1"}`))
	})

	act, err := l.Activate(context.Background(), "98765")
	if err != nil {
		t.Fatalf("Activate() error: %v", err)
	}
	if act.InvoiceNumber != "INV-1" || act.Risk != "ok" {
		t.Errorf("Activation = %+v", act)
	}
}

func TestLegacyErrorResponse(t *testing.T) {
	l := newTestLegacy(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Correlation-Id", "corr-1")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error_code":"INVALID_PNO","error_messages":["pno is invalid"]}`))
	})

	_, err := l.ReserveAmount(context.Background(), &ReserveRequest{})
	if err == nil {
		t.Fatal("expected error")
	}

	var gErr *Error
	if !errors.As(err, &gErr) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if gErr.Code != "INVALID_PNO" || gErr.CorrelationID != "corr-1" {
		t.Errorf("Error = %+v", gErr)
	}
	if !errors.Is(err, model.ErrInvalidRequest) {
		t.Error("400 should unwrap to ErrInvalidRequest")
	}
	if got := gErr.Note(); got != "Error code INVALID_PNO. Error message pno is invalid" {
		t.Errorf("Note() = %q", got)
	}
}

func TestParseErrorUnstructuredBody(t *testing.T) {
	e := parseError(http.StatusBadGateway, []byte("<html>bad gateway</html>"))
	if e.Code != "Bad Gateway" {
		t.Errorf("Code = %q, want Bad Gateway", e.Code)
	}
	if len(e.Messages) != 1 || !strings.Contains(e.Messages[0], "bad gateway") {
		t.Errorf("Messages = %v", e.Messages)
	}
	if !errors.Is(e, model.ErrUpstreamError) {
		t.Error("5xx should unwrap to ErrUpstreamError")
	}
}

func TestRestBasicAuthAndCapture(t *testing.T) {
	r := newTestRest(t, func(w http.ResponseWriter, req *http.Request) {
		user, pass, ok := req.BasicAuth()
		if !ok || user != "K100" || pass != "rest-secret" {
			t.Errorf("BasicAuth = %q/%q/%v", user, pass, ok)
		}
		if req.URL.Path != "/ordermanagement/v1/orders/order-1/captures" {
			t.Errorf("path = %s", req.URL.Path)
		}
		var body CaptureRequest
		json.NewDecoder(req.Body).Decode(&body)
		if body.CapturedAmount != 37375 {
			t.Errorf("CapturedAmount = %d, want 37375", body.CapturedAmount)
		}
		w.Header().Set("Capture-Id", "cap-42")
		w.WriteHeader(http.StatusCreated)
	})

	capture, err := r.CreateCapture(context.Background(), "order-1", &CaptureRequest{CapturedAmount: 37375})
	if err != nil {
		t.Fatalf("CreateCapture() error: %v", err)
	}
	if capture.CaptureID != "cap-42" {
		t.Errorf("CaptureID = %q, want cap-42", capture.CaptureID)
	}
	if capture.CapturedAmount != 37375 {
		t.Errorf("CapturedAmount = %d, want 37375", capture.CapturedAmount)
	}
}

func TestRestOrderManagementPaths(t *testing.T) {
	var got []string
	r := newTestRest(t, func(w http.ResponseWriter, req *http.Request) {
		got = append(got, req.Method+" "+req.URL.Path)
		if req.Method == http.MethodGet {
			w.Write([]byte(`{"order_id":"o1","status":"AUTHORIZED","order_amount":1000}`))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	ctx := context.Background()

	order, err := r.FetchOrder(ctx, "o1")
	if err != nil {
		t.Fatalf("FetchOrder() error: %v", err)
	}
	if order.Status != OrderAuthorized {
		t.Errorf("Status = %q, want AUTHORIZED", order.Status)
	}
	if err := r.Acknowledge(ctx, "o1"); err != nil {
		t.Errorf("Acknowledge() error: %v", err)
	}
	if err := r.UpdateMerchantReferences(ctx, "o1", MerchantReferences{MerchantReference1: "42"}); err != nil {
		t.Errorf("UpdateMerchantReferences() error: %v", err)
	}
	if err := r.Cancel(ctx, "o1"); err != nil {
		t.Errorf("Cancel() error: %v", err)
	}
	if err := r.Refund(ctx, "o1", &RefundRequest{RefundedAmount: 500}); err != nil {
		t.Errorf("Refund() error: %v", err)
	}
	if err := r.UpdateAuthorization(ctx, "o1", &AuthorizationUpdate{OrderAmount: 800}); err != nil {
		t.Errorf("UpdateAuthorization() error: %v", err)
	}

	want := []string{
		"GET /ordermanagement/v1/orders/o1",
		"POST /ordermanagement/v1/orders/o1/acknowledge",
		"PATCH /ordermanagement/v1/orders/o1/merchant-references",
		"POST /ordermanagement/v1/orders/o1/cancel",
		"POST /ordermanagement/v1/orders/o1/refunds",
		"PATCH /ordermanagement/v1/orders/o1/authorization",
	}
	if len(got) != len(want) {
		t.Fatalf("requests = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("request[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRestNotFound(t *testing.T) {
	r := newTestRest(t, func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error_code":"NOT_FOUND","error_messages":["order not found"],"correlation_id":"c-9"}`))
	})

	_, err := r.FetchOrder(context.Background(), "missing")
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("FetchOrder() error = %v, want ErrNotFound", err)
	}

	apiErr := ToAPIError(err)
	var ae *model.APIError
	if !errors.As(apiErr, &ae) || ae.StatusCode != http.StatusNotFound {
		t.Errorf("ToAPIError() = %v, want 404 APIError", apiErr)
	}
}

func TestEndpoints(t *testing.T) {
	e := Endpoints{EUTest: "http://localhost:9000/"}.Merge(DefaultEndpoints())

	if got := e.Rest("GB", true); got != "http://localhost:9000" {
		t.Errorf("Rest(GB, test) = %q, want override", got)
	}
	if got := e.Rest("us", false); got != DefaultNALiveURL {
		t.Errorf("Rest(US, live) = %q, want %q", got, DefaultNALiveURL)
	}
	if got := e.Legacy(true); got != DefaultLegacyTestURL {
		t.Errorf("Legacy(test) = %q, want %q", got, DefaultLegacyTestURL)
	}
	if got := e.Legacy(false); got != DefaultLegacyLiveURL {
		t.Errorf("Legacy(live) = %q, want %q", got, DefaultLegacyLiveURL)
	}
}

func TestMockCountsCalls(t *testing.T) {
	m := &Mock{}
	ctx := context.Background()
	m.Activate(ctx, "1")
	m.Activate(ctx, "2")
	m.Cancel(ctx, "o1")

	if got := m.Calls("Activate"); got != 2 {
		t.Errorf("Calls(Activate) = %d, want 2", got)
	}
	if got := m.Calls("Refund"); got != 0 {
		t.Errorf("Calls(Refund) = %d, want 0", got)
	}
}
