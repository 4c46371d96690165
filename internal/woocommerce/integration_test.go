//go:build integration

// Integration tests against a live WooCommerce store.
// Run with: go test -tags=integration ./internal/woocommerce/... -v
//
// Required environment variables:
//
//	WOOCOMMERCE_STORE_URL  - store URL (e.g., https://shop.example.com)
//	WOOCOMMERCE_PRODUCT_ID - product id to put in the cart
//
// Optional:
//
//	WOOCOMMERCE_COUPON     - a valid coupon code
package woocommerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"testing"
	"time"

	"garan24-bridge/internal/model"
)

type liveConfig struct {
	StoreURL  string
	ProductID int
	Coupon    string
}

func loadLiveConfig(t *testing.T) *liveConfig {
	t.Helper()

	storeURL := os.Getenv("WOOCOMMERCE_STORE_URL")
	productID, _ := strconv.Atoi(os.Getenv("WOOCOMMERCE_PRODUCT_ID"))
	if storeURL == "" || productID == 0 {
		t.Skip("Skipping integration test: WOOCOMMERCE_* env vars not set")
	}

	return &liveConfig{
		StoreURL:  storeURL,
		ProductID: productID,
		Coupon:    os.Getenv("WOOCOMMERCE_COUPON"),
	}
}

// seedCart puts one product in a fresh cart, the way the shop's add to
// cart button does, and returns the cart token.
func seedCart(ctx context.Context, t *testing.T, cfg *liveConfig) string {
	t.Helper()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, cfg.StoreURL+storeAPIPath+"/cart", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /cart: %v", err)
	}
	resp.Body.Close()
	token, nonce := resp.Header.Get("Cart-Token"), resp.Header.Get("Nonce")

	body, _ := json.Marshal(map[string]int{"id": cfg.ProductID, "quantity": 1})
	req, _ = http.NewRequestWithContext(ctx, http.MethodPost, cfg.StoreURL+storeAPIPath+"/cart/add-item", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cart-Token", token)
	req.Header.Set("Nonce", nonce)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /cart/add-item: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /cart/add-item status = %d", resp.StatusCode)
	}
	if tok := resp.Header.Get("Cart-Token"); tok != "" {
		token = tok
	}
	return token
}

func TestIntegration_CartRoundTrip(t *testing.T) {
	for _, strategy := range []BatchStrategy{BatchStrategyMulti, BatchStrategySequential} {
		t.Run(string(strategy), func(t *testing.T) {
			cfg := loadLiveConfig(t)
			client, err := New(Config{StoreURL: cfg.StoreURL, BatchStrategy: strategy})
			if err != nil {
				t.Fatalf("New() error: %v", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			st, err := client.Get(ctx, seedCart(ctx, t, cfg))
			if err != nil {
				t.Fatalf("Get() error: %v", err)
			}
			t.Logf("cart token %s, total %d %s", st.Token, st.Cart.Total, st.Cart.Currency)

			if len(st.Cart.Items) != 1 {
				t.Fatalf("items = %d, want 1", len(st.Cart.Items))
			}
			item := st.Cart.Items[0]
			if item.LineSubtotal <= 0 || item.LineSubtotal > 10_000_000 {
				t.Errorf("line subtotal %d looks wrong (minor unit conversion?)", item.LineSubtotal)
			}

			st, err = client.SetQuantity(ctx, st.Token, item.Key, 2)
			if err != nil {
				t.Fatalf("SetQuantity() error: %v", err)
			}
			if st.Cart.ItemCount() != 2 {
				t.Errorf("ItemCount = %d, want 2", st.Cart.ItemCount())
			}

			before := st.Cart.Total
			_, err = client.ApplyCoupon(ctx, st.Token, "NO-SUCH-COUPON-"+strconv.FormatInt(time.Now().Unix(), 10))
			if !errors.Is(err, model.ErrInvalidRequest) {
				t.Errorf("invalid coupon err = %v, want ErrInvalidRequest", err)
			}
			if again, err := client.Get(ctx, st.Token); err == nil && again.Cart.Total != before {
				t.Errorf("total changed after invalid coupon: %d -> %d", before, again.Cart.Total)
			}

			if cfg.Coupon != "" {
				if _, err := client.ApplyCoupon(ctx, st.Token, cfg.Coupon); err != nil {
					t.Errorf("ApplyCoupon(%s) error: %v", cfg.Coupon, err)
				}
			}

			st, err = client.Empty(ctx, st.Token)
			if err != nil {
				t.Fatalf("Empty() error: %v", err)
			}
			if !st.Cart.IsEmpty() {
				t.Errorf("cart not empty: %d items", len(st.Cart.Items))
			}
		})
	}
}
