package woocommerce

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"garan24-bridge/internal/model"
	"garan24-bridge/internal/transport"
)

// =============================================================================
// NONCE AUTHENTICATION
// =============================================================================
//
// The Store API requires a Nonce header on every cart mutation. Before each
// mutation the client makes a GET /cart preflight to obtain a fresh nonce and
// uses it immediately. The sequential strategy then chains the Nonce returned
// by each operation into the next one.
//
//   read cart:      POST /cart/update-customer           (1 call)
//   set quantity:   GET /cart → POST /batch              (2 calls)
//   empty cart:     POST /cart/update-customer → GET /cart → POST /batch
//
// =============================================================================

// storeAPIPath is the base path for Store API endpoints.
const storeAPIPath = "/wp-json/wc/store/v1"

// userAgent identifies the bridge to the store.
const userAgent = "Garan24-Bridge/1.0"

// BatchStrategy controls how batch operations are executed.
type BatchStrategy string

const (
	// BatchStrategyMulti uses the /batch endpoint with per-operation headers.
	BatchStrategyMulti BatchStrategy = "multi"

	// BatchStrategySequential executes operations one by one with nonce chaining.
	BatchStrategySequential BatchStrategy = "sequential"
)

// Config holds the Store API client configuration.
type Config struct {
	StoreURL      string
	HTTPClient    *http.Client  // default: Chrome-fingerprint transport, 30s timeout
	BatchStrategy BatchStrategy // default: multi
}

// Client reads and mutates WooCommerce carts through the Store API.
// Carts are addressed by their Cart-Token, which the bridge keeps in the
// checkout session.
type Client struct {
	httpClient    *http.Client
	storeURL      string
	batchStrategy BatchStrategy
}

// CartState is the cart after a read or mutation together with the token
// that addresses it and the customer addresses WooCommerce holds for it.
type CartState struct {
	Token    string
	Cart     *model.Cart
	Billing  model.Address
	Shipping model.Address
}

// generateCartToken creates a random cart token for a new session so that
// sessions never share a cart.
func generateCartToken() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// New creates a Store API client.
func New(cfg Config) (*Client, error) {
	if cfg.StoreURL == "" {
		return nil, fmt.Errorf("store URL is required")
	}

	strategy := cfg.BatchStrategy
	if strategy == "" {
		strategy = BatchStrategyMulti
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = transport.NewClient(transport.Options{
			Timeout:     30 * time.Second,
			Fingerprint: true,
			Name:        "woocommerce",
		})
	}

	return &Client{
		httpClient:    httpClient,
		storeURL:      strings.TrimSuffix(cfg.StoreURL, "/"),
		batchStrategy: strategy,
	}, nil
}

// Get returns the current cart. An empty token starts a new cart session.
func (c *Client) Get(ctx context.Context, cartToken string) (*CartState, error) {
	if cartToken == "" {
		cartToken = generateCartToken()
	}
	cart, token, err := c.getCartViaMutation(ctx, cartToken, nil)
	if err != nil {
		return nil, err
	}
	return state(cart, token), nil
}

// Apply executes the batch and returns the resulting cart. An empty batch
// only reads the cart.
func (c *Client) Apply(ctx context.Context, cartToken string, b *BatchBuilder) (*CartState, error) {
	batch := b.Build()
	if batch == nil {
		return c.Get(ctx, cartToken)
	}
	if cartToken == "" {
		cartToken = generateCartToken()
	}
	cart, token, err := c.executeBatch(ctx, batch, cartToken)
	if err != nil {
		return nil, err
	}
	return state(cart, token), nil
}

// SetQuantity sets the quantity of a cart item. Zero removes it.
func (c *Client) SetQuantity(ctx context.Context, cartToken, key string, quantity int) (*CartState, error) {
	if key == "" {
		return nil, model.NewValidationError("cart_item_key", "is required")
	}
	if quantity < 0 {
		return nil, model.NewValidationError("new_quantity", "must not be negative")
	}
	return c.Apply(ctx, cartToken, NewBatch().UpdateItemQuantity(key, quantity))
}

// RemoveItem removes a cart item.
func (c *Client) RemoveItem(ctx context.Context, cartToken, key string) (*CartState, error) {
	if key == "" {
		return nil, model.NewValidationError("cart_item_key_remove", "is required")
	}
	return c.Apply(ctx, cartToken, NewBatch().RemoveItem(key))
}

// ApplyCoupon applies a coupon. WooCommerce rejects unknown or expired
// codes with a validation error and leaves the cart unchanged.
func (c *Client) ApplyCoupon(ctx context.Context, cartToken, code string) (*CartState, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, model.NewValidationError("coupon", "is required")
	}
	return c.Apply(ctx, cartToken, NewBatch().ApplyCoupon(code))
}

// RemoveCoupon removes a coupon.
func (c *Client) RemoveCoupon(ctx context.Context, cartToken, code string) (*CartState, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, model.NewValidationError("remove_coupon", "is required")
	}
	return c.Apply(ctx, cartToken, NewBatch().RemoveCoupon(code))
}

// SelectShippingRate chooses a shipping rate. The package is looked up from
// the current cart.
func (c *Client) SelectShippingRate(ctx context.Context, cartToken, rateID string) (*CartState, error) {
	if rateID == "" {
		return nil, model.NewValidationError("new_method", "is required")
	}
	current, token, err := c.getCartViaMutation(ctx, cartToken, nil)
	if err != nil {
		return nil, err
	}
	pkg, ok := findRate(current, rateID)
	if !ok {
		return nil, model.NewValidationError("new_method", "unknown shipping method "+rateID)
	}
	return c.Apply(ctx, token, NewBatch().SelectShippingRate(rateID, pkg))
}

// UpdateCustomer sets the customer's billing and shipping addresses. Totals
// are recalculated for the new destination.
func (c *Client) UpdateCustomer(ctx context.Context, cartToken string, billing, shipping *model.Address) (*CartState, error) {
	return c.Apply(ctx, cartToken, NewBatch().UpdateCustomer(billing, shipping))
}

// Empty removes every item from the cart.
func (c *Client) Empty(ctx context.Context, cartToken string) (*CartState, error) {
	current, token, err := c.getCartViaMutation(ctx, cartToken, nil)
	if err != nil {
		return nil, err
	}
	batch := BuildEmptyCartBatch(current)
	if batch == nil {
		return state(current, token), nil
	}
	cart, token, err := c.executeBatch(ctx, batch, token)
	if err != nil {
		return nil, err
	}
	return state(cart, token), nil
}

func state(cart *WooCartResponse, token string) *CartState {
	s := &CartState{Token: token, Cart: CartFromWoo(cart)}
	if cart != nil {
		s.Billing = AddressFromWoo(&cart.BillingAddress)
		s.Shipping = AddressFromWoo(&cart.ShippingAddress)
	}
	return s
}

type nonceInfo struct {
	nonce     string
	cartToken string
}

// fetchNonce performs a preflight GET /cart request to obtain a fresh nonce.
func (c *Client) fetchNonce(ctx context.Context, cartToken string) (*nonceInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.storeURL+storeAPIPath+"/cart", nil)
	if err != nil {
		return nil, fmt.Errorf("creating nonce request: %w", err)
	}

	c.setStoreAPIHeaders(req, cartToken, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, model.NewUpstreamError("WooCommerce", err)
	}
	defer resp.Body.Close()

	// Drain body to allow connection reuse
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, model.NewRateLimitError("WooCommerce")
		}
		return nil, model.NewUpstreamError("WooCommerce",
			fmt.Errorf("nonce preflight failed with status %d", resp.StatusCode))
	}

	nonce := resp.Header.Get("Nonce")
	if nonce == "" {
		return nil, model.NewUpstreamError("WooCommerce",
			fmt.Errorf("no nonce returned from Store API"))
	}

	// Keep our token; WooCommerce may answer with a different session.
	token := cartToken
	if token == "" {
		token = resp.Header.Get("Cart-Token")
	}

	return &nonceInfo{
		nonce:     nonce,
		cartToken: token,
	}, nil
}

func (c *Client) setStoreAPIHeaders(req *http.Request, cartToken, nonce string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	if cartToken != "" {
		req.Header.Set("Cart-Token", cartToken)
	}
	if nonce != "" {
		req.Header.Set("Nonce", nonce)
	}
}

// parseErrorResponse converts a Store API error to APIError.
func (c *Client) parseErrorResponse(statusCode int, body []byte) error {
	var wcErr WooErrorResponse
	json.Unmarshal(body, &wcErr) // Best effort parse

	switch statusCode {
	case http.StatusNotFound:
		return model.NewNotFoundError("cart")
	case http.StatusUnauthorized, http.StatusForbidden:
		return model.NewUnauthorizedError("WooCommerce rejected the cart session")
	case http.StatusBadRequest, http.StatusConflict:
		msg := wcErr.Message
		if msg == "" {
			msg = "invalid request"
		}
		return model.NewValidationError("cart", msg)
	case http.StatusTooManyRequests:
		return model.NewRateLimitError("WooCommerce")
	default:
		return model.NewUpstreamError("WooCommerce",
			fmt.Errorf("status %d: %s - %s", statusCode, wcErr.Code, wcErr.Message))
	}
}

// getCartViaMutation reads the cart through POST /cart/update-customer.
// GET /cart with a Cart-Token header can return a stale session; mutation
// responses always carry the right cart. The update-customer route does not
// require a nonce.
func (c *Client) getCartViaMutation(ctx context.Context, cartToken string, billing *WooAddress) (*WooCartResponse, string, error) {
	body := map[string]any{}
	if billing != nil {
		body["billing_address"] = billing
	}

	bodyJSON, err := json.Marshal(body)
	if err != nil {
		return nil, "", fmt.Errorf("marshaling customer update: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.storeURL+storeAPIPath+"/cart/update-customer", bytes.NewReader(bodyJSON))
	if err != nil {
		return nil, "", fmt.Errorf("creating update-customer request: %w", err)
	}

	c.setStoreAPIHeaders(req, cartToken, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", model.NewUpstreamError("WooCommerce", err)
	}
	defer resp.Body.Close()

	returnedToken := cartToken
	if returnedToken == "" {
		returnedToken = resp.Header.Get("Cart-Token")
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("reading update-customer response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, "", c.parseErrorResponse(resp.StatusCode, respBody)
	}

	var cart WooCartResponse
	if err := json.Unmarshal(respBody, &cart); err != nil {
		return nil, "", fmt.Errorf("parsing cart response: %w", err)
	}

	return &cart, returnedToken, nil
}

// executeBatch dispatches to the configured batch execution strategy.
func (c *Client) executeBatch(ctx context.Context, batch *WooBatchRequest, cartToken string) (*WooCartResponse, string, error) {
	switch c.batchStrategy {
	case BatchStrategySequential:
		return c.executeBatchSequential(ctx, batch, cartToken)
	default:
		return c.executeBatchEndpoint(ctx, batch, cartToken)
	}
}

// executeBatchSequential executes the operations one by one, chaining the
// nonce and token of each response into the next request. The cart from the
// last operation is returned.
func (c *Client) executeBatchSequential(ctx context.Context, batch *WooBatchRequest, cartToken string) (*WooCartResponse, string, error) {
	nonceData, err := c.fetchNonce(ctx, cartToken)
	if err != nil {
		return nil, "", fmt.Errorf("fetching nonce: %w", err)
	}

	currentToken := nonceData.cartToken
	currentNonce := nonceData.nonce

	var lastCart *WooCartResponse
	for i, op := range batch.Requests {
		cart, newNonce, newToken, err := c.executeCartOperation(ctx, op, currentToken, currentNonce)
		if err != nil {
			return nil, "", fmt.Errorf("operation %d (%s) failed: %w", i, op.Path, err)
		}
		lastCart = cart

		if newNonce != "" {
			currentNonce = newNonce
		}
		if newToken != "" && cartToken == "" {
			currentToken = newToken
		}
	}

	return lastCart, currentToken, nil
}

// executeBatchEndpoint executes the batch through POST /batch. Cart-Token
// and Nonce are injected into every sub-operation.
func (c *Client) executeBatchEndpoint(ctx context.Context, batch *WooBatchRequest, cartToken string) (*WooCartResponse, string, error) {
	if batch == nil || len(batch.Requests) == 0 {
		return nil, "", fmt.Errorf("empty batch request")
	}

	nonceData, err := c.fetchNonce(ctx, cartToken)
	if err != nil {
		return nil, "", fmt.Errorf("fetching nonce: %w", err)
	}

	batch.InjectHeaders(map[string]string{
		"Nonce":      nonceData.nonce,
		"Cart-Token": nonceData.cartToken,
	})

	batchJSON, err := json.Marshal(batch)
	if err != nil {
		return nil, "", fmt.Errorf("marshaling batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.storeURL+storeAPIPath+"/batch", bytes.NewReader(batchJSON))
	if err != nil {
		return nil, "", fmt.Errorf("creating batch request: %w", err)
	}

	c.setStoreAPIHeaders(req, nonceData.cartToken, nonceData.nonce)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", model.NewUpstreamError("WooCommerce", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("reading batch response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, "", c.parseErrorResponse(resp.StatusCode, body)
	}

	var batchResp WooBatchResponse
	if err := json.Unmarshal(body, &batchResp); err != nil {
		return nil, "", fmt.Errorf("parsing batch response: %w", err)
	}

	var lastCart *WooCartResponse
	for _, result := range batchResp.Responses {
		if result.Status >= 400 {
			return nil, "", c.parseErrorResponse(result.Status, result.Body)
		}

		var cart WooCartResponse
		if err := json.Unmarshal(result.Body, &cart); err != nil {
			return nil, "", fmt.Errorf("parsing batch result: %w", err)
		}
		lastCart = &cart
	}

	return lastCart, nonceData.cartToken, nil
}

// executeCartOperation executes a single cart operation and returns the
// cart along with the Nonce and Cart-Token response headers.
func (c *Client) executeCartOperation(ctx context.Context, op WooBatchOperation, cartToken, nonce string) (*WooCartResponse, string, string, error) {
	path := strings.TrimPrefix(op.Path, "/wc/store/v1")

	var bodyReader io.Reader
	if len(op.Body) > 0 {
		bodyReader = bytes.NewReader(op.Body)
	}

	req, err := http.NewRequestWithContext(ctx, op.Method, c.storeURL+storeAPIPath+path, bodyReader)
	if err != nil {
		return nil, "", "", fmt.Errorf("creating request: %w", err)
	}

	c.setStoreAPIHeaders(req, cartToken, nonce)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", "", model.NewUpstreamError("WooCommerce", err)
	}
	defer resp.Body.Close()

	newNonce := resp.Header.Get("Nonce")
	newToken := resp.Header.Get("Cart-Token")

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, "", "", c.parseErrorResponse(resp.StatusCode, body)
	}

	var cart WooCartResponse
	if err := json.Unmarshal(body, &cart); err != nil {
		return nil, "", "", fmt.Errorf("parsing cart response: %w", err)
	}

	return &cart, newNonce, newToken, nil
}
