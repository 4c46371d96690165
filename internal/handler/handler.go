// Package handler provides the HTTP surface of the bridge: the provider push
// listener, the shop payment endpoint, the admin order API and its MCP tools.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"garan24-bridge/internal/bridge"
	"garan24-bridge/internal/checkout"
	"garan24-bridge/internal/gateway"
	"garan24-bridge/internal/middleware"
	"garan24-bridge/internal/model"
	"garan24-bridge/internal/session"
	"garan24-bridge/internal/telemetry"
)

// Deps are the collaborators of a Handler. Checkout and Metrics may be nil.
type Deps struct {
	Bridge   *bridge.Bridge
	Gateways *gateway.Registry
	Checkout *checkout.Controller
	Carts    checkout.Carts
	Sessions *session.Manager
	// Metrics serves /metrics.
	Metrics http.Handler
	// AdminToken protects /admin and /mcp. Empty disables both.
	AdminToken string
	Logger     *slog.Logger
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	bridge     *bridge.Bridge
	gateways   *gateway.Registry
	checkout   *checkout.Controller
	carts      checkout.Carts
	sessions   *session.Manager
	metrics    http.Handler
	adminToken string
	logger     *slog.Logger
}

// New creates a Handler.
func New(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		bridge:     d.Bridge,
		gateways:   d.Gateways,
		checkout:   d.Checkout,
		carts:      d.Carts,
		sessions:   d.Sessions,
		metrics:    d.Metrics,
		adminToken: d.AdminToken,
		logger:     logger,
	}
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
// Uses Go 1.22+ method routing patterns.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	traced := telemetry.WithHTTPRoute

	// Provider push listener, same path as the WooCommerce API callback
	mux.HandleFunc("POST /wc-api/garan24_checkout", traced(h.handlePush))
	mux.HandleFunc("GET /wc-api/garan24_checkout", traced(h.handlePush))

	// Shop checkout
	if h.checkout != nil {
		h.checkout.RegisterRoutes(mux)
	}
	mux.HandleFunc("GET /gateways", traced(h.handleGateways))
	mux.HandleFunc("POST /checkout/pay/{gateway}", traced(h.handlePay))

	admin := middleware.AdminAuth(h.adminToken)
	mux.Handle("GET /admin/orders/{id}", admin(traced(h.handleGetOrder)))
	mux.Handle("POST /admin/orders/{id}/status", admin(traced(h.handleSetStatus)))
	mux.Handle("POST /admin/orders/{id}/refunds", admin(traced(h.handleRefund)))
	mux.Handle("DELETE /admin/orders/{id}/items/{item}", admin(traced(h.handleRemoveItem)))
	mux.Handle("POST /admin/orders/{id}/sync", admin(traced(h.handleSyncOrder)))
	mux.Handle("POST /admin/orders/{id}/pending-check", admin(traced(h.handleCheckPending)))
	mux.Handle("POST /admin/jobs/purge-incomplete", admin(traced(h.handlePurge)))
	mux.Handle("POST /admin/jobs/pending-checks", admin(traced(h.handlePendingChecks)))

	// MCP transport - JSON-RPC endpoint using official MCP SDK
	mux.Handle("/mcp", admin(h.NewMCPHandler()))

	// Health check
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}
}

// handleHealth returns a simple health check response.
// GET /health, GET /healthz
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

type healthResponse struct {
	Status string `json:"status"`
}

// === Response Helpers ===

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError sends an error response, extracting status/code from APIError if present.
// Uses errors.As() to unwrap error chains (e.g., fmt.Errorf wrapping).
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError

	if !errors.As(err, &apiErr) {
		apiErr = &model.APIError{
			Code:       "INTERNAL_ERROR",
			Message:    "an internal error occurred",
			StatusCode: http.StatusInternalServerError,
		}
		h.logger.Error("internal error", slog.String("error", err.Error()))
	}

	h.writeJSON(w, apiErr.StatusCode, errorResponse{
		Error: errorBody{
			Code:    apiErr.Code,
			Message: apiErr.Message,
		},
	})
}

// errorResponse is the JSON structure for error responses.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MaxRequestBodySize limits request bodies to 1MB.
const MaxRequestBodySize = 1 << 20

// decodeJSON reads JSON from request body into v.
// Returns an APIError if decoding fails.
func decodeJSON(r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(nil, r.Body, MaxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// Don't expose internal error details to client
		return model.NewValidationError("body", "invalid JSON")
	}
	return nil
}
