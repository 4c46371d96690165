package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"garan24-bridge/internal/model"
)

// jsonrpcRequest is a JSON-RPC 2.0 request structure for testing.
type jsonrpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// jsonrpcResponse is a JSON-RPC 2.0 response structure for testing.
type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// toolCallParams represents the params for tools/call method.
type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// callToolResult is the expected result structure from a tool call.
type callToolResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"content"`
	IsError bool `json:"isError,omitempty"`
}

func TestMCPServerCreation(t *testing.T) {
	h := New(Deps{})
	if h.NewMCPServer() == nil {
		t.Fatal("NewMCPServer returned nil")
	}
	if h.NewMCPHandler() == nil {
		t.Fatal("NewMCPHandler returned nil")
	}
}

func TestMCPRequiresAdminToken(t *testing.T) {
	f := newFixture(t)

	body, _ := json.Marshal(initializeRequest())
	req := httptest.NewRequest("POST", "/mcp", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	w := f.do(req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestMCPToolsList(t *testing.T) {
	f := newFixture(t)
	sessionID := initMCPSession(t, f.mux)

	resp := mcpCall(t, f.mux, sessionID, jsonrpcRequest{JSONRPC: "2.0", ID: 2, Method: "tools/list"})

	var toolsResult struct {
		Tools []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &toolsResult); err != nil {
		t.Fatalf("Failed to parse tools result: %v", err)
	}

	expectedTools := map[string]bool{
		"get_order":             false,
		"set_order_status":      false,
		"refund_order":          false,
		"remove_order_item":     false,
		"update_provider_order": false,
		"run_pending_checks":    false,
		"purge_incomplete":      false,
	}
	for _, tool := range toolsResult.Tools {
		if _, ok := expectedTools[tool.Name]; ok {
			expectedTools[tool.Name] = true
		}
	}
	for name, found := range expectedTools {
		if !found {
			t.Errorf("Expected tool %q not found in tools list", name)
		}
	}
}

func TestMCPGetOrder(t *testing.T) {
	f := newFixture(t)
	o := f.create(t, paidOrder())
	sessionID := initMCPSession(t, f.mux)

	result := callTool(t, f.mux, sessionID, "get_order", map[string]interface{}{"order_id": o.ID})
	if result.IsError {
		t.Fatalf("Expected success, got error: %+v", result.Content)
	}
	if len(result.Content) == 0 || result.Content[0].Type != "text" {
		t.Fatalf("Expected text content, got %+v", result.Content)
	}

	var got model.Order
	if err := json.Unmarshal([]byte(result.Content[0].Text), &got); err != nil {
		t.Fatalf("Failed to parse order from result: %v", err)
	}
	if got.ID != o.ID || got.Status != model.StatusProcessing {
		t.Errorf("order = %d/%s, want %d/processing", got.ID, got.Status, o.ID)
	}
}

func TestMCPGetOrderNotFound(t *testing.T) {
	f := newFixture(t)
	sessionID := initMCPSession(t, f.mux)

	result := callTool(t, f.mux, sessionID, "get_order", map[string]interface{}{"order_id": 42})
	if !result.IsError {
		t.Fatal("Expected tool error for missing order")
	}
	if len(result.Content) == 0 || !strings.Contains(result.Content[0].Text, "NOT_FOUND") {
		t.Errorf("content = %+v, want NOT_FOUND", result.Content)
	}
}

func TestMCPSetOrderStatus(t *testing.T) {
	f := newFixture(t)
	o := f.create(t, paidOrder())
	sessionID := initMCPSession(t, f.mux)

	result := callTool(t, f.mux, sessionID, "set_order_status", map[string]interface{}{
		"order_id": o.ID,
		"status":   "cancelled",
	})
	if result.IsError {
		t.Fatalf("Expected success, got error: %+v", result.Content)
	}

	got := f.get(t, o.ID)
	if got.Status != model.StatusCancelled {
		t.Errorf("order status = %s, want cancelled", got.Status)
	}
	if n := f.mock.Calls("CancelReservation"); n != 1 {
		t.Errorf("CancelReservation calls = %d, want 1", n)
	}
}

func TestMCPRefundOrder(t *testing.T) {
	f := newFixture(t)
	o := paidOrder()
	o.Status = model.StatusCompleted
	o.Meta[model.MetaInvoiceNumber] = "INV-R1"
	f.create(t, o)
	sessionID := initMCPSession(t, f.mux)

	result := callTool(t, f.mux, sessionID, "refund_order", map[string]interface{}{
		"order_id": o.ID,
		"amount":   "250.00",
	})
	if result.IsError {
		t.Fatalf("Expected success, got error: %+v", result.Content)
	}
	if n := f.mock.Calls("CreditInvoice"); n != 1 {
		t.Errorf("CreditInvoice calls = %d, want 1", n)
	}
	if got := f.get(t, o.ID); got.Status != model.StatusRefunded {
		t.Errorf("order status = %s, want refunded", got.Status)
	}
}

func TestMCPPurgeIncomplete(t *testing.T) {
	f := newFixture(t)
	sessionID := initMCPSession(t, f.mux)

	result := callTool(t, f.mux, sessionID, "purge_incomplete", map[string]interface{}{})
	if result.IsError {
		t.Fatalf("Expected success, got error: %+v", result.Content)
	}
	var out JobOutput
	if err := json.Unmarshal([]byte(result.Content[0].Text), &out); err != nil {
		t.Fatalf("Failed to parse job output: %v", err)
	}
	if out.Count != 0 {
		t.Errorf("count = %d, want 0", out.Count)
	}
}

func TestMCPMissingRequiredField(t *testing.T) {
	f := newFixture(t)
	sessionID := initMCPSession(t, f.mux)

	args, _ := json.Marshal(map[string]interface{}{"order_id": 1})
	body, _ := json.Marshal(jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      2,
		Method:  "tools/call",
		Params:  toolCallParams{Name: "refund_order", Arguments: args},
	})
	httpReq := httptest.NewRequest("POST", "/mcp", bytes.NewReader(body))
	setMCPHeaders(httpReq, sessionID)
	w := httptest.NewRecorder()
	f.mux.ServeHTTP(w, httpReq)

	// Should still return 200, with error in the result
	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d\nBody: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if n := f.mock.Calls("CreditInvoice") + f.mock.Calls("ReturnAmount"); n != 0 {
		t.Errorf("provider refund calls = %d, want 0", n)
	}
}

func TestMCPErrorHidesInternalErrors(t *testing.T) {
	h := New(Deps{})

	err := h.mcpError(model.NewConflictError("order 1 cannot move from cancelled to processing"))
	if err.Error() != "CONFLICT: order 1 cannot move from cancelled to processing" {
		t.Errorf("mcpError(APIError) = %q", err)
	}

	err = h.mcpError(context.DeadlineExceeded)
	if err.Error() != "internal error" {
		t.Errorf("mcpError(internal) = %q, want internal error", err)
	}
}

func initializeRequest() jsonrpcRequest {
	return jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "initialize",
		Params: map[string]interface{}{
			"protocolVersion": "2025-06-18",
			"clientInfo":      map[string]string{"name": "test", "version": "1.0"},
			"capabilities":    map[string]interface{}{},
		},
	}
}

// setMCPHeaders sets the required headers for MCP Streamable HTTP requests.
func setMCPHeaders(req *http.Request, sessionID string) {
	req.Header.Set("Content-Type", "application/json")
	// MCP Streamable HTTP requires Accept header with both json and event-stream
	req.Header.Set("Accept", "application/json, text/event-stream")
	req.Header.Set("Authorization", "Bearer "+testAdminToken)
	if sessionID != "" {
		req.Header.Set("Mcp-Session-Id", sessionID)
	}
}

// parseSSEResponse extracts JSON data from SSE formatted response.
// SSE format: "event: message\ndata: {json}\n\n"
func parseSSEResponse(body string) []byte {
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "data: ") {
			return []byte(strings.TrimPrefix(line, "data: "))
		}
	}
	// If no SSE format found, assume plain JSON
	return []byte(body)
}

// initMCPSession initializes an MCP session and returns the session ID.
func initMCPSession(t *testing.T, mux *http.ServeMux) string {
	t.Helper()

	body, _ := json.Marshal(initializeRequest())
	httpReq := httptest.NewRequest("POST", "/mcp", bytes.NewReader(body))
	setMCPHeaders(httpReq, "")
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, httpReq)

	if w.Code != http.StatusOK {
		t.Fatalf("Failed to initialize MCP session: %s", w.Body.String())
	}
	return w.Header().Get("Mcp-Session-Id")
}

// mcpCall sends one JSON-RPC request and returns the decoded response.
func mcpCall(t *testing.T, mux *http.ServeMux, sessionID string, req jsonrpcRequest) jsonrpcResponse {
	t.Helper()

	body, _ := json.Marshal(req)
	httpReq := httptest.NewRequest("POST", "/mcp", bytes.NewReader(body))
	setMCPHeaders(httpReq, sessionID)
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, httpReq)

	// MCP returns 200 OK even for tool errors, error is in the result
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d\nBody: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp jsonrpcResponse
	if err := json.Unmarshal(parseSSEResponse(w.Body.String()), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v\nBody: %s", err, w.Body.String())
	}
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}
	return resp
}

func callTool(t *testing.T, mux *http.ServeMux, sessionID, name string, args map[string]interface{}) callToolResult {
	t.Helper()

	raw, _ := json.Marshal(args)
	resp := mcpCall(t, mux, sessionID, jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      2,
		Method:  "tools/call",
		Params:  toolCallParams{Name: name, Arguments: raw},
	})

	var result callToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("Failed to parse result: %v", err)
	}
	return result
}
