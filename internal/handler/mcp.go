// MCP transport for the admin order API, using the official MCP Go SDK.
// Each tool mirrors one /admin route.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"garan24-bridge/internal/model"
)

// OrderInput identifies an order.
type OrderInput struct {
	OrderID int64 `json:"order_id" jsonschema:"local order ID,required"`
}

// SetStatusInput is the input schema for set_order_status tool.
type SetStatusInput struct {
	OrderID int64  `json:"order_id" jsonschema:"local order ID,required"`
	Status  string `json:"status" jsonschema:"new status: pending, on-hold, processing, completed, cancelled, refunded or failed,required"`
}

// RefundInput is the input schema for refund_order tool.
type RefundInput struct {
	OrderID int64  `json:"order_id" jsonschema:"local order ID,required"`
	Amount  string `json:"amount" jsonschema:"amount in major units, e.g. 12.50,required"`
	Reason  string `json:"reason,omitempty" jsonschema:"refund reason sent to Garan24"`
}

// RemoveItemInput is the input schema for remove_order_item tool.
type RemoveItemInput struct {
	OrderID int64 `json:"order_id" jsonschema:"local order ID,required"`
	ItemID  int64 `json:"item_id" jsonschema:"order line item ID,required"`
}

// JobInput is the empty input of the maintenance tools.
type JobInput struct{}

// JobOutput reports how many orders a maintenance run touched.
type JobOutput struct {
	Count int `json:"count"`
}

// NewMCPServer creates an MCP server with the admin order tools.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "garan24-bridge",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Garan24 bridge order administration. " +
				"Use these tools to inspect orders and run Garan24 order actions.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_order",
		Description: "Get a local order with its Garan24 metadata and notes.",
	}, h.mcpGetOrder)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "set_order_status",
		Description: "Change the order status. Completed activates and cancelled cancels the Garan24 order.",
	}, h.mcpSetStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "refund_order",
		Description: "Refund an activated order, fully or partially.",
	}, h.mcpRefund)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remove_order_item",
		Description: "Remove a line from an order and update the on-hold Garan24 order.",
	}, h.mcpRemoveItem)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "update_provider_order",
		Description: "Re-send an edited on-hold order to Garan24.",
	}, h.mcpUpdateProviderOrder)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "run_pending_checks",
		Description: "Check every pending reservation that is due.",
	}, h.mcpRunPendingChecks)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "purge_incomplete",
		Description: "Delete abandoned incomplete checkout orders.",
	}, h.mcpPurgeIncomplete)

	return server
}

// NewMCPHandler returns an http.Handler for the MCP endpoint.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

func (h *Handler) mcpGetOrder(ctx context.Context, req *mcp.CallToolRequest, input OrderInput) (*mcp.CallToolResult, *model.Order, error) {
	o, err := h.bridge.Store().Get(ctx, input.OrderID)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, o, nil
}

func (h *Handler) mcpSetStatus(ctx context.Context, req *mcp.CallToolRequest, input SetStatusInput) (*mcp.CallToolResult, *model.Order, error) {
	o, err := h.bridge.SetStatus(ctx, input.OrderID, model.Status(input.Status))
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, o, nil
}

func (h *Handler) mcpRefund(ctx context.Context, req *mcp.CallToolRequest, input RefundInput) (*mcp.CallToolResult, *model.Order, error) {
	o, err := h.refund(ctx, input.OrderID, model.ParseCents(input.Amount), input.Reason)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, o, nil
}

func (h *Handler) mcpRemoveItem(ctx context.Context, req *mcp.CallToolRequest, input RemoveItemInput) (*mcp.CallToolResult, *model.Order, error) {
	o, err := h.bridge.RemoveItem(ctx, input.OrderID, input.ItemID)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, o, nil
}

func (h *Handler) mcpUpdateProviderOrder(ctx context.Context, req *mcp.CallToolRequest, input OrderInput) (*mcp.CallToolResult, *model.Order, error) {
	if err := h.bridge.UpdateProviderOrder(ctx, input.OrderID, 0); err != nil {
		return nil, nil, h.mcpError(err)
	}
	o, err := h.bridge.Store().Get(ctx, input.OrderID)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, o, nil
}

func (h *Handler) mcpRunPendingChecks(ctx context.Context, req *mcp.CallToolRequest, input JobInput) (*mcp.CallToolResult, *JobOutput, error) {
	n, err := h.bridge.RunPendingChecks(ctx)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, &JobOutput{Count: n}, nil
}

func (h *Handler) mcpPurgeIncomplete(ctx context.Context, req *mcp.CallToolRequest, input JobInput) (*mcp.CallToolResult, *JobOutput, error) {
	n, err := h.bridge.PurgeIncomplete(ctx)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, &JobOutput{Count: n}, nil
}

// mcpError converts an error into a tool error. APIErrors keep their code
// and message; anything else is logged and hidden.
func (h *Handler) mcpError(err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
	}
	h.logger.Error("mcp internal error", "error", err.Error())
	return fmt.Errorf("internal error")
}
