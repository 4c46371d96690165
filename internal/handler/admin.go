package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"garan24-bridge/internal/model"
)

// Admin order API. Every route here sits behind middleware.AdminAuth and
// mirrors an order action of the shop admin.

type statusRequest struct {
	Status model.Status `json:"status"`
}

type refundRequest struct {
	// Amount is in major units, e.g. "12.50".
	Amount string `json:"amount"`
	Reason string `json:"reason,omitempty"`
}

type jobResponse struct {
	Count int `json:"count"`
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, model.NewValidationError(name, "must be a positive integer")
	}
	return id, nil
}

// GET /admin/orders/{id}
func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	o, err := h.bridge.Store().Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, o)
}

// handleSetStatus changes the order status; completed and cancelled run
// the provider activation and cancellation.
// POST /admin/orders/{id}/status
func (h *Handler) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.InfoContext(r.Context(), "admin status change",
		slog.Int64("order_id", id),
		slog.String("status", string(req.Status)),
	)

	o, err := h.bridge.SetStatus(r.Context(), id, req.Status)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, o)
}

// POST /admin/orders/{id}/refunds
func (h *Handler) handleRefund(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req refundRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	o, err := h.refund(r.Context(), id, model.ParseCents(req.Amount), req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, o)
}

// refund goes through the gateway the order was paid with.
func (h *Handler) refund(ctx context.Context, id, amount int64, reason string) (*model.Order, error) {
	o, err := h.bridge.Store().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	g, ok := h.gateways.Get(o.PaymentMethod)
	if !ok {
		return nil, model.NewValidationError("payment_method", "order was not paid with Garan24")
	}

	h.logger.InfoContext(ctx, "admin refund",
		slog.Int64("order_id", id),
		slog.Int64("amount", amount),
		slog.String("gateway", g.ID()),
	)

	if err := g.ProcessRefund(ctx, id, amount, reason); err != nil {
		return nil, err
	}
	return h.bridge.Store().Get(ctx, id)
}

// handleRemoveItem drops a line from the order and updates the provider
// order to match.
// DELETE /admin/orders/{id}/items/{item}
func (h *Handler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	item, err := pathID(r, "item")
	if err != nil {
		h.writeError(w, err)
		return
	}
	o, err := h.bridge.RemoveItem(r.Context(), id, item)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, o)
}

// handleSyncOrder re-sends an edited on-hold order to the provider, as
// saving the order in the shop admin does.
// POST /admin/orders/{id}/sync
func (h *Handler) handleSyncOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.bridge.UpdateProviderOrder(r.Context(), id, 0); err != nil {
		h.writeError(w, err)
		return
	}
	o, err := h.bridge.Store().Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, o)
}

// POST /admin/orders/{id}/pending-check
func (h *Handler) handleCheckPending(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.bridge.CheckPending(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	o, err := h.bridge.Store().Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, o)
}

// POST /admin/jobs/purge-incomplete
func (h *Handler) handlePurge(w http.ResponseWriter, r *http.Request) {
	n, err := h.bridge.PurgeIncomplete(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, jobResponse{Count: n})
}

// POST /admin/jobs/pending-checks
func (h *Handler) handlePendingChecks(w http.ResponseWriter, r *http.Request) {
	n, err := h.bridge.RunPendingChecks(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, jobResponse{Count: n})
}
